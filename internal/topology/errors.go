package topology

import "errors"

// Structural errors, reported synchronously by the builder (§7). A failed
// builder call never partially mutates the graph-under-construction.
var (
	// ErrInvalidNeighborSlot is returned when from has no free outgoing
	// slot, or to has no free incoming slot, for the node kinds involved.
	ErrInvalidNeighborSlot = errors.New("topology: no free neighbor slot for this connection")
	// ErrDuplicateAddress is returned when a signal/sensor/switch/crossing
	// address is registered twice.
	ErrDuplicateAddress = errors.New("topology: address already registered")
	// ErrUnknownNeighbor is returned when an operation references a node
	// index that does not exist in the builder.
	ErrUnknownNeighbor = errors.New("topology: unknown node index")
	// ErrAlreadyBuilt is returned when a mutating builder call is made
	// after build() has frozen the topology.
	ErrAlreadyBuilt = errors.New("topology: builder already built")
	// ErrNotSwitch is returned by switch-only builder calls on a non-switch
	// node.
	ErrNotSwitch = errors.New("topology: node is not a switch")
)
