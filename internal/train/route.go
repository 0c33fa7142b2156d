package train

import (
	"sync"

	"github.com/ts2/railctl/internal/topology"
)

// entry is one (node, granted) pair of a Route (§3).
type entry struct {
	node    int
	granted bool
}

// Route is a train-owned, ordered deque of (node, granted-flag) produced by
// the planner (§4.5) and consumed as the train progresses (§4.10). It also
// implements signaling.RouteView so a Path-mode signal can ask for "the
// segment from S to the next signal" without this package depending on
// signaling's internals.
type Route struct {
	mu      sync.Mutex
	topo    *topology.Topology
	entries []entry
}

// NewRoute wraps a planned node-index sequence as an unreserved Route with
// no topology attached; until WithTopology is called, NextSegment treats no
// node as a signal (fine for routes never consulted by Path-mode signals,
// e.g. in planner-only tests).
func NewRoute(nodes []int) *Route {
	entries := make([]entry, len(nodes))
	for i, n := range nodes {
		entries[i] = entry{node: n}
	}
	return &Route{entries: entries}
}

// WithTopology attaches the topology NextSegment needs to recognize signal
// nodes, and returns the same Route for chaining.
func (r *Route) WithTopology(topo *topology.Topology) *Route {
	r.mu.Lock()
	r.topo = topo
	r.mu.Unlock()
	return r
}

// Empty reports whether the route has no remaining entries.
func (r *Route) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries) == 0
}

// Nodes returns a copy of the remaining route's node indices, in order.
func (r *Route) Nodes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.node
	}
	return out
}

// NextSensor returns the first sensor/station node still ahead on the
// route (scanning forward past non-sensor nodes), used by sensor_entered to
// recognize the next expected trigger (§4.10).
func (r *Route) NextSensor(topo *topology.Topology) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if node, ok := topo.Node(e.node); ok && node.IsSensorLike() {
			return e.node, true
		}
	}
	return 0, false
}

// PopThrough removes every entry up to and including nodeIndex, returning
// whether nodeIndex was found. A miss leaves the route unchanged.
func (r *Route) PopThrough(nodeIndex int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.node == nodeIndex {
			r.entries = r.entries[i+1:]
			return true
		}
	}
	return false
}

// MarkGranted sets the granted flag on the entry at signalIndex, if present
// (drive_ok, §4.10).
func (r *Route) MarkGranted(signalIndex int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].node == signalIndex {
			r.entries[i].granted = true
			return
		}
	}
}

// NextUngranted scans forward counting granted-flag-true signals and
// returns the first not-granted signal's node index, along with how many
// granted signals lie strictly ahead of it (§4.10 request_next_block).
func (r *Route) NextUngranted(topo *topology.Topology) (signalIndex int, grantedAhead int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		node, nodeOK := topo.Node(e.node)
		if !nodeOK || node.Kind() != topology.KindSignal {
			continue
		}
		if e.granted {
			grantedAhead++
			continue
		}
		return e.node, grantedAhead, true
	}
	return 0, grantedAhead, false
}

// NextSegment implements signaling.RouteView (§4.8): the ordered node
// indices from signalIndex (exclusive) to the next Signal (inclusive) or
// the route's end, and whether signalIndex appears in the route at all.
func (r *Route) NextSegment(signalIndex int) ([]int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos := -1
	for i, e := range r.entries {
		if e.node == signalIndex {
			pos = i
			break
		}
	}
	if pos == -1 {
		return nil, false
	}

	var segment []int
	for i := pos + 1; i < len(r.entries); i++ {
		n := r.entries[i].node
		segment = append(segment, n)
		if r.isSignalNode(n) {
			break
		}
	}
	return segment, true
}

func (r *Route) isSignalNode(n int) bool {
	if r.topo == nil {
		return false
	}
	node, ok := r.topo.Node(n)
	return ok && node.Kind() == topology.KindSignal
}
