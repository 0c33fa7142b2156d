package topology

import "github.com/ts2/railctl/internal/geometry"

// NodeKind discriminates the variant stored in a Node.
type NodeKind int

const (
	KindSignal NodeKind = iota
	KindSensor
	KindStation
	KindSwitch
	KindCross
	KindBuffer
)

func (k NodeKind) String() string {
	switch k {
	case KindSignal:
		return "Signal"
	case KindSensor:
		return "Sensor"
	case KindStation:
		return "Station"
	case KindSwitch:
		return "Switch"
	case KindCross:
		return "Cross"
	case KindBuffer:
		return "Buffer"
	default:
		return "Unknown"
	}
}

// Variant is the data carried by a node, distinct per NodeKind. Concrete
// types implement it; callers type-switch on Kind() to recover the concrete
// value, matching the "accept interfaces, use type switches" idiom rather
// than a hand-rolled sum type.
type Variant interface {
	Kind() NodeKind
}

// SignalVariant is a controllable aspect at a position.
type SignalVariant struct {
	Address  SignalAddress
	Position geometry.Position
}

func (SignalVariant) Kind() NodeKind { return KindSignal }

// SensorVariant is a plain occupancy detector.
type SensorVariant struct {
	Address  SensorAddress
	Position geometry.Position
}

func (SensorVariant) Kind() NodeKind { return KindSensor }

// StationVariant is a Sensor additionally marked as a stopping point; it
// shares the Sensor state machine but is cost-penalized by the route
// planner (§4.5).
type StationVariant struct {
	Address  SensorAddress
	Position geometry.Position
}

func (StationVariant) Kind() NodeKind { return KindStation }

// SwitchVariant is a movable point. DefaultBranchNeighbor records which
// neighbor index is the "straight" target; it is -1 until either
// SetSwitchDefaultDir is called or build() fills it in.
type SwitchVariant struct {
	Address                SwitchAddress
	Position               geometry.Position
	Type                   SwitchType
	DefaultBranchNeighbor  int
	DefaultBranchDirection Branch
}

func (SwitchVariant) Kind() NodeKind { return KindSwitch }

// CrossVariant is one of the two independent tracks of a physical crossing;
// Peer is the node index of its other track, tied together by the
// address->indices reverse map.
type CrossVariant struct {
	Address CrossingAddress
	Peer    int
}

func (CrossVariant) Kind() NodeKind { return KindCross }

// BufferVariant is a terminator: no outgoing edges are ever legal from it.
type BufferVariant struct {
	Position geometry.Position
}

func (BufferVariant) Kind() NodeKind { return KindBuffer }

// Node is one vertex of the topology graph: an index (used as the lvlath
// vertex ID) plus its typed variant.
type Node struct {
	Index   int
	Variant Variant
}

func (n Node) Kind() NodeKind { return n.Variant.Kind() }

// Position returns the node's position, if its variant carries one (Cross
// nodes don't — their geometry lives on the rails of their incident edges).
func (n Node) Position() (geometry.Position, bool) {
	switch v := n.Variant.(type) {
	case SignalVariant:
		return v.Position, true
	case SensorVariant:
		return v.Position, true
	case StationVariant:
		return v.Position, true
	case SwitchVariant:
		return v.Position, true
	case BufferVariant:
		return v.Position, true
	default:
		return geometry.Position{}, false
	}
}

// IsSensorLike reports whether n is a Sensor or Station (same state machine,
// §3/§4.3).
func (n Node) IsSensorLike() bool {
	return n.Kind() == KindSensor || n.Kind() == KindStation
}

// SensorAddress returns the shared Sensor/Station address, if n is one.
func (n Node) SensorAddress() (SensorAddress, bool) {
	switch v := n.Variant.(type) {
	case SensorVariant:
		return v.Address, true
	case StationVariant:
		return v.Address, true
	default:
		return 0, false
	}
}
