package train

import (
	"time"

	"github.com/ts2/railctl/internal/signaling"
	"github.com/ts2/railctl/internal/topology"
)

// Op is an N-ary boolean-tree interior node kind (§4.11).
type Op int

const (
	OpAnd Op = iota
	OpOr
	OpXor
	OpXnor
)

// ReasonKind selects which WaitingReason leaf predicate to evaluate.
type ReasonKind int

const (
	ReasonTime ReasonKind = iota
	ReasonTrainOnSensor
	ReasonTrainHoldInStation
)

// WaitingReason is one leaf of an arrive/depart decision tree (§4.11's
// table). Remaining is mutated by Tick for ReasonTime leaves; the other two
// kinds are evaluated fresh against live sensor state each call.
type WaitingReason struct {
	Kind      ReasonKind
	Remaining time.Duration
	Train     topology.TrainAddress
	Sensor    int // node index
}

// EvalContext is the live state a WaitingReason leaf consults. *signaling.Network
// together with a SpeedLookup satisfies it via NetworkEvalContext.
type EvalContext interface {
	SensorHeldBy(sensorNode int) (topology.TrainAddress, bool)
	TrainStopped(train topology.TrainAddress) bool
}

// Fulfilled reports whether the leaf predicate currently holds.
func (r *WaitingReason) Fulfilled(ctx EvalContext) bool {
	switch r.Kind {
	case ReasonTime:
		return r.Remaining <= 0
	case ReasonTrainOnSensor:
		holder, ok := ctx.SensorHeldBy(r.Sensor)
		return ok && holder == r.Train
	case ReasonTrainHoldInStation:
		holder, ok := ctx.SensorHeldBy(r.Sensor)
		return ok && holder == r.Train && ctx.TrainStopped(r.Train)
	default:
		return false
	}
}

// Node is one node of an arrive/depart decision tree: either a leaf
// (Reason != nil) or an interior Op over Children (§4.11).
type Node struct {
	Op       Op
	Reason   *WaitingReason
	Children []*Node
}

// Leaf wraps a WaitingReason as a tree leaf.
func Leaf(r *WaitingReason) *Node { return &Node{Reason: r} }

// Branch builds an interior node.
func Branch(op Op, children ...*Node) *Node { return &Node{Op: op, Children: children} }

// Eval walks the tree against ctx, applying §4.11's evaluator semantics:
// AND/OR short-circuit, XOR folds pairwise, XNOR is true iff every child
// agrees (vacuously true on an empty child list, matching AND's vacuous
// truth but stated separately in the table since XNOR has no other
// sensible empty case).
func (n *Node) Eval(ctx EvalContext) bool {
	if n.Reason != nil {
		return n.Reason.Fulfilled(ctx)
	}
	switch n.Op {
	case OpAnd:
		for _, c := range n.Children {
			if !c.Eval(ctx) {
				return false
			}
		}
		return true
	case OpOr:
		for _, c := range n.Children {
			if c.Eval(ctx) {
				return true
			}
		}
		return false
	case OpXor:
		result := false
		for i, c := range n.Children {
			v := c.Eval(ctx)
			if i == 0 {
				result = v
				continue
			}
			result = result != v
		}
		return result
	case OpXnor:
		if len(n.Children) == 0 {
			return true
		}
		first := n.Children[0].Eval(ctx)
		for _, c := range n.Children[1:] {
			if c.Eval(ctx) != first {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Tick advances every ReasonTime leaf's remaining duration by elapsed,
// clamped at zero, so Fulfilled transitions false->true exactly once
// elapsed real time has accumulated (§4.11's Time(d): fulfilled when
// d==0).
func (n *Node) Tick(elapsed time.Duration) {
	if n.Reason != nil {
		if n.Reason.Kind == ReasonTime && n.Reason.Remaining > 0 {
			n.Reason.Remaining -= elapsed
			if n.Reason.Remaining < 0 {
				n.Reason.Remaining = 0
			}
		}
		return
	}
	for _, c := range n.Children {
		c.Tick(elapsed)
	}
}

// Station is one timetable stop: arrive/depart decision trees guarding
// whether a train may enter or leave it (§3's train state `timetable`,
// §4.11). A nil tree is vacuously satisfied.
type Station struct {
	Node   int // the station node index in the topology
	Arrive *Node
	Depart *Node
}

// CanArrive reports whether the arrive tree currently permits entry.
func (s *Station) CanArrive(ctx EvalContext) bool {
	if s.Arrive == nil {
		return true
	}
	return s.Arrive.Eval(ctx)
}

// CanDepart reports whether the depart tree currently permits leaving.
func (s *Station) CanDepart(ctx EvalContext) bool {
	if s.Depart == nil {
		return true
	}
	return s.Depart.Eval(ctx)
}

// Tick advances both trees' Time(d) leaves.
func (s *Station) Tick(elapsed time.Duration) {
	if s.Arrive != nil {
		s.Arrive.Tick(elapsed)
	}
	if s.Depart != nil {
		s.Depart.Tick(elapsed)
	}
}

// NetworkEvalContext is the usual EvalContext: sensor occupancy straight
// from a signaling.Network, "stopped" defined as any speed below Drive(1)
// (EmergencyStop, Stop or Drive(0)) on the SpeedLookup (the Registry
// satisfies this).
type NetworkEvalContext struct {
	Net    *signaling.Network
	Speeds SpeedLookup
}

// SensorHeldBy implements EvalContext.
func (c NetworkEvalContext) SensorHeldBy(sensorNode int) (topology.TrainAddress, bool) {
	sen, ok := c.Net.Sensor(sensorNode)
	if !ok {
		return 0, false
	}
	return sen.CurrentTrain()
}

// TrainStopped implements EvalContext: a train with no registered speed is
// conservatively treated as not stopped, since its state is unknown.
func (c NetworkEvalContext) TrainStopped(train topology.TrainAddress) bool {
	if c.Speeds == nil {
		return false
	}
	speed, ok := c.Speeds.SpeedOf(train)
	if !ok {
		return false
	}
	return speed.Tier != topology.DriveTier || speed.Level == 0
}
