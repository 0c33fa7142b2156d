package train

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ts2/railctl/internal/topology"
)

// fakeEvalContext is a bare EvalContext double so timetable decision trees
// can be exercised without a live Network.
type fakeEvalContext struct {
	heldBy  map[int]topology.TrainAddress
	stopped map[topology.TrainAddress]bool
}

func (f fakeEvalContext) SensorHeldBy(node int) (topology.TrainAddress, bool) {
	t, ok := f.heldBy[node]
	return t, ok
}

func (f fakeEvalContext) TrainStopped(train topology.TrainAddress) bool {
	return f.stopped[train]
}

func TestWaitingReasonTime(t *testing.T) {
	r := &WaitingReason{Kind: ReasonTime, Remaining: 2 * time.Second}
	ctx := fakeEvalContext{}
	assert.False(t, r.Fulfilled(ctx))

	r.Fulfilled(ctx) // no mutation without Tick
	Leaf(r).Tick(1 * time.Second)
	assert.False(t, r.Fulfilled(ctx))

	Leaf(r).Tick(5 * time.Second)
	assert.True(t, r.Fulfilled(ctx), "remaining clamps at zero and becomes fulfilled")
}

func TestWaitingReasonTrainOnSensor(t *testing.T) {
	r := &WaitingReason{Kind: ReasonTrainOnSensor, Train: 7, Sensor: 3}
	ctx := fakeEvalContext{heldBy: map[int]topology.TrainAddress{3: 7}}
	assert.True(t, r.Fulfilled(ctx))

	ctx2 := fakeEvalContext{heldBy: map[int]topology.TrainAddress{3: 9}}
	assert.False(t, r.Fulfilled(ctx2))
}

func TestWaitingReasonTrainHoldInStation(t *testing.T) {
	r := &WaitingReason{Kind: ReasonTrainHoldInStation, Train: 7, Sensor: 3}
	held := fakeEvalContext{
		heldBy:  map[int]topology.TrainAddress{3: 7},
		stopped: map[topology.TrainAddress]bool{7: true},
	}
	assert.True(t, r.Fulfilled(held))

	moving := fakeEvalContext{
		heldBy:  map[int]topology.TrainAddress{3: 7},
		stopped: map[topology.TrainAddress]bool{7: false},
	}
	assert.False(t, r.Fulfilled(moving))
}

func TestNodeEvalAndOr(t *testing.T) {
	ctx := fakeEvalContext{heldBy: map[int]topology.TrainAddress{1: 5, 2: 6}}
	always := Leaf(&WaitingReason{Kind: ReasonTrainOnSensor, Train: 5, Sensor: 1})
	never := Leaf(&WaitingReason{Kind: ReasonTrainOnSensor, Train: 99, Sensor: 1})

	assert.True(t, Branch(OpAnd, always, always).Eval(ctx))
	assert.False(t, Branch(OpAnd, always, never).Eval(ctx))
	assert.True(t, Branch(OpOr, always, never).Eval(ctx))
	assert.False(t, Branch(OpOr, never, never).Eval(ctx))
}

func TestNodeEvalXorXnor(t *testing.T) {
	ctx := fakeEvalContext{}
	yes := Leaf(&WaitingReason{Kind: ReasonTime, Remaining: 0})
	no := Leaf(&WaitingReason{Kind: ReasonTime, Remaining: time.Hour})

	assert.True(t, Branch(OpXor, yes, no).Eval(ctx))
	assert.False(t, Branch(OpXor, yes, yes).Eval(ctx))
	assert.True(t, Branch(OpXnor, yes, yes).Eval(ctx))
	assert.False(t, Branch(OpXnor, yes, no).Eval(ctx))
	assert.True(t, Branch(OpXnor).Eval(ctx), "vacuously true with no children")
}

func TestStationCanArriveCanDepart(t *testing.T) {
	ctx := fakeEvalContext{
		heldBy:  map[int]topology.TrainAddress{4: 1},
		stopped: map[topology.TrainAddress]bool{1: true},
	}
	station := &Station{
		Node:   4,
		Arrive: nil, // vacuously satisfied
		Depart: Leaf(&WaitingReason{Kind: ReasonTime, Remaining: 3 * time.Second}),
	}

	assert.True(t, station.CanArrive(ctx))
	assert.False(t, station.CanDepart(ctx))

	station.Tick(3 * time.Second)
	assert.True(t, station.CanDepart(ctx))
}

func TestNetworkEvalContextTrainStopped(t *testing.T) {
	speeds := fakeSpeedLookup{speeds: map[topology.TrainAddress]topology.Speed{
		1: {Tier: topology.Stop},
		2: {Tier: topology.DriveTier, Level: 0},
		3: {Tier: topology.DriveTier, Level: 4},
	}}
	ctx := NetworkEvalContext{Speeds: speeds}

	assert.True(t, ctx.TrainStopped(1))
	assert.True(t, ctx.TrainStopped(2))
	assert.False(t, ctx.TrainStopped(3))
	assert.False(t, ctx.TrainStopped(99), "unknown train is conservatively not stopped")
}

type fakeSpeedLookup struct {
	speeds map[topology.TrainAddress]topology.Speed
}

func (f fakeSpeedLookup) SpeedOf(train topology.TrainAddress) (topology.Speed, bool) {
	s, ok := f.speeds[train]
	return s, ok
}

func TestNetworkEvalContextTrainStoppedWithoutSpeeds(t *testing.T) {
	// SensorHeldBy delegates straight to Net.Sensor and would panic without
	// a Net, so it is not called here; this checks that TrainStopped with a
	// nil Speeds lookup reports not stopped.
	var ctx NetworkEvalContext
	require.False(t, ctx.TrainStopped(1))
}
