package signaling

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ts2/railctl/internal/bus"
	"github.com/ts2/railctl/internal/resources"
	"github.com/ts2/railctl/internal/topology"
)

func TestRequestBlockIdempotentPerTrain(t *testing.T) {
	net, idx, _, _ := newTestNetwork(t)
	sig81, _ := net.SignalAt(idx["sig81"])

	sig81.RequestBlock(1)
	sig81.RequestBlock(1) // already granted: no-op
	sig81.RequestBlock(2)
	sig81.RequestBlock(2) // already queued: no-op

	granted := sig81.GrantedTrains()
	require.Len(t, granted, 1)
	assert.Equal(t, topology.TrainAddress(1), granted[0])

	// Only one pending requester (train 2), not two.
	sig81.mu.Lock()
	n := len(sig81.pendingRequesters)
	sig81.mu.Unlock()
	assert.Equal(t, 1, n)
}

func TestTriggerUpdateIsMonotoneLatticeJoin(t *testing.T) {
	net, idx, _, _ := newTestNetwork(t)
	sig81, _ := net.SignalAt(idx["sig81"])

	sig81.TriggerUpdate(resources.Reserved)
	assert.Equal(t, resources.Reserved, sig81.Status())

	sig81.TriggerUpdate(resources.Free) // must not regress: Occupied/Reserved absorb Free
	assert.Equal(t, resources.Reserved, sig81.Status())

	sig81.TriggerUpdate(resources.Occupied)
	assert.Equal(t, resources.Occupied, sig81.Status(), "Occupied is top and absorbing")

	sig81.TriggerUpdate(resources.Reserved)
	assert.Equal(t, resources.Occupied, sig81.Status())
}

func TestPathModeRequiresFreeNextSegment(t *testing.T) {
	topo, idx := buildLinear(t)
	b := bus.New()
	net := NewNetwork(topo, b, clock.NewMock(), map[topology.SignalAddress]Kind{80: Path}, time.Second)

	sig80, _ := net.SignalAt(idx["sig80"])
	// Next segment (sig80 exclusive -> sig81 inclusive) is sen1, sig81; both
	// free, so the grant succeeds even in Path mode.
	net.SetRouteLookup(fakeRouteLookup{5: []int{idx["sen1"], idx["sig81"]}})
	sig80.RequestBlock(5)
	assert.Len(t, sig80.GrantedTrains(), 1)
}

func TestPathModeRefusesWhenRouteUnknown(t *testing.T) {
	topo, idx := buildLinear(t)
	net := NewNetwork(topo, bus.New(), clock.NewMock(), map[topology.SignalAddress]Kind{80: Path}, time.Second)
	sig80, _ := net.SignalAt(idx["sig80"])
	// No RouteLookup registered at all: Path mode cannot evaluate, refuses.
	sig80.RequestBlock(5)
	assert.Empty(t, sig80.GrantedTrains())
}

func TestIntelligentPathDegradesToBlock(t *testing.T) {
	topo, idx := buildLinear(t)
	net := NewNetwork(topo, bus.New(), clock.NewMock(), map[topology.SignalAddress]Kind{80: IntelligentPath}, time.Second)
	sig80, _ := net.SignalAt(idx["sig80"])
	// No route registered, so Path evaluation fails; IntelligentPath falls
	// back to the Block-kind free_road (block_sensors only free check).
	sig80.RequestBlock(5)
	assert.Len(t, sig80.GrantedTrains(), 1, "falls back to Block and succeeds since block_sensors are free")
}

func TestPeerExclusivityBlocksCompetingSignal(t *testing.T) {
	net, idx, _, _ := newTestNetwork(t)
	sig80, _ := net.SignalAt(idx["sig80"])
	sig81, _ := net.SignalAt(idx["sig81"])

	// sig81's block includes sen1, which sig80's grant to train 3 reserves;
	// sig81 should then refuse a competing requester.
	sig80.RequestBlock(3)
	require.Len(t, sig80.GrantedTrains(), 1)

	sig81.RequestBlock(4)
	assert.Empty(t, sig81.GrantedTrains(), "sen1 is already reserved by train 3")
}

func TestPathFreeIgnoreSignalFlag(t *testing.T) {
	net, idx, _, _ := newTestNetwork(t)
	sig81, _ := net.SignalAt(idx["sig81"])
	sig82, _ := net.SignalAt(idx["sig82"])
	sig82.TriggerUpdate(resources.Reserved)

	assert.False(t, sig81.pathFree([]int{idx["sig82"]}, false), "sig82 not Free and ignoreSignal is false")
	assert.True(t, sig81.pathFree([]int{idx["sig82"]}, true), "ignoreSignal lets a non-Free signal pass")
}

func TestPathFreeMissingLookupTransparent(t *testing.T) {
	net, idx, _, _ := newTestNetwork(t)
	sig81, _ := net.SignalAt(idx["sig81"])
	// An out-of-range index has no node/sensor/signal lookup: treated as
	// transparent (§7), not a refusal.
	assert.True(t, sig81.pathFree([]int{9999}, false))
}
