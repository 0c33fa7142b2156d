package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ts2/railctl/internal/geometry"
)

func straightRail(pos geometry.Position, dir geometry.Direction, length int) []geometry.Rail {
	return []geometry.Rail{{Length: length, StartPosition: pos, IncomingDirection: dir}}
}

// buildLinear builds Sig_80 -> Sen_1 -> Sig_81 -> Sen_2 -> Sig_82, the
// topology used throughout §8's scenarios.
func buildLinear(t *testing.T) (*Topology, map[string]int) {
	t.Helper()
	b := NewBuilder()
	sig80, err := b.AddSignal(80, geometry.NewPosition(0, 0, 0, geometry.North))
	require.NoError(t, err)
	sen1, err := b.AddSensor(1, geometry.NewPosition(1, 0, 0, geometry.North))
	require.NoError(t, err)
	sig81, err := b.AddSignal(81, geometry.NewPosition(2, 0, 0, geometry.North))
	require.NoError(t, err)
	sen2, err := b.AddSensor(2, geometry.NewPosition(3, 0, 0, geometry.North))
	require.NoError(t, err)
	sig82, err := b.AddSignal(82, geometry.NewPosition(4, 0, 0, geometry.North))
	require.NoError(t, err)

	require.NoError(t, b.Connect(sig80, sen1, straightRail(geometry.NewPosition(0, 0, 0, geometry.North), geometry.East, 1)))
	require.NoError(t, b.Connect(sen1, sig81, straightRail(geometry.NewPosition(1, 0, 0, geometry.North), geometry.East, 1)))
	require.NoError(t, b.Connect(sig81, sen2, straightRail(geometry.NewPosition(2, 0, 0, geometry.North), geometry.East, 1)))
	require.NoError(t, b.Connect(sen2, sig82, straightRail(geometry.NewPosition(3, 0, 0, geometry.North), geometry.East, 1)))

	topo, err := b.Build()
	require.NoError(t, err)

	return topo, map[string]int{"sig80": sig80, "sen1": sen1, "sig81": sig81, "sen2": sen2, "sig82": sig82}
}

func TestBuilderRefusesOverfullSlots(t *testing.T) {
	b := NewBuilder()
	sen, _ := b.AddSensor(1, geometry.Position{})
	sigA, _ := b.AddSignal(10, geometry.Position{})
	sigB, _ := b.AddSignal(11, geometry.Position{})

	require.NoError(t, b.Connect(sigA, sen, nil))
	// sen already has a free incoming slot used; a second incoming connect
	// must be refused (Sensor has at most one incoming edge).
	err := b.Connect(sigB, sen, nil)
	assert.ErrorIs(t, err, ErrInvalidNeighborSlot)
}

func TestSwitchSlotLimits(t *testing.T) {
	b := NewBuilder()
	sw, _ := b.AddSwitch(1, geometry.Position{}, TwoInOneOut)
	inA, _ := b.AddSensor(1, geometry.Position{})
	inB, _ := b.AddSensor(2, geometry.Position{})
	inC, _ := b.AddSensor(3, geometry.Position{})
	out, _ := b.AddSensor(4, geometry.Position{})

	require.NoError(t, b.Connect(inA, sw, nil))
	require.NoError(t, b.Connect(inB, sw, nil))
	assert.ErrorIs(t, b.Connect(inC, sw, nil), ErrInvalidNeighborSlot)
	require.NoError(t, b.Connect(sw, out, nil))
}

func TestBufferHasNoOutgoingSlot(t *testing.T) {
	b := NewBuilder()
	buf, _ := b.AddBuffer(geometry.Position{})
	sen, _ := b.AddSensor(1, geometry.Position{})
	assert.ErrorIs(t, b.Connect(buf, sen, nil), ErrInvalidNeighborSlot)
	require.NoError(t, b.Connect(sen, buf, nil))
}

func TestConnectBidirectionalAtomicRefusal(t *testing.T) {
	b := NewBuilder()
	aOut, aIn, _ := b.AddSensorBidirectional(1, geometry.Position{}, geometry.Position{})
	bIn, bOut, _ := b.AddSensorBidirectional(2, geometry.Position{}, geometry.Position{})
	// Fill bOut's single outgoing slot with an unrelated edge so the second
	// leg (bOut -> aIn) of ConnectBidirectional must fail.
	filler, _ := b.AddBuffer(geometry.Position{})
	require.NoError(t, b.Connect(bOut, filler, nil))

	err := b.ConnectBidirectional(aOut, aIn, bIn, bOut, nil)
	assert.ErrorIs(t, err, ErrInvalidNeighborSlot)

	// The first leg must have been rolled back: aOut must still be free.
	other, _ := b.AddBuffer(geometry.Position{})
	assert.NoError(t, b.Connect(aOut, other, nil))
}

func TestDuplicateAddressRefused(t *testing.T) {
	b := NewBuilder()
	_, err := b.AddSignal(5, geometry.Position{})
	require.NoError(t, err)
	_, err = b.AddSignal(5, geometry.Position{})
	assert.ErrorIs(t, err, ErrDuplicateAddress)
}

func TestBuildFreezesBuilder(t *testing.T) {
	b := NewBuilder()
	_, err := b.AddSensor(1, geometry.Position{})
	require.NoError(t, err)
	_, err = b.Build()
	require.NoError(t, err)

	_, err = b.AddSensor(2, geometry.Position{})
	assert.ErrorIs(t, err, ErrAlreadyBuilt)
}

func TestSwitchDefaultBranchInference(t *testing.T) {
	b := NewBuilder()
	sw, _ := b.AddSwitch(1, geometry.Position{}, TwoInOneOut)
	inA, _ := b.AddSensor(1, geometry.Position{})
	inB, _ := b.AddSensor(2, geometry.Position{})
	out, _ := b.AddSensor(3, geometry.Position{})
	require.NoError(t, b.Connect(inA, sw, nil))
	require.NoError(t, b.Connect(inB, sw, nil))
	require.NoError(t, b.Connect(sw, out, nil))

	topo, err := b.Build()
	require.NoError(t, err)
	node, ok := topo.Node(sw)
	require.True(t, ok)
	swv := node.Variant.(SwitchVariant)
	assert.Equal(t, inA, swv.DefaultBranchNeighbor, "unset default branch infers first 2-side neighbor")
}

func TestDiscoverBlockStopsAtSignals(t *testing.T) {
	topo, idx := buildLinear(t)
	// Undirected BFS from sig81 reaches sen1 and sen2 before hitting the
	// peer signals sig80/sig82 on either side (§4.4).
	sensors, peers, _ := topo.DiscoverBlock(idx["sig81"])
	assert.ElementsMatch(t, []int{idx["sen1"], idx["sen2"]}, sensors)
	assert.ElementsMatch(t, []int{idx["sig80"], idx["sig82"]}, peers)
}

func TestNearestSignalAhead(t *testing.T) {
	topo, idx := buildLinear(t)
	sig, ok := topo.NearestSignalAhead(idx["sen1"])
	require.True(t, ok)
	assert.Equal(t, idx["sig81"], sig, "reset_position at Sen_1 must request Sig_81, per §8 scenario 1")
}
