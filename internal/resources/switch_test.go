package resources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ts2/railctl/internal/bus"
	"github.com/ts2/railctl/internal/topology"
)

func TestSwitchDefaultsStraightAcknowledged(t *testing.T) {
	w := NewSwitch(1, bus.New())
	branch, ack := w.Commanded()
	assert.Equal(t, topology.Straight, branch)
	assert.True(t, ack)
}

func TestSwitchCommandPublishesAndClearsAck(t *testing.T) {
	b := bus.New()
	sub := b.Subscribe()
	defer sub.Close()

	w := NewSwitch(1, b)
	w.Command(topology.Curved)

	branch, ack := w.Commanded()
	assert.Equal(t, topology.Curved, branch)
	assert.False(t, ack)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, bus.SwitchCommand, ev.Kind)
		assert.Equal(t, topology.Curved, ev.Branch)
	default:
		t.Fatal("expected SwitchCommand event")
	}
}

func TestSwitchCommandSameBranchIdempotent(t *testing.T) {
	b := bus.New()
	w := NewSwitch(1, b)
	w.Command(topology.Straight) // already straight and acknowledged: no-op
	_, ack := w.Commanded()
	assert.True(t, ack)
}

func TestSwitchAckMismatchReissuesCommand(t *testing.T) {
	b := bus.New()
	sub := b.Subscribe()
	defer sub.Close()

	w := NewSwitch(1, b)
	w.Command(topology.Curved)
	<-sub.Events() // drain the initial SwitchCommand from Command above

	w.Ack(topology.Straight) // stale: doesn't match the currently-commanded branch
	_, ack := w.Commanded()
	assert.False(t, ack, "a mismatched ack must not mark the switch acknowledged")

	select {
	case ev := <-sub.Events():
		assert.Equal(t, bus.SwitchCommand, ev.Kind, "a mismatched ack re-emits the command (§4.9)")
		assert.Equal(t, topology.Curved, ev.Branch)
	default:
		t.Fatal("expected the command to be re-issued")
	}

	w.Ack(topology.Curved)
	_, ack = w.Commanded()
	assert.True(t, ack)
}

func TestSwitchAckMatching(t *testing.T) {
	require := require.New(t)
	w := NewSwitch(1, bus.New())
	w.Command(topology.Curved)
	w.Ack(topology.Curved)
	branch, ack := w.Commanded()
	require.Equal(topology.Curved, branch)
	require.True(ack)
}
