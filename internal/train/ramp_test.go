package train

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ts2/railctl/internal/bus"
	"github.com/ts2/railctl/internal/topology"
)

func newRampController(t *testing.T, accel uint8) (*Controller, *bus.Bus, *clock.Mock) {
	t.Helper()
	net, _, b, mock := newLinearNetwork(t)
	c := NewController(1, net, nil, b, mock).WithAcceleration(accel)
	return c, b, mock
}

func TestStepTowardAccelerates(t *testing.T) {
	next := stepToward(topology.Speed{Tier: topology.Stop}, topology.Drive(20), 5)
	assert.Equal(t, topology.Drive(5), next)
}

func TestStepTowardSaturatesFinalStep(t *testing.T) {
	next := stepToward(topology.Drive(18), topology.Drive(20), 5)
	assert.Equal(t, topology.Drive(20), next)
}

func TestStepTowardDeceleratesWithoutUndershoot(t *testing.T) {
	next := stepToward(topology.Drive(22), topology.Drive(20), 5)
	assert.Equal(t, topology.Drive(20), next)

	next = stepToward(topology.Drive(30), topology.Drive(20), 5)
	assert.Equal(t, topology.Drive(25), next)
}

func TestStepTowardDeceleratesToStop(t *testing.T) {
	next := stepToward(topology.Drive(3), topology.Speed{Tier: topology.Stop}, 5)
	assert.Equal(t, topology.Speed{Tier: topology.Stop}, next)
}

func TestSetSpeedRampsToTarget(t *testing.T) {
	c, _, mock := newRampController(t, 5)

	c.SetSpeed(topology.Drive(20))
	for i := 0; i < 10 && c.LiveSpeed() != topology.Drive(20); i++ {
		mock.Add(rampTickInterval)
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, topology.Drive(20), c.LiveSpeed())
}

func TestSetSpeedPublishesTrainSpeedEvents(t *testing.T) {
	c, b, mock := newRampController(t, 20)
	sub := b.Subscribe()
	defer sub.Close()

	c.SetSpeed(topology.Drive(20))
	mock.Add(rampTickInterval)

	require.Eventually(t, func() bool { return c.LiveSpeed() == topology.Drive(20) }, 100*time.Millisecond, time.Millisecond)

	var saw bool
	for i := 0; i < 8; i++ {
		select {
		case ev := <-sub.Events():
			if ev.Kind == bus.TrainSpeed && ev.Train == 1 && ev.Speed == topology.Drive(20) {
				saw = true
			}
		default:
		}
	}
	assert.True(t, saw, "expected a TrainSpeed event at the new speed")
}

func TestEmergencyStopPreemptsInFlightRamp(t *testing.T) {
	c, _, mock := newRampController(t, 1) // slow ramp so it's still in flight

	c.SetSpeed(topology.Drive(100))
	mock.Add(rampTickInterval)
	require.Eventually(t, func() bool { return c.LiveSpeed().Level > 0 }, 100*time.Millisecond, time.Millisecond)

	c.SetSpeed(topology.Speed{Tier: topology.EmergencyStop})
	assert.Equal(t, topology.Speed{Tier: topology.EmergencyStop}, c.LiveSpeed(), "EmergencyStop applies immediately, no ramp")
}

func TestSetSpeedCancelsPriorRamp(t *testing.T) {
	c, _, mock := newRampController(t, 5)

	c.SetSpeed(topology.Drive(100))
	mock.Add(rampTickInterval)
	require.Eventually(t, func() bool { return c.LiveSpeed().Level > 0 }, 100*time.Millisecond, time.Millisecond)

	// Redirect toward a lower target before the first ramp finishes.
	c.SetSpeed(topology.Drive(10))
	for i := 0; i < 10 && c.LiveSpeed() != topology.Drive(10); i++ {
		mock.Add(rampTickInterval)
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, topology.Drive(10), c.LiveSpeed())
}
