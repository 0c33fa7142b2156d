package train

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ts2/railctl/internal/topology"
)

// rampTickInterval is the ~10 ms step period of §4.10's cooperative ramp.
const rampTickInterval = 10 * time.Millisecond

// defaultAcceleration is the per-tick Drive-level step size; configurable
// per Controller via WithAcceleration.
const defaultAcceleration = 5

type rampTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// SetSpeed snapshots the current live speed, cancels any in-flight ramp,
// and either publishes EmergencyStop immediately or launches a new
// cooperative ramp toward target (§4.10). Because the previous ramp is
// always cancelled and awaited before launching the next, the ramp task is
// single-instance per train and the final outbound TrainSpeed always
// reflects the most recently requested target (§5).
func (c *Controller) SetSpeed(target topology.Speed) {
	c.mu.Lock()
	if c.ramp != nil {
		c.ramp.cancel()
		done := c.ramp.done
		c.mu.Unlock()
		<-done
		c.mu.Lock()
	}

	if target.Tier == topology.EmergencyStop {
		c.liveSpeed = target
		c.ramp = nil
		c.mu.Unlock()
		c.publishSpeed(target)
		return
	}

	start := c.liveSpeed
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.ramp = &rampTask{cancel: cancel, done: done}
	c.mu.Unlock()

	c.group.Go(func() error {
		c.runRamp(ctx, done, start, target)
		return nil
	})
}

func (c *Controller) runRamp(ctx context.Context, done chan struct{}, start, target topology.Speed) {
	defer close(done)

	ticker := c.clock.Ticker(rampTickInterval)
	defer ticker.Stop()

	current := start
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current = stepToward(current, target, c.acceleration)
			c.mu.Lock()
			c.liveSpeed = current
			c.mu.Unlock()
			c.publishSpeed(current)
			if current.Equal(target) {
				return
			}
		}
	}
}

// LiveSpeed returns the train's current speed.
func (c *Controller) LiveSpeed() topology.Speed {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveSpeed
}

// Wait blocks until every ramp task this controller has launched has
// returned, draining the train's background tasks on shutdown. A ramp
// already cancelled by a subsequent SetSpeed has already returned by the
// time that SetSpeed call completes, so only the most recent ramp (if
// still in flight) is ever actually waited on.
func (c *Controller) Wait() error {
	return c.group.Wait()
}

// stepToward computes one ramp tick's new speed, never overshooting
// target — the "saturating final step" of §4.10.
func stepToward(current, target topology.Speed, accel uint8) topology.Speed {
	if current.Equal(target) {
		return target
	}
	if target.Tier != topology.DriveTier {
		next := current.ClampedSub(accel)
		if !next.Less(target) {
			return next
		}
		return target
	}
	if current.Less(target) {
		return current.SaturatingAdd(accel, target.Level)
	}
	// current is a higher Drive level than target; step down without
	// undershooting it.
	if current.Tier != topology.DriveTier || int(current.Level)-int(accel) <= int(target.Level) {
		return target
	}
	return topology.Drive(current.Level - accel)
}
