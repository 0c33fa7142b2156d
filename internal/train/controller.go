package train

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/ts2/railctl/internal/bus"
	"github.com/ts2/railctl/internal/signaling"
	"github.com/ts2/railctl/internal/topology"
)

// defaultLookahead is how many already-granted signals may lie ahead on the
// route before request_next_block stops requesting the next one (§4.10).
const defaultLookahead = 1

// Controller is the per-train state machine of §4.10: it owns the train's
// planned Route, its live speed, and drives sensor-triggered progression
// through the interlocking's request/grant protocol.
type Controller struct {
	mu sync.Mutex

	addr  topology.TrainAddress
	bus   *bus.Bus
	clock clock.Clock
	net   *signaling.Network

	planner      *Planner
	acceleration uint8
	lookahead    int

	liveSpeed topology.Speed
	ramp      *rampTask
	route     *Route

	group errgroup.Group // supervises in-flight ramp tasks (see ramp.go's Wait)
}

// NewController constructs a Controller at Stop with an empty route.
func NewController(addr topology.TrainAddress, net *signaling.Network, planner *Planner, b *bus.Bus, clk clock.Clock) *Controller {
	return &Controller{
		addr:         addr,
		bus:          b,
		clock:        clk,
		net:          net,
		planner:      planner,
		acceleration: defaultAcceleration,
		lookahead:    defaultLookahead,
		liveSpeed:    topology.Speed{Tier: topology.Stop},
	}
}

// WithAcceleration overrides the per-tick ramp step, returning c for
// chaining.
func (c *Controller) WithAcceleration(accel uint8) *Controller {
	c.mu.Lock()
	c.acceleration = accel
	c.mu.Unlock()
	return c
}

// WithLookahead overrides how many already-granted signals ahead stop
// further requests (default 1), returning c for chaining.
func (c *Controller) WithLookahead(n int) *Controller {
	c.mu.Lock()
	c.lookahead = n
	c.mu.Unlock()
	return c
}

// Address returns the train's address.
func (c *Controller) Address() topology.TrainAddress { return c.addr }

// Route returns the train's current route, or nil if none has been planned.
func (c *Controller) Route() *Route {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.route
}

// TriggerDriveTo plans a route from the train's current node to destination
// and immediately requests the first lookahead window of blocks along it
// (§4.10's trigger_drive_to).
func (c *Controller) TriggerDriveTo(from, destination int) error {
	route, err := c.planner.Plan(from, destination)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.route = route
	c.mu.Unlock()
	c.RequestNextBlock()
	return nil
}

// ResetPosition requests the nearest signal ahead of node so the train can
// be driven off without first calling trigger_drive_to (§4.10's
// reset_position). It does not record node as a position and leaves the
// train's route unchanged. It reports whether that nearest signal
// immediately granted.
func (c *Controller) ResetPosition(node int) bool {
	sigIdx, ok := c.net.Topology().NearestSignalAhead(node)
	if !ok {
		return false
	}
	sig, ok := c.net.SignalAt(sigIdx)
	if !ok {
		return false
	}
	sig.RequestBlock(c.addr)
	return c.holdsGrant(sig)
}

// SensorEntered reports that the train has physically reached
// sensorNode — the next sensor/station the route expects — and advances
// the route past it, then extends the lookahead window (§4.10's
// sensor_entered). Once the route empties, it is cleared to nil: the
// train has arrived and there is nothing left to request ahead of it.
func (c *Controller) SensorEntered(sensorNode int) {
	c.mu.Lock()
	route := c.route
	c.mu.Unlock()
	if route == nil {
		return
	}
	next, ok := route.NextSensor(c.net.Topology())
	if !ok || next != sensorNode {
		return
	}
	route.PopThrough(sensorNode)

	if route.Empty() {
		c.mu.Lock()
		if c.route == route {
			c.route = nil
		}
		c.mu.Unlock()
		return
	}
	c.RequestNextBlock()
}

// RequestNextBlock looks one ungranted signal ahead on the route (bounded
// by the lookahead window already granted) and requests it, if the window
// isn't already full (§4.10's request_next_block). Idempotent: a signal
// already queued or granted ignores a repeat request (Signal.RequestBlock).
func (c *Controller) RequestNextBlock() {
	c.mu.Lock()
	route := c.route
	lookahead := c.lookahead
	c.mu.Unlock()
	if route == nil {
		return
	}

	sigIdx, grantedAhead, ok := route.NextUngranted(c.net.Topology())
	if !ok || grantedAhead >= lookahead {
		return
	}
	sig, ok := c.net.SignalAt(sigIdx)
	if !ok {
		return
	}
	sig.RequestBlock(c.addr)
	if c.holdsGrant(sig) {
		c.DriveOk(sigIdx)
	}
}

// DriveOk marks the route's signal entry at signalIndex as granted and
// re-runs request_next_block to fill the lookahead window further
// (§4.10's drive_ok, normally invoked off a TrainGranted bus event by Run).
func (c *Controller) DriveOk(signalIndex int) {
	c.mu.Lock()
	route := c.route
	c.mu.Unlock()
	if route == nil {
		return
	}
	route.MarkGranted(signalIndex)
	c.RequestNextBlock()
}

func (c *Controller) holdsGrant(sig *signaling.Signal) bool {
	for _, t := range sig.GrantedTrains() {
		if t == c.addr {
			return true
		}
	}
	return false
}

// Run subscribes to the bus and drives sensor_entered/drive_ok off
// TrainOnSensor/TrainGranted events addressed to this train, until ctx is
// cancelled. A transport/UI layer that already knows node indices directly
// can call SensorEntered/DriveOk itself instead; Run is the convenience
// wiring for the common case.
func (c *Controller) Run(ctx context.Context) {
	sub := c.bus.Subscribe()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			c.handle(ev)
		}
	}
}

func (c *Controller) handle(ev bus.Event) {
	switch ev.Kind {
	case bus.TrainGranted:
		if ev.Train != c.addr {
			return
		}
		if sig, ok := c.net.Signal(ev.Signal); ok {
			c.DriveOk(sig.NodeIndex())
		}
	case bus.TrainOnSensor:
		if ev.Train != c.addr {
			return
		}
		c.mu.Lock()
		route := c.route
		c.mu.Unlock()
		if route == nil {
			return
		}
		next, ok := route.NextSensor(c.net.Topology())
		if !ok {
			return
		}
		node, ok := c.net.Topology().Node(next)
		if !ok {
			return
		}
		addr, ok := node.SensorAddress()
		if !ok || addr != ev.Sensor {
			return
		}
		c.SensorEntered(next)
	}
}

func (c *Controller) publishSpeed(speed topology.Speed) {
	c.bus.Publish(bus.Event{Kind: bus.TrainSpeed, Train: c.addr, Speed: speed})
}
