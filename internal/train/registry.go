package train

import (
	"sync"

	"github.com/ts2/railctl/internal/signaling"
	"github.com/ts2/railctl/internal/topology"
)

// Registry is the fleet-wide lookup the interlocking and planner need into
// individual trains: it implements both signaling.RouteLookup (a Path-mode
// try_grant asking "what is train t's next segment past signal S") and
// SpeedLookup (the planner asking "is the train sitting on this sensor
// stopped or moving"). Wiring one Registry into Network.SetRouteLookup and
// NewPlannerFromNetwork is what lets §4.8/§4.5 see live train state instead
// of treating every train as opaque.
type Registry struct {
	mu          sync.RWMutex
	controllers map[topology.TrainAddress]*Controller
}

// NewRegistry returns an empty train registry.
func NewRegistry() *Registry {
	return &Registry{controllers: make(map[topology.TrainAddress]*Controller)}
}

// Add registers c, replacing any prior controller for the same train.
func (r *Registry) Add(c *Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.controllers[c.Address()] = c
}

// Remove unregisters a train (e.g. once it has left the layout).
func (r *Registry) Remove(addr topology.TrainAddress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.controllers, addr)
}

// Get returns the registered Controller for a train.
func (r *Registry) Get(addr topology.TrainAddress) (*Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.controllers[addr]
	return c, ok
}

// RouteFor implements signaling.RouteLookup.
func (r *Registry) RouteFor(train topology.TrainAddress) (signaling.RouteView, bool) {
	c, ok := r.Get(train)
	if !ok {
		return nil, false
	}
	route := c.Route()
	if route == nil {
		return nil, false
	}
	return route, true
}

// SpeedOf implements SpeedLookup.
func (r *Registry) SpeedOf(train topology.TrainAddress) (topology.Speed, bool) {
	c, ok := r.Get(train)
	if !ok {
		return topology.Speed{}, false
	}
	return c.LiveSpeed(), true
}
