package resources

import (
	"sync"

	"github.com/ts2/railctl/internal/topology"
)

// Crossing is the mutual-exclusion resource tying a physical level
// crossing's two independent tracks together (§3 Cross node variant): the
// spec ties the two node handles together at lookup time but does not
// otherwise detail a crossing state machine, so this is the minimal
// interpretation — at most one track's train may hold the crossing at a
// time, the same shape as a Sensor's single-occupant reservation but
// without a level/grace distinction, since a crossing has no sensor of its
// own.
type Crossing struct {
	mu sync.Mutex

	addr       topology.CrossingAddress
	occupiedBy *topology.TrainAddress
}

// NewCrossing constructs an unclaimed Crossing.
func NewCrossing(addr topology.CrossingAddress) *Crossing {
	return &Crossing{addr: addr}
}

// Address returns the crossing's address.
func (c *Crossing) Address() topology.CrossingAddress { return c.addr }

// Claim reserves the crossing for train. It succeeds if unclaimed or
// already claimed by the same train (idempotent), and refuses otherwise.
func (c *Crossing) Claim(train topology.TrainAddress) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.occupiedBy == nil {
		c.occupiedBy = &train
		return true
	}
	return *c.occupiedBy == train
}

// Release frees the crossing if train currently holds it.
func (c *Crossing) Release(train topology.TrainAddress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.occupiedBy != nil && *c.occupiedBy == train {
		c.occupiedBy = nil
	}
}

// Occupied reports whether the crossing is currently claimed, and by whom.
func (c *Crossing) Occupied() (topology.TrainAddress, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.occupiedBy == nil {
		return 0, false
	}
	return *c.occupiedBy, true
}
