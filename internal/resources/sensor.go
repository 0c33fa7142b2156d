package resources

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/ts2/railctl/internal/bus"
	"github.com/ts2/railctl/internal/topology"
)

// Sensor is the occupancy-detector state machine of §4.3. Transitions are
// driven by two independent inputs: a physical level report (SetLevel) and
// reservation calls (Block) made by signals and the train controller. A
// mutex guards the whole struct, matching the per-field-locked audit state
// convention the rest of this codebase follows for small, hot structs.
type Sensor struct {
	mu sync.Mutex

	addr  topology.SensorAddress
	bus   *bus.Bus
	clock clock.Clock

	status       Status
	level        bus.SensorLevel
	currentTrain *topology.TrainAddress

	freeGrace time.Duration
	graceSeq  uint64 // invalidates a stale pending grace timer

	group errgroup.Group // supervises in-flight grace-timer tasks
}

// NewSensor constructs a Sensor in its Free/LevelFree initial state.
// freeGrace is the debounce window held between a level going physically
// free and the sensor itself reporting Free (§4.3's "grace timer").
func NewSensor(addr topology.SensorAddress, b *bus.Bus, clk clock.Clock, freeGrace time.Duration) *Sensor {
	return &Sensor{
		addr:      addr,
		bus:       b,
		clock:     clk,
		status:    Free,
		level:     bus.LevelFree,
		freeGrace: freeGrace,
	}
}

// Address returns the sensor's address.
func (s *Sensor) Address() topology.SensorAddress { return s.addr }

// Status returns the sensor's current status.
func (s *Sensor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// CurrentTrain returns the train currently holding the sensor, if any.
func (s *Sensor) CurrentTrain() (topology.TrainAddress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentTrain == nil {
		return 0, false
	}
	return *s.currentTrain, true
}

// Block attempts to reserve the sensor for train. It succeeds from Free or
// PathFree (promoting to Reserved), is idempotent when the sensor is already
// Reserved for the same train, and refuses otherwise — including whenever
// the sensor is Occupied, regardless of which train asks (§4.3).
func (s *Sensor) Block(train topology.TrainAddress) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case Free, PathFree:
		s.status = Reserved
		s.currentTrain = &train
		return true
	case Reserved:
		if s.currentTrain != nil && *s.currentTrain == train {
			return true
		}
		return false
	default: // Occupied
		return false
	}
}

// MarkPathFree soft-claims a Free sensor on behalf of a Path-mode lookahead
// segment (§4.7/§4.8): the sensor is reported PathFree, which still counts
// as available to a Block-kind signal's free_road check, but records which
// train is tentatively routed through it.
func (s *Sensor) MarkPathFree(train topology.TrainAddress) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case Free:
		s.status = PathFree
		s.currentTrain = &train
		return true
	case PathFree:
		return s.currentTrain != nil && *s.currentTrain == train
	default:
		return false
	}
}

// ClearPathFree releases a soft PathFree claim without ever having been
// Occupied (the lookahead train changed its mind or replanned).
func (s *Sensor) ClearPathFree(train topology.TrainAddress) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == PathFree && s.currentTrain != nil && *s.currentTrain == train {
		s.status = Free
		s.currentTrain = nil
		return true
	}
	return false
}

// SetLevel reports a new physical occupancy reading, driving the level-
// triggered half of the state machine (§4.3):
//
//	Reserved -> Occupied on LevelOccupied (publishes TrainOnSensor)
//	Occupied -> Reserved on LevelFree, arming a grace timer; if the level
//	  does not flip back to Occupied before the timer fires, the sensor
//	  drops to Free and cascades a best-effort UpdateSensor publish so
//	  blocked signals re-evaluate.
func (s *Sensor) SetLevel(level bus.SensorLevel) {
	s.mu.Lock()
	s.level = level

	switch level {
	case bus.LevelOccupied:
		s.graceSeq++ // invalidate any pending grace timer
		if s.status == Reserved {
			s.status = Occupied
			train := s.currentTrain
			s.mu.Unlock()
			if train != nil {
				s.bus.Publish(bus.Event{Kind: bus.TrainOnSensor, Sensor: s.addr, Train: *train, Level: level})
			}
			return
		}
		s.mu.Unlock()

	case bus.LevelFree:
		if s.status == Occupied {
			s.status = Reserved
			s.graceSeq++
			seq := s.graceSeq
			grace := s.freeGrace
			s.mu.Unlock()
			s.armGrace(seq, grace)
			return
		}
		s.mu.Unlock()
	}
}

// armGrace schedules the debounce timer for sequence seq; if SetLevel races
// ahead of it (graceSeq has moved on), the fire is a no-op. The one-shot
// wait is run under the sensor's errgroup so Wait can block on every
// pending grace timer draining before the sensor is torn down.
func (s *Sensor) armGrace(seq uint64, grace time.Duration) {
	t := s.clock.Timer(grace)
	s.group.Go(func() error {
		<-t.C
		s.fireGrace(seq)
		return nil
	})
}

// Wait blocks until every in-flight grace timer this sensor has armed has
// fired (or been superseded) and returned, draining the sensor's background
// tasks on shutdown.
func (s *Sensor) Wait() error {
	return s.group.Wait()
}

func (s *Sensor) fireGrace(seq uint64) {
	s.mu.Lock()
	if s.graceSeq != seq || s.status != Reserved {
		s.mu.Unlock()
		return
	}
	s.status = Free
	s.currentTrain = nil
	s.mu.Unlock()

	s.bus.Publish(bus.Event{Kind: bus.UpdateSensor, Sensor: s.addr, Level: bus.LevelFree})
}
