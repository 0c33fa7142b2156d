// Package bus implements the single broadcast event bus of §4.6: inbound
// events from the event source are fanned out, components publish
// state-change messages, and delivery is best-effort — a lagging
// subscriber drops messages rather than stall the publisher (§5).
package bus

import (
	"sync"

	"github.com/ts2/railctl/internal/topology"
)

// Kind enumerates every message the bus carries (§4.6/§6).
type Kind int

const (
	RailOn Kind = iota
	RailOff
	TrainSpeed
	SwitchCommand
	SwitchAck
	UpdateSensor
	UpdateSignal
	TrainGranted
	TrainOnSensor
)

func (k Kind) String() string {
	switch k {
	case RailOn:
		return "RailOn"
	case RailOff:
		return "RailOff"
	case TrainSpeed:
		return "TrainSpeed"
	case SwitchCommand:
		return "Switch"
	case SwitchAck:
		return "SwitchAck"
	case UpdateSensor:
		return "UpdateSensor"
	case UpdateSignal:
		return "UpdateSignal"
	case TrainGranted:
		return "TrainGranted"
	case TrainOnSensor:
		return "TrainOnSensor"
	default:
		return "Unknown"
	}
}

// SensorLevel is the physical occupancy-detector reading (§3's "level").
type SensorLevel int

const (
	LevelFree SensorLevel = iota
	LevelOccupied
)

// Event is one message on the bus. Only the fields relevant to Kind are
// populated; the rest are zero.
type Event struct {
	Kind Kind

	Train  topology.TrainAddress
	Sensor topology.SensorAddress
	Signal topology.SignalAddress
	Switch topology.SwitchAddress

	Speed     topology.Speed
	Branch    topology.Branch
	Level     SensorLevel
	Aspect    string // human-facing projection, §4.6 supplemental feature
}

// subscriber is a lagging-tolerant mailbox: Publish never blocks on it.
type subscriber struct {
	ch chan Event
}

const subscriberBuffer = 64

// Bus is the process-wide broadcast channel. Zero value is not usable; use
// New.
type Bus struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[*subscriber]struct{})}
}

// Subscription is a handle returned by Subscribe; call Close to stop
// receiving and release the mailbox.
type Subscription struct {
	bus *Bus
	sub *subscriber
}

// Events returns the channel of events for this subscription.
func (s *Subscription) Events() <-chan Event { return s.sub.ch }

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if _, ok := s.bus.subs[s.sub]; ok {
		delete(s.bus.subs, s.sub)
		close(s.sub.ch)
	}
}

// Subscribe registers a new mailbox on the bus.
func (b *Bus) Subscribe() *Subscription {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return &Subscription{bus: b, sub: sub}
}

// Publish fans e out to every subscriber. A subscriber whose mailbox is
// full has its message dropped (best-effort delivery, §4.6/§5) rather than
// blocking the publisher or other subscribers.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
			// Lagging subscriber: drop. §7 "Bus lag" — the next
			// state-change publish supersedes this one.
		}
	}
}

// SubscriberCount reports the number of live subscriptions (diagnostic use).
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
