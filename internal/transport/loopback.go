package transport

import (
	"context"
	"sync"

	"github.com/ts2/railctl/internal/bus"
)

// LoopbackTransport is an in-memory CommandSink/EventSource double: sent
// commands are recorded (for test assertions and for cmd/railctl's demo
// mode), and test/demo code injects InboundEvents via Inject. It stands in
// for the real locodrive serial connector, which stays out of scope per §1.
type LoopbackTransport struct {
	mu      sync.Mutex
	inbound chan InboundEvent
	sent    []bus.Event
}

// NewLoopbackTransport returns a ready LoopbackTransport with an inbound
// queue of the given capacity.
func NewLoopbackTransport(capacity int) *LoopbackTransport {
	return &LoopbackTransport{inbound: make(chan InboundEvent, capacity)}
}

// Send implements CommandSink by recording e for later inspection.
func (l *LoopbackTransport) Send(ctx context.Context, e bus.Event) error {
	l.mu.Lock()
	l.sent = append(l.sent, e)
	l.mu.Unlock()
	return nil
}

// Sent returns a copy of every command recorded so far.
func (l *LoopbackTransport) Sent() []bus.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]bus.Event, len(l.sent))
	copy(out, l.sent)
	return out
}

// Inject enqueues an inbound report as if received from the physical
// layer. It blocks only if the inbound queue is full.
func (l *LoopbackTransport) Inject(ctx context.Context, ev InboundEvent) {
	select {
	case l.inbound <- ev:
	case <-ctx.Done():
	}
}

// Close stops the event source: the next Recv (and any blocked on the
// channel) observes Closed.
func (l *LoopbackTransport) Close() {
	close(l.inbound)
}

// Recv implements EventSource. It never reports Lagged — a loopback queue
// that would need to drop messages is a test/demo bug, not a transport
// condition worth simulating here.
func (l *LoopbackTransport) Recv(ctx context.Context) (InboundEvent, error) {
	select {
	case ev, ok := <-l.inbound:
		if !ok {
			return InboundEvent{}, Closed
		}
		return ev, nil
	case <-ctx.Done():
		return InboundEvent{}, ctx.Err()
	}
}
