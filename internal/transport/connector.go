package transport

import (
	"context"

	log "gopkg.in/inconshreveable/log15.v2"

	"github.com/ts2/railctl/internal/bus"
	"github.com/ts2/railctl/internal/signaling"
)

var logger log.Logger

// InitializeLogger creates the logger for the transport module, matching
// the teacher's per-package InitializeLogger(parent) convention.
func InitializeLogger(parent log.Logger) {
	logger = parent.New("module", "transport")
}

// Connector pumps inbound reports from an EventSource into the Network's
// Sensor/Switch resources, and fans outbound bus events to a CommandSink.
// It is the one place the abstract transport boundary (§1/§6) touches live
// element state.
type Connector struct {
	net    *signaling.Network
	source EventSource
	sink   CommandSink
	b      *bus.Bus
}

// NewConnector wires source/sink to net's resources and b's outbound
// publications.
func NewConnector(net *signaling.Network, b *bus.Bus, source EventSource, sink CommandSink) *Connector {
	return &Connector{net: net, source: source, sink: sink, b: b}
}

// RunInbound loops Recv until ctx is cancelled or the source reports Closed
// (§6). A Lagged report triggers exactly one re-issue of the pending recv
// before the loop continues, per §6/§9; it is not itself treated as fatal.
func (c *Connector) RunInbound(ctx context.Context) {
	for {
		ev, err := c.source.Recv(ctx)
		switch err {
		case nil:
			c.applyInbound(ev)
		case Closed:
			if logger != nil {
				logger.Info("event source closed, stopping connector", "submodule", "transport")
			}
			return
		case Lagged:
			if logger != nil {
				logger.Debug("event source lagged, re-probing", "submodule", "transport")
			}
			ev, err = c.source.Recv(ctx)
			if err == nil {
				c.applyInbound(ev)
			}
		default:
			if ctx.Err() != nil {
				return
			}
			if logger != nil {
				logger.Warn("event source recv error", "submodule", "transport", "error", err)
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (c *Connector) applyInbound(ev InboundEvent) {
	switch ev.Kind {
	case EventUpdateSensor:
		for _, idx := range c.net.Topology().IndicesForSensor(ev.Sensor) {
			if sen, ok := c.net.Sensor(idx); ok {
				sen.SetLevel(ev.Level)
			}
		}
		c.b.Publish(bus.Event{Kind: bus.UpdateSensor, Sensor: ev.Sensor, Level: ev.Level})
	case EventSwitchAck:
		for _, idx := range c.net.Topology().IndicesForSwitch(ev.Switch) {
			if sw, ok := c.net.Switch(idx); ok {
				sw.Ack(ev.Branch)
			}
		}
	}
}

// RunOutbound subscribes to the bus and forwards every outbound-shaped
// event (RailOn/RailOff, TrainSpeed, SwitchCommand) to the CommandSink,
// until ctx is cancelled. Send errors are dropped per §7 — this layer does
// not retry.
func (c *Connector) RunOutbound(ctx context.Context) {
	sub := c.b.Subscribe()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if !isOutbound(ev.Kind) {
				continue
			}
			if err := c.sink.Send(ctx, ev); err != nil && logger != nil {
				logger.Debug("command sink send failed, dropping", "submodule", "transport", "error", err)
			}
		}
	}
}

func isOutbound(k bus.Kind) bool {
	switch k {
	case bus.RailOn, bus.RailOff, bus.TrainSpeed, bus.SwitchCommand:
		return true
	default:
		return false
	}
}
