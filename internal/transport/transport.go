// Package transport defines the abstract boundary to the physical track
// (§1/§6): a CommandSink for outbound throttle/switch/power messages and an
// EventSource for inbound sensor-level and switch-ack reports. The real
// byte-framed serial protocol to a command station (locodrive, in
// original_source/control/connectors/locodrive_connector.rs) is explicitly
// out of scope per §1 — only the two endpoints it would sit behind are
// specified here.
package transport

import (
	"context"

	"github.com/ts2/railctl/internal/bus"
	"github.com/ts2/railctl/internal/topology"
)

// CommandSink is the single async send method of §6: outbound TrainSpeed,
// Switch, and RailOn/RailOff messages are pushed through it. Errors are
// silently dropped at this layer per §7 ("Transport errors ... logged
// best-effort, not retried inside the core").
type CommandSink interface {
	Send(ctx context.Context, e bus.Event) error
}

// EventKind distinguishes the two inbound report shapes an EventSource
// produces (§6): a sensor-level change, or a switch acknowledgement.
type EventKind int

const (
	EventUpdateSensor EventKind = iota
	EventSwitchAck
)

// InboundEvent is one (kind, payload) pair recv'd from the event source.
type InboundEvent struct {
	Kind   EventKind
	Sensor topology.SensorAddress
	Level  bus.SensorLevel
	Switch topology.SwitchAddress
	Branch topology.Branch
}

// Closed is returned by Recv to signal the event source has terminated the
// connector loop (§6).
var Closed = &closedError{}

type closedError struct{}

func (*closedError) Error() string { return "transport: event source closed" }

// Lagged is returned by Recv when the connector has fallen behind its
// source and dropped intermediate reports. §7/§9 leave the exact re-probe
// scope for a Lagged condition an open question beyond the one case this
// spec resolves (internal/bus's own subscriber lag); Connector here reacts
// to a Lagged InboundEvent by re-issuing the single most recently pending
// recv, per §6's "a Lagged return triggers a single re-issue of the most
// recently pending request".
var Lagged = &laggedError{}

type laggedError struct{}

func (*laggedError) Error() string { return "transport: event source lagged" }

// EventSource is the async recv() of §6.
type EventSource interface {
	Recv(ctx context.Context) (InboundEvent, error)
}
