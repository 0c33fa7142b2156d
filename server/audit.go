package server

import (
	"strconv"
	"sync"
	"time"

	"github.com/ts2/railctl/internal/bus"
)

// AuditEntry is a single audit log item sent to the web client.
type AuditEntry struct {
	ID        string                 `json:"id"`
	Timestamp string                 `json:"timestamp"`
	Event     string                 `json:"event"`
	Category  string                 `json:"category"`
	Severity  string                 `json:"severity"`
	Object    map[string]interface{} `json:"object"`
	Details   map[string]interface{} `json:"details"`
}

type auditState struct {
	mu          sync.RWMutex
	entries     []AuditEntry
	capacity    int
	nextID      int64
	subscribers map[chan AuditEntry]bool
}

var audits = &auditState{}

func init() {
	audits.capacity = 1000
	audits.entries = make([]AuditEntry, 0, audits.capacity)
	audits.subscribers = make(map[chan AuditEntry]bool)
}

func (a *auditState) append(entry AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	entry.ID = strconv.FormatInt(a.nextID, 10)
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if len(a.entries) == a.capacity {
		copy(a.entries[0:], a.entries[1:])
		a.entries[len(a.entries)-1] = entry
	} else {
		a.entries = append(a.entries, entry)
	}
	for ch := range a.subscribers {
		select {
		case ch <- entry:
		default:
			// Drop for a slow subscriber rather than block publishing.
		}
	}
}

func (a *auditState) subscribe() chan AuditEntry {
	ch := make(chan AuditEntry, 256)
	a.mu.Lock()
	a.subscribers[ch] = true
	a.mu.Unlock()
	return ch
}

func (a *auditState) unsubscribe(ch chan AuditEntry) {
	a.mu.Lock()
	delete(a.subscribers, ch)
	a.mu.Unlock()
	close(ch)
}

// getSince returns up to limit entries with ID strictly greater than sinceID.
func (a *auditState) getSince(sinceID int64, limit int) []AuditEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]AuditEntry, 0, limit)
	for i := 0; i < len(a.entries); i++ {
		id, _ := strconv.ParseInt(a.entries[i].ID, 10, 64)
		if id > sinceID {
			out = append(out, a.entries[i])
			if len(out) >= limit {
				break
			}
		}
	}
	return out
}

// recordAuditFromEvent converts a bus.Event into an AuditEntry and appends
// it to the ring buffer. Chatty, state-mirroring events (UpdateSensor,
// UpdateSignal) are skipped by default to keep the log readable; everything
// that reflects an interlocking decision (grants, switch commands/acks,
// rail power) is recorded.
func recordAuditFromEvent(e bus.Event) {
	entry := AuditEntry{
		Severity: "INFO",
		Object:   map[string]interface{}{},
		Details:  map[string]interface{}{},
	}
	switch e.Kind {
	case bus.TrainGranted:
		entry.Event = "TRAIN_GRANTED"
		entry.Category = "signal"
		entry.Object["signal"] = e.Signal
		entry.Object["train"] = e.Train
	case bus.RailOn:
		entry.Event = "RAIL_ON"
		entry.Category = "system"
		entry.Severity = "WARN"
	case bus.RailOff:
		entry.Event = "RAIL_OFF"
		entry.Category = "system"
		entry.Severity = "CRIT"
	case bus.SwitchCommand:
		entry.Event = "SWITCH_COMMANDED"
		entry.Category = "switch"
		entry.Object["switch"] = e.Switch
		entry.Details["branch"] = e.Branch.String()
	case bus.SwitchAck:
		entry.Event = "SWITCH_ACKED"
		entry.Category = "switch"
		entry.Object["switch"] = e.Switch
		entry.Details["branch"] = e.Branch.String()
	case bus.TrainSpeed:
		entry.Event = "TRAIN_SPEED"
		entry.Category = "train"
		entry.Object["train"] = e.Train
		entry.Details["speed"] = e.Speed.String()
		entry.Details["level"] = e.Speed.Level
	case bus.TrainOnSensor:
		entry.Event = "TRAIN_ON_SENSOR"
		entry.Category = "train"
		entry.Object["train"] = e.Train
		entry.Object["sensor"] = e.Sensor
	case bus.UpdateSensor, bus.UpdateSignal:
		return
	default:
		return
	}
	audits.append(entry)
}
