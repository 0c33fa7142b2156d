package resources

import (
	"sync"

	"github.com/ts2/railctl/internal/bus"
	"github.com/ts2/railctl/internal/topology"
)

// Switch is a movable point's command/acknowledge state (§4.9). A grant
// commands the branch a granted signal requires; acknowledgement arrives
// asynchronously off the event source. No signal kind waits for the
// acknowledgement before granting — see SPEC_FULL.md's recorded
// open-question resolution.
type Switch struct {
	mu sync.Mutex

	addr topology.SwitchAddress
	bus  *bus.Bus

	commanded    topology.Branch
	acknowledged bool
}

// NewSwitch constructs a Switch defaulting to Straight, acknowledged.
func NewSwitch(addr topology.SwitchAddress, b *bus.Bus) *Switch {
	return &Switch{addr: addr, bus: b, commanded: topology.Straight, acknowledged: true}
}

// Address returns the switch's address.
func (w *Switch) Address() topology.SwitchAddress { return w.addr }

// Commanded returns the last-commanded branch and whether it has been
// acknowledged.
func (w *Switch) Commanded() (topology.Branch, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.commanded, w.acknowledged
}

// Command issues a new branch command if it differs from the one already in
// effect, publishing SwitchCommand for the event sink to carry out. A
// command to the already-commanded, already-acknowledged branch is a no-op
// (idempotent re-grant).
func (w *Switch) Command(branch topology.Branch) {
	w.mu.Lock()
	if w.commanded == branch && w.acknowledged {
		w.mu.Unlock()
		return
	}
	w.commanded = branch
	w.acknowledged = false
	w.mu.Unlock()

	w.bus.Publish(bus.Event{Kind: bus.SwitchCommand, Switch: w.addr, Branch: branch})
}

// Ack records the event source's acknowledgement of the last command
// (§4.9's ack_switch_state): a matching branch is recorded acknowledged; a
// mismatched one is stale, so the command is re-emitted rather than
// accepted, to bring the event source back in line with what is actually
// commanded.
func (w *Switch) Ack(branch topology.Branch) {
	w.mu.Lock()
	commanded := w.commanded
	if commanded != branch {
		w.mu.Unlock()
		w.Command(commanded)
		return
	}
	w.acknowledged = true
	w.mu.Unlock()

	w.bus.Publish(bus.Event{Kind: bus.SwitchAck, Switch: w.addr, Branch: branch})
}
