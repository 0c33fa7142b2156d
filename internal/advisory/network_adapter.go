package advisory

import (
	"github.com/ts2/railctl/internal/resources"
	"github.com/ts2/railctl/internal/signaling"
)

// NetworkSource adapts a *signaling.Network to the Source interface the
// Engine consumes, so the engine itself stays decoupled from the concrete
// interlocking type (and is exercisable against fakes in tests).
type NetworkSource struct {
	Net *signaling.Network
}

// Signals implements Source.
func (n NetworkSource) Signals() []SignalView {
	sigs := n.Net.Signals()
	out := make([]SignalView, len(sigs))
	for i, s := range sigs {
		out[i] = s
	}
	return out
}

// SensorStatus implements Source.
func (n NetworkSource) SensorStatus(node int) (resources.Status, bool) {
	sen, ok := n.Net.Sensor(node)
	if !ok {
		return 0, false
	}
	return sen.Status(), true
}
