package signaling

import (
	"context"

	"github.com/ts2/railctl/internal/bus"
	"github.com/ts2/railctl/internal/resources"
	"github.com/ts2/railctl/internal/topology"
)

// Run subscribes to the bus and keeps the interlocking reacting to sensor
// events until ctx is cancelled: a sensor becoming Occupied cascades into
// its bounding signals' TriggerUpdate, and a sensor becoming Free re-runs
// Update on the signals that might now have a servable requester.
//
// SwitchAck is deliberately not handled here: it is applied to the Switch
// resource directly at the event-source boundary (internal/transport's
// Connector), which then publishes SwitchAck onto the bus purely for
// observability (audit/metrics). Re-applying it here off the bus would feed
// Switch.Ack's own publish back into itself and spin forever.
func (n *Network) Run(ctx context.Context) {
	sub := n.bus.Subscribe()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub.Events():
			n.dispatch(ev)
		}
	}
}

func (n *Network) dispatch(ev bus.Event) {
	switch ev.Kind {
	case bus.TrainOnSensor:
		n.cascadeToPeers(ev.Sensor, resources.Occupied)
	case bus.UpdateSensor:
		if ev.Level == bus.LevelFree {
			n.cascadeToPeers(ev.Sensor, resources.Free)
			n.updatePeers(ev.Sensor)
		}
	}
}

// signalsGuarding returns every Signal whose block_sensors contains any
// node index sharing sensorAddr.
func (n *Network) signalsGuarding(sensorAddr topology.SensorAddress) []*Signal {
	var out []*Signal
	indices := make(map[int]bool)
	for _, idx := range n.topo.IndicesForSensor(sensorAddr) {
		indices[idx] = true
	}
	for _, s := range n.signalsByIndex {
		for _, idx := range s.blockSensors {
			if indices[idx] {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// cascadeToPeers folds trigger into the status of every signal whose block
// contains sensorAddr (§4.7 trigger_update).
func (n *Network) cascadeToPeers(sensorAddr topology.SensorAddress, trigger resources.Status) {
	for _, s := range n.signalsGuarding(sensorAddr) {
		s.TriggerUpdate(trigger)
	}
}

// updatePeers re-runs try_grant (via Update) on every signal guarding
// sensorAddr, serving any requester that can now proceed (§4.7 update()).
func (n *Network) updatePeers(sensorAddr topology.SensorAddress) {
	for _, s := range n.signalsGuarding(sensorAddr) {
		s.Update()
	}
}
