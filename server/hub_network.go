package server

import (
	"encoding/json"
	"fmt"

	"github.com/ts2/railctl/internal/resources"
)

// networkObject answers read-only questions about the frozen topology and
// live resource state, the railctl analogue of the teacher's
// simulationObject (hub_simulation.go) "dump"/"isStarted" style queries,
// rebuilt against signaling.Network instead of simulation.Simulation.
type networkObject struct{}

func (n *networkObject) dispatch(h *Hub, req Request, conn *connection) {
	ch := conn.pushChan
	logger.Debug("request for network received", "submodule", "hub", "action", req.Action)
	if net == nil {
		ch <- NewErrorResponse(req.ID, fmt.Errorf("network not initialized"))
		return
	}
	switch req.Action {
	case "overview":
		ch <- NewResponse(req.ID, buildSystemOverview())
	case "signals":
		ch <- NewResponse(req.ID, listSignals())
	case "sensor":
		var p struct {
			Node int `json:"node"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			ch <- NewErrorResponse(req.ID, fmt.Errorf("unparsable request: %s", err))
			return
		}
		sen, ok := net.Sensor(p.Node)
		if !ok {
			ch <- NewErrorResponse(req.ID, fmt.Errorf("no sensor at node %d", p.Node))
			return
		}
		ch <- NewResponse(req.ID, sensorStatusOut(sen))
	default:
		ch <- NewErrorResponse(req.ID, fmt.Errorf("unknown action %s/%s", req.Object, req.Action))
	}
}

func sensorStatusOut(sen *resources.Sensor) map[string]interface{} {
	out := map[string]interface{}{
		"address": sen.Address(),
		"status":  sen.Status().String(),
	}
	if train, ok := sen.CurrentTrain(); ok {
		out["train"] = train
	}
	return out
}

func init() { hub.objects["network"] = new(networkObject) }
