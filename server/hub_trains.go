package server

import (
	"encoding/json"
	"fmt"

	"github.com/ts2/railctl/internal/topology"
)

// trainsObject drives the per-train Controller: plan a route (driveTo),
// reset a position after manual placement (resetPosition), and report the
// live speed (speed) — the websocket equivalent of the HTTP
// /api/trains/{addr}, /drive and /reset endpoints.
type trainsObject struct{}

func (t *trainsObject) dispatch(h *Hub, req Request, conn *connection) {
	ch := conn.pushChan
	if registry == nil {
		ch <- NewErrorResponse(req.ID, fmt.Errorf("train registry not initialized"))
		return
	}
	switch req.Action {
	case "driveTo":
		var p struct {
			Train       topology.TrainAddress `json:"train"`
			From        int                   `json:"from"`
			Destination int                   `json:"destination"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			ch <- NewErrorResponse(req.ID, fmt.Errorf("unparsable request: %s", err))
			return
		}
		c, ok := registry.Get(p.Train)
		if !ok {
			ch <- NewErrorResponse(req.ID, fmt.Errorf("unknown train %d", p.Train))
			return
		}
		if err := c.TriggerDriveTo(p.From, p.Destination); err != nil {
			ch <- NewErrorResponse(req.ID, err)
			return
		}
		ch <- NewOkResponse(req.ID, "route planned")
	case "resetPosition":
		var p struct {
			Train topology.TrainAddress `json:"train"`
			Node  int                   `json:"node"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			ch <- NewErrorResponse(req.ID, fmt.Errorf("unparsable request: %s", err))
			return
		}
		c, ok := registry.Get(p.Train)
		if !ok {
			ch <- NewErrorResponse(req.ID, fmt.Errorf("unknown train %d", p.Train))
			return
		}
		granted := c.ResetPosition(p.Node)
		ch <- NewResponse(req.ID, map[string]interface{}{"granted": granted})
	case "speed":
		var p struct {
			Train topology.TrainAddress `json:"train"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			ch <- NewErrorResponse(req.ID, fmt.Errorf("unparsable request: %s", err))
			return
		}
		c, ok := registry.Get(p.Train)
		if !ok {
			ch <- NewErrorResponse(req.ID, fmt.Errorf("unknown train %d", p.Train))
			return
		}
		ch <- NewResponse(req.ID, map[string]interface{}{"speed": c.LiveSpeed().String(), "level": c.LiveSpeed().Level})
	default:
		ch <- NewErrorResponse(req.ID, fmt.Errorf("unknown action %s/%s", req.Object, req.Action))
	}
}

func init() { hub.objects["trains"] = new(trainsObject) }
