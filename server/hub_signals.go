package server

import (
	"encoding/json"
	"fmt"

	"github.com/ts2/railctl/internal/topology"
)

// signalsObject exposes per-signal state and the request_block entry point
// over the websocket, the interlocking analogue of the teacher's
// simulationObject "start"/"pause" verbs.
type signalsObject struct{}

func (s *signalsObject) dispatch(h *Hub, req Request, conn *connection) {
	ch := conn.pushChan
	if net == nil {
		ch <- NewErrorResponse(req.ID, fmt.Errorf("network not initialized"))
		return
	}
	switch req.Action {
	case "list":
		ch <- NewResponse(req.ID, listSignals())
	case "requestBlock":
		var p struct {
			Signal topology.SignalAddress `json:"signal"`
			Train  topology.TrainAddress  `json:"train"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			ch <- NewErrorResponse(req.ID, fmt.Errorf("unparsable request: %s", err))
			return
		}
		sig, ok := net.Signal(p.Signal)
		if !ok {
			ch <- NewErrorResponse(req.ID, fmt.Errorf("no signal at address %d", p.Signal))
			return
		}
		sig.RequestBlock(p.Train)
		ch <- NewOkResponse(req.ID, "request queued")
	default:
		ch <- NewErrorResponse(req.ID, fmt.Errorf("unknown action %s/%s", req.Object, req.Action))
	}
}

func init() { hub.objects["signals"] = new(signalsObject) }
