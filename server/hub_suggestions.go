package server

import (
	"encoding/json"
	"fmt"
	"time"
)

// suggestionsObject exposes internal/advisory's non-binding Engine over the
// websocket: list/reject/recompute, verbs taken from the teacher's
// suggestionsObject that dispatched against simulation.RecomputeSuggestions
// et al, rebound to the railctl advisory domain. There is no "accept"
// action (it gets the unknown-action error): unlike ts2's route suggestions,
// railctl's advisory engine never holds an Actions list to apply (§ see
// internal/advisory's doc comment).
type suggestionsObject struct{}

func (s *suggestionsObject) dispatch(h *Hub, req Request, conn *connection) {
	ch := conn.pushChan
	if advisoryEngine == nil {
		ch <- NewErrorResponse(req.ID, fmt.Errorf("advisory engine not initialized"))
		return
	}
	switch req.Action {
	case "list":
		ch <- NewResponse(req.ID, advisoryEngine.Current())
	case "recompute":
		advisoryEngine.Recompute()
		ch <- NewResponse(req.ID, advisoryEngine.Current())
	case "reject":
		var p struct {
			ID      string `json:"id"`
			Minutes int    `json:"minutes"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			ch <- NewErrorResponse(req.ID, fmt.Errorf("unparsable request: %s", err))
			return
		}
		if p.Minutes <= 0 {
			p.Minutes = 5
		}
		advisoryEngine.Reject(p.ID, time.Duration(p.Minutes)*time.Minute)
		advisoryEngine.Recompute()
		ch <- NewOkResponse(req.ID, "suggestion rejected")
	default:
		ch <- NewErrorResponse(req.ID, fmt.Errorf("unknown action %s/%s", req.Object, req.Action))
	}
}

func init() { hub.objects["suggestions"] = new(suggestionsObject) }
