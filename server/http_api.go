package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/ts2/railctl/internal/resources"
	"github.com/ts2/railctl/internal/topology"
)

// signalOut is the wire shape of one signal's state, the railctl analogue
// of the teacher's http_api.go inline signal map in serveSignals/
// serveSystemOverview.
type signalOut struct {
	Address           topology.SignalAddress  `json:"address"`
	Kind              string                  `json:"kind"`
	Status            string                  `json:"status"`
	BlockSensors      []int                   `json:"blockSensors"`
	GrantedTrains     []topology.TrainAddress `json:"grantedTrains"`
	PendingRequesters []topology.TrainAddress `json:"pendingRequesters"`
}

func listSignals() []signalOut {
	out := []signalOut{}
	if net == nil {
		return out
	}
	for _, sig := range net.Signals() {
		out = append(out, signalOut{
			Address:           sig.Address(),
			Kind:              sig.Kind().String(),
			Status:            sig.Status().String(),
			BlockSensors:      sig.BlockSensors(),
			GrantedTrains:     sig.GrantedTrains(),
			PendingRequesters: sig.PendingRequesters(),
		})
	}
	return out
}

// buildSystemOverview summarizes topology size, sensor occupancy, and live
// train count, the railctl equivalent of the teacher's serveSystemOverview
// (server/http_api.go), which summarized track-item/route/train counts.
func buildSystemOverview() map[string]interface{} {
	resp := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if net == nil {
		resp["error"] = "network not initialized"
		return resp
	}

	topo := net.Topology()
	totalsByKind := map[string]int{}
	segmentsTotal, segmentsOccupied := 0, 0
	for i := 0; i < topo.NodeCount(); i++ {
		node, ok := topo.Node(i)
		if !ok {
			continue
		}
		totalsByKind[node.Kind().String()]++
		if node.IsSensorLike() {
			segmentsTotal++
			if sen, ok := net.Sensor(i); ok && sen.Status() == resources.Occupied {
				segmentsOccupied++
			}
		}
	}
	util := 0.0
	if segmentsTotal > 0 {
		util = float64(segmentsOccupied) * 100.0 / float64(segmentsTotal)
	}

	resp["totals"] = totalsByKind
	resp["signals"] = listSignals()
	resp["occupancy"] = map[string]interface{}{
		"segmentsTotal":    segmentsTotal,
		"segmentsOccupied": segmentsOccupied,
		"utilization":      util,
	}
	return resp
}

// GET /api/signals
func serveSignals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{"signals": listSignals()})
}

// POST /api/signals/{addr}/request {"train": N}
func serveSignalRequestBlock(w http.ResponseWriter, r *http.Request) {
	addr, err := addrFromVar(r, "addr")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var body struct {
		Train topology.TrainAddress `json:"train"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	sig, ok := net.Signal(topology.SignalAddress(addr))
	if !ok {
		http.Error(w, "SIGNAL_NOT_FOUND", http.StatusNotFound)
		return
	}
	sig.RequestBlock(body.Train)
	writeJSON(w, map[string]interface{}{"status": "OK"})
}

// GET /api/trains/{addr}
func serveTrainStatus(w http.ResponseWriter, r *http.Request) {
	addr, err := addrFromVar(r, "addr")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c, ok := registry.Get(topology.TrainAddress(addr))
	if !ok {
		http.Error(w, "TRAIN_NOT_FOUND", http.StatusNotFound)
		return
	}
	resp := map[string]interface{}{
		"address": c.Address(),
		"speed":   c.LiveSpeed().String(),
		"level":   c.LiveSpeed().Level,
	}
	if route := c.Route(); route != nil {
		resp["remainingNodes"] = route.Nodes()
		resp["routeEmpty"] = route.Empty()
	}
	writeJSON(w, resp)
}

// POST /api/trains/{addr}/drive {"from": N, "destination": N}
func serveTrainDriveTo(w http.ResponseWriter, r *http.Request) {
	addr, err := addrFromVar(r, "addr")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var body struct {
		From        int `json:"from"`
		Destination int `json:"destination"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	c, ok := registry.Get(topology.TrainAddress(addr))
	if !ok {
		http.Error(w, "TRAIN_NOT_FOUND", http.StatusNotFound)
		return
	}
	if err := c.TriggerDriveTo(body.From, body.Destination); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, map[string]interface{}{"status": "OK"})
}

// POST /api/trains/{addr}/reset {"node": N}
func serveTrainResetPosition(w http.ResponseWriter, r *http.Request) {
	addr, err := addrFromVar(r, "addr")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var body struct {
		Node int `json:"node"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	c, ok := registry.Get(topology.TrainAddress(addr))
	if !ok {
		http.Error(w, "TRAIN_NOT_FOUND", http.StatusNotFound)
		return
	}
	granted := c.ResetPosition(body.Node)
	writeJSON(w, map[string]interface{}{"granted": granted})
}

// GET /api/system/overview
func serveSystemOverview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, buildSystemOverview())
}

func addrFromVar(r *http.Request, name string) (uint16, error) {
	raw := mux.Vars(r)[name]
	v, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}

// installHTTPAPI registers every REST route on r, the railctl rewrite of
// the teacher's installHTTPAPI (server/http_api.go), rebuilt against
// gorilla/mux path variables instead of manual strings.TrimPrefix parsing.
func installHTTPAPI(r *mux.Router) {
	r.HandleFunc("/api/signals", serveSignals).Methods(http.MethodGet)
	r.HandleFunc("/api/signals/{addr}/request", serveSignalRequestBlock).Methods(http.MethodPost)
	r.HandleFunc("/api/trains/{addr}", serveTrainStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/trains/{addr}/drive", serveTrainDriveTo).Methods(http.MethodPost)
	r.HandleFunc("/api/trains/{addr}/reset", serveTrainResetPosition).Methods(http.MethodPost)
	r.HandleFunc("/api/system/overview", serveSystemOverview).Methods(http.MethodGet)
	r.HandleFunc("/api/analytics/kpis", serveKPI).Methods(http.MethodGet)
	r.HandleFunc("/api/analytics/historical", serveKPIHistorical).Methods(http.MethodGet)
	r.HandleFunc("/api/suggestions", serveSuggestions).Methods(http.MethodGet)
	r.HandleFunc("/api/suggestions/{id}/reject", serveSuggestionReject).Methods(http.MethodPost)
	r.HandleFunc("/api/audit/logs", serveAuditLogs).Methods(http.MethodGet)
	r.HandleFunc("/api/audit/stream", serveAuditStream).Methods(http.MethodGet)
}
