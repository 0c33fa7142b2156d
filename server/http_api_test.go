package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ts2/railctl/internal/advisory"
	"github.com/ts2/railctl/internal/bus"
	"github.com/ts2/railctl/internal/geometry"
	"github.com/ts2/railctl/internal/signaling"
	"github.com/ts2/railctl/internal/topology"
	"github.com/ts2/railctl/internal/train"
)

// newTestServer wires a two-signal, one-sensor topology into the package
// globals installHTTPAPI's handlers read from, mirroring how cmd/railctl's
// main wires the real Network/Registry before calling Run.
func newTestServer(t *testing.T) (*mux.Router, int, int) {
	t.Helper()
	b := topology.NewBuilder()
	sig1, err := b.AddSignal(1, geometry.NewPosition(0, 0, 0, geometry.East))
	require.NoError(t, err)
	sen1, err := b.AddSensor(1, geometry.NewPosition(10, 0, 0, geometry.East))
	require.NoError(t, err)
	sig2, err := b.AddSignal(2, geometry.NewPosition(20, 0, 0, geometry.East))
	require.NoError(t, err)
	require.NoError(t, b.Connect(sig1, sen1, nil))
	require.NoError(t, b.Connect(sen1, sig2, nil))
	topo, err := b.Build()
	require.NoError(t, err)

	evtBusLocal := bus.New()
	mock := clock.NewMock()
	n := signaling.NewNetwork(topo, evtBusLocal, mock, nil, time.Second)
	reg := train.NewRegistry()
	n.SetRouteLookup(reg)
	planner := train.NewPlannerFromNetwork(n, reg)
	ctrl := train.NewController(7, n, planner, evtBusLocal, mock)
	reg.Add(ctrl)

	adv := advisory.NewEngine(advisory.NetworkSource{Net: n}, mock, time.Minute, time.Minute)

	net = n
	registry = reg
	advisoryEngine = adv
	evtBus = evtBusLocal

	r := mux.NewRouter()
	installHTTPAPI(r)
	return r, sig1, sen1
}

func TestServeSignalsListsEveryRegisteredSignal(t *testing.T) {
	r, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/signals", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Signals []signalOut `json:"signals"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Len(t, body.Signals, 2)
}

func TestServeSignalRequestBlockGrantsImmediatelyWhenFree(t *testing.T) {
	r, _, _ := newTestServer(t)

	payload := strings.NewReader(`{"train": 7}`)
	req := httptest.NewRequest(http.MethodPost, "/api/signals/1/request", payload)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	sig, ok := net.Signal(1)
	require.True(t, ok)
	assert.Contains(t, sig.GrantedTrains(), topology.TrainAddress(7))
}

func TestServeSignalRequestBlockUnknownAddrReturnsNotFound(t *testing.T) {
	r, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/signals/99/request", strings.NewReader(`{"train": 1}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeTrainStatusReportsRegisteredTrain(t *testing.T) {
	r, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/trains/7", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.EqualValues(t, 7, body["address"])
}

func TestServeTrainDriveToPlansARoute(t *testing.T) {
	r, sig1, sen1 := newTestServer(t)

	payload := strings.NewReader(`{"from": 0, "destination": 0}`)
	_ = sig1
	_ = sen1
	req := httptest.NewRequest(http.MethodPost, "/api/trains/7/drive", payload)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	// Planning from a node to itself is always satisfiable (zero-length
	// route), exercising the handler without depending on node-index
	// internals in the test topology.
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServeSystemOverviewReportsTotals(t *testing.T) {
	r, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/system/overview", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Contains(t, body, "totals")
	assert.Contains(t, body, "occupancy")
}

func TestAddrFromVarRejectsNonNumeric(t *testing.T) {
	r := mux.NewRouter()
	var captured error
	r.HandleFunc("/x/{addr}", func(w http.ResponseWriter, req *http.Request) {
		_, captured = addrFromVar(req, "addr")
	})
	req := httptest.NewRequest(http.MethodGet, "/x/not-a-number", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)
	assert.Error(t, captured)
}
