package server

import (
	"html/template"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	log "gopkg.in/inconshreveable/log15.v2"

	"github.com/ts2/railctl/internal/advisory"
	"github.com/ts2/railctl/internal/bus"
	"github.com/ts2/railctl/internal/signaling"
	"github.com/ts2/railctl/internal/train"
)

// MaxHubStartupTime bounds how long Run waits for the Hub's fan-out
// goroutine to come up before giving up, mirroring the teacher's
// server/http.go handshake.
const MaxHubStartupTime = 3 * time.Second

var (
	net            *signaling.Network
	registry       *train.Registry
	advisoryEngine *advisory.Engine
	evtBus         *bus.Bus
	logger         log.Logger
)

// InitializeLogger creates the logger for the server module.
func InitializeLogger(parentLogger log.Logger) {
	logger = parentLogger.New("module", "server")
}

// Run wires the package-level Network/Registry/advisory.Engine, starts the
// audit/metrics subscribers, brings the websocket Hub up, and finally blocks
// serving HTTP on addr. Shaped after the teacher's Run(sim, addr, port):
// capture globals, start background tickers, wait for the hub, then serve.
func Run(n *signaling.Network, reg *train.Registry, adv *advisory.Engine, b *bus.Bus, addr string) {
	logger.Info("starting server")
	net = n
	registry = reg
	advisoryEngine = adv
	evtBus = b

	go subscribeAuditAndMetrics(b)
	startMetricsTicker(net, advisoryEngine)

	hubUp := make(chan bool)
	timer := time.After(MaxHubStartupTime)
	go hub.run(hubUp)
	select {
	case <-hubUp:
		HttpdStart(addr)
		os.Exit(1)
	case <-timer:
		logger.Crit("hub did not start")
		os.Exit(1)
	}
}

// subscribeAuditAndMetrics fans every bus event into the audit ring buffer
// and the rolling metrics counters, until its subscription's channel is
// closed (bus.Bus itself has no Close). Grounded on the
// teacher's audit/metrics pair both being driven off the same
// simulation.Event stream (server/audit.go + server/metrics.go call sites).
func subscribeAuditAndMetrics(b *bus.Bus) {
	sub := b.Subscribe()
	defer sub.Close()
	for ev := range sub.Events() {
		recordAuditFromEvent(ev)
		updateMetrics(ev)
	}
}

// HttpdStart installs every route and blocks serving HTTP on addr.
//
//	/          - status/info page naming the websocket endpoint's URL.
//	/ws        - the Hub's websocket endpoint.
//	/api/...   - the REST surface (http_api.go/http_api_handlers.go).
func HttpdStart(addr string) {
	r := mux.NewRouter()
	r.HandleFunc("/", serveHome).Methods(http.MethodGet)
	r.HandleFunc("/ws", serveWs(hub))
	installHTTPAPI(r)

	logger.Info("starting HTTP", "address", addr)
	err := http.ListenAndServe(addr, r)
	logger.Crit("HTTP crashed", "error", err)
}

var homeTempl = template.Must(template.New("home").Parse(homeTemplateSource))

// homeTemplateSource replaces the teacher's statik-bundled index.html: the
// statik-generated package is absent from the retrieved reference pack and
// unregenerable without running the statik CLI (see SPEC_FULL.md DOMAIN
// STACK and DESIGN.md "Dropped teacher code"), so the status page is an
// inline html/template instead.
const homeTemplateSource = `<!DOCTYPE html>
<html>
<head><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Description}}</p>
<p>Connect a control client to <code>{{.Host}}</code>.</p>
</body>
</html>`

func serveHome(w http.ResponseWriter, r *http.Request) {
	logger.Debug("new HTTP connection", "remote", r.RemoteAddr)
	data := struct{ Title, Description, Host string }{
		Title:       "railctl",
		Description: "Model-railroad interlocking and train control core",
		Host:        "ws://" + r.Host + "/ws",
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := homeTempl.Execute(w, data); err != nil {
		logger.Error("failed to render home page", "error", err)
	}
}
