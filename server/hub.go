package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
)

// Request is a single JSON command sent by a websocket client, addressed to
// one of Hub's registered objects (§6 supplemental feature: a websocket
// control surface mirroring the HTTP API). The Object/Action/Params/ID
// shape is the one every *_object.dispatch method already expects; the
// Hub/connection/Request/Response plumbing itself is authored fresh for
// railctl, since the teacher's own hub.go/connection.go were not part of
// the retrieved reference pack — only its two dispatch files were. It
// follows the same reader/writer-pump split as gorilla/websocket's chat
// example, the shape niceyeti-tabular/tabular/server/server.go also follows.
type Request struct {
	ID     string          `json:"id"`
	Object string          `json:"object"`
	Action string          `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is the reply pushed back to a single connection for a Request.
type Response struct {
	ID    string          `json:"id"`
	Ok    bool            `json:"ok"`
	Msg   string          `json:"msg,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// RawJSON wraps an already-encoded JSON document so NewResponse can embed
// it as Data without a second marshal/unmarshal round trip.
type RawJSON []byte

// NewOkResponse builds a bare success acknowledgement.
func NewOkResponse(id, msg string) Response {
	return Response{ID: id, Ok: true, Msg: msg}
}

// NewErrorResponse builds a failure response carrying err's message.
func NewErrorResponse(id string, err error) Response {
	return Response{ID: id, Ok: false, Error: err.Error()}
}

// NewResponse builds a success response carrying data, which may be a
// []byte, a RawJSON, or any JSON-marshalable value.
func NewResponse(id string, data interface{}) Response {
	switch v := data.(type) {
	case RawJSON:
		return Response{ID: id, Ok: true, Data: json.RawMessage(v)}
	case []byte:
		return Response{ID: id, Ok: true, Data: json.RawMessage(v)}
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return NewErrorResponse(id, err)
		}
		return Response{ID: id, Ok: true, Data: json.RawMessage(b)}
	}
}

// hubObject is a dispatch target registered under a name in Hub.objects
// (e.g. "network", "signals", "trains", "suggestions").
type hubObject interface {
	dispatch(h *Hub, req Request, conn *connection)
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 65536
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// connection is one websocket client: a socket plus its outbound mailbox.
type connection struct {
	ws       *websocket.Conn
	pushChan chan Response
	hub      *Hub
}

// Hub owns every live connection and the named objects requests dispatch
// to. run fans every Response sent on its broadcast channel out to every
// connected client, distinct from a per-request Response which only reaches
// the requester; nothing in this package sends on that channel, so clients
// receive no unsolicited pushes (bus events included).
type Hub struct {
	mu          sync.Mutex
	objects     map[string]hubObject
	connections map[*connection]bool
	broadcast   chan Response
}

// NewHub returns an empty Hub. Callers register objects into hub.objects
// (see hub_network.go/hub_signals.go/hub_trains.go/hub_suggestions.go)
// before calling run.
func NewHub() *Hub {
	return &Hub{
		objects:     make(map[string]hubObject),
		connections: make(map[*connection]bool),
		broadcast:   make(chan Response, 256),
	}
}

// hub is the process-wide Hub instance; each hub_*.go file registers itself
// into hub.objects from its own init(), the same convention the teacher's
// hub_simulation.go/hub_suggestions.go followed.
var hub = NewHub()

// run drives the Hub's broadcast fan-out until closed is signaled. up is
// closed once the hub is ready to accept connections, matching server.Run's
// MaxHubStartupTime handshake in http.go.
func (h *Hub) run(up chan bool) {
	close(up)
	for resp := range h.broadcast {
		h.mu.Lock()
		for c := range h.connections {
			select {
			case c.pushChan <- resp:
			default:
				// Slow client: drop rather than block the fan-out.
			}
		}
		h.mu.Unlock()
	}
}

func (h *Hub) addConnection(c *connection) {
	h.mu.Lock()
	h.connections[c] = true
	h.mu.Unlock()
}

func (h *Hub) removeConnection(c *connection) {
	h.mu.Lock()
	delete(h.connections, c)
	h.mu.Unlock()
}

// serveWs upgrades an HTTP request to a websocket and runs its read/write
// pumps until the client disconnects.
func serveWs(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("websocket upgrade failed", "error", err)
			return
		}
		conn := &connection{ws: ws, pushChan: make(chan Response, 64), hub: h}
		h.addConnection(conn)

		go conn.writePump()
		conn.readPump()

		h.removeConnection(conn)
		close(conn.pushChan)
		_ = ws.Close()
	}
}

// readPump decodes incoming Requests and dispatches each to its named
// object, until the connection errors or closes.
func (c *connection) readPump() {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req Request
		if err := c.ws.ReadJSON(&req); err != nil {
			return
		}
		obj, ok := c.hub.objects[req.Object]
		if !ok {
			c.pushChan <- Response{ID: req.ID, Ok: false, Error: "unknown object " + req.Object}
			continue
		}
		obj.dispatch(c.hub, req, c)
	}
}

// writePump drains pushChan to the socket and keeps the connection alive
// with periodic pings, the same split the gorilla/websocket chat example
// and niceyeti-tabular's fastview client use (tabular/server/server.go's
// publishEleUpdates), down to driving the ping cadence off
// channerics.NewTicker rather than a bare time.Ticker.
func (c *connection) writePump() {
	done := make(chan struct{})
	defer close(done)
	ticker := channerics.NewTicker(done, pingPeriod)

	for {
		select {
		case resp, ok := <-c.pushChan:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(resp); err != nil {
				return
			}
		case <-ticker:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
