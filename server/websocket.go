package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/saintparish4/wifisim/logging"
	"github.com/saintparish4/wifisim/observability"
	"github.com/saintparish4/wifisim/qos"
	"github.com/saintparish4/wifisim/report"
	"github.com/saintparish4/wifisim/scenario"
)

// Message types sent to clients
const (
	MsgInitialState = "INITIAL_STATE"
	MsgStateUpdate  = "STATE_UPDATE"
	MsgStatus       = "STATUS"
	MsgOutage       = "OUTAGE_INJECTED"
	MsgFinished     = "FINISHED"
	MsgError        = "ERROR"
)

// ErrStopped is returned for commands sent after the run ended
var ErrStopped = errors.New("simulation server stopped")

// Command is a control message from a client
type Command struct {
	Type     string  `json:"type"`
	Speed    float64 `json:"speed,omitempty"`
	Target   string  `json:"target,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// Update is every message the server pushes
type Update struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Running   bool            `json:"running"`
	Speed     float64         `json:"speed"`
	State     *scenario.State `json:"state,omitempty"`
	Target    string          `json:"target,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Options tune the live server
type Options struct {
	Tick      time.Duration // wall-clock time between slices
	Speed     float64       // virtual seconds per wall second
	AutoStart bool
	Metrics   *observability.SimCollector
	Logger    logging.Logger
}

// WebSocketServer drives one simulation paced by the wall clock and streams
// snapshots to connected clients. The simulation is only touched by the
// goroutine running Run.
type WebSocketServer struct {
	sim     *scenario.Simulation
	log     logging.Logger
	metrics *observability.SimCollector

	clients    map[*websocket.Conn]bool
	broadcast  chan Update
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	commands   chan Command
	stopped    chan struct{}

	tick    time.Duration
	running bool
	speed   float64

	mu     sync.RWMutex
	latest Update
	final  *qos.Report
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// NewWebSocketServer creates a server for sim
func NewWebSocketServer(sim *scenario.Simulation, opts Options) *WebSocketServer {
	if opts.Tick <= 0 {
		opts.Tick = 100 * time.Millisecond // 10 updates per second
	}
	if opts.Speed <= 0 {
		opts.Speed = 1.0
	}
	if opts.Logger == nil {
		opts.Logger = logging.Noop()
	}
	ws := &WebSocketServer{
		sim:        sim,
		log:        opts.Logger.With(logging.String("component", "websocket")),
		metrics:    opts.Metrics,
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan Update, 100),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		commands:   make(chan Command, 16),
		stopped:    make(chan struct{}),
		tick:       opts.Tick,
		running:    opts.AutoStart,
		speed:      opts.Speed,
	}
	ws.store(ws.stateUpdate(MsgStateUpdate))
	return ws
}

// Run serves clients and advances the simulation until it reaches its
// duration, returning the final report. It returns early with ctx's error.
func (ws *WebSocketServer) Run(ctx context.Context) (qos.Report, error) {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go ws.run(hubCtx)

	ticker := time.NewTicker(ws.tick)
	defer ticker.Stop()

	ws.log.Info(ctx, "live simulation started",
		logging.String("run_id", ws.sim.RunID()),
		logging.Float("speed", ws.speed),
		logging.Any("running", ws.running))

	for {
		select {
		case <-ctx.Done():
			return qos.Report{}, ctx.Err()

		case cmd := <-ws.commands:
			ws.handleCommand(ctx, cmd)

		case <-ticker.C:
			if !ws.running {
				continue
			}
			ws.sim.Advance(ws.sim.Now() + ws.speed*ws.tick.Seconds())
			update := ws.stateUpdate(MsgStateUpdate)
			ws.store(update)
			ws.publish(update)

			if ws.sim.Done() {
				r := ws.sim.Finish()
				ws.running = false
				ws.mu.Lock()
				ws.final = &r
				ws.mu.Unlock()
				done := ws.stateUpdate(MsgFinished)
				ws.store(done)
				ws.publish(done)
				// Let the hub flush the last messages before it stops.
				ws.drain(ctx)
				return r, nil
			}
		}
	}
}

// drain waits briefly for queued broadcasts to be written
func (ws *WebSocketServer) drain(ctx context.Context) {
	deadline := time.NewTimer(time.Second)
	defer deadline.Stop()
	for len(ws.broadcast) > 0 {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// run handles client registration/unregistration and broadcasting
func (ws *WebSocketServer) run(ctx context.Context) {
	defer func() {
		close(ws.stopped)
		for client := range ws.clients {
			client.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-ws.register:
			ws.clients[client] = true
			ws.log.Debug(ctx, "client connected", logging.Int("clients", len(ws.clients)))

			// Send initial state to new client
			initial := ws.Latest()
			initial.Type = MsgInitialState
			if err := client.WriteJSON(initial); err != nil {
				ws.drop(ctx, client, err)
			}

		case client := <-ws.unregister:
			if _, ok := ws.clients[client]; ok {
				delete(ws.clients, client)
				client.Close()
			}
			ws.log.Debug(ctx, "client disconnected", logging.Int("clients", len(ws.clients)))

		case message := <-ws.broadcast:
			for client := range ws.clients {
				if err := client.WriteJSON(message); err != nil {
					ws.drop(ctx, client, err)
				}
			}
		}
	}
}

func (ws *WebSocketServer) drop(ctx context.Context, client *websocket.Conn, err error) {
	ws.log.Warn(ctx, "error sending to client", logging.Err(err))
	client.Close()
	delete(ws.clients, client)
}

// publish queues an update for every client without blocking the simulation
func (ws *WebSocketServer) publish(u Update) {
	select {
	case ws.broadcast <- u:
	default:
		ws.log.Warn(context.Background(), "broadcast queue full, update dropped", logging.String("type", u.Type))
	}
}

func (ws *WebSocketServer) store(u Update) {
	ws.mu.Lock()
	ws.latest = u
	ws.mu.Unlock()
}

// Latest returns the most recent update. Safe from any goroutine.
func (ws *WebSocketServer) Latest() Update {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.latest
}

// FinalReport returns the report once the run finished
func (ws *WebSocketServer) FinalReport() (qos.Report, bool) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	if ws.final == nil {
		return qos.Report{}, false
	}
	return *ws.final, true
}

// Submit queues a command for the simulation goroutine
func (ws *WebSocketServer) Submit(ctx context.Context, cmd Command) error {
	select {
	case ws.commands <- cmd:
		return nil
	case <-ws.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleWebSocket handles WebSocket connections
func (ws *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.log.Warn(r.Context(), "websocket upgrade failed", logging.Err(err))
		return
	}

	select {
	case ws.register <- conn:
	case <-ws.stopped:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}

	// Read messages from client (for commands)
	go ws.handleClientMessages(conn)
}

// handleClientMessages processes messages from clients
func (ws *WebSocketServer) handleClientMessages(conn *websocket.Conn) {
	ctx := context.Background()
	defer func() {
		select {
		case ws.unregister <- conn:
		case <-ws.stopped:
			conn.Close()
		}
	}()

	for {
		var cmd Command
		err := conn.ReadJSON(&cmd)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				ws.log.Warn(ctx, "error reading message", logging.Err(err))
			}
			break
		}
		if err := ws.Submit(ctx, cmd); err != nil {
			break
		}
	}
}

// handleCommand applies a command on the simulation goroutine
func (ws *WebSocketServer) handleCommand(ctx context.Context, cmd Command) {
	switch cmd.Type {
	case "START":
		ws.running = !ws.sim.Done()
		ws.publish(ws.status(MsgStatus))

	case "PAUSE":
		ws.running = false
		ws.publish(ws.status(MsgStatus))

	case "SET_SPEED":
		if cmd.Speed > 0 {
			ws.speed = cmd.Speed
		}
		ws.publish(ws.status(MsgStatus))

	case "REQUEST_STATE":
		update := ws.stateUpdate(MsgStateUpdate)
		ws.store(update)
		ws.publish(update)

	case "INJECT_OUTAGE":
		ws.handleOutage(ctx, cmd)

	default:
		ws.publish(Update{Type: MsgError, Timestamp: time.Now().Unix(), Error: fmt.Sprintf("unknown command %q", cmd.Type)})
	}
}

// handleOutage switches the target radio off now for the given duration
func (ws *WebSocketServer) handleOutage(ctx context.Context, cmd Command) {
	err := ws.sim.Injector().InjectRadioOutage(cmd.Target, ws.sim.Now(), cmd.Duration)
	if err != nil {
		ws.log.Warn(ctx, "outage rejected", logging.String("target", cmd.Target), logging.Err(err))
		ws.publish(Update{Type: MsgError, Timestamp: time.Now().Unix(), Target: cmd.Target, Error: err.Error()})
		return
	}
	u := ws.status(MsgOutage)
	u.Target = cmd.Target
	ws.publish(u)
}

func (ws *WebSocketServer) status(kind string) Update {
	return Update{
		Type:      kind,
		Timestamp: time.Now().Unix(),
		Running:   ws.running,
		Speed:     ws.speed,
	}
}

// stateUpdate creates a complete state update
func (ws *WebSocketServer) stateUpdate(kind string) Update {
	st := ws.sim.Snapshot()
	u := ws.status(kind)
	u.State = &st
	return u
}

// HTTPHandler provides HTTP endpoints
type HTTPHandler struct {
	Server *WebSocketServer
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(server *WebSocketServer) *HTTPHandler {
	return &HTTPHandler{Server: server}
}

// ServeHTTP handles HTTP requests
func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Enable CORS
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	switch r.URL.Path {
	case "/ws":
		h.Server.HandleWebSocket(w, r)

	case "/api/state":
		h.handleGetState(w, r)

	case "/api/control":
		h.handleControl(w, r)

	case "/api/export":
		h.handleExport(w, r)

	case "/metrics":
		if h.Server.metrics == nil {
			http.NotFound(w, r)
			return
		}
		h.Server.metrics.Handler().ServeHTTP(w, r)

	default:
		http.NotFound(w, r)
	}
}

// handleGetState returns the latest update as JSON, or as MessagePack
// with ?format=msgpack. Both encodings use the JSON field names.
func (h *HTTPHandler) handleGetState(w http.ResponseWriter, r *http.Request) {
	latest := h.Server.Latest()
	if r.URL.Query().Get("format") == "msgpack" {
		w.Header().Set("Content-Type", "application/msgpack")
		enc := msgpack.NewEncoder(w)
		enc.SetCustomStructTag("json")
		if err := enc.Encode(latest); err != nil {
			h.Server.log.Warn(r.Context(), "state encoding failed", logging.Err(err))
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(latest)
}

func (h *HTTPHandler) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var cmd Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Server.Submit(r.Context(), cmd); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintf(w, `{"status":"ok"}`)
}

// handleExport returns the flow table of the finished run as CSV or JSON
func (h *HTTPHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	final, ok := h.Server.FinalReport()
	if !ok {
		http.Error(w, "simulation still running", http.StatusConflict)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=wifi6_metrics.csv")
		if err := report.WriteFlows(w, final); err != nil {
			h.Server.log.Warn(r.Context(), "export failed", logging.Err(err))
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Server.Latest().State)
}
