package display

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sproutbotics/robin/pkg/errorsx"
	"github.com/sproutbotics/robin/pkg/logging"
	"github.com/sproutbotics/robin/pkg/metrics"
	"github.com/sproutbotics/robin/pkg/turn"
)

type Config struct {
	Addr           string   `mapstructure:"addr"`
	WebsocketPath  string   `mapstructure:"ws_path"`
	AllowAnyOrigin bool     `mapstructure:"allow_any_origin"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	SendBuffer     int      `mapstructure:"send_buffer"`
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":8000"
	}
	if c.WebsocketPath == "" {
		c.WebsocketPath = "/ws"
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if !c.AllowAnyOrigin && len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"http://localhost:3000"}
	}
	return c
}

// Dispatcher drives the turn state machine from the control endpoints
// and supplies the snapshot sent to newly connected displays.
type Dispatcher interface {
	Dispatch(tr turn.Trigger) (turn.StateEvent, bool)
	Current() turn.StateEvent
}

type Options struct {
	Dispatcher Dispatcher
	Observer   metrics.Observer
	Logger     *slog.Logger
}

// Hub fans every StateEvent out to the connected display clients over
// websocket and carries the HTTP control/status surface on the same
// listener. Broadcast is fire-and-forget: a display that cannot keep up
// is dropped, the controller never waits.
type Hub struct {
	cfg        Config
	server     *http.Server
	handler    http.Handler
	upgrader   websocket.Upgrader
	dispatcher Dispatcher
	obs        metrics.Observer
	log        *slog.Logger

	mu      sync.Mutex
	clients map[string]*client

	draining atomic.Bool
}

func New(cfg Config, opts Options) *Hub {
	cfg = cfg.withDefaults()
	obs := opts.Observer
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	base := opts.Logger
	if base == nil {
		base = slog.Default()
	}
	h := &Hub{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		dispatcher: opts.Dispatcher,
		obs:        obs,
		log:        logging.NewComponentLogger(base, "display_hub"),
		clients:    make(map[string]*client),
	}
	h.upgrader.CheckOrigin = h.checkOrigin
	h.handler = h.buildMux()
	return h
}

var _ turn.EventListener = (*Hub)(nil)

// Handler exposes the hub's HTTP surface for embedding in tests or an
// outer server.
func (h *Hub) Handler() http.Handler { return h.handler }

func (h *Hub) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	h.server = &http.Server{
		Addr:              h.cfg.Addr,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           h.handler,
	}
	go func() {
		<-ctx.Done()
		_ = h.server.Close()
	}()
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.log.Error("display_server_error", slog.String("error", err.Error()))
		}
	}()
	return nil
}

func (h *Hub) Stop() error {
	h.draining.Store(true)
	if h.server != nil {
		_ = h.server.Close()
	}
	h.mu.Lock()
	for _, c := range h.clients {
		c.close()
	}
	h.clients = make(map[string]*client)
	h.mu.Unlock()
	return nil
}

// OnStateEvent enqueues the event for every connected client. It runs
// under the controller's dispatch lock, so it must only marshal and
// enqueue; the per-client writer goroutines do the network work.
func (h *Hub) OnStateEvent(ev turn.StateEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()
	for _, c := range targets {
		h.deliver(c, payload)
	}
}

func (h *Hub) deliver(c *client, payload []byte) {
	if c.enqueue(payload) {
		return
	}
	// Full queue means the display stopped reading. Drop it; it will
	// reconnect and converge from the snapshot.
	h.log.Warn("display_client_dropped",
		slog.String("client_id", c.id),
		slog.String("reason_code", string(errorsx.ReasonTransportSend)))
	h.removeClient(c)
	h.observe("client_dropped", c.id)
}

func (h *Hub) buildMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.handleHealth)
	mux.HandleFunc(h.cfg.WebsocketPath, h.handleWS)
	mux.HandleFunc("/state", h.handleState)
	mux.HandleFunc("/control/start", h.handleControl(turn.StartTurn))
	mux.HandleFunc("/control/stop", h.handleControl(turn.StopTurn))
	mux.HandleFunc("/control/abort", h.handleControl(turn.Abort))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (h *Hub) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok","service":"robin"}`))
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	if h.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{
		id:     uuid.NewString(),
		conn:   conn,
		sendCh: make(chan []byte, h.cfg.SendBuffer),
	}

	// Snapshot goes into the queue before the client joins the fan-out
	// so its event stream never runs backwards.
	if h.dispatcher != nil {
		if snap, err := json.Marshal(h.dispatcher.Current()); err == nil {
			c.enqueue(snap)
		}
	}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	go c.writeLoop()

	h.observe("client_connected", c.id)
	h.log.Info("display_connected",
		slog.String("client_id", c.id),
		slog.String("remote_addr", r.RemoteAddr))

	h.readLoop(c)
}

// readLoop blocks until the client goes away. The protocol has no
// client-to-server messages; anything received is discarded.
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
	h.removeClient(c)
	h.observe("client_disconnected", c.id)
	h.log.Info("display_disconnected", slog.String("client_id", c.id))
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	c.close()
}

// ClientCount reports the number of connected displays.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) handleState(w http.ResponseWriter, r *http.Request) {
	h.cors(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if h.dispatcher == nil {
		_, _ = w.Write([]byte(`{}`))
		return
	}
	_ = json.NewEncoder(w).Encode(h.dispatcher.Current())
}

func (h *Hub) handleControl(trigger func() turn.Trigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.cors(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if h.dispatcher == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		ev, applied := h.dispatcher.Dispatch(trigger())
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(controlResponse{
			Applied: applied,
			State:   ev.State,
			Text:    ev.Text,
			Seq:     ev.Sequence,
		})
	}
}

type controlResponse struct {
	Applied bool       `json:"applied"`
	State   turn.State `json:"state"`
	Text    string     `json:"text"`
	Seq     uint64     `json:"sequence"`
}

func (h *Hub) cors(w http.ResponseWriter, r *http.Request) {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return
	}
	if h.cfg.AllowAnyOrigin {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else if h.originAllowed(origin) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
	} else {
		return
	}
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if h.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	return h.originAllowed(origin)
}

func (h *Hub) originAllowed(origin string) bool {
	origin = strings.TrimRight(origin, "/")
	originHost := strings.TrimPrefix(origin, "https://")
	originHost = strings.TrimPrefix(originHost, "http://")
	for _, allowed := range h.cfg.AllowedOrigins {
		a := strings.TrimSpace(allowed)
		if a == "" {
			continue
		}
		if a == "*" {
			return true
		}
		a = strings.TrimRight(a, "/")
		if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
			if strings.EqualFold(a, origin) {
				return true
			}
			continue
		}
		if strings.EqualFold(a, originHost) {
			return true
		}
	}
	return false
}

func (h *Hub) observe(name, clientID string) {
	h.obs.RecordEvent(metrics.MetricsEvent{
		Name: name,
		Time: time.Now(),
		Tags: map[string]string{"client_id": clientID},
	})
}

// wsConn is the subset of *websocket.Conn the hub uses, narrowed so
// tests can substitute a stub connection.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// client is one display connection. The writer goroutine is the only
// sender on the wire; enqueue never blocks.
type client struct {
	id     string
	conn   wsConn
	mu     sync.Mutex
	sendCh chan []byte
	closed bool
}

// enqueue reports false when the send queue is full. A closed client
// reports true so the caller does not drop it a second time.
func (c *client) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.sendCh <- msg:
		return true
	default:
		return false
	}
}

func (c *client) writeLoop() {
	for msg := range c.sendCh {
		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			break
		}
	}
	_ = c.conn.Close()
}

func (c *client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.sendCh)
	c.mu.Unlock()
	_ = c.conn.Close()
}
