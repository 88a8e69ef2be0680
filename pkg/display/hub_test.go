package display

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sproutbotics/robin/pkg/metrics"
	"github.com/sproutbotics/robin/pkg/turn"
)

type stubDispatcher struct {
	mu      sync.Mutex
	current turn.StateEvent
	seen    []turn.Trigger
}

func (s *stubDispatcher) Dispatch(tr turn.Trigger) (turn.StateEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, tr)
	s.current.Sequence++
	switch tr.Kind {
	case turn.TriggerStartTurn:
		s.current.State = turn.StateListening
	case turn.TriggerStopTurn:
		s.current.State = turn.StateThinking
	case turn.TriggerAbort:
		s.current.State = turn.StateIdle
	}
	return s.current, true
}

func (s *stubDispatcher) Current() turn.StateEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *stubDispatcher) triggers() []turn.Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]turn.Trigger, len(s.seen))
	copy(out, s.seen)
	return out
}

type fakeConn struct {
	mu      sync.Mutex
	written [][]byte
	closed  bool
	readCh  chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{readCh: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.readCh
	return 0, nil, errors.New("connection closed")
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	f.written = append(f.written, data)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.readCh)
	}
	return nil
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) turn.StateEvent {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev turn.StateEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("unmarshal %q: %v", msg, err)
	}
	return ev
}

func TestConnectReceivesCurrentSnapshot(t *testing.T) {
	disp := &stubDispatcher{current: turn.StateEvent{
		State:    turn.StateSpeaking,
		Text:     "Photosynthesis is...",
		Sequence: 7,
	}}
	hub := New(Config{AllowAnyOrigin: true}, Options{Dispatcher: disp})
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	conn := dialWS(t, srv)
	defer conn.Close()

	ev := readEvent(t, conn)
	if ev.State != turn.StateSpeaking || ev.Text != "Photosynthesis is..." || ev.Sequence != 7 {
		t.Fatalf("snapshot = {%s %q %d}", ev.State, ev.Text, ev.Sequence)
	}
}

func TestBroadcastReachesAllClients(t *testing.T) {
	disp := &stubDispatcher{}
	hub := New(Config{AllowAnyOrigin: true}, Options{Dispatcher: disp})
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	a := dialWS(t, srv)
	defer a.Close()
	b := dialWS(t, srv)
	defer b.Close()
	readEvent(t, a)
	readEvent(t, b)

	hub.OnStateEvent(turn.StateEvent{State: turn.StateListening, Sequence: 1})

	for _, conn := range []*websocket.Conn{a, b} {
		ev := readEvent(t, conn)
		if ev.State != turn.StateListening || ev.Sequence != 1 {
			t.Fatalf("broadcast = {%s %d}", ev.State, ev.Sequence)
		}
	}
}

func TestFullQueueDropsOnlyThatClient(t *testing.T) {
	obs := metrics.NewMemoryObserver()
	hub := New(Config{AllowAnyOrigin: true}, Options{Observer: obs})

	healthy := &client{id: "healthy", conn: newFakeConn(), sendCh: make(chan []byte, 8)}
	wedged := &client{id: "wedged", conn: newFakeConn(), sendCh: make(chan []byte)}
	hub.mu.Lock()
	hub.clients[healthy.id] = healthy
	hub.clients[wedged.id] = wedged
	hub.mu.Unlock()

	hub.OnStateEvent(turn.StateEvent{State: turn.StateThinking, Sequence: 3})

	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("clients after drop = %d, want 1", got)
	}
	select {
	case msg := <-healthy.sendCh:
		var ev turn.StateEvent
		if err := json.Unmarshal(msg, &ev); err != nil || ev.Sequence != 3 {
			t.Fatalf("healthy client got %q (err=%v)", msg, err)
		}
	default:
		t.Fatalf("healthy client missed the broadcast")
	}

	dropped := false
	for _, ev := range obs.Snapshot() {
		if ev.Name == "client_dropped" && ev.Tags["client_id"] == "wedged" {
			dropped = true
		}
	}
	if !dropped {
		t.Fatalf("expected client_dropped event for wedged client")
	}
}

func TestStateEndpoint(t *testing.T) {
	disp := &stubDispatcher{current: turn.StateEvent{State: turn.StateThinking, Text: "hmm", Sequence: 4}}
	hub := New(Config{}, Options{Dispatcher: disp})
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/state", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get /state: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("cors header = %q", got)
	}
	var ev turn.StateEvent
	if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.State != turn.StateThinking || ev.Text != "hmm" || ev.Sequence != 4 {
		t.Fatalf("state = {%s %q %d}", ev.State, ev.Text, ev.Sequence)
	}
}

func TestControlEndpointsDriveDispatcher(t *testing.T) {
	disp := &stubDispatcher{}
	hub := New(Config{}, Options{Dispatcher: disp})
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/control/start", "application/json", nil)
	if err != nil {
		t.Fatalf("post /control/start: %v", err)
	}
	defer resp.Body.Close()
	var body controlResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Applied || body.State != turn.StateListening || body.Seq != 1 {
		t.Fatalf("control response = %+v", body)
	}

	seen := disp.triggers()
	if len(seen) != 1 || seen[0].Kind != turn.TriggerStartTurn {
		t.Fatalf("dispatcher saw %+v", seen)
	}

	getResp, err := http.Get(srv.URL + "/control/start")
	if err != nil {
		t.Fatalf("get /control/start: %v", err)
	}
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET status = %d, want 405", getResp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	hub := New(Config{}, Options{Dispatcher: &stubDispatcher{}})
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("get /: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["service"] != "robin" {
		t.Fatalf("health = %v", body)
	}

	missing, err := http.Get(srv.URL + "/nope")
	if err != nil {
		t.Fatalf("get /nope: %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown path status = %d, want 404", missing.StatusCode)
	}
}

func TestOriginFiltering(t *testing.T) {
	hub := New(Config{}, Options{Dispatcher: &stubDispatcher{}})
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	evil := http.Header{}
	evil.Set("Origin", "http://evil.example")
	if _, resp, err := websocket.DefaultDialer.Dial(wsURL, evil); err == nil {
		t.Fatalf("expected handshake refusal for unknown origin")
	} else if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	ok := http.Header{}
	ok.Set("Origin", "http://localhost:3000")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, ok)
	if err != nil {
		t.Fatalf("expected handshake for allowed origin, got %v", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	conn.Close()
}
