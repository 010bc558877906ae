package feed

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bikeadventure/internal/events"
	"bikeadventure/internal/personality"
	"bikeadventure/internal/streaming"

	"github.com/gorilla/websocket"
)

type fakeSource struct{}

func (fakeSource) FeedMetrics() Metrics {
	return Metrics{
		Session:   "ride-1",
		Frame:     42,
		Streaming: streaming.Metrics{ActiveSections: 9},
		Memory:    map[string]float64{"total": 12.5},
		LeftRatio: 0.75,
		Preferred: personality.Scenic,
	}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendHello(t *testing.T, conn *websocket.Conn, kinds ...events.Kind) Welcome {
	t.Helper()
	if err := conn.WriteJSON(Hello{Type: "HELLO", ProtocolVersion: Version, Kinds: kinds}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var w Welcome
	if err := conn.ReadJSON(&w); err != nil {
		t.Fatalf("ReadJSON welcome failed: %v", err)
	}
	return w
}

func TestEventsStream(t *testing.T) {
	bus := events.NewBus()
	s := NewServer(bus, fakeSource{}, "ride-1", nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	w := sendHello(t, conn)
	if w.Type != "WELCOME" || w.Session != "ride-1" || w.Client == "" {
		t.Fatalf("Unexpected welcome %+v", w)
	}

	bus.Publish(events.LODLevelChanged, map[string]int{"level": 2})

	var f struct {
		Type  string `json:"type"`
		Event struct {
			Kind events.Kind    `json:"kind"`
			Data map[string]int `json:"data"`
		} `json:"event"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("ReadJSON frame failed: %v", err)
	}
	if f.Type != "EVENT" || f.Event.Kind != events.LODLevelChanged {
		t.Errorf("Expected LOD event frame, got %+v", f)
	}
	if f.Event.Data["level"] != 2 {
		t.Errorf("Expected level 2, got %v", f.Event.Data)
	}
}

func TestEventsKindFilter(t *testing.T) {
	bus := events.NewBus()
	s := NewServer(bus, nil, "", nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	sendHello(t, conn, events.SectionUnloaded)

	bus.Publish(events.SectionLoaded, nil)
	bus.Publish(events.SectionUnloaded, nil)

	var f Frame
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if f.Event.Kind != events.SectionUnloaded {
		t.Errorf("Expected only %s, got %s", events.SectionUnloaded, f.Event.Kind)
	}
}

func TestEventsRejectsBadHello(t *testing.T) {
	s := NewServer(events.NewBus(), nil, "", nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	if err := conn.WriteJSON(Hello{Type: "HELLO", ProtocolVersion: Version + 1}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Errorf("Expected policy violation close, got %v", err)
	}
}

func TestMetricsHandler(t *testing.T) {
	bus := events.NewBus()
	s := NewServer(bus, fakeSource{}, "ride-1", nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/metrics")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var m struct {
		Session   string `json:"session"`
		Frame     uint64 `json:"frame"`
		Preferred string `json:"preferred"`
		Streaming struct {
			ActiveSections int `json:"active_sections"`
		} `json:"streaming"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if m.Session != "ride-1" || m.Frame != 42 {
		t.Errorf("Unexpected metrics %+v", m)
	}
	if m.Preferred != "Scenic" {
		t.Errorf("Expected preferred Scenic, got %q", m.Preferred)
	}
	if m.Streaming.ActiveSections != 9 {
		t.Errorf("Expected 9 active sections, got %d", m.Streaming.ActiveSections)
	}
}

func TestMetricsMethodAndSource(t *testing.T) {
	s := NewServer(events.NewBus(), nil, "", nil)
	h := s.Handler()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/metrics", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/metrics", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without a source, got %d", rec.Code)
	}
}

func TestRemoteRejectedByDefault(t *testing.T) {
	s := NewServer(events.NewBus(), fakeSource{}, "", nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/metrics", nil)
	req.RemoteAddr = "10.1.2.3:4000"
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403, got %d", rec.Code)
	}

	s.AllowRemote = true
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 with AllowRemote, got %d", rec.Code)
	}
}
