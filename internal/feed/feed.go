// Package feed serves the generation event stream and live metrics to
// external tools over HTTP and websockets.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"bikeadventure/internal/events"
	"bikeadventure/internal/perf"
	"bikeadventure/internal/personality"
	"bikeadventure/internal/streaming"

	"github.com/gorilla/websocket"
)

// Version is the feed protocol version clients must send in HELLO.
const Version = 1

const (
	writeTimeout = 5 * time.Second
	helloTimeout = 5 * time.Second
	readTimeout  = 60 * time.Second
	clientQueue  = 256
)

// Hello is the first message a client sends. Kinds limits the stream;
// empty means everything.
type Hello struct {
	Type            string        `json:"type"`
	ProtocolVersion int           `json:"protocol_version"`
	Kinds           []events.Kind `json:"kinds,omitempty"`
}

// Welcome answers a valid Hello.
type Welcome struct {
	Type            string `json:"type"`
	ProtocolVersion int    `json:"protocol_version"`
	Client          string `json:"client"`
	Session         string `json:"session,omitempty"`
}

// Frame carries one event.
type Frame struct {
	Type  string       `json:"type"`
	Event events.Event `json:"event"`
}

// Metrics is the body of /v1/metrics.
type Metrics struct {
	Session     string                  `json:"session"`
	Frame       uint64                  `json:"frame"`
	Streaming   streaming.Metrics       `json:"streaming"`
	Performance perf.Metrics            `json:"performance"`
	Memory      map[string]float64      `json:"memory"`
	LeftRatio   float64                 `json:"left_ratio"`
	Preferred   personality.Personality `json:"preferred"`
	Dropped     uint64                  `json:"dropped_events"`
}

// MetricsSource produces a consistent metrics snapshot. It is called from
// HTTP handler goroutines.
type MetricsSource interface {
	FeedMetrics() Metrics
}

type Server struct {
	bus     *events.Bus
	source  MetricsSource
	session string
	log     *log.Logger

	// AllowRemote serves non-loopback clients too.
	AllowRemote bool

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	clients  atomic.Int64
}

func NewServer(bus *events.Bus, source MetricsSource, session string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		bus:     bus,
		source:  source,
		session: session,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Clients returns the number of connected event clients.
func (s *Server) Clients() int {
	return int(s.clients.Load())
}

// Handler routes /v1/events and /v1/metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/events", s.EventsHandler())
	mux.HandleFunc("/v1/metrics", s.MetricsHandler())
	return mux
}

func (s *Server) MetricsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		if s.source == nil {
			http.Error(rw, "no metrics source", http.StatusServiceUnavailable)
			return
		}
		m := s.source.FeedMetrics()
		m.Dropped = s.bus.Dropped()
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(m)
	}
}

func (s *Server) EventsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		hello, ok := s.handshake(conn)
		if !ok {
			return
		}
		id := "C" + strconv.FormatUint(s.nextID.Add(1), 10)
		sub := s.bus.Subscribe(clientQueue, hello.Kinds...)
		defer sub.Close()

		welcome, _ := json.Marshal(Welcome{
			Type:            "WELCOME",
			ProtocolVersion: Version,
			Client:          id,
			Session:         s.session,
		})
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, welcome); err != nil {
			return
		}

		s.clients.Add(1)
		defer s.clients.Add(-1)
		s.log.Printf("feed client %s connected from %s", id, r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		writeDone := make(chan struct{})
		go func() {
			defer close(writeDone)
			defer cancel()
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-sub.C:
					if !ok {
						return
					}
					b, err := json.Marshal(Frame{Type: "EVENT", Event: ev})
					if err != nil {
						s.log.Printf("feed encode %s: %v", ev.Kind, err)
						continue
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						return
					}
				}
			}
		}()

		// Client messages after HELLO are ignored; reading drives close detection.
		go func() {
			for {
				_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
				if _, _, err := conn.ReadMessage(); err != nil {
					cancel()
					return
				}
			}
		}()

		<-ctx.Done()
		<-writeDone
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		s.log.Printf("feed client %s disconnected", id)
	}
}

func (s *Server) handshake(conn *websocket.Conn) (Hello, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(helloTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return Hello{}, false
	}
	var h Hello
	if err := json.Unmarshal(msg, &h); err != nil {
		closeWith(conn, websocket.ClosePolicyViolation, "bad hello")
		return Hello{}, false
	}
	if h.Type != "HELLO" || h.ProtocolVersion != Version {
		closeWith(conn, websocket.ClosePolicyViolation, "expected HELLO")
		return Hello{}, false
	}
	return h, true
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx2)
	}()
	s.log.Printf("feed listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) allowed(r *http.Request) bool {
	return s.AllowRemote || isLoopbackRemote(r.RemoteAddr)
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
