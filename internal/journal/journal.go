package journal

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"bikeadventure/internal/events"
)

// Entry is one journaled event.
type Entry struct {
	Session string      `json:"session"`
	Seq     uint64      `json:"seq"`
	Kind    events.Kind `json:"kind"`
	Time    time.Time   `json:"time"`
	Data    any         `json:"data,omitempty"`
}

// FlushInterval is how often a running journal syncs its file.
const FlushInterval = time.Second

// Journal records everything published on a bus for one ride.
type Journal struct {
	session    string
	w          *JSONLZstdWriter
	sub        *events.Subscription
	logger     *log.Logger
	seq        uint64
	flushEvery time.Duration
	done       chan struct{}

	mu      sync.Mutex
	started bool
	closed  bool
}

// New subscribes to bus and writes events under dir. Run must be called
// to start draining.
func New(dir, session string, bus *events.Bus, logger *log.Logger) *Journal {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Journal{
		session:    session,
		w:          NewJSONLZstdWriter(dir, "ride"),
		sub:        bus.Subscribe(1024),
		logger:     logger,
		flushEvery: FlushInterval,
		done:       make(chan struct{}),
	}
}

// Run writes events until ctx is cancelled or Close is called, syncing the
// file every flush interval. Only the first call does anything, and a
// journal that was already closed is not restarted.
func (j *Journal) Run(ctx context.Context) {
	j.mu.Lock()
	if j.started || j.closed {
		j.mu.Unlock()
		return
	}
	j.started = true
	j.mu.Unlock()
	defer close(j.done)

	ticker := time.NewTicker(j.flushEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			j.drain()
			j.sync()
			return
		case <-ticker.C:
			j.sync()
		case ev, ok := <-j.sub.C:
			if !ok {
				return
			}
			j.write(ev)
		}
	}
}

func (j *Journal) sync() {
	if err := j.w.Sync(); err != nil {
		j.logger.Printf("journal sync failed: %v", err)
	}
}

func (j *Journal) drain() {
	for {
		select {
		case ev, ok := <-j.sub.C:
			if !ok {
				return
			}
			j.write(ev)
		default:
			return
		}
	}
}

func (j *Journal) write(ev events.Event) {
	j.seq++
	if err := j.w.Write(Entry{
		Session: j.session,
		Seq:     j.seq,
		Kind:    ev.Kind,
		Time:    ev.Time,
		Data:    ev.Data,
	}); err != nil {
		j.logger.Printf("journal write failed: %v", err)
	}
}

// Written returns how many entries have been written.
func (j *Journal) Written() uint64 {
	return j.seq
}

// Close unsubscribes, waits for a running Run to write what it already
// received and closes the file. It is safe without Run and safe to repeat.
func (j *Journal) Close() error {
	j.mu.Lock()
	j.closed = true
	started := j.started
	j.mu.Unlock()

	j.sub.Close()
	if started {
		<-j.done
	}
	return j.w.Close()
}
