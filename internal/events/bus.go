package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Kind names a notification published by the generation core.
type Kind string

const (
	SectionLoaded               Kind = "section_loaded"
	SectionUnloaded             Kind = "section_unloaded"
	IntersectionPlanned         Kind = "intersection_planned"
	MemoryBudgetExceeded        Kind = "memory_budget_exceeded"
	PathPersonalityGenerated    Kind = "path_personality_generated"
	PlayerPatternDetected       Kind = "player_pattern_detected"
	PerformanceTargetMissed     Kind = "performance_target_missed"
	LODLevelChanged             Kind = "lod_level_changed"
	AdaptiveOptimizationApplied Kind = "adaptive_optimization_applied"
)

// Event is one published notification. Data is a JSON-friendly payload
// owned by the publisher.
type Event struct {
	Kind Kind      `json:"kind"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

// Bus fans events out to subscribers without ever blocking the publisher.
// A subscriber whose buffer is full misses the event.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	nextID  uint64
	dropped atomic.Uint64
	now     func() time.Time
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[uint64]*Subscription),
		now:  time.Now,
	}
}

// Subscription receives events on C until Close is called.
type Subscription struct {
	C     <-chan Event
	ch    chan Event
	id    uint64
	kinds map[Kind]struct{}
	bus   *Bus
}

// Subscribe registers a subscriber with the given buffer size. With no
// kinds it receives every event.
func (b *Bus) Subscribe(buffer int, kinds ...Kind) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	s := &Subscription{C: ch, ch: ch, bus: b}
	if len(kinds) > 0 {
		s.kinds = make(map[Kind]struct{}, len(kinds))
		for _, k := range kinds {
			s.kinds[k] = struct{}{}
		}
	}
	b.mu.Lock()
	b.nextID++
	s.id = b.nextID
	b.subs[s.id] = s
	b.mu.Unlock()
	return s
}

// Close unregisters the subscription and closes C. It is safe to call twice.
func (s *Subscription) Close() {
	b := s.bus
	b.mu.Lock()
	if _, ok := b.subs[s.id]; ok {
		delete(b.subs, s.id)
		close(s.ch)
	}
	b.mu.Unlock()
}

// Publish delivers an event to every interested subscriber. A nil bus
// discards it.
func (b *Bus) Publish(kind Kind, data any) {
	if b == nil {
		return
	}
	ev := Event{Kind: kind, Time: b.now(), Data: data}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s.kinds != nil {
			if _, ok := s.kinds[kind]; !ok {
				continue
			}
		}
		select {
		case s.ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (b *Bus) Dropped() uint64 {
	if b == nil {
		return 0
	}
	return b.dropped.Load()
}
