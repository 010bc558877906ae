package game

import (
	"io"
	"log"
	"math/rand"
	"slices"
	"sync"
	"time"

	"bikeadventure/internal/biome"
	"bikeadventure/internal/config"
	"bikeadventure/internal/events"
	"bikeadventure/internal/feed"
	"bikeadventure/internal/perf"
	"bikeadventure/internal/personality"
	"bikeadventure/internal/profiling"
	"bikeadventure/internal/streaming"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

// Session owns every generation component for one ride. All methods except
// FeedMetrics must be called from the goroutine driving Tick.
type Session struct {
	ID uuid.UUID

	cfg    config.Config
	bus    *events.Bus
	logger *log.Logger
	prof   *profiling.Profiler

	rng     *rand.Rand
	model   *biome.Model
	engine  *personality.Engine
	stream  *streaming.Controller
	gov     *perf.Governor
	history *personality.History

	intersections map[streaming.Coord]streaming.Intersection
	hints         map[streaming.Coord]personality.Hints
	resolved      map[streaming.Coord]bool
	objects       map[streaming.Coord][]perf.ObjectID

	frame   uint64
	pos     mgl64.Vec3
	heading mgl64.Vec3

	mu   sync.RWMutex
	snap feed.Metrics
}

type sessionOptions struct {
	id        uuid.UUID
	bus       *events.Bus
	logger    *log.Logger
	prof      *profiling.Profiler
	history   *personality.History
	generator streaming.ContentGenerator
	clock     streaming.Clock
	sampler   perf.MemorySampler
}

// Option configures a Session.
type Option func(*sessionOptions)

func WithID(id uuid.UUID) Option {
	return func(o *sessionOptions) { o.id = id }
}

func WithBus(bus *events.Bus) Option {
	return func(o *sessionOptions) { o.bus = bus }
}

func WithLogger(l *log.Logger) Option {
	return func(o *sessionOptions) { o.logger = l }
}

func WithProfiler(p *profiling.Profiler) Option {
	return func(o *sessionOptions) { o.prof = p }
}

// WithHistory resumes from a saved choice history.
func WithHistory(h *personality.History) Option {
	return func(o *sessionOptions) { o.history = h }
}

func WithGenerator(g streaming.ContentGenerator) Option {
	return func(o *sessionOptions) { o.generator = g }
}

func WithClock(c streaming.Clock) Option {
	return func(o *sessionOptions) { o.clock = c }
}

func WithSampler(s perf.MemorySampler) Option {
	return func(o *sessionOptions) { o.sampler = s }
}

// NewSession wires the model, engine, streaming controller and governor
// from cfg. Everything draws from one RNG seeded with the world seed.
func NewSession(cfg config.Config, opts ...Option) *Session {
	o := sessionOptions{id: uuid.New()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.bus == nil {
		o.bus = events.NewBus()
	}
	if o.logger == nil {
		o.logger = log.New(io.Discard, "", 0)
	}
	if o.history == nil {
		o.history = personality.NewHistory()
	}

	rng := rand.New(rand.NewSource(cfg.World.Seed))
	model := biome.DefaultModel()

	engineOpts := append(EngineOptions(cfg),
		personality.WithBus(o.bus),
		personality.WithLogger(o.logger),
	)

	streamOpts := []streaming.Option{
		streaming.WithBus(o.bus),
		streaming.WithLogger(o.logger),
		streaming.WithProfiler(o.prof),
	}
	if o.clock != nil {
		streamOpts = append(streamOpts, streaming.WithClock(o.clock))
	}

	govOpts := []perf.Option{
		perf.WithBus(o.bus),
		perf.WithLogger(o.logger),
		perf.WithProfiler(o.prof),
	}
	if o.sampler != nil {
		govOpts = append(govOpts, perf.WithSampler(o.sampler))
	}

	s := &Session{
		ID:            o.id,
		cfg:           cfg,
		bus:           o.bus,
		logger:        o.logger,
		prof:          o.prof,
		rng:           rng,
		model:         model,
		engine:        personality.NewEngine(rng, engineOpts...),
		stream:        streaming.New(StreamingConfig(cfg), model, o.generator, streamOpts...),
		gov:           perf.NewGovernor(PerfSettings(cfg), govOpts...),
		history:       o.history,
		intersections: make(map[streaming.Coord]streaming.Intersection),
		hints:         make(map[streaming.Coord]personality.Hints),
		resolved:      make(map[streaming.Coord]bool),
		objects:       make(map[streaming.Coord][]perf.ObjectID),
		heading:       mgl64.Vec3{1, 0, 0},
	}
	s.publishSnapshot()
	return s
}

func (s *Session) Bus() *events.Bus { return s.bus }
func (s *Session) Model() *biome.Model { return s.model }
func (s *Session) Engine() *personality.Engine { return s.engine }
func (s *Session) Streaming() *streaming.Controller { return s.stream }
func (s *Session) Governor() *perf.Governor { return s.gov }
func (s *Session) Frame() uint64 { return s.frame }

// Tick advances one frame: stream around the rider, prepare hints for new
// intersections, sync tracked content and let the governor adapt.
func (s *Session) Tick(dt time.Duration, pos, vel mgl64.Vec3) {
	s.prof.ResetFrame()
	defer s.publishSnapshot()

	s.pos = pos
	if vel.Len() > 0 {
		s.heading = vel.Normalize()
	}

	s.stream.UpdateForPlayer(pos, vel)
	for _, ix := range s.stream.DrainIntersections() {
		s.intersections[ix.Coord] = ix
		s.hints[ix.Coord] = s.engine.GenerateHints(ix.Current, ix.Left, ix.Right, s.history)
		delete(s.resolved, ix.Coord)
	}
	s.syncObjects()

	s.gov.Update(perf.Sample{
		FrameTime:         dt,
		StreamingMemoryKB: s.stream.TotalMemoryUsageKB(),
		SectionsLoaded:    s.stream.Metrics().LoadedSections,
	}, pos)
	s.frame++
}

// syncObjects mirrors loaded sections into the governor's object set and
// forgets intersections whose section is gone.
func (s *Session) syncObjects() {
	defer s.prof.Track("game.syncObjects")()
	live := make(map[streaming.Coord]bool)
	for _, sec := range s.stream.ActiveSections() {
		if !sec.Loaded {
			continue
		}
		live[sec.Coord] = true
		if _, ok := s.objects[sec.Coord]; ok {
			continue
		}
		ids := []perf.ObjectID{
			s.gov.Track(perf.Mesh, sec.Center, sec.Biome),
			s.gov.Track(perf.ParticleSystem, sec.Center, sec.Biome),
		}
		if sec.HasIntersection {
			ids = append(ids, s.gov.Track(perf.ProceduralActor, sec.Intersection.Position, sec.Biome))
		}
		s.objects[sec.Coord] = ids
	}
	for coord, ids := range s.objects {
		if live[coord] {
			continue
		}
		for _, id := range ids {
			s.gov.Untrack(id)
		}
		delete(s.objects, coord)
	}
	for coord := range s.intersections {
		if _, ok := s.stream.Section(coord); !ok {
			delete(s.intersections, coord)
			delete(s.hints, coord)
			delete(s.resolved, coord)
		}
	}
}

// Hints returns the hints prepared for the intersection in coord.
func (s *Session) Hints(coord streaming.Coord) (personality.Hints, bool) {
	h, ok := s.hints[coord]
	return h, ok
}

// IntersectionAt returns the unresolved intersection in the section
// containing pos.
func (s *Session) IntersectionAt(pos mgl64.Vec3) (streaming.Intersection, bool) {
	coord := s.stream.ToSectionCoords(pos)
	ix, ok := s.intersections[coord]
	if !ok || s.resolved[coord] {
		return streaming.Intersection{}, false
	}
	return ix, true
}

// Intersections lists the planned intersections in coordinate order.
func (s *Session) Intersections() []streaming.Intersection {
	out := make([]streaming.Intersection, 0, len(s.intersections))
	for _, ix := range s.intersections {
		out = append(out, ix)
	}
	slices.SortFunc(out, func(a, b streaming.Intersection) int {
		if a.Coord.X != b.Coord.X {
			return a.Coord.X - b.Coord.X
		}
		if a.Coord.Y != b.Coord.Y {
			return a.Coord.Y - b.Coord.Y
		}
		return a.Coord.Z - b.Coord.Z
	})
	return out
}

// ResolveChoice records the rider taking the left or right path at coord
// and streams the chosen biome one section ahead unless that section is
// already loaded. Each intersection resolves at most once.
func (s *Session) ResolveChoice(coord streaming.Coord, left bool) (biome.Biome, bool) {
	ix, ok := s.intersections[coord]
	if !ok || s.resolved[coord] {
		return biome.None, false
	}
	h := s.hints[coord]
	chosen, p := ix.Right, h.RightPersonality
	if left {
		chosen, p = ix.Left, h.LeftPersonality
	}
	s.engine.UpdateChoiceHistory(s.history, left, chosen, p)
	s.resolved[coord] = true
	s.stream.StreamInSection(s.pos, chosen, s.heading)
	s.logger.Printf("choice at %v: %s path to %s (%s)", coord, side(left), chosen, p)
	return chosen, true
}

// History returns a copy of the rider's choice history.
func (s *Session) History() *personality.History {
	return s.history.Clone()
}

// FeedMetrics returns the snapshot taken at the end of the last Tick. It is
// safe to call from any goroutine.
func (s *Session) FeedMetrics() feed.Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.snap
	m.Memory = make(map[string]float64, len(s.snap.Memory))
	for k, v := range s.snap.Memory {
		m.Memory[k] = v
	}
	return m
}

func (s *Session) publishSnapshot() {
	m := feed.Metrics{
		Session:     s.ID.String(),
		Frame:       s.frame,
		Streaming:   s.stream.Metrics(),
		Performance: s.gov.Metrics(),
		Memory:      s.gov.MemoryBreakdown(),
		LeftRatio:   s.history.LeftRatio(),
		Preferred:   s.history.Preferred,
	}
	s.mu.Lock()
	s.snap = m
	s.mu.Unlock()
}

// Close stops streaming and releases all content.
func (s *Session) Close() {
	s.stream.Close()
	for coord, ids := range s.objects {
		for _, id := range ids {
			s.gov.Untrack(id)
		}
		delete(s.objects, coord)
	}
}

func side(left bool) string {
	if left {
		return "left"
	}
	return "right"
}
