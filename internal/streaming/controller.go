package streaming

import (
	"context"
	"io"
	"log"
	"math"
	"math/rand"
	"slices"
	"time"

	"bikeadventure/internal/biome"
	"bikeadventure/internal/events"
	"bikeadventure/internal/profiling"

	"github.com/go-gl/mathgl/mgl64"
)

// Config sizes the section grid and its budgets. Distances are world units.
type Config struct {
	SectionSize          float64
	MaxStreamingDistance float64
	MaxActiveSections    int
	MemoryBudgetKB       float64
	UnloadAfter          time.Duration
	Predictive           bool
	PredictiveMultiplier float64
	// Workers is the number of content generation goroutines. Zero runs
	// generation inline so sections are loaded before StreamInSection returns.
	Workers    int
	Seed       int64
	StartBiome biome.Biome
}

// DefaultConfig returns the stock streaming settings.
func DefaultConfig() Config {
	return Config{
		SectionSize:          2000,
		MaxStreamingDistance: 5000,
		MaxActiveSections:    9,
		MemoryBudgetKB:       4194304,
		UnloadAfter:          30 * time.Second,
		Predictive:           true,
		PredictiveMultiplier: 2,
		StartBiome:           biome.Countryside,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SectionSize <= 0 {
		c.SectionSize = d.SectionSize
	}
	if c.MaxStreamingDistance <= 0 {
		c.MaxStreamingDistance = d.MaxStreamingDistance
	}
	if c.MaxActiveSections <= 0 {
		c.MaxActiveSections = d.MaxActiveSections
	}
	if c.MemoryBudgetKB <= 0 {
		c.MemoryBudgetKB = d.MemoryBudgetKB
	}
	if c.UnloadAfter <= 0 {
		c.UnloadAfter = d.UnloadAfter
	}
	if c.PredictiveMultiplier < 0 {
		c.PredictiveMultiplier = 0
	}
	if c.Workers < 0 {
		c.Workers = 0
	}
	if !c.StartBiome.Valid() {
		c.StartBiome = d.StartBiome
	}
	return c
}

// Metrics is a snapshot of the streaming state, refreshed every update.
type Metrics struct {
	TotalMemoryKB  float64 `json:"total_memory_kb"`
	ActiveSections int     `json:"active_sections"`
	LoadedSections int     `json:"loaded_sections"`
	PendingLoads   int     `json:"pending_loads"`
	AvgLoadMs      float64 `json:"avg_load_ms"`
	AvgUnloadMs    float64 `json:"avg_unload_ms"`
	FrameImpactMs  float64 `json:"frame_impact_ms"`
	WithinBudget   bool    `json:"within_budget"`
	DiscardedLoads int     `json:"discarded_loads"`
}

// SectionEvent is published with SectionLoaded and SectionUnloaded.
type SectionEvent struct {
	Coord Coord       `json:"coord"`
	Biome biome.Biome `json:"biome"`
}

// BudgetEvent is published with MemoryBudgetExceeded.
type BudgetEvent struct {
	UsedKB   float64 `json:"used_kb"`
	BudgetKB float64 `json:"budget_kb"`
}

// Clock supplies session time for access bookkeeping.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Option configures a Controller.
type Option func(*Controller)

func WithBus(bus *events.Bus) Option {
	return func(c *Controller) { c.bus = bus }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithProfiler(p *profiling.Profiler) Option {
	return func(c *Controller) { c.prof = p }
}

func WithClock(clock Clock) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// Controller decides which sections exist around the player. All methods
// must be called from the single owning goroutine; only content generation
// runs elsewhere.
type Controller struct {
	cfg    Config
	model  *biome.Model
	gen    ContentGenerator
	bus    *events.Bus
	logger *log.Logger
	prof   *profiling.Profiler
	clock  Clock
	rng    *rand.Rand
	noise  *terrainNoise

	sections map[Coord]*Section
	// pending maps a coordinate to the generation of its outstanding load.
	pending  map[Coord]uint64
	backlog  []Coord
	nextGen  uint64
	planned  []Intersection
	loader   *loader
	inflight int

	metrics Metrics
}

// New creates a controller. A nil generator produces empty content.
func New(cfg Config, model *biome.Model, gen ContentGenerator, opts ...Option) *Controller {
	cfg = cfg.withDefaults()
	if model == nil {
		model = biome.DefaultModel()
	}
	if gen == nil {
		gen = NopGenerator{}
	}
	c := &Controller{
		cfg:      cfg,
		model:    model,
		gen:      gen,
		logger:   log.New(io.Discard, "", 0),
		clock:    wallClock{},
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		noise:    newTerrainNoise(cfg.Seed),
		sections: make(map[Coord]*Section),
		pending:  make(map[Coord]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	if cfg.Workers > 0 {
		c.loader = newLoader(gen, cfg.Workers, max(64, cfg.MaxActiveSections*4))
	}
	c.metrics.WithinBudget = true
	return c
}

// Config returns the effective configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// Close stops background generation and releases every section.
func (c *Controller) Close() {
	if c.loader != nil {
		c.loader.close()
		c.loader = nil
	}
	for _, coord := range c.sortedCoords() {
		c.unload(coord)
	}
	c.inflight = 0
}

// ToSectionCoords maps a world position to its grid coordinate.
func (c *Controller) ToSectionCoords(pos mgl64.Vec3) Coord {
	s := c.cfg.SectionSize
	return Coord{X: floorDiv(pos.X(), s), Y: floorDiv(pos.Y(), s), Z: floorDiv(pos.Z(), s)}
}

// SectionCenter is the world position at the middle of a grid cell.
func (c *Controller) SectionCenter(coord Coord) mgl64.Vec3 {
	s := c.cfg.SectionSize
	return mgl64.Vec3{
		float64(coord.X)*s + s/2,
		float64(coord.Y)*s + s/2,
		float64(coord.Z)*s + s/2,
	}
}

// StreamInSection admits the section one step from playerPos along
// direction. It returns false when the budget or the section cap declines
// the admission or its content could not be generated.
func (c *Controller) StreamInSection(playerPos mgl64.Vec3, b biome.Biome, direction mgl64.Vec3) bool {
	defer c.prof.Track("streaming.StreamInSection")()
	target := c.ToSectionCoords(playerPos.Add(direction.Mul(c.cfg.SectionSize)))
	return c.streamCoord(playerPos, target, b)
}

func (c *Controller) streamCoord(playerPos mgl64.Vec3, coord Coord, b biome.Biome) bool {
	now := c.clock.Now()
	if s, ok := c.sections[coord]; ok {
		s.LastAccess = now
		return true
	}
	if used := c.TotalMemoryUsageKB(); used >= c.cfg.MemoryBudgetKB {
		c.logger.Printf("memory budget exceeded: %.0f/%.0f KB, declining %v", used, c.cfg.MemoryBudgetKB, coord)
		c.bus.Publish(events.MemoryBudgetExceeded, BudgetEvent{UsedKB: used, BudgetKB: c.cfg.MemoryBudgetKB})
		return false
	}
	if len(c.sections) >= c.cfg.MaxActiveSections {
		c.CleanupDistantSections(playerPos, true)
		if len(c.sections) >= c.cfg.MaxActiveSections {
			return false
		}
	}
	if !b.Valid() {
		b = biome.Countryside
	}

	center := c.SectionCenter(coord)
	half := mgl64.Vec3{c.cfg.SectionSize / 2, c.cfg.SectionSize / 2, c.cfg.SectionSize / 2}
	c.nextGen++
	s := &Section{
		Coord:       coord,
		Biome:       b,
		Center:      center,
		Min:         center.Sub(half),
		Max:         center.Add(half),
		Elevation:   c.noise.elevation(center.X(), center.Y(), c.cfg.SectionSize),
		LastAccess:  now,
		gen:         c.nextGen,
		requestedAt: now,
	}
	if hasIntersectionAt(coord) {
		s.HasIntersection = true
		s.Intersection = c.planIntersection(s)
	}
	s.MemoryKB = EstimateMemoryKB(b, s.HasIntersection)
	c.sections[coord] = s

	if s.HasIntersection {
		c.planned = append(c.planned, s.Intersection)
		c.bus.Publish(events.IntersectionPlanned, s.Intersection)
	}
	c.dispatch(s)
	_, ok := c.sections[coord]
	return ok
}

// planIntersection chooses the two onward biomes: the left with no
// history and the right with the left excluded.
func (c *Controller) planIntersection(s *Section) Intersection {
	left := c.model.PickNextBiome(c.rng, s.Biome, nil)
	right := c.model.PickNextBiome(c.rng, s.Biome, []biome.Biome{left})
	return Intersection{
		Coord:    s.Coord,
		Current:  s.Biome,
		Left:     left,
		Right:    right,
		Shape:    c.model.PreferredShape(c.rng, s.Biome),
		Position: s.Center,
	}
}

func (c *Controller) job(s *Section) loadJob {
	job := loadJob{
		coord: s.Coord,
		gen:   s.gen,
		segment: SegmentRequest{
			Coord:     s.Coord,
			Biome:     s.Biome,
			Center:    s.Center,
			Size:      c.cfg.SectionSize,
			Elevation: s.Elevation,
			Params:    c.model.Params(s.Biome),
		},
	}
	if s.HasIntersection {
		job.intersection = &IntersectionRequest{
			Intersection: s.Intersection,
			Params:       c.model.Params(s.Biome),
		}
	}
	return job
}

// dispatch starts loading a section. Inline mode applies the result
// immediately; otherwise the job is queued, or parked in the backlog when
// the queue is full.
func (c *Controller) dispatch(s *Section) {
	job := c.job(s)
	if c.loader == nil {
		stop := c.prof.Track("streaming.GenerateContent")
		res := generate(context.Background(), c.gen, job)
		stop()
		c.apply(res)
		return
	}
	c.pending[s.Coord] = s.gen
	if c.loader.submit(job) {
		c.inflight++
		return
	}
	if !slices.Contains(c.backlog, s.Coord) {
		c.backlog = append(c.backlog, s.Coord)
	}
}

// ApplyLoads installs every finished load and retries parked jobs. It is
// called by UpdateForPlayer and may be called directly.
func (c *Controller) ApplyLoads() {
	if c.loader == nil {
		return
	}
	for drained := false; !drained; {
		select {
		case res := <-c.loader.results:
			c.inflight--
			c.apply(res)
		default:
			drained = true
		}
	}
	if len(c.backlog) == 0 {
		return
	}
	parked := c.backlog
	c.backlog = nil
	for i, coord := range parked {
		s, ok := c.sections[coord]
		if !ok || c.pending[coord] != s.gen {
			continue
		}
		if !c.loader.submit(c.job(s)) {
			c.backlog = append(c.backlog, parked[i:]...)
			return
		}
		c.inflight++
	}
}

// apply installs a result, or discards it when its section was unloaded,
// replaced or already loaded while the load was in flight.
func (c *Controller) apply(res loadResult) {
	s, ok := c.sections[res.coord]
	if !ok || s.gen != res.gen || s.Loaded {
		releaseAll(res.content)
		c.metrics.DiscardedLoads++
		return
	}
	delete(c.pending, res.coord)
	if res.err != nil {
		c.logger.Printf("load %v (%s) failed: %v", res.coord, s.Biome, res.err)
		delete(c.sections, res.coord)
		return
	}
	s.content = res.content
	s.Loaded = true
	elapsed := float64(c.clock.Now().Sub(s.requestedAt).Microseconds()) / 1000.0
	c.metrics.AvgLoadMs = (c.metrics.AvgLoadMs + elapsed) * 0.5
	c.bus.Publish(events.SectionLoaded, SectionEvent{Coord: s.Coord, Biome: s.Biome})
}

// UpdateForPlayer is the per-frame entry point.
func (c *Controller) UpdateForPlayer(pos, vel mgl64.Vec3) {
	defer c.prof.Track("streaming.UpdateForPlayer")()
	c.ApplyLoads()
	now := c.clock.Now()

	if s, ok := c.sections[c.ToSectionCoords(pos)]; ok {
		s.LastAccess = now
		s.Visible = true
	}

	required := c.SectionsInRange(pos)
	if c.cfg.Predictive && vel.Len() > 0 {
		future := pos.Add(vel.Mul(c.cfg.PredictiveMultiplier))
		for _, coord := range c.SectionsInRange(future) {
			if !slices.Contains(required, coord) {
				required = append(required, coord)
			}
		}
	}
	for _, coord := range required {
		if s, ok := c.sections[coord]; ok {
			s.LastAccess = now
			continue
		}
		c.streamCoord(pos, coord, c.DetermineSectionBiome(coord))
	}

	c.updateVisibility(pos)
	c.CleanupDistantSections(pos, false)
	c.refreshMetrics()
}

// SectionsInRange lists the grid cells around pos whose centers lie within
// the streaming distance, nearest ring first. The square is sized so a full
// neighbourhood fits the section cap.
func (c *Controller) SectionsInRange(pos mgl64.Vec3) []Coord {
	center := c.ToSectionCoords(pos)
	radius := int(math.Sqrt(float64(c.cfg.MaxActiveSections))) / 2
	out := make([]Coord, 0, (2*radius+1)*(2*radius+1))
	add := func(x, y int) {
		coord := Coord{X: x, Y: y, Z: center.Z}
		if c.SectionCenter(coord).Sub(pos).Len() <= c.cfg.MaxStreamingDistance {
			out = append(out, coord)
		}
	}
	add(center.X, center.Y)
	for r := 1; r <= radius; r++ {
		x0, x1 := center.X-r, center.X+r
		y0, y1 := center.Y-r, center.Y+r
		for xk := x0; xk <= x1; xk++ {
			add(xk, y0)
		}
		for yk := y0 + 1; yk <= y1-1; yk++ {
			add(x1, yk)
		}
		for xk := x1; xk >= x0; xk-- {
			add(xk, y1)
		}
		for yk := y1 - 1; yk >= y0+1; yk-- {
			add(x0, yk)
		}
	}
	return out
}

// DetermineSectionBiome picks a biome for a new cell from the nearest
// active section, steering the draw left or right with coherent noise.
// The first section of a ride takes the start biome.
func (c *Controller) DetermineSectionBiome(coord Coord) biome.Biome {
	if len(c.sections) == 0 {
		return c.cfg.StartBiome
	}
	near := c.cfg.StartBiome
	target := c.SectionCenter(coord)
	best := math.Inf(1)
	for _, k := range c.sortedCoords() {
		s := c.sections[k]
		if d := s.Center.Sub(target).Len(); d < best {
			best = d
			near = s.Biome
		}
	}
	return c.model.NextBiome(c.rng, near, c.noise.leftChoice(coord), []biome.Biome{near})
}

// PreloadSections admits up to count cells ahead of pos along direction
// and returns how many new sections were created.
func (c *Controller) PreloadSections(pos, direction mgl64.Vec3, count int) int {
	if direction.Len() == 0 {
		return 0
	}
	dir := direction.Normalize()
	admitted := 0
	for i := 1; i <= count; i++ {
		coord := c.ToSectionCoords(pos.Add(dir.Mul(c.cfg.SectionSize * float64(i))))
		if _, ok := c.sections[coord]; ok {
			continue
		}
		if c.streamCoord(pos, coord, c.DetermineSectionBiome(coord)) {
			admitted++
		}
	}
	return admitted
}

func (c *Controller) updateVisibility(pos mgl64.Vec3) {
	limit := c.cfg.SectionSize * 1.5
	for _, s := range c.sections {
		s.Visible = s.Center.Sub(pos).Len() <= limit
	}
}

// CleanupDistantSections unloads sections the player has left behind and
// returns how many were removed. Forced cleanup evicts everything beyond
// 1.5 sections; normal cleanup uses the streaming distance and idle time.
func (c *Controller) CleanupDistantSections(pos mgl64.Vec3, force bool) int {
	defer c.prof.Track("streaming.CleanupDistantSections")()
	now := c.clock.Now()
	forceLimit := c.cfg.SectionSize * 1.5
	var doomed []Coord
	for coord, s := range c.sections {
		d := s.Center.Sub(pos).Len()
		if force {
			if d > forceLimit {
				doomed = append(doomed, coord)
			}
			continue
		}
		if d > c.cfg.MaxStreamingDistance || now.Sub(s.LastAccess) > c.cfg.UnloadAfter {
			doomed = append(doomed, coord)
		}
	}
	slices.SortFunc(doomed, compareCoords)
	for _, coord := range doomed {
		c.unload(coord)
	}
	return len(doomed)
}

// ForceUnloadSection removes a section regardless of distance.
func (c *Controller) ForceUnloadSection(coord Coord) bool {
	if _, ok := c.sections[coord]; !ok {
		return false
	}
	c.unload(coord)
	return true
}

// unload releases a section's content and then removes it. A load still in
// flight for it will be discarded on arrival.
func (c *Controller) unload(coord Coord) {
	s, ok := c.sections[coord]
	if !ok {
		return
	}
	start := time.Now()
	s.release()
	delete(c.sections, coord)
	delete(c.pending, coord)
	if i := slices.Index(c.backlog, coord); i >= 0 {
		c.backlog = slices.Delete(c.backlog, i, i+1)
	}
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0
	c.metrics.AvgUnloadMs = (c.metrics.AvgUnloadMs + elapsed) * 0.5
	c.bus.Publish(events.SectionUnloaded, SectionEvent{Coord: coord, Biome: s.Biome})
}

// SectionAt returns the section containing pos.
func (c *Controller) SectionAt(pos mgl64.Vec3) (Section, bool) {
	s, ok := c.sections[c.ToSectionCoords(pos)]
	if !ok {
		return Section{}, false
	}
	return s.snapshot(), true
}

// Section returns the section at coord.
func (c *Controller) Section(coord Coord) (Section, bool) {
	s, ok := c.sections[coord]
	if !ok {
		return Section{}, false
	}
	return s.snapshot(), true
}

// ActiveSections returns every section ordered by coordinate.
func (c *Controller) ActiveSections() []Section {
	out := make([]Section, 0, len(c.sections))
	for _, k := range c.sortedCoords() {
		out = append(out, c.sections[k].snapshot())
	}
	return out
}

// DrainIntersections returns the intersections planned since the last call.
func (c *Controller) DrainIntersections() []Intersection {
	out := c.planned
	c.planned = nil
	return out
}

// TotalMemoryUsageKB sums the estimated cost of every section.
func (c *Controller) TotalMemoryUsageKB() float64 {
	total := 0.0
	for _, s := range c.sections {
		total += s.MemoryKB
	}
	return total
}

// WithinMemoryBudget reports whether usage is below the budget.
func (c *Controller) WithinMemoryBudget() bool {
	return c.TotalMemoryUsageKB() < c.cfg.MemoryBudgetKB
}

// Pending returns the number of loads handed to workers and not yet applied.
func (c *Controller) Pending() int {
	return c.inflight + len(c.backlog)
}

// Metrics returns the snapshot from the last update.
func (c *Controller) Metrics() Metrics {
	return c.metrics
}

func (c *Controller) refreshMetrics() {
	m := &c.metrics
	m.TotalMemoryKB = c.TotalMemoryUsageKB()
	m.LoadedSections = len(c.sections)
	m.ActiveSections = 0
	for _, s := range c.sections {
		if s.Visible {
			m.ActiveSections++
		}
	}
	m.PendingLoads = c.Pending()
	m.FrameImpactMs = float64(m.ActiveSections) * 0.1
	m.WithinBudget = m.TotalMemoryKB < c.cfg.MemoryBudgetKB
}

func (c *Controller) sortedCoords() []Coord {
	keys := make([]Coord, 0, len(c.sections))
	for k := range c.sections {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareCoords)
	return keys
}
