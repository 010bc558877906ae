package perf

import (
	"io"
	"log"
	"math"
	"runtime"
	"slices"
	"time"

	"bikeadventure/internal/biome"
	"bikeadventure/internal/events"
	"bikeadventure/internal/profiling"

	"github.com/go-gl/mathgl/mgl64"
)

// Cull is returned by LODLevel for content beyond the culling distance.
const Cull = -1

const (
	historySize      = 60
	minAdaptSamples  = 10
	proceduralHideAt = 5000.0
	noForcedLOD      = -2
)

// Sample is one frame's measurements fed to Update.
type Sample struct {
	FrameTime time.Duration
	// MemoryMB overrides the sampler when positive.
	MemoryMB          float64
	StreamingMemoryKB float64
	SectionsLoaded    int
}

// Metrics is the governor's view of the last frame.
type Metrics struct {
	FrameTimeMs     float64 `json:"frame_time_ms"`
	AvgFrameTimeMs  float64 `json:"avg_frame_time_ms"`
	MemoryMB        float64 `json:"memory_mb"`
	AvgMemoryMB     float64 `json:"avg_memory_mb"`
	DrawCalls       int     `json:"draw_calls"`
	VisibleObjects  int     `json:"visible_objects"`
	ActiveParticles int     `json:"active_particles"`
	SectionsLoaded  int     `json:"sections_loaded"`
	LODLevel        int     `json:"lod_level"`
	LODBias         float64 `json:"lod_bias"`
	ParticleLevel   int     `json:"particle_level"`
	CPUPercent      float64 `json:"cpu_percent"`
	GPUPercent      float64 `json:"gpu_percent"`
	WithinTarget    bool    `json:"within_target"`
}

// TargetMissedEvent is published with PerformanceTargetMissed.
type TargetMissedEvent struct {
	FrameMs  float64 `json:"frame_ms"`
	TargetMs float64 `json:"target_ms"`
}

// BudgetEvent is published with MemoryBudgetExceeded.
type BudgetEvent struct {
	UsedMB   float64 `json:"used_mb"`
	BudgetMB float64 `json:"budget_mb"`
}

// LODChangeEvent is published with LODLevelChanged.
type LODChangeEvent struct {
	ID   ObjectID   `json:"id"`
	Kind ObjectKind `json:"kind"`
	From int        `json:"from"`
	To   int        `json:"to"`
}

// OptimizationEvent is published with AdaptiveOptimizationApplied.
type OptimizationEvent struct {
	Level int    `json:"level"`
	Type  string `json:"type"`
}

// MemorySampler reports process memory in megabytes.
type MemorySampler interface {
	SampleMB() float64
}

// RuntimeSampler reads the Go heap size.
type RuntimeSampler struct{}

func (RuntimeSampler) SampleMB() float64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.HeapAlloc) / (1024 * 1024)
}

// Option configures a Governor.
type Option func(*Governor)

func WithBus(bus *events.Bus) Option {
	return func(g *Governor) { g.bus = bus }
}

func WithLogger(l *log.Logger) Option {
	return func(g *Governor) {
		if l != nil {
			g.logger = l
		}
	}
}

func WithProfiler(p *profiling.Profiler) Option {
	return func(g *Governor) { g.prof = p }
}

func WithSampler(s MemorySampler) Option {
	return func(g *Governor) {
		if s != nil {
			g.sampler = s
		}
	}
}

// WithLODTable replaces the per-biome LOD thresholds.
func WithLODTable(table map[biome.Biome]LODConfig) Option {
	return func(g *Governor) {
		g.lod = make(map[biome.Biome]LODConfig, len(table))
		for b, c := range table {
			g.lod[b] = c
		}
	}
}

// Governor watches frame time and memory, adapts the global LOD bias and
// assigns per-object LOD. It runs on the frame goroutine.
type Governor struct {
	settings      Settings
	lod           map[biome.Biome]LODConfig
	bias          float64
	particleLevel int
	forcedLOD     int
	emergency     bool

	frames  ring
	memory  ring
	objects map[ObjectID]*Object
	nextID  ObjectID
	lastPos mgl64.Vec3
	metrics Metrics
	lastMem Sample

	bus     *events.Bus
	logger  *log.Logger
	prof    *profiling.Profiler
	sampler MemorySampler
}

// NewGovernor creates a governor with the given settings.
func NewGovernor(s Settings, opts ...Option) *Governor {
	g := &Governor{
		lod:       DefaultLODTable(),
		forcedLOD: noForcedLOD,
		objects:   make(map[ObjectID]*Object),
		logger:    log.New(io.Discard, "", 0),
		sampler:   RuntimeSampler{},
	}
	for _, opt := range opts {
		opt(g)
	}
	g.SetSettings(s)
	return g
}

// SetSettings replaces the settings and resets the adaptive state.
func (g *Governor) SetSettings(s Settings) {
	g.settings = s.normalized()
	g.bias = CalculateAdaptiveLODBias(g.settings)
	g.particleLevel = g.settings.ParticleLevel
}

func (g *Governor) Settings() Settings {
	return g.settings
}

// SetAdaptive toggles adaptive optimization.
func (g *Governor) SetAdaptive(on bool) {
	g.settings.Adaptive = on
}

// SetBiomeLOD overrides the thresholds for one biome.
func (g *Governor) SetBiomeLOD(b biome.Biome, c LODConfig) {
	g.lod[b] = c
}

// LODBias returns the current global bias. Higher values push detail
// transitions further out.
func (g *Governor) LODBias() float64 {
	return g.bias
}

func (g *Governor) ParticleLevel() int {
	return g.particleLevel
}

func (g *Governor) Metrics() Metrics {
	return g.metrics
}

func (g *Governor) lodConfig(b biome.Biome) LODConfig {
	if c, ok := g.lod[b]; ok {
		return c
	}
	if c, ok := g.lod[biome.Countryside]; ok {
		return c
	}
	return DefaultLODConfig()
}

// LODLevel maps a distance to a detail level for content in biome b:
// 0 is full detail, 3 the coarsest and Cull means not drawn.
func (g *Governor) LODLevel(distance float64, b biome.Biome) int {
	c := g.lodConfig(b)
	if !c.Enabled {
		return 0
	}
	d := distance / g.bias
	switch {
	case d <= c.LOD0:
		return 0
	case d <= c.LOD1:
		return 1
	case d <= c.LOD2:
		return 2
	case d <= c.Cull:
		return 3
	default:
		return Cull
	}
}

// Update ingests one frame sample and re-evaluates every tracked object
// from the player's position.
func (g *Governor) Update(s Sample, playerPos mgl64.Vec3) {
	defer g.prof.Track("perf.Update")()
	g.lastPos = playerPos
	g.lastMem = s

	frameMs := float64(s.FrameTime.Microseconds()) / 1000.0
	memMB := s.MemoryMB
	if memMB <= 0 {
		memMB = g.sampler.SampleMB() + s.StreamingMemoryKB/1024
	}
	g.frames.push(frameMs)
	g.memory.push(memMB)

	target := g.settings.TargetFrameMs()
	if frameMs > target*1.1 {
		g.bus.Publish(events.PerformanceTargetMissed, TargetMissedEvent{FrameMs: frameMs, TargetMs: target})
	}
	if memMB > g.settings.MemoryBudgetMB {
		g.bus.Publish(events.MemoryBudgetExceeded, BudgetEvent{UsedMB: memMB, BudgetMB: g.settings.MemoryBudgetMB})
	}

	if g.settings.Adaptive && g.frames.len() >= minAdaptSamples {
		g.adapt(target)
	}
	g.updateObjects(playerPos)

	m := &g.metrics
	m.FrameTimeMs = frameMs
	m.AvgFrameTimeMs = g.frames.mean()
	m.MemoryMB = memMB
	m.AvgMemoryMB = g.memory.mean()
	m.SectionsLoaded = s.SectionsLoaded
	m.VisibleObjects, m.ActiveParticles = 0, 0
	for _, o := range g.objects {
		if o.Kind == ParticleSystem {
			if o.Active {
				m.ActiveParticles++
			}
		} else if o.Visible {
			m.VisibleObjects++
		}
	}
	m.DrawCalls = m.VisibleObjects + m.ActiveParticles
	m.LODLevel = g.globalLOD()
	m.LODBias = g.bias
	m.ParticleLevel = g.particleLevel
	m.CPUPercent = clampPercent(frameMs / target * 100)
	m.GPUPercent = clampPercent(float64(m.DrawCalls) / 1000 * 100)
	m.WithinTarget = frameMs <= target*1.1 && memMB <= g.settings.MemoryBudgetMB
}

func (g *Governor) adapt(target float64) {
	avg := g.frames.mean()
	switch {
	case avg > target*1.2:
		if g.particleLevel < MaxParticleLevel {
			g.particleLevel++
			g.logger.Printf("avg frame %.1fms over %.1fms: particle level %d", avg, target, g.particleLevel)
			g.bus.Publish(events.AdaptiveOptimizationApplied, OptimizationEvent{Level: g.particleLevel, Type: "ParticleOptimization"})
		}
		g.bias = min(g.bias*1.1, MaxLODBias)
		if avg > target*2 && g.settings.Aggressive && !g.emergency {
			g.emergencyOptimization()
		}
	case avg < target*0.8:
		if g.particleLevel > 0 {
			g.particleLevel--
		}
		g.bias = max(g.bias*0.95, MinLODBias)
		if g.emergency {
			g.emergency = false
			g.forcedLOD = noForcedLOD
			g.logger.Printf("avg frame %.1fms recovered: emergency optimization lifted", avg)
		}
	}
}

// emergencyOptimization forces the coarsest LOD, stops every particle
// system and hides distant procedural actors until frame time recovers.
func (g *Governor) emergencyOptimization() {
	g.emergency = true
	g.logger.Printf("emergency optimization: forcing LOD 3")
	g.ForceApplyLODLevel(3)
	for _, o := range g.objects {
		switch o.Kind {
		case ParticleSystem:
			o.Active = false
		case ProceduralActor:
			o.Visible = o.Position.Sub(g.lastPos).Len() <= proceduralHideAt/2
		}
	}
	g.bus.Publish(events.AdaptiveOptimizationApplied, OptimizationEvent{Level: 2, Type: "EmergencyOptimization"})
}

// ForceApplyLODLevel pins every mesh to level until cleared or until an
// emergency is lifted.
func (g *Governor) ForceApplyLODLevel(level int) {
	g.forcedLOD = max(Cull, min(3, level))
	for _, id := range g.sortedIDs() {
		if o := g.objects[id]; o.Kind == Mesh {
			g.setLOD(o, g.forcedLOD)
		}
	}
}

// ClearForcedLOD returns meshes to distance-based LOD on the next update.
func (g *Governor) ClearForcedLOD() {
	g.forcedLOD = noForcedLOD
	g.emergency = false
}

// OptimizeObjectsInRadius coarsens meshes within radius of center to at
// least level and stops particle systems there when level is 2 or more.
// It returns the number of objects touched.
func (g *Governor) OptimizeObjectsInRadius(center mgl64.Vec3, radius float64, level int) int {
	n := 0
	for _, id := range g.sortedIDs() {
		o := g.objects[id]
		if o.Position.Sub(center).Len() > radius {
			continue
		}
		switch o.Kind {
		case Mesh:
			if o.LOD != Cull && o.LOD < level {
				g.setLOD(o, level)
				n++
			}
		case ParticleSystem:
			if level >= 2 && o.Active {
				o.Active = false
				n++
			}
		}
	}
	return n
}

func (g *Governor) updateObjects(pos mgl64.Vec3) {
	for _, id := range g.sortedIDs() {
		o := g.objects[id]
		d := o.Position.Sub(pos).Len()
		switch o.Kind {
		case Mesh:
			level := g.forcedLOD
			if level == noForcedLOD {
				level = g.LODLevel(d, o.Biome)
			}
			g.setLOD(o, level)
		case ParticleSystem:
			g.updateParticles(o, d)
		case ProceduralActor:
			limit := proceduralHideAt
			if g.emergency {
				limit /= 2
			}
			o.Visible = d <= limit
		}
	}
}

func (g *Governor) setLOD(o *Object, level int) {
	o.Visible = level != Cull
	if o.LOD == level {
		return
	}
	from := o.LOD
	o.LOD = level
	g.bus.Publish(events.LODLevelChanged, LODChangeEvent{ID: o.ID, Kind: o.Kind, From: from, To: level})
}

// updateParticles scales a particle system by distance, biome and the
// current optimization level.
func (g *Governor) updateParticles(o *Object, d float64) {
	if g.emergency {
		o.Active = false
		return
	}
	intensity := g.lodConfig(o.Biome).ParticleMultiplier
	active := true
	switch {
	case d > 3000:
		active = false
	case d > 1500:
		intensity *= 0.5
	case d > 500:
		intensity *= 0.7
	}
	switch g.particleLevel {
	case 1:
		intensity *= 0.7
		if d > 2000 {
			active = false
		}
	case 2:
		intensity *= 0.4
		if d > 1000 {
			active = false
		}
	}
	o.Active = active
	o.Intensity = intensity
}

// globalLOD is the forced level, or else the coarsest level in use by a
// visible mesh.
func (g *Governor) globalLOD() int {
	if g.forcedLOD != noForcedLOD {
		return g.forcedLOD
	}
	level := 0
	for _, o := range g.objects {
		if o.Kind == Mesh && o.Visible && o.LOD > level {
			level = o.LOD
		}
	}
	return level
}

// MemoryBreakdown estimates memory per category in megabytes.
func (g *Governor) MemoryBreakdown() map[string]float64 {
	meshes, particles, procedural := g.counts()
	heap := g.sampler.SampleMB()
	out := map[string]float64{
		"meshes":     float64(meshes) * 2,
		"particles":  float64(particles) * 1,
		"procedural": float64(procedural) * 5,
		"streaming":  g.lastMem.StreamingMemoryKB / 1024,
		"heap":       heap,
	}
	total := 0.0
	for _, v := range out {
		total += v
	}
	out["total"] = total
	return out
}

func (g *Governor) sortedIDs() []ObjectID {
	ids := make([]ObjectID, 0, len(g.objects))
	for id := range g.objects {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func clampPercent(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

// ring keeps the last historySize samples.
type ring struct {
	buf  [historySize]float64
	head int
	n    int
}

func (r *ring) push(v float64) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % historySize
	if r.n < historySize {
		r.n++
	}
}

func (r *ring) len() int {
	return r.n
}

func (r *ring) mean() float64 {
	if r.n == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < r.n; i++ {
		sum += r.buf[i]
	}
	return sum / float64(r.n)
}
