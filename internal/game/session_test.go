package game

import (
	"testing"
	"time"

	"bikeadventure/internal/biome"
	"bikeadventure/internal/config"
	"bikeadventure/internal/events"
	"bikeadventure/internal/streaming"

	"github.com/go-gl/mathgl/mgl64"
)

type manualClock struct {
	now time.Time
}

func (m *manualClock) Now() time.Time { return m.now }

type fixedSampler float64

func (f fixedSampler) SampleMB() float64 { return float64(f) }

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.Streaming.Workers = 0
	cfg.World.Seed = 7
	return cfg
}

func newTestSession(t *testing.T, cfg config.Config, opts ...Option) (*Session, *SceneGenerator, *manualClock) {
	t.Helper()
	gen := &SceneGenerator{}
	clock := &manualClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	opts = append([]Option{
		WithGenerator(gen),
		WithClock(clock),
		WithSampler(fixedSampler(100)),
	}, opts...)
	s := NewSession(cfg, opts...)
	t.Cleanup(s.Close)
	return s, gen, clock
}

func TestTickLoadsNeighbourhood(t *testing.T) {
	s, gen, _ := newTestSession(t, testConfig())
	s.Tick(16*time.Millisecond, mgl64.Vec3{}, mgl64.Vec3{})

	m := s.Streaming().Metrics()
	if m.LoadedSections != 9 {
		t.Fatalf("Expected 9 loaded sections, got %d", m.LoadedSections)
	}
	origin, ok := s.Streaming().Section(streaming.Coord{})
	if !ok {
		t.Fatal("Expected a section at the origin")
	}
	if origin.Biome != biome.Countryside {
		t.Errorf("Expected start biome Countryside, got %s", origin.Biome)
	}
	if gen.Live() != int64(gen.Made()) {
		t.Errorf("Expected no released content yet, live %d made %d", gen.Live(), gen.Made())
	}
	if s.Frame() != 1 {
		t.Errorf("Expected frame 1, got %d", s.Frame())
	}

	breakdown := s.Governor().MemoryBreakdown()
	if breakdown["meshes"] != 18 {
		t.Errorf("Expected 9 tracked meshes (18MB), got %f", breakdown["meshes"])
	}
	if s.Governor().Metrics().VisibleObjects == 0 {
		t.Error("Expected visible objects after the first tick")
	}
}

func TestTickPreparesHints(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(64, events.PathPersonalityGenerated)
	defer sub.Close()

	s, _, _ := newTestSession(t, testConfig(), WithBus(bus))
	s.Tick(16*time.Millisecond, mgl64.Vec3{}, mgl64.Vec3{})

	ixs := s.Intersections()
	if len(ixs) != 3 {
		t.Fatalf("Expected 3 intersections around the origin, got %d", len(ixs))
	}
	for _, ix := range ixs {
		h, ok := s.Hints(ix.Coord)
		if !ok {
			t.Errorf("Expected hints for %v", ix.Coord)
			continue
		}
		if h.Left != ix.Left || h.Right != ix.Right {
			t.Errorf("Hints %v/%v do not match intersection %v/%v", h.Left, h.Right, ix.Left, ix.Right)
		}
		if h.Subtlety < 0.1 || h.Subtlety > 0.9 {
			t.Errorf("Expected subtlety within bounds, got %f", h.Subtlety)
		}
	}
	if len(sub.C) != 3 {
		t.Errorf("Expected 3 personality events, got %d", len(sub.C))
	}
}

func TestResolveChoiceOnce(t *testing.T) {
	s, _, _ := newTestSession(t, testConfig())
	s.Tick(16*time.Millisecond, mgl64.Vec3{}, mgl64.Vec3{})

	ix, ok := s.IntersectionAt(mgl64.Vec3{})
	if !ok {
		t.Fatal("Expected an intersection at the origin")
	}
	chosen, ok := s.ResolveChoice(ix.Coord, true)
	if !ok {
		t.Fatal("Expected first resolve to succeed")
	}
	if chosen != ix.Left {
		t.Errorf("Expected left biome %s, got %s", ix.Left, chosen)
	}
	if _, ok := s.ResolveChoice(ix.Coord, false); ok {
		t.Error("Expected second resolve to be rejected")
	}
	if _, ok := s.IntersectionAt(mgl64.Vec3{}); ok {
		t.Error("Expected resolved intersection to be hidden")
	}
	if _, ok := s.ResolveChoice(streaming.Coord{X: 1, Y: 0}, true); ok {
		t.Error("Expected resolve without an intersection to fail")
	}

	h := s.History()
	if h.TotalChoices != 1 || h.LeftChoices != 1 {
		t.Errorf("Expected one left choice, got %d/%d", h.TotalChoices, h.LeftChoices)
	}
	if len(h.RecentBiomes) != 1 || h.RecentBiomes[0] != ix.Left {
		t.Errorf("Expected recent biome %s, got %v", ix.Left, h.RecentBiomes)
	}

	h.TotalChoices = 99
	if s.History().TotalChoices != 1 {
		t.Error("Expected History to return a copy")
	}
}

func ride(t *testing.T, cfg config.Config, steps int) ([]Choice, *Session, *SceneGenerator) {
	t.Helper()
	s, gen, clock := newTestSession(t, cfg)
	r := NewRider(cfg.World.RiderSpeed, Alternate, 1)
	dt := 100 * time.Millisecond
	var choices []Choice
	for i := 0; i < steps; i++ {
		clock.now = clock.now.Add(dt)
		if c, ok := r.Step(s, dt); ok {
			choices = append(choices, c)
		}
	}
	return choices, s, gen
}

func TestRiderRide(t *testing.T) {
	cfg := testConfig()
	choices, s, gen := ride(t, cfg, 300)

	if len(choices) < 2 {
		t.Fatalf("Expected at least 2 choices over a 24km ride, got %d", len(choices))
	}
	if !choices[0].Left {
		t.Error("Expected alternate mode to start left")
	}
	if len(choices) > 1 && choices[1].Left {
		t.Error("Expected alternate mode to go right second")
	}
	if got := s.History().TotalChoices; got != len(choices) {
		t.Errorf("Expected %d choices in history, got %d", len(choices), got)
	}
	if n := s.Streaming().Metrics().LoadedSections; n > cfg.Streaming.MaxActiveSections {
		t.Errorf("Expected at most %d sections, got %d", cfg.Streaming.MaxActiveSections, n)
	}

	s.Close()
	if gen.Live() != 0 {
		t.Errorf("Expected all content released after Close, %d live", gen.Live())
	}
}

func TestRideDeterministic(t *testing.T) {
	cfg := testConfig()
	a, _, _ := ride(t, cfg, 200)
	b, _, _ := ride(t, cfg, 200)
	if len(a) != len(b) {
		t.Fatalf("Expected same number of choices, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("Choice %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestFeedMetricsSnapshot(t *testing.T) {
	s, _, _ := newTestSession(t, testConfig())
	if m := s.FeedMetrics(); m.Frame != 0 || m.Session != s.ID.String() {
		t.Errorf("Unexpected initial snapshot %+v", m)
	}
	s.Tick(16*time.Millisecond, mgl64.Vec3{}, mgl64.Vec3{})

	done := make(chan uint64)
	go func() { done <- s.FeedMetrics().Frame }()
	if f := <-done; f != 1 {
		t.Errorf("Expected frame 1 from another goroutine, got %d", f)
	}
	m := s.FeedMetrics()
	if m.Streaming.LoadedSections != 9 {
		t.Errorf("Expected 9 loaded sections, got %d", m.Streaming.LoadedSections)
	}
	if m.Memory["total"] <= 0 {
		t.Errorf("Expected a positive memory total, got %f", m.Memory["total"])
	}
	m.Memory["total"] = -1
	if s.FeedMetrics().Memory["total"] == -1 {
		t.Error("Expected FeedMetrics to copy the memory map")
	}
}

func TestBuilders(t *testing.T) {
	cfg := config.Defaults()
	cfg.World.StartBiome = "nowhere"
	sc := StreamingConfig(cfg)
	if sc.StartBiome != biome.Countryside {
		t.Errorf("Expected fallback start biome, got %s", sc.StartBiome)
	}
	if sc.UnloadAfter != 30*time.Second {
		t.Errorf("Expected 30s unload delay, got %v", sc.UnloadAfter)
	}

	cfg.World.StartBiome = "beach"
	if sc := StreamingConfig(cfg); sc.StartBiome != biome.Beach {
		t.Errorf("Expected Beach, got %s", sc.StartBiome)
	}

	cfg.Performance.TargetFPS = 30
	cfg.Performance.Aggressive = true
	ps := PerfSettings(cfg)
	if ps.TargetFPS != 30 || !ps.Aggressive {
		t.Errorf("Unexpected perf settings %+v", ps)
	}
}

func TestParseChoiceMode(t *testing.T) {
	tests := []struct {
		in   string
		want ChoiceMode
		ok   bool
	}{
		{"alternate", Alternate, true},
		{"random", RandomChoice, true},
		{"left", AlwaysLeft, true},
		{"right", AlwaysRight, true},
		{"sideways", Alternate, false},
	}
	for _, tt := range tests {
		got, ok := ParseChoiceMode(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseChoiceMode(%q) = %v, %v; expected %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFPSLimiter(t *testing.T) {
	f := NewFPSLimiter(0)
	start := time.Now()
	f.Wait()
	if time.Since(start) > 5*time.Millisecond {
		t.Error("Expected unlimited Wait to return immediately")
	}

	f.SetLimit(200)
	start = time.Now()
	for i := 0; i < 5; i++ {
		f.Wait()
	}
	if el := time.Since(start); el < 20*time.Millisecond {
		t.Errorf("Expected 5 frames at 200fps to take at least 20ms, took %v", el)
	}
}
