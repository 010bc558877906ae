package personality

import (
	"math"
	"math/rand"
	"testing"

	"bikeadventure/internal/biome"
	"bikeadventure/internal/events"
)

func newTestEngine(seed int64, opts ...Option) *Engine {
	return NewEngine(rand.New(rand.NewSource(seed)), opts...)
}

func TestCharacteristicsBounded(t *testing.T) {
	e := newTestEngine(1)
	for p := Personality(0); p <= None; p++ {
		for _, b := range append(biome.All(), biome.None) {
			for _, left := range []bool{true, false} {
				for i := 0; i < 5; i++ {
					c := e.Characteristics(p, b, left)
					for name, v := range map[string]float64{
						"difficulty": c.Difficulty,
						"scenery":    c.Scenery,
						"wildlife":   c.Wildlife,
						"discovery":  c.Discovery,
						"weather":    c.WeatherResistance,
						"windiness":  c.Windiness,
					} {
						if v < 0 || v > 1 {
							t.Errorf("%s/%s/left=%v: expected %s in [0,1], got %f", p, b, left, name, v)
						}
					}
					if c.Width < MinPathWidth || c.Width > MaxPathWidth {
						t.Errorf("%s/%s/left=%v: expected width in [100,1000], got %f", p, b, left, c.Width)
					}
				}
			}
		}
	}
}

func TestCharacteristicsSideTendencies(t *testing.T) {
	// Width is not jittered, so the side factors are exact.
	e := newTestEngine(2)
	l := e.Characteristics(Safe, biome.Countryside, true)
	r := e.Characteristics(Safe, biome.Countryside, false)
	if math.Abs(l.Width-450) > 1e-9 {
		t.Errorf("Expected left width 450, got %f", l.Width)
	}
	if math.Abs(r.Width-550) > 1e-9 {
		t.Errorf("Expected right width 550, got %f", r.Width)
	}
	if l.Surface != "Maintained" {
		t.Errorf("Expected Maintained surface, got %s", l.Surface)
	}
}

func TestMountainsElevation(t *testing.T) {
	e := newTestEngine(3)
	c := e.Characteristics(Challenge, biome.Mountains, true)
	if c.Elevation != 80 {
		t.Errorf("Expected elevation 80, got %f", c.Elevation)
	}
}

func TestDeterminePersonalityNeverNone(t *testing.T) {
	e := newTestEngine(4)
	h := NewHistory()
	for _, from := range biome.All() {
		for _, to := range append(biome.All(), biome.None) {
			for _, left := range []bool{true, false} {
				if p := e.DeterminePersonality(from, to, left, h); !p.Valid() {
					t.Errorf("Expected a real personality for %s->%s, got %s", from, to, p)
				}
			}
		}
	}
}

func TestDeterminePersonalityRespectsTable(t *testing.T) {
	// Urban only lists Safe, Scenic and Challenge.
	e := newTestEngine(5)
	for i := 0; i < 200; i++ {
		p := e.DeterminePersonality(biome.Beach, biome.Urban, i%2 == 0, nil)
		if p != Safe && p != Scenic && p != Challenge {
			t.Fatalf("Expected an Urban personality, got %s", p)
		}
	}
}

func TestDeterminePersonalityZeroWeights(t *testing.T) {
	e := newTestEngine(6, WithRules(map[biome.Biome]Rules{biome.Forest: {}}))
	if p := e.DeterminePersonality(biome.Forest, biome.Forest, true, nil); p != Peaceful {
		t.Errorf("Expected Peaceful fallback, got %s", p)
	}
}

func TestFallbackRulesForMissingBiome(t *testing.T) {
	e := newTestEngine(7)
	for i := 0; i < 100; i++ {
		p := e.DeterminePersonality(biome.Forest, biome.None, false, nil)
		if p != Peaceful && p != Scenic {
			t.Fatalf("Expected Peaceful or Scenic, got %s", p)
		}
	}
}

func TestWeightsSideBias(t *testing.T) {
	e := newTestEngine(8)
	l := e.Weights(biome.Mountains, true, nil)
	r := e.Weights(biome.Mountains, false, nil)
	// Challenge 1.3, left bias 0.6.
	if want := 1.3 * 1.6; math.Abs(l[Challenge]-want) > 1e-9 {
		t.Errorf("Expected left Challenge %f, got %f", want, l[Challenge])
	}
	if want := 1.3 * 0.7; math.Abs(r[Challenge]-want) > 1e-9 {
		t.Errorf("Expected right Challenge %f, got %f", want, r[Challenge])
	}
	// Scenic 1.2, right bias 0.7.
	if want := 1.2 * 1.7; math.Abs(r[Scenic]-want) > 1e-9 {
		t.Errorf("Expected right Scenic %f, got %f", want, r[Scenic])
	}
	// Wild 1.0 with the natural-biome context boost.
	if want := 1.0 * 1.6 * 1.3; math.Abs(l[Wild]-want) > 1e-9 {
		t.Errorf("Expected left Wild %f, got %f", want, l[Wild])
	}
	if l[Safe] != 0 || r[Mystery] != 0 {
		t.Errorf("Expected unlisted personalities to stay at zero, got %f and %f", l[Safe], r[Mystery])
	}
}

func TestWeightsPreferenceAmplification(t *testing.T) {
	e := newTestEngine(9)
	h := NewHistory()
	base := e.Weights(biome.Urban, true, h)
	h.Preferences[Safe] = 0.5
	amp := e.Weights(biome.Urban, true, h)
	if math.Abs(amp[Safe]-base[Safe]*1.5) > 1e-9 {
		t.Errorf("Expected Safe amplified by 1.5, got %f vs %f", amp[Safe], base[Safe])
	}
}

func TestHintSubtlety(t *testing.T) {
	e := newTestEngine(10)
	cases := []struct {
		b     biome.Biome
		total int
		want  float64
	}{
		{biome.Urban, 10, 0.3},
		{biome.Urban, 0, 0.1},
		{biome.Forest, 10, 0.8},
		{biome.Forest, 25, 0.9},
		{biome.Desert, 2, 0.3},
		{biome.Countryside, 30, 0.8},
		{biome.None, 10, 0.6},
	}
	for _, c := range cases {
		h := NewHistory()
		h.TotalChoices = c.total
		if got := e.HintSubtlety(c.b, h); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("HintSubtlety(%s, %d): expected %f, got %f", c.b, c.total, c.want, got)
		}
	}
}

func TestHintSubtletyBounds(t *testing.T) {
	e := newTestEngine(11, WithSubtletyBounds(0.4, 0.5))
	if got := e.HintSubtlety(biome.Forest, nil); got != 0.5 {
		t.Errorf("Expected clamp to 0.5, got %f", got)
	}
	if got := e.HintSubtlety(biome.Urban, nil); got != 0.4 {
		t.Errorf("Expected clamp to 0.4, got %f", got)
	}
}

func TestGenerateHintsRanges(t *testing.T) {
	e := newTestEngine(12)
	h := NewHistory()
	for _, cur := range biome.All() {
		for _, l := range biome.All() {
			for _, r := range biome.All() {
				hints := e.GenerateHints(cur, l, r, h)
				if hints.LeftChallenge < 0 || hints.LeftChallenge > 1 {
					t.Errorf("Expected left challenge in [0,1], got %f", hints.LeftChallenge)
				}
				if hints.RightScenery < 0 || hints.RightScenery > 1 {
					t.Errorf("Expected right scenery in [0,1], got %f", hints.RightScenery)
				}
				if hints.Subtlety < 0 || hints.Subtlety > 1 {
					t.Errorf("Expected subtlety in [0,1], got %f", hints.Subtlety)
				}
				if !hints.LeftPersonality.Valid() || !hints.RightPersonality.Valid() {
					t.Errorf("Expected real personalities, got %s/%s", hints.LeftPersonality, hints.RightPersonality)
				}
			}
		}
	}
}

func TestGenerateHintsPublishes(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(4, events.PathPersonalityGenerated)
	defer sub.Close()

	e := newTestEngine(13, WithBus(bus))
	hints := e.GenerateHints(biome.Forest, biome.Mountains, biome.Wetlands, nil)
	ev := <-sub.C
	payload, ok := ev.Data.(HintsEvent)
	if !ok {
		t.Fatalf("Expected HintsEvent payload, got %T", ev.Data)
	}
	if payload.LeftPersonality != hints.LeftPersonality || payload.Left != biome.Mountains {
		t.Errorf("Expected payload to match hints, got %+v", payload)
	}
}

func TestGenerateHintsDeterministic(t *testing.T) {
	a := newTestEngine(77).GenerateHints(biome.Countryside, biome.Forest, biome.Beach, nil)
	b := newTestEngine(77).GenerateHints(biome.Countryside, biome.Forest, biome.Beach, nil)
	if a != b {
		t.Errorf("Expected identical hints for identical seeds, got %+v and %+v", a, b)
	}
}

func TestUpdateChoiceHistoryBounds(t *testing.T) {
	e := newTestEngine(14)
	h := NewHistory()
	for i := 0; i < 25; i++ {
		e.UpdateChoiceHistory(h, i%3 != 0, biome.All()[i%biome.Count], Personality(i%Count))
		if len(h.RecentChoices) > RecentLimit || len(h.RecentBiomes) > RecentLimit || len(h.RecentPersonalities) > RecentLimit {
			t.Fatalf("Expected ring buffers bounded by %d, got %d/%d/%d", RecentLimit,
				len(h.RecentChoices), len(h.RecentBiomes), len(h.RecentPersonalities))
		}
	}
	if h.TotalChoices != 25 || h.LeftChoices+h.RightChoices != 25 {
		t.Errorf("Expected 25 choices, got %d (%d+%d)", h.TotalChoices, h.LeftChoices, h.RightChoices)
	}
	if h.RecentBiomes[len(h.RecentBiomes)-1] != biome.All()[24%biome.Count] {
		t.Errorf("Expected newest biome last, got %v", h.RecentBiomes)
	}
	if want := float64(h.LeftChoices) / 25; math.Abs(h.AdaptiveWeight-want) > 1e-9 {
		t.Errorf("Expected adaptive weight %f, got %f", want, h.AdaptiveWeight)
	}
	for p, v := range h.Preferences {
		if v < 0 || v > 1 {
			t.Errorf("Expected preference for %s in [0,1], got %f", p, v)
		}
	}
}

func TestUpdateChoiceHistoryPreference(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(8, events.PlayerPatternDetected)
	defer sub.Close()

	e := newTestEngine(15, WithBus(bus))
	h := NewHistory()
	e.UpdateChoiceHistory(h, true, biome.Forest, Scenic)
	if math.Abs(h.Preferences[Scenic]-0.1) > 1e-9 {
		t.Errorf("Expected Scenic 0.1, got %f", h.Preferences[Scenic])
	}
	e.UpdateChoiceHistory(h, true, biome.Forest, Wild)
	if math.Abs(h.Preferences[Scenic]-0.095) > 1e-9 {
		t.Errorf("Expected Scenic decayed to 0.095, got %f", h.Preferences[Scenic])
	}

	for i := 0; i < 4; i++ {
		e.UpdateChoiceHistory(h, false, biome.Beach, Scenic)
	}
	if h.Preferred != None {
		t.Errorf("Expected no preference below 0.5, got %s", h.Preferred)
	}
	e.UpdateChoiceHistory(h, false, biome.Beach, Scenic)
	if h.Preferred != Scenic {
		t.Errorf("Expected Scenic preferred, got %s (score %f)", h.Preferred, h.Preferences[Scenic])
	}
	select {
	case ev := <-sub.C:
		if ev.Data.(PatternEvent).Preferred != Scenic {
			t.Errorf("Expected Scenic pattern event, got %+v", ev.Data)
		}
	default:
		t.Error("Expected a pattern event")
	}
}

func TestAdaptiveRules(t *testing.T) {
	e := newTestEngine(16)
	h := NewHistory()
	h.TotalChoices, h.LeftChoices = 10, 8
	h.Preferences[Safe] = 0.6
	r := e.AdaptiveRules(biome.Urban, h)
	if math.Abs(r.LeftBias-0.72) > 1e-9 {
		t.Errorf("Expected left bias 0.72, got %f", r.LeftBias)
	}
	if math.Abs(r.RightBias-0.56) > 1e-9 {
		t.Errorf("Expected right bias 0.56, got %f", r.RightBias)
	}
	if math.Abs(r.Weights[Safe]-2.0) > 1e-9 {
		t.Errorf("Expected Safe weight capped at 2, got %f", r.Weights[Safe])
	}

	h.TotalChoices = 4
	if r := e.AdaptiveRules(biome.Urban, h); r.LeftBias != 0.6 {
		t.Errorf("Expected untouched rules before 6 choices, got %f", r.LeftBias)
	}
}

func TestBuildVisualHints(t *testing.T) {
	v := BuildVisualHints(Challenge, biome.Urban, 0.5)
	if math.Abs(v.Intensity-0.36) > 1e-9 {
		t.Errorf("Expected intensity 0.36, got %f", v.Intensity)
	}
	if !v.Lighting || !v.Audio {
		t.Error("Expected Urban hints to use lighting and audio")
	}
	if v.Tint != (Color{1, 0, 0, 1}) {
		t.Errorf("Expected red tint, got %+v", v.Tint)
	}
	if got := BuildVisualHints(Wild, biome.Forest, 1); got.Intensity != 0 || got.ParticleIntensity != 0 {
		t.Errorf("Expected silent hints at full subtlety, got %+v", got)
	}
}

func TestBlend(t *testing.T) {
	a := Preset(Safe)
	b := Preset(Challenge)
	mid := Blend(a, b, 0.5)
	if math.Abs(mid.Width-375) > 1e-9 {
		t.Errorf("Expected width 375, got %f", mid.Width)
	}
	if mid.Surface != "Rough" {
		t.Errorf("Expected tags from b at 0.5, got %s", mid.Surface)
	}
	if low := Blend(a, b, 0.2); low.Personality != Safe {
		t.Errorf("Expected Safe below 0.5, got %s", low.Personality)
	}
}

func TestParsePersonality(t *testing.T) {
	for p := Personality(0); p < None; p++ {
		got, err := Parse(p.String())
		if err != nil || got != p {
			t.Errorf("Expected %s, got %s (%v)", p, got, err)
		}
	}
	if _, err := Parse("Boring"); err == nil {
		t.Error("Expected error for unknown personality")
	}
}
