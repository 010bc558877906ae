package personality

import (
	"io"
	"log"
	"maps"

	"bikeadventure/internal/biome"
	"bikeadventure/internal/events"
)

// Hints is the per-intersection output consumed by the presentation layer.
type Hints struct {
	Left             biome.Biome     `json:"left_biome"`
	Right            biome.Biome     `json:"right_biome"`
	LeftPersonality  Personality     `json:"left_personality"`
	RightPersonality Personality     `json:"right_personality"`
	LeftChallenge    float64         `json:"left_challenge"`
	RightScenery     float64         `json:"right_scenery"`
	Subtlety         float64         `json:"subtlety"`
	LeftPath         Characteristics `json:"left_path"`
	RightPath        Characteristics `json:"right_path"`
	LeftVisual       VisualHints     `json:"left_visual"`
	RightVisual      VisualHints     `json:"right_visual"`
}

// HintsEvent is published with events.PathPersonalityGenerated.
type HintsEvent struct {
	Current          biome.Biome `json:"current"`
	Left             biome.Biome `json:"left"`
	Right            biome.Biome `json:"right"`
	LeftPersonality  Personality `json:"left_personality"`
	RightPersonality Personality `json:"right_personality"`
	Subtlety         float64     `json:"subtlety"`
}

// PatternEvent is published with events.PlayerPatternDetected.
type PatternEvent struct {
	Preferred    Personality `json:"preferred"`
	Score        float64     `json:"score"`
	TotalChoices int         `json:"total_choices"`
}

// Engine scores and selects path personalities. It holds no per-player
// state; histories are passed in by the owner.
type Engine struct {
	rules    map[biome.Biome]Rules
	rng      biome.Rand
	bus      *events.Bus
	logger   *log.Logger
	adaptive bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithRules replaces the per-biome rule table.
func WithRules(rules map[biome.Biome]Rules) Option {
	return func(e *Engine) { e.rules = maps.Clone(rules) }
}

// WithBiases overrides the left and right side bias of every biome.
func WithBiases(left, right float64) Option {
	return func(e *Engine) {
		for b, r := range e.rules {
			r.LeftBias, r.RightBias = left, right
			e.rules[b] = r
		}
	}
}

// WithSubtletyBounds overrides the hint subtlety bounds of every biome.
func WithSubtletyBounds(lo, hi float64) Option {
	return func(e *Engine) {
		for b, r := range e.rules {
			r.MinSubtlety, r.MaxSubtlety = lo, hi
			e.rules[b] = r
		}
	}
}

// WithAdaptiveRules makes selection use AdaptiveRules, which shift side
// biases and weights toward the player's observed habits.
func WithAdaptiveRules(on bool) Option {
	return func(e *Engine) { e.adaptive = on }
}

func WithBus(bus *events.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine drawing from rng. Options apply in order, so
// WithRules should precede WithBiases.
func NewEngine(rng biome.Rand, opts ...Option) *Engine {
	e := &Engine{
		rules:  DefaultRuleTable(),
		rng:    rng,
		logger: log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RulesFor returns the rules for b, falling back to FallbackRules.
func (e *Engine) RulesFor(b biome.Biome) Rules {
	if r, ok := e.rules[b]; ok {
		return r
	}
	return FallbackRules()
}

func (e *Engine) selectionRules(b biome.Biome, h *History) Rules {
	if e.adaptive {
		return e.AdaptiveRules(b, h)
	}
	return e.RulesFor(b)
}

// Weights computes the final selection weights for a path toward target.
func (e *Engine) Weights(target biome.Biome, left bool, h *History) Weights {
	r := e.selectionRules(target, h)
	w := r.Weights
	if h != nil {
		for p, score := range h.Preferences {
			if p.Valid() {
				w[p] *= 1 + score
			}
		}
	}
	for i := range w {
		p := Personality(i)
		switch {
		case p.adventurous() && left:
			w[i] *= 1 + r.LeftBias
		case p.adventurous():
			w[i] *= 1 - r.LeftBias*0.5
		case left:
			w[i] *= 1 - r.RightBias*0.5
		default:
			w[i] *= 1 + r.RightBias
		}
	}
	ctx := contextMultipliers(target)
	for i := range w {
		w[i] *= ctx[i]
	}
	return w
}

// DeterminePersonality picks the personality of the path leading from
// `from` toward `target`.
func (e *Engine) DeterminePersonality(from, target biome.Biome, left bool, h *History) Personality {
	return e.draw(e.Weights(target, left, h))
}

func (e *Engine) draw(w Weights) Personality {
	total := w.Total()
	if total <= 0 {
		return Peaceful
	}
	x := e.float() * total
	acc := 0.0
	last := Peaceful
	for i, v := range w {
		if v <= 0 {
			continue
		}
		acc += v
		last = Personality(i)
		if x <= acc {
			return last
		}
	}
	return last
}

func (e *Engine) float() float64 {
	if e.rng == nil {
		return 0.5
	}
	return e.rng.Float64()
}

// Characteristics derives concrete path parameters for p in biome b.
// Bounded fields are clamped after every step.
func (e *Engine) Characteristics(p Personality, b biome.Biome, left bool) Characteristics {
	c := Preset(p)
	c.applyBiome(b)
	c.applySide(left)
	c.jitter(0.9 + e.float()*0.2)
	return c
}

// HintSubtlety returns how hidden the path cues should be for the player.
func (e *Engine) HintSubtlety(b biome.Biome, h *History) float64 {
	s := baseSubtlety(b)
	switch n := h.total(); {
	case n > 20:
		s = min(s+0.2, 0.9)
	case n < 5:
		s = max(s-0.2, 0.1)
	}
	r := e.RulesFor(b)
	return clamp01(max(r.MinSubtlety, min(r.MaxSubtlety, s)))
}

// GenerateHints builds the full hint record for an intersection in current
// whose paths lead to left and right.
func (e *Engine) GenerateHints(current, left, right biome.Biome, h *History) Hints {
	lp := e.DeterminePersonality(current, left, true, h)
	rp := e.DeterminePersonality(current, right, false, h)
	lc := e.Characteristics(lp, left, true)
	rc := e.Characteristics(rp, right, false)
	sub := e.HintSubtlety(current, h)

	hints := Hints{
		Left:             left,
		Right:            right,
		LeftPersonality:  lp,
		RightPersonality: rp,
		LeftChallenge:    lc.Difficulty,
		RightScenery:     rc.Scenery,
		Subtlety:         sub,
		LeftPath:         lc,
		RightPath:        rc,
		LeftVisual:       BuildVisualHints(lp, left, sub),
		RightVisual:      BuildVisualHints(rp, right, sub),
	}
	e.bus.Publish(events.PathPersonalityGenerated, HintsEvent{
		Current:          current,
		Left:             left,
		Right:            right,
		LeftPersonality:  lp,
		RightPersonality: rp,
		Subtlety:         sub,
	})
	return hints
}

// UpdateChoiceHistory records one resolved choice. It must be called
// exactly once per choice.
func (e *Engine) UpdateChoiceHistory(h *History, left bool, b biome.Biome, p Personality) {
	if h == nil {
		return
	}
	if h.Preferences == nil {
		h.Preferences = make(map[Personality]float64)
	}
	h.TotalChoices++
	if left {
		h.LeftChoices++
	} else {
		h.RightChoices++
	}
	h.RecentChoices = push(h.RecentChoices, left)
	h.RecentBiomes = push(h.RecentBiomes, b)
	h.RecentPersonalities = push(h.RecentPersonalities, p)

	if p.Valid() {
		for k, v := range h.Preferences {
			if k != p {
				h.Preferences[k] = max(0, v*0.95)
			}
		}
		h.Preferences[p] = min(1, h.Preferences[p]+0.1)

		best, score := None, 0.0
		for i := 0; i < Count; i++ {
			if v := h.Preferences[Personality(i)]; v > score {
				best, score = Personality(i), v
			}
		}
		if score > 0.5 && best != h.Preferred {
			h.Preferred = best
			e.logger.Printf("player pattern: prefers %s (%.2f after %d choices)", best, score, h.TotalChoices)
			e.bus.Publish(events.PlayerPatternDetected, PatternEvent{
				Preferred:    best,
				Score:        score,
				TotalChoices: h.TotalChoices,
			})
		}
	}
	h.AdaptiveWeight = h.LeftRatio()
}

// AdaptiveRules tilts the rules for b toward the player's habits once more
// than five choices have been made.
func (e *Engine) AdaptiveRules(b biome.Biome, h *History) Rules {
	r := e.RulesFor(b)
	if h.total() <= 5 {
		return r
	}
	switch ratio := h.LeftRatio(); {
	case ratio > 0.7:
		r.LeftBias = min(r.LeftBias*1.2, 1)
		r.RightBias *= 0.8
	case ratio < 0.3:
		r.LeftBias *= 0.8
		r.RightBias = min(r.RightBias*1.2, 1)
	}
	for p, score := range h.Preferences {
		if p.Valid() && score > 0.3 {
			r.Weights[p] = min(r.Weights[p]*(1+score), 2)
		}
	}
	return r
}
