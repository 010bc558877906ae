package biome

import (
	"fmt"
	"math"
	"slices"
)

// Rand is the subset of *rand.Rand the model draws from. Callers seed it
// so that sequences are reproducible.
type Rand interface {
	Intn(n int) int
	Float64() float64
}

// Model answers transition questions over a fixed rule table.
// It is read-only after construction and safe for concurrent use.
type Model struct {
	rules  map[Biome]TransitionRules
	params map[Biome]GenerationParams
}

// DefaultModel builds a model over the built-in rule and parameter tables.
func DefaultModel() *Model {
	return NewModel(DefaultRuleTable(), DefaultParamTable())
}

// NewModel copies the given tables. The None sentinel is stripped from every
// transition list and entries keyed by None are ignored. A nil params map
// falls back to the built-in presets.
func NewModel(rules map[Biome]TransitionRules, params map[Biome]GenerationParams) *Model {
	if params == nil {
		params = DefaultParamTable()
	}
	m := &Model{
		rules:  make(map[Biome]TransitionRules, len(rules)),
		params: make(map[Biome]GenerationParams, len(params)),
	}
	for b, r := range rules {
		if !b.Valid() {
			continue
		}
		valid := make([]Biome, 0, len(r.ValidTransitions))
		for _, t := range r.ValidTransitions {
			if t.Valid() && !slices.Contains(valid, t) {
				valid = append(valid, t)
			}
		}
		r.ValidTransitions = valid
		r.PreferredShapes = slices.Clone(r.PreferredShapes)
		if r.MaxConsecutiveSame <= 0 {
			r.MaxConsecutiveSame = DefaultRules().MaxConsecutiveSame
		}
		m.rules[b] = r
	}
	for b, p := range params {
		if b.Valid() {
			m.params[b] = p
		}
	}
	return m
}

// Rules returns the rules for b, or DefaultRules with no transitions when b
// has no entry.
func (m *Model) Rules(b Biome) TransitionRules {
	r, ok := m.rules[b]
	if !ok {
		return DefaultRules()
	}
	r.ValidTransitions = slices.Clone(r.ValidTransitions)
	r.PreferredShapes = slices.Clone(r.PreferredShapes)
	return r
}

// Params returns the content presets for b.
func (m *Model) Params(b Biome) GenerationParams {
	if p, ok := m.params[b]; ok {
		return p
	}
	return DefaultParams()
}

// ValidTransitions returns a copy of the successor set for b.
func (m *Model) ValidTransitions(b Biome) []Biome {
	return slices.Clone(m.rules[b].ValidTransitions)
}

// CanTransition reports whether to is a legal successor of from.
func (m *Model) CanTransition(from, to Biome) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	return slices.Contains(m.rules[from].ValidTransitions, to)
}

// TransitionProbability scores moving from -> to given the recent history
// (oldest first). Staying in the same biome decays with the current run
// length, returning to the previous biome is damped to a tenth, and any
// other target outside the successor set scores 0.
func (m *Model) TransitionProbability(from, to Biome, history []Biome) float64 {
	if !from.Valid() || !to.Valid() {
		return 0
	}
	r, ok := m.rules[from]
	if !ok {
		return 0
	}
	p := r.BaseTransitionProbability
	switch {
	case to == from:
		p *= math.Pow(r.ConsecutiveSamePenalty, float64(runLength(history, from)))
	case !slices.Contains(r.ValidTransitions, to):
		return 0
	case !r.AllowImmediateReturn && len(history) > 0 && history[len(history)-1] == to:
		p *= 0.1
	}
	return clamp01(p)
}

// PickNextBiome draws the successor of current uniformly from its filtered
// candidate set. Identical seed and history give identical results.
func (m *Model) PickNextBiome(rng Rand, current Biome, history []Biome) Biome {
	cands := m.candidates(current, history)
	if len(cands) == 0 {
		return Countryside
	}
	return cands[draw(rng, len(cands))]
}

// NextBiome is PickNextBiome steered by a left/right decision: both sides
// share the same draw and a right choice takes the following candidate, so
// the two sides differ whenever more than one candidate remains.
func (m *Model) NextBiome(rng Rand, current Biome, leftChoice bool, history []Biome) Biome {
	cands := m.candidates(current, history)
	if len(cands) == 0 {
		return Countryside
	}
	idx := draw(rng, len(cands))
	if !leftChoice {
		idx = (idx + 1) % len(cands)
	}
	return cands[idx]
}

// PreferredShape picks one of the biome's preferred intersection shapes.
func (m *Model) PreferredShape(rng Rand, b Biome) IntersectionShape {
	shapes := m.rules[b].PreferredShapes
	if len(shapes) == 0 {
		return YFork
	}
	return shapes[draw(rng, len(shapes))]
}

func (m *Model) candidates(current Biome, history []Biome) []Biome {
	r, ok := m.rules[current]
	if !ok || len(r.ValidTransitions) == 0 {
		return nil
	}
	cands := slices.Clone(r.ValidTransitions)
	if !r.AllowImmediateReturn && len(history) > 0 {
		prev := history[len(history)-1]
		cands = slices.DeleteFunc(cands, func(b Biome) bool { return b == prev })
	}
	if runLength(history, current) >= r.MaxConsecutiveSame {
		cands = slices.DeleteFunc(cands, func(b Biome) bool { return b == current })
	}
	if len(cands) == 0 {
		return r.ValidTransitions
	}
	return cands
}

// GenerateSequence walks n transitions from start. With alternate set the
// choices go left, right, left...; otherwise each side is a coin flip. The
// returned slice holds start followed by the n successors.
func (m *Model) GenerateSequence(rng Rand, start Biome, n int, alternate bool) []Biome {
	seq := make([]Biome, 0, n+1)
	seq = append(seq, start)
	history := make([]Biome, 0, historyLimit)
	current := start
	for i := 0; i < n; i++ {
		left := i%2 == 0
		if !alternate {
			left = draw(rng, 2) == 0
		}
		next := m.NextBiome(rng, current, left, history)
		history = append(history, current)
		if len(history) > historyLimit {
			history = history[1:]
		}
		seq = append(seq, next)
		current = next
	}
	return seq
}

// ValidateSequence checks the repetition bound and that every change of
// biome is a legal transition.
func (m *Model) ValidateSequence(seq []Biome, maxConsecutive int) error {
	run := 1
	for i := 1; i < len(seq); i++ {
		prev, next := seq[i-1], seq[i]
		if next == prev {
			run++
			if run > maxConsecutive {
				return fmt.Errorf("biome %s repeats %d times at index %d (max %d)", next, run, i, maxConsecutive)
			}
			continue
		}
		run = 1
		if !m.CanTransition(prev, next) {
			return fmt.Errorf("illegal transition %s -> %s at index %d", prev, next, i)
		}
	}
	return nil
}

const historyLimit = 10

// runLength counts how many entries at the end of history equal b.
func runLength(history []Biome, b Biome) int {
	n := 0
	for i := len(history) - 1; i >= 0 && history[i] == b; i-- {
		n++
	}
	return n
}

func draw(rng Rand, n int) int {
	if rng == nil || n <= 1 {
		return 0
	}
	return rng.Intn(n)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
