package personality

import (
	"bikeadventure/internal/biome"
)

// Rules are the per-biome inputs to personality selection.
type Rules struct {
	LeftBias    float64
	RightBias   float64
	Weights     Weights
	MinSubtlety float64
	MaxSubtlety float64
}

// Allowed lists the personalities with a positive weight.
func (r Rules) Allowed() []Personality {
	var out []Personality
	for p, w := range r.Weights {
		if w > 0 {
			out = append(out, Personality(p))
		}
	}
	return out
}

func newRules(weights map[Personality]float64) Rules {
	r := Rules{
		LeftBias:    0.6,
		RightBias:   0.7,
		MinSubtlety: 0.1,
		MaxSubtlety: 0.9,
	}
	for p, w := range weights {
		if p.Valid() {
			r.Weights[p] = w
		}
	}
	return r
}

// FallbackRules is used for any biome without an entry: Peaceful and
// Scenic at equal weight.
func FallbackRules() Rules {
	return newRules(map[Personality]float64{Peaceful: 1.0, Scenic: 1.0})
}

// DefaultRuleTable returns the built-in per-biome personality weights.
func DefaultRuleTable() map[biome.Biome]Rules {
	return map[biome.Biome]Rules{
		biome.Forest:      newRules(map[Personality]float64{Wild: 1.2, Mystery: 1.1, Scenic: 0.9, Peaceful: 0.8}),
		biome.Urban:       newRules(map[Personality]float64{Safe: 1.3, Scenic: 0.9, Challenge: 0.7}),
		biome.Mountains:   newRules(map[Personality]float64{Challenge: 1.3, Scenic: 1.2, Wild: 1.0}),
		biome.Beach:       newRules(map[Personality]float64{Scenic: 1.4, Peaceful: 1.2, Safe: 1.0}),
		biome.Countryside: newRules(map[Personality]float64{Peaceful: 1.3, Scenic: 1.1, Safe: 1.0}),
		biome.Desert:      newRules(map[Personality]float64{Challenge: 1.1, Peaceful: 1.0, Mystery: 0.8}),
		biome.Wetlands:    newRules(map[Personality]float64{Mystery: 1.3, Wild: 1.1, Scenic: 0.9}),
	}
}

// contextMultipliers are layered on top of the rule weights for the target biome.
func contextMultipliers(b biome.Biome) Weights {
	m := Weights{1, 1, 1, 1, 1, 1}
	switch b {
	case biome.Forest, biome.Mountains, biome.Wetlands:
		m[Wild] = 1.3
		m[Mystery] = 1.2
	case biome.Urban:
		m[Safe] = 1.4
		m[Scenic] = 0.8
	case biome.Countryside:
		m[Peaceful] = 1.3
		m[Scenic] = 1.2
	case biome.Beach:
		m[Scenic] = 1.4
		m[Peaceful] = 1.2
	case biome.Desert:
		m[Challenge] = 1.2
		m[Peaceful] = 1.1
	}
	return m
}

// baseSubtlety is how hidden path cues are in each biome before the
// player's experience is taken into account.
func baseSubtlety(b biome.Biome) float64 {
	switch b {
	case biome.Urban:
		return 0.3
	case biome.Forest, biome.Wetlands:
		return 0.8
	case biome.Desert, biome.Beach:
		return 0.5
	default:
		return 0.6
	}
}
