package personality

import (
	"maps"
	"slices"

	"bikeadventure/internal/biome"
)

// RecentLimit bounds each of the history ring buffers.
const RecentLimit = 10

// History records a single player's choices over a session. It is owned by
// one goroutine and mutated only through Engine.UpdateChoiceHistory.
type History struct {
	TotalChoices        int                     `json:"total_choices"`
	LeftChoices         int                     `json:"left_choices"`
	RightChoices        int                     `json:"right_choices"`
	RecentChoices       []bool                  `json:"recent_choices"`
	RecentBiomes        []biome.Biome           `json:"recent_biomes"`
	RecentPersonalities []Personality           `json:"recent_personalities"`
	Preferences         map[Personality]float64 `json:"preferences"`
	Preferred           Personality             `json:"preferred"`
	AdaptiveWeight      float64                 `json:"adaptive_weight"`
}

// NewHistory returns an empty history with no preferred personality.
func NewHistory() *History {
	return &History{
		Preferences: make(map[Personality]float64),
		Preferred:   None,
	}
}

// Clone returns a deep copy.
func (h *History) Clone() *History {
	if h == nil {
		return NewHistory()
	}
	c := *h
	c.RecentChoices = slices.Clone(h.RecentChoices)
	c.RecentBiomes = slices.Clone(h.RecentBiomes)
	c.RecentPersonalities = slices.Clone(h.RecentPersonalities)
	c.Preferences = maps.Clone(h.Preferences)
	if c.Preferences == nil {
		c.Preferences = make(map[Personality]float64)
	}
	return &c
}

// Reset clears the history back to a fresh session.
func (h *History) Reset() {
	*h = *NewHistory()
}

// LeftRatio is the share of choices that went left, 0 with no choices.
func (h *History) LeftRatio() float64 {
	if h == nil || h.TotalChoices == 0 {
		return 0
	}
	return float64(h.LeftChoices) / float64(h.TotalChoices)
}

func (h *History) total() int {
	if h == nil {
		return 0
	}
	return h.TotalChoices
}

// push appends v and drops the oldest entries beyond RecentLimit.
func push[T any](s []T, v T) []T {
	s = append(s, v)
	if len(s) > RecentLimit {
		s = slices.Delete(s, 0, len(s)-RecentLimit)
	}
	return s
}
