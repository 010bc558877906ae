package personality

import (
	"fmt"
	"strings"
)

// Personality is the qualitative experience a path is built to deliver.
type Personality uint8

const (
	Wild Personality = iota
	Safe
	Scenic
	Challenge
	Mystery
	Peaceful
	None
)

// Count is the number of real personalities (None excluded).
const Count = int(None)

var personalityNames = [...]string{
	Wild:      "Wild",
	Safe:      "Safe",
	Scenic:    "Scenic",
	Challenge: "Challenge",
	Mystery:   "Mystery",
	Peaceful:  "Peaceful",
	None:      "None",
}

func (p Personality) String() string {
	if int(p) < len(personalityNames) {
		return personalityNames[p]
	}
	return "Unknown"
}

// Valid reports whether p is a real personality.
func (p Personality) Valid() bool {
	return p < None
}

func (p Personality) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Personality) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Parse resolves a personality name case-insensitively.
func Parse(s string) (Personality, error) {
	s = strings.TrimSpace(s)
	for i, name := range personalityNames {
		if strings.EqualFold(name, s) {
			return Personality(i), nil
		}
	}
	return None, fmt.Errorf("unknown personality %q", s)
}

// adventurous personalities are boosted on the left path, calm ones on the right.
func (p Personality) adventurous() bool {
	return p == Wild || p == Challenge || p == Mystery
}

// Weights holds one multiplier per personality. Indexing by Personality
// gives every weighted draw a fixed iteration order.
type Weights [Count]float64

// Total sums all weights.
func (w Weights) Total() float64 {
	var t float64
	for _, v := range w {
		t += v
	}
	return t
}
