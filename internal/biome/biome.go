package biome

import (
	"fmt"
	"strings"
)

// Biome identifies one of the environment categories a section can belong to.
type Biome uint8

const (
	Forest Biome = iota
	Beach
	Desert
	Urban
	Countryside
	Mountains
	Wetlands
	None
)

// Count is the number of playable biomes (None excluded).
const Count = int(None)

var biomeNames = [...]string{
	Forest:      "Forest",
	Beach:       "Beach",
	Desert:      "Desert",
	Urban:       "Urban",
	Countryside: "Countryside",
	Mountains:   "Mountains",
	Wetlands:    "Wetlands",
	None:        "None",
}

func (b Biome) String() string {
	if int(b) < len(biomeNames) {
		return biomeNames[b]
	}
	return "Unknown"
}

// Valid reports whether b is a playable biome.
func (b Biome) Valid() bool {
	return b < None
}

// MarshalText implements encoding.TextMarshaler so biomes serialize by name.
func (b Biome) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Biome) UnmarshalText(text []byte) error {
	v, err := ParseBiome(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// ParseBiome resolves a biome name case-insensitively.
func ParseBiome(s string) (Biome, error) {
	s = strings.TrimSpace(s)
	for i, name := range biomeNames {
		if strings.EqualFold(name, s) {
			return Biome(i), nil
		}
	}
	return None, fmt.Errorf("unknown biome %q", s)
}

// All returns the playable biomes in declaration order.
func All() []Biome {
	out := make([]Biome, 0, Count)
	for b := Forest; b < None; b++ {
		out = append(out, b)
	}
	return out
}

// IntersectionShape tags the geometry used for a left/right decision point.
type IntersectionShape uint8

const (
	YFork IntersectionShape = iota
	TJunction
	Bridge
	CaveEntrance
	Boardwalk
	RockPass
	RiverCrossing
	Roundabout
	NoShape
)

var shapeNames = [...]string{
	YFork:         "YFork",
	TJunction:     "TJunction",
	Bridge:        "Bridge",
	CaveEntrance:  "CaveEntrance",
	Boardwalk:     "Boardwalk",
	RockPass:      "RockPass",
	RiverCrossing: "RiverCrossing",
	Roundabout:    "Roundabout",
	NoShape:       "None",
}

func (s IntersectionShape) String() string {
	if int(s) < len(shapeNames) {
		return shapeNames[s]
	}
	return "Unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s IntersectionShape) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
