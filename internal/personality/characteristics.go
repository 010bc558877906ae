package personality

import (
	"math"

	"bikeadventure/internal/biome"
)

const (
	MinPathWidth = 100.0
	MaxPathWidth = 1000.0
)

// Characteristics are the concrete path parameters derived from a personality.
type Characteristics struct {
	Personality       Personality `json:"personality"`
	Difficulty        float64     `json:"difficulty"`
	Scenery           float64     `json:"scenery"`
	Wildlife          float64     `json:"wildlife"`
	Discovery         float64     `json:"discovery"`
	Width             float64     `json:"width"`
	Windiness         float64     `json:"windiness"`
	Elevation         float64     `json:"elevation"`
	WeatherResistance float64     `json:"weather_resistance"`
	Surface           string      `json:"surface"`
	Lighting          string      `json:"lighting"`
}

// DefaultCharacteristics is the preset for an unknown personality.
func DefaultCharacteristics() Characteristics {
	return Characteristics{
		Personality:       None,
		Difficulty:        0.5,
		Scenery:           0.5,
		Wildlife:          0.3,
		Discovery:         0.2,
		Width:             400,
		Windiness:         0.5,
		WeatherResistance: 0.5,
		Surface:           "Natural",
		Lighting:          "Natural",
	}
}

// Preset returns the unmodified characteristics for p.
func Preset(p Personality) Characteristics {
	c := DefaultCharacteristics()
	c.Personality = p
	set := func(diff, scen, wild, disc, width, wind, weather float64, surface string) {
		c.Difficulty, c.Scenery, c.Wildlife, c.Discovery = diff, scen, wild, disc
		c.Width, c.Windiness, c.WeatherResistance = width, wind, weather
		c.Surface = surface
	}
	switch p {
	case Wild:
		set(0.7, 0.6, 0.8, 0.6, 300, 0.7, 0.3, "Natural")
	case Safe:
		set(0.2, 0.5, 0.2, 0.3, 500, 0.2, 0.8, "Maintained")
	case Scenic:
		set(0.4, 0.9, 0.4, 0.5, 400, 0.5, 0.6, "Mixed")
	case Challenge:
		set(0.9, 0.7, 0.5, 0.8, 250, 0.8, 0.2, "Rough")
		c.Elevation = 50
	case Mystery:
		set(0.6, 0.7, 0.6, 0.9, 350, 0.6, 0.4, "Hidden")
		c.Lighting = "Mysterious"
	case Peaceful:
		set(0.3, 0.8, 0.3, 0.4, 450, 0.3, 0.7, "Smooth")
		c.Lighting = "Serene"
	default:
		c.Personality = None
	}
	return c
}

// applyBiome scales the preset by the biome's terrain character.
func (c *Characteristics) applyBiome(b biome.Biome) {
	switch b {
	case biome.Forest:
		c.Wildlife *= 1.3
		c.Width *= 0.9
		c.Windiness *= 1.2
	case biome.Urban:
		c.Difficulty *= 0.7
		c.Wildlife *= 0.3
		c.Width *= 1.2
		c.WeatherResistance *= 1.3
	case biome.Mountains:
		c.Difficulty *= 1.3
		c.Elevation += 30
		c.Scenery *= 1.2
	case biome.Beach:
		c.Scenery *= 1.3
		c.Width *= 1.1
		c.WeatherResistance *= 0.8
	case biome.Desert:
		c.Wildlife *= 0.5
		c.WeatherResistance *= 0.6
		c.Windiness *= 0.7
	case biome.Countryside:
		c.Difficulty *= 0.8
		c.Scenery *= 1.1
		c.WeatherResistance *= 1.1
	case biome.Wetlands:
		c.Wildlife *= 1.4
		c.Discovery *= 1.2
		c.Windiness *= 1.1
	}
	c.clamp()
}

// applySide gives left paths a narrower, harder feel and right paths a
// wider, more scenic one.
func (c *Characteristics) applySide(left bool) {
	if left {
		c.Difficulty += 0.1
		c.Wildlife += 0.15
		c.Width *= 0.9
		c.Windiness += 0.1
	} else {
		c.Scenery += 0.15
		c.Difficulty -= 0.1
		c.Width *= 1.1
		c.WeatherResistance += 0.1
	}
	c.clamp()
}

func (c *Characteristics) jitter(f float64) {
	c.Difficulty *= f
	c.Scenery *= f
	c.Wildlife *= f
	c.Discovery *= f
	c.clamp()
}

func (c *Characteristics) clamp() {
	c.Difficulty = clamp01(c.Difficulty)
	c.Scenery = clamp01(c.Scenery)
	c.Wildlife = clamp01(c.Wildlife)
	c.Discovery = clamp01(c.Discovery)
	c.Windiness = clamp01(c.Windiness)
	c.WeatherResistance = clamp01(c.WeatherResistance)
	c.Width = math.Max(MinPathWidth, math.Min(MaxPathWidth, c.Width))
}

// Blend interpolates two records. Numeric fields lerp by t; tags and the
// personality come from a below 0.5 and from b otherwise.
func Blend(a, b Characteristics, t float64) Characteristics {
	t = clamp01(t)
	lerp := func(x, y float64) float64 { return x + (y-x)*t }
	out := Characteristics{
		Difficulty:        lerp(a.Difficulty, b.Difficulty),
		Scenery:           lerp(a.Scenery, b.Scenery),
		Wildlife:          lerp(a.Wildlife, b.Wildlife),
		Discovery:         lerp(a.Discovery, b.Discovery),
		Width:             lerp(a.Width, b.Width),
		Windiness:         lerp(a.Windiness, b.Windiness),
		Elevation:         lerp(a.Elevation, b.Elevation),
		WeatherResistance: lerp(a.WeatherResistance, b.WeatherResistance),
	}
	src := a
	if t >= 0.5 {
		src = b
	}
	out.Personality = src.Personality
	out.Surface = src.Surface
	out.Lighting = src.Lighting
	out.clamp()
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
