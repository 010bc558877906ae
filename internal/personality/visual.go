package personality

import "bikeadventure/internal/biome"

// Color is a linear RGBA tint.
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

// VisualHints tell the presentation layer how loudly to advertise a path.
type VisualHints struct {
	Intensity         float64 `json:"intensity"`
	ColorCoding       bool    `json:"color_coding"`
	Particles         bool    `json:"particles"`
	Lighting          bool    `json:"lighting"`
	Audio             bool    `json:"audio"`
	Tint              Color   `json:"tint"`
	ParticleIntensity float64 `json:"particle_intensity"`
	LightIntensity    float64 `json:"light_intensity"`
	AudioIntensity    float64 `json:"audio_intensity"`
}

// Tint returns the signature color of a personality.
func Tint(p Personality) Color {
	switch p {
	case Wild:
		return Color{0, 1, 0, 1}
	case Safe:
		return Color{0, 0, 1, 1}
	case Scenic:
		return Color{1, 0.8, 0.4, 1}
	case Challenge:
		return Color{1, 0, 0, 1}
	case Mystery:
		return Color{0.6, 0.4, 0.9, 1}
	case Peaceful:
		return Color{0.7, 0.9, 1, 1}
	default:
		return Color{1, 1, 1, 1}
	}
}

// BuildVisualHints derives cue intensities for a path. Higher subtlety
// means fainter cues.
func BuildVisualHints(p Personality, b biome.Biome, subtlety float64) VisualHints {
	strength := 1 - clamp01(subtlety)
	v := VisualHints{
		Intensity:         0.6 * strength,
		ColorCoding:       true,
		Particles:         true,
		Tint:              Tint(p),
		ParticleIntensity: 0.5 * strength,
		LightIntensity:    0.3 * strength,
		AudioIntensity:    0.2 * strength,
	}
	switch b {
	case biome.Forest, biome.Wetlands:
		v.Intensity *= 0.8
		v.ColorCoding = true
		v.Particles = true
		v.Lighting = false
	case biome.Urban:
		v.Intensity *= 1.2
		v.Lighting = true
		v.Audio = true
	case biome.Desert:
		v.Intensity *= 0.7
		v.Lighting = false
	}
	v.Intensity = clamp01(v.Intensity)
	return v
}
