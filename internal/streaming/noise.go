package streaming

import (
	"github.com/ojrac/opensimplex-go"
)

// terrainNoise wraps normalized OpenSimplex noise, so every value is in [0,1].
type terrainNoise struct {
	n opensimplex.Noise
}

func newTerrainNoise(seed int64) *terrainNoise {
	return &terrainNoise{n: opensimplex.NewNormalized(seed)}
}

func (t *terrainNoise) octave2D(x, y float64, octaves int, persistence, lacunarity float64) float64 {
	amplitude := 1.0
	frequency := 1.0
	sum := 0.0
	norm := 0.0
	for range octaves {
		sum += t.n.Eval2(x*frequency, y*frequency) * amplitude
		norm += amplitude
		amplitude *= persistence
		frequency *= lacunarity
	}
	if norm == 0 {
		return 0
	}
	return sum / norm
}

// leftChoice decides which side of the model's draw a new section takes.
// Neighbouring cells are decorrelated by sampling between lattice points.
func (t *terrainNoise) leftChoice(c Coord) bool {
	return t.n.Eval2(float64(c.X)*0.61+0.27, float64(c.Y)*0.61+0.43) >= 0.5
}

// elevation is a smooth height hint in world units for the section center.
func (t *terrainNoise) elevation(x, y, sectionSize float64) float64 {
	scale := 1.0 / (sectionSize * 8)
	return (t.octave2D(x*scale, y*scale, 3, 0.5, 2.0) - 0.5) * sectionSize * 0.25
}
