package perf

import "bikeadventure/internal/biome"

// Settings are the user-facing performance knobs.
type Settings struct {
	TargetFPS      int
	MemoryBudgetMB float64
	BaseLODBias    float64
	Adaptive       bool
	Aggressive     bool
	ParticleLevel  int
	ShadowQuality  int
	TextureQuality int
	CullingLevel   int
}

// DefaultSettings targets 60 FPS in a 4 GB budget.
func DefaultSettings() Settings {
	return Settings{
		TargetFPS:      60,
		MemoryBudgetMB: 4096,
		BaseLODBias:    1.0,
		Adaptive:       true,
		Aggressive:     false,
		ParticleLevel:  1,
		ShadowQuality:  1,
		TextureQuality: 1,
		CullingLevel:   1,
	}
}

func (s Settings) normalized() Settings {
	d := DefaultSettings()
	if s.TargetFPS <= 0 {
		s.TargetFPS = d.TargetFPS
	}
	if s.MemoryBudgetMB <= 0 {
		s.MemoryBudgetMB = d.MemoryBudgetMB
	}
	if s.BaseLODBias <= 0 {
		s.BaseLODBias = d.BaseLODBias
	}
	s.ParticleLevel = max(0, min(MaxParticleLevel, s.ParticleLevel))
	return s
}

// TargetFrameMs is the frame budget in milliseconds.
func (s Settings) TargetFrameMs() float64 {
	return 1000.0 / float64(s.TargetFPS)
}

// CalculateAdaptiveLODBias derives the starting bias from the settings.
func CalculateAdaptiveLODBias(s Settings) float64 {
	bias := s.BaseLODBias
	if s.Aggressive {
		bias *= 1.1
	}
	return max(MinLODBias, min(MaxLODBias, bias))
}

const (
	MinLODBias       = 0.5
	MaxLODBias       = 2.0
	MaxParticleLevel = 2
)

// LODConfig holds the distance thresholds for one biome.
type LODConfig struct {
	LOD0               float64
	LOD1               float64
	LOD2               float64
	Cull               float64
	ParticleMultiplier float64
	Enabled            bool
}

// DefaultLODConfig is used for biomes without an entry of their own.
func DefaultLODConfig() LODConfig {
	return LODConfig{LOD0: 1000, LOD1: 3000, LOD2: 6000, Cull: 10000, ParticleMultiplier: 1, Enabled: true}
}

func lodConfig(l0, l1, l2, cull, particles float64) LODConfig {
	return LODConfig{LOD0: l0, LOD1: l1, LOD2: l2, Cull: cull, ParticleMultiplier: particles, Enabled: true}
}

// DefaultLODTable returns the per-biome thresholds. Dense biomes switch
// detail earlier.
func DefaultLODTable() map[biome.Biome]LODConfig {
	return map[biome.Biome]LODConfig{
		biome.Forest:      lodConfig(800, 2500, 5000, 8000, 0.8),
		biome.Urban:       lodConfig(1200, 3500, 6000, 10000, 0.6),
		biome.Desert:      lodConfig(1500, 4000, 8000, 12000, 1.0),
		biome.Beach:       lodConfig(1200, 3000, 6000, 10000, 0.9),
		biome.Mountains:   lodConfig(1000, 3000, 7000, 12000, 0.7),
		biome.Countryside: lodConfig(1000, 3000, 6000, 10000, 1.0),
		biome.Wetlands:    lodConfig(800, 2500, 5000, 8000, 0.8),
	}
}
