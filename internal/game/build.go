package game

import (
	"time"

	"bikeadventure/internal/biome"
	"bikeadventure/internal/config"
	"bikeadventure/internal/perf"
	"bikeadventure/internal/personality"
	"bikeadventure/internal/streaming"
)

// StreamingConfig maps the streaming section of cfg onto the controller.
func StreamingConfig(cfg config.Config) streaming.Config {
	start, err := biome.ParseBiome(cfg.World.StartBiome)
	if err != nil || !start.Valid() {
		start = biome.Countryside
	}
	s := cfg.Streaming
	return streaming.Config{
		SectionSize:          s.SectionSize,
		MaxStreamingDistance: s.MaxStreamingDistance,
		MaxActiveSections:    s.MaxActiveSections,
		MemoryBudgetKB:       s.MemoryBudgetKB,
		UnloadAfter:          time.Duration(s.UnloadAfterSeconds * float64(time.Second)),
		Predictive:           s.Predictive,
		PredictiveMultiplier: s.PredictiveMultiplier,
		Workers:              s.Workers,
		Seed:                 cfg.World.Seed,
		StartBiome:           start,
	}
}

// PerfSettings maps the performance section of cfg onto the governor.
func PerfSettings(cfg config.Config) perf.Settings {
	p := cfg.Performance
	s := perf.DefaultSettings()
	s.TargetFPS = p.TargetFPS
	s.MemoryBudgetMB = p.MemoryBudgetMB
	s.BaseLODBias = p.LODBias
	s.Adaptive = p.Adaptive
	s.Aggressive = p.Aggressive
	s.ParticleLevel = p.ParticleLevel
	return s
}

// EngineOptions maps the personality section of cfg onto engine options.
func EngineOptions(cfg config.Config) []personality.Option {
	p := cfg.Personality
	return []personality.Option{
		personality.WithBiases(p.LeftBias, p.RightBias),
		personality.WithSubtletyBounds(p.MinSubtlety, p.MaxSubtlety),
		personality.WithAdaptiveRules(p.Adaptive),
	}
}
