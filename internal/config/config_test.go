package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEmptyPathGivesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.Streaming.SectionSize != 2000 {
		t.Errorf("Expected section size 2000, got %f", cfg.Streaming.SectionSize)
	}
	if cfg.Streaming.MaxActiveSections != 9 {
		t.Errorf("Expected cap 9, got %d", cfg.Streaming.MaxActiveSections)
	}
	if cfg.Performance.TargetFPS != 60 {
		t.Errorf("Expected 60 FPS, got %d", cfg.Performance.TargetFPS)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bike.yaml")
	raw := []byte(`
world:
  seed: 7
  start_biome: Forest
streaming:
  max_active_sections: 16
performance:
  target_fps: 30
  aggressive: true
`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.World.Seed != 7 || cfg.World.StartBiome != "Forest" {
		t.Errorf("Expected seed 7 in Forest, got %d in %s", cfg.World.Seed, cfg.World.StartBiome)
	}
	if cfg.Streaming.MaxActiveSections != 16 {
		t.Errorf("Expected cap 16, got %d", cfg.Streaming.MaxActiveSections)
	}
	if cfg.Streaming.SectionSize != 2000 {
		t.Errorf("Expected untouched section size 2000, got %f", cfg.Streaming.SectionSize)
	}
	if !cfg.Performance.Aggressive || cfg.Performance.TargetFPS != 30 {
		t.Errorf("Expected aggressive at 30 FPS, got %v at %d", cfg.Performance.Aggressive, cfg.Performance.TargetFPS)
	}
}

func TestParseRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"unknown key":   "streaming:\n  section_sise: 10\n",
		"bad biome":     "world:\n  start_biome: Swamp\n",
		"out of range":  "personality:\n  left_bias: 1.5\n",
		"wrong type":    "performance:\n  adaptive: sometimes\n",
		"particle >max": "performance:\n  particle_level: 3\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Defaults()
			err := Parse([]byte(raw), &cfg)
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestNormalizeClamps(t *testing.T) {
	cfg := Defaults()
	cfg.Performance.TargetFPS = 1000
	cfg.Performance.LODBias = 9
	cfg.Personality.MinSubtlety = 0.8
	cfg.Personality.MaxSubtlety = 0.2
	cfg.Streaming.MaxStreamingDistance = 10
	cfg.Normalize()

	if cfg.Performance.TargetFPS != 240 {
		t.Errorf("Expected FPS clamped to 240, got %d", cfg.Performance.TargetFPS)
	}
	if cfg.Performance.LODBias != 2 {
		t.Errorf("Expected bias clamped to 2, got %f", cfg.Performance.LODBias)
	}
	if cfg.Personality.MaxSubtlety != 0.8 {
		t.Errorf("Expected max subtlety raised to 0.8, got %f", cfg.Personality.MaxSubtlety)
	}
	if cfg.Streaming.MaxStreamingDistance != cfg.Streaming.SectionSize {
		t.Errorf("Expected streaming distance raised to section size, got %f", cfg.Streaming.MaxStreamingDistance)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestParseChecksIntegerFields(t *testing.T) {
	cfg := Defaults()
	if err := Parse([]byte("streaming:\n  workers: 1.5\n"), &cfg); !errors.Is(err, ErrInvalid) {
		t.Errorf("Expected ErrInvalid for fractional workers, got %v", err)
	}
	cfg = Defaults()
	if err := Parse([]byte("streaming:\n  max_active_sections: 12\n  workers: 3\n"), &cfg); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.Streaming.MaxActiveSections != 12 || cfg.Streaming.Workers != 3 {
		t.Errorf("Expected cap 12 and 3 workers, got %d and %d", cfg.Streaming.MaxActiveSections, cfg.Streaming.Workers)
	}
}

func TestShippedConfigIsValid(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "bikeadventure.yaml"))
	if err != nil {
		t.Fatalf("Expected shipped config to load, got %v", err)
	}
	if cfg.World.Seed != 12345 {
		t.Errorf("Expected seed 12345, got %d", cfg.World.Seed)
	}
}
