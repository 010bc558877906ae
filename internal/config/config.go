package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every schema violation returned from Load.
var ErrInvalid = errors.New("invalid config")

// Config is the full runtime configuration. It is built once and passed to
// constructors; nothing reads it through package state.
type Config struct {
	World       WorldConfig       `yaml:"world"`
	Streaming   StreamingConfig   `yaml:"streaming"`
	Personality PersonalityConfig `yaml:"personality"`
	Performance PerformanceConfig `yaml:"performance"`
	Journal     JournalConfig     `yaml:"journal"`
	Store       StoreConfig       `yaml:"store"`
	Feed        FeedConfig        `yaml:"feed"`
}

type WorldConfig struct {
	Seed       int64   `yaml:"seed"`
	StartBiome string  `yaml:"start_biome"`
	RiderSpeed float64 `yaml:"rider_speed"`
}

// StreamingConfig sizes the section grid. Distances are world units.
type StreamingConfig struct {
	SectionSize          float64 `yaml:"section_size"`
	MaxStreamingDistance float64 `yaml:"max_streaming_distance"`
	MaxActiveSections    int     `yaml:"max_active_sections"`
	MemoryBudgetKB       float64 `yaml:"memory_budget_kb"`
	UnloadAfterSeconds   float64 `yaml:"unload_after_seconds"`
	Predictive           bool    `yaml:"predictive"`
	PredictiveMultiplier float64 `yaml:"predictive_multiplier"`
	Workers              int     `yaml:"workers"`
}

type PersonalityConfig struct {
	LeftBias    float64 `yaml:"left_bias"`
	RightBias   float64 `yaml:"right_bias"`
	MinSubtlety float64 `yaml:"min_subtlety"`
	MaxSubtlety float64 `yaml:"max_subtlety"`
	Adaptive    bool    `yaml:"adaptive"`
}

type PerformanceConfig struct {
	TargetFPS      int     `yaml:"target_fps"`
	MemoryBudgetMB float64 `yaml:"memory_budget_mb"`
	LODBias        float64 `yaml:"lod_bias"`
	Adaptive       bool    `yaml:"adaptive"`
	Aggressive     bool    `yaml:"aggressive"`
	ParticleLevel  int     `yaml:"particle_level"`
}

type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type FeedConfig struct {
	Addr string `yaml:"addr"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		World: WorldConfig{
			Seed:       12345,
			StartBiome: "Countryside",
			RiderSpeed: 800,
		},
		Streaming: StreamingConfig{
			SectionSize:          2000,
			MaxStreamingDistance: 5000,
			MaxActiveSections:    9,
			MemoryBudgetKB:       4194304,
			UnloadAfterSeconds:   30,
			Predictive:           true,
			PredictiveMultiplier: 2,
			Workers:              2,
		},
		Personality: PersonalityConfig{
			LeftBias:    0.6,
			RightBias:   0.7,
			MinSubtlety: 0.1,
			MaxSubtlety: 0.9,
			Adaptive:    false,
		},
		Performance: PerformanceConfig{
			TargetFPS:      60,
			MemoryBudgetMB: 4096,
			LODBias:        1.0,
			Adaptive:       true,
			Aggressive:     false,
			ParticleLevel:  1,
		},
		Journal: JournalConfig{
			Enabled: true,
			Dir:     "data/journal",
		},
		Store: StoreConfig{
			Path: "data/history.sqlite",
		},
	}
}

// Load reads a YAML file over the defaults, validates it against the
// embedded schema and clamps the result. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if err := Parse(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates raw YAML and decodes it into cfg, which should already
// hold defaults.
func Parse(raw []byte, cfg *Config) error {
	if err := validate(raw); err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("decode yaml: %w", err)
	}
	cfg.Normalize()
	return nil
}

// Normalize clamps every numeric setting into its supported range.
func (c *Config) Normalize() {
	s := &c.Streaming
	s.SectionSize = clampF(s.SectionSize, 100, 100000)
	s.MaxStreamingDistance = clampF(s.MaxStreamingDistance, s.SectionSize, 1e7)
	s.MaxActiveSections = clampI(s.MaxActiveSections, 1, 256)
	if s.MemoryBudgetKB <= 0 {
		s.MemoryBudgetKB = Defaults().Streaming.MemoryBudgetKB
	}
	if s.UnloadAfterSeconds <= 0 {
		s.UnloadAfterSeconds = Defaults().Streaming.UnloadAfterSeconds
	}
	s.PredictiveMultiplier = clampF(s.PredictiveMultiplier, 0, 10)
	s.Workers = clampI(s.Workers, 0, 64)

	p := &c.Personality
	p.LeftBias = clampF(p.LeftBias, 0, 1)
	p.RightBias = clampF(p.RightBias, 0, 1)
	p.MinSubtlety = clampF(p.MinSubtlety, 0, 1)
	p.MaxSubtlety = clampF(p.MaxSubtlety, p.MinSubtlety, 1)

	perf := &c.Performance
	perf.TargetFPS = clampI(perf.TargetFPS, 15, 240)
	if perf.MemoryBudgetMB <= 0 {
		perf.MemoryBudgetMB = Defaults().Performance.MemoryBudgetMB
	}
	perf.LODBias = clampF(perf.LODBias, 0.5, 2)
	perf.ParticleLevel = clampI(perf.ParticleLevel, 0, 2)

	if c.World.RiderSpeed < 0 {
		c.World.RiderSpeed = 0
	}
	if strings.TrimSpace(c.World.StartBiome) == "" {
		c.World.StartBiome = Defaults().World.StartBiome
	}
}

//go:embed config.schema.json
var schemaJSON string

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.CompileString("config.schema.json", schemaJSON)
})

// validate checks raw YAML against the schema. YAML is re-encoded as JSON
// so the validator sees the same value types it would from a JSON file.
func validate(raw []byte) error {
	schema, err := compileSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode yaml: %w", err)
	}
	if doc == nil {
		return nil
	}
	js, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	dec := json.NewDecoder(bytes.NewReader(js))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampI(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
