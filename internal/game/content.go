package game

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"bikeadventure/internal/streaming"
)

// SceneGenerator is a headless content layer. It sizes each segment from
// the biome's generation parameters and counts live handles so leaks show
// up in diagnostics.
type SceneGenerator struct {
	live     atomic.Int64
	made     atomic.Uint64
	features atomic.Int64
}

// Scene is the content handle for one segment or intersection.
type Scene struct {
	Features int
	g        *SceneGenerator
	once     sync.Once
}

func (s *Scene) Release() {
	s.once.Do(func() {
		s.g.live.Add(-1)
		s.g.features.Add(-int64(s.Features))
	})
}

func (g *SceneGenerator) GenerateSegment(ctx context.Context, req streaming.SegmentRequest) (streaming.Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := req.Params
	area := req.Size * req.Size / 1e6
	n := int(math.Round(area * (p.VegetationDensity*40 + p.RockDensity*20 + p.DetailObjectDensity*10)))
	return g.scene(n), nil
}

func (g *SceneGenerator) GenerateIntersection(ctx context.Context, req streaming.IntersectionRequest) (streaming.Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.scene(1 + int(math.Round(req.Params.PathWidth/100))), nil
}

func (g *SceneGenerator) scene(features int) *Scene {
	g.live.Add(1)
	g.made.Add(1)
	g.features.Add(int64(features))
	return &Scene{Features: features, g: g}
}

// Live returns the number of handles not yet released.
func (g *SceneGenerator) Live() int64 {
	return g.live.Load()
}

// Made returns the number of handles ever produced.
func (g *SceneGenerator) Made() uint64 {
	return g.made.Load()
}

// Features returns the feature count across live handles.
func (g *SceneGenerator) Features() int64 {
	return g.features.Load()
}
