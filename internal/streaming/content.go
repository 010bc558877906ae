package streaming

import (
	"context"

	"bikeadventure/internal/biome"

	"github.com/go-gl/mathgl/mgl64"
)

// Content is a handle to spawned world content. Release must free it.
type Content interface {
	Release()
}

// SegmentRequest asks the content layer to build a section's terrain.
type SegmentRequest struct {
	Coord     Coord
	Biome     biome.Biome
	Center    mgl64.Vec3
	Size      float64
	Elevation float64
	Params    biome.GenerationParams
}

// IntersectionRequest asks the content layer to build a decision point.
type IntersectionRequest struct {
	Intersection Intersection
	Params       biome.GenerationParams
}

// ContentGenerator is the external collaborator that turns biome decisions
// into content. Implementations may be called from worker goroutines.
type ContentGenerator interface {
	GenerateSegment(ctx context.Context, req SegmentRequest) (Content, error)
	GenerateIntersection(ctx context.Context, req IntersectionRequest) (Content, error)
}

// NopGenerator produces empty content.
type NopGenerator struct{}

type nopContent struct{}

func (nopContent) Release() {}

func (NopGenerator) GenerateSegment(context.Context, SegmentRequest) (Content, error) {
	return nopContent{}, nil
}

func (NopGenerator) GenerateIntersection(context.Context, IntersectionRequest) (Content, error) {
	return nopContent{}, nil
}
