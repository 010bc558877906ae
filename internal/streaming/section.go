package streaming

import (
	"cmp"
	"math"
	"time"

	"bikeadventure/internal/biome"

	"github.com/go-gl/mathgl/mgl64"
)

// Coord is the integer grid key of a section. X and Y are horizontal, Z is up.
type Coord struct {
	X, Y, Z int
}

func compareCoords(a, b Coord) int {
	if c := cmp.Compare(a.X, b.X); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Y, b.Y); c != 0 {
		return c
	}
	return cmp.Compare(a.Z, b.Z)
}

// Intersection is a planned left/right decision point inside a section.
type Intersection struct {
	Coord    Coord                   `json:"coord"`
	Current  biome.Biome             `json:"current"`
	Left     biome.Biome             `json:"left"`
	Right    biome.Biome             `json:"right"`
	Shape    biome.IntersectionShape `json:"shape"`
	Position mgl64.Vec3              `json:"position"`
}

// Section is one streamed cell of the world. The controller owns every
// section and the content handles attached to it.
type Section struct {
	Coord           Coord
	Biome           biome.Biome
	Center          mgl64.Vec3
	Min, Max        mgl64.Vec3
	Elevation       float64
	Loaded          bool
	Visible         bool
	LastAccess      time.Time
	MemoryKB        float64
	HasIntersection bool
	Intersection    Intersection

	content     []Content
	gen         uint64
	requestedAt time.Time
}

// release frees every content handle owned by the section.
func (s *Section) release() {
	for _, c := range s.content {
		if c != nil {
			c.Release()
		}
	}
	s.content = nil
	s.Loaded = false
}

// snapshot copies the public fields for callers outside the owner.
func (s *Section) snapshot() Section {
	out := *s
	out.content = nil
	return out
}

const (
	baseSectionKB       = 10240.0
	intersectionExtraKB = 2048.0
)

// EstimateMemoryKB returns the bookkeeping cost of a section.
func EstimateMemoryKB(b biome.Biome, hasIntersection bool) float64 {
	kb := baseSectionKB
	switch b {
	case biome.Forest:
		kb *= 1.5
	case biome.Urban:
		kb *= 1.3
	case biome.Desert:
		kb *= 0.7
	case biome.Beach:
		kb *= 0.8
	}
	if hasIntersection {
		kb += intersectionExtraKB
	}
	return kb
}

// hasIntersectionAt marks every third diagonal band of the grid.
func hasIntersectionAt(c Coord) bool {
	sum := c.X + c.Y
	if sum < 0 {
		sum = -sum
	}
	return sum%3 == 0
}

func floorDiv(v, size float64) int {
	return int(math.Floor(v / size))
}
