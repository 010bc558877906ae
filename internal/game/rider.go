package game

import (
	"math/rand"
	"time"

	"bikeadventure/internal/biome"
	"bikeadventure/internal/streaming"

	"github.com/go-gl/mathgl/mgl64"
)

// ChoiceMode decides which way a scripted rider turns.
type ChoiceMode uint8

const (
	Alternate ChoiceMode = iota
	RandomChoice
	AlwaysLeft
	AlwaysRight
)

// ParseChoiceMode accepts alternate, random, left or right.
func ParseChoiceMode(s string) (ChoiceMode, bool) {
	switch s {
	case "alternate", "":
		return Alternate, true
	case "random":
		return RandomChoice, true
	case "left":
		return AlwaysLeft, true
	case "right":
		return AlwaysRight, true
	}
	return Alternate, false
}

// Choice is one intersection the rider resolved.
type Choice struct {
	Coord  streaming.Coord
	Left   bool
	Chosen biome.Biome
}

// Rider is a scripted headless player riding a straight line.
type Rider struct {
	Pos   mgl64.Vec3
	Vel   mgl64.Vec3
	mode  ChoiceMode
	rng   *rand.Rand
	turns int
}

// NewRider starts at the origin heading +X at speed units per second.
func NewRider(speed float64, mode ChoiceMode, seed int64) *Rider {
	return &Rider{
		Vel:  mgl64.Vec3{speed, 0, 0},
		mode: mode,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Step moves the rider by dt, ticks the session and resolves an
// intersection in the rider's section if there is one.
func (r *Rider) Step(s *Session, dt time.Duration) (Choice, bool) {
	r.Pos = r.Pos.Add(r.Vel.Mul(dt.Seconds()))
	s.Tick(dt, r.Pos, r.Vel)

	ix, ok := s.IntersectionAt(r.Pos)
	if !ok {
		return Choice{}, false
	}
	left := r.decide()
	chosen, ok := s.ResolveChoice(ix.Coord, left)
	if !ok {
		return Choice{}, false
	}
	return Choice{Coord: ix.Coord, Left: left, Chosen: chosen}, true
}

func (r *Rider) decide() bool {
	r.turns++
	switch r.mode {
	case AlwaysLeft:
		return true
	case AlwaysRight:
		return false
	case RandomChoice:
		return r.rng.Intn(2) == 0
	default:
		return r.turns%2 == 1
	}
}
