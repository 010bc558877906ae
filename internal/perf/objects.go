package perf

import (
	"bikeadventure/internal/biome"

	"github.com/go-gl/mathgl/mgl64"
)

// ObjectKind separates the three categories of tracked content.
type ObjectKind uint8

const (
	Mesh ObjectKind = iota
	ParticleSystem
	ProceduralActor
)

func (k ObjectKind) String() string {
	switch k {
	case Mesh:
		return "mesh"
	case ParticleSystem:
		return "particles"
	case ProceduralActor:
		return "procedural"
	default:
		return "unknown"
	}
}

// ObjectID identifies a tracked object.
type ObjectID uint64

// Object is the governor's view of one piece of rendered content.
type Object struct {
	ID        ObjectID
	Kind      ObjectKind
	Position  mgl64.Vec3
	Biome     biome.Biome
	LOD       int
	Visible   bool
	Active    bool
	Intensity float64
}

// Track registers content for LOD management and returns its ID.
func (g *Governor) Track(kind ObjectKind, pos mgl64.Vec3, b biome.Biome) ObjectID {
	g.nextID++
	id := g.nextID
	g.objects[id] = &Object{
		ID:        id,
		Kind:      kind,
		Position:  pos,
		Biome:     b,
		Visible:   true,
		Active:    true,
		Intensity: 1,
	}
	return id
}

// Untrack forgets an object.
func (g *Governor) Untrack(id ObjectID) {
	delete(g.objects, id)
}

// Move updates an object's position.
func (g *Governor) Move(id ObjectID, pos mgl64.Vec3) {
	if o, ok := g.objects[id]; ok {
		o.Position = pos
	}
}

// Object returns a copy of a tracked object.
func (g *Governor) Object(id ObjectID) (Object, bool) {
	o, ok := g.objects[id]
	if !ok {
		return Object{}, false
	}
	return *o, true
}

func (g *Governor) counts() (meshes, particles, procedural int) {
	for _, o := range g.objects {
		switch o.Kind {
		case Mesh:
			meshes++
		case ParticleSystem:
			particles++
		case ProceduralActor:
			procedural++
		}
	}
	return
}
