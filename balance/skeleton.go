package balance

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r2"
)

// Stick is a distance constraint between two skeleton points.
// Length is the rest length captured when the skeleton is built.
type Stick struct {
	A, B   int
	Length float64
}

// PhysicsConfig holds the integration parameters of a Skeleton.
type PhysicsConfig struct {
	TimeStep             float64 `ini:"time_step"`             // Seconds per simulation tick
	Gravity              float64 `ini:"gravity"`               // Downward (+y) acceleration
	Damping              float64 `ini:"damping"`               // Velocity retained per step
	AccelerationNoise    float64 `ini:"acceleration_noise"`    // Half-width of the uniform per-point noise
	CoupledNoise         bool    `ini:"coupled_noise"`         // Use one noise sample for both axes
	ConstraintIterations int     `ini:"constraint_iterations"` // Relaxation passes per step
}

// Skeleton is a set of point masses joined by sticks and integrated with Verlet integration.
// Locked points are positioned externally and are never moved by the simulation.
type Skeleton struct {
	points    []r2.Vec
	oldPoints []r2.Vec
	sticks    []Stick
	locked    []bool
	physics   PhysicsConfig
	rng       *rand.Rand
}

// StickIndices names the two endpoints of a stick to be created by NewSkeleton.
type StickIndices struct {
	A, B int
}

// NewSkeleton builds a skeleton at rest. Stick rest lengths are the initial distances
// between their endpoints.
func NewSkeleton(points []r2.Vec, sticks []StickIndices, physics PhysicsConfig, rng *rand.Rand) (*Skeleton, error) {
	s := &Skeleton{
		points:    append([]r2.Vec(nil), points...),
		oldPoints: append([]r2.Vec(nil), points...),
		sticks:    make([]Stick, 0, len(sticks)),
		locked:    make([]bool, len(points)),
		physics:   physics,
		rng:       rng,
	}
	for i, st := range sticks {
		if st.A < 0 || st.A >= len(points) || st.B < 0 || st.B >= len(points) {
			return nil, fmt.Errorf("stick %d references point out of range [0,%d): (%d, %d)", i, len(points), st.A, st.B)
		}
		length := r2.Norm(r2.Sub(points[st.B], points[st.A]))
		if length <= 0 {
			return nil, fmt.Errorf("stick %d has zero rest length", i)
		}
		s.sticks = append(s.sticks, Stick{A: st.A, B: st.B, Length: length})
	}
	return s, nil
}

// Move advances the skeleton by one step of dt seconds and then relaxes the sticks.
func (s *Skeleton) Move(dt float64) {
	gravity := r2.Vec{Y: s.physics.Gravity}
	dt2 := dt * dt
	for i, p := range s.points {
		if s.locked[i] {
			continue
		}
		acc := r2.Add(gravity, s.accelerationNoise())
		vel := r2.Scale(s.physics.Damping, r2.Sub(p, s.oldPoints[i]))
		s.oldPoints[i] = p
		s.points[i] = r2.Add(r2.Add(p, vel), r2.Scale(dt2, acc))
	}
	s.SatisfyConstraints()
}

// accelerationNoise draws the per-point acceleration noise. With CoupledNoise both axes
// share one sample.
func (s *Skeleton) accelerationNoise() r2.Vec {
	n := s.physics.AccelerationNoise
	if n == 0 || s.rng == nil {
		return r2.Vec{}
	}
	x := uniform(s.rng, -n, n)
	if s.physics.CoupledNoise {
		return r2.Vec{X: x, Y: x}
	}
	return r2.Vec{X: x, Y: uniform(s.rng, -n, n)}
}

// SatisfyConstraints runs the configured number of stick relaxation passes.
// Each unlocked endpoint moves half of the length error along the stick.
func (s *Skeleton) SatisfyConstraints() {
	for iter := 0; iter < s.physics.ConstraintIterations; iter++ {
		for _, st := range s.sticks {
			delta := r2.Sub(s.points[st.B], s.points[st.A])
			length := r2.Norm(delta)
			if length == 0 {
				continue
			}
			diff := (length - st.Length) / length
			offset := r2.Scale(0.5*diff, delta)
			if !s.locked[st.A] {
				s.points[st.A] = r2.Add(s.points[st.A], offset)
			}
			if !s.locked[st.B] {
				s.points[st.B] = r2.Sub(s.points[st.B], offset)
			}
		}
	}
}

// ForcePos pins point i to pos and locks it.
func (s *Skeleton) ForcePos(i int, pos r2.Vec) {
	s.mustIndex(i)
	s.points[i] = pos
	s.locked[i] = true
}

// FreePoint unlocks point i. Its previous position is reset to the current one so the
// point starts at rest.
func (s *Skeleton) FreePoint(i int) {
	s.mustIndex(i)
	s.locked[i] = false
	s.oldPoints[i] = s.points[i]
}

// IsLocked reports whether point i is externally controlled.
func (s *Skeleton) IsLocked(i int) bool {
	s.mustIndex(i)
	return s.locked[i]
}

// Point returns the current position of point i.
func (s *Skeleton) Point(i int) r2.Vec {
	s.mustIndex(i)
	return s.points[i]
}

// Points returns a copy of all current positions.
func (s *Skeleton) Points() []r2.Vec {
	return append([]r2.Vec(nil), s.points...)
}

// Sticks returns a copy of the stick constraints.
func (s *Skeleton) Sticks() []Stick {
	return append([]Stick(nil), s.sticks...)
}

// NumPoints returns the number of points.
func (s *Skeleton) NumPoints() int { return len(s.points) }

// Clone returns a deep copy that draws noise from rng.
func (s *Skeleton) Clone(rng *rand.Rand) *Skeleton {
	return &Skeleton{
		points:    append([]r2.Vec(nil), s.points...),
		oldPoints: append([]r2.Vec(nil), s.oldPoints...),
		sticks:    append([]Stick(nil), s.sticks...),
		locked:    append([]bool(nil), s.locked...),
		physics:   s.physics,
		rng:       rng,
	}
}

func (s *Skeleton) mustIndex(i int) {
	if i < 0 || i >= len(s.points) {
		panic(fmt.Sprintf("skeleton point index %d out of range [0,%d)", i, len(s.points)))
	}
}
