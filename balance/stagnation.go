package balance

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Stagnation tracks the best score of every generation and detects runs of generations
// that fail to improve on the best score seen before them.
type Stagnation struct {
	MaxStagnation  int       // Generations without improvement before Stagnant reports true, 0 disables
	FitnessHistory []float64 // Best score per generation
	LastImproved   int       // Generation index of the last improvement
}

// NewStagnation creates a stagnation tracker.
func NewStagnation(maxStagnation int) *Stagnation {
	return &Stagnation{MaxStagnation: maxStagnation, LastImproved: -1}
}

// Update records the best score of a generation and reports whether the run is stagnant.
func (s *Stagnation) Update(generation int, best float64) bool {
	previous := math.Inf(-1)
	if len(s.FitnessHistory) > 0 {
		previous = floats.Max(s.FitnessHistory)
	}
	s.FitnessHistory = append(s.FitnessHistory, best)
	if best > previous || math.IsInf(previous, -1) {
		s.LastImproved = generation
	}
	return s.Stagnant(generation)
}

// Stagnant reports whether at least MaxStagnation generations passed without improvement.
func (s *Stagnation) Stagnant(generation int) bool {
	if s.MaxStagnation <= 0 || s.LastImproved < 0 {
		return false
	}
	return generation-s.LastImproved >= s.MaxStagnation
}
