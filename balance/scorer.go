package balance

import (
	"gonum.org/v1/gonum/spatial/r2"
)

// ScorerState is the lifecycle state of a Scorer.
type ScorerState int

const (
	NotStarted ScorerState = iota
	Running
	Done
)

func (s ScorerState) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Running:
		return "running"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Scorer tracks the fitness of one agent: ticks survived minus the distance its base moved.
// It finishes, permanently, the first time the chain tip is at or below the base.
type Scorer struct {
	state      ScorerState
	aliveTicks int
	distance   float64
	lastBase   r2.Vec
	hasLast    bool
}

// NewScorer returns a scorer in the NotStarted state.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Update observes the skeleton after a physics step. The first call starts scoring.
// Point 0 is the base and the last point is the tip.
func (s *Scorer) Update(sk *Skeleton) {
	if s.state == NotStarted {
		s.state = Running
	}
	if s.state != Running {
		return
	}

	base := sk.Point(0)
	tip := sk.Point(sk.NumPoints() - 1)

	s.aliveTicks++
	if s.hasLast {
		s.distance += r2.Norm(r2.Sub(base, s.lastBase))
	}
	s.lastBase = base
	s.hasLast = true

	// +y points down, so a non-negative y offset means the tip has fallen.
	if tip.Y-base.Y >= 0 {
		s.state = Done
	}
}

// State returns the current lifecycle state.
func (s *Scorer) State() ScorerState { return s.state }

// IsDone reports whether the chain has fallen.
func (s *Scorer) IsDone() bool { return s.state == Done }

// IsFinal reports whether Score will no longer change. It is equivalent to IsDone.
func (s *Scorer) IsFinal() bool { return s.state == Done }

// AliveTicks returns the number of ticks scored so far.
func (s *Scorer) AliveTicks() int { return s.aliveTicks }

// Distance returns the cumulative distance moved by the base.
func (s *Scorer) Distance() float64 { return s.distance }

// Score returns alive ticks minus base distance. Before the scorer is done this is the
// partial score so far, which lets live agents be ranked against finished ones.
func (s *Scorer) Score() float64 {
	return float64(s.aliveTicks) - s.distance
}

// Clone returns a copy of the scorer.
func (s *Scorer) Clone() *Scorer {
	cp := *s
	return &cp
}
