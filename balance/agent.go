package balance

import (
	"fmt"
	"image/color"
	"math"
	"math/rand"

	"github.com/baldhumanity/polebalance-go/balance/nn"
	"gonum.org/v1/gonum/spatial/r2"
)

// AgentConfig holds the body and controller parameters of an agent.
type AgentConfig struct {
	ChainLength      int     `ini:"chain_length"`      // Rod segments beyond the base rod
	MoveStrength     float64 `ini:"move_strength"`     // Velocity gained per unit force per second
	ForceNoise       float64 `ini:"force_noise"`       // Half-width of the uniform noise added to the force
	TrackWidth       float64 `ini:"track_width"`       // The base is clamped to ±TrackWidth/2
	HiddenLayers     []int   `ini:"hidden_layers" delim:" "`
	HiddenActivation string  `ini:"hidden_activation"`
	OutputActivation string  `ini:"output_activation"`
	WeightRange      float64 `ini:"weight_range"` // Initial weights are uniform in ±WeightRange
}

// DefaultAgentConfig returns the reference agent parameters.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		ChainLength:      0,
		MoveStrength:     1.5,
		ForceNoise:       0.2,
		TrackWidth:       800,
		HiddenLayers:     []int{6, 6, 3},
		HiddenActivation: "tanh",
		OutputActivation: "tanh",
		WeightRange:      1.0,
	}
}

// InputSize is the network input size for the configured chain: base velocity, base
// position and one horizontal offset per rod segment.
func (a AgentConfig) InputSize() int {
	return a.ChainLength + 3
}

// Agent is one pole-balancing cart: a skeleton, the network driving it and its scorer.
type Agent struct {
	Highlighted bool
	BaseColor   color.RGBA
	RodColor    color.RGBA

	cfg      AgentConfig
	physics  PhysicsConfig
	pos      float64 // Horizontal base position, 0 is the track centre
	vel      float64
	skeleton *Skeleton
	net      *nn.NeuralNet
	scorer   *Scorer
	rng      *rand.Rand
}

// NewAgent creates an agent with a freshly randomized network.
func NewAgent(cfg AgentConfig, physics PhysicsConfig, rng *rand.Rand) (*Agent, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	hiddenAct, outputAct, err := cfg.activations()
	if err != nil {
		return nil, err
	}

	net, err := nn.New(cfg.InputSize(), 1, outputAct, cfg.WeightRange, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent network: %w", err)
	}
	for _, size := range cfg.HiddenLayers {
		if err := net.AddHiddenLayer(size, hiddenAct, rng); err != nil {
			return nil, fmt.Errorf("failed to add hidden layer: %w", err)
		}
	}

	a := newAgent(cfg, physics, net, rng)
	a.BaseColor = randomColor(rng, 40, 120)
	a.RodColor = randomColor(rng, 100, 180)
	return a, nil
}

// NewAgentWithNet creates an agent driven by net, typically a loaded pretrained network.
func NewAgentWithNet(cfg AgentConfig, physics PhysicsConfig, net *nn.NeuralNet, rng *rand.Rand) (*Agent, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if net.InputSize() != cfg.InputSize() {
		return nil, fmt.Errorf("network takes %d inputs, chain length %d needs %d", net.InputSize(), cfg.ChainLength, cfg.InputSize())
	}
	if net.OutputSize() < 1 {
		return nil, fmt.Errorf("network has no outputs")
	}
	a := newAgent(cfg, physics, net.Copy(), rng)
	a.BaseColor = randomColor(rng, 40, 120)
	a.RodColor = randomColor(rng, 100, 180)
	return a, nil
}

func newAgent(cfg AgentConfig, physics PhysicsConfig, net *nn.NeuralNet, rng *rand.Rand) *Agent {
	a := &Agent{
		cfg:     cfg,
		physics: physics,
		net:     net,
		rng:     rng,
	}
	a.Reset()
	return a
}

// Reset puts the agent back at the track centre with an upright body and a fresh scorer.
func (a *Agent) Reset() {
	a.pos = 0
	a.vel = 0
	a.skeleton = newChainSkeleton(a.cfg.ChainLength, a.physics, a.rng)
	a.scorer = NewScorer()
}

// newChainSkeleton builds the upright rod chain: a base rod of length ~260 and one 40 unit
// segment per extra link, leaning one unit to the right.
func newChainSkeleton(chainLength int, physics PhysicsConfig, rng *rand.Rand) *Skeleton {
	points := []r2.Vec{{X: 0, Y: 0}, {X: 1, Y: -260}}
	for i := 0; i < chainLength; i++ {
		points = append(points, r2.Vec{X: 1, Y: -300 - float64(i)*40})
	}
	sticks := make([]StickIndices, 0, len(points)-1)
	for i := 0; i < len(points)-1; i++ {
		sticks = append(sticks, StickIndices{A: i, B: i + 1})
	}
	sk, err := NewSkeleton(points, sticks, physics, rng)
	if err != nil {
		// The chain geometry above always has distinct consecutive points.
		panic(fmt.Sprintf("invalid chain skeleton: %v", err))
	}
	return sk
}

// Update advances the agent by dt seconds. It does nothing once the scorer is done.
func (a *Agent) Update(dt float64) error {
	if a.scorer.IsDone() {
		return nil
	}

	effort, err := a.net.Evaluate(a.inputs())
	if err != nil {
		return fmt.Errorf("failed to evaluate agent network: %w", err)
	}
	a.applyForce(math.Tanh(effort[0]), dt)

	a.skeleton.Move(dt)
	a.scorer.Update(a.skeleton)
	return nil
}

// inputs builds the network input: base velocity, base position, then the horizontal
// offset between each pair of adjacent chain points.
func (a *Agent) inputs() []float64 {
	in := make([]float64, 0, a.cfg.InputSize())
	in = append(in, a.vel, a.pos)
	for i := 0; i < a.cfg.ChainLength+1; i++ {
		in = append(in, a.skeleton.Point(i+1).X-a.skeleton.Point(i).X)
	}
	return in
}

// applyForce turns a normalized force into base motion and pins the skeleton base to it.
func (a *Agent) applyForce(force, dt float64) {
	if a.cfg.ForceNoise > 0 {
		force += uniform(a.rng, -a.cfg.ForceNoise, a.cfg.ForceNoise)
	}
	a.vel += force * a.cfg.MoveStrength * dt
	half := a.cfg.TrackWidth / 2
	a.pos = clamp(a.pos+a.vel, -half, half)
	a.skeleton.ForcePos(0, r2.Vec{X: a.pos})
}

// MutatedCopy returns a new agent with a Gaussian-perturbed copy of the network and a
// fresh body and scorer. The new agent draws its noise from rng.
func (a *Agent) MutatedCopy(stdDev float64, rng *rand.Rand, preserveColor bool) *Agent {
	cp := newAgent(a.cfg, a.physics, a.net.NoisyCopy(stdDev, rng), rng)
	if preserveColor {
		cp.BaseColor, cp.RodColor = a.BaseColor, a.RodColor
	} else {
		cp.BaseColor = randomColor(rng, 40, 120)
		cp.RodColor = randomColor(rng, 100, 180)
	}
	return cp
}

// Copy returns a full deep clone, including body, scorer and kinematic state.
func (a *Agent) Copy() *Agent {
	rng := newRand(a.rng)
	return &Agent{
		Highlighted: a.Highlighted,
		BaseColor:   a.BaseColor,
		RodColor:    a.RodColor,
		cfg:         a.cfg,
		physics:     a.physics,
		pos:         a.pos,
		vel:         a.vel,
		skeleton:    a.skeleton.Clone(rng),
		net:         a.net.Copy(),
		scorer:      a.scorer.Clone(),
		rng:         rng,
	}
}

// Score returns the scorer's current score.
func (a *Agent) Score() float64 { return a.scorer.Score() }

// IsDone reports whether the agent's chain has fallen.
func (a *Agent) IsDone() bool { return a.scorer.IsDone() }

// Scorer returns the agent's scorer.
func (a *Agent) Scorer() *Scorer { return a.scorer }

// Skeleton returns the agent's body.
func (a *Agent) Skeleton() *Skeleton { return a.skeleton }

// Net returns the agent's network.
func (a *Agent) Net() *nn.NeuralNet { return a.net }

// Position returns the horizontal base position.
func (a *Agent) Position() float64 { return a.pos }

// Velocity returns the horizontal base velocity.
func (a *Agent) Velocity() float64 { return a.vel }

// ChainLength returns the number of extra rod segments.
func (a *Agent) ChainLength() int { return a.cfg.ChainLength }

// AgentView is a read-only snapshot of an agent for renderers.
type AgentView struct {
	Points      []r2.Vec
	Sticks      []Stick
	Position    float64
	BaseColor   color.RGBA
	RodColor    color.RGBA
	Highlighted bool
	Done        bool
	Score       float64
	Net         *nn.Snapshot // Set only for highlighted agents
}

// View snapshots the agent for drawing.
func (a *Agent) View() AgentView {
	v := AgentView{
		Points:      a.skeleton.Points(),
		Sticks:      a.skeleton.Sticks(),
		Position:    a.pos,
		BaseColor:   a.BaseColor,
		RodColor:    a.RodColor,
		Highlighted: a.Highlighted,
		Done:        a.scorer.IsDone(),
		Score:       a.scorer.Score(),
	}
	if a.Highlighted {
		snap := a.net.Snapshot()
		v.Net = &snap
	}
	return v
}

func randomColor(rng *rand.Rand, lo, hi int) color.RGBA {
	channel := func() uint8 { return uint8(lo + rng.Intn(hi-lo+1)) }
	return color.RGBA{R: channel(), G: channel(), B: channel(), A: 255}
}
