package balance

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/baldhumanity/polebalance-go/balance/nn"
)

// SelectParents returns the n highest scoring agents, best first. Agents with equal
// scores keep their population order.
func SelectParents(agents []*Agent, n int) []*Agent {
	ranked := make([]*Agent, len(agents))
	copy(ranked, agents)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score() > ranked[j].Score()
	})
	if n > len(ranked) {
		n = len(ranked)
	}
	return ranked[:n]
}

// Reproduction builds the next generation from the selected parents.
type Reproduction struct {
	Agent       AgentConfig
	Physics     PhysicsConfig
	RandomMixin float64 // Fraction of each generation filled with fresh random agents
}

// MixinCount returns how many of popSize slots are filled with fresh random agents.
func (r *Reproduction) MixinCount(popSize int) int {
	return int(math.Floor(float64(popSize) * r.RandomMixin))
}

// CreateNewPopulation creates popSize random agents.
func (r *Reproduction) CreateNewPopulation(popSize int, rng *rand.Rand) ([]*Agent, error) {
	agents := make([]*Agent, 0, popSize)
	for i := 0; i < popSize; i++ {
		a, err := NewAgent(r.Agent, r.Physics, newRand(rng))
		if err != nil {
			return nil, fmt.Errorf("failed to create agent %d: %w", i, err)
		}
		agents = append(agents, a)
	}
	return agents, nil
}

// SeedPopulation creates popSize agents driven by copies of nets, cycling through them
// in order.
func (r *Reproduction) SeedPopulation(nets []*nn.NeuralNet, popSize int, rng *rand.Rand) ([]*Agent, error) {
	if len(nets) == 0 {
		return nil, fmt.Errorf("cannot seed a population without networks")
	}
	agents := make([]*Agent, 0, popSize)
	for i := 0; i < popSize; i++ {
		a, err := NewAgentWithNet(r.Agent, r.Physics, nets[i%len(nets)], newRand(rng))
		if err != nil {
			return nil, fmt.Errorf("failed to seed agent %d: %w", i, err)
		}
		agents = append(agents, a)
	}
	return agents, nil
}

// Reproduce returns popSize new agents. The first popSize-MixinCount slots cycle
// through parents, each producing a mutated copy; the rest are fresh random agents.
func (r *Reproduction) Reproduce(parents []*Agent, popSize int, mutationAmount float64, rng *rand.Rand) ([]*Agent, error) {
	if len(parents) == 0 {
		return nil, fmt.Errorf("cannot reproduce without parents")
	}
	mixin := r.MixinCount(popSize)
	offspring := popSize - mixin

	next := make([]*Agent, 0, popSize)
	for i := 0; i < offspring; i++ {
		next = append(next, parents[i%len(parents)].MutatedCopy(mutationAmount, newRand(rng), false))
	}
	fresh, err := r.CreateNewPopulation(mixin, rng)
	if err != nil {
		return nil, err
	}
	return append(next, fresh...), nil
}
