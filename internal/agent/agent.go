// Package agent provides the policies that drive the environment.
package agent

import (
	"math/rand/v2"

	"github.com/alanyoungcy/tradereward/internal/env"
)

// Agent chooses an action for an observation.
type Agent interface {
	Name() string
	Act(obs env.Observation) (int, error)
}

// RandomAgent picks uniformly among the available actions.
type RandomAgent struct {
	actions int
	rng     *rand.Rand
}

// NewRandom creates a RandomAgent seeded with seed.
func NewRandom(actions int, seed uint64) *RandomAgent {
	return &RandomAgent{
		actions: actions,
		rng:     rand.New(rand.NewPCG(seed, seed+1)),
	}
}

func (a *RandomAgent) Name() string { return "random" }

func (a *RandomAgent) Act(env.Observation) (int, error) {
	return a.rng.IntN(a.actions), nil
}
