// Package hmmsim generates hidden state sequences and observations from
// hidden Markov models, and provides the test systems used by the command
// line tools and the sampler tests.
package hmmsim

import (
	"math/rand"

	"github.com/kshedden/bhmm/errors"
	"github.com/kshedden/bhmm/hmmlib"
	"github.com/kshedden/bhmm/randist"
)

// makeIntArray makes a collection of r slices
// of length c, packed contiguously.
func makeIntArray(r, c int) [][]int {

	bka := make([]int, r*c)
	x := make([][]int, r)
	ii := 0
	for j := 0; j < r; j++ {
		x[j] = bka[ii : ii+c]
		ii += c
	}

	return x
}

// GenStates generates ntraj random state sequences of length ntime from the
// Markov chain of m.
func GenStates(m *hmmlib.Model, ntraj, ntime int, rng *rand.Rand) [][]int {

	n := m.NState
	states := makeIntArray(ntraj, ntime)

	for p := 0; p < ntraj; p++ {

		// Set the initial state
		states[p][0] = randist.Discrete(rng, m.Init)

		// Set the rest of the states
		for t := 1; t < ntime; t++ {
			st := states[p][t-1]
			row := m.Trans[st*n : (st+1)*n]
			states[p][t] = randist.Discrete(rng, row)
		}
	}

	return states
}

// GenObs generates an observation sequence for each state sequence.
func GenObs(m *hmmlib.Model, states [][]int, rng *rand.Rand) [][]float64 {

	nc := m.NComp()
	obs := make([][]float64, len(states))
	for p, s := range states {
		y := make([]float64, len(s)*nc)
		for t, st := range s {
			m.Output.Generate(st, rng, y[t*nc:(t+1)*nc])
		}
		obs[p] = y
	}

	return obs
}

// Simulate generates ntraj state sequences of length ntime and their
// observations.
func Simulate(m *hmmlib.Model, ntraj, ntime int, rng *rand.Rand) ([][]int, [][]float64, error) {

	if err := m.Validate(); err != nil {
		return nil, nil, err
	}
	if ntraj <= 0 || ntime <= 0 {
		return nil, nil, errors.Invalidf("hmmsim", "Simulate", "need positive number of sequences and length, got %d and %d", ntraj, ntime)
	}

	states := GenStates(m, ntraj, ntime, rng)
	obs := GenObs(m, states, rng)

	return states, obs, nil
}
