package hmmlib

import (
	"math/rand"

	"github.com/kshedden/bhmm/randist"
)

// simulate draws a hidden state sequence and observations of length T
// from m.
func simulate(m *Model, T int, rng *rand.Rand) ([]int, []float64) {

	n, nc := m.NState, m.NComp()
	states := make([]int, T)
	obs := make([]float64, T*nc)

	states[0] = randist.Discrete(rng, m.Init)
	for t := 1; t < T; t++ {
		states[t] = randist.Discrete(rng, m.Trans[states[t-1]*n:(states[t-1]+1)*n])
	}
	for t, st := range states {
		m.Output.Generate(st, rng, obs[t*nc:(t+1)*nc])
	}

	return states, obs
}

// gaussianModel returns a metastable Gaussian model with nstate states whose
// means are spaced 3 apart.
func gaussianModel(nstate, ncomp int) *Model {

	out := NewGaussianOutput(nstate, ncomp)
	for st := 0; st < nstate; st++ {
		for j := 0; j < ncomp; j++ {
			out.Mean[st*ncomp+j] = 3 * float64(st)
			out.Std[st*ncomp+j] = 0.5
		}
	}

	trans := make([]float64, nstate*nstate)
	init := make([]float64, nstate)
	for i := 0; i < nstate; i++ {
		for j := 0; j < nstate; j++ {
			if i == j {
				trans[i*nstate+j] = 0.9
			} else {
				trans[i*nstate+j] = 0.1 / float64(nstate-1)
			}
		}
		init[i] = 1 / float64(nstate)
	}

	return &Model{NState: nstate, Trans: trans, Init: init, Output: out}
}
