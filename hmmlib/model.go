// Package hmmlib holds the hidden Markov model type shared by the samplers,
// its emission models, and the classical algorithms on it: forward
// filtering with backward sampling, Viterbi reconstruction, and maximum
// likelihood estimation by EM.
//
// Observation sequences are flat []float64 slices holding NComp values per
// time point.  Matrices are dense and row-major.
package hmmlib

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/kshedden/bhmm/errors"
	"github.com/kshedden/bhmm/tmatrix"
)

// Tolerance for rows of probabilities summing to 1
const probTol = 1e-6

// Model represents a hidden Markov model together with the hidden state
// sequences currently assigned to a set of observation sequences.
type Model struct {

	// Number of states
	NState int

	// The transition probability matrix
	Trans []float64

	// The initial probability distribution
	Init []float64

	// The emission distribution
	Output OutputModel

	// One hidden state sequence per observation sequence, may be nil
	HiddenStates [][]int
}

// New returns a model with the given parameters.  The slices are copied.
func New(nstate int, trans, init []float64, output OutputModel) (*Model, error) {

	m := &Model{
		NState: nstate,
		Trans:  append([]float64(nil), trans...),
		Init:   append([]float64(nil), init...),
		Output: output,
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return m, nil
}

// Validate returns an error if the dimensions of the model are
// inconsistent, or if Trans and Init are not stochastic.
func (m *Model) Validate() error {

	n := m.NState
	if n <= 0 {
		return errors.Invalidf("hmmlib", "Validate", "number of states must be positive, got %d", n)
	}
	if len(m.Trans) != n*n {
		return errors.Invalidf("hmmlib", "Validate", "transition matrix has %d entries, expected %d", len(m.Trans), n*n)
	}
	if len(m.Init) != n {
		return errors.Invalidf("hmmlib", "Validate", "initial distribution has %d entries, expected %d", len(m.Init), n)
	}

	for i := 0; i < n; i++ {
		if err := checkProb(m.Trans[i*n:(i+1)*n]); err != nil {
			return errors.Invalidf("hmmlib", "Validate", "transition matrix row %d: %v", i, err)
		}
	}
	if err := checkProb(m.Init); err != nil {
		return errors.Invalidf("hmmlib", "Validate", "initial distribution: %v", err)
	}

	if m.Output == nil {
		return errors.Invalidf("hmmlib", "Validate", "no output model")
	}
	if m.Output.NState() != n {
		return errors.Invalidf("hmmlib", "Validate", "output model has %d states, expected %d", m.Output.NState(), n)
	}

	return nil
}

func checkProb(x []float64) error {
	for _, v := range x {
		if !(v >= 0) || math.IsInf(v, 0) {
			return fmt.Errorf("invalid probability %v", v)
		}
	}
	if s := floats.Sum(x); math.Abs(s-1) > probTol {
		return fmt.Errorf("probabilities sum to %v", s)
	}
	return nil
}

// NComp returns the number of values observed at each time point.
func (m *Model) NComp() int {
	return m.Output.NComp()
}

// Copy returns a deep copy of the model, including the hidden states.
func (m *Model) Copy() *Model {

	c := &Model{
		NState: m.NState,
		Trans:  append([]float64(nil), m.Trans...),
		Init:   append([]float64(nil), m.Init...),
	}
	if m.Output != nil {
		c.Output = m.Output.Copy()
	}
	if m.HiddenStates != nil {
		c.HiddenStates = make([][]int, len(m.HiddenStates))
		for k, s := range m.HiddenStates {
			c.HiddenStates[k] = append([]int(nil), s...)
		}
	}

	return c
}

// Update replaces the initial distribution and the transition matrix.
func (m *Model) Update(init, trans []float64) {
	copy(m.Init, init)
	copy(m.Trans, trans)
}

// StationaryDistribution returns the stationary distribution of the
// transition matrix.
func (m *Model) StationaryDistribution() ([]float64, error) {
	return tmatrix.StationaryDistribution(m.Trans, m.NState)
}

// CountMatrix returns the matrix of transition counts of the hidden state
// sequences.
func (m *Model) CountMatrix() []float64 {

	n := m.NState
	C := make([]float64, n*n)
	for _, s := range m.HiddenStates {
		for t := 1; t < len(s); t++ {
			C[s[t-1]*n+s[t]]++
		}
	}

	return C
}

// CountInit returns the number of hidden state sequences starting in each
// state.
func (m *Model) CountInit() []float64 {

	n0 := make([]float64, m.NState)
	for _, s := range m.HiddenStates {
		if len(s) > 0 {
			n0[s[0]]++
		}
	}

	return n0
}

// CollectObservationsInState returns the observations of every time point
// whose hidden state is st, packed like an observation sequence.
func (m *Model) CollectObservationsInState(obs [][]float64, st int) []float64 {

	nc := m.NComp()
	var y []float64
	for k, s := range m.HiddenStates {
		for t, u := range s {
			if u == st {
				y = append(y, obs[k][t*nc:(t+1)*nc]...)
			}
		}
	}

	return y
}

// ObservationsByState returns CollectObservationsInState for every state.
func (m *Model) ObservationsByState(obs [][]float64) [][]float64 {

	nc := m.NComp()
	z := make([][]float64, m.NState)
	for k, s := range m.HiddenStates {
		for t, u := range s {
			z[u] = append(z[u], obs[k][t*nc:(t+1)*nc]...)
		}
	}

	return z
}

