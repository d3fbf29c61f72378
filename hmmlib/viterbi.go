package hmmlib

import (
	"math"
)

// ReconstructStates uses the Viterbi algorithm to predict the sequence of
// states for each observation sequence.  The algorithm is run separately
// for each sequence.
func (m *Model) ReconstructStates(obs [][]float64) ([][]int, error) {

	states := make([][]int, len(obs))
	for k, y := range obs {
		s, err := m.Viterbi(y)
		if err != nil {
			return nil, err
		}
		states[k] = s
	}

	return states, nil
}

// Viterbi returns the most probable state sequence for one observation
// sequence.
func (m *Model) Viterbi(obs []float64) ([]int, error) {

	n := m.NState
	T, err := checkLength("Viterbi", obs, nil, n, m.NComp())
	if err != nil {
		return nil, err
	}

	pobs := make([]float64, T*n)
	if err := m.Output.Likelihoods(obs, pobs); err != nil {
		return nil, err
	}

	lpr := make([]float64, T*n)
	lpt := make([]int, T*n)
	m.reconstructionProbs(pobs, T, lpr, lpt)

	return traceback(lpr, lpt, n, T), nil
}

// reconstructionProbs fills lpr with the log probability of the best path
// ending in each state at each time, and lpt with the best previous state.
func (m *Model) reconstructionProbs(pobs []float64, T int, lpr []float64, lpt []int) {

	n := m.NState
	wk := make([]float64, n)

	lt := make([]float64, n*n)
	for j := range lt {
		lt[j] = math.Log(m.Trans[j])
	}

	// Beginning from initial conditions
	for st := 0; st < n; st++ {
		lpr[st] = math.Log(pobs[st]) + math.Log(m.Init[st])
	}

	for t := 1; t < T; t++ {
		j0 := (t - 1) * n
		j1 := t * n

		// From st1 to st2
		for st2 := 0; st2 < n; st2++ {
			for st1 := 0; st1 < n; st1++ {
				wk[st1] = lpr[j0+st1] + lt[st1*n+st2]
			}

			// The best previous state
			jj := argmax(wk)
			lpt[j1+st2] = jj
			lpr[j1+st2] = wk[jj] + math.Log(pobs[j1+st2])
		}
	}
}

func traceback(lpr []float64, lpt []int, n, T int) []int {

	y := make([]int, T)
	a := (T - 1) * n
	y[T-1] = argmax(lpr[a : a+n])

	for t := T - 2; t >= 0; t-- {
		y[t] = lpt[(t+1)*n+y[t+1]]
	}

	return y
}

// CompareStates returns the number of positions where the state
// sequences x and y disagree, and the number of positions compared.
// Panics if the lengths of x and y differ.
func CompareStates(x, y []int) (int, int) {

	if len(x) != len(y) {
		panic("Lengths are not equal")
	}

	var e int
	for t := range x {
		if x[t] != y[t] {
			e++
		}
	}

	return e, len(x)
}
