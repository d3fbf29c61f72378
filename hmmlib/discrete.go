package hmmlib

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/kshedden/bhmm/errors"
	"github.com/kshedden/bhmm/randist"
)

// DiscreteOutput is an emission model over the symbols 0, ..., NumSymbol-1.
// Each time point holds one symbol.  Prob is NumState x NumSymbol,
// row-major, with rows summing to 1.
type DiscreteOutput struct {
	NumState  int
	NumSymbol int

	// The emission probabilities
	Prob []float64

	// Dirichlet pseudo-count added to every symbol count when sampling
	Prior float64
}

// NewDiscreteOutput returns a discrete emission model with uniform emission
// probabilities.  If nsymbol is zero, it is set from the data by Init.
func NewDiscreteOutput(nstate, nsymbol int) *DiscreteOutput {
	d := &DiscreteOutput{NumState: nstate}
	d.resize(nsymbol)
	return d
}

func (d *DiscreteOutput) resize(nsymbol int) {
	d.NumSymbol = nsymbol
	d.Prob = make([]float64, d.NumState*nsymbol)
	for i := range d.Prob {
		d.Prob[i] = 1 / float64(nsymbol)
	}
}

// NState returns the number of states.
func (d *DiscreteOutput) NState() int { return d.NumState }

// NComp returns 1.
func (d *DiscreteOutput) NComp() int { return 1 }

func (d *DiscreteOutput) Likelihoods(obs []float64, out []float64) error {

	T, err := checkLength("DiscreteOutput.Likelihoods", obs, out, d.NumState, 1)
	if err != nil {
		return err
	}

	for t := 0; t < T; t++ {
		y := int(obs[t])
		if y < 0 || y >= d.NumSymbol {
			return errors.WrapInvalid(fmt.Errorf("%w: symbol %d at position %d, model has %d symbols",
				errors.ErrBadObservation, y, t, d.NumSymbol), "hmmlib", "DiscreteOutput.Likelihoods", "lookup")
		}
		for st := 0; st < d.NumState; st++ {
			out[t*d.NumState+st] = d.Prob[st*d.NumSymbol+y]
		}
	}

	return nil
}

// Sample draws each row of emission probabilities from its Dirichlet
// posterior given the symbol counts plus Prior.  Only symbols with positive
// posterior counts receive probability; states with no observations keep
// their probabilities.
func (d *DiscreteOutput) Sample(obsByState [][]float64, rng *rand.Rand) {

	alpha := make([]float64, d.NumSymbol)
	row := make([]float64, d.NumSymbol)
	for st := 0; st < d.NumState; st++ {
		if len(obsByState[st]) == 0 {
			continue
		}

		for k := range alpha {
			alpha[k] = d.Prior
		}
		for _, y := range obsByState[st] {
			alpha[int(y)]++
		}

		if randist.Dirichlet(rng, alpha, row) {
			copy(d.Prob[st*d.NumSymbol:(st+1)*d.NumSymbol], row)
		}
	}
}

func (d *DiscreteOutput) Estimate(obs [][]float64, weights [][]float64) {

	ns, nm := d.NumState, d.NumSymbol
	cnt := make([]float64, ns*nm)

	for k, y := range obs {
		w := weights[k]
		for t, v := range y {
			for st := 0; st < ns; st++ {
				cnt[st*nm+int(v)] += w[t*ns+st]
			}
		}
	}

	for st := 0; st < ns; st++ {
		row := cnt[st*nm : (st+1)*nm]
		normalizeSum(row, 0)
		if row[argmax(row)] > 0 {
			copy(d.Prob[st*nm:(st+1)*nm], row)
		}
	}
}

// Init sets the number of symbols from the data if it is not known, and
// gives each state the symbol frequencies of one block of the sorted
// symbols, smoothed toward the marginal frequencies.
func (d *DiscreteOutput) Init(obs [][]float64) {

	x := pooledComponent(obs, 1, 0)
	if len(x) == 0 {
		return
	}
	sort.Float64s(x)

	if d.NumSymbol == 0 {
		d.resize(int(x[len(x)-1]) + 1)
	}

	nm := d.NumSymbol
	marg := make([]float64, nm)
	for _, v := range x {
		marg[int(v)]++
	}
	normalizeSum(marg, 0)

	for st := 0; st < d.NumState; st++ {
		row := d.Prob[st*nm : (st+1)*nm]
		zero(row)
		i0 := st * len(x) / d.NumState
		i1 := (st + 1) * len(x) / d.NumState
		for _, v := range x[i0:i1] {
			row[int(v)]++
		}
		normalizeSum(row, 0)
		for k := range row {
			row[k] = 0.9*row[k] + 0.1*marg[k]
		}
		normalizeSum(row, 1/float64(nm))
	}
}

func (d *DiscreteOutput) Generate(st int, rng *rand.Rand, out []float64) {
	out[0] = float64(randist.Discrete(rng, d.Prob[st*d.NumSymbol:(st+1)*d.NumSymbol]))
}

func (d *DiscreteOutput) Check(obs []float64) error {

	if _, err := checkLength("DiscreteOutput.Check", obs, nil, d.NumState, 1); err != nil {
		return err
	}

	for i, y := range obs {
		if !isCount(y) || (d.NumSymbol > 0 && int(y) >= d.NumSymbol) {
			return errors.WrapInvalid(fmt.Errorf("%w: value %v at position %d is not a symbol", errors.ErrBadObservation, y, i),
				"hmmlib", "DiscreteOutput.Check", "check observations")
		}
	}

	return nil
}

func (d *DiscreteOutput) Copy() OutputModel {
	return &DiscreteOutput{
		NumState:  d.NumState,
		NumSymbol: d.NumSymbol,
		Prob:      append([]float64(nil), d.Prob...),
		Prior:     d.Prior,
	}
}
