package hmmlib

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kshedden/bhmm/errors"
	"github.com/kshedden/bhmm/randist"
)

// PoissonOutput is a Poisson emission model with independent components.
// Mean is NumState x NumComp, row-major.
type PoissonOutput struct {
	NumState int
	NumComp  int

	// The observation means
	Mean []float64
}

// NewPoissonOutput returns a Poisson emission model with unit means.
func NewPoissonOutput(nstate, ncomp int) *PoissonOutput {

	p := &PoissonOutput{
		NumState: nstate,
		NumComp:  ncomp,
		Mean:     make([]float64, nstate*ncomp),
	}
	for i := range p.Mean {
		p.Mean[i] = 1
	}

	return p
}

// NState returns the number of states.
func (p *PoissonOutput) NState() int { return p.NumState }

// NComp returns the number of components per observation.
func (p *PoissonOutput) NComp() int { return p.NumComp }

func (p *PoissonOutput) Likelihoods(obs []float64, out []float64) error {

	T, err := checkLength("PoissonOutput.Likelihoods", obs, out, p.NumState, p.NumComp)
	if err != nil {
		return err
	}

	for t := 0; t < T; t++ {
		y := obs[t*p.NumComp : (t+1)*p.NumComp]
		for st := 0; st < p.NumState; st++ {
			var lpr float64
			ii := st * p.NumComp
			for j := 0; j < p.NumComp; j++ {
				mn := p.Mean[ii+j]
				if mn < minPoissonMean {
					mn = minPoissonMean
				}
				lpr += distuv.Poisson{Lambda: mn}.LogProb(y[j])
			}
			out[t*p.NumState+st] = math.Exp(lpr)
		}
	}

	return nil
}

// Sample draws each mean from its Gamma posterior under a flat prior,
// Gamma(shape = 1 + sum(y), rate = n).  States with no observations keep
// their means.
func (p *PoissonOutput) Sample(obsByState [][]float64, rng *rand.Rand) {

	for st := 0; st < p.NumState; st++ {
		obs := obsByState[st]
		n := len(obs) / p.NumComp
		if n == 0 {
			continue
		}

		for j := 0; j < p.NumComp; j++ {
			var sy float64
			for t := 0; t < n; t++ {
				sy += obs[t*p.NumComp+j]
			}
			mn := randist.Gamma(rng, 1+sy, 1/float64(n))
			if mn < minPoissonMean {
				mn = minPoissonMean
			}
			p.Mean[st*p.NumComp+j] = mn
		}
	}
}

func (p *PoissonOutput) Estimate(obs [][]float64, weights [][]float64) {

	ns, nc := p.NumState, p.NumComp
	pt := make([]float64, ns)
	mean := make([]float64, ns*nc)

	for k, y := range obs {
		w := weights[k]
		T := len(y) / nc
		for t := 0; t < T; t++ {
			for st := 0; st < ns; st++ {
				pr := w[t*ns+st]
				pt[st] += pr
				for j := 0; j < nc; j++ {
					mean[st*nc+j] += pr * y[t*nc+j]
				}
			}
		}
	}

	for st := 0; st < ns; st++ {
		if pt[st] < 1e-10 {
			continue
		}
		for j := 0; j < nc; j++ {
			ii := st*nc + j
			p.Mean[ii] = math.Max(mean[ii]/pt[st], minPoissonMean)
		}
	}
}

// Init spreads the state means over the quantiles of each component.
func (p *PoissonOutput) Init(obs [][]float64) {

	for j := 0; j < p.NumComp; j++ {
		x := pooledComponent(obs, p.NumComp, j)
		if len(x) == 0 {
			continue
		}
		sort.Float64s(x)

		for st := 0; st < p.NumState; st++ {
			q := (float64(st) + 0.5) / float64(p.NumState)
			mn := stat.Quantile(q, stat.Empirical, x, nil)

			// Keep the states apart when the quantiles tie
			mn += 0.1 * float64(st)
			p.Mean[st*p.NumComp+j] = math.Max(mn, minPoissonMean)
		}
	}
}

func (p *PoissonOutput) Generate(st int, rng *rand.Rand, out []float64) {
	for j := 0; j < p.NumComp; j++ {
		mn := p.Mean[st*p.NumComp+j]
		if mn < minPoissonMean {
			mn = minPoissonMean
		}
		out[j] = randist.Poisson(rng, mn)
	}
}

func (p *PoissonOutput) Check(obs []float64) error {

	if _, err := checkLength("PoissonOutput.Check", obs, nil, p.NumState, p.NumComp); err != nil {
		return err
	}

	for i, y := range obs {
		if !isCount(y) {
			return errors.WrapInvalid(fmt.Errorf("%w: value %v at position %d is not a count", errors.ErrBadObservation, y, i),
				"hmmlib", "PoissonOutput.Check", "check observations")
		}
	}

	return nil
}

func (p *PoissonOutput) Copy() OutputModel {
	return &PoissonOutput{
		NumState: p.NumState,
		NumComp:  p.NumComp,
		Mean:     append([]float64(nil), p.Mean...),
	}
}
