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

// GaussianOutput is a Gaussian emission model with independent components.
// Mean and Std are NumState x NumComp, row-major.
type GaussianOutput struct {
	NumState int
	NumComp  int

	// The observation means
	Mean []float64

	// The observation standard deviations
	Std []float64
}

// NewGaussianOutput returns a Gaussian emission model with zero means and
// unit standard deviations.
func NewGaussianOutput(nstate, ncomp int) *GaussianOutput {

	g := &GaussianOutput{
		NumState: nstate,
		NumComp:  ncomp,
		Mean:     make([]float64, nstate*ncomp),
		Std:      make([]float64, nstate*ncomp),
	}
	for i := range g.Std {
		g.Std[i] = 1
	}

	return g
}

// NState returns the number of states.
func (g *GaussianOutput) NState() int { return g.NumState }

// NComp returns the number of components per observation.
func (g *GaussianOutput) NComp() int { return g.NumComp }

func (g *GaussianOutput) Likelihoods(obs []float64, out []float64) error {

	T, err := checkLength("GaussianOutput.Likelihoods", obs, out, g.NumState, g.NumComp)
	if err != nil {
		return err
	}

	for t := 0; t < T; t++ {
		y := obs[t*g.NumComp : (t+1)*g.NumComp]
		for st := 0; st < g.NumState; st++ {
			var lpr float64
			ii := st * g.NumComp
			for j := 0; j < g.NumComp; j++ {
				nd := distuv.Normal{Mu: g.Mean[ii+j], Sigma: g.Std[ii+j]}
				lpr += nd.LogProb(y[j])
			}
			out[t*g.NumState+st] = math.Exp(lpr)
		}
	}

	return nil
}

// Sample draws the means and standard deviations of each state from their
// posterior under the Jeffreys prior.  The mean is drawn given the current
// standard deviation, then the standard deviation given the new mean.
// States with no observations keep their parameters, and states with one
// observation keep their standard deviation.
func (g *GaussianOutput) Sample(obsByState [][]float64, rng *rand.Rand) {

	for st := 0; st < g.NumState; st++ {
		obs := obsByState[st]
		n := len(obs) / g.NumComp
		if n == 0 {
			continue
		}

		for j := 0; j < g.NumComp; j++ {
			ii := st*g.NumComp + j

			var ybar float64
			for t := 0; t < n; t++ {
				ybar += obs[t*g.NumComp+j]
			}
			ybar /= float64(n)

			mu := ybar + rng.NormFloat64()*g.Std[ii]/math.Sqrt(float64(n))
			g.Mean[ii] = mu

			if n < 2 {
				continue
			}

			var ss float64
			for t := 0; t < n; t++ {
				r := obs[t*g.NumComp+j] - mu
				ss += r * r
			}
			chi := randist.ChiSquare(rng, float64(n-1))
			sd := math.Sqrt(ss/float64(n)) / math.Sqrt(chi/float64(n))
			if !(sd >= sdmin) || math.IsInf(sd, 0) {
				sd = sdmin
			}
			g.Std[ii] = sd
		}
	}
}

func (g *GaussianOutput) Estimate(obs [][]float64, weights [][]float64) {

	ns, nc := g.NumState, g.NumComp
	pt := make([]float64, ns)
	mean := make([]float64, ns*nc)
	vr := make([]float64, ns*nc)

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
			mean[st*nc+j] /= pt[st]
		}
	}

	for k, y := range obs {
		w := weights[k]
		T := len(y) / nc
		for t := 0; t < T; t++ {
			for st := 0; st < ns; st++ {
				pr := w[t*ns+st]
				for j := 0; j < nc; j++ {
					r := y[t*nc+j] - mean[st*nc+j]
					vr[st*nc+j] += pr * r * r
				}
			}
		}
	}

	// States with no weight keep their parameters
	for st := 0; st < ns; st++ {
		if pt[st] < 1e-10 {
			continue
		}
		for j := 0; j < nc; j++ {
			ii := st*nc + j
			g.Mean[ii] = mean[ii]
			g.Std[ii] = math.Max(math.Sqrt(vr[ii]/pt[st]), sdmin)
		}
	}
}

// Init spreads the state means over the quantiles of each component, and
// sets every standard deviation to the marginal standard deviation divided
// by the number of states.
func (g *GaussianOutput) Init(obs [][]float64) {

	for j := 0; j < g.NumComp; j++ {
		x := pooledComponent(obs, g.NumComp, j)
		if len(x) == 0 {
			continue
		}
		sort.Float64s(x)

		sd := math.Max(stat.StdDev(x, nil)/float64(g.NumState), sdmin)
		if math.IsNaN(sd) {
			sd = 1
		}
		for st := 0; st < g.NumState; st++ {
			p := (float64(st) + 0.5) / float64(g.NumState)
			g.Mean[st*g.NumComp+j] = stat.Quantile(p, stat.Empirical, x, nil)
			g.Std[st*g.NumComp+j] = sd
		}
	}
}

func (g *GaussianOutput) Generate(st int, rng *rand.Rand, out []float64) {
	for j := 0; j < g.NumComp; j++ {
		ii := st*g.NumComp + j
		out[j] = g.Mean[ii] + g.Std[ii]*rng.NormFloat64()
	}
}

func (g *GaussianOutput) Check(obs []float64) error {

	if _, err := checkLength("GaussianOutput.Check", obs, nil, g.NumState, g.NumComp); err != nil {
		return err
	}

	for i, y := range obs {
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return errors.WrapInvalid(fmt.Errorf("%w: value %v at position %d", errors.ErrBadObservation, y, i),
				"hmmlib", "GaussianOutput.Check", "check observations")
		}
	}

	return nil
}

func (g *GaussianOutput) Copy() OutputModel {
	return &GaussianOutput{
		NumState: g.NumState,
		NumComp:  g.NumComp,
		Mean:     append([]float64(nil), g.Mean...),
		Std:      append([]float64(nil), g.Std...),
	}
}

// pooledComponent returns component j of every time point of every
// sequence.
func pooledComponent(obs [][]float64, ncomp, j int) []float64 {

	var n int
	for _, y := range obs {
		n += len(y) / ncomp
	}

	x := make([]float64, 0, n)
	for _, y := range obs {
		for t := j; t < len(y); t += ncomp {
			x = append(x, y[t])
		}
	}

	return x
}
