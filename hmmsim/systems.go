package hmmsim

import (
	"github.com/kshedden/bhmm/errors"
	"github.com/kshedden/bhmm/hmmlib"
)

// MetastableTrans returns an nstate x nstate transition matrix in which
// state i stays put with probability 0.8 + 0.1*i/(nstate-1) and otherwise
// moves to one of the other states uniformly.
func MetastableTrans(nstate int) []float64 {

	if nstate == 1 {
		return []float64{1}
	}

	trans := make([]float64, nstate*nstate)
	for i := 0; i < nstate; i++ {
		p := 0.8 + 0.1*float64(i)/float64(nstate-1)
		for j := 0; j < nstate; j++ {
			if i == j {
				trans[i*nstate+j] = p
			} else {
				trans[i*nstate+j] = (1 - p) / float64(nstate-1)
			}
		}
	}

	return trans
}

// uniform returns the uniform distribution on n states.
func uniform(n int) []float64 {
	init := make([]float64, n)
	for i := range init {
		init[i] = 1 / float64(n)
	}
	return init
}

// GaussianSystem returns a metastable model whose states emit Gaussian
// observations with means 3*st in every component and standard deviation
// 0.5.
func GaussianSystem(nstate, ncomp int) *hmmlib.Model {

	out := hmmlib.NewGaussianOutput(nstate, ncomp)
	for st := 0; st < nstate; st++ {
		for j := 0; j < ncomp; j++ {
			out.Mean[st*ncomp+j] = 3 * float64(st)
			out.Std[st*ncomp+j] = 0.5
		}
	}

	return &hmmlib.Model{
		NState: nstate,
		Trans:  MetastableTrans(nstate),
		Init:   uniform(nstate),
		Output: out,
	}
}

// PoissonSystem returns a metastable model whose states emit Poisson
// counts.  State st has mean snr in component st mod ncomp and mean 1 in
// the others.
func PoissonSystem(nstate, ncomp int, snr float64) *hmmlib.Model {

	out := hmmlib.NewPoissonOutput(nstate, ncomp)
	for st := 0; st < nstate; st++ {
		for j := 0; j < ncomp; j++ {
			if j == st%ncomp {
				out.Mean[st*ncomp+j] = snr
			} else {
				out.Mean[st*ncomp+j] = 1
			}
		}
	}

	return &hmmlib.Model{
		NState: nstate,
		Trans:  MetastableTrans(nstate),
		Init:   uniform(nstate),
		Output: out,
	}
}

// DiscreteSystem returns a metastable model over nsymbol symbols in which
// state st emits symbol st mod nsymbol with probability 0.7 and the other
// symbols uniformly.
func DiscreteSystem(nstate, nsymbol int) *hmmlib.Model {

	out := hmmlib.NewDiscreteOutput(nstate, nsymbol)
	for st := 0; st < nstate; st++ {
		for k := 0; k < nsymbol; k++ {
			switch {
			case nsymbol == 1:
				out.Prob[st] = 1
			case k == st%nsymbol:
				out.Prob[st*nsymbol+k] = 0.7
			default:
				out.Prob[st*nsymbol+k] = 0.3 / float64(nsymbol-1)
			}
		}
	}

	return &hmmlib.Model{
		NState: nstate,
		Trans:  MetastableTrans(nstate),
		Init:   uniform(nstate),
		Output: out,
	}
}

// System returns the test system with the given emission model.  For
// discrete systems ncomp is the number of symbols.
func System(kind hmmlib.OutputKind, nstate, ncomp int, snr float64) (*hmmlib.Model, error) {

	if nstate <= 0 || ncomp <= 0 {
		return nil, errors.Invalidf("hmmsim", "System", "need positive number of states and components, got %d and %d", nstate, ncomp)
	}

	switch kind {
	case hmmlib.Gaussian:
		return GaussianSystem(nstate, ncomp), nil
	case hmmlib.Poisson:
		return PoissonSystem(nstate, ncomp, snr), nil
	case hmmlib.Discrete:
		return DiscreteSystem(nstate, ncomp), nil
	default:
		return nil, errors.Invalidf("hmmsim", "System", "unknown output model %v", kind)
	}
}
