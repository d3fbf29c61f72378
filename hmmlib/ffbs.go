package hmmlib

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/kshedden/bhmm/errors"
	"github.com/kshedden/bhmm/randist"
)

// Forward runs the forward recursion for a sequence of T time points with
// initial distribution pi, n x n transition matrix A, and output
// likelihoods pobs (T x n).  The filtered probabilities are written into
// alpha (T x n), each row scaled to sum to 1.  The log-likelihood of the
// sequence is returned.
//
// An error classified as numerical is returned if some time point has zero
// probability under every state reachable at that time.
func Forward(A, pobs, pi []float64, n, T int, alpha []float64) (float64, error) {

	var llf float64
	for t := 0; t < T; t++ {
		a := alpha[t*n : (t+1)*n]
		b := pobs[t*n : (t+1)*n]

		if t == 0 {
			floats.MulTo(a, pi, b)
		} else {
			ap := alpha[(t-1)*n : t*n]
			for j := 0; j < n; j++ {
				var u float64
				for i := 0; i < n; i++ {
					u += ap[i] * A[i*n+j]
				}
				a[j] = u * b[j]
			}
		}

		s := floats.Sum(a)
		if !(s > 0) || math.IsInf(s, 0) {
			return 0, errors.WrapNumerical(fmt.Errorf("%w: time point %d", errors.ErrZeroLikelihood, t),
				"hmmlib", "Forward", "forward recursion")
		}
		floats.Scale(1/s, a)
		llf += math.Log(s)
	}

	return llf, nil
}

// SamplePath draws a hidden state path of length T from its posterior
// given the filtered probabilities alpha computed by Forward.  The path is
// written into path.  w is a workspace of length n; if nil one is
// allocated.
func SamplePath(alpha, A []float64, n, T int, rng *rand.Rand, path []int, w []float64) error {

	if len(w) != n {
		w = make([]float64, n)
	}

	path[T-1] = randist.Discrete(rng, alpha[(T-1)*n:T*n])
	if path[T-1] < 0 {
		return errors.WrapNumerical(fmt.Errorf("%w: time point %d", errors.ErrZeroLikelihood, T-1),
			"hmmlib", "SamplePath", "backward sampling")
	}

	for t := T - 2; t >= 0; t-- {
		a := alpha[t*n : (t+1)*n]
		next := path[t+1]
		for i := 0; i < n; i++ {
			w[i] = a[i] * A[i*n+next]
		}
		path[t] = randist.Discrete(rng, w)
		if path[t] < 0 {
			return errors.WrapNumerical(fmt.Errorf("%w: time point %d", errors.ErrZeroLikelihood, t),
				"hmmlib", "SamplePath", "backward sampling")
		}
	}

	return nil
}

// PathSampler draws hidden state paths by forward filtering and backward
// sampling.  Its workspaces are sized for the longest sequence once and
// reused by every call.  A PathSampler is not safe for concurrent use.
type PathSampler struct {
	nstate int
	maxT   int

	// Filtered probabilities and output likelihoods, maxT x nstate
	alpha []float64
	pobs  []float64

	// Backward sampling weights, nstate
	wk []float64

	rng *rand.Rand
}

// NewPathSampler returns a PathSampler for models with nstate states and
// sequences of at most maxT time points.
func NewPathSampler(nstate, maxT int, rng *rand.Rand) *PathSampler {
	return &PathSampler{
		nstate: nstate,
		maxT:   maxT,
		alpha:  make([]float64, maxT*nstate),
		pobs:   make([]float64, maxT*nstate),
		wk:     make([]float64, nstate),
		rng:    rng,
	}
}

// Sample draws a hidden state path for obs from its conditional
// distribution given the parameters of m.  If path has the right length it
// is reused, otherwise a new slice is allocated.
func (ps *PathSampler) Sample(m *Model, obs []float64, path []int) ([]int, error) {

	n := ps.nstate
	T := len(obs) / m.NComp()
	if T == 0 {
		return nil, errors.WrapInvalid(errors.ErrShortSequence, "hmmlib", "PathSampler.Sample", "check observations")
	}
	if T > ps.maxT {
		return nil, errors.Invalidf("hmmlib", "PathSampler.Sample", "sequence has %d time points, workspace holds %d", T, ps.maxT)
	}

	if err := m.Output.Likelihoods(obs, ps.pobs); err != nil {
		return nil, err
	}

	if _, err := Forward(m.Trans, ps.pobs, m.Init, n, T, ps.alpha); err != nil {
		return nil, err
	}

	if len(path) != T {
		path = make([]int, T)
	}
	if err := SamplePath(ps.alpha, m.Trans, n, T, ps.rng, path, ps.wk); err != nil {
		return nil, err
	}

	return path, nil
}
