package hmmlib

import (
	"encoding/gob"
	"fmt"
	"math/rand"
	"strings"

	"github.com/kshedden/bhmm/errors"
)

const (
	// The Poisson mean parameters are never allowed to go below this value
	minPoissonMean = 1e-8

	// Minimum allowed value for the observation SD
	sdmin = 1e-8
)

// OutputModel is the emission distribution of an HMM.  An observation
// sequence is a flat slice holding NComp values per time point.
type OutputModel interface {

	// NState returns the number of hidden states.
	NState() int

	// NComp returns the number of values observed at each time point.
	NComp() int

	// Likelihoods writes the probability (or density) of each time point of
	// obs under each state into out, at out[t*NState()+st].  out must
	// have room for all time points.
	Likelihoods(obs []float64, out []float64) error

	// Sample draws new emission parameters given the observations assigned
	// to each state.  obsByState[st] holds the observations in state st,
	// packed like an observation sequence.
	Sample(obsByState [][]float64, rng *rand.Rand)

	// Estimate sets the emission parameters to their weighted maximum
	// likelihood values.  weights[k][t*NState()+st] is the probability
	// that time point t of sequence k is in state st.
	Estimate(obs [][]float64, weights [][]float64)

	// Init sets starting values for the emission parameters from the
	// data.
	Init(obs [][]float64)

	// Generate writes one simulated observation from state st into out.
	Generate(st int, rng *rand.Rand, out []float64)

	// Check returns an error if obs is not a valid observation sequence
	// for this model.
	Check(obs []float64) error

	// Copy returns a deep copy.
	Copy() OutputModel
}

// OutputKind indicates the emission model distribution.
type OutputKind uint8

// Gaussian, etc. are the available emission models.
const (
	Gaussian OutputKind = iota
	Poisson
	Discrete
)

// String returns the name of the emission model.
func (k OutputKind) String() string {
	switch k {
	case Gaussian:
		return "gaussian"
	case Poisson:
		return "poisson"
	case Discrete:
		return "discrete"
	default:
		return fmt.Sprintf("OutputKind(%d)", k)
	}
}

// ParseOutputKind returns the emission model with the given name.
func ParseOutputKind(name string) (OutputKind, error) {
	switch strings.ToLower(name) {
	case "gaussian":
		return Gaussian, nil
	case "poisson":
		return Poisson, nil
	case "discrete":
		return Discrete, nil
	default:
		return 0, errors.Invalidf("hmmlib", "ParseOutputKind", "unknown output model %q", name)
	}
}

// NewOutput returns an emission model of the given kind with nstate states
// and ncomp components per observation.  Discrete models observe a single
// symbol per time point, so ncomp must be 1; the number of symbols is set
// by Init.
func NewOutput(kind OutputKind, nstate, ncomp int) (OutputModel, error) {

	if nstate <= 0 {
		return nil, errors.Invalidf("hmmlib", "NewOutput", "number of states must be positive, got %d", nstate)
	}
	if ncomp <= 0 {
		return nil, errors.Invalidf("hmmlib", "NewOutput", "number of components must be positive, got %d", ncomp)
	}

	switch kind {
	case Gaussian:
		return NewGaussianOutput(nstate, ncomp), nil
	case Poisson:
		return NewPoissonOutput(nstate, ncomp), nil
	case Discrete:
		if ncomp != 1 {
			return nil, errors.Invalidf("hmmlib", "NewOutput", "discrete output has one component, got %d", ncomp)
		}
		return NewDiscreteOutput(nstate, 0), nil
	default:
		return nil, errors.Invalidf("hmmlib", "NewOutput", "unknown output model %v", kind)
	}
}

// checkLength verifies that obs holds a whole, non-zero number of time
// points of ncomp values, and that out can hold the likelihoods.
func checkLength(method string, obs, out []float64, nstate, ncomp int) (int, error) {

	if len(obs) == 0 {
		return 0, errors.WrapInvalid(errors.ErrShortSequence, "hmmlib", method, "check observations")
	}
	if len(obs)%ncomp != 0 {
		return 0, errors.Invalidf("hmmlib", method, "observation length %d is not a multiple of %d components", len(obs), ncomp)
	}

	T := len(obs) / ncomp
	if out != nil && len(out) < T*nstate {
		return 0, errors.Invalidf("hmmlib", method, "output buffer has %d entries, need %d", len(out), T*nstate)
	}

	return T, nil
}

func init() {
	gob.Register(&GaussianOutput{})
	gob.Register(&PoissonOutput{})
	gob.Register(&DiscreteOutput{})
}
