package bhmm

import (
	"math"
	"strings"

	"github.com/kshedden/bhmm/errors"
)

// PriorMode selects how the pseudo-counts of a prior are set.
type PriorMode uint8

// PriorNone, etc. are the available prior modes.
const (
	// Zero pseudo-counts
	PriorNone PriorMode = iota

	// One pseudo-count everywhere
	PriorUniform

	// Pseudo-counts taken from the initial model, its initial
	// distribution for the p0 prior and its transition matrix for the
	// transition matrix prior
	PriorMixed

	// Pseudo-counts given explicitly
	PriorExplicit
)

// String returns the name of the prior mode.
func (m PriorMode) String() string {
	switch m {
	case PriorNone:
		return "none"
	case PriorUniform:
		return "uniform"
	case PriorMixed:
		return "mixed"
	case PriorExplicit:
		return "explicit"
	default:
		return "unknown"
	}
}

// ParsePriorMode returns the prior mode with the given name.  The empty
// string and "sparse" are synonyms for "none".  Explicit priors are built
// with ExplicitPrior and have no name.
func ParsePriorMode(name string) (PriorMode, error) {
	switch strings.ToLower(name) {
	case "", "none", "sparse":
		return PriorNone, nil
	case "uniform":
		return PriorUniform, nil
	case "mixed":
		return PriorMixed, nil
	default:
		return 0, errors.Invalidf("bhmm", "ParsePriorMode", "unsupported prior %q", name)
	}
}

// PriorSpec specifies a prior: a mode, plus the pseudo-counts for
// PriorExplicit.
type PriorSpec struct {
	Mode   PriorMode
	Values []float64
}

// ExplicitPrior returns a prior with the given pseudo-counts.
func ExplicitPrior(values []float64) PriorSpec {
	return PriorSpec{Mode: PriorExplicit, Values: append([]float64(nil), values...)}
}

// check validates the spec for a prior of the given size.
func (ps PriorSpec) check(what string, size int) error {

	switch ps.Mode {
	case PriorNone, PriorUniform, PriorMixed:
		return nil
	case PriorExplicit:
	default:
		return errors.Invalidf("bhmm", "New", "%s: unsupported prior mode %d", what, ps.Mode)
	}

	if len(ps.Values) != size {
		return errors.Invalidf("bhmm", "New", "%s has %d entries, expected %d", what, len(ps.Values), size)
	}
	for k, v := range ps.Values {
		if !(v >= 0) || math.IsInf(v, 0) {
			return errors.Invalidf("bhmm", "New", "%s entry %d is %v, must be non-negative", what, k, v)
		}
	}

	return nil
}

// resolve returns the pseudo-counts of the prior.  from supplies the
// values for PriorMixed.
func (ps PriorSpec) resolve(size int, from []float64) []float64 {

	x := make([]float64, size)
	switch ps.Mode {
	case PriorUniform:
		for k := range x {
			x[k] = 1
		}
	case PriorMixed:
		copy(x, from)
	case PriorExplicit:
		copy(x, ps.Values)
	}

	return x
}

// Prior holds the pseudo-counts added in every Gibbs sweep.
type Prior struct {

	// Added to the initial state counts
	N0 []float64

	// Added to the transition counts, row-major
	C []float64
}

func (p *Prior) copy() *Prior {
	return &Prior{
		N0: append([]float64(nil), p.N0...),
		C:  append([]float64(nil), p.C...),
	}
}
