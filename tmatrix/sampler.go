// Package tmatrix samples transition matrices from their posterior given a
// matrix of transition counts.
//
// Three strategies are available, fixed when the Sampler is constructed:
// non-reversible (independent Dirichlet rows), reversible (detailed
// balance with a sampled stationary vector), and reversible with a fixed
// stationary vector.  The reversible strategies run an inner Markov chain,
// and each returned draw is separated from the previous one by a
// configurable number of sweeps of that chain.
//
// Matrices are dense, row-major []float64 of length n*n.
package tmatrix

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/kshedden/bhmm/errors"
)

// Kind identifies a transition matrix sampling strategy.
type Kind uint8

// NonReversible, etc. are the available sampling strategies.
const (
	NonReversible Kind = iota
	Reversible
	ReversibleFixedPi
)

// String returns the name of the strategy.
func (k Kind) String() string {
	switch k {
	case NonReversible:
		return "nonreversible"
	case Reversible:
		return "reversible"
	case ReversibleFixedPi:
		return "reversible-fixed-pi"
	default:
		return "unknown"
	}
}

const (
	// Steps per draw for the fixed stationary vector sampler.  Observed
	// autocorrelation times are about 3.
	defaultRevPiSteps = 6
)

// DefaultSteps returns the number of inner chain sweeps per draw used when
// none is configured: 1 for the non-reversible sampler, ceil(sqrt(n)) for
// the reversible sampler, and 6 for the fixed stationary vector sampler.
// These are empirical tuning constants.
func DefaultSteps(kind Kind, n int) int {
	switch kind {
	case Reversible:
		s := int(math.Ceil(math.Sqrt(float64(n))))
		if s < 1 {
			s = 1
		}
		return s
	case ReversibleFixedPi:
		return defaultRevPiSteps
	default:
		return 1
	}
}

// strategy is the state of one inner chain.
type strategy interface {
	// update advances the chain by nsteps sweeps
	update(nsteps int)

	// matrix returns a copy of the current transition matrix
	matrix() []float64

	// statdist returns the stationary vector of the current matrix
	statdist() ([]float64, error)

	// acceptance returns the accepted and proposed move counts
	acceptance() (int, int)
}

type strategyMaker func(s *Sampler, C []float64) strategy

// strategies maps each Kind to the constructor of its inner chain.
var strategies = map[Kind]strategyMaker{
	NonReversible: func(s *Sampler, C []float64) strategy {
		return newNonrevSampler(C, s.n, s.rng)
	},
	Reversible: func(s *Sampler, C []float64) strategy {
		return newRevSampler(C, s.n, s.p0, s.rng)
	},
	ReversibleFixedPi: func(s *Sampler, C []float64) strategy {
		return newRevpiSampler(C, s.n, s.mu, s.p0, s.rng)
	},
}

// Sampler draws transition matrices from the posterior given a count matrix.
// A Sampler is not safe for concurrent use.
type Sampler struct {
	n      int
	kind   Kind
	nsteps int

	reversible bool
	mu         []float64
	p0         []float64
	rng        *rand.Rand

	callback func() error

	chain strategy
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithReversible selects a reversible strategy.  Combined with
// WithStationaryVector it selects the fixed stationary vector strategy.
func WithReversible(reversible bool) Option {
	return func(s *Sampler) {
		s.reversible = reversible
	}
}

// WithStationaryVector fixes the stationary vector of the sampled matrices.
// Only valid together with WithReversible(true).
func WithStationaryVector(mu []float64) Option {
	return func(s *Sampler) {
		s.mu = append([]float64(nil), mu...)
	}
}

// WithSteps sets the number of inner chain sweeps per draw.  Zero selects
// DefaultSteps.  The non-reversible strategy always uses one step.
func WithSteps(nsteps int) Option {
	return func(s *Sampler) {
		s.nsteps = nsteps
	}
}

// WithInitial sets the starting matrix of the inner chain for the
// reversible strategies.
func WithInitial(P0 []float64) Option {
	return func(s *Sampler) {
		s.p0 = append([]float64(nil), P0...)
	}
}

// WithRand sets the random source.  By default a source seeded with 1 is
// used.
func WithRand(rng *rand.Rand) Option {
	return func(s *Sampler) {
		s.rng = rng
	}
}

// WithCallback registers a function called after each draw of SampleN.  A
// non-nil error aborts the remaining draws.  The callback must not use the
// Sampler.
func WithCallback(f func() error) Option {
	return func(s *Sampler) {
		s.callback = f
	}
}

// New returns a Sampler for the n x n count matrix C.  For the reversible
// strategies C must be strongly connected; otherwise an error classified as
// infeasible and matching errors.ErrDisconnected is returned.
func New(C []float64, n int, opts ...Option) (*Sampler, error) {

	s := &Sampler{n: n}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.configure(C); err != nil {
		return nil, err
	}

	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(1))
	}

	cm := append([]float64(nil), C...)
	s.chain = strategies[s.kind](s, cm)

	return s, nil
}

func (s *Sampler) configure(C []float64) error {

	n := s.n
	if n <= 0 {
		return errors.Invalidf("tmatrix", "New", "number of states must be positive, got %d", n)
	}
	if len(C) != n*n {
		return errors.Invalidf("tmatrix", "New", "count matrix has %d entries, expected %d", len(C), n*n)
	}
	for k, v := range C {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Invalidf("tmatrix", "New", "count matrix entry (%d, %d) is %v", k/n, k%n, v)
		}
	}
	if s.nsteps < 0 {
		return errors.Invalidf("tmatrix", "New", "number of steps must be non-negative, got %d", s.nsteps)
	}
	if s.p0 != nil && len(s.p0) != n*n {
		return errors.Invalidf("tmatrix", "New", "initial matrix has %d entries, expected %d", len(s.p0), n*n)
	}

	switch {
	case !s.reversible && s.mu != nil:
		return errors.Invalidf("tmatrix", "New", "non-reversible sampling with a fixed stationary vector is not supported")
	case !s.reversible:
		s.kind = NonReversible
	case s.mu != nil:
		s.kind = ReversibleFixedPi
		if err := s.checkMu(); err != nil {
			return err
		}
	default:
		s.kind = Reversible
	}

	if s.kind != NonReversible && !IsConnected(C, n) {
		return errors.WrapInfeasible(
			fmt.Errorf("%w: %d strongly connected sets", errors.ErrDisconnected, len(ConnectedSets(C, n))),
			"tmatrix", "New", "reversible sampling")
	}

	switch {
	case s.kind == NonReversible:
		// Independent draws, more steps would only waste work
		s.nsteps = 1
	case s.nsteps == 0:
		s.nsteps = DefaultSteps(s.kind, n)
	}

	return nil
}

func (s *Sampler) checkMu() error {
	if len(s.mu) != s.n {
		return errors.Invalidf("tmatrix", "New", "stationary vector has length %d, expected %d", len(s.mu), s.n)
	}
	for i, v := range s.mu {
		if !(v > 0) || math.IsInf(v, 0) {
			return errors.Invalidf("tmatrix", "New", "stationary vector entry %d is %v, must be positive", i, v)
		}
	}
	floats.Scale(1/floats.Sum(s.mu), s.mu)
	return nil
}

// Kind returns the sampling strategy.
func (s *Sampler) Kind() Kind {
	return s.kind
}

// NSteps returns the number of inner chain sweeps per draw.
func (s *Sampler) NSteps() int {
	return s.nsteps
}

// AcceptanceRate returns the fraction of accepted inner chain moves so far.
// It is 1 for the non-reversible strategy, which has no rejections.
func (s *Sampler) AcceptanceRate() float64 {
	a, p := s.chain.acceptance()
	if p == 0 {
		return 1
	}
	return float64(a) / float64(p)
}

// Sample advances the inner chain and returns one transition matrix and
// its stationary vector.
func (s *Sampler) Sample() ([]float64, []float64, error) {

	s.chain.update(s.nsteps)
	P := s.chain.matrix()
	pi, err := s.chain.statdist()
	if err != nil {
		return nil, nil, errors.Wrap(err, "tmatrix", "Sample", "stationary distribution")
	}

	return P, pi, nil
}

// SampleN returns nsamples successive draws.  If returnStatdist is true the
// stationary vectors are returned as well, otherwise the second return
// value is nil.
func (s *Sampler) SampleN(nsamples int, returnStatdist bool) ([][]float64, [][]float64, error) {

	if nsamples < 0 {
		return nil, nil, errors.Invalidf("tmatrix", "SampleN", "number of samples must be non-negative, got %d", nsamples)
	}

	ps := make([][]float64, 0, nsamples)
	var pis [][]float64
	if returnStatdist {
		pis = make([][]float64, 0, nsamples)
	}

	for k := 0; k < nsamples; k++ {
		s.chain.update(s.nsteps)
		ps = append(ps, s.chain.matrix())

		if returnStatdist {
			pi, err := s.chain.statdist()
			if err != nil {
				return nil, nil, errors.Wrap(err, "tmatrix", "SampleN", "stationary distribution")
			}
			pis = append(pis, pi)
		}

		if s.callback != nil {
			if err := s.callback(); err != nil {
				return nil, nil, errors.WrapFatal(fmt.Errorf("%w: %w", errors.ErrCallback, err), "tmatrix", "SampleN", "callback")
			}
		}
	}

	return ps, pis, nil
}
