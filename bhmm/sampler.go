/*
Package bhmm estimates hidden Markov models by Bayesian posterior sampling.

A Sampler runs a Gibbs chain on model space.  One sweep of the chain draws
a hidden state path for every observation sequence by forward filtering
and backward sampling, resamples the emission parameters given the paths,
and draws a new transition matrix and initial distribution from their
conditional posteriors given the transition counts of the paths plus the
prior pseudo-counts.  The transition matrix may be constrained to detailed
balance, and the initial distribution may be tied to its stationary
distribution.

Observations are passed as one flat slice per sequence with NComp values
per time point, as in package hmmlib.
*/
package bhmm

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/kshedden/bhmm/errors"
	"github.com/kshedden/bhmm/hmmlib"
	"github.com/kshedden/bhmm/randist"
	"github.com/kshedden/bhmm/tmatrix"
)

const (
	defaultNSamples = 100

	// Iteration limit for the reversible MLE used to zero out
	// unsupported transitions
	mleMaxIter = 10000
	mleTol     = 1e-12
)

// Phase is the stage of a Sampler's life cycle.
type Phase uint8

// Uninitialized, etc. are the phases of a Sampler.
const (
	Uninitialized Phase = iota
	Initialized
	BurningIn
	Collecting
	Done
)

// String returns the name of the phase.
func (p Phase) String() string {
	switch p {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case BurningIn:
		return "burning in"
	case Collecting:
		return "collecting"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Sampler draws hidden Markov models from their posterior distribution
// given observation sequences.  A Sampler is not safe for concurrent use;
// independent chains need their own Samplers.
type Sampler struct {
	nstate int
	ncomp  int

	reversible bool
	stationary bool

	// Inner chain steps per transition matrix draw, zero selects the
	// tmatrix default
	nsteps int

	p0Prior    PriorSpec
	transPrior PriorSpec

	outputKind hmmlib.OutputKind

	// The initial model given by the caller, and the one estimated by
	// maximum likelihood on the first fit when none was given
	initial   *hmmlib.Model
	generated *hmmlib.Model

	nburn      int
	nthin      int
	nsamples   int
	saveHidden bool

	seed    int64
	rng     *rand.Rand
	logger  *slog.Logger
	metrics *Metrics

	callback func() error

	// Fixed once resolved
	prior *Prior

	phase     Phase
	paths     *hmmlib.PathSampler
	posterior *Posterior
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithReversible constrains the sampled transition matrices to detailed
// balance.  The default is true.
func WithReversible(reversible bool) Option {
	return func(s *Sampler) {
		s.reversible = reversible
	}
}

// WithStationary makes the initial distribution the stationary
// distribution of the transition matrix.  The default is false.
func WithStationary(stationary bool) Option {
	return func(s *Sampler) {
		s.stationary = stationary
	}
}

// WithTransitionMatrixSamplingSteps sets the number of inner chain sweeps
// per transition matrix draw.  Zero selects tmatrix.DefaultSteps.
func WithTransitionMatrixSamplingSteps(nsteps int) Option {
	return func(s *Sampler) {
		s.nsteps = nsteps
	}
}

// WithP0Prior sets the prior of the initial distribution.  The default is
// PriorMixed.
func WithP0Prior(ps PriorSpec) Option {
	return func(s *Sampler) {
		s.p0Prior = ps
	}
}

// WithTransitionMatrixPrior sets the prior of the transition matrix.  The
// default is PriorMixed.
func WithTransitionMatrixPrior(ps PriorSpec) Option {
	return func(s *Sampler) {
		s.transPrior = ps
	}
}

// WithInitialModel sets the starting point of the chain.  Without it the
// first call to Fit estimates one by maximum likelihood.
func WithInitialModel(m *hmmlib.Model) Option {
	return func(s *Sampler) {
		s.initial = m
	}
}

// WithOutputKind sets the emission family of the model estimated when no
// initial model is given.  The default is hmmlib.Gaussian.
func WithOutputKind(kind hmmlib.OutputKind) Option {
	return func(s *Sampler) {
		s.outputKind = kind
	}
}

// WithNComp sets the number of values per time point.  The default is 1,
// or the dimension of the initial model.
func WithNComp(ncomp int) Option {
	return func(s *Sampler) {
		s.ncomp = ncomp
	}
}

// WithSeed sets the seed of the random source.  The default is 1.
func WithSeed(seed int64) Option {
	return func(s *Sampler) {
		s.seed = seed
	}
}

// WithLogger sets the logger, by default slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sampler) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics that the sampler updates.
func WithMetrics(m *Metrics) Option {
	return func(s *Sampler) {
		s.metrics = m
	}
}

// WithCallback registers a function called after each collected sample.
// A non-nil error aborts the fit.  The callback must not use the Sampler.
func WithCallback(f func() error) Option {
	return func(s *Sampler) {
		s.callback = f
	}
}

// WithNBurn sets the number of sweeps discarded before collection starts.
func WithNBurn(nburn int) Option {
	return func(s *Sampler) {
		s.nburn = nburn
	}
}

// WithNThin sets the number of sweeps per collected sample.  The default
// is 1.
func WithNThin(nthin int) Option {
	return func(s *Sampler) {
		s.nthin = nthin
	}
}

// WithNSamples sets the number of collected samples.  The default is 100.
func WithNSamples(nsamples int) Option {
	return func(s *Sampler) {
		s.nsamples = nsamples
	}
}

// WithSaveHiddenStates keeps the hidden state paths in the collected
// samples.
func WithSaveHiddenStates(save bool) Option {
	return func(s *Sampler) {
		s.saveHidden = save
	}
}

// New returns a Sampler for models with nstate states.  The configuration
// is checked here; errors are classified as invalid, or as infeasible when
// a reversible chain is requested for an initial model whose transitions
// plus prior counts do not connect all states.
func New(nstate int, opts ...Option) (*Sampler, error) {

	s := &Sampler{
		nstate:     nstate,
		reversible: true,
		p0Prior:    PriorSpec{Mode: PriorMixed},
		transPrior: PriorSpec{Mode: PriorMixed},
		outputKind: hmmlib.Gaussian,
		nthin:      1,
		nsamples:   defaultNSamples,
		seed:       1,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.ncomp == 0 {
		s.ncomp = 1
		if s.initial != nil && s.initial.Output != nil {
			s.ncomp = s.initial.NComp()
		}
	}

	if err := s.check(); err != nil {
		return nil, err
	}

	if s.initial != nil {
		s.initial = s.initial.Copy()
		s.initial.HiddenStates = nil
		s.resolvePrior(s.initial)
		if err := s.checkConnected(s.initial); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Sampler) check() error {

	n := s.nstate
	if n <= 0 {
		return errors.Invalidf("bhmm", "New", "number of states must be positive, got %d", n)
	}
	if s.ncomp <= 0 {
		return errors.Invalidf("bhmm", "New", "number of components must be positive, got %d", s.ncomp)
	}
	if s.nsteps < 0 {
		return errors.Invalidf("bhmm", "New", "transition matrix sampling steps must be non-negative, got %d", s.nsteps)
	}
	if s.nburn < 0 || s.nthin < 0 || s.nsamples < 0 {
		return errors.Invalidf("bhmm", "New", "nburn, nthin and nsamples must be non-negative, got %d, %d, %d",
			s.nburn, s.nthin, s.nsamples)
	}
	if err := s.p0Prior.check("p0 prior", n); err != nil {
		return err
	}
	if err := s.transPrior.check("transition matrix prior", n*n); err != nil {
		return err
	}

	if s.initial == nil {
		if _, err := hmmlib.NewOutput(s.outputKind, n, s.ncomp); err != nil {
			return err
		}
		return nil
	}

	if s.initial.NState != n {
		return errors.Invalidf("bhmm", "New", "initial model has %d states, expected %d", s.initial.NState, n)
	}
	if err := s.initial.Validate(); err != nil {
		return err
	}
	if s.initial.NComp() != s.ncomp {
		return errors.Invalidf("bhmm", "New", "initial model has %d components, expected %d", s.initial.NComp(), s.ncomp)
	}

	return nil
}

// resolvePrior fixes the prior pseudo-counts the first time it is called.
func (s *Sampler) resolvePrior(m *hmmlib.Model) {

	if s.prior != nil {
		return
	}

	n := s.nstate
	s.prior = &Prior{
		N0: s.p0Prior.resolve(n, m.Init),
		C:  s.transPrior.resolve(n*n, m.Trans),
	}
}

// checkConnected returns an error if a reversible chain is requested and
// the transitions of m plus the prior counts do not connect all states.
func (s *Sampler) checkConnected(m *hmmlib.Model) error {

	if !s.reversible {
		return nil
	}

	C := make([]float64, len(m.Trans))
	for k := range C {
		C[k] = m.Trans[k] + s.prior.C[k]
	}
	if !tmatrix.IsConnected(C, s.nstate) {
		return errors.WrapInfeasible(errors.ErrDisconnected, "bhmm", "Sampler", "check initial model")
	}

	return nil
}

// Phase returns the current phase of the sampler.
func (s *Sampler) Phase() Phase {
	return s.phase
}

// Prior returns a copy of the prior pseudo-counts, or nil before they are
// fixed.
func (s *Sampler) Prior() *Prior {
	if s.prior == nil {
		return nil
	}
	return s.prior.copy()
}

// Posterior returns the result of the last successful fit, or nil.
func (s *Sampler) Posterior() *Posterior {
	return s.posterior
}

// Fit runs the chain on the observation sequences obs and stores the
// collected samples in the sampler's Posterior, replacing any earlier
// result.  On error no posterior is kept.
func (s *Sampler) Fit(obs [][]float64) (err error) {

	s.posterior = nil
	s.phase = Uninitialized
	defer func() {
		// Release the workspaces whether or not the fit succeeded
		s.paths = nil
		if err != nil {
			s.posterior = nil
			if s.prior != nil {
				s.phase = Initialized
			} else {
				s.phase = Uninitialized
			}
		}
		s.metrics.recordFit(err)
	}()

	maxT, err := s.checkObs(obs)
	if err != nil {
		return err
	}

	s.rng = rand.New(rand.NewSource(s.seed))

	start, err := s.initialModel(obs)
	if err != nil {
		return err
	}
	s.resolvePrior(start)
	if err := s.checkConnected(start); err != nil {
		return err
	}

	prior := start.Copy()
	work := start.Copy()
	work.HiddenStates = make([][]int, len(obs))
	s.paths = hmmlib.NewPathSampler(s.nstate, maxT, s.rng)
	s.phase = Initialized

	s.logger.Info("starting Gibbs sampler", "nstate", s.nstate, "nseq", len(obs), "maxT", maxT,
		"reversible", s.reversible, "stationary", s.stationary, "nburn", s.nburn, "nthin", s.nthin,
		"nsamples", s.nsamples)

	s.phase = BurningIn
	for i := 0; i < s.nburn; i++ {
		if err := s.sweep(work, obs); err != nil {
			return err
		}
	}
	s.logger.Info("burn-in done", "sweeps", s.nburn)

	s.phase = Collecting
	samples := make([]*hmmlib.Model, 0, s.nsamples)
	for k := 0; k < s.nsamples; k++ {
		for i := 0; i < s.nthin; i++ {
			if err := s.sweep(work, obs); err != nil {
				return err
			}
		}

		samples = append(samples, s.snapshot(work))
		s.metrics.recordSample()
		s.logger.Debug("collected sample", "sample", k)

		if s.callback != nil {
			if err := s.callback(); err != nil {
				return errors.WrapFatal(errors.Join(errors.ErrCallback, err), "bhmm", "Sampler.Fit", "run callback")
			}
		}
	}

	s.posterior = newPosterior(prior, samples)
	s.phase = Done
	s.logger.Info("sampling done", "samples", len(samples), "id", s.posterior.ID)

	return nil
}

// checkObs returns the length of the longest sequence, or an error if the
// observations are empty or do not fit the configured model.
func (s *Sampler) checkObs(obs [][]float64) (int, error) {

	if len(obs) == 0 {
		return 0, errors.WrapInvalid(errors.ErrEmptyInput, "bhmm", "Sampler.Fit", "check observations")
	}

	var maxT int
	for p, y := range obs {
		if len(y) == 0 || len(y)%s.ncomp != 0 {
			return 0, errors.WrapInvalid(errors.ErrShortSequence, "bhmm", "Sampler.Fit",
				fmt.Sprintf("check length of sequence %d", p))
		}
		if T := len(y) / s.ncomp; T > maxT {
			maxT = T
		}
	}

	return maxT, nil
}

// initialModel returns the model the chain starts from, estimating one by
// maximum likelihood if needed.  The estimated model is kept for later
// fits.
func (s *Sampler) initialModel(obs [][]float64) (*hmmlib.Model, error) {

	if s.initial != nil {
		for _, y := range obs {
			if err := s.initial.Output.Check(y); err != nil {
				return nil, err
			}
		}
		return s.initial, nil
	}

	if s.generated != nil {
		return s.generated, nil
	}

	output, err := hmmlib.NewOutput(s.outputKind, s.nstate, s.ncomp)
	if err != nil {
		return nil, err
	}

	est := hmmlib.NewEstimator(s.nstate)
	est.Reversible = s.reversible
	est.Stationary = s.stationary
	est.SetLogger(s.logger)

	m, err := est.Fit(obs, output)
	if err != nil {
		return nil, errors.Wrap(err, "bhmm", "Sampler.Fit", "estimate initial model")
	}
	m.HiddenStates = nil
	s.generated = m

	return m, nil
}

// snapshot returns an independent copy of the working model for the
// posterior.
func (s *Sampler) snapshot(work *hmmlib.Model) *hmmlib.Model {
	m := work.Copy()
	if !s.saveHidden {
		m.HiddenStates = nil
	}
	return m
}

// sweep runs one Gibbs sweep, updating work in place.
func (s *Sampler) sweep(work *hmmlib.Model, obs [][]float64) error {

	start := time.Now()

	if err := s.updateHiddenStates(work, obs); err != nil {
		return err
	}

	s.updateOutput(work, obs)

	acceptance, err := s.updateTransitions(work)
	if err != nil {
		return err
	}

	s.metrics.recordSweep(start, acceptance)

	return nil
}

func (s *Sampler) updateHiddenStates(work *hmmlib.Model, obs [][]float64) error {

	for p, y := range obs {
		path, err := s.paths.Sample(work, y, work.HiddenStates[p])
		if err != nil {
			return errors.Wrap(err, "bhmm", "Sampler.Fit", fmt.Sprintf("sample hidden path %d", p))
		}
		work.HiddenStates[p] = path
	}

	return nil
}

func (s *Sampler) updateOutput(work *hmmlib.Model, obs [][]float64) {

	byState := work.ObservationsByState(obs)
	for st, y := range byState {
		if len(y) == 0 {
			s.logger.Warn("no observations assigned to state", "state", st)
		}
	}

	work.Output.Sample(byState, s.rng)
}

// updateTransitions draws the transition matrix and initial distribution
// of work given its hidden states, and returns the acceptance rate of the
// inner chain.
func (s *Sampler) updateTransitions(work *hmmlib.Model) (float64, error) {

	n := s.nstate

	C := work.CountMatrix()
	for k := range C {
		C[k] += s.prior.C[k]
	}

	if s.reversible && !tmatrix.IsConnected(C, n) {
		return 0, errors.WrapInfeasible(errors.ErrDisconnected, "bhmm", "Sampler.Fit", "sample transition matrix")
	}

	s.zeroUnsupported(C)

	ts, err := tmatrix.New(C, n,
		tmatrix.WithReversible(s.reversible),
		tmatrix.WithSteps(s.nsteps),
		tmatrix.WithInitial(work.Trans),
		tmatrix.WithRand(s.rng),
	)
	if err != nil {
		return 0, errors.Wrap(err, "bhmm", "Sampler.Fit", "set up transition matrix sampler")
	}

	P, pi, err := ts.Sample()
	if err != nil {
		return 0, errors.Wrap(err, "bhmm", "Sampler.Fit", "sample transition matrix")
	}

	var p0 []float64
	if s.stationary {
		p0 = pi
	} else {
		n0 := work.CountInit()
		for k := range n0 {
			n0[k] += s.prior.N0[k]
		}
		p0 = make([]float64, n)
		if !randist.Dirichlet(s.rng, n0, p0) {
			copy(p0, work.Init)
		}
	}

	work.Update(p0, P)

	return ts.AcceptanceRate(), nil
}

// zeroUnsupported removes counts from C wherever the maximum likelihood
// estimate gives no probability to a transition in either direction.
func (s *Sampler) zeroUnsupported(C []float64) {

	n := s.nstate

	var P0 []float64
	if s.reversible {
		P0, _ = tmatrix.EstimateReversible(C, n, mleMaxIter, mleTol)
	} else {
		P0 = tmatrix.EstimateNonReversible(C, n)
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if P0[i*n+j]+P0[j*n+i] == 0 {
				C[i*n+j] = 0
			}
		}
	}
}
