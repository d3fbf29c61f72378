package hmmlib

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/kshedden/bhmm/errors"
	"github.com/kshedden/bhmm/tmatrix"
)

const (
	defaultMaxIter = 100
	defaultTol     = 1e-8

	// Starting value for the diagonal of the transition matrix
	startStay = 0.8
)

// Estimator fits a hidden Markov model by maximum likelihood, using the EM
// (Baum-Welch) algorithm.  Set the exported fields before calling Fit.
type Estimator struct {

	// Number of states
	NState int

	// If true the transition matrix is constrained to detailed balance
	Reversible bool

	// If true the initial distribution is the stationary distribution of
	// the transition matrix
	Stationary bool

	// Maximum number of EM iterations, zero selects 100
	MaxIter int

	// Relative change in the log-likelihood below which the iterations
	// stop, zero selects 1e-8
	Tol float64

	// The log-likelihood at each iteration
	LLF []float64

	Warnings warnings

	logger *slog.Logger

	// Per-sequence workspaces
	fprob [][]float64
	bprob [][]float64
	pobs  [][]float64
	llf   []float64
}

type warnings struct {
	LogLikeDecreased int
	NotConverged     int
	EmptyState       int
}

// NewEstimator returns an Estimator for models with nstate states.
func NewEstimator(nstate int) *Estimator {
	return &Estimator{
		NState: nstate,
		logger: slog.Default(),
	}
}

// SetLogger provides a logger that will be used to write logging messages.
func (e *Estimator) SetLogger(logger *slog.Logger) {
	e.logger = logger
}

// Fit estimates a model for the observation sequences obs.  The emission
// model output supplies the family; it is copied and given starting values
// from the data.
func (e *Estimator) Fit(obs [][]float64, output OutputModel) (*Model, error) {

	if err := e.check(obs, output); err != nil {
		return nil, err
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	maxiter := e.MaxIter
	if maxiter <= 0 {
		maxiter = defaultMaxIter
	}
	tol := e.Tol
	if tol <= 0 {
		tol = defaultTol
	}

	m := e.startModel(obs, output)
	e.allocate(obs)
	defer e.release()

	e.LLF = make([]float64, 0, maxiter)
	e.logger.Info("estimating model parameters", "nstate", e.NState, "nseq", len(obs),
		"reversible", e.Reversible, "stationary", e.Stationary)

	var llf float64
	for i := 0; i < maxiter; i++ {

		C, n0, err := e.forwardBackward(m, obs)
		if err != nil {
			return nil, err
		}
		e.updateTrans(m, C)
		if err := e.updateInit(m, n0, C); err != nil {
			return nil, err
		}
		m.Output.Estimate(obs, e.gamma(obs))

		llfnew := floats.Sum(e.llf)
		if i > 0 {
			if llfnew < llf-1e-10*math.Abs(llf) {
				e.logger.Warn("log-likelihood decreased", "iteration", i, "by", llf-llfnew)
				e.Warnings.LogLikeDecreased++
			} else if llfnew-llf < tol*math.Abs(llfnew) {
				e.logger.Info("converged", "iteration", i, "llf", llfnew)
				e.LLF = append(e.LLF, llfnew)
				break
			}
		}

		llf = llfnew
		e.LLF = append(e.LLF, llf)
		e.logger.Debug("EM iteration", "iteration", i, "llf", llf)
	}

	e.logger.Info("EM done", "iterations", len(e.LLF), "warnings", fmt.Sprintf("%+v", e.Warnings))

	return m, nil
}

func (e *Estimator) check(obs [][]float64, output OutputModel) error {

	if e.NState <= 0 {
		return errors.Invalidf("hmmlib", "Estimator.Fit", "number of states must be positive, got %d", e.NState)
	}
	if output == nil || output.NState() != e.NState {
		return errors.Invalidf("hmmlib", "Estimator.Fit", "output model does not have %d states", e.NState)
	}
	if len(obs) == 0 {
		return errors.WrapInvalid(errors.ErrEmptyInput, "hmmlib", "Estimator.Fit", "check observations")
	}
	for _, y := range obs {
		if err := output.Check(y); err != nil {
			return err
		}
	}

	return nil
}

// startModel returns the starting values for the EM iterations.
func (e *Estimator) startModel(obs [][]float64, output OutputModel) *Model {

	n := e.NState
	m := &Model{
		NState: n,
		Trans:  make([]float64, n*n),
		Init:   make([]float64, n),
		Output: output.Copy(),
	}

	m.Output.Init(obs)

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			switch {
			case n == 1:
				m.Trans[i*n+j] = 1
			case i == j:
				m.Trans[i*n+j] = startStay
			default:
				m.Trans[i*n+j] = (1 - startStay) / float64(n-1)
			}
		}
		m.Init[i] = 1 / float64(n)
	}

	return m
}

// allocate sets up the per-sequence workspaces, which are sized on first
// use.
func (e *Estimator) allocate(obs [][]float64) {
	e.fprob = make([][]float64, len(obs))
	e.bprob = make([][]float64, len(obs))
	e.pobs = make([][]float64, len(obs))
	e.llf = make([]float64, len(obs))
}

func (e *Estimator) release() {
	e.fprob = nil
	e.bprob = nil
	e.pobs = nil
}

// forwardBackward runs the forward and backward recursions for every
// sequence concurrently, and returns the expected transition counts and
// the expected initial state counts.
func (e *Estimator) forwardBackward(m *Model, obs [][]float64) ([]float64, []float64, error) {

	n := e.NState
	C := make([]float64, n*n)
	n0 := make([]float64, n)
	errs := make([]error, len(obs))

	var wg sync.WaitGroup
	var mut sync.Mutex
	for p := range obs {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			errs[p] = e.forwardBackwardSeq(p, m, obs[p], C, n0, &mut)
		}(p)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, nil, err
		}
	}

	return C, n0, nil
}

// forwardBackwardSeq calculates the forward and backward probabilities for
// one sequence, and adds its expected counts to C and n0.
func (e *Estimator) forwardBackwardSeq(p int, m *Model, obs []float64, C, n0 []float64, mut *sync.Mutex) error {

	n := e.NState
	T := len(obs) / m.NComp()

	// Due to concurrency, each sequence needs its own workspace
	if len(e.fprob[p]) != T*n {
		e.fprob[p] = make([]float64, T*n)
		e.bprob[p] = make([]float64, T*n)
		e.pobs[p] = make([]float64, T*n)
	}
	fprob, bprob, pobs := e.fprob[p], e.bprob[p], e.pobs[p]

	if err := m.Output.Likelihoods(obs, pobs); err != nil {
		return err
	}

	llf, err := Forward(m.Trans, pobs, m.Init, n, T, fprob)
	if err != nil {
		return err
	}
	e.llf[p] = llf

	// Backward sweep
	for j := 0; j < n; j++ {
		bprob[(T-1)*n+j] = 1
	}
	for t := T - 2; t >= 0; t-- {
		b := bprob[t*n : (t+1)*n]
		b1 := bprob[(t+1)*n : (t+2)*n]
		y1 := pobs[(t+1)*n : (t+2)*n]
		for st1 := 0; st1 < n; st1++ {
			var u float64
			for st2 := 0; st2 < n; st2++ {
				u += m.Trans[st1*n+st2] * y1[st2] * b1[st2]
			}
			b[st1] = u
		}
		normalizeSum(b, 1)
	}

	joint := make([]float64, n*n)
	jointsum := make([]float64, n*n)
	for t := 0; t < T-1; t++ {
		f := fprob[t*n : (t+1)*n]
		b1 := bprob[(t+1)*n : (t+2)*n]
		y1 := pobs[(t+1)*n : (t+2)*n]

		// Joint probabilities for states (st1, st2) at (t, t+1)
		for st1 := 0; st1 < n; st1++ {
			for st2 := 0; st2 < n; st2++ {
				joint[st1*n+st2] = f[st1] * m.Trans[st1*n+st2] * y1[st2] * b1[st2]
			}
		}
		normalizeSum(joint, 0)
		floats.Add(jointsum, joint)
	}

	first := make([]float64, n)
	floats.MulTo(first, fprob[0:n], bprob[0:n])
	normalizeSum(first, 0)

	mut.Lock()
	floats.Add(C, jointsum)
	floats.Add(n0, first)
	mut.Unlock()

	return nil
}

// gamma returns the posterior state probabilities of every time point of
// every sequence, computed from the workspaces of the last
// forwardBackward.  The filtered probabilities are overwritten.
func (e *Estimator) gamma(obs [][]float64) [][]float64 {

	n := e.NState
	for p := range obs {
		fprob, bprob := e.fprob[p], e.bprob[p]
		T := len(fprob) / n
		for t := 0; t < T; t++ {
			g := fprob[t*n : (t+1)*n]
			floats.Mul(g, bprob[t*n:(t+1)*n])
			normalizeSum(g, 0)
		}
	}

	return e.fprob
}

// updateTrans updates the transition probability matrix from the expected
// transition counts.
func (e *Estimator) updateTrans(m *Model, C []float64) {

	n := e.NState
	if e.Reversible {
		P, ok := tmatrix.EstimateReversible(C, n, 0, 0)
		if !ok {
			e.logger.Warn("reversible transition matrix estimate did not converge")
			e.Warnings.NotConverged++
		}
		copy(m.Trans, P)
		return
	}

	// Normalize to probabilties by row
	copy(m.Trans, C)
	for st := 0; st < n; st++ {
		row := m.Trans[st*n : (st+1)*n]
		if floats.Sum(row) < 1e-10 {
			e.Warnings.EmptyState++
		}
		normalizeSum(row, 1/float64(n))
	}
}

// updateInit updates the initial state probabilities.
func (e *Estimator) updateInit(m *Model, n0, C []float64) error {

	if e.Stationary {
		pi, err := tmatrix.StationaryDistributionDisconnected(m.Trans, C, e.NState)
		if err != nil {
			return errors.Wrap(err, "hmmlib", "Estimator.Fit", "stationary initial distribution")
		}
		copy(m.Init, pi)
		return nil
	}

	copy(m.Init, n0)
	normalizeSum(m.Init, 1/float64(e.NState))

	return nil
}

// LogLikelihood returns the log-likelihood of the model for the
// observation sequences obs.
func LogLikelihood(m *Model, obs [][]float64) (float64, error) {

	n := m.NState
	var llf float64
	for _, y := range obs {
		T := len(y) / m.NComp()
		pobs := make([]float64, T*n)
		alpha := make([]float64, T*n)
		if err := m.Output.Likelihoods(y, pobs); err != nil {
			return 0, err
		}
		v, err := Forward(m.Trans, pobs, m.Init, n, T, alpha)
		if err != nil {
			return 0, err
		}
		llf += v
	}

	return llf, nil
}
