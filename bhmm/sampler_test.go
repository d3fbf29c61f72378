package bhmm

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/kshedden/bhmm/errors"
	"github.com/kshedden/bhmm/hmmlib"
	"github.com/kshedden/bhmm/hmmsim"
	"github.com/kshedden/bhmm/tmatrix"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// identityModel returns a two state model with discrete emissions in which
// each state always emits its own index, so the hidden path is observed.
func identityModel(trans []float64) *hmmlib.Model {
	out := hmmlib.NewDiscreteOutput(2, 2)
	copy(out.Prob, []float64{1, 0, 0, 1})
	return &hmmlib.Model{
		NState: 2,
		Trans:  append([]float64(nil), trans...),
		Init:   []float64{0.5, 0.5},
		Output: out,
	}
}

func gaussianData(t *testing.T, nstate, nseq, T int, seed int64) (*hmmlib.Model, [][]int, [][]float64) {
	t.Helper()
	m := hmmsim.GaussianSystem(nstate, 1)
	states, obs, err := hmmsim.Simulate(m, nseq, T, rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	return m, states, obs
}

func checkStochastic(t *testing.T, m *hmmlib.Model) {
	t.Helper()
	n := m.NState
	for i := 0; i < n; i++ {
		assert.InDelta(t, 1, floats.Sum(m.Trans[i*n:(i+1)*n]), 1e-10)
	}
	assert.InDelta(t, 1, floats.Sum(m.Init), 1e-10)
}

func TestParsePriorMode(t *testing.T) {

	for _, tc := range []struct {
		name string
		want PriorMode
	}{
		{"", PriorNone},
		{"none", PriorNone},
		{"sparse", PriorNone},
		{"Uniform", PriorUniform},
		{"mixed", PriorMixed},
	} {
		got, err := ParsePriorMode(tc.name)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := ParsePriorMode("flat")
	assert.True(t, errors.IsInvalid(err))

	assert.Equal(t, "mixed", PriorMixed.String())
	assert.Equal(t, "explicit", ExplicitPrior([]float64{1}).Mode.String())
}

func TestNewInvalid(t *testing.T) {

	m3 := hmmsim.GaussianSystem(3, 1)

	for _, tc := range []struct {
		name   string
		nstate int
		opts   []Option
	}{
		{"no states", 0, nil},
		{"short p0 prior", 3, []Option{WithP0Prior(ExplicitPrior([]float64{1, 1}))}},
		{"short transition prior", 3, []Option{WithTransitionMatrixPrior(ExplicitPrior(make([]float64, 8)))}},
		{"negative prior", 2, []Option{WithP0Prior(ExplicitPrior([]float64{1, -1}))}},
		{"bad prior mode", 2, []Option{WithP0Prior(PriorSpec{Mode: 17})}},
		{"negative samples", 2, []Option{WithNSamples(-1)}},
		{"negative burn-in", 2, []Option{WithNBurn(-1)}},
		{"negative steps", 2, []Option{WithTransitionMatrixSamplingSteps(-2)}},
		{"bad output kind", 2, []Option{WithOutputKind(hmmlib.OutputKind(99))}},
		{"discrete vector", 2, []Option{WithOutputKind(hmmlib.Discrete), WithNComp(2)}},
		{"initial model states", 2, []Option{WithInitialModel(m3)}},
		{"initial model components", 3, []Option{WithInitialModel(m3), WithNComp(2)}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.nstate, tc.opts...)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err), err.Error())
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}

func TestNewDisconnectedInitial(t *testing.T) {

	m := identityModel([]float64{1, 0, 0, 1})

	_, err := New(2, WithInitialModel(m), WithTransitionMatrixPrior(PriorSpec{}))
	require.Error(t, err)
	assert.True(t, errors.IsInfeasible(err))
	assert.ErrorIs(t, err, errors.ErrDisconnected)

	// A uniform prior connects the states
	_, err = New(2, WithInitialModel(m), WithTransitionMatrixPrior(PriorSpec{Mode: PriorUniform}))
	assert.NoError(t, err)

	// Non-reversible sampling does not need connectivity
	_, err = New(2, WithInitialModel(m), WithReversible(false), WithTransitionMatrixPrior(PriorSpec{}))
	assert.NoError(t, err)
}

func TestFitInvalidInput(t *testing.T) {

	s, err := New(2, WithNComp(2), WithLogger(quietLogger()))
	require.NoError(t, err)

	err = s.Fit(nil)
	assert.ErrorIs(t, err, errors.ErrEmptyInput)
	assert.True(t, errors.IsInvalid(err))

	err = s.Fit([][]float64{{1, 2}, {}})
	assert.ErrorIs(t, err, errors.ErrShortSequence)

	err = s.Fit([][]float64{{1, 2, 3}})
	assert.ErrorIs(t, err, errors.ErrShortSequence)

	assert.Nil(t, s.Posterior())
	assert.Equal(t, Uninitialized, s.Phase())

	// Symbols the initial model does not know
	s, err = New(2, WithInitialModel(identityModel([]float64{0.9, 0.1, 0.1, 0.9})), WithLogger(quietLogger()))
	require.NoError(t, err)
	err = s.Fit([][]float64{{0, 1, 5}})
	assert.True(t, errors.IsInvalid(err))
}

// A 3 state chain with collection after a short burn-in.
func TestFitReversible(t *testing.T) {

	_, _, obs := gaussianData(t, 3, 5, 1000, 1)

	s, err := New(3,
		WithReversible(true),
		WithStationary(false),
		WithNBurn(5),
		WithNThin(2),
		WithNSamples(10),
		WithLogger(quietLogger()),
	)
	require.NoError(t, err)
	assert.Nil(t, s.Prior())

	require.NoError(t, s.Fit(obs))
	assert.Equal(t, Done, s.Phase())

	post := s.Posterior()
	require.NotNil(t, post)
	require.NotNil(t, post.Prior)
	assert.Equal(t, 10, post.Len())
	assert.NotEmpty(t, post.ID)
	checkStochastic(t, post.Prior)

	for _, m := range post.Samples {
		checkStochastic(t, m)
		assert.Nil(t, m.HiddenStates)

		// Detailed balance
		pi, err := m.StationaryDistribution()
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				assert.InDelta(t, pi[i]*m.Trans[i*3+j], pi[j]*m.Trans[j*3+i], 1e-8)
			}
		}
	}

	// The mixed prior comes from the estimated starting model
	prior := s.Prior()
	require.NotNil(t, prior)
	assert.Equal(t, post.Prior.Trans, prior.C)
	assert.Equal(t, post.Prior.Init, prior.N0)
}

// With observed hidden states the transition matrix posterior concentrates
// on the empirical transition frequencies.
func TestFitObservedChain(t *testing.T) {

	truth := identityModel([]float64{0.7, 0.3, 0.4, 0.6})
	states, obs, err := hmmsim.Simulate(truth, 1, 5000, rand.New(rand.NewSource(3)))
	require.NoError(t, err)

	mle := make([]float64, 4)
	for tt := 1; tt < len(states[0]); tt++ {
		mle[states[0][tt-1]*2+states[0][tt]]++
	}
	for i := 0; i < 2; i++ {
		floats.Scale(1/floats.Sum(mle[2*i:2*i+2]), mle[2*i:2*i+2])
	}

	s, err := New(2,
		WithInitialModel(identityModel([]float64{0.5, 0.5, 0.5, 0.5})),
		WithReversible(false),
		WithP0Prior(PriorSpec{}),
		WithTransitionMatrixPrior(PriorSpec{}),
		WithNBurn(0),
		WithNThin(1),
		WithNSamples(1),
		WithSaveHiddenStates(true),
		WithLogger(quietLogger()),
	)
	require.NoError(t, err)
	require.NoError(t, s.Fit(obs))

	post := s.Posterior()
	require.Equal(t, 1, post.Len())
	m := post.Samples[0]
	assert.InDeltaSlice(t, mle, m.Trans, 0.05)
	assert.Equal(t, states, m.HiddenStates)

	// The sequence starts in a known state and the p0 prior is empty
	want := []float64{0, 0}
	want[states[0][0]] = 1
	assert.Equal(t, want, m.Init)
}

func TestFitStationary(t *testing.T) {

	truth, _, obs := gaussianData(t, 2, 3, 300, 4)

	for _, rev := range []bool{false, true} {
		s, err := New(2,
			WithInitialModel(truth),
			WithReversible(rev),
			WithStationary(true),
			WithNSamples(5),
			WithLogger(quietLogger()),
		)
		require.NoError(t, err)
		require.NoError(t, s.Fit(obs))

		for _, m := range s.Posterior().Samples {
			checkStochastic(t, m)
			for j := 0; j < 2; j++ {
				var v float64
				for i := 0; i < 2; i++ {
					v += m.Init[i] * m.Trans[i*2+j]
				}
				assert.InDelta(t, m.Init[j], v, 1e-8, fmt.Sprintf("rev=%v", rev))
			}
		}
	}
}

func TestFitDisconnected(t *testing.T) {

	// Each sequence stays in its own state, so the counts never connect
	// the two states.
	obs := [][]float64{{0, 0, 0, 0}, {1, 1, 1}}
	m := identityModel([]float64{0.9, 0.1, 0.1, 0.9})

	s, err := New(2,
		WithInitialModel(m),
		WithTransitionMatrixPrior(PriorSpec{}),
		WithNSamples(3),
		WithLogger(quietLogger()),
	)
	require.NoError(t, err)

	err = s.Fit(obs)
	require.Error(t, err)
	assert.True(t, errors.IsInfeasible(err))
	assert.ErrorIs(t, err, errors.ErrDisconnected)
	assert.Nil(t, s.Posterior())
	assert.Equal(t, Initialized, s.Phase())

	// The same data can be sampled without reversibility
	s, err = New(2,
		WithInitialModel(m),
		WithReversible(false),
		WithTransitionMatrixPrior(PriorSpec{}),
		WithNSamples(3),
		WithLogger(quietLogger()),
	)
	require.NoError(t, err)
	require.NoError(t, s.Fit(obs))
	for _, m := range s.Posterior().Samples {
		assert.Equal(t, []float64{1, 0, 0, 1}, m.Trans)
	}
}

func TestFitZeroLikelihood(t *testing.T) {

	// Symbol 2 has probability zero in both states
	out := hmmlib.NewDiscreteOutput(2, 3)
	copy(out.Prob, []float64{0.5, 0.5, 0, 0.5, 0.5, 0})
	m := &hmmlib.Model{NState: 2, Trans: []float64{0.9, 0.1, 0.1, 0.9}, Init: []float64{0.5, 0.5}, Output: out}

	s, err := New(2, WithInitialModel(m), WithLogger(quietLogger()))
	require.NoError(t, err)

	err = s.Fit([][]float64{{0, 1, 2, 0}})
	require.Error(t, err)
	assert.True(t, errors.IsNumerical(err))
	assert.ErrorIs(t, err, errors.ErrZeroLikelihood)
	assert.Nil(t, s.Posterior())
}

func TestFitDeterministic(t *testing.T) {

	truth, _, obs := gaussianData(t, 3, 2, 200, 5)

	fit := func(seed int64) *Posterior {
		s, err := New(3,
			WithInitialModel(truth),
			WithSeed(seed),
			WithNBurn(2),
			WithNSamples(4),
			WithLogger(quietLogger()),
		)
		require.NoError(t, err)
		require.NoError(t, s.Fit(obs))
		return s.Posterior()
	}

	p1 := fit(7)
	p2 := fit(7)
	assert.Equal(t, p1.Samples, p2.Samples)
	assert.Equal(t, p1.Prior, p2.Prior)
	assert.NotEqual(t, p1.ID, p2.ID)

	p3 := fit(8)
	assert.NotEqual(t, p1.Samples, p3.Samples)
}

func TestRefit(t *testing.T) {

	_, _, obs := gaussianData(t, 2, 2, 200, 6)

	s, err := New(2, WithNSamples(3), WithLogger(quietLogger()))
	require.NoError(t, err)

	require.NoError(t, s.Fit(obs))
	first := s.Posterior()
	prior := s.Prior()

	require.NoError(t, s.Fit(obs))
	second := s.Posterior()

	// The state is reset, not accumulated
	assert.Equal(t, 3, second.Len())
	assert.Equal(t, first.Samples, second.Samples)
	assert.Equal(t, prior, s.Prior())
	assert.NotEqual(t, first.ID, second.ID)
}

func TestSamplesAreCopies(t *testing.T) {

	truth, _, obs := gaussianData(t, 2, 3, 100, 7)

	for _, save := range []bool{false, true} {
		s, err := New(2,
			WithInitialModel(truth),
			WithNSamples(2),
			WithSaveHiddenStates(save),
			WithLogger(quietLogger()),
		)
		require.NoError(t, err)
		require.NoError(t, s.Fit(obs))

		post := s.Posterior()
		a, b := post.Samples[0], post.Samples[1]
		assert.NotSame(t, &a.Trans[0], &b.Trans[0])
		assert.NotSame(t, &a.Init[0], &post.Prior.Init[0])
		assert.NotSame(t, a.Output, b.Output)
		assert.Nil(t, post.Prior.HiddenStates)

		if !save {
			assert.Nil(t, a.HiddenStates)
			continue
		}

		require.Len(t, a.HiddenStates, len(obs))
		for p, path := range a.HiddenStates {
			assert.Len(t, path, len(obs[p]))
		}
		assert.NotSame(t, &a.HiddenStates[0][0], &b.HiddenStates[0][0])
	}
}

func TestCallback(t *testing.T) {

	truth, _, obs := gaussianData(t, 2, 1, 100, 8)

	var calls int
	s, err := New(2,
		WithInitialModel(truth),
		WithNSamples(4),
		WithCallback(func() error { calls++; return nil }),
		WithLogger(quietLogger()),
	)
	require.NoError(t, err)
	require.NoError(t, s.Fit(obs))
	assert.Equal(t, 4, calls)

	stop := errors.New("stop")
	calls = 0
	s, err = New(2,
		WithInitialModel(truth),
		WithNSamples(4),
		WithCallback(func() error {
			calls++
			if calls == 2 {
				return stop
			}
			return nil
		}),
		WithLogger(quietLogger()),
	)
	require.NoError(t, err)

	err = s.Fit(obs)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCallback)
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, calls)
	assert.Nil(t, s.Posterior())
}

func TestMetrics(t *testing.T) {

	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	truth, _, obs := gaussianData(t, 2, 2, 100, 9)
	s, err := New(2,
		WithInitialModel(truth),
		WithNBurn(2),
		WithNThin(2),
		WithNSamples(3),
		WithMetrics(metrics),
		WithLogger(quietLogger()),
	)
	require.NoError(t, err)
	require.NoError(t, s.Fit(obs))

	assert.Equal(t, 8.0, testutil.ToFloat64(metrics.sweeps))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.samples))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.fits.WithLabelValues("ok")))
	acc := testutil.ToFloat64(metrics.acceptance)
	assert.True(t, acc >= 0 && acc <= 1)

	require.Error(t, s.Fit(nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.fits.WithLabelValues("error")))

	// The metrics are already registered
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestZeroUnsupported(t *testing.T) {

	s := &Sampler{nstate: 3, reversible: false}
	C := []float64{
		5, 2, 0,
		0, 3, 0,
		0, 0, 4,
	}
	s.zeroUnsupported(C)
	assert.Equal(t, []float64{5, 2, 0, 0, 3, 0, 0, 0, 4}, C)

	s.reversible = true
	C = []float64{
		5, 2, 0,
		1, 3, 1,
		0, 2, 4,
	}
	want := append([]float64(nil), C...)
	require.True(t, tmatrix.IsConnected(C, 3))
	s.zeroUnsupported(C)
	assert.Equal(t, want, C)
}
