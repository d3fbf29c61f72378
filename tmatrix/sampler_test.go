package tmatrix

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kshedden/bhmm/errors"
)

const tol = 1e-10

// reversibleCounts returns counts proportional to diag(pi) P for a
// reversible 3-state matrix P, scaled to about total counts.
func reversibleCounts(total float64) ([]float64, []float64, []float64) {

	pi := []float64{0.5, 0.3, 0.2}
	X := []float64{
		0.40, 0.07, 0.03,
		0.07, 0.20, 0.03,
		0.03, 0.03, 0.14,
	}
	P := make([]float64, 9)
	C := make([]float64, 9)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			P[i*3+j] = X[i*3+j] / pi[i]
			C[i*3+j] = total * X[i*3+j]
		}
	}

	return P, pi, C
}

func checkStochastic(t *testing.T, P []float64, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		row := P[i*n : (i+1)*n]
		assert.InDelta(t, 1, floats.Sum(row), tol, "row %d", i)
		for _, v := range row {
			assert.True(t, v >= 0)
		}
	}
}

func checkDetailedBalance(t *testing.T, P, pi []float64, n int) {
	t.Helper()
	assert.InDelta(t, 1, floats.Sum(pi), tol)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			assert.InDelta(t, pi[i]*P[i*n+j], pi[j]*P[j*n+i], 1e-10, "(%d, %d)", i, j)
		}
	}
}

func TestKindSelection(t *testing.T) {

	_, _, C := reversibleCounts(100)

	for _, p := range []struct {
		opts  []Option
		kind  Kind
		steps int
	}{
		{nil, NonReversible, 1},
		{[]Option{WithSteps(50)}, NonReversible, 1},
		{[]Option{WithReversible(true)}, Reversible, 2},
		{[]Option{WithReversible(true), WithSteps(7)}, Reversible, 7},
		{[]Option{WithReversible(true), WithStationaryVector([]float64{0.5, 0.3, 0.2})}, ReversibleFixedPi, 6},
	} {
		s, err := New(C, 3, p.opts...)
		require.NoError(t, err)
		assert.Equal(t, p.kind, s.Kind())
		assert.Equal(t, p.steps, s.NSteps())
	}

	assert.Equal(t, 4, DefaultSteps(Reversible, 10))
	assert.Equal(t, 1, DefaultSteps(Reversible, 1))
}

func TestNewInvalid(t *testing.T) {

	_, _, C := reversibleCounts(100)

	for k, p := range []struct {
		C    []float64
		n    int
		opts []Option
	}{
		{C, 0, nil},
		{C, 2, nil},
		{[]float64{1, -1, 1, 1}, 2, nil},
		{C, 3, []Option{WithStationaryVector([]float64{0.5, 0.3, 0.2})}},
		{C, 3, []Option{WithReversible(true), WithStationaryVector([]float64{0.5, 0.5})}},
		{C, 3, []Option{WithReversible(true), WithStationaryVector([]float64{0.5, 0.5, 0})}},
		{C, 3, []Option{WithSteps(-1)}},
		{C, 3, []Option{WithInitial([]float64{1})}},
	} {
		_, err := New(p.C, p.n, p.opts...)
		require.Error(t, err, fmt.Sprintf("case %d", k))
		assert.True(t, errors.IsInvalid(err), "case %d: %v", k, err)
	}
}

func TestDisconnectedReversible(t *testing.T) {

	C := []float64{
		5, 2, 0,
		3, 5, 0,
		0, 0, 4,
	}

	assert.False(t, IsConnected(C, 3))

	for _, opts := range [][]Option{
		{WithReversible(true)},
		{WithReversible(true), WithStationaryVector([]float64{0.4, 0.4, 0.2})},
	} {
		s, err := New(C, 3, opts...)
		assert.Nil(t, s)
		require.Error(t, err)
		assert.True(t, errors.IsInfeasible(err))
		assert.True(t, errors.Is(err, errors.ErrDisconnected))
	}

	// Non-reversible sampling accepts disconnected counts
	s, err := New(C, 3)
	require.NoError(t, err)
	P, pi, err := s.Sample()
	require.NoError(t, err)
	checkStochastic(t, P, 3)
	assert.InDelta(t, 1, floats.Sum(pi), tol)
}

func TestNonReversible(t *testing.T) {

	C := []float64{
		4, 0, 6,
		0, 0, 0,
		1, 2, 7,
	}

	s, err := New(C, 3, WithRand(rand.New(rand.NewSource(5))))
	require.NoError(t, err)

	n := 4000
	ps, pis, err := s.SampleN(n, true)
	require.NoError(t, err)
	require.Len(t, ps, n)
	require.Len(t, pis, n)

	mean := make([]float64, 9)
	for _, P := range ps {
		checkStochastic(t, P, 3)

		// Zero pattern follows the counts; the empty row stays in place
		assert.Equal(t, 0.0, P[1])
		assert.Equal(t, 0.0, P[3])
		assert.Equal(t, 1.0, P[4])
		assert.Equal(t, 0.0, P[5])
		floats.Add(mean, P)
	}
	floats.Scale(1/float64(n), mean)

	// The Dirichlet mean is C normalized by row
	assert.InDelta(t, 0.4, mean[0], 0.01)
	assert.InDelta(t, 0.2, mean[7], 0.01)

	_, pis2, err := s.SampleN(3, false)
	require.NoError(t, err)
	assert.Nil(t, pis2)
	assert.Equal(t, 1.0, s.AcceptanceRate())
}

func TestReversible(t *testing.T) {

	P0, _, C := reversibleCounts(10000)

	s, err := New(C, 3, WithReversible(true), WithSteps(20), WithRand(rand.New(rand.NewSource(7))))
	require.NoError(t, err)

	n := 300
	ps, pis, err := s.SampleN(n, true)
	require.NoError(t, err)

	mean := make([]float64, 9)
	for k, P := range ps {
		checkStochastic(t, P, 3)
		checkDetailedBalance(t, P, pis[k], 3)
		floats.Add(mean, P)
	}
	floats.Scale(1/float64(n), mean)

	for k := range mean {
		assert.InDelta(t, P0[k], mean[k], 0.02, "entry %d", k)
	}

	rate := s.AcceptanceRate()
	assert.True(t, rate > 0.1 && rate < 0.99, "acceptance rate %f", rate)
}

func TestReversibleSparse(t *testing.T) {

	// States 0 and 2 never exchange and state 1 has no self transitions
	C := []float64{
		3, 2, 0,
		4, 0, 1,
		0, 2, 5,
	}

	s, err := New(C, 3, WithReversible(true), WithRand(rand.New(rand.NewSource(8))))
	require.NoError(t, err)

	for k := 0; k < 200; k++ {
		P, pi, err := s.Sample()
		require.NoError(t, err)
		checkStochastic(t, P, 3)
		checkDetailedBalance(t, P, pi, 3)
		assert.Equal(t, 0.0, P[2])
		assert.Equal(t, 0.0, P[4])
		assert.Equal(t, 0.0, P[6])
		assert.True(t, P[1] > 0)
	}
}

func TestReversibleFixedPi(t *testing.T) {

	P0, pi0, C := reversibleCounts(10000)

	s, err := New(C, 3, WithReversible(true), WithStationaryVector(pi0), WithSteps(10),
		WithInitial(P0), WithRand(rand.New(rand.NewSource(9))))
	require.NoError(t, err)

	n := 300
	mean := make([]float64, 9)
	for k := 0; k < n; k++ {
		P, pi, err := s.Sample()
		require.NoError(t, err)
		checkStochastic(t, P, 3)
		assert.InDeltaSlice(t, pi0, pi, tol)
		checkDetailedBalance(t, P, pi, 3)
		floats.Add(mean, P)
	}
	floats.Scale(1/float64(n), mean)

	for k := range mean {
		assert.InDelta(t, P0[k], mean[k], 0.02, "entry %d", k)
	}
}

// entryMoments returns the sample mean and variance of entry k over ps.
func entryMoments(ps [][]float64, k int) (float64, float64) {
	x := make([]float64, len(ps))
	for i, P := range ps {
		x[i] = P[k]
	}
	return stat.MeanVariance(x, nil)
}

func TestReversibleTwoStateExact(t *testing.T) {

	// Every 2-state matrix is reversible, so the posterior is exactly
	// P[0,1] ~ Beta(3, 5) and P[1,0] ~ Beta(2, 7).
	C := []float64{5, 3, 2, 7}

	s, err := New(C, 2, WithReversible(true), WithSteps(5), WithRand(rand.New(rand.NewSource(21))))
	require.NoError(t, err)

	ps, _, err := s.SampleN(50000, false)
	require.NoError(t, err)

	m, v := entryMoments(ps, 1)
	assert.InDelta(t, 3.0/8, m, 0.01)
	assert.InDelta(t, 15.0/(64*9), v, 0.003)

	m, v = entryMoments(ps, 2)
	assert.InDelta(t, 2.0/9, m, 0.01)
	assert.InDelta(t, 14.0/(81*10), v, 0.003)
}

func TestReversibleFixedPiTwoStateExact(t *testing.T) {

	// With mu fixed the only free weight is x = mu_0 P[0,1], with density
	// proportional to x^4 (0.4-x)^5 (0.6-x)^7 on [0, 0.4].  Its moments
	// were found by quadrature: E[x] = 0.134874, Var[x] = 0.0024149.
	C := []float64{5, 3, 2, 7}
	mu := []float64{0.4, 0.6}

	s, err := New(C, 2, WithReversible(true), WithStationaryVector(mu), WithSteps(5),
		WithRand(rand.New(rand.NewSource(22))))
	require.NoError(t, err)

	ps, _, err := s.SampleN(50000, false)
	require.NoError(t, err)

	m, v := entryMoments(ps, 1)
	assert.InDelta(t, 0.134874/0.4, m, 0.01)
	assert.InDelta(t, 0.0024149/(0.4*0.4), v, 0.003)

	m, _ = entryMoments(ps, 2)
	assert.InDelta(t, 0.134874/0.6, m, 0.01)
}

func TestCallback(t *testing.T) {

	_, _, C := reversibleCounts(100)

	var calls int
	s, err := New(C, 3, WithReversible(true), WithCallback(func() error {
		calls++
		if calls == 3 {
			return fmt.Errorf("stop")
		}
		return nil
	}))
	require.NoError(t, err)

	ps, _, err := s.SampleN(10, false)
	require.Error(t, err)
	assert.Nil(t, ps)
	assert.True(t, errors.Is(err, errors.ErrCallback))
	assert.Equal(t, 3, calls)
}

func TestDeterminism(t *testing.T) {

	_, _, C := reversibleCounts(50)

	draw := func() [][]float64 {
		s, err := New(C, 3, WithReversible(true), WithRand(rand.New(rand.NewSource(42))))
		require.NoError(t, err)
		ps, _, err := s.SampleN(5, false)
		require.NoError(t, err)
		return ps
	}

	assert.Equal(t, draw(), draw())
}

func TestSingleState(t *testing.T) {

	for _, rev := range []bool{false, true} {
		s, err := New([]float64{0}, 1, WithReversible(rev))
		require.NoError(t, err)
		P, pi, err := s.Sample()
		require.NoError(t, err)
		assert.Equal(t, []float64{1}, P)
		assert.Equal(t, []float64{1}, pi)
	}
}
