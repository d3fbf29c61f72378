package bhmm

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kshedden/bhmm/errors"
	"github.com/kshedden/bhmm/hmmlib"
)

// symmetricPosterior returns a posterior whose samples are the symmetric
// two state matrices with off-diagonal entries 0.1, ..., 0.5.
func symmetricPosterior() *Posterior {
	var samples []*hmmlib.Model
	for _, a := range []float64{0.1, 0.2, 0.3, 0.4, 0.5} {
		samples = append(samples, &hmmlib.Model{
			NState: 2,
			Trans:  []float64{1 - a, a, a, 1 - a},
			Init:   []float64{a, 1 - a},
		})
	}
	return newPosterior(samples[0].Copy(), samples)
}

func TestPosteriorAll(t *testing.T) {

	post := symmetricPosterior()
	assert.Equal(t, 5, post.Len())

	var seen []int
	post.All()(func(k int, m *hmmlib.Model) bool {
		assert.Same(t, post.Samples[k], m)
		seen = append(seen, k)
		return k < 2
	})
	assert.Equal(t, []int{0, 1, 2}, seen)
}

func TestPosteriorStats(t *testing.T) {

	post := symmetricPosterior()

	ts, err := post.TransitionMatrixStats(0.95)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.7, 0.3, 0.3, 0.7}, ts.Mean, 1e-12)
	assert.InDelta(t, 0.158113883, ts.Std[1], 1e-8)
	assert.InDeltaSlice(t, []float64{0.5, 0.1, 0.1, 0.5}, ts.Lower, 1e-12)
	assert.InDeltaSlice(t, []float64{0.9, 0.5, 0.5, 0.9}, ts.Upper, 1e-12)

	is, err := post.InitialDistributionStats(0.5)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.3, 0.7}, is.Mean, 1e-12)

	// Symmetric matrices have a uniform stationary distribution
	ss, err := post.StationaryDistributionStats(0.9)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, ss.Mean, 1e-10)
	assert.InDeltaSlice(t, []float64{0, 0}, ss.Std, 1e-10)

	_, err = post.TransitionMatrixStats(1)
	assert.True(t, errors.IsInvalid(err))

	_, err = (&Posterior{}).InitialDistributionStats(0.95)
	assert.ErrorIs(t, err, errors.ErrEmptyInput)
}

func TestPosteriorPersistence(t *testing.T) {

	truth, _, obs := gaussianData(t, 2, 2, 100, 10)
	s, err := New(2, WithInitialModel(truth), WithNSamples(3), WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, s.Fit(obs))
	post := s.Posterior()

	check := func(got *Posterior) {
		assert.Equal(t, post.ID, got.ID)
		assert.True(t, post.Created.Equal(got.Created))
		assert.Equal(t, post.Prior, got.Prior)
		assert.Equal(t, post.Samples, got.Samples)
	}

	var buf bytes.Buffer
	require.NoError(t, post.Write(&buf))
	got, err := ReadPosterior(&buf)
	require.NoError(t, err)
	check(got)

	fname := filepath.Join(t.TempDir(), "posterior.gob.gz")
	require.NoError(t, post.Save(fname))
	got, err = LoadPosterior(fname)
	require.NoError(t, err)
	check(got)

	_, err = ReadPosterior(bytes.NewReader([]byte("not gzip")))
	assert.Error(t, err)
}
