package tmatrix

import (
	"math/rand"

	"github.com/kshedden/bhmm/randist"
)

// nonrevSampler draws each row of P independently from its Dirichlet
// posterior.  The chain has no memory, so every update is an exact draw.
type nonrevSampler struct {
	n   int
	rng *rand.Rand

	// Posterior counts Z = C - 1 and Dirichlet parameters alpha = Z + 1
	z     []float64
	alpha []float64

	// The count matrix, used for the disconnected stationary distribution
	c []float64

	p []float64
}

func newNonrevSampler(C []float64, n int, rng *rand.Rand) *nonrevSampler {

	s := &nonrevSampler{
		n:     n,
		rng:   rng,
		z:     make([]float64, n*n),
		alpha: make([]float64, n*n),
		c:     C,
		p:     make([]float64, n*n),
	}

	for k, v := range C {
		s.z[k] = v - 1
		s.alpha[k] = s.z[k] + 1
	}

	// Start at the posterior mean
	copy(s.p, s.alpha)
	for i := 0; i < n; i++ {
		row := s.p[i*n : (i+1)*n]
		for j := range row {
			if row[j] < 0 {
				row[j] = 0
			}
		}
		normalizeRow(row, i)
	}

	return s
}

func (s *nonrevSampler) update(nsteps int) {

	n := s.n
	for i := 0; i < n; i++ {
		row := s.p[i*n : (i+1)*n]

		// Only positive concentrations take part in the draw.  A row without
		// counts stays in its state.
		if !randist.Dirichlet(s.rng, s.alpha[i*n:(i+1)*n], row) {
			normalizeRow(row, i)
		}
	}
}

func (s *nonrevSampler) matrix() []float64 {
	return append([]float64(nil), s.p...)
}

func (s *nonrevSampler) statdist() ([]float64, error) {
	return StationaryDistributionDisconnected(s.p, s.c, s.n)
}

func (s *nonrevSampler) acceptance() (int, int) {
	return 0, 0
}
