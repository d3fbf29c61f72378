package tmatrix

import (
	"math"
	"math/rand"
)

// revpiSampler samples reversible transition matrices with a fixed
// stationary vector mu.  With X[i,j] = mu_i P[i,j], the row sums of X are
// pinned to mu, so only the off-diagonal weights are free and each diagonal
// weight is the remainder mu_i - sum_{k != i} X[i,k].  An off-diagonal weight
// X[i,j] is updated by an independent uniform proposal on the interval that
// keeps both X[i,i] and X[j,j] non-negative.
type revpiSampler struct {
	n   int
	rng *rand.Rand

	c  []float64
	mu []float64

	x []float64

	// Upper-triangular off-diagonal support entries and their exponents
	idx  [][2]int
	expo []float64

	accepted, proposed int
}

func newRevpiSampler(C []float64, n int, mu []float64, P0 []float64, rng *rand.Rand) *revpiSampler {

	s := &revpiSampler{
		n:   n,
		rng: rng,
		c:   C,
		mu:  mu,
		x:   make([]float64, n*n),
	}

	deg := make([]int, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			e := C[i*n+j] + C[j*n+i]
			if e <= 0 {
				continue
			}
			s.idx = append(s.idx, [2]int{i, j})
			// Sparse prior: one count less than the symmetrized counts
			s.expo = append(s.expo, e-1)
			deg[i]++
			deg[j]++
		}
	}

	// Default starting point: every state keeps at least half of its mass
	// on the diagonal.
	for _, ij := range s.idx {
		i, j := ij[0], ij[1]
		v := 0.5 * math.Min(mu[i]/float64(deg[i]), mu[j]/float64(deg[j]))
		s.x[i*n+j] = v
		s.x[j*n+i] = v
	}

	if P0 != nil {
		s.tryStart(P0)
	}

	for i := 0; i < n; i++ {
		s.x[i*n+i] = s.diag(i)
	}

	return s
}

// tryStart replaces the default starting weights with those implied by P0
// if they are feasible and positive on the support.
func (s *revpiSampler) tryStart(P0 []float64) {

	n := s.n
	x := make([]float64, n*n)
	for _, ij := range s.idx {
		i, j := ij[0], ij[1]
		v := math.Min(s.mu[i]*P0[i*n+j], s.mu[j]*P0[j*n+i])
		if !(v > 0) {
			return
		}
		x[i*n+j] = v
		x[j*n+i] = v
	}

	for i := 0; i < n; i++ {
		var off float64
		for j := 0; j < n; j++ {
			if j != i {
				off += x[i*n+j]
			}
		}
		if off > s.mu[i] {
			return
		}
	}

	copy(s.x, x)
}

// diag returns the diagonal weight of row i implied by the off-diagonal
// weights.
func (s *revpiSampler) diag(i int) float64 {
	n := s.n
	d := s.mu[i]
	for j := 0; j < n; j++ {
		if j != i {
			d -= s.x[i*n+j]
		}
	}
	if d < 0 {
		d = 0
	}
	return d
}

// xlogy returns a*log(b), with the convention 0*log(0) = 0.
func xlogy(a, b float64) float64 {
	if a == 0 {
		return 0
	}
	return a * math.Log(b)
}

func (s *revpiSampler) update(nsteps int) {

	n := s.n
	for step := 0; step < nsteps; step++ {
		for k, ij := range s.idx {
			i, j := ij[0], ij[1]
			old := s.x[i*n+j]
			dii := s.x[i*n+i]
			djj := s.x[j*n+j]

			upper := math.Min(dii+old, djj+old)
			if !(upper > 0) {
				continue
			}
			nw := upper * s.rng.Float64()
			if nw == 0 {
				continue
			}
			nii := dii + old - nw
			njj := djj + old - nw

			cii := s.c[i*n+i]
			cjj := s.c[j*n+j]
			dl := xlogy(s.expo[k], nw) - xlogy(s.expo[k], old) +
				xlogy(cii, nii) - xlogy(cii, dii) +
				xlogy(cjj, njj) - xlogy(cjj, djj)

			s.proposed++
			if math.IsNaN(dl) {
				continue
			}
			if math.Log(s.rng.Float64()) < dl {
				s.x[i*n+j] = nw
				s.x[j*n+i] = nw
				s.x[i*n+i] = nii
				s.x[j*n+j] = njj
				s.accepted++
			}
		}
	}
}

func (s *revpiSampler) matrix() []float64 {
	n := s.n
	P := make([]float64, n*n)
	for i := 0; i < n; i++ {
		row := P[i*n : (i+1)*n]
		for j := 0; j < n; j++ {
			row[j] = s.x[i*n+j] / s.mu[i]
		}
		normalizeRow(row, i)
	}
	return P
}

func (s *revpiSampler) statdist() ([]float64, error) {
	return append([]float64(nil), s.mu...), nil
}

func (s *revpiSampler) acceptance() (int, int) {
	return s.accepted, s.proposed
}
