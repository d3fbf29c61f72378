package tmatrix

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// revSampler runs a Metropolis-Hastings chain over reversible transition
// matrices.  The state is the symmetric weight matrix X with
// X[i,j] = pi_i P[i,j], kept normalized to unit total mass.  Each entry on
// the support is updated in turn by a Gaussian random walk on log X[i,j].
// In log coordinates the posterior of the sparse prior is
//
//	prod_{i,j} (X[i,j]/x_i)^C[i,j]
//
// with x_i the row sums of X, which is invariant to rescaling X.
//
// The support is {(i,j): C[i,j] + C[j,i] > 0}; entries off the support are
// fixed at zero.
type revSampler struct {
	n   int
	rng *rand.Rand

	c    []float64 // counts
	csum []float64 // row sums of the counts

	x    []float64 // symmetric weights
	xsum []float64 // row sums of x

	// Upper-triangular support entries with their exponents and step sizes
	idx   [][2]int
	expo  []float64
	sigma []float64

	accepted, proposed int
}

func newRevSampler(C []float64, n int, P0 []float64, rng *rand.Rand) *revSampler {

	s := &revSampler{
		n:    n,
		rng:  rng,
		c:    C,
		csum: make([]float64, n),
		x:    make([]float64, n*n),
		xsum: make([]float64, n),
	}

	for i := 0; i < n; i++ {
		s.csum[i] = floats.Sum(C[i*n : (i+1)*n])
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			e := C[i*n+j]
			if i != j {
				e += C[j*n+i]
			}
			if e <= 0 {
				continue
			}
			s.idx = append(s.idx, [2]int{i, j})
			s.expo = append(s.expo, e)
			s.sigma = append(s.sigma, math.Min(1, 1/math.Sqrt(e)))
		}
	}

	s.initWeights(P0)

	return s
}

// initWeights starts the chain from P0 if it is usable, and otherwise from
// the symmetrized counts.
func (s *revSampler) initWeights(P0 []float64) {

	n := s.n

	if P0 != nil {
		if pi, err := StationaryDistribution(P0, n); err == nil {
			for k, ij := range s.idx {
				i, j := ij[0], ij[1]
				v := (pi[i]*P0[i*n+j] + pi[j]*P0[j*n+i]) / 2
				if !(v > 0) {
					v = s.expo[k] * 1e-8
				}
				s.setWeight(i, j, v)
			}
			s.normalize()
			return
		}
	}

	for k, ij := range s.idx {
		s.setWeight(ij[0], ij[1], s.expo[k])
	}
	s.normalize()
}

func (s *revSampler) setWeight(i, j int, v float64) {
	s.x[i*s.n+j] = v
	s.x[j*s.n+i] = v
}

// normalize rescales x to unit total mass and recomputes the row sums.
func (s *revSampler) normalize() {
	if t := floats.Sum(s.x); t > 0 {
		floats.Scale(1/t, s.x)
	}
	for i := 0; i < s.n; i++ {
		s.xsum[i] = floats.Sum(s.x[i*s.n : (i+1)*s.n])
	}
}

func (s *revSampler) update(nsteps int) {

	n := s.n
	for step := 0; step < nsteps; step++ {
		for k, ij := range s.idx {
			i, j := ij[0], ij[1]
			old := s.x[i*n+j]
			du := s.sigma[k] * s.rng.NormFloat64()
			nw := old * math.Exp(du)
			if !(nw > 0) || math.IsInf(nw, 0) {
				continue
			}

			var dl float64
			if i == j {
				xi := s.xsum[i] - old + nw
				dl = s.expo[k]*du - s.csum[i]*(math.Log(xi)-math.Log(s.xsum[i]))
				s.proposed++
				if math.Log(s.rng.Float64()) < dl {
					s.x[i*n+i] = nw
					s.xsum[i] = xi
					s.accepted++
				}
				continue
			}

			xi := s.xsum[i] - old + nw
			xj := s.xsum[j] - old + nw
			dl = s.expo[k]*du - s.csum[i]*(math.Log(xi)-math.Log(s.xsum[i])) -
				s.csum[j]*(math.Log(xj)-math.Log(s.xsum[j]))
			s.proposed++
			if math.Log(s.rng.Float64()) < dl {
				s.setWeight(i, j, nw)
				s.xsum[i] = xi
				s.xsum[j] = xj
				s.accepted++
			}
		}

		// The target is scale invariant, so fixing the total mass only
		// removes a direction the chain would otherwise drift along.
		s.normalize()
	}
}

func (s *revSampler) matrix() []float64 {
	n := s.n
	P := make([]float64, n*n)
	for i := 0; i < n; i++ {
		row := P[i*n : (i+1)*n]
		copy(row, s.x[i*n:(i+1)*n])
		normalizeRow(row, i)
	}
	return P
}

func (s *revSampler) statdist() ([]float64, error) {
	pi := append([]float64(nil), s.xsum...)
	t := floats.Sum(pi)
	if !(t > 0) {
		return StationaryDistribution(s.matrix(), s.n)
	}
	floats.Scale(1/t, pi)
	return pi, nil
}

func (s *revSampler) acceptance() (int, int) {
	return s.accepted, s.proposed
}
