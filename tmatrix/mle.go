package tmatrix

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// Default iteration limit and tolerance for the reversible estimator
	defaultMLEMaxIter = 10000
	defaultMLETol     = 1e-12
)

// EstimateNonReversible returns the maximum likelihood transition matrix for
// the n x n count matrix C, obtained by normalizing each row.  Rows without
// counts become unit rows on the diagonal.
func EstimateNonReversible(C []float64, n int) []float64 {

	P := make([]float64, n*n)
	copy(P, C)
	for i := 0; i < n; i++ {
		normalizeRow(P[i*n:(i+1)*n], i)
	}

	return P
}

// EstimateReversible returns the maximum likelihood transition matrix for
// the count matrix C subject to detailed balance.  It uses the
// self-consistent iteration
//
//	x_ij <- (c_ij + c_ji) / (c_i/x_i + c_j/x_j)
//
// on the symmetric weights x_ij = pi_i p_ij, where c_i and x_i are row sums.
// The second return value is false if the iteration did not converge within
// maxiter iterations; the last iterate is returned regardless.  Non-positive
// maxiter and tol select the defaults.
func EstimateReversible(C []float64, n int, maxiter int, tol float64) ([]float64, bool) {

	if maxiter <= 0 {
		maxiter = defaultMLEMaxIter
	}
	if tol <= 0 {
		tol = defaultMLETol
	}

	csum := make([]float64, n)
	for i := 0; i < n; i++ {
		csum[i] = floats.Sum(C[i*n : (i+1)*n])
	}

	X := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			X[i*n+j] = C[i*n+j] + C[j*n+i]
		}
	}
	if s := floats.Sum(X); s > 0 {
		floats.Scale(1/s, X)
	}

	xsum := make([]float64, n)
	xnew := make([]float64, n*n)
	converged := false
	for iter := 0; iter < maxiter; iter++ {

		for i := 0; i < n; i++ {
			xsum[i] = floats.Sum(X[i*n : (i+1)*n])
		}

		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				s := C[i*n+j] + C[j*n+i]
				if s == 0 {
					xnew[i*n+j] = 0
					xnew[j*n+i] = 0
					continue
				}
				v := s / (csum[i]/xsum[i] + csum[j]/xsum[j])
				xnew[i*n+j] = v
				xnew[j*n+i] = v
			}
		}

		if s := floats.Sum(xnew); s > 0 {
			floats.Scale(1/s, xnew)
		}

		var diff float64
		for k := range X {
			diff = math.Max(diff, math.Abs(xnew[k]-X[k]))
		}
		X, xnew = xnew, X

		if diff < tol {
			converged = true
			break
		}
	}

	P := X
	for i := 0; i < n; i++ {
		normalizeRow(P[i*n:(i+1)*n], i)
	}

	return P, converged
}
