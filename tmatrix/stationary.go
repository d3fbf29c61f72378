package tmatrix

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/kshedden/bhmm/errors"
)

// StationaryDistribution returns the stationary distribution of the
// irreducible n x n row-stochastic matrix P, i.e. the probability vector pi
// satisfying pi P = pi.
func StationaryDistribution(P []float64, n int) ([]float64, error) {

	if len(P) != n*n {
		return nil, errors.Invalidf("tmatrix", "StationaryDistribution", "matrix has %d entries, expected %d", len(P), n*n)
	}
	if n == 1 {
		return []float64{1}, nil
	}

	// Solve (P^T - I) pi = 0 with the last equation replaced by sum(pi) = 1
	a := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := P[j*n+i]
			if i == j {
				v -= 1
			}
			a.Set(i, j, v)
		}
	}
	for j := 0; j < n; j++ {
		a.Set(n-1, j, 1)
	}

	b := mat.NewVecDense(n, nil)
	b.SetVec(n-1, 1)

	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		// An ill-conditioned but non-singular system still has a usable solution
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, errors.WrapNumerical(err, "tmatrix", "StationaryDistribution", "linear solve")
		}
	}

	pi := make([]float64, n)
	for i := range pi {
		pi[i] = x.AtVec(i)
		// Round-off can produce tiny negative values
		if pi[i] < 0 {
			pi[i] = 0
		}
	}

	s := floats.Sum(pi)
	if !(s > 0) {
		return nil, errors.WrapNumerical(fmt.Errorf("degenerate solution %v", pi), "tmatrix", "StationaryDistribution", "normalization")
	}
	floats.Scale(1/s, pi)

	return pi, nil
}

// StationaryDistributionDisconnected returns a stationary distribution of P
// when the count matrix C that P was estimated from may be disconnected.
// The stationary distribution of each closed strongly connected set of C is
// computed separately, and the sets are weighted by their share of the
// total counts.  Transient states receive probability zero.
func StationaryDistributionDisconnected(P, C []float64, n int) ([]float64, error) {

	if len(C) != n*n {
		return nil, errors.Invalidf("tmatrix", "StationaryDistributionDisconnected", "count matrix has %d entries, expected %d", len(C), n*n)
	}

	if IsConnected(C, n) {
		return StationaryDistribution(P, n)
	}

	sets := ClosedSets(C, n)
	weights := make([]float64, len(sets))
	for k, set := range sets {
		for _, i := range set {
			weights[k] += floats.Sum(C[i*n : (i+1)*n])
		}
	}
	if floats.Sum(weights) == 0 {
		for k := range weights {
			weights[k] = 1
		}
	}
	floats.Scale(1/floats.Sum(weights), weights)

	pi := make([]float64, n)
	for k, set := range sets {
		if weights[k] == 0 {
			continue
		}

		// Restrict P to the set and renormalize the rows
		m := len(set)
		sub := make([]float64, m*m)
		for a, i := range set {
			row := sub[a*m : (a+1)*m]
			for b, j := range set {
				row[b] = P[i*n+j]
			}
			normalizeRow(row, a)
		}

		spi, err := StationaryDistribution(sub, m)
		if err != nil {
			return nil, err
		}
		for a, i := range set {
			pi[i] = weights[k] * spi[a]
		}
	}

	return pi, nil
}

// normalizeRow scales row to sum to 1.  A row with zero sum becomes the unit
// vector at position diag.
func normalizeRow(row []float64, diag int) {
	s := floats.Sum(row)
	if s > 0 {
		floats.Scale(1/s, row)
		return
	}
	for j := range row {
		row[j] = 0
	}
	row[diag] = 1
}
