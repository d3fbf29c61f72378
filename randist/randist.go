// Package randist generates random variates from a caller-supplied source.
//
// All functions take an explicit *rand.Rand so that a sampler seeded once
// reproduces the same chain bit for bit.
package randist

import (
	"math"
	"math/rand"
)

// Discrete draws an index from the distribution proportional to the
// non-negative weights in pr.  The weights need not sum to 1.  It returns -1
// if the weights sum to zero (or are not finite).
func Discrete(rng *rand.Rand, pr []float64) int {

	var tot float64
	for _, v := range pr {
		tot += v
	}
	if !(tot > 0) || math.IsInf(tot, 0) {
		return -1
	}

	u := rng.Float64() * tot
	p := 0.0
	last := -1
	for j, v := range pr {
		if v <= 0 {
			continue
		}
		p += v
		last = j
		if u < p {
			return j
		}
	}

	// Rounding can leave u just above the running sum
	return last
}

// Gamma generates a Gamma random variable with shape alp and scale bet, so
// that the mean is alp*bet and the variance is alp*bet^2.
// Based on gsl_ran_gamma
// https://raw.githubusercontent.com/ampl/gsl/master/randist/gamma.c
func Gamma(rng *rand.Rand, alp, bet float64) float64 {

	if alp <= 0 {
		panic("randist: Gamma shape must be positive")
	}

	if alp < 1 {
		u := rng.Float64()
		return Gamma(rng, 1+alp, bet) * math.Pow(u, 1/alp)
	}
	d := alp - 1.0/3.0
	c := (1.0 / 3.0) / math.Sqrt(d)

	var v, x float64
	for {
		for {
			x = rng.NormFloat64()
			v = 1 + c*x
			if v > 0 {
				break
			}
		}

		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			break
		}

		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			break
		}
	}

	return bet * d * v
}

// ChiSquare generates a chi-squared random variable with df degrees of
// freedom.
func ChiSquare(rng *rand.Rand, df float64) float64 {
	return Gamma(rng, df/2, 2)
}

// Dirichlet writes a Dirichlet draw with concentrations alpha into out.
// Components with non-positive concentration are set to zero and the draw
// is taken over the positive components only.  It returns false if no
// component is positive, in which case out is zeroed.
func Dirichlet(rng *rand.Rand, alpha, out []float64) bool {

	if len(out) != len(alpha) {
		panic("randist: Dirichlet length mismatch")
	}

	var tot float64
	for j, a := range alpha {
		if a > 0 {
			out[j] = Gamma(rng, a, 1)
			tot += out[j]
		} else {
			out[j] = 0
		}
	}

	if tot == 0 {
		// Either no positive component or every gamma draw underflowed.  In
		// the second case fall back to the largest concentration.
		j := -1
		for i, a := range alpha {
			if a > 0 && (j == -1 || a > alpha[j]) {
				j = i
			}
		}
		if j == -1 {
			return false
		}
		out[j] = 1
		return true
	}

	for j := range out {
		out[j] /= tot
	}

	return true
}

// Poisson generates a Poisson random variable with mean lambda.
func Poisson(rng *rand.Rand, lambda float64) float64 {

	if lambda <= 0 {
		panic("randist: Poisson mean must be positive")
	}

	// Split large means so that exp(-lambda) does not underflow
	if lambda > 500 {
		return Poisson(rng, lambda/2) + Poisson(rng, lambda/2)
	}

	L := math.Exp(-lambda)
	var k int64
	p := 1.0

	for p > L {
		k++
		p *= rng.Float64()
	}

	return float64(k - 1)
}
