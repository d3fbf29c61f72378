package bhmm

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/kshedden/bhmm/errors"
	"github.com/kshedden/bhmm/hmmlib"
)

// Summary holds elementwise statistics of a quantity over the posterior
// samples.  Lower and Upper bound the central interval with the requested
// coverage.
type Summary struct {
	Mean  []float64
	Std   []float64
	Lower []float64
	Upper []float64
}

// TransitionMatrixStats summarizes the transition matrices of the samples.
func (p *Posterior) TransitionMatrixStats(conf float64) (*Summary, error) {
	return p.summarize("TransitionMatrixStats", conf, func(m *hmmlib.Model) ([]float64, error) {
		return m.Trans, nil
	})
}

// InitialDistributionStats summarizes the initial distributions of the
// samples.
func (p *Posterior) InitialDistributionStats(conf float64) (*Summary, error) {
	return p.summarize("InitialDistributionStats", conf, func(m *hmmlib.Model) ([]float64, error) {
		return m.Init, nil
	})
}

// StationaryDistributionStats summarizes the stationary distributions of
// the sampled transition matrices.
func (p *Posterior) StationaryDistributionStats(conf float64) (*Summary, error) {
	return p.summarize("StationaryDistributionStats", conf, func(m *hmmlib.Model) ([]float64, error) {
		return m.StationaryDistribution()
	})
}

func (p *Posterior) summarize(method string, conf float64, f func(*hmmlib.Model) ([]float64, error)) (*Summary, error) {

	if !(conf > 0 && conf < 1) {
		return nil, errors.Invalidf("bhmm", method, "confidence level must be in (0, 1), got %v", conf)
	}
	if len(p.Samples) == 0 {
		return nil, errors.WrapInvalid(errors.ErrEmptyInput, "bhmm", method, "summarize samples")
	}

	// draws[j] holds element j of every sample
	var draws [][]float64
	for k, m := range p.Samples {
		x, err := f(m)
		if err != nil {
			return nil, errors.Wrap(err, "bhmm", method, "evaluate sample")
		}
		if k == 0 {
			draws = make([][]float64, len(x))
			for j := range draws {
				draws[j] = make([]float64, len(p.Samples))
			}
		}
		for j, v := range x {
			draws[j][k] = v
		}
	}

	q := (1 - conf) / 2
	s := &Summary{
		Mean:  make([]float64, len(draws)),
		Std:   make([]float64, len(draws)),
		Lower: make([]float64, len(draws)),
		Upper: make([]float64, len(draws)),
	}
	for j, x := range draws {
		s.Mean[j], s.Std[j] = stat.MeanStdDev(x, nil)
		if len(x) < 2 {
			s.Std[j] = 0
		}
		sort.Float64s(x)
		s.Lower[j] = stat.Quantile(q, stat.Empirical, x, nil)
		s.Upper[j] = stat.Quantile(1-q, stat.Empirical, x, nil)
	}

	return s, nil
}
