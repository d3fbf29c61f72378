// Command estimate draws hidden Markov models from their posterior
// distribution given a data set written by generate.
package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"

	"github.com/kshedden/bhmm/bhmm"
	"github.com/kshedden/bhmm/config"
	"github.com/kshedden/bhmm/hmmlib"
	"github.com/kshedden/bhmm/hmmsim"
)

// report compares the states reconstructed by m with the true states and
// returns the total number of mismatches.  State labels are not aligned,
// so the counts are only meaningful when the chain keeps the labels of
// the generating model.
func report(logger *slog.Logger, m *hmmlib.Model, ds *hmmsim.Dataset) (int, error) {

	pstate, err := m.ReconstructStates(ds.Obs)
	if err != nil {
		return 0, err
	}

	var t, tn int
	for p := range ds.States {
		q, n := hmmlib.CompareStates(pstate[p], ds.States[p])
		logger.Info("reconstruction errors", "trajectory", p, "errors", q, "n", n)
		t += q
		tn += n
	}
	logger.Info("total reconstruction errors", "errors", t, "n", tn)

	return t, nil
}

// overrideFlags copies the flags that were set on the command line into cfg.
func overrideFlags(cfg *config.Config, fc *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "nstate":
			cfg.NState = fc.NState
		case "obsmodel":
			cfg.Output = fc.Output
		case "ncomp":
			cfg.NComp = fc.NComp
		case "reversible":
			cfg.Reversible = fc.Reversible
		case "stationary":
			cfg.Stationary = fc.Stationary
		case "nsteps":
			cfg.TransitionMatrixSamplingSteps = fc.TransitionMatrixSamplingSteps
		case "nburn":
			cfg.NBurn = fc.NBurn
		case "nthin":
			cfg.NThin = fc.NThin
		case "nsamples":
			cfg.NSamples = fc.NSamples
		case "seed":
			cfg.Seed = fc.Seed
		case "metrics":
			cfg.MetricsAddr = fc.MetricsAddr
		case "loglevel":
			cfg.LogLevel = fc.LogLevel
		}
	})
}

func serveMetrics(logger *slog.Logger, addr string, reg *prometheus.Registry) {

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
}

func main() {

	gobname := flag.String("gobfile", "", "The data file")
	confname := flag.String("config", "", "YAML configuration file")
	outname := flag.String("outname", "", "File for the posterior samples")
	reconstruct := flag.Bool("reconstruct", true, "If false, do not reconstruct states")

	def := config.Default()
	fc := config.Default()
	flag.IntVar(&fc.NState, "nstate", def.NState, "Number of states")
	flag.StringVar(&fc.Output, "obsmodel", def.Output, "Observation distribution")
	flag.IntVar(&fc.NComp, "ncomp", def.NComp, "Number of components")
	flag.BoolVar(&fc.Reversible, "reversible", def.Reversible, "Sample reversible transition matrices")
	flag.BoolVar(&fc.Stationary, "stationary", def.Stationary, "Use the stationary distribution as initial distribution")
	flag.IntVar(&fc.TransitionMatrixSamplingSteps, "nsteps", def.TransitionMatrixSamplingSteps, "Inner chain steps per transition matrix draw")
	flag.IntVar(&fc.NBurn, "nburn", def.NBurn, "Number of burn-in sweeps")
	flag.IntVar(&fc.NThin, "nthin", def.NThin, "Number of sweeps per sample")
	flag.IntVar(&fc.NSamples, "nsamples", def.NSamples, "Number of samples")
	flag.Int64Var(&fc.Seed, "seed", def.Seed, "Random seed")
	flag.StringVar(&fc.MetricsAddr, "metrics", def.MetricsAddr, "Address for the Prometheus endpoint")
	flag.StringVar(&fc.LogLevel, "loglevel", def.LogLevel, "Log level")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *gobname == "" {
		logger.Error("'gobfile' is a required argument")
		os.Exit(1)
	}

	cfg, err := config.LoadOrDefault(*confname)
	if err != nil {
		logger.Error("cannot load configuration", "error", err)
		os.Exit(1)
	}
	overrideFlags(cfg, fc)

	opts, err := cfg.SamplerOptions()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	level, _ := cfg.Level()
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ds, err := hmmsim.LoadDataset(*gobname)
	if err != nil {
		logger.Error("cannot read data set", "error", err)
		os.Exit(1)
	}

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics, err := bhmm.NewMetrics(reg)
		if err != nil {
			logger.Error("cannot register metrics", "error", err)
			os.Exit(1)
		}
		opts = append(opts, bhmm.WithMetrics(metrics))
		serveMetrics(logger, cfg.MetricsAddr, reg)
	}

	bar := progressbar.New(cfg.NSamples)
	opts = append(opts, bhmm.WithLogger(logger), bhmm.WithCallback(func() error {
		return bar.Add(1)
	}))

	sampler, err := bhmm.New(cfg.NState, opts...)
	if err != nil {
		logger.Error("cannot configure sampler", "error", err)
		os.Exit(1)
	}

	if err := sampler.Fit(ds.Obs); err != nil {
		logger.Error("sampling failed", "error", err)
		os.Exit(1)
	}
	_ = bar.Finish()

	post := sampler.Posterior()
	if post.Len() == 0 {
		logger.Info("no samples collected")
		return
	}

	ts, err := post.TransitionMatrixStats(cfg.Confidence)
	if err != nil {
		logger.Error("cannot summarize transition matrices", "error", err)
		os.Exit(1)
	}
	logger.Info("transition matrix", "mean", ts.Mean, "std", ts.Std, "lower", ts.Lower, "upper", ts.Upper)
	if ds.Model != nil {
		logger.Info("generating transition matrix", "trans", ds.Model.Trans)
	}

	ss, err := post.StationaryDistributionStats(cfg.Confidence)
	if err != nil {
		logger.Error("cannot summarize stationary distributions", "error", err)
		os.Exit(1)
	}
	logger.Info("stationary distribution", "mean", ss.Mean, "lower", ss.Lower, "upper", ss.Upper)

	if *outname != "" {
		if err := post.Save(*outname); err != nil {
			logger.Error("cannot write posterior", "error", err)
			os.Exit(1)
		}
		logger.Info("wrote posterior", "file", *outname, "id", post.ID)
	}

	if !*reconstruct || ds.States == nil {
		return
	}

	// Reconstruct with the last sample
	if _, err := report(logger, post.Samples[post.Len()-1], ds); err != nil {
		logger.Error("reconstruction failed", "error", err)
		os.Exit(1)
	}
}
