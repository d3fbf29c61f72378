// Command generate simulates a data set from one of the test systems and
// writes it as a gzip-compressed gob file for use by estimate.
package main

import (
	"flag"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/kshedden/bhmm/hmmlib"
	"github.com/kshedden/bhmm/hmmsim"
)

func main() {

	var obsmodel, outname string
	flag.StringVar(&obsmodel, "obsmodel", "gaussian", "Observation distribution")
	flag.StringVar(&outname, "outname", "", "Output file name")

	var snr float64
	flag.Float64Var(&snr, "snr", 8, "Signal-to-noise ratio for Poisson observations")

	var nState, nComp, nTraj, nTime int
	flag.IntVar(&nState, "nstate", 3, "Number of states")
	flag.IntVar(&nComp, "ncomp", 1, "Number of components, or symbols for discrete observations")
	flag.IntVar(&nTraj, "ntraj", 5, "Number of trajectories")
	flag.IntVar(&nTime, "ntime", 1000, "Number of time points per trajectory")

	var seed int64
	flag.Int64Var(&seed, "seed", 0, "Random seed, 0 to seed from the clock")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if outname == "" {
		logger.Error("'outname' is a required argument")
		os.Exit(1)
	}

	kind, err := hmmlib.ParseOutputKind(obsmodel)
	if err != nil {
		logger.Error("invalid observation model", "error", err)
		os.Exit(1)
	}

	m, err := hmmsim.System(kind, nState, nComp, snr)
	if err != nil {
		logger.Error("cannot build test system", "error", err)
		os.Exit(1)
	}

	if seed == 0 {
		seed = time.Now().UTC().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	states, obs, err := hmmsim.Simulate(m, nTraj, nTime, rng)
	if err != nil {
		logger.Error("simulation failed", "error", err)
		os.Exit(1)
	}

	ds := &hmmsim.Dataset{Model: m, States: states, Obs: obs}
	if err := ds.Save(outname); err != nil {
		logger.Error("cannot write data set", "error", err)
		os.Exit(1)
	}

	logger.Info("wrote data set", "file", outname, "obsmodel", kind, "nstate", nState,
		"ntraj", nTraj, "ntime", nTime, "seed", seed)
}
