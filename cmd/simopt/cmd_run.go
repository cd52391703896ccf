package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/simoptlab/simopt/internal/cache"
	"github.com/simoptlab/simopt/internal/evaluation"
	"github.com/simoptlab/simopt/internal/models"
	"github.com/simoptlab/simopt/internal/oracle"
	"github.com/simoptlab/simopt/internal/problem"
	"github.com/simoptlab/simopt/internal/reporting"
	"github.com/simoptlab/simopt/internal/solver"
)

var (
	runOutputPath   string
	runCacheDir     string
	runDisableCache bool
	runStartPoint   string
	runIterations   int
	runReplications int
	runSelector     string
	runSeed         int64
	runWorkers      int
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <problem.yaml>",
		Short: "Run the solver against a problem definition",
		Long: `Run the stochastic neighborhood solver against a problem definition.

The problem file declares the model, its inputs with bounds and granularity,
the required responses, the objective, and any constraints. Evaluations run
against the built-in queueing simulator and are cached on disk between runs.`,
		Args: cobra.ExactArgs(1),
		RunE: runCommandE,
	}

	cmd.Flags().StringVarP(&runOutputPath, "output", "o", "", "Output JSON file for the run report")
	cmd.Flags().StringVar(&runCacheDir, "cache-dir", ".simopt-cache", "Directory for the on-disk solution cache")
	cmd.Flags().BoolVar(&runDisableCache, "no-cache", false, "Disable the solution cache")
	cmd.Flags().StringVar(&runStartPoint, "start", "", "Start point as name=value pairs, e.g. \"servers=4,service_rate=1.5\" (default: midpoint of the input ranges)")
	cmd.Flags().IntVar(&runIterations, "iterations", 0, "Maximum solver iterations (default 25)")
	cmd.Flags().IntVar(&runReplications, "replications", 0, "Replications per proposed point (default 5)")
	cmd.Flags().StringVar(&runSelector, "selector", "random", "Point selection strategy: random, closest, furthest, least_utilized")
	cmd.Flags().Int64Var(&runSeed, "seed", 0, "Random seed (default: time-based)")
	cmd.Flags().IntVar(&runWorkers, "workers", 0, "Parallel oracle calls for distinct points (default 1, sequential)")

	return cmd
}

func runCommandE(cmd *cobra.Command, args []string) error {
	def, err := problem.Load(args[0])
	if err != nil {
		return fmt.Errorf("failed to load problem: %w", err)
	}

	cfg := solver.DefaultConfig()
	if runIterations > 0 {
		cfg.MaxIterations = runIterations
	}
	if runReplications > 0 {
		cfg.Replications = runReplications
	}
	if runSeed != 0 {
		cfg.Seed = runSeed
	}

	selector, err := solver.NewSelector(solver.SelectorKind(runSelector), nil)
	if err != nil {
		return err
	}

	opts := []evaluation.Option{}
	if !runDisableCache {
		absDir, err := filepath.Abs(runCacheDir)
		if err != nil {
			return fmt.Errorf("resolving cache directory: %w", err)
		}
		opts = append(opts, evaluation.WithCache(cache.NewFileCache(absDir, def, def.ObjectiveName())))
	}
	if runWorkers > 1 {
		opts = append(opts, evaluation.WithMaxParallel(runWorkers))
	}

	eval := evaluation.New(def, demoOracle(def.ModelID, cfg.Seed), opts...)
	s := solver.New(def, eval, cfg, selector)

	start, err := startPoint(def, runStartPoint)
	if err != nil {
		return err
	}

	result, err := s.Run(cmd.Context(), start)
	if err != nil {
		return fmt.Errorf("solver run failed: %w", err)
	}

	report := reporting.NewRunReport(def.Name, def.ModelID, result)
	if runOutputPath != "" {
		if err := report.WriteJSON(runOutputPath); err != nil {
			return err
		}
		fmt.Printf("Report written to %s\n", runOutputPath)
	}
	if term.IsTerminal(int(os.Stdout.Fd())) || runOutputPath == "" {
		report.RenderTable(os.Stdout)
	}
	return nil
}

// demoOracle serves the built-in queueing model under the model id the
// problem file declares.
func demoOracle(modelID string, seed int64) *oracle.SimOracle {
	o := oracle.NewSimOracle(seed)
	o.Register(modelID, oracle.MMCQueueModel(oracle.MMCQueueConfig{
		ArrivalRate:    5,
		Customers:      2000,
		ServerCost:     10,
		WaitCostFactor: 50,
	}))
	return o
}

// startPoint parses --start, falling back to the midpoint of every input
// range.
func startPoint(def *problem.Definition, spec string) (models.ModelInputs, error) {
	if spec != "" {
		return parsePoint(def.ModelID, spec)
	}
	values := make(map[string]float64, len(def.Inputs))
	for _, in := range def.Inputs {
		values[in.Name] = (in.Lower + in.Upper) / 2
	}
	return models.NewModelInputs(def.ModelID, values)
}
