package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/simoptlab/simopt/internal/cache"
	"github.com/simoptlab/simopt/internal/evaluation"
	"github.com/simoptlab/simopt/internal/models"
	"github.com/simoptlab/simopt/internal/problem"
)

var (
	evalPoints       []string
	evalReplications int
	evalCRN          bool
	evalCacheDir     string
	evalNoCache      bool
	evalSeed         int64
)

func newEvaluateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate <problem.yaml>",
		Short: "Evaluate explicit points without running the solver",
		Long: `Evaluate one or more points against the problem's model and print the
resulting estimates as JSON. Useful for inspecting the response surface
or warming the cache before a solver run.`,
		Args: cobra.ExactArgs(1),
		RunE: evaluateCommandE,
	}

	cmd.Flags().StringArrayVarP(&evalPoints, "point", "p", nil, "Point as name=value pairs, e.g. \"servers=4,service_rate=1.5\" (repeatable)")
	cmd.Flags().IntVarP(&evalReplications, "replications", "n", 10, "Replications per point")
	cmd.Flags().BoolVar(&evalCRN, "crn", false, "Use common random numbers across points (requires at least two points, disables caching)")
	cmd.Flags().StringVar(&evalCacheDir, "cache-dir", ".simopt-cache", "Directory for the on-disk solution cache")
	cmd.Flags().BoolVar(&evalNoCache, "no-cache", false, "Disable the solution cache")
	cmd.Flags().Int64Var(&evalSeed, "seed", 0, "Random seed (default: time-based)")

	_ = cmd.MarkFlagRequired("point")

	return cmd
}

func evaluateCommandE(cmd *cobra.Command, args []string) error {
	def, err := problem.Load(args[0])
	if err != nil {
		return fmt.Errorf("failed to load problem: %w", err)
	}

	points := make([]models.ModelInputs, 0, len(evalPoints))
	for _, spec := range evalPoints {
		pt, err := parsePoint(def.ModelID, spec)
		if err != nil {
			return err
		}
		points = append(points, pt)
	}

	cachingAllowed := !evalNoCache && !evalCRN
	req, err := models.NewEvaluationRequest(def.ModelID, points, evalReplications, evalCRN, cachingAllowed)
	if err != nil {
		return err
	}

	opts := []evaluation.Option{}
	if cachingAllowed {
		absDir, err := filepath.Abs(evalCacheDir)
		if err != nil {
			return fmt.Errorf("resolving cache directory: %w", err)
		}
		opts = append(opts, evaluation.WithCache(cache.NewFileCache(absDir, def, def.ObjectiveName())))
	}

	eval := evaluation.New(def, demoOracle(def.ModelID, evalSeed), opts...)
	solutions, err := eval.Evaluate(cmd.Context(), req, 0)
	if err != nil {
		return err
	}

	type pointOutput struct {
		Inputs    map[string]float64 `json:"inputs"`
		Bad       bool               `json:"bad,omitempty"`
		Objective float64            `json:"objective,omitempty"`
		Count     int                `json:"count"`
		Responses map[string]float64 `json:"responses,omitempty"`
	}

	out := make([]pointOutput, 0, len(solutions))
	for _, sol := range solutions {
		po := pointOutput{
			Inputs: sol.Inputs().Values,
			Count:  sol.Count(),
		}
		if sol.IsBad() {
			po.Bad = true
		} else {
			po.Objective = sol.EstimatedObjective().Average()
			po.Responses = map[string]float64{}
			for _, name := range sol.Responses().Names() {
				est, _ := sol.Responses().Get(name)
				po.Responses[name] = est.Average()
			}
		}
		out = append(out, po)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// parsePoint parses "name=value,name=value" into model inputs.
func parsePoint(modelID, spec string) (models.ModelInputs, error) {
	values := map[string]float64{}
	for _, pair := range strings.Split(spec, ",") {
		name, raw, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found {
			return models.ModelInputs{}, fmt.Errorf("invalid point component %q, expected name=value", pair)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return models.ModelInputs{}, fmt.Errorf("invalid value for input %q: %w", name, err)
		}
		values[strings.TrimSpace(name)] = v
	}
	return models.NewModelInputs(modelID, values)
}
