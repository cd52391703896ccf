// Package solver runs a stochastic neighborhood search on top of the
// evaluator: propose points around the incumbent, evaluate them through the
// cache-then-oracle pipeline, retain the best in a bounded archive, and
// finish with a CRN clean-up pass over the statistically tied leaders.
package solver

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/simoptlab/simopt/internal/archive"
	"github.com/simoptlab/simopt/internal/evaluation"
	"github.com/simoptlab/simopt/internal/models"
	"github.com/simoptlab/simopt/internal/problem"
)

// Config tunes the search loop.
type Config struct {
	MaxIterations      int     // hard iteration bound
	Replications       int     // replications per proposed point
	NoImprovementLimit int     // stop after this many non-improving iterations
	StepScale          float64 // neighborhood step in multiples of input granularity
	ConfidenceLevel    float64 // level for the clean-up comparator
	IndifferenceZone   float64 // practical-equivalence width for the clean-up
	ArchiveCapacity    int     // retention bound for the solution archive
	CleanupReps        int     // CRN replications per finalist in the clean-up pass
	Seed               int64
}

// DefaultConfig returns a workable configuration for small problems.
func DefaultConfig() Config {
	return Config{
		MaxIterations:      25,
		Replications:       5,
		NoImprovementLimit: 5,
		StepScale:          1,
		ConfidenceLevel:    0.95,
		IndifferenceZone:   0,
		ArchiveCapacity:    archive.DefaultCapacity,
		CleanupReps:        10,
		Seed:               time.Now().UnixNano(),
	}
}

// Result is the outcome of one solver run.
type Result struct {
	Best         *models.Solution   // final incumbent after clean-up
	PossiblyBest []*models.Solution // entries statistically tied with the best
	Iterations   int
	Evaluator    evaluation.Counts // counter snapshot at completion
	Elapsed      time.Duration
}

// Solver is a stochastic neighborhood search over a problem's input space.
type Solver struct {
	cfg       Config
	problem   *problem.Definition
	evaluator *evaluation.Evaluator
	selector  Selector
	rng       *rand.Rand
}

// New creates a solver. A nil selector defaults to random selection.
func New(def *problem.Definition, eval *evaluation.Evaluator, cfg Config, selector Selector) *Solver {
	if selector == nil {
		selector = RandomSelector{}
	}
	return &Solver{
		cfg:       cfg,
		problem:   def,
		evaluator: eval,
		selector:  selector,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Run searches from the given start point until the iteration budget or the
// no-improvement limit is reached, then runs the CRN clean-up pass.
func (s *Solver) Run(ctx context.Context, start models.ModelInputs) (*Result, error) {
	startTime := time.Now()

	start = s.problem.RoundInputs(start)
	if !s.problem.InputRangeFeasible(start) {
		return nil, fmt.Errorf("start point %s is outside the input ranges", start.Key())
	}

	arch := archive.NewSolutions(archive.WithCapacity(s.cfg.ArchiveCapacity))

	current, err := s.evaluatePoints(ctx, []models.ModelInputs{start}, 0, arch)
	if err != nil {
		return nil, err
	}
	incumbent := current[0]
	bestValue := incumbent.PenalizedObjective()

	iterations := 0
	stale := 0
	for it := 1; it <= s.cfg.MaxIterations; it++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iterations = it

		neighbors := s.neighborhood(incumbent.Inputs())
		if len(neighbors) == 0 {
			slog.Debug("no feasible neighbors", "iteration", it, "point", incumbent.Key())
			break
		}

		evaluated, err := s.evaluatePoints(ctx, neighbors, it, arch)
		if err != nil {
			return nil, err
		}

		improved := false
		for _, sol := range evaluated {
			if v := sol.PenalizedObjective(); v < bestValue {
				bestValue = v
				improved = true
			}
		}
		if improved {
			stale = 0
		} else {
			stale++
			if stale >= s.cfg.NoImprovementLimit {
				slog.Debug("search stalled", "iteration", it, "best", bestValue)
				break
			}
		}

		next := s.selector.Pick(arch.OrderedInputFeasibleSolutions(), incumbent, s.rng)
		if next != nil {
			incumbent = next
		}
	}

	best, possiblyBest, err := s.cleanup(ctx, arch, iterations)
	if err != nil {
		return nil, err
	}

	return &Result{
		Best:         best,
		PossiblyBest: possiblyBest,
		Iterations:   iterations,
		Evaluator:    s.evaluator.StatsSnapshot(),
		Elapsed:      time.Since(startTime),
	}, nil
}

// evaluatePoints sends one batch through the evaluator and feeds the archive.
func (s *Solver) evaluatePoints(ctx context.Context, points []models.ModelInputs, iteration int, arch *archive.Solutions) ([]*models.Solution, error) {
	req, err := models.NewEvaluationRequest(s.problem.ModelID, points, s.cfg.Replications, false, true)
	if err != nil {
		return nil, err
	}
	solutions, err := s.evaluator.Evaluate(ctx, req, iteration)
	if err != nil {
		return nil, err
	}
	for _, sol := range solutions {
		arch.Add(sol)
	}
	return solutions, nil
}

// neighborhood proposes the one-step grid neighbors of a point: each input
// moved up or down by StepScale multiples of its granularity, clamped to
// bounds and filtered for feasibility and duplicates.
func (s *Solver) neighborhood(center models.ModelInputs) []models.ModelInputs {
	granularity := s.problem.Granularity()
	seen := map[models.InputKey]struct{}{center.Key(): {}}
	var out []models.ModelInputs

	for name := range center.Values {
		step := granularity[name] * s.cfg.StepScale
		if step <= 0 {
			continue
		}
		for _, direction := range []float64{-1, 1} {
			values := make(map[string]float64, len(center.Values))
			for k, v := range center.Values {
				values[k] = v
			}
			values[name] += direction * step

			candidate, err := models.NewModelInputs(center.ModelID, values)
			if err != nil {
				continue
			}
			candidate = s.problem.RoundInputs(candidate)
			if !s.problem.InputRangeFeasible(candidate) || !s.problem.LinearConstraintFeasible(candidate) {
				continue
			}
			key := candidate.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, candidate)
		}
	}
	return out
}

// cleanup reruns the statistically-tied leaders under common random numbers
// and picks the final winner from the correlated comparison. CRN results are
// never cached, so the pass cannot pollute the solution cache.
func (s *Solver) cleanup(ctx context.Context, arch *archive.Solutions, iteration int) (*models.Solution, []*models.Solution, error) {
	cmp := archive.ConfidenceIntervalComparator{
		Level:            s.cfg.ConfidenceLevel,
		IndifferenceZone: s.cfg.IndifferenceZone,
	}
	contenders := arch.PossiblyBest(cmp)

	best := arch.PeekBest()
	if best == nil {
		return nil, nil, fmt.Errorf("search retained no solutions")
	}
	if len(contenders) < 2 || s.cfg.CleanupReps < 1 {
		return best, contenders, nil
	}

	points := make([]models.ModelInputs, 0, len(contenders))
	for _, sol := range contenders {
		points = append(points, sol.Inputs())
	}
	req, err := models.NewEvaluationRequest(s.problem.ModelID, points, s.cfg.CleanupReps, true, false)
	if err != nil {
		return nil, nil, err
	}
	solutions, err := s.evaluator.Evaluate(ctx, req, iteration)
	if err != nil {
		return nil, nil, err
	}

	winner := solutions[0]
	for _, sol := range solutions[1:] {
		if sol.PenalizedObjective() < winner.PenalizedObjective() {
			winner = sol
		}
	}
	slog.Debug("clean-up complete", "contenders", len(contenders), "winner", winner.Key())
	return winner, contenders, nil
}
