// Package evaluation implements the cache-then-oracle orchestration at the
// center of the pipeline: probe the solution cache, compute per-point
// replication gaps, run the oracle for what the cache cannot cover, merge,
// write back, and account for every replication consumed.
package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/simoptlab/simopt/internal/cache"
	"github.com/simoptlab/simopt/internal/models"
	"github.com/simoptlab/simopt/internal/oracle"
	"github.com/simoptlab/simopt/internal/problem"
	"github.com/simoptlab/simopt/internal/statistics"
)

// Counts are the evaluator's running totals. Evaluations count design
// points, replications count individual oracle runs; the cached counters
// cover the portion of each request the cache absorbed.
type Counts struct {
	TotalRequestsReceived   int64
	TotalEvaluations        int64
	TotalOracleEvaluations  int64
	TotalOracleReplications int64
	TotalCachedEvaluations  int64
	TotalCachedReplications int64
}

// Evaluator mediates between a solver and the simulation oracle. It owns
// its counters as instance state; snapshots are taken with StatsSnapshot
// and cleared with ResetCounts.
type Evaluator struct {
	problem *problem.Definition
	oracle  oracle.Oracle
	cache   cache.SolutionCache

	// maxParallel bounds the fan-out of a non-CRN oracle sub-request
	// across distinct points; <= 1 means one batched oracle call.
	maxParallel int

	flight singleflight.Group

	mu     sync.Mutex
	counts Counts
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithCache attaches a solution cache. Without one, every request goes
// straight to the oracle.
func WithCache(c cache.SolutionCache) Option {
	return func(e *Evaluator) { e.cache = c }
}

// WithMaxParallel allows up to n concurrent single-point oracle calls for
// the non-CRN sub-request. Oracle runs at distinct points are statistically
// independent, so fan-out is safe; CRN batches always run as one ordered
// call regardless.
func WithMaxParallel(n int) Option {
	return func(e *Evaluator) { e.maxParallel = n }
}

// New creates an evaluator for the given problem and oracle.
func New(def *problem.Definition, orc oracle.Oracle, opts ...Option) *Evaluator {
	e := &Evaluator{problem: def, oracle: orc, maxParallel: 1}
	for _, o := range opts {
		o(e)
	}
	return e
}

// StatsSnapshot returns a copy of the running counters.
func (e *Evaluator) StatsSnapshot() Counts {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counts
}

// ResetCounts zeroes the running counters.
func (e *Evaluator) ResetCounts() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counts = Counts{}
}

func (e *Evaluator) addCounts(delta Counts) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counts.TotalRequestsReceived += delta.TotalRequestsReceived
	e.counts.TotalEvaluations += delta.TotalEvaluations
	e.counts.TotalOracleEvaluations += delta.TotalOracleEvaluations
	e.counts.TotalOracleReplications += delta.TotalOracleReplications
	e.counts.TotalCachedEvaluations += delta.TotalCachedEvaluations
	e.counts.TotalCachedReplications += delta.TotalCachedReplications
}

// Evaluate processes one request end to end and returns one solution per
// requested point, in request order. Per-point oracle failures become
// sentinel bad solutions; only an unknown model fails the whole request.
// The iteration number is stamped on every solution built for this request.
func (e *Evaluator) Evaluate(ctx context.Context, req *models.EvaluationRequest, iteration int) ([]*models.Solution, error) {
	// Rounding first stabilizes the cache keys: points differing only
	// below granularity collapse onto the same key.
	points := req.Points()
	for i := range points {
		points[i] = e.problem.RoundInputs(points[i])
	}

	e.addCounts(Counts{
		TotalRequestsReceived: 1,
		TotalEvaluations:      int64(len(points)),
	})

	if req.CRN() || !req.CachingAllowed() || e.cache == nil {
		return e.evaluateUncached(ctx, req, points, iteration)
	}
	return e.evaluateWithCache(ctx, req, points, iteration)
}

// evaluateUncached sends the full request to the oracle. CRN-correlated
// results never touch the cache.
func (e *Evaluator) evaluateUncached(ctx context.Context, req *models.EvaluationRequest, points []models.ModelInputs, iteration int) ([]*models.Solution, error) {
	sub := make([]oracle.PointRequest, len(points))
	for i, p := range points {
		sub[i] = oracle.PointRequest{Inputs: p, Replications: req.Replications()}
	}

	results, err := e.oracle.Evaluate(ctx, oracle.Request{
		ModelID: req.ModelID(),
		CRN:     req.CRN(),
		Points:  sub,
	})
	if err != nil {
		return nil, err
	}
	if len(results) != len(sub) {
		return nil, fmt.Errorf("oracle returned %d results for %d points", len(results), len(sub))
	}

	e.addCounts(Counts{
		TotalOracleEvaluations:  int64(len(sub)),
		TotalOracleReplications: int64(len(sub) * req.Replications()),
	})

	solutions := make([]*models.Solution, len(points))
	for i, res := range results {
		solutions[i] = e.buildSolution(points[i], res, iteration)
	}
	return solutions, nil
}

// evaluateWithCache probes the cache for every point, dispatches only the
// replication gaps to the oracle, merges fresh results with cached partials,
// and writes every new-or-merged solution back.
func (e *Evaluator) evaluateWithCache(ctx context.Context, req *models.EvaluationRequest, points []models.ModelInputs, iteration int) ([]*models.Solution, error) {
	requested := req.Replications()

	keys := make([]models.InputKey, len(points))
	for i, p := range points {
		keys[i] = p.Key()
	}
	cached := e.cache.Retrieve(keys)

	// Gap computation. A cached bad solution never satisfies a request;
	// the point is re-evaluated in full.
	type gapEntry struct {
		index   int
		partial *models.Solution // nil on a full miss
	}
	var sub []oracle.PointRequest
	var gaps []gapEntry
	solutions := make([]*models.Solution, len(points))

	var delta Counts
	for i, p := range points {
		entry, ok := cached[keys[i]]
		if ok && !entry.IsBad() && entry.Count() >= requested {
			solutions[i] = entry
			delta.TotalCachedEvaluations++
			delta.TotalCachedReplications += int64(requested)
			continue
		}
		if ok && !entry.IsBad() && entry.Count() > 0 {
			gap := requested - entry.Count()
			delta.TotalCachedReplications += int64(entry.Count())
			sub = append(sub, oracle.PointRequest{Inputs: p, Replications: gap})
			gaps = append(gaps, gapEntry{index: i, partial: entry})
			slog.Debug("partial cache hit",
				"point", keys[i], "cached", entry.Count(), "gap", gap)
			continue
		}
		sub = append(sub, oracle.PointRequest{Inputs: p, Replications: requested})
		gaps = append(gaps, gapEntry{index: i})
	}

	if len(sub) > 0 {
		results, err := e.dispatch(ctx, req.ModelID(), sub)
		if err != nil {
			return nil, err
		}

		gapReps := 0
		for _, pr := range sub {
			gapReps += pr.Replications
		}
		delta.TotalOracleEvaluations += int64(len(sub))
		delta.TotalOracleReplications += int64(gapReps)

		for j, res := range results {
			g := gaps[j]
			if g.partial != nil && res.Err == nil && res.Responses != nil {
				merged, err := e.mergeWithPartial(g.partial, res.Responses, iteration)
				if err != nil {
					return nil, err
				}
				solutions[g.index] = merged
			} else {
				solutions[g.index] = e.buildSolution(points[g.index], res, iteration)
			}

			// A failed gap run must not clobber a good partial entry; the
			// cached replications stay valid for the next request.
			if solutions[g.index].IsBad() && g.partial != nil {
				continue
			}
			if err := e.cache.Put(keys[g.index], solutions[g.index]); err != nil {
				slog.Warn("cache write failed", "point", keys[g.index], "error", err)
			}
		}
	}

	e.addCounts(delta)
	return solutions, nil
}

// dispatch runs the oracle sub-request: one batched call by default, or a
// bounded fan-out of single-point calls when parallelism is enabled.
// Results come back aligned with sub.
func (e *Evaluator) dispatch(ctx context.Context, modelID string, sub []oracle.PointRequest) ([]oracle.PointResult, error) {
	if e.maxParallel <= 1 || len(sub) == 1 {
		results, err := e.oracle.Evaluate(ctx, oracle.Request{ModelID: modelID, Points: sub})
		if err != nil {
			return nil, err
		}
		if len(results) != len(sub) {
			return nil, fmt.Errorf("oracle returned %d results for %d points", len(results), len(sub))
		}
		return results, nil
	}

	// Points are distinct by construction, so their runs are independent.
	// Single-flight keys each in-flight point so overlapping concurrent
	// requests never duplicate the same expensive run.
	results := make([]oracle.PointResult, len(sub))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(e.maxParallel)
	for i, pr := range sub {
		group.Go(func() error {
			shared, err, _ := e.flight.Do(string(pr.Inputs.Key()), func() (any, error) {
				res, err := e.oracle.Evaluate(ctx, oracle.Request{
					ModelID: modelID,
					Points:  []oracle.PointRequest{pr},
				})
				if err != nil {
					return nil, err
				}
				if len(res) != 1 {
					return nil, fmt.Errorf("oracle returned %d results for 1 point", len(res))
				}
				return res[0], nil
			})
			if err != nil {
				return err
			}
			results[i] = shared.(oracle.PointResult)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// mergeWithPartial folds freshly simulated gap responses into the cached
// partial's estimates and rebuilds the solution with the combined counts.
// Both sides are independent replications of the same point; the merge is
// a new value, the cached entry is never mutated.
func (e *Evaluator) mergeWithPartial(partial *models.Solution, fresh *statistics.ResponseMap, iteration int) (*models.Solution, error) {
	combined := partial.Responses()
	if err := combined.MergeAll(fresh); err != nil {
		return nil, fmt.Errorf("merging cached and fresh responses for %s: %w", partial.Key(), err)
	}
	return models.NewSolution(e.problem, partial.Inputs(), combined, e.problem.ObjectiveName(), iteration)
}

// buildSolution converts one oracle point result into a solution, falling
// back to the sentinel bad solution on failure or an incomplete response
// set.
func (e *Evaluator) buildSolution(point models.ModelInputs, res oracle.PointResult, iteration int) *models.Solution {
	if res.Err != nil || res.Responses == nil {
		slog.Debug("oracle run failed", "point", point.Key(), "error", res.Err)
		return models.NewBadSolution(e.problem, point, iteration)
	}
	if !res.Responses.HasAllResponses(e.problem.RequiredResponseNames()) {
		slog.Debug("oracle result incomplete", "point", point.Key(), "responses", res.Responses.Names())
		return models.NewBadSolution(e.problem, point, iteration)
	}
	s, err := models.NewSolution(e.problem, point, res.Responses, e.problem.ObjectiveName(), iteration)
	if err != nil {
		return models.NewBadSolution(e.problem, point, iteration)
	}
	return s
}
