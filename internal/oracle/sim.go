package oracle

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"

	"github.com/simoptlab/simopt/internal/statistics"
)

// ModelFunc runs one replication of a simulation model and returns the
// observed value of every response. The supplied rng is the replication's
// random-number stream.
type ModelFunc func(rng *rand.Rand, inputs map[string]float64) (map[string]float64, error)

// SimOracle serves registered simulation models with replicated runs.
//
// Under CRN, replication r of every point draws from a stream seeded with
// baseSeed+r, and points execute sequentially in request order, so
// comparisons across points share their random numbers. Without CRN each
// point gets its own independent stream family.
type SimOracle struct {
	models   map[string]ModelFunc
	baseSeed int64
	streamID atomic.Int64
}

// NewSimOracle creates an oracle with no registered models. The base seed
// anchors all CRN stream derivation.
func NewSimOracle(baseSeed int64) *SimOracle {
	return &SimOracle{
		models:   make(map[string]ModelFunc),
		baseSeed: baseSeed,
	}
}

// Register adds a model under the given identifier, replacing any previous
// registration.
func (o *SimOracle) Register(modelID string, fn ModelFunc) {
	o.models[modelID] = fn
}

// Evaluate runs the requested replications for every point. Per-point
// simulation failures are reported in the matching PointResult; only an
// unknown model fails the whole request.
func (o *SimOracle) Evaluate(ctx context.Context, req Request) ([]PointResult, error) {
	fn, ok := o.models[req.ModelID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrModelNotFound, req.ModelID)
	}

	results := make([]PointResult, len(req.Points))
	for i, pt := range req.Points {
		if err := ctx.Err(); err != nil {
			results[i] = PointResult{Inputs: pt.Inputs, Err: err}
			continue
		}
		responses, err := o.runPoint(fn, req, pt)
		results[i] = PointResult{Inputs: pt.Inputs, Responses: responses, Err: err}
	}
	return results, nil
}

func (o *SimOracle) runPoint(fn ModelFunc, req Request, pt PointRequest) (*statistics.ResponseMap, error) {
	observations := make(map[string][]float64)
	for rep := 0; rep < pt.Replications; rep++ {
		rng := rand.New(rand.NewSource(o.seedFor(req.CRN, rep)))
		obs, err := fn(rng, pt.Inputs.Values)
		if err != nil {
			return nil, fmt.Errorf("model %q replication %d: %w", req.ModelID, rep+1, err)
		}
		for name, v := range obs {
			observations[name] = append(observations[name], v)
		}
	}

	rm := statistics.NewResponseMap(req.ModelID, nil)
	for name, obs := range observations {
		e, err := statistics.EstimateFromSample(name, obs)
		if err != nil {
			return nil, err
		}
		if err := rm.Add(e); err != nil {
			return nil, err
		}
	}
	return rm, nil
}

// seedFor derives the stream seed for one replication. CRN replication r
// always maps to baseSeed+r so every point sees the same draws; independent
// runs consume a fresh stream id each time.
func (o *SimOracle) seedFor(crn bool, rep int) int64 {
	if crn {
		return o.baseSeed + int64(rep)
	}
	return o.baseSeed + (o.streamID.Add(1) << 20) + int64(rep)
}

// MMCQueueConfig parameterizes the built-in multi-server queueing model.
type MMCQueueConfig struct {
	ArrivalRate    float64 // customers per unit time
	Customers      int     // customers simulated per replication
	ServerCost     float64 // cost per server per run
	WaitCostFactor float64 // cost per unit of average waiting time
}

// MMCQueueModel returns a ModelFunc simulating a FCFS multi-server queue
// with exponential interarrival and service times. Inputs: "servers" (
// number of parallel servers, >= 1) and "service_rate" (per-server service
// rate, > 0). Responses: "wait_time" (average wait in queue), "utilization"
// (busy fraction across servers), and "total_cost" (server cost plus
// waiting cost), the usual staffing objective.
func MMCQueueModel(cfg MMCQueueConfig) ModelFunc {
	return func(rng *rand.Rand, inputs map[string]float64) (map[string]float64, error) {
		servers := int(math.Round(inputs["servers"]))
		serviceRate := inputs["service_rate"]
		if servers < 1 {
			return nil, fmt.Errorf("servers must be at least 1, got %v", inputs["servers"])
		}
		if serviceRate <= 0 {
			return nil, fmt.Errorf("service_rate must be positive, got %v", serviceRate)
		}

		// FCFS multi-server queue: each arrival takes the earliest-free
		// server; waiting time is the gap between arrival and that server
		// freeing up.
		freeAt := make([]float64, servers)
		arrival := 0.0
		totalWait := 0.0
		totalService := 0.0
		for c := 0; c < cfg.Customers; c++ {
			arrival += rng.ExpFloat64() / cfg.ArrivalRate
			s := 0
			for i := 1; i < servers; i++ {
				if freeAt[i] < freeAt[s] {
					s = i
				}
			}
			wait := math.Max(0, freeAt[s]-arrival)
			service := rng.ExpFloat64() / serviceRate
			freeAt[s] = math.Max(arrival, freeAt[s]) + service
			totalWait += wait
			totalService += service
		}

		horizon := 0.0
		for _, t := range freeAt {
			horizon = math.Max(horizon, t)
		}
		avgWait := totalWait / float64(cfg.Customers)
		utilization := 0.0
		if horizon > 0 {
			utilization = totalService / (float64(servers) * horizon)
		}

		return map[string]float64{
			"wait_time":   avgWait,
			"utilization": utilization,
			"total_cost":  cfg.ServerCost*float64(servers) + cfg.WaitCostFactor*avgWait,
		}, nil
	}
}
