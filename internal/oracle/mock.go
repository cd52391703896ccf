package oracle

import (
	"context"
	"sync"

	"github.com/simoptlab/simopt/internal/models"
	"github.com/simoptlab/simopt/internal/statistics"
)

// MockOracle is a scripted oracle implementation for testing. It fabricates
// deterministic estimates per point and records every request it receives,
// so tests can assert on exactly which points and replication counts reached
// the oracle.
type MockOracle struct {
	mu sync.Mutex

	// ResponseNames are the names populated for every successful point.
	ResponseNames []string
	// Objective maps an input key to the average reported for the first
	// response name. Unlisted keys report zero.
	Objective map[models.InputKey]float64
	// FailKeys marks points whose runs should fail.
	FailKeys map[models.InputKey]error
	// ModelIDs restricts served models; empty means serve everything.
	ModelIDs map[string]bool

	requests []Request
}

// NewMockOracle creates a mock populating the given response names.
func NewMockOracle(responseNames ...string) *MockOracle {
	return &MockOracle{
		ResponseNames: responseNames,
		Objective:     make(map[models.InputKey]float64),
		FailKeys:      make(map[models.InputKey]error),
	}
}

// Evaluate fabricates one estimate per requested point with exactly the
// requested replication count, failing individual points per FailKeys.
func (m *MockOracle) Evaluate(_ context.Context, req Request) ([]PointResult, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.ModelIDs != nil && !m.ModelIDs[req.ModelID] {
		return nil, ErrModelNotFound
	}

	results := make([]PointResult, len(req.Points))
	for i, pt := range req.Points {
		key := pt.Inputs.Key()
		if err, failed := m.FailKeys[key]; failed {
			results[i] = PointResult{Inputs: pt.Inputs, Err: err}
			continue
		}

		rm := statistics.NewResponseMap(req.ModelID, nil)
		base := m.Objective[key]
		for j, name := range m.ResponseNames {
			avg := base + float64(j)
			variance := 1.0
			count := pt.Replications
			var e statistics.EstimatedResponse
			var err error
			if count == 1 {
				e, err = statistics.EstimateFromSample(name, []float64{avg})
			} else {
				e, err = statistics.NewEstimatedResponse(name, avg, variance, count)
			}
			if err != nil {
				results[i] = PointResult{Inputs: pt.Inputs, Err: err}
				break
			}
			if err := rm.Add(e); err != nil {
				results[i] = PointResult{Inputs: pt.Inputs, Err: err}
				break
			}
		}
		if results[i].Err == nil {
			results[i] = PointResult{Inputs: pt.Inputs, Responses: rm}
		}
	}
	return results, nil
}

// Requests returns a copy of every request received so far.
func (m *MockOracle) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// ReplicationsSentFor sums the replication counts requested from the oracle
// for the given point across all requests.
func (m *MockOracle) ReplicationsSentFor(key models.InputKey) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, req := range m.requests {
		for _, pt := range req.Points {
			if pt.Inputs.Key() == key {
				total += pt.Replications
			}
		}
	}
	return total
}
