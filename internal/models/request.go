package models

import (
	"fmt"
	"strings"
)

// EvaluationRequest is a validated batch of unique design points to
// estimate, together with the options that make caching and common random
// numbers mutually safe.
//
// All invariants are enforced at construction so the evaluator never sees a
// malformed batch:
//
//   - at least one point, all targeting the request's model
//   - no two points with the same InputKey
//   - CRN requires at least two points (it correlates draws across points)
//   - CRN forbids caching (correlated results must not be cached as if they
//     were independent)
type EvaluationRequest struct {
	modelID        string
	points         []ModelInputs
	replications   int
	crn            bool
	cachingAllowed bool
}

// NewEvaluationRequest validates and builds a request for the given points,
// each to be estimated with the given number of replications.
func NewEvaluationRequest(modelID string, points []ModelInputs, replications int, crn, cachingAllowed bool) (*EvaluationRequest, error) {
	if strings.TrimSpace(modelID) == "" {
		return nil, fmt.Errorf("model identifier must not be blank")
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("request for model %q has no points", modelID)
	}
	if replications < 1 {
		return nil, fmt.Errorf("request for model %q: replications must be at least 1, got %d", modelID, replications)
	}
	if crn && len(points) < 2 {
		return nil, fmt.Errorf("request for model %q: common random numbers require at least 2 points", modelID)
	}
	if crn && cachingAllowed {
		return nil, fmt.Errorf("request for model %q: common random numbers and caching are mutually exclusive", modelID)
	}

	seen := make(map[InputKey]struct{}, len(points))
	copied := make([]ModelInputs, 0, len(points))
	for _, p := range points {
		if p.ModelID != modelID {
			return nil, fmt.Errorf("request for model %q contains a point for model %q", modelID, p.ModelID)
		}
		key := p.Key()
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("request for model %q: duplicate point %s", modelID, key)
		}
		seen[key] = struct{}{}
		copied = append(copied, p)
	}

	return &EvaluationRequest{
		modelID:        modelID,
		points:         copied,
		replications:   replications,
		crn:            crn,
		cachingAllowed: cachingAllowed,
	}, nil
}

// ModelID returns the model every point in the request targets.
func (r *EvaluationRequest) ModelID() string { return r.modelID }

// Points returns the requested points in request order.
func (r *EvaluationRequest) Points() []ModelInputs {
	out := make([]ModelInputs, len(r.points))
	copy(out, r.points)
	return out
}

// Len returns the number of points.
func (r *EvaluationRequest) Len() int { return len(r.points) }

// Replications returns the per-point replication count requested.
func (r *EvaluationRequest) Replications() int { return r.replications }

// CRN reports whether the request must run under common random numbers.
func (r *EvaluationRequest) CRN() bool { return r.crn }

// CachingAllowed reports whether cached results may serve this request.
func (r *EvaluationRequest) CachingAllowed() bool { return r.cachingAllowed }
