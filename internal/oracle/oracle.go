// Package oracle defines the simulation-oracle contract the evaluator
// consumes, plus the concrete oracles shipped with the tool: a small
// replicated queueing simulator and a scripted mock for tests.
package oracle

import (
	"context"
	"errors"

	"github.com/simoptlab/simopt/internal/models"
	"github.com/simoptlab/simopt/internal/statistics"
)

// ErrModelNotFound is returned when a request targets a model identifier the
// oracle does not serve. It fails the whole request; there are no
// partial-credit semantics for an unknown model.
var ErrModelNotFound = errors.New("oracle: model not found")

// PointRequest asks for a number of independent replications at one design
// point.
type PointRequest struct {
	Inputs       models.ModelInputs
	Replications int
}

// Request is a batch of point evaluations against one model. When CRN is
// set, every point must be run against a common random-number stream in the
// given order; results are then correlated across points and must never be
// cached as independent estimates.
type Request struct {
	ModelID string
	CRN     bool
	Points  []PointRequest
}

// PointResult is the outcome for one requested point, positionally aligned
// with Request.Points. A failed run carries Err and nil Responses.
type PointResult struct {
	Inputs    models.ModelInputs
	Responses *statistics.ResponseMap
	Err       error
}

// Oracle runs replicated simulations. Implementations own their timeout and
// cancellation policy; a run surfaces as a per-point success or failure,
// never as a hang.
type Oracle interface {
	Evaluate(ctx context.Context, req Request) ([]PointResult, error)
}
