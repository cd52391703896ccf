package models

import (
	"fmt"
	"math"

	"github.com/simoptlab/simopt/internal/statistics"
)

// FeasibilityChecker is the slice of a problem definition that a solution
// needs: input-space feasibility predicates and response-constraint
// arithmetic. Implemented by problem.Definition.
type FeasibilityChecker interface {
	// InputRangeFeasible reports whether every input lies within its bounds.
	InputRangeFeasible(inputs ModelInputs) bool
	// LinearConstraintFeasible reports whether the inputs satisfy every
	// declared linear constraint.
	LinearConstraintFeasible(inputs ModelInputs) bool
	// ResponseConstraintViolations returns the summed positive violation of
	// the response constraints against the estimated averages.
	ResponseConstraintViolations(responses *statistics.ResponseMap) float64
	// ResponseConstraintFeasible reports whether the response constraints
	// hold at the given confidence level.
	ResponseConstraintFeasible(responses *statistics.ResponseMap, level float64) bool
}

// PenaltyFunction maps the solver iteration that produced a solution to a
// penalty multiplier. It must be monotonically non-decreasing in iteration.
type PenaltyFunction func(iteration int) float64

// DefaultPenalty is the quadratic default, iteration squared.
func DefaultPenalty(iteration int) float64 {
	return float64(iteration) * float64(iteration)
}

// Solution is the immutable result of evaluating one design point: the
// point, its estimated objective, all response estimates, and the iteration
// that requested it. A solution flagged bad is the sentinel for a failed
// oracle run; its penalized objective is +Inf so it never ranks above a real
// result.
type Solution struct {
	inputs    ModelInputs
	objective statistics.EstimatedResponse
	responses *statistics.ResponseMap
	iteration int
	penalty   PenaltyFunction
	problem   FeasibilityChecker
	bad       bool
}

// NewSolution builds a solution from an evaluated point. The objective must
// be present in responses under objectiveName.
func NewSolution(problem FeasibilityChecker, inputs ModelInputs, responses *statistics.ResponseMap, objectiveName string, iteration int) (*Solution, error) {
	if len(inputs.Values) == 0 {
		return nil, fmt.Errorf("solution requires a non-empty input map")
	}
	objective, ok := responses.Get(objectiveName)
	if !ok {
		return nil, fmt.Errorf("responses for %s lack objective %q", inputs.Key(), objectiveName)
	}
	return &Solution{
		inputs:    inputs,
		objective: objective,
		responses: responses.Clone(),
		iteration: iteration,
		penalty:   DefaultPenalty,
		problem:   problem,
	}, nil
}

// NewBadSolution builds the sentinel solution recorded for a design point
// whose oracle run failed. It is input-infeasible by fiat and sorts after
// every real solution.
func NewBadSolution(problem FeasibilityChecker, inputs ModelInputs, iteration int) *Solution {
	return &Solution{
		inputs:    inputs,
		responses: statistics.NewResponseMap(inputs.ModelID, nil),
		iteration: iteration,
		penalty:   DefaultPenalty,
		problem:   problem,
		bad:       true,
	}
}

// WithPenaltyFunction returns a copy using fn for penalty computation.
func (s *Solution) WithPenaltyFunction(fn PenaltyFunction) *Solution {
	clone := *s
	clone.penalty = fn
	return &clone
}

// Inputs returns the design point.
func (s *Solution) Inputs() ModelInputs { return s.inputs }

// Key returns the cache identity of the design point.
func (s *Solution) Key() InputKey { return s.inputs.Key() }

// EstimatedObjective returns the objective estimate. For a bad solution the
// zero estimate is returned; check IsBad first.
func (s *Solution) EstimatedObjective() statistics.EstimatedResponse { return s.objective }

// Responses returns a copy of the response estimates.
func (s *Solution) Responses() *statistics.ResponseMap { return s.responses.Clone() }

// Iteration returns the solver iteration that requested this point.
func (s *Solution) Iteration() int { return s.iteration }

// IsBad reports whether this is the sentinel for a failed evaluation.
func (s *Solution) IsBad() bool { return s.bad }

// Count returns the replication count behind the objective estimate, zero
// for a bad solution.
func (s *Solution) Count() int {
	if s.bad {
		return 0
	}
	return s.objective.Count()
}

// PenaltyValue returns the iteration penalty multiplier.
func (s *Solution) PenaltyValue() float64 { return s.penalty(s.iteration) }

// ConstraintViolationPenalty returns the summed response-constraint
// violations scaled by the iteration penalty.
func (s *Solution) ConstraintViolationPenalty() float64 {
	if s.bad {
		return 0
	}
	return s.problem.ResponseConstraintViolations(s.responses) * s.PenaltyValue()
}

// PenalizedObjective is the ranking criterion: the objective average plus
// the constraint violation penalty, +Inf for a bad solution. Lower is
// better.
func (s *Solution) PenalizedObjective() float64 {
	if s.bad {
		return math.Inf(1)
	}
	return s.objective.Average() + s.ConstraintViolationPenalty()
}

// InputRangeFeasible reports input-bound feasibility. Bad solutions are
// never feasible.
func (s *Solution) InputRangeFeasible() bool {
	return !s.bad && s.problem.InputRangeFeasible(s.inputs)
}

// LinearConstraintFeasible reports linear-constraint feasibility.
func (s *Solution) LinearConstraintFeasible() bool {
	return !s.bad && s.problem.LinearConstraintFeasible(s.inputs)
}

// ResponseConstraintFeasible reports response-constraint feasibility at the
// given confidence level.
func (s *Solution) ResponseConstraintFeasible(level float64) bool {
	return !s.bad && s.problem.ResponseConstraintFeasible(s.responses, level)
}
