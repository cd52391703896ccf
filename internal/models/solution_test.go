package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simoptlab/simopt/internal/statistics"
)

// stubProblem is a FeasibilityChecker with scriptable outcomes.
type stubProblem struct {
	inputFeasible  bool
	linearFeasible bool
	violations     float64
}

func (s *stubProblem) InputRangeFeasible(ModelInputs) bool       { return s.inputFeasible }
func (s *stubProblem) LinearConstraintFeasible(ModelInputs) bool { return s.linearFeasible }
func (s *stubProblem) ResponseConstraintViolations(*statistics.ResponseMap) float64 {
	return s.violations
}
func (s *stubProblem) ResponseConstraintFeasible(*statistics.ResponseMap, float64) bool {
	return s.violations == 0
}

func testResponses(t *testing.T, objective float64, count int) *statistics.ResponseMap {
	t.Helper()
	rm := statistics.NewResponseMap("m", nil)
	e, err := statistics.NewEstimatedResponse("obj", objective, 1.0, count)
	require.NoError(t, err)
	require.NoError(t, rm.Add(e))
	return rm
}

func TestNewSolution(t *testing.T) {
	prob := &stubProblem{inputFeasible: true, linearFeasible: true}
	inputs := mustInputs(t, "m", map[string]float64{"x": 1})

	sol, err := NewSolution(prob, inputs, testResponses(t, 42.0, 5), "obj", 3)
	require.NoError(t, err)

	assert.False(t, sol.IsBad())
	assert.Equal(t, 5, sol.Count())
	assert.Equal(t, 3, sol.Iteration())
	assert.Equal(t, 42.0, sol.EstimatedObjective().Average())
	assert.Equal(t, 42.0, sol.PenalizedObjective())
	assert.True(t, sol.InputRangeFeasible())
}

func TestNewSolution_MissingObjective(t *testing.T) {
	prob := &stubProblem{}
	inputs := mustInputs(t, "m", map[string]float64{"x": 1})
	rm := statistics.NewResponseMap("m", nil)

	_, err := NewSolution(prob, inputs, rm, "obj", 0)
	assert.Error(t, err)
}

func TestPenalizedObjective_AddsScaledViolations(t *testing.T) {
	prob := &stubProblem{inputFeasible: true, violations: 2.0}
	inputs := mustInputs(t, "m", map[string]float64{"x": 1})

	sol, err := NewSolution(prob, inputs, testResponses(t, 10.0, 5), "obj", 3)
	require.NoError(t, err)

	// Default penalty is iteration squared: 10 + 2 * 3^2.
	assert.InDelta(t, 28.0, sol.PenalizedObjective(), 1e-12)

	linear := sol.WithPenaltyFunction(func(it int) float64 { return float64(it) })
	assert.InDelta(t, 16.0, linear.PenalizedObjective(), 1e-12)
}

func TestBadSolution(t *testing.T) {
	prob := &stubProblem{inputFeasible: true, linearFeasible: true}
	inputs := mustInputs(t, "m", map[string]float64{"x": 1})

	sol := NewBadSolution(prob, inputs, 2)
	assert.True(t, sol.IsBad())
	assert.Equal(t, 0, sol.Count())
	assert.True(t, math.IsInf(sol.PenalizedObjective(), 1))
	assert.False(t, sol.InputRangeFeasible())
	assert.False(t, sol.LinearConstraintFeasible())
	assert.False(t, sol.ResponseConstraintFeasible(0.95))
}

func TestResponses_ReturnsCopy(t *testing.T) {
	prob := &stubProblem{}
	inputs := mustInputs(t, "m", map[string]float64{"x": 1})
	sol, err := NewSolution(prob, inputs, testResponses(t, 1.0, 3), "obj", 0)
	require.NoError(t, err)

	rm := sol.Responses()
	e, err := statistics.NewEstimatedResponse("obj", 99.0, 1.0, 10)
	require.NoError(t, err)
	require.NoError(t, rm.Add(e))

	assert.Equal(t, 3, sol.Count())
}
