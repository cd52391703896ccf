package problem

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simoptlab/simopt/internal/models"
	"github.com/simoptlab/simopt/internal/statistics"
)

const validProblemYAML = `name: queue-staffing
model: mmc-queue
objective: total_cost
responses:
  - total_cost
  - wait_time
  - utilization
inputs:
  - name: servers
    lower: 1
    upper: 20
    granularity: 1
  - name: service_rate
    lower: 0.5
    upper: 5
    granularity: 0.1
linear_constraints:
  - coefficients:
      servers: 1
    relation: "<="
    rhs: 15
response_constraints:
  - response: wait_time
    relation: "<="
    limit: 2.0
`

func loadTestProblem(t *testing.T) *Definition {
	t.Helper()
	def, err := Parse([]byte(validProblemYAML))
	require.NoError(t, err)
	return def
}

func inputs(t *testing.T, servers, rate float64) models.ModelInputs {
	t.Helper()
	m, err := models.NewModelInputs("mmc-queue", map[string]float64{
		"servers":      servers,
		"service_rate": rate,
	})
	require.NoError(t, err)
	return m
}

func TestParse(t *testing.T) {
	def := loadTestProblem(t)
	assert.Equal(t, "queue-staffing", def.Name)
	assert.Equal(t, "mmc-queue", def.ModelID)
	assert.Equal(t, "total_cost", def.ObjectiveName())
	assert.Equal(t, []string{"total_cost", "wait_time", "utilization"}, def.RequiredResponseNames())
	require.Len(t, def.Inputs, 2)
	assert.Equal(t, map[string]float64{"servers": 1, "service_rate": 0.1}, def.Granularity())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "problem.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validProblemYAML), 0644))

	def, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "queue-staffing", def.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParse_SchemaRejections(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"not yaml", ":\n  - ["},
		{"missing model", "name: p\nobjective: o\nresponses: [o]\ninputs: [{name: x}]"},
		{"empty responses", "name: p\nmodel: m\nobjective: o\nresponses: []\ninputs: [{name: x}]"},
		{"unknown field", validProblemYAML + "budget: 100\n"},
		{"bad relation", `
name: p
model: m
objective: o
responses: [o]
inputs: [{name: x}]
response_constraints:
  - response: o
    relation: "<"
    limit: 1
`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestValidate_CrossFieldRejections(t *testing.T) {
	base := func() *Definition { return loadTestProblem(t) }

	def := base()
	def.Objective = "throughput"
	assert.Error(t, def.Validate(), "objective not among responses")

	def = base()
	def.Inputs = append(def.Inputs, def.Inputs[0])
	assert.Error(t, def.Validate(), "duplicate input")

	def = base()
	def.Inputs[0].Lower = 30
	assert.Error(t, def.Validate(), "lower above upper")

	def = base()
	def.LinearConstraints[0].Coefficients = map[string]float64{"queues": 1}
	assert.Error(t, def.Validate(), "unknown input in constraint")

	def = base()
	def.ResponseConstraints[0].Response = "throughput"
	assert.Error(t, def.Validate(), "unknown response in constraint")
}

func TestRoundInputs(t *testing.T) {
	def := loadTestProblem(t)
	rounded := def.RoundInputs(inputs(t, 3.4, 1.26))
	assert.InDelta(t, 3.0, rounded.Values["servers"], 1e-12)
	assert.InDelta(t, 1.3, rounded.Values["service_rate"], 1e-9)
}

func TestInputRangeFeasible(t *testing.T) {
	def := loadTestProblem(t)

	assert.True(t, def.InputRangeFeasible(inputs(t, 5, 2)))
	assert.False(t, def.InputRangeFeasible(inputs(t, 0, 2)), "below lower bound")
	assert.False(t, def.InputRangeFeasible(inputs(t, 25, 2)), "above upper bound")

	partial, err := models.NewModelInputs("mmc-queue", map[string]float64{"servers": 5})
	require.NoError(t, err)
	assert.False(t, def.InputRangeFeasible(partial), "missing input")
}

func TestLinearConstraintFeasible(t *testing.T) {
	def := loadTestProblem(t)
	assert.True(t, def.LinearConstraintFeasible(inputs(t, 15, 2)))
	assert.False(t, def.LinearConstraintFeasible(inputs(t, 16, 2)))
}

func responsesWith(t *testing.T, waitTime float64, variance float64, count int) *statistics.ResponseMap {
	t.Helper()
	rm := statistics.NewResponseMap("mmc-queue", nil)
	e, err := statistics.NewEstimatedResponse("wait_time", waitTime, variance, count)
	require.NoError(t, err)
	require.NoError(t, rm.Add(e))
	return rm
}

func TestResponseConstraintViolations(t *testing.T) {
	def := loadTestProblem(t)

	assert.Equal(t, 0.0, def.ResponseConstraintViolations(responsesWith(t, 1.5, 0.1, 10)))
	assert.InDelta(t, 0.5, def.ResponseConstraintViolations(responsesWith(t, 2.5, 0.1, 10)), 1e-12)

	// Responses without an estimate contribute nothing.
	empty := statistics.NewResponseMap("mmc-queue", nil)
	assert.Equal(t, 0.0, def.ResponseConstraintViolations(empty))
}

func TestResponseConstraintFeasible(t *testing.T) {
	def := loadTestProblem(t)

	// Well under the limit with a tight interval: feasible.
	assert.True(t, def.ResponseConstraintFeasible(responsesWith(t, 1.0, 0.01, 30), 0.95))

	// Average above the limit but interval reaches back under it: still
	// possibly feasible.
	assert.True(t, def.ResponseConstraintFeasible(responsesWith(t, 2.2, 4.0, 10), 0.95))

	// The whole interval sits above the limit: infeasible.
	assert.False(t, def.ResponseConstraintFeasible(responsesWith(t, 10.0, 0.01, 30), 0.95))

	// Single observation falls back to the point average.
	assert.True(t, def.ResponseConstraintFeasible(responsesWith(t, 1.9, math.NaN(), 1), 0.95))
	assert.False(t, def.ResponseConstraintFeasible(responsesWith(t, 2.1, math.NaN(), 1), 0.95))

	// A missing constrained response is infeasible.
	empty := statistics.NewResponseMap("mmc-queue", nil)
	assert.False(t, def.ResponseConstraintFeasible(empty, 0.95))
}
