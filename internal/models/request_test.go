package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvaluationRequest(t *testing.T) {
	p1 := mustInputs(t, "m", map[string]float64{"x": 1})
	p2 := mustInputs(t, "m", map[string]float64{"x": 2})

	req, err := NewEvaluationRequest("m", []ModelInputs{p1, p2}, 5, false, true)
	require.NoError(t, err)
	assert.Equal(t, "m", req.ModelID())
	assert.Equal(t, 2, req.Len())
	assert.Equal(t, 5, req.Replications())
	assert.False(t, req.CRN())
	assert.True(t, req.CachingAllowed())
}

func TestNewEvaluationRequest_Rejections(t *testing.T) {
	p1 := mustInputs(t, "m", map[string]float64{"x": 1})
	p2 := mustInputs(t, "m", map[string]float64{"x": 2})
	other := mustInputs(t, "other", map[string]float64{"x": 1})

	tests := []struct {
		name   string
		model  string
		points []ModelInputs
		reps   int
		crn    bool
		cache  bool
	}{
		{"blank model", "", []ModelInputs{p1}, 1, false, false},
		{"no points", "m", nil, 1, false, false},
		{"zero replications", "m", []ModelInputs{p1}, 0, false, false},
		{"crn with one point", "m", []ModelInputs{p1}, 2, true, false},
		{"crn with caching", "m", []ModelInputs{p1, p2}, 2, true, true},
		{"foreign point", "m", []ModelInputs{p1, other}, 1, false, false},
		{"duplicate point", "m", []ModelInputs{p1, p1}, 1, false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewEvaluationRequest(tc.model, tc.points, tc.reps, tc.crn, tc.cache)
			assert.Error(t, err)
		})
	}
}

func TestNewEvaluationRequest_CRNWithTwoPoints(t *testing.T) {
	p1 := mustInputs(t, "m", map[string]float64{"x": 1})
	p2 := mustInputs(t, "m", map[string]float64{"x": 2})

	req, err := NewEvaluationRequest("m", []ModelInputs{p1, p2}, 3, true, false)
	require.NoError(t, err)
	assert.True(t, req.CRN())
	assert.False(t, req.CachingAllowed())
}

func TestPoints_ReturnsCopyInRequestOrder(t *testing.T) {
	p1 := mustInputs(t, "m", map[string]float64{"x": 1})
	p2 := mustInputs(t, "m", map[string]float64{"x": 2})

	req, err := NewEvaluationRequest("m", []ModelInputs{p2, p1}, 1, false, false)
	require.NoError(t, err)

	pts := req.Points()
	require.Len(t, pts, 2)
	assert.Equal(t, p2.Key(), pts[0].Key())
	assert.Equal(t, p1.Key(), pts[1].Key())

	pts[0] = p1
	assert.Equal(t, p2.Key(), req.Points()[0].Key())
}
