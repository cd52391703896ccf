package statistics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEstimate(t *testing.T, name string, avg, variance float64, count int) EstimatedResponse {
	t.Helper()
	e, err := NewEstimatedResponse(name, avg, variance, count)
	require.NoError(t, err)
	return e
}

func TestResponseMap_AddAndGet(t *testing.T) {
	rm := NewResponseMap("mmc-queue", []string{"wait_time", "utilization"})

	require.NoError(t, rm.Add(mustEstimate(t, "wait_time", 1.0, 0.1, 5)))
	require.NoError(t, rm.Add(mustEstimate(t, "utilization", 0.8, 0.01, 5)))

	e, ok := rm.Get("wait_time")
	require.True(t, ok)
	assert.Equal(t, 1.0, e.Average())

	_, ok = rm.Get("total_cost")
	assert.False(t, ok)

	assert.Equal(t, []string{"utilization", "wait_time"}, rm.Names())
	assert.Equal(t, 2, rm.Len())
}

func TestResponseMap_RejectsUnknownName(t *testing.T) {
	rm := NewResponseMap("mmc-queue", []string{"wait_time"})
	err := rm.Add(mustEstimate(t, "throughput", 1.0, 0.1, 5))
	assert.Error(t, err)

	// Unscoped maps accept anything.
	open := NewResponseMap("mmc-queue", nil)
	assert.NoError(t, open.Add(mustEstimate(t, "throughput", 1.0, 0.1, 5)))
}

func TestResponseMap_MergeAccumulatesCounts(t *testing.T) {
	rm := NewResponseMap("m", nil)
	require.NoError(t, rm.Merge(mustEstimate(t, "obj", 2.0, 0.5, 4)))
	require.NoError(t, rm.Merge(mustEstimate(t, "obj", 4.0, 0.5, 4)))

	e, ok := rm.Get("obj")
	require.True(t, ok)
	assert.Equal(t, 8, e.Count())
	assert.InDelta(t, 3.0, e.Average(), 1e-12)
}

func TestResponseMap_MergeAll(t *testing.T) {
	a := NewResponseMap("m", nil)
	require.NoError(t, a.Add(mustEstimate(t, "obj", 2.0, 0.5, 3)))
	require.NoError(t, a.Add(mustEstimate(t, "util", 0.5, 0.1, 3)))

	b := NewResponseMap("m", nil)
	require.NoError(t, b.Add(mustEstimate(t, "obj", 4.0, 0.5, 7)))
	require.NoError(t, b.Add(mustEstimate(t, "util", 0.7, 0.1, 7)))

	require.NoError(t, a.MergeAll(b))

	obj, _ := a.Get("obj")
	assert.Equal(t, 10, obj.Count())
	util, _ := a.Get("util")
	assert.Equal(t, 10, util.Count())

	// b is untouched.
	objB, _ := b.Get("obj")
	assert.Equal(t, 7, objB.Count())
}

func TestResponseMap_MergeAllModelMismatch(t *testing.T) {
	a := NewResponseMap("m1", nil)
	b := NewResponseMap("m2", nil)
	assert.Error(t, a.MergeAll(b))
}

func TestResponseMap_HasAllResponses(t *testing.T) {
	rm := NewResponseMap("m", nil)
	require.NoError(t, rm.Add(mustEstimate(t, "a", 1, 1, 2)))
	require.NoError(t, rm.Add(mustEstimate(t, "b", 1, 1, 2)))

	assert.True(t, rm.HasAllResponses([]string{"a", "b"}))
	assert.True(t, rm.HasAllResponses(nil))
	assert.False(t, rm.HasAllResponses([]string{"a", "b", "c"}))
}

func TestResponseMap_HasRequestedReplications(t *testing.T) {
	rm := NewResponseMap("m", nil)
	assert.False(t, rm.HasRequestedReplications(1)) // empty map satisfies nothing

	require.NoError(t, rm.Add(mustEstimate(t, "a", 1, 1, 5)))
	require.NoError(t, rm.Add(mustEstimate(t, "b", 1, 1, 3)))

	assert.True(t, rm.HasRequestedReplications(3))
	assert.False(t, rm.HasRequestedReplications(5))
}

func TestResponseMap_CloneIsIndependent(t *testing.T) {
	rm := NewResponseMap("m", []string{"a"})
	require.NoError(t, rm.Add(mustEstimate(t, "a", 1, 1, 2)))

	clone := rm.Clone()
	require.NoError(t, clone.Merge(mustEstimate(t, "a", 3, 1, 2)))

	orig, _ := rm.Get("a")
	assert.Equal(t, 2, orig.Count())
	merged, _ := clone.Get("a")
	assert.Equal(t, 4, merged.Count())
}
