package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simoptlab/simopt/internal/models"
	"github.com/simoptlab/simopt/internal/statistics"
)

// permissiveProblem accepts everything; cache tests do not exercise
// feasibility.
type permissiveProblem struct{}

func (permissiveProblem) InputRangeFeasible(models.ModelInputs) bool                   { return true }
func (permissiveProblem) LinearConstraintFeasible(models.ModelInputs) bool             { return true }
func (permissiveProblem) ResponseConstraintViolations(*statistics.ResponseMap) float64 { return 0 }
func (permissiveProblem) ResponseConstraintFeasible(*statistics.ResponseMap, float64) bool {
	return true
}

func testSolution(t *testing.T, x float64, count int) *models.Solution {
	t.Helper()
	inputs, err := models.NewModelInputs("m", map[string]float64{"x": x})
	require.NoError(t, err)

	rm := statistics.NewResponseMap("m", nil)
	obj, err := statistics.NewEstimatedResponse("obj", 12.5, 2.0, count)
	require.NoError(t, err)
	require.NoError(t, rm.Add(obj))
	util, err := statistics.NewEstimatedResponse("util", 0.8, 0.01, count)
	require.NoError(t, err)
	require.NoError(t, rm.Add(util))

	sol, err := models.NewSolution(permissiveProblem{}, inputs, rm, "obj", 4)
	require.NoError(t, err)
	return sol
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	sol := testSolution(t, 1, 5)

	_, ok := c.Get(sol.Key())
	assert.False(t, ok)

	require.NoError(t, c.Put(sol.Key(), sol))
	got, ok := c.Get(sol.Key())
	require.True(t, ok)
	assert.Equal(t, sol.Key(), got.Key())
	assert.Equal(t, 1, c.Len())

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestMemoryCache_Retrieve(t *testing.T) {
	c := NewMemoryCache()
	a := testSolution(t, 1, 5)
	b := testSolution(t, 2, 5)
	require.NoError(t, c.Put(a.Key(), a))

	found := c.Retrieve([]models.InputKey{a.Key(), b.Key()})
	require.Len(t, found, 1)
	assert.Contains(t, found, a.Key())
}

func TestFileCache_RoundTrip(t *testing.T) {
	c := NewFileCache(t.TempDir(), permissiveProblem{}, "obj")
	sol := testSolution(t, 3, 7)

	require.NoError(t, c.Put(sol.Key(), sol))

	got, ok := c.Get(sol.Key())
	require.True(t, ok)
	assert.Equal(t, sol.Key(), got.Key())
	assert.Equal(t, 7, got.Count())
	assert.Equal(t, 4, got.Iteration())
	assert.False(t, got.IsBad())

	obj := got.EstimatedObjective()
	assert.Equal(t, 12.5, obj.Average())
	assert.Equal(t, 2.0, obj.Variance())

	util, ok := got.Responses().Get("util")
	require.True(t, ok)
	assert.Equal(t, 0.8, util.Average())
}

func TestFileCache_SingleObservationRoundTrip(t *testing.T) {
	c := NewFileCache(t.TempDir(), permissiveProblem{}, "obj")
	sol := testSolution(t, 3, 1)

	require.NoError(t, c.Put(sol.Key(), sol))
	got, ok := c.Get(sol.Key())
	require.True(t, ok)
	assert.Equal(t, 1, got.Count())
	// A single observation has no variance estimate; NaN survives the trip.
	assert.NotEqual(t, got.EstimatedObjective().Variance(), got.EstimatedObjective().Variance())
}

func TestFileCache_BadSolutionRoundTrip(t *testing.T) {
	c := NewFileCache(t.TempDir(), permissiveProblem{}, "obj")
	inputs, err := models.NewModelInputs("m", map[string]float64{"x": 1})
	require.NoError(t, err)
	bad := models.NewBadSolution(permissiveProblem{}, inputs, 6)

	require.NoError(t, c.Put(bad.Key(), bad))
	got, ok := c.Get(bad.Key())
	require.True(t, ok)
	assert.True(t, got.IsBad())
	assert.Equal(t, 6, got.Iteration())
}

func TestFileCache_MissAndCorruptEntry(t *testing.T) {
	dir := t.TempDir()
	c := NewFileCache(dir, permissiveProblem{}, "obj")
	sol := testSolution(t, 9, 5)

	_, ok := c.Get(sol.Key())
	assert.False(t, ok)

	require.NoError(t, c.Put(sol.Key(), sol))

	// A corrupted entry reads as a miss, never an error.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	path := filepath.Join(dir, entries[0].Name())
	require.NoError(t, os.WriteFile(path, []byte("not zstd"), 0644))

	_, ok = c.Get(sol.Key())
	assert.False(t, ok)
}

func TestFileCache_Clear(t *testing.T) {
	dir := t.TempDir()
	c := NewFileCache(dir, permissiveProblem{}, "obj")

	require.NoError(t, c.Put(testSolution(t, 1, 5).Key(), testSolution(t, 1, 5)))
	require.NoError(t, c.Put(testSolution(t, 2, 5).Key(), testSolution(t, 2, 5)))
	assert.Equal(t, 2, c.Len())

	require.NoError(t, c.Clear())
	assert.Equal(t, 0, c.Len())

	// Clearing an already-empty cache is fine.
	assert.NoError(t, c.Clear())
}

func TestFileCache_ClearRefusesForeignFiles(t *testing.T) {
	dir := t.TempDir()
	c := NewFileCache(dir, permissiveProblem{}, "obj")
	require.NoError(t, c.Put(testSolution(t, 1, 5).Key(), testSolution(t, 1, 5)))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep me"), 0644))
	assert.Error(t, c.Clear())
}

func TestFileCache_Retrieve(t *testing.T) {
	c := NewFileCache(t.TempDir(), permissiveProblem{}, "obj")
	a := testSolution(t, 1, 5)
	b := testSolution(t, 2, 5)
	require.NoError(t, c.Put(a.Key(), a))

	found := c.Retrieve([]models.InputKey{a.Key(), b.Key()})
	require.Len(t, found, 1)
	assert.Contains(t, found, a.Key())
}
