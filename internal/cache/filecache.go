package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/simoptlab/simopt/internal/models"
	"github.com/simoptlab/simopt/internal/statistics"
)

// FileCache persists solutions as zstd-compressed JSON files, one per
// design-point key, so cached replications survive across runs. File names
// are the SHA-256 of the input key.
//
// Solutions do not serialize their problem reference, so a FileCache is
// bound at construction to the problem whose solutions it stores; entries
// are rehydrated against that problem on read.
type FileCache struct {
	dir       string
	problem   models.FeasibilityChecker
	objective string
	mu        sync.Mutex
}

// NewFileCache creates a file cache rooted at dir for solutions of the
// given problem.
func NewFileCache(dir string, problem models.FeasibilityChecker, objectiveName string) *FileCache {
	return &FileCache{dir: dir, problem: problem, objective: objectiveName}
}

type estimateRecord struct {
	Name     string   `json:"name"`
	Average  float64  `json:"average"`
	Variance *float64 `json:"variance,omitempty"` // nil for single observations
	Count    int      `json:"count"`
}

type solutionRecord struct {
	ModelID   string             `json:"model_id"`
	Inputs    map[string]float64 `json:"inputs"`
	Iteration int                `json:"iteration"`
	Bad       bool               `json:"bad"`
	Responses []estimateRecord   `json:"responses"`
}

// Get reads and rehydrates the cached solution for key, if present and
// decodable. Undecodable entries count as misses.
func (c *FileCache) Get(key models.InputKey) (*models.Solution, bool) {
	if c.dir == "" {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *FileCache) getLocked(key models.InputKey) (*models.Solution, bool) {
	data, err := os.ReadFile(c.entryPath(key))
	if err != nil {
		return nil, false
	}

	reader, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, false
	}
	defer reader.Close()

	var record solutionRecord
	if err := json.NewDecoder(reader).Decode(&record); err != nil {
		return nil, false
	}

	s, err := c.rehydrate(record)
	if err != nil {
		return nil, false
	}
	return s, true
}

// Put writes the solution for key, replacing any previous entry.
func (c *FileCache) Put(key models.InputKey, s *models.Solution) error {
	if c.dir == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	record := dehydrate(s)
	var buf bytes.Buffer
	writer, err := zstd.NewWriter(&buf)
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	if err := json.NewEncoder(writer).Encode(record); err != nil {
		writer.Close()
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("compressing cache entry: %w", err)
	}

	if err := os.WriteFile(c.entryPath(key), buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	return nil
}

// Retrieve batch-probes the cache for keys, returning the found subset.
func (c *FileCache) Retrieve(keys []models.InputKey) map[models.InputKey]*models.Solution {
	found := make(map[models.InputKey]*models.Solution)
	if c.dir == "" {
		return found
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		if s, ok := c.getLocked(key); ok {
			found[key] = s
		}
	}
	return found
}

// Clear removes all cached entries. It refuses to delete a directory that
// holds anything other than cache entry files.
func (c *FileCache) Clear() error {
	if c.dir == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading cache directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".zst" {
			return fmt.Errorf("cache directory contains non-cache entries - refusing to delete for safety")
		}
	}
	return os.RemoveAll(c.dir)
}

// Len counts the entries currently on disk.
func (c *FileCache) Len() int {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".zst" {
			n++
		}
	}
	return n
}

func (c *FileCache) entryPath(key models.InputKey) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+".json.zst")
}

func dehydrate(s *models.Solution) solutionRecord {
	inputs := s.Inputs()
	record := solutionRecord{
		ModelID:   inputs.ModelID,
		Inputs:    inputs.Values,
		Iteration: s.Iteration(),
		Bad:       s.IsBad(),
	}
	responses := s.Responses()
	for _, name := range responses.Names() {
		e, _ := responses.Get(name)
		er := estimateRecord{Name: name, Average: e.Average(), Count: e.Count()}
		if v := e.Variance(); !math.IsNaN(v) {
			er.Variance = &v
		}
		record.Responses = append(record.Responses, er)
	}
	return record
}

func (c *FileCache) rehydrate(record solutionRecord) (*models.Solution, error) {
	inputs, err := models.NewModelInputs(record.ModelID, record.Inputs)
	if err != nil {
		return nil, err
	}
	if record.Bad {
		return models.NewBadSolution(c.problem, inputs, record.Iteration), nil
	}

	rm := statistics.NewResponseMap(record.ModelID, nil)
	for _, er := range record.Responses {
		variance := math.NaN()
		if er.Variance != nil {
			variance = *er.Variance
		}
		e, err := statistics.NewEstimatedResponse(er.Name, er.Average, variance, er.Count)
		if err != nil {
			return nil, err
		}
		if err := rm.Add(e); err != nil {
			return nil, err
		}
	}
	return models.NewSolution(c.problem, inputs, rm, c.objective, record.Iteration)
}
