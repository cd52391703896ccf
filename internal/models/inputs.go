// Package models defines the value types that flow between a solver, the
// evaluator, and the solution cache: design points, validated evaluation
// requests, and evaluated solutions.
package models

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// InputKey is the identity of a design point for caching and deduplication.
// It is derived from the model identifier and the granularity-rounded input
// values only; transient metadata such as request timestamps never
// participates. Two points that differ only below granularity map to the
// same key.
type InputKey string

// ModelInputs identifies one design point: a model identifier plus a named
// assignment of input values. RequestTime is bookkeeping metadata and is
// deliberately excluded from Key.
type ModelInputs struct {
	ModelID     string
	Values      map[string]float64
	RequestTime time.Time
}

// NewModelInputs builds a design point from a model identifier and values.
func NewModelInputs(modelID string, values map[string]float64) (ModelInputs, error) {
	if strings.TrimSpace(modelID) == "" {
		return ModelInputs{}, fmt.Errorf("model identifier must not be blank")
	}
	if len(values) == 0 {
		return ModelInputs{}, fmt.Errorf("model %q: input values must not be empty", modelID)
	}
	copied := make(map[string]float64, len(values))
	for name, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ModelInputs{}, fmt.Errorf("model %q: input %q must be finite, got %v", modelID, name, v)
		}
		copied[name] = v
	}
	return ModelInputs{ModelID: modelID, Values: copied, RequestTime: time.Now()}, nil
}

// Rounded returns a copy with every value snapped to the nearest multiple of
// its declared granularity. Inputs without a declared granularity (or with a
// non-positive one) pass through unchanged. Rounding before keying is what
// stabilizes cache keys.
func (m ModelInputs) Rounded(granularity map[string]float64) ModelInputs {
	values := make(map[string]float64, len(m.Values))
	for name, v := range m.Values {
		if g, ok := granularity[name]; ok && g > 0 {
			v = math.Round(v/g) * g
		}
		values[name] = v
	}
	return ModelInputs{ModelID: m.ModelID, Values: values, RequestTime: m.RequestTime}
}

// Key returns the cache/deduplication identity of this point. Values should
// already be granularity-rounded; Key itself applies no rounding.
func (m ModelInputs) Key() InputKey {
	names := make([]string, 0, len(m.Values))
	for name := range m.Values {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(m.ModelID)
	for _, name := range names {
		b.WriteByte('|')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(m.Values[name], 'g', -1, 64))
	}
	return InputKey(b.String())
}

// Distance returns the Euclidean distance between two points over the union
// of their input names, treating a missing name as zero. Used by the
// neighborhood selection strategies.
func (m ModelInputs) Distance(other ModelInputs) float64 {
	sum := 0.0
	seen := make(map[string]struct{}, len(m.Values))
	for name, v := range m.Values {
		d := v - other.Values[name]
		sum += d * d
		seen[name] = struct{}{}
	}
	for name, v := range other.Values {
		if _, ok := seen[name]; !ok {
			sum += v * v
		}
	}
	return math.Sqrt(sum)
}

// String renders the point in key form, which is stable and readable.
func (m ModelInputs) String() string { return string(m.Key()) }
