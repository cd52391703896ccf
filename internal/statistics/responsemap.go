package statistics

import (
	"fmt"
	"sort"
)

// ResponseMap collects the named response estimates for one evaluated design
// point. The map is scoped to a model identifier and, optionally, to the set
// of response names the owning problem recognizes; adding an estimate under
// an unrecognized name is rejected.
type ResponseMap struct {
	modelID   string
	allowed   map[string]struct{}
	estimates map[string]EstimatedResponse
}

// NewResponseMap creates an empty response map scoped to modelID. When
// allowedNames is non-empty, only those names may be added.
func NewResponseMap(modelID string, allowedNames []string) *ResponseMap {
	var allowed map[string]struct{}
	if len(allowedNames) > 0 {
		allowed = make(map[string]struct{}, len(allowedNames))
		for _, name := range allowedNames {
			allowed[name] = struct{}{}
		}
	}
	return &ResponseMap{
		modelID:   modelID,
		allowed:   allowed,
		estimates: make(map[string]EstimatedResponse),
	}
}

// ModelID returns the model identifier this map is scoped to.
func (m *ResponseMap) ModelID() string { return m.modelID }

// Len returns the number of estimates held.
func (m *ResponseMap) Len() int { return len(m.estimates) }

// Get returns the estimate for name, if present.
func (m *ResponseMap) Get(name string) (EstimatedResponse, bool) {
	e, ok := m.estimates[name]
	return e, ok
}

// Names returns the held response names in sorted order.
func (m *ResponseMap) Names() []string {
	names := make([]string, 0, len(m.estimates))
	for name := range m.estimates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Add inserts or replaces the estimate under its name.
func (m *ResponseMap) Add(e EstimatedResponse) error {
	if err := m.checkName(e.Name()); err != nil {
		return err
	}
	m.estimates[e.Name()] = e
	return nil
}

// Merge combines e with any existing estimate of the same name, inserting it
// when the name is not yet present. Both sides must represent independent
// replications of the same design point.
func (m *ResponseMap) Merge(e EstimatedResponse) error {
	if err := m.checkName(e.Name()); err != nil {
		return err
	}
	current, ok := m.estimates[e.Name()]
	if !ok {
		m.estimates[e.Name()] = e
		return nil
	}
	merged, err := current.Merge(e)
	if err != nil {
		return err
	}
	m.estimates[e.Name()] = merged
	return nil
}

// MergeAll applies Merge for every estimate of other. Used to fold a freshly
// simulated gap result into a cached partial result for the same point; the
// two maps must cover the same model.
func (m *ResponseMap) MergeAll(other *ResponseMap) error {
	if other.modelID != m.modelID {
		return fmt.Errorf("cannot merge responses for model %q into model %q", other.modelID, m.modelID)
	}
	for _, name := range other.Names() {
		if err := m.Merge(other.estimates[name]); err != nil {
			return err
		}
	}
	return nil
}

// HasAllResponses reports whether every required name has an estimate.
func (m *ResponseMap) HasAllResponses(required []string) bool {
	for _, name := range required {
		if _, ok := m.estimates[name]; !ok {
			return false
		}
	}
	return true
}

// HasRequestedReplications reports whether every held estimate carries at
// least n observations.
func (m *ResponseMap) HasRequestedReplications(n int) bool {
	for _, e := range m.estimates {
		if e.Count() < n {
			return false
		}
	}
	return len(m.estimates) > 0
}

func (m *ResponseMap) checkName(name string) error {
	if m.allowed == nil {
		return nil
	}
	if _, ok := m.allowed[name]; !ok {
		return fmt.Errorf("response %q is not recognized by model %q", name, m.modelID)
	}
	return nil
}

// Clone returns a deep copy. Estimates themselves are immutable values so a
// shallow copy of the map suffices.
func (m *ResponseMap) Clone() *ResponseMap {
	clone := &ResponseMap{
		modelID:   m.modelID,
		estimates: make(map[string]EstimatedResponse, len(m.estimates)),
	}
	if m.allowed != nil {
		clone.allowed = make(map[string]struct{}, len(m.allowed))
		for name := range m.allowed {
			clone.allowed[name] = struct{}{}
		}
	}
	for name, e := range m.estimates {
		clone.estimates[name] = e
	}
	return clone
}
