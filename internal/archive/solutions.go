// Package archive provides the bounded, ranked, deduplicating retention
// structure solvers use to track the best discovered design points across
// iterations, together with the pluggable solution-equality strategies used
// for statistical tie detection.
package archive

import (
	"sort"
	"sync"

	"github.com/simoptlab/simopt/internal/models"
)

// DefaultCapacity bounds a Solutions container when none is given.
const DefaultCapacity = 10

// Solutions is a bounded retention container. Insertion order is tracked
// separately from priority order: eviction at capacity is FIFO by insertion,
// regardless of quality, while the ordered queries rank by penalized
// objective (ascending, lower is better). Entries are deduplicated by input
// key; a duplicate only replaces the resident entry when it carries strictly
// more replications.
type Solutions struct {
	mu              sync.Mutex
	capacity        int
	allowInfeasible bool
	entries         []*models.Solution // insertion order
	byKey           map[models.InputKey]int
}

// SolutionsOption configures a Solutions container.
type SolutionsOption func(*Solutions)

// WithCapacity sets the maximum number of distinct entries retained.
func WithCapacity(n int) SolutionsOption {
	return func(s *Solutions) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithAllowInfeasible admits input-infeasible solutions instead of silently
// dropping them.
func WithAllowInfeasible(allow bool) SolutionsOption {
	return func(s *Solutions) { s.allowInfeasible = allow }
}

// NewSolutions creates an empty container with DefaultCapacity unless
// overridden.
func NewSolutions(opts ...SolutionsOption) *Solutions {
	s := &Solutions{
		capacity: DefaultCapacity,
		byKey:    make(map[models.InputKey]int),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Len returns the number of retained entries.
func (s *Solutions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Capacity returns the retention bound.
func (s *Solutions) Capacity() int { return s.capacity }

// Add offers a solution to the container. It returns the entry that was
// evicted to make room (nil when none) and whether the offered solution was
// actually admitted.
//
// Cases, in order:
//   - input-infeasible and infeasible entries are disallowed: dropped
//   - same input key already present: replace only when the incoming
//     replication count is strictly greater, returning the displaced entry
//   - container full: evict the oldest-inserted entry FIFO, insert, return
//     the evicted entry
//   - otherwise: plain insert
func (s *Solutions) Add(sol *models.Solution) (evicted *models.Solution, added bool) {
	if sol == nil {
		return nil, false
	}
	if !s.allowInfeasible && !sol.InputRangeFeasible() {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := sol.Key()
	if idx, ok := s.byKey[key]; ok {
		existing := s.entries[idx]
		if sol.Count() > existing.Count() {
			s.entries[idx] = sol
			return existing, true
		}
		return nil, false
	}

	if len(s.entries) >= s.capacity {
		evicted = s.entries[0]
		s.entries = append(s.entries[1:], sol)
		delete(s.byKey, evicted.Key())
		s.reindex()
		return evicted, true
	}

	s.byKey[key] = len(s.entries)
	s.entries = append(s.entries, sol)
	return nil, true
}

func (s *Solutions) reindex() {
	for i, e := range s.entries {
		s.byKey[e.Key()] = i
	}
}

// OrderedSolutions returns all entries sorted by penalized objective,
// ascending.
func (s *Solutions) OrderedSolutions() []*models.Solution {
	s.mu.Lock()
	out := make([]*models.Solution, len(s.entries))
	copy(out, s.entries)
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PenalizedObjective() < out[j].PenalizedObjective()
	})
	return out
}

// OrderedInputFeasibleSolutions returns the input-feasible entries sorted by
// penalized objective, ascending.
func (s *Solutions) OrderedInputFeasibleSolutions() []*models.Solution {
	ordered := s.OrderedSolutions()
	out := ordered[:0]
	for _, e := range ordered {
		if e.InputRangeFeasible() {
			out = append(out, e)
		}
	}
	return out
}

// PeekBest returns the entry with the lowest penalized objective without
// removing it, or nil when empty.
func (s *Solutions) PeekBest() *models.Solution {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *models.Solution
	for _, e := range s.entries {
		if best == nil || e.PenalizedObjective() < best.PenalizedObjective() {
			best = e
		}
	}
	return best
}

// PossiblyBest returns every entry that compares tied-or-better than the
// best entry under the supplied comparator. With a statistical comparator
// this yields the set of solutions that cannot be distinguished from the
// best at the comparator's confidence level.
func (s *Solutions) PossiblyBest(cmp Comparator) []*models.Solution {
	best := s.PeekBest()
	if best == nil {
		return nil
	}

	s.mu.Lock()
	entries := make([]*models.Solution, len(s.entries))
	copy(entries, s.entries)
	s.mu.Unlock()

	var out []*models.Solution
	for _, e := range entries {
		if cmp.Compare(e, best) <= 0 {
			out = append(out, e)
		}
	}
	return out
}
