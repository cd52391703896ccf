package solver

import (
	"fmt"
	"math/rand"

	"github.com/go-viper/mapstructure/v2"

	"github.com/simoptlab/simopt/internal/models"
)

// Selector picks the archive entry the next iteration should explore
// around. Strategies trade off exploitation (closest) against exploration
// (furthest, random) and evaluation-budget spread (least utilized).
type Selector interface {
	Name() string
	Pick(candidates []*models.Solution, current *models.Solution, rng *rand.Rand) *models.Solution
}

// SelectorKind selects a point-selection strategy.
type SelectorKind string

const (
	KindRandom        SelectorKind = "random"
	KindClosest       SelectorKind = "closest"
	KindFurthest      SelectorKind = "furthest"
	KindLeastUtilized SelectorKind = "least_utilized"
)

// NewSelector builds a selection strategy from its kind and a free-form
// parameter map.
func NewSelector(kind SelectorKind, params map[string]any) (Selector, error) {
	switch kind {
	case KindRandom:
		return RandomSelector{}, nil
	case KindClosest:
		return ClosestSelector{}, nil
	case KindFurthest:
		return FurthestSelector{}, nil
	case KindLeastUtilized:
		var v struct {
			// TopN restricts the pick to the n best-ranked candidates;
			// 0 means consider all of them.
			TopN int `mapstructure:"top_n"`
		}
		if err := mapstructure.Decode(params, &v); err != nil {
			return nil, err
		}
		if v.TopN < 0 {
			return nil, fmt.Errorf("top_n must be non-negative, got %d", v.TopN)
		}
		return LeastUtilizedSelector{TopN: v.TopN}, nil
	default:
		return nil, fmt.Errorf("%q is not a valid selector kind", kind)
	}
}

// RandomSelector picks uniformly among the candidates.
type RandomSelector struct{}

func (RandomSelector) Name() string { return string(KindRandom) }

func (RandomSelector) Pick(candidates []*models.Solution, _ *models.Solution, rng *rand.Rand) *models.Solution {
	if len(candidates) == 0 {
		return nil
	}
	return candidates[rng.Intn(len(candidates))]
}

// ClosestSelector picks the candidate nearest the current point in input
// space, intensifying the search locally.
type ClosestSelector struct{}

func (ClosestSelector) Name() string { return string(KindClosest) }

func (ClosestSelector) Pick(candidates []*models.Solution, current *models.Solution, rng *rand.Rand) *models.Solution {
	return pickByDistance(candidates, current, rng, func(d, best float64) bool { return d < best })
}

// FurthestSelector picks the candidate farthest from the current point,
// diversifying the search.
type FurthestSelector struct{}

func (FurthestSelector) Name() string { return string(KindFurthest) }

func (FurthestSelector) Pick(candidates []*models.Solution, current *models.Solution, rng *rand.Rand) *models.Solution {
	return pickByDistance(candidates, current, rng, func(d, best float64) bool { return d > best })
}

func pickByDistance(candidates []*models.Solution, current *models.Solution, rng *rand.Rand, better func(d, best float64) bool) *models.Solution {
	if len(candidates) == 0 {
		return nil
	}
	if current == nil {
		return candidates[rng.Intn(len(candidates))]
	}
	pick := candidates[0]
	best := pick.Inputs().Distance(current.Inputs())
	for _, c := range candidates[1:] {
		if d := c.Inputs().Distance(current.Inputs()); better(d, best) {
			pick, best = c, d
		}
	}
	return pick
}

// LeastUtilizedSelector picks the candidate whose objective estimate has the
// fewest replications, steering evaluation budget toward under-sampled
// points.
type LeastUtilizedSelector struct {
	TopN int
}

func (LeastUtilizedSelector) Name() string { return string(KindLeastUtilized) }

func (s LeastUtilizedSelector) Pick(candidates []*models.Solution, _ *models.Solution, rng *rand.Rand) *models.Solution {
	if len(candidates) == 0 {
		return nil
	}
	pool := candidates
	if s.TopN > 0 && s.TopN < len(pool) {
		pool = pool[:s.TopN]
	}
	pick := pool[0]
	for _, c := range pool[1:] {
		if c.Count() < pick.Count() {
			pick = c
		}
	}
	return pick
}
