package archive

import (
	"fmt"
	"math"

	"github.com/go-viper/mapstructure/v2"

	"github.com/simoptlab/simopt/internal/models"
)

// Comparator orders two solutions. A return of 0 means the two are treated
// as equal under the strategy's notion of equality; negative means a ranks
// better (lower) than b.
type Comparator interface {
	Name() string
	Compare(a, b *models.Solution) int
}

// ComparatorKind selects a comparator strategy.
type ComparatorKind string

const (
	// KindInputEquality treats solutions at the same design point as equal
	// regardless of their objectives.
	KindInputEquality ComparatorKind = "input_equality"
	// KindPrecision treats penalized objectives within a fixed precision
	// as equal.
	KindPrecision ComparatorKind = "precision"
	// KindConfidenceInterval treats two solutions as equal when a
	// confidence interval on their objective difference covers an
	// indifference-zone-widened neighborhood of zero.
	KindConfidenceInterval ComparatorKind = "confidence_interval"
)

// NewComparator builds a comparator strategy from its kind and a free-form
// parameter map.
func NewComparator(kind ComparatorKind, params map[string]any) (Comparator, error) {
	switch kind {
	case KindInputEquality:
		return InputEqualityComparator{}, nil
	case KindPrecision:
		var v struct {
			Precision float64 `mapstructure:"precision"`
		}
		if err := mapstructure.Decode(params, &v); err != nil {
			return nil, err
		}
		if v.Precision < 0 {
			return nil, fmt.Errorf("precision must be non-negative, got %v", v.Precision)
		}
		return PrecisionComparator{Precision: v.Precision}, nil
	case KindConfidenceInterval:
		v := struct {
			Level            float64 `mapstructure:"level"`
			IndifferenceZone float64 `mapstructure:"indifference_zone"`
		}{Level: 0.95}
		if err := mapstructure.Decode(params, &v); err != nil {
			return nil, err
		}
		if v.Level <= 0 || v.Level >= 1 {
			return nil, fmt.Errorf("confidence level must be in (0,1), got %v", v.Level)
		}
		if v.IndifferenceZone < 0 {
			return nil, fmt.Errorf("indifference zone must be non-negative, got %v", v.IndifferenceZone)
		}
		return ConfidenceIntervalComparator{Level: v.Level, IndifferenceZone: v.IndifferenceZone}, nil
	default:
		return nil, fmt.Errorf("%q is not a valid comparator kind", kind)
	}
}

// InputEqualityComparator compares by design point first: same inputs means
// equal, different inputs fall back to the penalized objective.
type InputEqualityComparator struct{}

func (InputEqualityComparator) Name() string { return string(KindInputEquality) }

func (InputEqualityComparator) Compare(a, b *models.Solution) int {
	if a.Key() == b.Key() {
		return 0
	}
	return comparePenalized(a, b, 0)
}

// PrecisionComparator treats penalized objectives within Precision of each
// other as equal.
type PrecisionComparator struct {
	Precision float64
}

func (c PrecisionComparator) Name() string { return string(KindPrecision) }

func (c PrecisionComparator) Compare(a, b *models.Solution) int {
	return comparePenalized(a, b, c.Precision)
}

// ConfidenceIntervalComparator declares two solutions equal when the
// level-L confidence interval on their objective difference, widened by the
// indifference zone, contains zero. Assumes the two estimates are
// independent.
type ConfidenceIntervalComparator struct {
	Level            float64
	IndifferenceZone float64
}

func (c ConfidenceIntervalComparator) Name() string { return string(KindConfidenceInterval) }

func (c ConfidenceIntervalComparator) Compare(a, b *models.Solution) int {
	if a.IsBad() || b.IsBad() {
		return comparePenalized(a, b, 0)
	}
	diff := a.EstimatedObjective().Average() - b.EstimatedObjective().Average()
	width := a.EstimatedObjective().ScreeningWidth(b.EstimatedObjective(), c.Level)
	if math.IsNaN(width) {
		// Single-observation estimates carry no interval; fall back to the
		// indifference zone alone.
		width = 0
	}
	if math.Abs(diff) <= width+c.IndifferenceZone {
		return 0
	}
	if diff < 0 {
		return -1
	}
	return 1
}

func comparePenalized(a, b *models.Solution, tolerance float64) int {
	pa, pb := a.PenalizedObjective(), b.PenalizedObjective()
	if pa == pb || math.Abs(pa-pb) <= tolerance {
		return 0
	}
	if pa < pb {
		return -1
	}
	return 1
}
