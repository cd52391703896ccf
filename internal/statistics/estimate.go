// Package statistics holds the estimator types produced by replicated
// simulation runs: per-response point estimates and the named collections
// of them that one evaluated design point yields.
package statistics

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"
)

// EstimatedResponse is an immutable statistical summary of one named
// response: the sample average, sample variance, and observation count
// from some number of independent replications.
//
// A single observation carries no variance estimate; its variance is NaN.
type EstimatedResponse struct {
	name     string
	average  float64
	variance float64
	count    int
}

// NewEstimatedResponse validates and builds an estimate.
// The name must be non-blank, count must be at least 1, and the average
// must be finite. When count == 1 the variance is forced to NaN; otherwise
// it must be non-negative.
func NewEstimatedResponse(name string, average, variance float64, count int) (EstimatedResponse, error) {
	if strings.TrimSpace(name) == "" {
		return EstimatedResponse{}, fmt.Errorf("response name must not be blank")
	}
	if count < 1 {
		return EstimatedResponse{}, fmt.Errorf("response %q: count must be at least 1, got %d", name, count)
	}
	if math.IsNaN(average) || math.IsInf(average, 0) {
		return EstimatedResponse{}, fmt.Errorf("response %q: average must be finite, got %v", name, average)
	}
	if count == 1 {
		variance = math.NaN()
	} else if math.IsNaN(variance) || variance < 0 {
		return EstimatedResponse{}, fmt.Errorf("response %q: variance must be non-negative, got %v", name, variance)
	}
	return EstimatedResponse{name: name, average: average, variance: variance, count: count}, nil
}

// EstimateFromSample builds an estimate directly from raw replication data,
// using the unbiased (n-1) sample variance.
func EstimateFromSample(name string, observations []float64) (EstimatedResponse, error) {
	n := len(observations)
	if n == 0 {
		return EstimatedResponse{}, fmt.Errorf("response %q: no observations", name)
	}
	sum := 0.0
	for _, v := range observations {
		sum += v
	}
	mean := sum / float64(n)
	if n == 1 {
		return NewEstimatedResponse(name, mean, math.NaN(), 1)
	}
	sumSq := 0.0
	for _, v := range observations {
		d := v - mean
		sumSq += d * d
	}
	return NewEstimatedResponse(name, mean, sumSq/float64(n-1), n)
}

// Name returns the response name.
func (e EstimatedResponse) Name() string { return e.name }

// Average returns the sample average.
func (e EstimatedResponse) Average() float64 { return e.average }

// Variance returns the sample variance, NaN when only one observation exists.
func (e EstimatedResponse) Variance() float64 { return e.variance }

// Count returns the number of observations behind the estimate.
func (e EstimatedResponse) Count() int { return e.count }

// StandardDeviation returns sqrt(variance).
func (e EstimatedResponse) StandardDeviation() float64 { return math.Sqrt(e.variance) }

// StandardError returns the standard deviation of the mean estimator.
func (e EstimatedResponse) StandardError() float64 {
	return e.StandardDeviation() / math.Sqrt(float64(e.count))
}

// HalfWidth returns the half-width of a two-sided confidence interval on the
// mean at the given level, using a Student-t quantile with count-1 degrees of
// freedom. Returns NaN when count <= 1. The level must lie strictly in (0, 1).
func (e EstimatedResponse) HalfWidth(level float64) float64 {
	if level <= 0 || level >= 1 {
		panic(fmt.Sprintf("confidence level must be in (0,1), got %v", level))
	}
	if e.count <= 1 {
		return math.NaN()
	}
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(e.count - 1)}
	q := t.Quantile(1 - (1-level)/2)
	return q * e.StandardError()
}

// ScreeningWidth combines the half-widths of two independent estimates into
// the half-width of their difference. Used by ranking-and-selection clean-up
// procedures to decide whether two points are statistically separable.
func (e EstimatedResponse) ScreeningWidth(other EstimatedResponse, level float64) float64 {
	hw1 := e.HalfWidth(level)
	hw2 := other.HalfWidth(level)
	return math.Sqrt(hw1*hw1 + hw2*hw2)
}

// Merge combines two independent estimates of the same response into one.
// The observation counts add, the average is the count-weighted average, and
// the variance follows the pooled two-sample form with two special cases:
//
//   - both singletons: the variance of the two-point sample,
//     (a-avg)^2 + (b-avg)^2
//   - a singleton merged with a pair: the pair's variance stands (a single
//     observation adds no spread information worth pooling)
//   - otherwise: [(na-1)*va + (nb-1)*vb] / (n-2), with a singleton side
//     contributing zero to the numerator
//
// Both inputs must estimate the same response name and must come from
// independent replications; merging CRN-correlated estimates is invalid.
func (e EstimatedResponse) Merge(other EstimatedResponse) (EstimatedResponse, error) {
	if e.name != other.name {
		return EstimatedResponse{}, fmt.Errorf("cannot merge estimates of %q and %q", e.name, other.name)
	}
	n := e.count + other.count
	avg := (e.average*float64(e.count) + other.average*float64(other.count)) / float64(n)

	var variance float64
	switch {
	case e.count == 1 && other.count == 1:
		da := e.average - avg
		db := other.average - avg
		variance = da*da + db*db
	case e.count == 1 && other.count == 2:
		variance = other.variance
	case e.count == 2 && other.count == 1:
		variance = e.variance
	default:
		variance = (weightedSS(e) + weightedSS(other)) / float64(n-2)
	}

	return EstimatedResponse{name: e.name, average: avg, variance: variance, count: n}, nil
}

// weightedSS is the (count-1)-weighted variance term of the pooled formula.
// A singleton has NaN variance but zero degrees of freedom, so it contributes
// nothing.
func weightedSS(e EstimatedResponse) float64 {
	if e.count <= 1 {
		return 0
	}
	return float64(e.count-1) * e.variance
}
