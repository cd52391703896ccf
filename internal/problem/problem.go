// Package problem defines the optimization problem contract the evaluator
// consumes: required response names, the objective, per-input granularity
// and bounds, and the feasibility predicates over inputs and response
// estimates.
package problem

import (
	"fmt"
	"math"
	"strings"

	"github.com/simoptlab/simopt/internal/models"
	"github.com/simoptlab/simopt/internal/statistics"
)

// Relation is the direction of an inequality constraint.
type Relation string

const (
	LessOrEqual    Relation = "<="
	GreaterOrEqual Relation = ">="
)

// InputDef declares one input of the design space: its bounds and the
// minimum distinguishable precision used to normalize cache keys.
type InputDef struct {
	Name        string  `yaml:"name"`
	Lower       float64 `yaml:"lower"`
	Upper       float64 `yaml:"upper"`
	Granularity float64 `yaml:"granularity"`
}

// LinearConstraint is sum(coefficients[name] * input[name]) relation RHS.
type LinearConstraint struct {
	Coefficients map[string]float64 `yaml:"coefficients"`
	Relation     Relation           `yaml:"relation"`
	RHS          float64            `yaml:"rhs"`
}

// ResponseConstraint bounds an estimated response average.
type ResponseConstraint struct {
	Response string   `yaml:"response"`
	Relation Relation `yaml:"relation"`
	Limit    float64  `yaml:"limit"`
}

// Definition is a complete problem definition. It implements
// models.FeasibilityChecker.
type Definition struct {
	Name                string               `yaml:"name"`
	ModelID             string               `yaml:"model"`
	Objective           string               `yaml:"objective"`
	Responses           []string             `yaml:"responses"`
	Inputs              []InputDef           `yaml:"inputs"`
	LinearConstraints   []LinearConstraint   `yaml:"linear_constraints"`
	ResponseConstraints []ResponseConstraint `yaml:"response_constraints"`
}

// Validate checks internal consistency of the definition.
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("problem name must not be blank")
	}
	if strings.TrimSpace(d.ModelID) == "" {
		return fmt.Errorf("problem %q: model identifier must not be blank", d.Name)
	}
	if len(d.Inputs) == 0 {
		return fmt.Errorf("problem %q: at least one input is required", d.Name)
	}
	if len(d.Responses) == 0 {
		return fmt.Errorf("problem %q: at least one response is required", d.Name)
	}
	responses := make(map[string]struct{}, len(d.Responses))
	for _, name := range d.Responses {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("problem %q: blank response name", d.Name)
		}
		responses[name] = struct{}{}
	}
	if _, ok := responses[d.Objective]; !ok {
		return fmt.Errorf("problem %q: objective %q is not among declared responses", d.Name, d.Objective)
	}
	inputs := make(map[string]struct{}, len(d.Inputs))
	for _, in := range d.Inputs {
		if strings.TrimSpace(in.Name) == "" {
			return fmt.Errorf("problem %q: blank input name", d.Name)
		}
		if _, dup := inputs[in.Name]; dup {
			return fmt.Errorf("problem %q: duplicate input %q", d.Name, in.Name)
		}
		inputs[in.Name] = struct{}{}
		if in.Granularity < 0 {
			return fmt.Errorf("problem %q: input %q has negative granularity", d.Name, in.Name)
		}
		if in.Lower > in.Upper {
			return fmt.Errorf("problem %q: input %q has lower bound above upper bound", d.Name, in.Name)
		}
	}
	for i, lc := range d.LinearConstraints {
		if err := checkRelation(lc.Relation); err != nil {
			return fmt.Errorf("problem %q: linear constraint %d: %w", d.Name, i, err)
		}
		for name := range lc.Coefficients {
			if _, ok := inputs[name]; !ok {
				return fmt.Errorf("problem %q: linear constraint %d references unknown input %q", d.Name, i, name)
			}
		}
	}
	for i, rc := range d.ResponseConstraints {
		if err := checkRelation(rc.Relation); err != nil {
			return fmt.Errorf("problem %q: response constraint %d: %w", d.Name, i, err)
		}
		if _, ok := responses[rc.Response]; !ok {
			return fmt.Errorf("problem %q: response constraint %d references unknown response %q", d.Name, i, rc.Response)
		}
	}
	return nil
}

func checkRelation(r Relation) error {
	if r != LessOrEqual && r != GreaterOrEqual {
		return fmt.Errorf("relation must be %q or %q, got %q", LessOrEqual, GreaterOrEqual, r)
	}
	return nil
}

// RequiredResponseNames returns the response names an oracle result must
// populate before it can become a solution.
func (d *Definition) RequiredResponseNames() []string {
	out := make([]string, len(d.Responses))
	copy(out, d.Responses)
	return out
}

// ObjectiveName returns the name of the objective response.
func (d *Definition) ObjectiveName() string { return d.Objective }

// Granularity returns the per-input granularity map used for cache-key
// normalization.
func (d *Definition) Granularity() map[string]float64 {
	out := make(map[string]float64, len(d.Inputs))
	for _, in := range d.Inputs {
		out[in.Name] = in.Granularity
	}
	return out
}

// RoundInputs snaps a design point onto the problem's granularity grid.
func (d *Definition) RoundInputs(inputs models.ModelInputs) models.ModelInputs {
	return inputs.Rounded(d.Granularity())
}

// InputRangeFeasible reports whether every declared input is present and
// inside its bounds.
func (d *Definition) InputRangeFeasible(inputs models.ModelInputs) bool {
	for _, in := range d.Inputs {
		v, ok := inputs.Values[in.Name]
		if !ok || v < in.Lower || v > in.Upper {
			return false
		}
	}
	return true
}

// LinearConstraintFeasible reports whether the inputs satisfy every linear
// constraint.
func (d *Definition) LinearConstraintFeasible(inputs models.ModelInputs) bool {
	for _, lc := range d.LinearConstraints {
		lhs := 0.0
		for name, coef := range lc.Coefficients {
			lhs += coef * inputs.Values[name]
		}
		switch lc.Relation {
		case LessOrEqual:
			if lhs > lc.RHS {
				return false
			}
		case GreaterOrEqual:
			if lhs < lc.RHS {
				return false
			}
		}
	}
	return true
}

// ResponseConstraintViolations sums the positive violations of the response
// constraints against the estimated averages. Responses without an estimate
// contribute nothing.
func (d *Definition) ResponseConstraintViolations(responses *statistics.ResponseMap) float64 {
	total := 0.0
	for _, rc := range d.ResponseConstraints {
		e, ok := responses.Get(rc.Response)
		if !ok {
			continue
		}
		switch rc.Relation {
		case LessOrEqual:
			total += math.Max(0, e.Average()-rc.Limit)
		case GreaterOrEqual:
			total += math.Max(0, rc.Limit-e.Average())
		}
	}
	return total
}

// ResponseConstraintFeasible reports whether every response constraint still
// holds once the estimate's confidence half-width at the given level is
// allowed for. A constraint fails only when the whole interval sits on the
// infeasible side; single-observation estimates (NaN half-width) fall back
// to the point average.
func (d *Definition) ResponseConstraintFeasible(responses *statistics.ResponseMap, level float64) bool {
	for _, rc := range d.ResponseConstraints {
		e, ok := responses.Get(rc.Response)
		if !ok {
			return false
		}
		hw := 0.0
		if e.Count() > 1 {
			hw = e.HalfWidth(level)
		}
		switch rc.Relation {
		case LessOrEqual:
			if e.Average()-hw > rc.Limit {
				return false
			}
		case GreaterOrEqual:
			if e.Average()+hw < rc.Limit {
				return false
			}
		}
	}
	return true
}
