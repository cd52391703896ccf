// Package reporting renders solver and evaluator outcomes as JSON documents
// and terminal tables.
package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/simoptlab/simopt/internal/evaluation"
	"github.com/simoptlab/simopt/internal/models"
	"github.com/simoptlab/simopt/internal/solver"
)

// SolutionSummary is the serializable view of one solution.
type SolutionSummary struct {
	Point              string             `json:"point"`
	Inputs             map[string]float64 `json:"inputs"`
	Objective          float64            `json:"objective"`
	PenalizedObjective float64            `json:"penalized_objective"`
	Replications       int                `json:"replications"`
	Iteration          int                `json:"iteration"`
	Feasible           bool               `json:"feasible"`
	Bad                bool               `json:"bad,omitempty"`
}

// RunReport is the complete outcome document of a solver run.
type RunReport struct {
	Problem      string            `json:"problem"`
	ModelID      string            `json:"model_id"`
	Timestamp    time.Time         `json:"timestamp"`
	Iterations   int               `json:"iterations"`
	ElapsedMs    int64             `json:"elapsed_ms"`
	Best         *SolutionSummary  `json:"best"`
	PossiblyBest []SolutionSummary `json:"possibly_best,omitempty"`
	Counters     evaluation.Counts `json:"counters"`
}

// NewRunReport converts a solver result into the report document.
func NewRunReport(problemName, modelID string, res *solver.Result) *RunReport {
	report := &RunReport{
		Problem:    problemName,
		ModelID:    modelID,
		Timestamp:  time.Now(),
		Iterations: res.Iterations,
		ElapsedMs:  res.Elapsed.Milliseconds(),
		Counters:   res.Evaluator,
	}
	if res.Best != nil {
		s := summarize(res.Best)
		report.Best = &s
	}
	for _, sol := range res.PossiblyBest {
		report.PossiblyBest = append(report.PossiblyBest, summarize(sol))
	}
	return report
}

func summarize(s *models.Solution) SolutionSummary {
	objective := math.NaN()
	if !s.IsBad() {
		objective = s.EstimatedObjective().Average()
	}
	return SolutionSummary{
		Point:              string(s.Key()),
		Inputs:             s.Inputs().Values,
		Objective:          objective,
		PenalizedObjective: s.PenalizedObjective(),
		Replications:       s.Count(),
		Iteration:          s.Iteration(),
		Feasible:           s.InputRangeFeasible(),
		Bad:                s.IsBad(),
	}
}

// WriteJSON writes the report as indented JSON to path.
func (r *RunReport) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// RenderTable writes a human-readable summary. Column widths respect
// terminal display width, not byte length.
func (r *RunReport) RenderTable(w io.Writer) {
	fmt.Fprintf(w, "Problem:    %s (model %s)\n", r.Problem, r.ModelID)
	fmt.Fprintf(w, "Iterations: %d in %dms\n", r.Iterations, r.ElapsedMs)
	fmt.Fprintf(w, "Oracle:     %d evaluations, %d replications\n",
		r.Counters.TotalOracleEvaluations, r.Counters.TotalOracleReplications)
	fmt.Fprintf(w, "Cache:      %d evaluations, %d replications served\n",
		r.Counters.TotalCachedEvaluations, r.Counters.TotalCachedReplications)
	fmt.Fprintln(w)

	if r.Best == nil {
		fmt.Fprintln(w, "No solution found.")
		return
	}

	fmt.Fprintf(w, "Best: %s\n", formatInputs(r.Best.Inputs))
	fmt.Fprintf(w, "  objective %.4f  penalized %.4f  replications %d\n",
		r.Best.Objective, r.Best.PenalizedObjective, r.Best.Replications)

	if len(r.PossiblyBest) > 1 {
		fmt.Fprintf(w, "\nStatistically tied with the best (%d):\n", len(r.PossiblyBest))
		header := []string{"point", "objective", "penalized", "reps"}
		rows := [][]string{}
		for _, s := range r.PossiblyBest {
			rows = append(rows, []string{
				formatInputs(s.Inputs),
				fmt.Sprintf("%.4f", s.Objective),
				fmt.Sprintf("%.4f", s.PenalizedObjective),
				fmt.Sprintf("%d", s.Replications),
			})
		}
		renderColumns(w, header, rows)
	}
}

func formatInputs(inputs map[string]float64) string {
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%g", name, inputs[name]))
	}
	return strings.Join(parts, " ")
}

func renderColumns(w io.Writer, header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if sw := runewidth.StringWidth(cell); sw > widths[i] {
				widths[i] = sw
			}
		}
	}

	writeRow := func(cells []string) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = padRight(cell, widths[i])
		}
		fmt.Fprintf(w, "  %s\n", strings.Join(parts, "  "))
	}
	writeRow(header)
	for _, row := range rows {
		writeRow(row)
	}
}

// padRight pads s with spaces so its terminal display width reaches width.
func padRight(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	return s + strings.Repeat(" ", width-sw)
}
