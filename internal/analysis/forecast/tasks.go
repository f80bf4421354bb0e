// Package forecast coordinates the ML forecasting module: it resolves the
// model handle for each task, runs predict and explain in parallel, applies
// the task's post-processing, and for historical evaluation groups rows by
// model snapshot so each explainer is built once per kernel.
package forecast

import (
	"fmt"
	"strings"

	"github.com/stockrun/stockrun/internal/domain/report"
)

// Template describes one forecasting task. The set below is fixed: rules
// index into the report's forecasting list by position, so order and
// membership are part of the contract.
type Template struct {
	ProblemID   string
	Kind        string
	HorizonDays int
	// Barrier geometry, percent of entry price. Only triple barrier tasks
	// carry these.
	TakeProfitPct float64
	StopLossPct   float64
	Units         string
}

// Templates returns the task set in report order: the triple barrier
// classifier, then the 5 and 20 day distribution regressors.
func Templates() []Template {
	return []Template{
		{
			ProblemID:     "tb_5d",
			Kind:          report.TaskTripleBarrier,
			HorizonDays:   5,
			TakeProfitPct: 3,
			StopLossPct:   2,
			Units:         report.UnitsCategory,
		},
		{
			ProblemID:   "dist_5d",
			Kind:        report.TaskDistribution,
			HorizonDays: 5,
			Units:       report.UnitsPercent,
		},
		{
			ProblemID:   "dist_20d",
			Kind:        report.TaskDistribution,
			HorizonDays: 20,
			Units:       report.UnitsPercent,
		},
	}
}

// Slug derives the model identifier for this task in a sector. Models are
// trained per (problem, sector), so the slug keys both the artifact store
// and the handle cache.
func (t Template) Slug(sector string) string {
	return fmt.Sprintf("%s_%s", t.ProblemID, SectorKey(sector))
}

// Metadata builds the task_metadata block for this template.
func (t Template) Metadata() report.TaskMetadata {
	md := report.TaskMetadata{Kind: t.Kind, HorizonDays: t.HorizonDays}
	if t.Kind == report.TaskTripleBarrier {
		md.TakeProfitPct = report.F(t.TakeProfitPct)
		md.StopLossPct = report.F(t.StopLossPct)
	}
	return md
}

// SectorKey normalizes a sector name into its slug form: lower case with
// underscores, "unknown" when empty.
func SectorKey(sector string) string {
	s := strings.ToLower(strings.TrimSpace(sector))
	if s == "" {
		return "unknown"
	}
	return strings.ReplaceAll(s, " ", "_")
}
