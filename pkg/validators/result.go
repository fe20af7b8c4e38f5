// Package validators implements the deterministic boundary validation
// pipeline: name-pattern, district-count, geographic-bounds and topology
// validators composed under a MINIMUM-aggregation rule.
//
// Rejections and escalations are returned as data, never as errors. A
// validator error is reserved for genuine contract violations.
package validators

import (
	"fmt"
	"sort"
)

// Confidence bands. A single-validator result below AutoRejectBelow is
// always invalid; at or above AutoAcceptAt it is valid with zero issues;
// the [EscalateLow, AutoAcceptAt) band signals that automated accept/reject
// is unsafe and human or consensus review is required.
const (
	AutoRejectBelow = 20
	EscalateLow     = 60
	AutoAcceptAt    = 85
)

// Result is the outcome of a single validator.
type Result struct {
	Valid      bool     `json:"valid"`
	Confidence int      `json:"confidence"` // 0-100
	Issues     []string `json:"issues,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// NeedsReview reports whether the result sits in the escalation band.
func (r Result) NeedsReview() bool {
	return r.Confidence >= EscalateLow && r.Confidence < AutoAcceptAt
}

func reject(confidence int, format string, args ...any) Result {
	return Result{Valid: false, Confidence: confidence, Issues: []string{fmt.Sprintf(format, args...)}}
}

func accept(confidence int) Result {
	return Result{Valid: true, Confidence: confidence}
}

func warn(r Result, format string, args ...any) Result {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
	return r
}

// PipelineResult aggregates the constituent validator results.
//
// Confidence is the MINIMUM of all constituent confidences, not the average:
// every signal is necessary-not-sufficient, so one catastrophic signal must
// dominate. Valid is the AND of all constituent valid flags.
type PipelineResult struct {
	Result
	Breakdown map[string]Result `json:"breakdown"`
}

// Aggregate composes named validator results under the MIN rule.
func Aggregate(breakdown map[string]Result) PipelineResult {
	out := PipelineResult{
		Result:    Result{Valid: true, Confidence: 100},
		Breakdown: breakdown,
	}
	if len(breakdown) == 0 {
		out.Valid = false
		out.Confidence = 0
		out.Issues = []string{"no validators ran"}
		return out
	}
	// Deterministic issue/warning order regardless of map iteration.
	for _, name := range sortedKeys(breakdown) {
		r := breakdown[name]
		out.Valid = out.Valid && r.Valid
		if r.Confidence < out.Confidence {
			out.Confidence = r.Confidence
		}
		out.Issues = append(out.Issues, r.Issues...)
		out.Warnings = append(out.Warnings, r.Warnings...)
	}
	return out
}

func sortedKeys(m map[string]Result) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
