package script

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Reporter formats script results.
type Reporter interface {
	Report(result *Result)
}

// TextReporter outputs human-readable text reports.
type TextReporter struct {
	writer  io.Writer
	verbose bool
}

// NewTextReporter creates a new text reporter.
func NewTextReporter(w io.Writer, verbose bool) *TextReporter {
	return &TextReporter{writer: w, verbose: verbose}
}

// Report writes one line per step and a summary.
func (r *TextReporter) Report(result *Result) {
	fmt.Fprintf(r.writer, "\n=== Script: %s ===\n", result.Script.Name)
	if result.Script.Description != "" {
		fmt.Fprintf(r.writer, "%s\n", result.Script.Description)
	}
	fmt.Fprintln(r.writer)

	for _, sr := range result.Steps {
		fmt.Fprintf(r.writer, "[%s] Step %d: %s (%s)\n",
			stepStatus(sr), sr.Index+1, stepName(sr), sr.Duration.Round(time.Millisecond))

		if sr.Error != nil {
			fmt.Fprintf(r.writer, "       Error: %v\n", sr.Error)
		}
		for _, m := range sr.Mismatches {
			fmt.Fprintf(r.writer, "       %s\n", m)
		}
		if r.verbose {
			for _, resp := range sr.Responses {
				fmt.Fprintf(r.writer, "       %s 0x%02x %s\n",
					resp.Op.Operation, resp.Op.Address, hex.EncodeToString(resp.Op.Data))
			}
		}
	}

	fmt.Fprintf(r.writer, "\n--- Summary ---\n")
	fmt.Fprintf(r.writer, "Steps:   %d\n", len(result.Steps))
	fmt.Fprintf(r.writer, "Passed:  %d\n", result.PassCount)
	fmt.Fprintf(r.writer, "Failed:  %d\n", result.FailCount)
	if result.SkipCount > 0 {
		fmt.Fprintf(r.writer, "Skipped: %d\n", result.SkipCount)
	}
	fmt.Fprintf(r.writer, "Duration: %s\n", result.Duration.Round(time.Millisecond))
}

// JSONReporter outputs JSON-formatted reports.
type JSONReporter struct {
	writer io.Writer
	pretty bool
}

// NewJSONReporter creates a new JSON reporter.
func NewJSONReporter(w io.Writer, pretty bool) *JSONReporter {
	return &JSONReporter{writer: w, pretty: pretty}
}

// JSONResult is the JSON representation of a script result.
type JSONResult struct {
	Script   string           `json:"script"`
	Passed   bool             `json:"passed"`
	Duration string           `json:"duration"`
	Steps    []JSONStepResult `json:"steps"`
}

// JSONStepResult is the JSON representation of a step result.
type JSONStepResult struct {
	Index      int      `json:"index"`
	Name       string   `json:"name,omitempty"`
	Status     string   `json:"status"`
	Duration   string   `json:"duration"`
	Error      string   `json:"error,omitempty"`
	Responses  []string `json:"responses,omitempty"`
	Mismatches []string `json:"mismatches,omitempty"`
}

// Report writes the result as one JSON document.
func (r *JSONReporter) Report(result *Result) {
	jr := JSONResult{
		Script:   result.Script.Name,
		Passed:   result.Passed,
		Duration: result.Duration.Round(time.Millisecond).String(),
		Steps:    make([]JSONStepResult, 0, len(result.Steps)),
	}
	for _, sr := range result.Steps {
		js := JSONStepResult{
			Index:      sr.Index + 1,
			Name:       sr.Step.Name,
			Status:     stepStatus(sr),
			Duration:   sr.Duration.Round(time.Millisecond).String(),
			Mismatches: sr.Mismatches,
		}
		if sr.Error != nil {
			js.Error = sr.Error.Error()
		}
		for _, resp := range sr.Responses {
			js.Responses = append(js.Responses, hex.EncodeToString(resp.Op.Data))
		}
		jr.Steps = append(jr.Steps, js)
	}

	enc := json.NewEncoder(r.writer)
	if r.pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(jr)
}

func stepStatus(sr StepResult) string {
	switch {
	case sr.Skipped:
		return "SKIP"
	case sr.Passed:
		return "PASS"
	default:
		return "FAIL"
	}
}

func stepName(sr StepResult) string {
	if sr.Step != nil && sr.Step.Name != "" {
		return sr.Step.Name
	}
	return "unnamed"
}
