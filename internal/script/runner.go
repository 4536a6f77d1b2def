package script

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/peripheral-bridge/bridge-go/internal/controller"
	"github.com/peripheral-bridge/bridge-go/pkg/wire"
)

// Exchanger submits a batch and returns the responses it produced.
type Exchanger interface {
	Exchange(ctx context.Context, b *wire.CommandBatch) ([]controller.Response, error)
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// Timeout bounds each step when the script sets none.
	// Default: controller.DefaultResponseTimeout.
	Timeout time.Duration

	// StopOnFailure skips the remaining steps after a failed one.
	StopOnFailure bool

	Logger *slog.Logger
}

// StepResult is the outcome of one step.
type StepResult struct {
	Index      int
	Step       *Step
	Passed     bool
	Skipped    bool
	Responses  []controller.Response
	Mismatches []string
	Error      error
	Duration   time.Duration
}

// Result is the outcome of a script.
type Result struct {
	Script    *Script
	Steps     []StepResult
	Passed    bool
	PassCount int
	FailCount int
	SkipCount int
	Duration  time.Duration
}

// Runner executes scripts against a bridge link.
type Runner struct {
	ex     Exchanger
	config RunnerConfig
}

// NewRunner creates a runner.
func NewRunner(ex Exchanger, config RunnerConfig) *Runner {
	if config.Timeout <= 0 {
		config.Timeout = controller.DefaultResponseTimeout
	}
	return &Runner{ex: ex, config: config}
}

// Run executes every step in order.
func (r *Runner) Run(ctx context.Context, s *Script) *Result {
	start := time.Now()
	res := &Result{Script: s, Steps: make([]StepResult, 0, len(s.Steps))}

	timeout := r.config.Timeout
	if s.Timeout > 0 {
		timeout = s.Timeout
	}

	failed := false
	for i := range s.Steps {
		step := &s.Steps[i]
		if failed && r.config.StopOnFailure {
			res.Steps = append(res.Steps, StepResult{Index: i, Step: step, Skipped: true})
			res.SkipCount++
			continue
		}

		sr := r.runStep(ctx, i, step, timeout)
		res.Steps = append(res.Steps, sr)
		if sr.Passed {
			res.PassCount++
		} else {
			res.FailCount++
			failed = true
		}

		if ctx.Err() != nil {
			break
		}
	}

	res.Passed = res.FailCount == 0 && len(res.Steps) == len(s.Steps)
	res.Duration = time.Since(start)
	return res
}

func (r *Runner) runStep(ctx context.Context, i int, step *Step, timeout time.Duration) StepResult {
	sr := StepResult{Index: i, Step: step}
	start := time.Now()

	batch, err := step.Batch()
	if err != nil {
		sr.Error = err
		return sr
	}

	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r.debugLog("running step", "index", i+1, "name", step.Name, "operations", batch.OperationCount())
	sr.Responses, sr.Error = r.ex.Exchange(sctx, batch)
	if sr.Error != nil {
		sr.Duration = time.Since(start)
		return sr
	}

	sr.Mismatches = Check(step.Expect, sr.Responses)
	sr.Passed = len(sr.Mismatches) == 0
	sr.Duration = time.Since(start)
	return sr
}

// Check compares responses against expected hex payloads and returns one
// message per mismatch. An empty expect list accepts anything.
func Check(expect []string, responses []controller.Response) []string {
	if len(expect) == 0 {
		return nil
	}

	var mismatches []string
	if len(expect) != len(responses) {
		mismatches = append(mismatches,
			fmt.Sprintf("expected %d responses, got %d", len(expect), len(responses)))
	}

	for i, exp := range expect {
		if i >= len(responses) {
			break
		}
		if exp == "*" {
			continue
		}
		want, err := ParseHex(exp)
		if err != nil {
			mismatches = append(mismatches, fmt.Sprintf("response %d: invalid expect %q", i+1, exp))
			continue
		}
		if got := responses[i].Op.Data; !bytes.Equal(want, got) {
			mismatches = append(mismatches, fmt.Sprintf("response %d (0x%02x): expected %s, got %s",
				i+1, responses[i].Op.Address, hex.EncodeToString(want), hex.EncodeToString(got)))
		}
	}
	return mismatches
}

func (r *Runner) debugLog(msg string, args ...any) {
	if r.config.Logger != nil {
		r.config.Logger.Debug(msg, args...)
	}
}
