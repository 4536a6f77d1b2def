package executor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/peripheral-bridge/bridge-go/pkg/bus"
	"github.com/peripheral-bridge/bridge-go/pkg/wire"
)

// EmitFunc receives a response as soon as it is produced.
type EmitFunc func(resp wire.BusOperation) error

// TraceFunc observes every executed operation.
type TraceFunc func(rec Record)

// Record describes one executed operation.
type Record struct {
	Envelope  int
	Index     int
	Bus       wire.BusType
	Op        wire.BusOperation
	Response  *wire.BusOperation
	Err       error
	Duration  time.Duration
	Delay     time.Duration
	BusActive bool
}

// Config configures a Runner.
type Config struct {
	// Buses resolves the driver for each envelope. Required.
	Buses bus.Selector

	// Sleep blocks for a post-operation delay.
	// Default: time.Sleep.
	Sleep func(time.Duration)

	// Trace, when set, is called after every operation.
	Trace TraceFunc

	// Logger is the optional operational logger.
	Logger *slog.Logger
}

// Stats counts executor activity.
type Stats struct {
	Batches     uint64
	Operations  uint64
	Responses   uint64
	BytesOut    uint64
	BytesIn     uint64
	Failures    uint64
	DelayedTime time.Duration
}

// Runner executes command batches in program order.
type Runner struct {
	config Config

	batches    atomic.Uint64
	operations atomic.Uint64
	responses  atomic.Uint64
	bytesOut   atomic.Uint64
	bytesIn    atomic.Uint64
	failures   atomic.Uint64
	delayed    atomic.Int64
}

// NewRunner creates a Runner.
func NewRunner(config Config) *Runner {
	if config.Sleep == nil {
		config.Sleep = time.Sleep
	}
	return &Runner{config: config}
}

// RunBatch executes every operation of batch in order.
//
// After an operation completes its post delay is slept before the next
// operation starts. Responses go to emit immediately. The first error,
// from the bus, the protocol or emit, stops the batch and is returned
// wrapped in an *OpError. ctx is checked between operations only; a
// started transaction always runs to completion.
func (r *Runner) RunBatch(ctx context.Context, batch *wire.CommandBatch, emit EmitFunc) error {
	r.batches.Add(1)

	for ei := range batch.Envelopes {
		env := &batch.Envelopes[ei]
		if len(env.Operations) == 0 {
			continue
		}

		drv, err := r.config.Buses.Select(env.Bus)
		if err != nil {
			r.failures.Add(1)
			return &OpError{Envelope: ei, Operation: 0, Err: err}
		}

		for oi, op := range env.Operations {
			if err := ctx.Err(); err != nil {
				return err
			}

			start := time.Now()
			resp, err := Execute(op, drv)
			rec := Record{
				Envelope:  ei,
				Index:     oi,
				Bus:       env.Bus,
				Op:        op,
				Response:  resp,
				Err:       err,
				Duration:  time.Since(start),
				BusActive: err == nil && op.Operation != wire.OpAck && op.Data != nil,
			}
			r.operations.Add(1)

			if err != nil {
				r.failures.Add(1)
				r.trace(rec)
				r.debugLog("operation failed", "envelope", ei, "index", oi, "error", err)
				return &OpError{Envelope: ei, Operation: oi, Err: err}
			}

			if rec.BusActive {
				r.bytesOut.Add(uint64(len(op.Data) + 1))
			}
			if op.Operation == wire.OpAck {
				r.debugLog("ack received", "address", op.Address, "len", len(op.Data))
			}

			if resp != nil {
				r.bytesIn.Add(uint64(len(resp.Data)))
				if err := emit(*resp); err != nil {
					r.failures.Add(1)
					rec.Err = err
					r.trace(rec)
					return &OpError{Envelope: ei, Operation: oi, Err: err}
				}
				r.responses.Add(1)
			}

			if d := op.Delay(); d > 0 {
				rec.Delay = d
				r.config.Sleep(d)
				r.delayed.Add(int64(d))
			}
			r.trace(rec)
		}
	}
	return nil
}

// Stats returns a snapshot of the counters.
func (r *Runner) Stats() Stats {
	return Stats{
		Batches:     r.batches.Load(),
		Operations:  r.operations.Load(),
		Responses:   r.responses.Load(),
		BytesOut:    r.bytesOut.Load(),
		BytesIn:     r.bytesIn.Load(),
		Failures:    r.failures.Load(),
		DelayedTime: time.Duration(r.delayed.Load()),
	}
}

func (r *Runner) trace(rec Record) {
	if r.config.Trace != nil {
		r.config.Trace(rec)
	}
}

func (r *Runner) debugLog(msg string, args ...any) {
	if r.config.Logger != nil {
		r.config.Logger.Debug(msg, args...)
	}
}
