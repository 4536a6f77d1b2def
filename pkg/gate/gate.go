// Package gate hands "consumer is ready" events from event callbacks to
// a dedicated streaming goroutine.
//
// A Gate is a two-state machine. Subscribe arms it and wakes the waiter;
// Wait blocks until the gate is armed and disarms it before returning,
// so a subscribe that arrives while a pass is running schedules exactly
// one more pass. Subscribe and Unsubscribe never block and never do I/O,
// which makes them safe to call from any callback.
package gate

import (
	"context"
	"sync"
)

// State is the gate state.
type State uint8

const (
	// Idle means no pass is pending.
	Idle State = iota

	// Armed means a consumer subscribed and a pass is pending.
	Armed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Armed:
		return "ARMED"
	default:
		return "UNKNOWN"
	}
}

// Gate synchronizes subscription events with a streaming goroutine.
type Gate struct {
	mu    sync.Mutex
	state State

	// wake holds at most one pending signal.
	wake chan struct{}

	onStateChange func(from, to State)
}

// New creates an idle Gate.
func New() *Gate {
	return &Gate{wake: make(chan struct{}, 1)}
}

// OnStateChange registers an observer called on every transition. The
// observer runs with the gate locked and must not call back into it.
func (g *Gate) OnStateChange(fn func(from, to State)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onStateChange = fn
}

// State returns the current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Subscribe moves Idle to Armed and wakes the waiter. Subscribing an
// armed gate has no further effect.
func (g *Gate) Subscribe() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == Armed {
		return
	}
	g.setState(Armed)
	select {
	case g.wake <- struct{}{}:
	default:
	}
}

// Unsubscribe moves Armed to Idle without triggering a pass. A pass
// already running is not interrupted.
func (g *Gate) Unsubscribe() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == Idle {
		return
	}
	g.setState(Idle)
}

// Wait blocks until the gate is armed, then disarms it and returns nil.
// It returns ctx.Err() if ctx is done first.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		if g.state == Armed {
			g.setState(Idle)
			g.mu.Unlock()
			return nil
		}
		g.mu.Unlock()

		select {
		case <-g.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// setState must be called with mu held.
func (g *Gate) setState(s State) {
	old := g.state
	g.state = s
	if g.onStateChange != nil {
		g.onStateChange(old, s)
	}
}

// Run calls pass once per rising edge until ctx is done. Passes run on
// the calling goroutine and never overlap. A pass error is reported to
// onErr, if set, and does not stop the loop.
func Run(ctx context.Context, g *Gate, pass func(context.Context) error, onErr func(error)) error {
	for {
		if err := g.Wait(ctx); err != nil {
			return err
		}
		if err := pass(ctx); err != nil && onErr != nil {
			onErr(err)
		}
	}
}
