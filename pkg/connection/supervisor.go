package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/peripheral-bridge/bridge-go/pkg/log"
)

// ErrSupervisorRunning is returned when Run is called twice.
var ErrSupervisorRunning = errors.New("supervisor already running")

// State represents the link state.
type State uint8

const (
	// StateDisconnected indicates no active link.
	StateDisconnected State = iota

	// StateConnecting indicates a dial is in progress.
	StateConnecting

	// StateConnected indicates an active link.
	StateConnected

	// StateBackoff indicates the supervisor is waiting before redialing.
	StateBackoff

	// StateClosed indicates the supervisor has stopped.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateBackoff:
		return "BACKOFF"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Link is an established link. Done is closed when the link ends.
type Link interface {
	Done() <-chan struct{}
	Close() error
}

// DialFunc establishes a link.
type DialFunc func(ctx context.Context) (Link, error)

// SupervisorConfig configures a Supervisor.
type SupervisorConfig struct {
	// Backoff parameters between dial attempts.
	Backoff BackoffConfig

	// DialTimeout bounds each dial attempt (default: 10s).
	DialTimeout time.Duration

	// Wait sleeps between attempts. Defaults to a context-aware timer.
	Wait func(ctx context.Context, d time.Duration) error

	// Logger is the operational logger (optional).
	Logger *slog.Logger

	// ProtocolLogger records link state changes (optional).
	ProtocolLogger log.Logger

	// BridgeID tags protocol log events.
	BridgeID string
}

// Supervisor dials a link and redials with backoff whenever it ends.
type Supervisor struct {
	config  SupervisorConfig
	dial    DialFunc
	backoff *Backoff

	mu            sync.Mutex
	state         State
	running       bool
	links         int
	onStateChange func(oldState, newState State)
}

// NewSupervisor creates a supervisor for dial.
func NewSupervisor(config SupervisorConfig, dial DialFunc) *Supervisor {
	if config.DialTimeout <= 0 {
		config.DialTimeout = 10 * time.Second
	}
	if config.Wait == nil {
		config.Wait = sleepContext
	}
	return &Supervisor{
		config:  config,
		dial:    dial,
		backoff: NewBackoffWithConfig(config.Backoff),
	}
}

// OnStateChange sets a callback for state changes. Must be called before Run.
func (s *Supervisor) OnStateChange(fn func(oldState, newState State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStateChange = fn
}

// State returns the current link state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Links returns the number of links established so far.
func (s *Supervisor) Links() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.links
}

// Run dials, waits for the link to end and redials until ctx is done.
// The active link is closed when ctx ends. Run returns ctx.Err().
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSupervisorRunning
	}
	s.running = true
	s.mu.Unlock()

	defer s.setState(StateClosed, "")

	for {
		s.setState(StateConnecting, "")

		dialCtx, cancel := context.WithTimeout(ctx, s.config.DialTimeout)
		link, err := s.dial(dialCtx)
		cancel()

		if err == nil {
			s.backoff.Reset()
			s.mu.Lock()
			s.links++
			s.mu.Unlock()
			s.setState(StateConnected, "")

			select {
			case <-link.Done():
				s.setState(StateDisconnected, "link ended")
			case <-ctx.Done():
				link.Close()
				return ctx.Err()
			}
		} else {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.debugLog("link dial failed", "error", err)
			s.setState(StateDisconnected, err.Error())
		}

		delay := s.backoff.Next()
		s.setState(StateBackoff, "")
		s.debugLog("link backoff", "attempt", s.backoff.Attempts(), "delay", delay)
		if err := s.config.Wait(ctx, delay); err != nil {
			return err
		}
	}
}

func (s *Supervisor) setState(newState State, reason string) {
	s.mu.Lock()
	old := s.state
	if old == newState {
		s.mu.Unlock()
		return
	}
	s.state = newState
	cb := s.onStateChange
	s.mu.Unlock()

	if s.config.ProtocolLogger != nil {
		s.config.ProtocolLogger.Log(log.Event{
			Timestamp: time.Now(),
			Layer:     log.LayerTransport,
			Category:  log.CategoryState,
			LocalRole: log.RoleBridge,
			BridgeID:  s.config.BridgeID,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityLink,
				OldState: old.String(),
				NewState: newState.String(),
				Reason:   reason,
			},
		})
	}
	if cb != nil {
		cb(old, newState)
	}
}

func (s *Supervisor) debugLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, args...)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
