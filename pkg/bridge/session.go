package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/peripheral-bridge/bridge-go/pkg/executor"
	"github.com/peripheral-bridge/bridge-go/pkg/log"
	"github.com/peripheral-bridge/bridge-go/pkg/transport"
	"github.com/peripheral-bridge/bridge-go/pkg/wire"
)

// DefaultQueueSize is the number of received frames buffered ahead of
// execution.
const DefaultQueueSize = 16

// Conn is the controller link a session runs on.
// This is implemented by transport.Connection.
type Conn interface {
	Sender
	ID() string
	Done() <-chan struct{}
	Close() error
}

// SessionConfig configures a Session.
type SessionConfig struct {
	// Runner executes batches. Required.
	Runner *executor.Runner

	// Transport and Bus tag every response envelope.
	Transport wire.TransportType
	Bus       wire.BusType

	// CloseOnProtocolError closes the link after an unknown operation.
	CloseOnProtocolError bool

	// QueueSize bounds the frames waiting for execution (default: 16).
	QueueSize int

	// BridgeID tags protocol log events.
	BridgeID string

	// Logger is the operational logger (optional).
	Logger *slog.Logger

	// ProtocolLogger records decoded batches, responses and errors (optional).
	ProtocolLogger log.Logger

	// counters is shared with the owning service.
	counters *counters
}

// counters aggregates session outcomes across links.
type counters struct {
	decodeErrors   atomic.Uint64
	protocolErrors atomic.Uint64
	busErrors      atomic.Uint64
}

// Session executes the command batches received on one controller link.
//
// Frames are handed over by the connection's read goroutine and executed
// on the session goroutine in arrival order, so keep-alive traffic is
// served while a batch sleeps through its delays.
type Session struct {
	config  SessionConfig
	conn    Conn
	emitter *Emitter
	frames  chan []byte
}

// NewSession creates a session. Attach must be called before the link
// delivers frames.
func NewSession(config SessionConfig) *Session {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.counters == nil {
		config.counters = &counters{}
	}
	return &Session{
		config: config,
		frames: make(chan []byte, config.QueueSize),
	}
}

// Attach binds the session to its link.
func (s *Session) Attach(conn Conn) {
	s.conn = conn
	s.emitter = NewEmitter(conn, s.config.Transport, s.config.Bus)
	if s.config.ProtocolLogger != nil {
		s.emitter.SetLogger(s.config.ProtocolLogger, conn.ID(), s.config.BridgeID)
	}
}

// OnMessage implements transport.ConnectionHandler.
func (s *Session) OnMessage(msg []byte) {
	select {
	case s.frames <- msg:
	case <-s.conn.Done():
	}
}

// OnStateChange implements transport.ConnectionHandler.
func (s *Session) OnStateChange(oldState, newState transport.ConnectionState) {
	s.debugLog("link state changed", "from", oldState, "to", newState)
}

// OnError implements transport.ConnectionHandler.
func (s *Session) OnError(err error) {
	s.debugLog("link error", "error", err)
}

// Run executes queued frames until the link ends or ctx is done. A
// failure that ends the link closes it and is returned.
func (s *Session) Run(ctx context.Context) error {
	for {
		select {
		case msg := <-s.frames:
			if err := s.Handle(ctx, msg); err != nil {
				s.conn.Close()
				return err
			}
		case <-s.conn.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Handle decodes and executes one frame. It returns an error only when
// the link must be closed.
func (s *Session) Handle(ctx context.Context, msg []byte) error {
	batch, err := wire.DecodeBatch(msg)
	if err != nil {
		s.config.counters.decodeErrors.Add(1)
		s.logError(err, "decode batch")
		s.debugLog("dropping undecodable frame", "len", len(msg), "error", err)
		return nil
	}

	start := time.Now()
	msgEvent := log.NewMessageEvent(log.MessageTypeBatch, batch)
	s.logEvent(log.Event{
		Direction: log.DirectionIn,
		Layer:     log.LayerWire,
		Category:  log.CategoryMessage,
		Message:   msgEvent,
	})

	err = s.config.Runner.RunBatch(ctx, batch, s.emitter.Emit)

	elapsed := time.Since(start)
	s.logEvent(log.Event{
		Direction: log.DirectionIn,
		Layer:     log.LayerWire,
		Category:  log.CategoryMessage,
		Message: &log.MessageEvent{
			Type:           log.MessageTypeBatch,
			Envelopes:      msgEvent.Envelopes,
			Operations:     msgEvent.Operations,
			ProcessingTime: &elapsed,
		},
	})

	return s.classify(err)
}

// classify applies the error policy to a batch outcome.
func (s *Session) classify(err error) error {
	if err == nil {
		return nil
	}

	var protoErr *executor.ProtocolError
	var busErr *executor.BusError
	switch {
	case errors.As(err, &protoErr):
		s.config.counters.protocolErrors.Add(1)
		s.logError(err, "execute batch")
		if s.config.CloseOnProtocolError {
			return err
		}
		s.debugLog("batch aborted", "error", err)
		return nil

	case errors.As(err, &busErr):
		s.config.counters.busErrors.Add(1)
		s.logError(err, "execute batch")
		s.debugLog("batch aborted", "error", err)
		return nil

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err

	default:
		// Emit failed: the link is unusable.
		s.logError(err, "emit response")
		return err
	}
}

func (s *Session) logEvent(e log.Event) {
	if s.config.ProtocolLogger == nil {
		return
	}
	e.Timestamp = time.Now()
	e.ConnectionID = s.conn.ID()
	e.LocalRole = log.RoleBridge
	e.BridgeID = s.config.BridgeID
	s.config.ProtocolLogger.Log(e)
}

func (s *Session) logError(err error, op string) {
	layer := log.LayerWire
	var busErr *executor.BusError
	if errors.As(err, &busErr) {
		layer = log.LayerBus
	}
	s.logEvent(log.Event{
		Direction: log.DirectionIn,
		Layer:     layer,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Context: op,
		},
	})
}

func (s *Session) debugLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, args...)
	}
}

// Compile-time interface satisfaction check.
var _ transport.ConnectionHandler = (*Session)(nil)
