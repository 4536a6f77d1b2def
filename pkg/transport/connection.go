package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/peripheral-bridge/bridge-go/pkg/log"
	"github.com/peripheral-bridge/bridge-go/pkg/wire"
)

// ConnectionState is the lifecycle state of a Connection.
type ConnectionState int

const (
	// StateDisconnected indicates no connection.
	StateDisconnected ConnectionState = iota

	// StateConnecting indicates connection in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateClosing indicates graceful close in progress.
	StateClosing
)

// String returns the connection state name.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// Connection errors.
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrConnectionClosed = errors.New("connection closed")
	ErrCloseTimeout     = errors.New("close timeout")
	ErrKeepAliveTimeout = errors.New("keep-alive timeout")
)

// ConnectionConfig configures a dial-out Connection.
type ConnectionConfig struct {
	// TLSConfig enables TLS. Nil dials plain TCP.
	TLSConfig *tls.Config

	// MaxMessageSize is the maximum message size (default: 64KB)
	MaxMessageSize uint32

	// KeepAlive configuration
	KeepAlive KeepAliveConfig

	// CloseTimeout is the timeout for graceful close (default: 5s)
	CloseTimeout time.Duration

	// WriteTimeout is the timeout for write operations (0 = no timeout)
	WriteTimeout time.Duration

	// Role is recorded as the local role in protocol log events.
	Role log.Role

	// Logger for protocol logging (optional).
	Logger log.Logger
}

// DefaultConnectionConfig returns the default connection configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		MaxMessageSize: DefaultMaxMessageSize,
		KeepAlive:      DefaultKeepAliveConfig(),
		CloseTimeout:   5 * time.Second,
	}
}

// ConnectionHandler handles connection events.
type ConnectionHandler interface {
	// OnMessage is called for every frame that is not a control message.
	// Calls are sequential and run on the read goroutine.
	OnMessage(msg []byte)

	// OnStateChange is called when the connection state changes.
	OnStateChange(oldState, newState ConnectionState)

	// OnError is called when an error ends the connection.
	OnError(err error)
}

// Connection is a single-use dial-out connection. After it closes, a new
// Connection must be created to reconnect.
type Connection struct {
	config  ConnectionConfig
	handler ConnectionHandler
	connID  string

	conn   net.Conn
	framer *Framer

	keepAlive *KeepAlive

	state     atomic.Int32
	used      atomic.Bool
	closeOnce sync.Once
	closeDone chan struct{}

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewConnection creates a new connection (not yet connected).
func NewConnection(config ConnectionConfig, handler ConnectionHandler) *Connection {
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.CloseTimeout == 0 {
		config.CloseTimeout = 5 * time.Second
	}

	c := &Connection{
		config:    config,
		handler:   handler,
		connID:    uuid.New().String(),
		closeDone: make(chan struct{}),
	}
	c.state.Store(int32(StateDisconnected))
	return c
}

// ID returns the connection identifier used in protocol logs.
func (c *Connection) ID() string {
	return c.connID
}

// State returns the current connection state.
func (c *Connection) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Done is closed once the connection has been established and has ended.
func (c *Connection) Done() <-chan struct{} {
	return c.closeDone
}

// Connect dials address and starts the read loop and keep-alive.
func (c *Connection) Connect(ctx context.Context, address string) error {
	if c.used.Swap(true) {
		if c.State() == StateDisconnected {
			return ErrConnectionClosed
		}
		return ErrAlreadyConnected
	}
	c.setState(StateDisconnected, StateConnecting, "")

	conn, err := c.dial(ctx, address)
	if err != nil {
		c.setState(StateConnecting, StateDisconnected, err.Error())
		close(c.closeDone)
		return err
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.mu.Lock()
	c.conn = conn
	c.framer = NewFramerWithMaxSize(conn, c.config.MaxMessageSize)
	if c.config.Logger != nil {
		c.framer.SetLogger(c.config.Logger, c.connID, c.config.Role)
	}
	c.mu.Unlock()

	c.setState(StateConnecting, StateConnected, "")

	c.startKeepAlive()
	go c.readLoop()

	return nil
}

func (c *Connection) dial(ctx context.Context, address string) (net.Conn, error) {
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	if c.config.TLSConfig == nil {
		return conn, nil
	}

	tlsConn := tls.Client(conn, c.config.TLSConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("TLS handshake failed: %w", err)
	}
	if err := VerifyConnection(tlsConn.ConnectionState()); err != nil {
		tlsConn.Close()
		return nil, fmt.Errorf("connection verification failed: %w", err)
	}
	return tlsConn, nil
}

// Send sends a message over the connection.
func (c *Connection) Send(data []byte) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}
	return c.write(data)
}

func (c *Connection) write(data []byte) error {
	c.mu.RLock()
	framer := c.framer
	conn := c.conn
	c.mu.RUnlock()

	if framer == nil {
		return ErrNotConnected
	}

	if c.config.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}
	return framer.WriteFrame(data)
}

// SendControlMessage sends a control message.
func (c *Connection) SendControlMessage(msg *wire.ControlMessage) error {
	data, err := wire.EncodeControlMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to encode control message: %w", err)
	}
	if err := c.write(data); err != nil {
		return err
	}
	c.logControl(msg, log.DirectionOut)
	return nil
}

// Close gracefully closes the connection: it sends a close message and
// waits up to CloseTimeout for the peer's acknowledgment.
func (c *Connection) Close() error {
	return c.CloseWithTimeout(c.config.CloseTimeout)
}

// CloseWithTimeout gracefully closes with a specific timeout.
func (c *Connection) CloseWithTimeout(timeout time.Duration) error {
	if !c.state.CompareAndSwap(int32(StateConnected), int32(StateClosing)) {
		c.ForceClose()
		return nil
	}
	c.notifyStateChange(StateConnected, StateClosing, "")

	var closeErr error
	if err := c.SendControlMessage(&wire.ControlMessage{Type: wire.ControlClose}); err == nil {
		select {
		case <-c.closeDone:
		case <-time.After(timeout):
			closeErr = ErrCloseTimeout
		}
	}

	c.teardown("")
	return closeErr
}

// ForceClose immediately closes the connection without graceful handshake.
func (c *Connection) ForceClose() {
	c.teardown("")
}

func (c *Connection) teardown(reason string) {
	c.closeOnce.Do(func() {
		old := c.State()
		if c.keepAlive != nil {
			c.keepAlive.Stop()
		}
		if c.cancel != nil {
			c.cancel()
		}

		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()

		if old != StateDisconnected {
			c.setState(old, StateDisconnected, reason)
		}
	})
}

// LocalAddr returns the local network address.
func (c *Connection) LocalAddr() net.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn != nil {
		return c.conn.LocalAddr()
	}
	return nil
}

// RemoteAddr returns the remote network address.
func (c *Connection) RemoteAddr() net.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn != nil {
		return c.conn.RemoteAddr()
	}
	return nil
}

// KeepAliveStats returns the keep-alive statistics of the connection.
func (c *Connection) KeepAliveStats() KeepAliveStats {
	if c.keepAlive == nil {
		return KeepAliveStats{}
	}
	return c.keepAlive.Stats()
}

func (c *Connection) startKeepAlive() {
	c.keepAlive = NewKeepAlive(
		c.config.KeepAlive,
		func(seq uint32) error {
			return c.SendControlMessage(&wire.ControlMessage{Type: wire.ControlPing, Sequence: seq})
		},
		func() {
			c.reportError(ErrKeepAliveTimeout)
			c.teardown(ErrKeepAliveTimeout.Error())
		},
	)
	c.keepAlive.Start(c.ctx)
}

func (c *Connection) readLoop() {
	defer close(c.closeDone)

	c.mu.RLock()
	framer := c.framer
	c.mu.RUnlock()

	for {
		data, err := framer.ReadFrame()
		if err != nil {
			if c.State() == StateClosing || c.ctx.Err() != nil {
				return
			}
			c.reportError(fmt.Errorf("read error: %w", err))
			c.teardown(err.Error())
			return
		}

		if msg, ok := AsControlMessage(data); ok {
			if stop := c.handleControlMessage(msg); stop {
				return
			}
			continue
		}

		if c.handler != nil {
			c.handler.OnMessage(data)
		}
	}
}

// handleControlMessage processes control messages and reports whether the
// read loop should end.
func (c *Connection) handleControlMessage(msg *wire.ControlMessage) bool {
	c.logControl(msg, log.DirectionIn)

	switch msg.Type {
	case wire.ControlPing:
		_ = c.SendControlMessage(&wire.ControlMessage{Type: wire.ControlPong, Sequence: msg.Sequence})

	case wire.ControlPong:
		if c.keepAlive != nil {
			c.keepAlive.PongReceived(msg.Sequence)
		}

	case wire.ControlClose:
		if c.State() == StateClosing {
			// Acknowledgment of our own close.
			return true
		}
		_ = c.SendControlMessage(&wire.ControlMessage{Type: wire.ControlClose})
		c.teardown("closed by peer")
		return true
	}
	return false
}

func (c *Connection) reportError(err error) {
	if c.handler != nil {
		c.handler.OnError(err)
	}
	if c.config.Logger != nil {
		c.config.Logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: c.connID,
			Layer:        log.LayerTransport,
			Category:     log.CategoryError,
			LocalRole:    c.config.Role,
			Error: &log.ErrorEventData{
				Layer:   log.LayerTransport,
				Message: err.Error(),
				Context: "connection",
			},
		})
	}
}

func (c *Connection) setState(oldState, newState ConnectionState, reason string) {
	c.state.Store(int32(newState))
	c.notifyStateChange(oldState, newState, reason)
}

func (c *Connection) notifyStateChange(oldState, newState ConnectionState, reason string) {
	if c.config.Logger != nil {
		remote := ""
		if addr := c.RemoteAddr(); addr != nil {
			remote = addr.String()
		}
		c.config.Logger.Log(stateEvent(c.connID, remote, c.config.Role, oldState.String(), newState.String(), reason))
	}
	if c.handler != nil {
		c.handler.OnStateChange(oldState, newState)
	}
}

func (c *Connection) logControl(msg *wire.ControlMessage, direction log.Direction) {
	if c.config.Logger == nil {
		return
	}
	remote := ""
	if addr := c.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	if ev, ok := controlEvent(c.connID, remote, c.config.Role, msg, direction); ok {
		c.config.Logger.Log(ev)
	}
}
