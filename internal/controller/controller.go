// Package controller is the controller side of the command link: it
// accepts one bridge connection, submits command batches and collects
// the response operations the bridge emits.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/peripheral-bridge/bridge-go/pkg/log"
	"github.com/peripheral-bridge/bridge-go/pkg/transport"
	"github.com/peripheral-bridge/bridge-go/pkg/wire"
)

// Errors returned by the controller.
var (
	ErrNoLink   = errors.New("no bridge connected")
	ErrTimeout  = errors.New("timed out waiting for responses")
	ErrLinkLost = errors.New("bridge link closed")
)

// Defaults.
const (
	DefaultResponseTimeout = 2 * time.Second
	DefaultQueueSize       = 256
)

// Response is one operation a bridge answered with.
type Response struct {
	Transport wire.TransportType
	Bus       wire.BusType
	Op        wire.BusOperation
	Received  time.Time
}

// Config configures a Controller.
type Config struct {
	// Address to listen on for bridges.
	Address string

	// TLSConfig enables TLS. Nil serves plain TCP.
	TLSConfig *transport.TLSConfig

	MaxMessageSize uint32

	// ResponseTimeout bounds one Exchange when the caller's context has
	// no deadline. Default: DefaultResponseTimeout.
	ResponseTimeout time.Duration

	// QueueSize is the number of responses buffered between exchanges.
	QueueSize int

	Logger         *slog.Logger
	ProtocolLogger log.Logger
}

// Controller accepts a bridge link and exchanges batches over it.
type Controller struct {
	config Config
	server *transport.Server

	mu     sync.Mutex
	link   *transport.ServerConn
	linkCh chan struct{}

	responses    chan Response
	decodeErrors atomic.Uint64
	dropped      atomic.Uint64
}

// New creates a controller. Call Start to begin accepting.
func New(config Config) (*Controller, error) {
	if config.ResponseTimeout <= 0 {
		config.ResponseTimeout = DefaultResponseTimeout
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}

	c := &Controller{
		config:    config,
		linkCh:    make(chan struct{}),
		responses: make(chan Response, config.QueueSize),
	}

	server, err := transport.NewServer(transport.ServerConfig{
		TLSConfig:      config.TLSConfig,
		Address:        config.Address,
		MaxMessageSize: config.MaxMessageSize,
		MaxConnections: 1,
		Role:           log.RoleController,
		Logger:         config.ProtocolLogger,
		OnConnect:      c.handleConnect,
		OnDisconnect:   c.handleDisconnect,
		OnMessage:      c.handleMessage,
		OnError:        c.handleError,
	})
	if err != nil {
		return nil, err
	}
	c.server = server
	return c, nil
}

// Start begins accepting bridge connections.
func (c *Controller) Start(ctx context.Context) error {
	return c.server.Start(ctx)
}

// Stop closes the listener and the bridge link.
func (c *Controller) Stop() error {
	return c.server.Stop()
}

// Addr returns the listen address, or nil before Start.
func (c *Controller) Addr() net.Addr {
	return c.server.Addr()
}

// Connected reports whether a bridge link is attached.
func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link != nil
}

// LinkID returns the connection id of the attached link, or "".
func (c *Controller) LinkID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link == nil {
		return ""
	}
	return c.link.ConnID()
}

// RemoteAddr returns the bridge address, or nil without a link.
func (c *Controller) RemoteAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link == nil {
		return nil
	}
	return c.link.RemoteAddr()
}

// DecodeErrors returns the number of undecodable frames received.
func (c *Controller) DecodeErrors() uint64 {
	return c.decodeErrors.Load()
}

// WaitLink blocks until a bridge is connected.
func (c *Controller) WaitLink(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.link != nil {
			c.mu.Unlock()
			return nil
		}
		ch := c.linkCh
		c.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Send encodes and submits a batch without waiting for responses.
func (c *Controller) Send(b *wire.CommandBatch) error {
	conn := c.current()
	if conn == nil {
		return ErrNoLink
	}
	return c.send(conn, b)
}

func (c *Controller) send(conn *transport.ServerConn, b *wire.CommandBatch) error {
	data, err := wire.EncodeBatch(b)
	if err != nil {
		return err
	}
	if err := conn.Send(data); err != nil {
		return err
	}
	c.logEvent(conn, log.Event{
		Direction: log.DirectionOut,
		Layer:     log.LayerWire,
		Category:  log.CategoryMessage,
		Message:   log.NewMessageEvent(log.MessageTypeBatch, b),
	})
	return nil
}

// Exchange submits a batch and collects the responses it should produce.
// Responses left over from earlier batches are discarded first. On
// timeout or link loss the responses received so far are returned with
// the error.
func (c *Controller) Exchange(ctx context.Context, b *wire.CommandBatch) ([]Response, error) {
	conn := c.current()
	if conn == nil {
		return nil, ErrNoLink
	}
	c.Drain()

	want := ExpectedResponses(b)
	if err := c.send(conn, b); err != nil {
		return nil, err
	}
	if want == 0 {
		return nil, nil
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ResponseTimeout)
		defer cancel()
	}

	got := make([]Response, 0, want)
	for len(got) < want {
		select {
		case r := <-c.responses:
			got = append(got, r)
		case <-conn.Done():
			return got, ErrLinkLost
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return got, fmt.Errorf("%w: %d of %d", ErrTimeout, len(got), want)
			}
			return got, ctx.Err()
		}
	}
	return got, nil
}

// Responses returns the response queue for callers that submit with Send.
func (c *Controller) Responses() <-chan Response {
	return c.responses
}

// Drain discards queued responses and returns how many there were.
func (c *Controller) Drain() int {
	n := 0
	for {
		select {
		case <-c.responses:
			n++
		default:
			return n
		}
	}
}

// ExpectedResponses returns the number of responses a bridge emits for b:
// one per Read that requests data.
func ExpectedResponses(b *wire.CommandBatch) int {
	n := 0
	for i := range b.Envelopes {
		for _, op := range b.Envelopes[i].Operations {
			if op.Operation == wire.OpRead && op.Data != nil {
				n++
			}
		}
	}
	return n
}

func (c *Controller) current() *transport.ServerConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link
}

func (c *Controller) handleConnect(conn *transport.ServerConn) {
	c.mu.Lock()
	c.link = conn
	close(c.linkCh)
	c.linkCh = make(chan struct{})
	c.mu.Unlock()

	c.infoLog("bridge connected", "conn_id", conn.ConnID(), "remote", conn.RemoteAddr())
}

func (c *Controller) handleDisconnect(conn *transport.ServerConn) {
	c.mu.Lock()
	if c.link == conn {
		c.link = nil
	}
	c.mu.Unlock()

	c.infoLog("bridge disconnected", "conn_id", conn.ConnID())
}

func (c *Controller) handleMessage(conn *transport.ServerConn, msg []byte) {
	batch, err := wire.DecodeBatch(msg)
	if err != nil {
		c.decodeErrors.Add(1)
		c.debugLog("dropping undecodable frame", "len", len(msg), "error", err)
		return
	}

	c.logEvent(conn, log.Event{
		Direction: log.DirectionIn,
		Layer:     log.LayerWire,
		Category:  log.CategoryMessage,
		Message:   log.NewMessageEvent(log.MessageTypeResponse, batch),
	})

	now := time.Now()
	for _, env := range batch.Envelopes {
		for _, op := range env.Operations {
			r := Response{Transport: env.Transport, Bus: env.Bus, Op: op, Received: now}
			select {
			case c.responses <- r:
			default:
				c.dropped.Add(1)
				c.debugLog("response queue full", "address", op.Address)
			}
		}
	}
}

func (c *Controller) handleError(conn *transport.ServerConn, err error) {
	if conn == nil {
		c.debugLog("listener error", "error", err)
		return
	}
	c.debugLog("link error", "conn_id", conn.ConnID(), "error", err)
}

func (c *Controller) logEvent(conn *transport.ServerConn, e log.Event) {
	if c.config.ProtocolLogger == nil {
		return
	}
	e.Timestamp = time.Now()
	e.ConnectionID = conn.ConnID()
	e.LocalRole = log.RoleController
	if addr := conn.RemoteAddr(); addr != nil {
		e.RemoteAddr = addr.String()
	}
	c.config.ProtocolLogger.Log(e)
}

func (c *Controller) infoLog(msg string, args ...any) {
	if c.config.Logger != nil {
		c.config.Logger.Info(msg, args...)
	}
}

func (c *Controller) debugLog(msg string, args ...any) {
	if c.config.Logger != nil {
		c.config.Logger.Debug(msg, args...)
	}
}
