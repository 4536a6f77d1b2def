package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/peripheral-bridge/bridge-go/pkg/gate"
	"github.com/peripheral-bridge/bridge-go/pkg/log"
	"github.com/peripheral-bridge/bridge-go/pkg/transport"
	"github.com/peripheral-bridge/bridge-go/pkg/wire"
)

// ServerConfig configures a notification Server.
type ServerConfig struct {
	// Address to listen on.
	Address string

	// TLSConfig enables TLS. Nil serves plain TCP.
	TLSConfig *transport.TLSConfig

	// MTU is the maximum payload per notification (default: 20).
	MTU int

	// BridgeID tags protocol log events.
	BridgeID string

	// Logger is the operational logger (optional).
	Logger *slog.Logger

	// ProtocolLogger records frames, control messages and gate changes (optional).
	ProtocolLogger log.Logger
}

// Server pushes notifications to one consumer.
type Server struct {
	config    ServerConfig
	transport *transport.Server

	mu       sync.RWMutex
	channels map[uint8]*Channel
	consumer *transport.ServerConn
}

// NewServer creates a notification server.
func NewServer(config ServerConfig) (*Server, error) {
	if config.MTU <= 0 {
		config.MTU = DefaultMTU
	}

	s := &Server{
		config:   config,
		channels: make(map[uint8]*Channel),
	}

	ts, err := transport.NewServer(transport.ServerConfig{
		TLSConfig:      config.TLSConfig,
		Address:        config.Address,
		MaxConnections: 1,
		Role:           log.RoleBridge,
		Logger:         config.ProtocolLogger,
		OnConnect:      s.handleConnect,
		OnDisconnect:   s.handleDisconnect,
		OnControl:      s.handleControl,
		OnMessage:      s.handleMessage,
		OnError:        s.handleError,
	})
	if err != nil {
		return nil, err
	}
	s.transport = ts
	return s, nil
}

// AddChannel registers a channel.
func (s *Server) AddChannel(id uint8) (*Channel, error) {
	if !ValidChannelID(id) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannel, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[id]; ok {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateChannel, id)
	}

	ch := &Channel{id: id, server: s, gate: gate.New()}
	ch.gate.OnStateChange(func(from, to gate.State) {
		s.logGate(id, from, to)
	})
	s.channels[id] = ch
	return ch, nil
}

// Channel returns a registered channel.
func (s *Server) Channel(id uint8) (*Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[id]
	return ch, ok
}

// MTU returns the maximum payload per notification.
func (s *Server) MTU() int {
	return s.config.MTU
}

// Start begins accepting the consumer.
func (s *Server) Start(ctx context.Context) error {
	return s.transport.Start(ctx)
}

// Stop closes the consumer and stops listening.
func (s *Server) Stop() error {
	return s.transport.Stop()
}

// Addr returns the listen address.
func (s *Server) Addr() net.Addr {
	return s.transport.Addr()
}

// Connected reports whether a consumer is attached.
func (s *Server) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.consumer != nil
}

func (s *Server) handleConnect(conn *transport.ServerConn) {
	s.mu.Lock()
	s.consumer = conn
	s.mu.Unlock()
	s.debugLog("consumer connected", "remote", conn.RemoteAddr())
}

func (s *Server) handleDisconnect(conn *transport.ServerConn) {
	s.mu.Lock()
	if s.consumer != conn {
		s.mu.Unlock()
		return
	}
	s.consumer = nil
	channels := make([]*Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		channels = append(channels, ch)
	}
	s.mu.Unlock()

	for _, ch := range channels {
		ch.unsubscribe()
	}
	s.debugLog("consumer disconnected", "remote", conn.RemoteAddr())
}

func (s *Server) handleControl(conn *transport.ServerConn, msg *wire.ControlMessage) {
	ch, ok := s.Channel(msg.Channel)
	if !ok {
		s.debugLog("control for unknown channel", "channel", msg.Channel, "type", msg.Type)
		return
	}

	switch msg.Type {
	case wire.ControlSubscribe:
		ch.subscribe()
	case wire.ControlUnsubscribe:
		ch.unsubscribe()
	}
}

func (s *Server) handleMessage(conn *transport.ServerConn, msg []byte) {
	s.debugLog("ignoring consumer message", "remote", conn.RemoteAddr(), "size", len(msg))
}

func (s *Server) handleError(_ *transport.ServerConn, err error) {
	s.debugLog("notification transport error", "error", err)
}

func (s *Server) send(frame []byte) error {
	s.mu.RLock()
	conn := s.consumer
	s.mu.RUnlock()
	if conn == nil {
		return ErrNotSubscribed
	}
	return conn.Send(frame)
}

func (s *Server) logGate(id uint8, from, to gate.State) {
	if s.config.ProtocolLogger == nil {
		return
	}
	s.config.ProtocolLogger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerStream,
		Category:  log.CategoryState,
		LocalRole: log.RoleBridge,
		BridgeID:  s.config.BridgeID,
		Channel:   id,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySubscription,
			OldState: from.String(),
			NewState: to.String(),
		},
	})
}

func (s *Server) debugLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, args...)
	}
}

// Channel is one notification channel.
type Channel struct {
	id     uint8
	server *Server
	gate   *gate.Gate

	mu         sync.Mutex
	subscribed bool
	sent       uint64
}

// ID returns the channel id.
func (c *Channel) ID() uint8 {
	return c.id
}

// MTU returns the maximum payload per notification.
func (c *Channel) MTU() int {
	return c.server.config.MTU
}

// Gate returns the channel's subscription gate.
func (c *Channel) Gate() *gate.Gate {
	return c.gate
}

// Subscribed reports whether the consumer is subscribed.
func (c *Channel) Subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed
}

// Sent returns the number of notifications pushed on this channel.
func (c *Channel) Sent() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

// Notify pushes payload to the subscribed consumer.
func (c *Channel) Notify(payload []byte) error {
	if len(payload) > c.MTU() {
		return fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), c.MTU())
	}
	if !c.Subscribed() {
		return ErrNotSubscribed
	}

	frame, err := EncodeFrame(c.id, payload)
	if err != nil {
		return err
	}
	if err := c.server.send(frame); err != nil {
		return err
	}

	c.mu.Lock()
	c.sent++
	c.mu.Unlock()
	return nil
}

// subscribe marks the channel subscribed and arms its gate. Repeated
// subscribes arm the gate again.
func (c *Channel) subscribe() {
	c.mu.Lock()
	c.subscribed = true
	c.mu.Unlock()
	c.gate.Subscribe()
}

func (c *Channel) unsubscribe() {
	c.mu.Lock()
	c.subscribed = false
	c.mu.Unlock()
	c.gate.Unsubscribe()
}
