package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/peripheral-bridge/bridge-go/pkg/log"
	"github.com/peripheral-bridge/bridge-go/pkg/wire"
)

// ErrTooManyConnections is reported when a connection is refused because
// the server is at its connection limit.
var ErrTooManyConnections = errors.New("too many connections")

// ServerConfig configures a Server.
type ServerConfig struct {
	// TLSConfig enables TLS. Nil serves plain TCP.
	TLSConfig *TLSConfig

	// Address to listen on (e.g., ":7420" or "127.0.0.1:0").
	Address string

	// MaxMessageSize is the maximum message size (default: 64KB).
	MaxMessageSize uint32

	// MaxConnections limits concurrent connections. Zero means unlimited.
	// Connections beyond the limit are closed right after accept.
	MaxConnections int

	// Role is recorded as the local role in protocol log events.
	Role log.Role

	// Logger for protocol logging (optional).
	Logger log.Logger

	// OnConnect is called when a new connection is established.
	OnConnect func(conn *ServerConn)

	// OnDisconnect is called when a connection is closed.
	OnDisconnect func(conn *ServerConn)

	// OnMessage is called for every frame that is not a control message.
	// Calls for one connection are sequential.
	OnMessage func(conn *ServerConn, msg []byte)

	// OnControl is called for subscribe and unsubscribe control messages.
	// Ping, pong and close are handled by the server.
	OnControl func(conn *ServerConn, msg *wire.ControlMessage)

	// OnError is called when an error occurs. conn is nil for listener errors.
	OnError func(conn *ServerConn, err error)
}

// Server accepts framed connections.
type Server struct {
	config   ServerConfig
	tlsConf  *tls.Config
	listener net.Listener

	conns   map[*ServerConn]struct{}
	connsMu sync.RWMutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a new server.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}

	s := &Server{
		config: config,
		conns:  make(map[*ServerConn]struct{}),
	}

	if config.TLSConfig != nil {
		tlsConf, err := NewServerTLSConfig(config.TLSConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		s.tlsConf = tlsConf
	}

	return s, nil
}

// Start starts the server and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.listener = listener
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	// Shut down when the parent context ends.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-s.ctx.Done()
		s.listener.Close()
		s.closeAll()
	}()

	return nil
}

// Stop stops the server and closes all connections.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}

	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *Server) closeAll() {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	for conn := range s.conns {
		conn.Close()
	}
}

// Addr returns the server's listen address.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

// Connections returns a snapshot of the active connections.
func (s *Server) Connections() []*ServerConn {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	out := make([]*ServerConn, 0, len(s.conns))
	for c := range s.conns {
		out = append(out, c)
	}
	return out
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() || s.ctx.Err() != nil {
				return
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.reportError(nil, fmt.Errorf("accept error: %w", err))
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) reportError(conn *ServerConn, err error) {
	if s.config.OnError != nil {
		s.config.OnError(conn, err)
	}
}

func (s *Server) handshake(conn net.Conn) (net.Conn, tls.ConnectionState, error) {
	if s.tlsConf == nil {
		return conn, tls.ConnectionState{}, nil
	}

	tlsConn := tls.Server(conn, s.tlsConf)
	if err := tlsConn.HandshakeContext(s.ctx); err != nil {
		return nil, tls.ConnectionState{}, fmt.Errorf("TLS handshake failed: %w", err)
	}
	state := tlsConn.ConnectionState()
	if err := VerifyConnection(state); err != nil {
		return nil, tls.ConnectionState{}, err
	}
	return tlsConn, state, nil
}

// register adds the connection unless the server is full.
func (s *Server) register(c *ServerConn) bool {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if s.config.MaxConnections > 0 && len(s.conns) >= s.config.MaxConnections {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) handleConnection(raw net.Conn) {
	defer s.wg.Done()

	conn, state, err := s.handshake(raw)
	if err != nil {
		raw.Close()
		s.reportError(nil, err)
		return
	}

	connID := uuid.New().String()
	framer := NewFramerWithMaxSize(conn, s.config.MaxMessageSize)
	if s.config.Logger != nil {
		framer.SetLogger(s.config.Logger, connID, s.config.Role)
	}

	sconn := &ServerConn{
		conn:       conn,
		framer:     framer,
		tlsState:   state,
		server:     s,
		closeCh:    make(chan struct{}),
		remoteAddr: raw.RemoteAddr(),
		connID:     connID,
	}

	if !s.register(sconn) {
		s.logState(sconn, "", "REFUSED", ErrTooManyConnections.Error())
		conn.Close()
		s.reportError(nil, fmt.Errorf("%w: %s", ErrTooManyConnections, raw.RemoteAddr()))
		return
	}

	if s.ctx.Err() != nil {
		sconn.Close()
	}

	s.logState(sconn, "", "CONNECTED", "")
	if s.config.OnConnect != nil {
		s.config.OnConnect(sconn)
	}

	sconn.readLoop()

	s.connsMu.Lock()
	delete(s.conns, sconn)
	s.connsMu.Unlock()

	s.logState(sconn, "CONNECTED", "DISCONNECTED", "")
	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(sconn)
	}
}

func (s *Server) logState(c *ServerConn, oldState, newState, reason string) {
	if s.config.Logger == nil {
		return
	}
	s.config.Logger.Log(stateEvent(c.connID, c.remoteAddr.String(), s.config.Role, oldState, newState, reason))
}

// ServerConn represents an accepted connection.
type ServerConn struct {
	conn       net.Conn
	framer     *Framer
	tlsState   tls.ConnectionState
	server     *Server
	closeCh    chan struct{}
	closeOnce  sync.Once
	remoteAddr net.Addr
	connID     string
}

// RemoteAddr returns the remote address of the peer.
func (c *ServerConn) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// ConnID returns the unique connection identifier.
func (c *ServerConn) ConnID() string {
	return c.connID
}

// TLSState returns the TLS connection state (zero for plain TCP).
func (c *ServerConn) TLSState() tls.ConnectionState {
	return c.tlsState
}

// Done is closed when the connection is closed.
func (c *ServerConn) Done() <-chan struct{} {
	return c.closeCh
}

// Send sends a message to the peer.
func (c *ServerConn) Send(data []byte) error {
	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}
	return c.framer.WriteFrame(data)
}

// SendControl sends a control message and logs it.
func (c *ServerConn) SendControl(msg *wire.ControlMessage) error {
	data, err := wire.EncodeControlMessage(msg)
	if err != nil {
		return err
	}
	if err := c.Send(data); err != nil {
		return err
	}
	c.logControl(msg, log.DirectionOut)
	return nil
}

// Close closes the connection.
func (c *ServerConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

func (c *ServerConn) closed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

func (c *ServerConn) readLoop() {
	defer c.Close()

	for {
		data, err := c.framer.ReadFrame()
		if err != nil {
			if !c.closed() && c.server.running.Load() && !errors.Is(err, io.EOF) {
				c.server.reportError(c, err)
			}
			return
		}

		if msg, ok := AsControlMessage(data); ok {
			if stop := c.handleControlMessage(msg); stop {
				return
			}
			continue
		}

		if c.server.config.OnMessage != nil {
			c.server.config.OnMessage(c, data)
		}
	}
}

// handleControlMessage processes control messages and reports whether the
// connection is done.
func (c *ServerConn) handleControlMessage(msg *wire.ControlMessage) bool {
	c.logControl(msg, log.DirectionIn)

	switch msg.Type {
	case wire.ControlPing:
		_ = c.SendControl(&wire.ControlMessage{Type: wire.ControlPong, Sequence: msg.Sequence})

	case wire.ControlPong:
		// Pings are only sent by the dialing side.

	case wire.ControlClose:
		_ = c.SendControl(&wire.ControlMessage{Type: wire.ControlClose})
		return true

	case wire.ControlSubscribe, wire.ControlUnsubscribe:
		if c.server.config.OnControl != nil {
			c.server.config.OnControl(c, msg)
		}
	}
	return false
}

func (c *ServerConn) logControl(msg *wire.ControlMessage, direction log.Direction) {
	if c.server.config.Logger == nil {
		return
	}
	if ev, ok := controlEvent(c.connID, c.remoteAddr.String(), c.server.config.Role, msg, direction); ok {
		c.server.config.Logger.Log(ev)
	}
}
