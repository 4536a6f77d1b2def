package transport

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/peripheral-bridge/bridge-go/pkg/wire"
)

// Sender sends one framed message.
// Implemented by Connection, ServerConn and ClientConn.
type Sender interface {
	Send(data []byte) error
}

// ServerConnection represents a server-side connection to a client.
// Implemented by ServerConn.
type ServerConnection interface {
	Sender

	// RemoteAddr returns the remote network address of the client.
	RemoteAddr() net.Addr

	// TLSState returns the TLS connection state.
	TLSState() tls.ConnectionState

	// SendControl sends a control message.
	SendControl(msg *wire.ControlMessage) error

	// Done is closed when the connection is closed.
	Done() <-chan struct{}

	// Close closes the connection.
	Close() error
}

// ClientConnection represents a client-side connection to a server.
// Implemented by ClientConn.
type ClientConnection interface {
	Sender

	// LocalAddr returns the local network address.
	LocalAddr() net.Addr

	// RemoteAddr returns the remote network address.
	RemoteAddr() net.Addr

	// Receive receives a message with the specified timeout.
	Receive(timeout time.Duration) ([]byte, error)

	// Subscribe starts notifications on a channel.
	Subscribe(channel uint8) error

	// Unsubscribe stops notifications on a channel.
	Unsubscribe(channel uint8) error

	// Close closes the connection.
	Close() error
}

// TransportServer represents a listening server.
// Implemented by Server.
type TransportServer interface {
	// Start begins accepting connections.
	Start(ctx context.Context) error

	// Stop gracefully stops the server.
	Stop() error

	// Addr returns the server's listen address.
	Addr() net.Addr

	// ConnectionCount returns the number of active connections.
	ConnectionCount() int
}

// FrameReadWriter provides length-prefixed frame I/O.
// Implemented by Framer.
type FrameReadWriter interface {
	// ReadFrame reads a length-prefixed frame.
	ReadFrame() ([]byte, error)

	// WriteFrame writes a length-prefixed frame.
	WriteFrame(data []byte) error
}

// Compile-time interface satisfaction checks.
var (
	_ Sender           = (*Connection)(nil)
	_ ServerConnection = (*ServerConn)(nil)
	_ ClientConnection = (*ClientConn)(nil)
	_ TransportServer  = (*Server)(nil)
	_ FrameReadWriter  = (*Framer)(nil)
)
