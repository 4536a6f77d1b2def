// Package transport carries framed messages between bridges, controllers
// and notification consumers.
//
// The transport layer handles:
//   - Length-prefixed message framing
//   - Plain TCP or TLS 1.3 connections (ALPN "pbridge/1")
//   - Keep-alive ping/pong for connection liveness
//   - Connection state management
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│  CBOR batches / notifications  │
//	├────────────────────────────────┤
//	│   Length-Prefix Framing (4B)   │
//	├────────────────────────────────┤
//	│      TLS 1.3 (optional)        │
//	├────────────────────────────────┤
//	│             TCP                │
//	└────────────────────────────────┘
//
// A bridge dials out to its controller with a Connection. The controller
// runs a Server and pushes command batches over the accepted ServerConn.
// Notification consumers use Client to attach to a bridge's notification
// Server.
//
// Control messages (ping, pong, close, subscribe, unsubscribe) share the
// framing with regular messages. They are told apart with
// wire.PeekMessageType. Ping, pong and close are answered here; subscribe
// and unsubscribe are handed to the server's OnControl hook.
//
// # Keep-Alive
//
// The dialing side sends pings:
//   - Ping interval: 5 seconds
//   - Pong timeout: 2 seconds
//   - Max missed pongs: 3
//   - Maximum detection delay: 17 seconds
package transport
