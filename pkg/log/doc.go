// Package log provides structured protocol logging for the bridge.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, wire, bus, stream).
// It is separate from operational logging (slog) - protocol capture provides
// a complete machine-readable event trace for debugging and analysis.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/pbridge/bridge.pblog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    log.NewFileLogger("/var/log/pbridge/bridge.pblog"),
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: Raw frame bytes (FrameEvent)
//   - Wire: Decoded messages (MessageEvent)
//   - Bus: Executed bus operations (BusEvent)
//   - Stream: Bulk transfer passes (StreamEvent)
//
// State changes, control messages (ping/pong/close/subscribe) and errors
// have dedicated event types.
//
// # File Format
//
// Log files are a sequence of CBOR events with the .pblog extension. The
// pb-log CLI tool provides viewing, filtering and statistics.
package log
