package bulk

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Default pacing between notifications.
const (
	DefaultHeaderDelay = 10 * time.Millisecond
	DefaultChunkDelay  = 1 * time.Millisecond
)

// Sink is a push-only notification channel.
type Sink interface {
	// Notify delivers one notification. Delivery is assumed reliable;
	// an error means the channel is gone.
	Notify(data []byte) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(data []byte) error

// Notify implements Sink.
func (f SinkFunc) Notify(data []byte) error {
	return f(data)
}

// StreamerConfig configures a Streamer.
type StreamerConfig struct {
	// ChunkSize is the payload bytes per notification.
	// Default: 20.
	ChunkSize int

	// HeaderDelay is the pause after the header notification.
	// Default: 10ms.
	HeaderDelay time.Duration

	// ChunkDelay is the pause after each full chunk.
	// Default: 1ms.
	ChunkDelay time.Duration

	// Sleep blocks for a pacing delay.
	// Default: time.Sleep.
	Sleep func(time.Duration)

	// Logger is the optional operational logger.
	Logger *slog.Logger
}

// Streamer sends payloads as header plus chunks.
type Streamer struct {
	config StreamerConfig
}

// NewStreamer creates a Streamer, applying defaults to zero fields.
func NewStreamer(config StreamerConfig) *Streamer {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkSize
	}
	if config.HeaderDelay == 0 {
		config.HeaderDelay = DefaultHeaderDelay
	}
	if config.ChunkDelay == 0 {
		config.ChunkDelay = DefaultChunkDelay
	}
	if config.Sleep == nil {
		config.Sleep = time.Sleep
	}
	return &Streamer{config: config}
}

// ChunkSize returns the configured chunk size.
func (s *Streamer) ChunkSize() int {
	return s.config.ChunkSize
}

// Notifications returns the number of notifications a pass of p sends.
func (s *Streamer) Notifications(p *Payload) int {
	return 1 + (p.Len()+s.config.ChunkSize-1)/s.config.ChunkSize
}

// Stream performs one pass of p into sink.
//
// The first sink error aborts the pass. ctx is checked between
// notifications.
func (s *Streamer) Stream(ctx context.Context, p *Payload, sink Sink) error {
	header, err := p.Header().MarshalBinary()
	if err != nil {
		return err
	}

	s.debugLog("streaming header", "name", p.Name, "len", p.Len(), "crc", fmt.Sprintf("%08x", p.Checksum))
	if err := sink.Notify(header); err != nil {
		return fmt.Errorf("header: %w", err)
	}
	s.config.Sleep(s.config.HeaderDelay)

	chunks := Chunks(p.Data, s.config.ChunkSize)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sink.Notify(chunk); err != nil {
			return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		if len(chunk) == s.config.ChunkSize {
			s.config.Sleep(s.config.ChunkDelay)
		}
	}

	s.debugLog("stream done", "name", p.Name, "chunks", len(chunks))
	return nil
}

func (s *Streamer) debugLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, args...)
	}
}
