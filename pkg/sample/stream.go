package sample

import (
	"context"
	"log/slog"
	"time"

	"github.com/peripheral-bridge/bridge-go/pkg/gate"
)

// DefaultInterval is the pause between samples.
const DefaultInterval = 10 * time.Millisecond

// Channel is the notification channel samples are pushed to.
type Channel interface {
	Notify(payload []byte) error
	Subscribed() bool
	Gate() *gate.Gate
}

// StreamConfig configures a Stream.
type StreamConfig struct {
	// Interval between samples (default: 10ms).
	Interval time.Duration

	// Logger is the operational logger (optional).
	Logger *slog.Logger
}

// Stream pushes samples every Interval while the channel is subscribed.
type Stream struct {
	config StreamConfig
	source Source
	ch     Channel
}

// NewStream creates a sample stream.
func NewStream(config StreamConfig, source Source, ch Channel) *Stream {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	return &Stream{config: config, source: source, ch: ch}
}

// Run waits for a subscription, streams until the consumer unsubscribes
// and waits again, until ctx is done. It returns ctx.Err().
func (s *Stream) Run(ctx context.Context) error {
	return gate.Run(ctx, s.ch.Gate(), func(ctx context.Context) error {
		s.debugLog("sample stream started")
		defer s.debugLog("sample stream stopped")
		return s.stream(ctx)
	}, nil)
}

// stream sends samples until the channel is unsubscribed. It returns an
// error only when ctx is done.
func (s *Stream) stream(ctx context.Context) error {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	var buf []byte
	for {
		if !s.ch.Subscribed() {
			return nil
		}

		smp, err := s.source.Next()
		if err != nil {
			s.debugLog("sample source failed", "error", err)
		} else {
			buf, _ = smp.AppendBinary(buf[:0])
			if err := s.ch.Notify(buf); err != nil {
				s.debugLog("sample notify failed", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Stream) debugLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, args...)
	}
}

