package log

import (
	"context"
	"encoding/hex"
	"log/slog"
)

// SlogAdapter writes protocol events to an slog.Logger.
// Useful for development when you want to see protocol events in console.
type SlogAdapter struct {
	logger *slog.Logger
	level  slog.Level
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger
// at Debug level.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger, level: slog.LevelDebug}
}

// WithLevel returns a copy of the adapter that logs at level.
func (a *SlogAdapter) WithLevel(level slog.Level) *SlogAdapter {
	return &SlogAdapter{logger: a.logger, level: level}
}

// Log writes the event to the slog logger.
func (a *SlogAdapter) Log(event Event) {
	ctx := context.Background()
	if !a.logger.Enabled(ctx, a.level) {
		return
	}

	attrs := []slog.Attr{
		slog.String("conn_id", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}

	if event.BridgeID != "" {
		attrs = append(attrs, slog.String("bridge_id", event.BridgeID))
	}
	if event.Channel != 0 {
		attrs = append(attrs, slog.Int("channel", int(event.Channel)))
	}

	switch {
	case event.Frame != nil:
		attrs = append(attrs,
			slog.Int("frame_size", event.Frame.Size),
			slog.Bool("truncated", event.Frame.Truncated),
		)
	case event.Message != nil:
		attrs = append(attrs,
			slog.String("msg_type", event.Message.Type.String()),
			slog.Int("envelopes", event.Message.Envelopes),
			slog.Int("operations", event.Message.Operations),
		)
		if event.Message.ProcessingTime != nil {
			attrs = append(attrs, slog.Duration("processing_time", *event.Message.ProcessingTime))
		}
	case event.Bus != nil:
		attrs = append(attrs,
			slog.String("bus", event.Bus.Bus.String()),
			slog.String("operation", event.Bus.Operation.String()),
			slog.Uint64("address", uint64(event.Bus.Address)),
			slog.Int("tx_len", event.Bus.TxLen),
		)
		if len(event.Bus.RxData) > 0 {
			attrs = append(attrs, slog.String("rx", hex.EncodeToString(event.Bus.RxData)))
		}
		if event.Bus.Delay > 0 {
			attrs = append(attrs, slog.Duration("delay", event.Bus.Delay))
		}
	case event.Stream != nil:
		attrs = append(attrs,
			slog.String("phase", event.Stream.Phase),
			slog.String("payload", event.Stream.Name),
			slog.Int("length", event.Stream.Length),
		)
		if event.Stream.Notifications > 0 {
			attrs = append(attrs, slog.Int("notifications", event.Stream.Notifications))
		}
		if event.Stream.Duration > 0 {
			attrs = append(attrs, slog.Duration("duration", event.Stream.Duration))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.ControlMsg != nil:
		attrs = append(attrs, slog.String("ctrl_type", event.ControlMsg.Type.String()))
		if event.ControlMsg.Sequence != 0 {
			attrs = append(attrs, slog.Uint64("seq", uint64(event.ControlMsg.Sequence)))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
		if event.Error.Code != nil {
			attrs = append(attrs, slog.Int("error_code", *event.Error.Code))
		}
	}

	a.logger.LogAttrs(ctx, a.level, "protocol", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
