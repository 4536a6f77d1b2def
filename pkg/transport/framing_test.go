package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/peripheral-bridge/bridge-go/pkg/log"
)

func TestFrameWriterReader(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"single byte", []byte{0x42}},
		{"small batch", []byte{0xA1, 0x01, 0x80}},
		{"notification", bytes.Repeat([]byte{0x55}, 21)},
		{"large", bytes.Repeat([]byte{0xAB}, 60000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewFrameWriter(&buf).WriteFrame(tt.data); err != nil {
				t.Fatalf("WriteFrame failed: %v", err)
			}
			if buf.Len() != FrameSize(len(tt.data)) {
				t.Errorf("frame size: got %d, want %d", buf.Len(), FrameSize(len(tt.data)))
			}
			if got := binary.BigEndian.Uint32(buf.Bytes()[:4]); got != uint32(len(tt.data)) {
				t.Errorf("length prefix: got %d, want %d", got, len(tt.data))
			}

			got, err := NewFrameReader(&buf).ReadFrame()
			if err != nil {
				t.Fatalf("ReadFrame failed: %v", err)
			}
			if !bytes.Equal(got, tt.data) {
				t.Error("payload mismatch")
			}
		})
	}
}

func TestFrameWriterErrors(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriterWithMaxSize(&buf, 8)

	if err := fw.WriteFrame(nil); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("empty: got %v, want ErrMessageEmpty", err)
	}
	if err := fw.WriteFrame(make([]byte, 9)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("too large: got %v, want ErrMessageTooLarge", err)
	}
	if buf.Len() != 0 {
		t.Errorf("rejected frames wrote %d bytes", buf.Len())
	}
}

// countingWriter records each Write call.
type countingWriter struct {
	writes int
	bytes.Buffer
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.writes++
	return w.Buffer.Write(p)
}

func TestFrameWriterSingleWrite(t *testing.T) {
	w := &countingWriter{}
	fw := NewFrameWriter(w)
	for i := 0; i < 3; i++ {
		if err := fw.WriteFrame([]byte{byte(i), 1, 2}); err != nil {
			t.Fatalf("WriteFrame failed: %v", err)
		}
	}
	if w.writes != 3 {
		t.Errorf("writes: got %d, want 3", w.writes)
	}
}

func TestFrameReaderErrors(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		max   uint32
		want  error
	}{
		{"zero length", []byte{0, 0, 0, 0}, 64, ErrMessageEmpty},
		{"too large", []byte{0, 0, 1, 0, 1}, 64, ErrMessageTooLarge},
		{"truncated prefix", []byte{0, 0}, 64, ErrFrameTruncated},
		{"truncated payload", []byte{0, 0, 0, 4, 1, 2}, 64, ErrFrameTruncated},
		{"eof", nil, 64, io.EOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fr := NewFrameReaderWithMaxSize(bytes.NewReader(tt.input), tt.max)
			if _, err := fr.ReadFrame(); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)
	frames := [][]byte{{1}, {2, 2}, {3, 3, 3}}
	for _, f := range frames {
		if err := fw.WriteFrame(f); err != nil {
			t.Fatalf("WriteFrame failed: %v", err)
		}
	}

	fr := NewFrameReader(&buf)
	for i, want := range frames {
		got, err := fr.ReadFrame()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame %d: got %x, want %x", i, got, want)
		}
	}
	if _, err := fr.ReadFrame(); err != io.EOF {
		t.Errorf("expected io.EOF after last frame, got %v", err)
	}
}

type capturingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (l *capturingLogger) Log(event log.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *capturingLogger) Events() []log.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]log.Event(nil), l.events...)
}

func TestFramerLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := &capturingLogger{}

	f := NewFramer(&buf)
	f.SetLogger(logger, "conn-1", log.RoleBridge)

	big := bytes.Repeat([]byte{0xEE}, MaxLogFrameDataSize+10)
	if err := f.WriteFrame(big); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if _, err := f.ReadFrame(); err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}

	events := logger.Events()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	out, in := events[0], events[1]
	if out.Direction != log.DirectionOut || in.Direction != log.DirectionIn {
		t.Errorf("directions: got %v/%v", out.Direction, in.Direction)
	}
	for _, ev := range events {
		if ev.ConnectionID != "conn-1" || ev.LocalRole != log.RoleBridge {
			t.Errorf("event identity: %+v", ev)
		}
		if ev.Frame == nil || !ev.Frame.Truncated || len(ev.Frame.Data) != MaxLogFrameDataSize {
			t.Errorf("frame not truncated: %+v", ev.Frame)
		}
		if ev.Frame.Size != FrameSize(len(big)) {
			t.Errorf("frame size: got %d, want %d", ev.Frame.Size, FrameSize(len(big)))
		}
	}
}

func TestFramerNoLoggerNoPanic(t *testing.T) {
	var buf bytes.Buffer
	f := NewFramer(&buf)
	f.SetLogger(nil, "", log.RoleBridge)
	if err := f.WriteFrame([]byte{1}); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if _, err := f.ReadFrame(); err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
}
