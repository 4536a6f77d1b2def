package log

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/peripheral-bridge/bridge-go/pkg/wire"
)

func sampleBatch() *wire.CommandBatch {
	return &wire.CommandBatch{Envelopes: []wire.CommandEnvelope{{
		Transport: wire.TransportWebSocket,
		Bus:       wire.BusSPI,
		Operations: []wire.BusOperation{
			{Operation: wire.OpRead, Address: 0x0F, Data: []byte{0}},
			{Operation: wire.OpWrite, Address: 0x20, Data: []byte{0x47}},
		},
	}}}
}

func TestEventRoundTrip(t *testing.T) {
	pt := 3 * time.Millisecond
	events := []Event{
		{
			Timestamp:    time.Date(2026, 1, 2, 3, 4, 5, 123456789, time.UTC),
			ConnectionID: "conn-1",
			Direction:    DirectionIn,
			Layer:        LayerWire,
			Category:     CategoryMessage,
			LocalRole:    RoleBridge,
			BridgeID:     "bench",
			Message: &MessageEvent{
				Type:           MessageTypeBatch,
				Envelopes:      1,
				Operations:     2,
				Batch:          sampleBatch(),
				ProcessingTime: &pt,
			},
		},
		{
			Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			Layer:     LayerBus,
			Category:  CategoryMessage,
			Bus: &BusEvent{
				Bus:       wire.BusSPI,
				Operation: wire.OpRead,
				Address:   0x0F,
				Envelope:  0,
				Index:     1,
				TxLen:     2,
				RxData:    []byte{0x33},
				Delay:     time.Millisecond,
			},
		},
		{
			Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			Direction: DirectionOut,
			Layer:     LayerStream,
			Category:  CategoryMessage,
			Channel:   1,
			Stream: &StreamEvent{
				Phase:         StreamPhaseDone,
				Name:          "phyphox",
				Length:        45,
				Checksum:      0xDEADBEEF,
				Notifications: 4,
				Duration:      20 * time.Millisecond,
			},
		},
	}

	for _, ev := range events {
		data, err := EncodeEvent(ev)
		if err != nil {
			t.Fatalf("EncodeEvent failed: %v", err)
		}
		decoded, err := DecodeEvent(data)
		if err != nil {
			t.Fatalf("DecodeEvent failed: %v", err)
		}
		if !decoded.Timestamp.Equal(ev.Timestamp) {
			t.Errorf("Timestamp: got %v, want %v", decoded.Timestamp, ev.Timestamp)
		}
		if decoded.Layer != ev.Layer || decoded.Channel != ev.Channel || decoded.BridgeID != ev.BridgeID {
			t.Errorf("header mismatch: got %+v, want %+v", decoded, ev)
		}
		switch {
		case ev.Message != nil:
			if decoded.Message == nil || decoded.Message.Batch == nil {
				t.Fatal("Message or Batch is nil")
			}
			if !wire.Equal(decoded.Message.Batch, ev.Message.Batch) {
				t.Errorf("Batch: got %+v, want %+v", decoded.Message.Batch, ev.Message.Batch)
			}
			if *decoded.Message.ProcessingTime != pt {
				t.Errorf("ProcessingTime: got %v, want %v", *decoded.Message.ProcessingTime, pt)
			}
		case ev.Bus != nil:
			if decoded.Bus == nil {
				t.Fatal("Bus is nil")
			}
			if !bytes.Equal(decoded.Bus.RxData, ev.Bus.RxData) || decoded.Bus.Delay != ev.Bus.Delay {
				t.Errorf("Bus: got %+v, want %+v", decoded.Bus, ev.Bus)
			}
		case ev.Stream != nil:
			if decoded.Stream == nil || *decoded.Stream != *ev.Stream {
				t.Errorf("Stream: got %+v, want %+v", decoded.Stream, ev.Stream)
			}
		}
	}
}

func TestEnumStrings(t *testing.T) {
	cases := []struct {
		got, want string
	}{
		{DirectionOut.String(), "OUT"},
		{LayerBus.String(), "BUS"},
		{LayerStream.String(), "STREAM"},
		{CategoryControl.String(), "CONTROL"},
		{RoleConsumer.String(), "CONSUMER"},
		{MessageTypeResponse.String(), "RESPONSE"},
		{StateEntityLink.String(), "LINK"},
		{ControlMsgUnsubscribe.String(), "UNSUBSCRIBE"},
		{Layer(99).String(), "UNKNOWN"},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("got %q, want %q", c.got, c.want)
		}
	}
}

func TestControlMsgTypeFor(t *testing.T) {
	got, ok := ControlMsgTypeFor(wire.ControlSubscribe)
	if !ok || got != ControlMsgSubscribe {
		t.Errorf("ControlMsgTypeFor(subscribe) = %v, %v", got, ok)
	}
	if _, ok := ControlMsgTypeFor(wire.ControlMessageType(42)); ok {
		t.Error("expected unknown control type to be rejected")
	}
}

func TestNewMessageEvent(t *testing.T) {
	me := NewMessageEvent(MessageTypeBatch, sampleBatch())
	if me.Envelopes != 1 || me.Operations != 2 {
		t.Errorf("got %d envelopes / %d operations, want 1 / 2", me.Envelopes, me.Operations)
	}
}

func TestFileLoggerAndReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.pblog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	base := time.Now()
	for i := 0; i < 4; i++ {
		logger.Log(Event{
			Timestamp:    base.Add(time.Duration(i) * time.Second),
			ConnectionID: "conn-a",
			Layer:        LayerStream,
			Channel:      uint8(i%2 + 1),
			Stream:       &StreamEvent{Phase: StreamPhaseStart},
		})
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Closed loggers drop silently.
	logger.Log(Event{ConnectionID: "late"})
	if err := logger.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	ch := uint8(2)
	r, err := NewFilteredReader(path, Filter{Channel: &ch})
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer r.Close()

	var n int
	for {
		ev, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if ev.Channel != 2 {
			t.Errorf("Channel: got %d, want 2", ev.Channel)
		}
		n++
	}
	if n != 2 {
		t.Errorf("got %d events, want 2", n)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("log file missing: %v", err)
	}
}

func TestFileLoggerConcurrent(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex
	logger := NewStreamLogger(nopCloser{w: &lockedWriter{mu: &mu, w: &buf}})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				logger.Log(Event{ConnectionID: "c", Frame: &FrameEvent{Size: j}})
			}
		}()
	}
	wg.Wait()
	logger.Close()

	r := NewStreamReader(&buf, Filter{})
	var n int
	for {
		if _, err := r.Next(); err != nil {
			if err != io.EOF {
				t.Fatalf("Next failed: %v", err)
			}
			break
		}
		n++
	}
	if n != 200 {
		t.Errorf("got %d events, want 200", n)
	}
	if logger.Dropped() != 0 {
		t.Errorf("Dropped: got %d, want 0", logger.Dropped())
	}
}

func TestFilterMatches(t *testing.T) {
	in := DirectionIn
	bus := LayerBus
	start := time.Unix(100, 0)
	end := time.Unix(200, 0)
	f := Filter{
		BridgeID:  "b1",
		Direction: &in,
		Layer:     &bus,
		TimeStart: &start,
		TimeEnd:   &end,
	}

	ok := Event{BridgeID: "b1", Direction: DirectionIn, Layer: LayerBus, Timestamp: time.Unix(150, 0)}
	if !f.Matches(ok) {
		t.Error("expected event to match")
	}

	wrongBridge := ok
	wrongBridge.BridgeID = "b2"
	tooLate := ok
	tooLate.Timestamp = end
	wrongLayer := ok
	wrongLayer.Layer = LayerWire
	for _, ev := range []Event{wrongBridge, tooLate, wrongLayer} {
		if f.Matches(ev) {
			t.Errorf("unexpected match: %+v", ev)
		}
	}
}

func TestSlogAdapterLogsBusEvent(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	adapter := NewSlogAdapter(slog.New(handler))

	adapter.Log(Event{
		ConnectionID: "conn-123",
		Direction:    DirectionIn,
		Layer:        LayerBus,
		Category:     CategoryMessage,
		BridgeID:     "bench",
		Bus: &BusEvent{
			Bus:       wire.BusSPI,
			Operation: wire.OpRead,
			Address:   0x0F,
			TxLen:     2,
			RxData:    []byte{0x33},
		},
	})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	want := map[string]any{
		"conn_id":   "conn-123",
		"layer":     "BUS",
		"bridge_id": "bench",
		"bus":       "SPI",
		"operation": "Read",
		"address":   float64(15),
		"rx":        "33",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s: got %v, want %v", k, entry[k], v)
		}
	}
}

func TestSlogAdapterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	adapter := NewSlogAdapter(slog.New(handler))

	adapter.Log(Event{ConnectionID: "quiet"})
	if buf.Len() != 0 {
		t.Errorf("debug event leaked at info level: %s", buf.String())
	}

	adapter.WithLevel(slog.LevelInfo).Log(Event{
		ConnectionID: "loud",
		Stream:       &StreamEvent{Phase: StreamPhaseAborted, Name: "phyphox"},
	})
	if buf.Len() == 0 {
		t.Error("expected output at info level")
	}
}

func TestMultiLogger(t *testing.T) {
	a, b := &captureLogger{}, &captureLogger{}
	m := NewMultiLogger(a, nil, b)
	if m.Len() != 2 {
		t.Errorf("Len: got %d, want 2", m.Len())
	}
	m.Log(Event{ConnectionID: "x"})
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("events not fanned out: %d, %d", len(a.events), len(b.events))
	}
}

func TestOrNoopAndStamp(t *testing.T) {
	if _, ok := OrNoop(nil).(NoopLogger); !ok {
		t.Error("OrNoop(nil) should return NoopLogger")
	}
	c := &captureLogger{}
	if OrNoop(c) != Logger(c) {
		t.Error("OrNoop should pass through non-nil loggers")
	}
	if Stamp(Event{}).Timestamp.IsZero() {
		t.Error("Stamp should set a timestamp")
	}
	fixed := time.Unix(5, 0)
	if got := Stamp(Event{Timestamp: fixed}).Timestamp; !got.Equal(fixed) {
		t.Errorf("Stamp overwrote timestamp: %v", got)
	}
}

type captureLogger struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureLogger) Log(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

type nopCloser struct{ w io.Writer }

func (n nopCloser) Write(p []byte) (int, error) { return n.w.Write(p) }
func (nopCloser) Close() error                  { return nil }
