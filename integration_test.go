package pbridge_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/peripheral-bridge/bridge-go/internal/controller"
	"github.com/peripheral-bridge/bridge-go/internal/script"
	"github.com/peripheral-bridge/bridge-go/pkg/bridge"
	"github.com/peripheral-bridge/bridge-go/pkg/bulk"
	"github.com/peripheral-bridge/bridge-go/pkg/config"
	"github.com/peripheral-bridge/bridge-go/pkg/log"
	"github.com/peripheral-bridge/bridge-go/pkg/notify"
	"github.com/peripheral-bridge/bridge-go/pkg/wire"
)

// bench is a controller with one bridge dialled into it.
type bench struct {
	ctrl *controller.Controller
	svc  *bridge.Service
	done chan error
}

func startBench(t *testing.T, ctx context.Context, opts bridge.Options) *bench {
	t.Helper()

	ctrl, err := controller.New(controller.Config{
		Address:         "127.0.0.1:0",
		ResponseTimeout: 2 * time.Second,
		ProtocolLogger:  opts.ProtocolLogger,
	})
	if err != nil {
		t.Fatalf("Failed to create controller: %v", err)
	}
	if err := ctrl.Start(ctx); err != nil {
		t.Fatalf("Failed to start controller: %v", err)
	}
	t.Cleanup(func() { ctrl.Stop() })

	cfg := config.Default()
	cfg.Controller.Address = ctrl.Addr().String()
	cfg.Controller.Backoff.Initial = 10 * time.Millisecond
	cfg.Controller.Backoff.Max = 50 * time.Millisecond
	cfg.Notify.Listen = "127.0.0.1:0"
	cfg.Discovery.Enabled = false

	svc, err := bridge.NewService(cfg, opts)
	if err != nil {
		t.Fatalf("Failed to create bridge: %v", err)
	}

	b := &bench{ctrl: ctrl, svc: svc, done: make(chan error, 1)}
	go func() { b.done <- svc.Run(ctx) }()

	select {
	case <-svc.Ready():
	case err := <-b.done:
		t.Fatalf("Bridge stopped early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Bridge not ready")
	}

	linkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := ctrl.WaitLink(linkCtx); err != nil {
		t.Fatalf("Bridge did not connect: %v", err)
	}
	return b
}

func (b *bench) stop(t *testing.T, cancel context.CancelFunc) {
	t.Helper()
	cancel()
	select {
	case err := <-b.done:
		if err != nil {
			t.Errorf("Bridge stopped with error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Bridge did not stop")
	}
}

func noSleep(time.Duration) {}

// TestE2E_ReadScenario sends a read of two bytes from register 0x10 and
// expects the peripheral's answer as a single response operation.
func TestE2E_ReadScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	b := startBench(t, ctx, bridge.Options{Sleep: noSleep})
	b.svc.Sim().Load(0x10, []byte{0x42, 0x43})

	responses, err := b.ctrl.Exchange(ctx, &wire.CommandBatch{Envelopes: []wire.CommandEnvelope{{
		Transport: wire.TransportWebSocket,
		Bus:       wire.BusSPI,
		Operations: []wire.BusOperation{
			{Operation: wire.OpRead, Address: 0x10, Data: []byte{0, 0}},
		},
	}}})
	if err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}
	if len(responses) != 1 {
		t.Fatalf("Expected 1 response, got %d", len(responses))
	}

	r := responses[0]
	if r.Transport != wire.TransportWebSocket || r.Bus != wire.BusSPI {
		t.Errorf("Response tagged %s/%s, want WEBSOCKET/SPI", r.Transport, r.Bus)
	}
	if r.Op.Operation != wire.OpAck {
		t.Errorf("Response operation %s, want Ack", r.Op.Operation)
	}
	if r.Op.Address != 0x10 {
		t.Errorf("Response address 0x%02x, want 0x10", r.Op.Address)
	}
	if !bytes.Equal(r.Op.Data, []byte{0x42, 0x43}) {
		t.Errorf("Response data %x, want 4243", r.Op.Data)
	}

	b.stop(t, cancel)

	st := b.svc.Stats()
	if st.Batches != 1 || st.Responses != 1 {
		t.Errorf("Stats batches=%d responses=%d, want 1/1", st.Batches, st.Responses)
	}
}

// TestE2E_Script drives a write-then-read script over the link and
// checks the peripheral's register file afterwards.
func TestE2E_Script(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	b := startBench(t, ctx, bridge.Options{Sleep: noSleep})
	b.svc.Sim().Load(0x10, []byte{0x42, 0x43})

	s, err := script.Parse([]byte(`
name: register round trip
steps:
  - name: read id
    ops:
      - {op: read, address: 0x10, length: 2}
    expect: ["4243"]
  - name: configure
    ops:
      - {op: write, address: 0x20, data: "a1b2c3", delay: 1ms}
      - {op: transfer, address: 0x30, data: "ff"}
  - name: read back
    ops:
      - {op: read, address: 0x20, length: 3}
      - {op: ack, address: 0x00}
      - {op: read, address: 0x30, length: 1}
    expect: ["a1b2c3", "ff"]
`))
	if err != nil {
		t.Fatalf("Failed to parse script: %v", err)
	}

	result := script.NewRunner(b.ctrl, script.RunnerConfig{StopOnFailure: true}).Run(ctx, s)
	for _, sr := range result.Steps {
		if !sr.Passed {
			t.Errorf("Step %d failed: err=%v mismatches=%v", sr.Index+1, sr.Error, sr.Mismatches)
		}
	}
	if !result.Passed || result.PassCount != 3 {
		t.Fatalf("Script passed=%v (%d of %d steps)", result.Passed, result.PassCount, len(result.Steps))
	}

	if got := b.svc.Sim().Registers(0x20, 3); !bytes.Equal(got, []byte{0xa1, 0xb2, 0xc3}) {
		t.Errorf("Register 0x20 = %x, want a1b2c3", got)
	}

	b.stop(t, cancel)
}

// TestE2E_PayloadFetch reassembles the bulk payload from the notification
// endpoint and verifies it against the one the bridge serves.
func TestE2E_PayloadFetch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	data := make([]byte, 45)
	for i := range data {
		data[i] = byte(i * 7)
	}
	payload, err := bulk.NewPayload("cfg", data)
	if err != nil {
		t.Fatalf("Failed to create payload: %v", err)
	}

	b := startBench(t, ctx, bridge.Options{Sleep: noSleep, Payload: payload})

	consumer, err := notify.Dial(ctx, b.svc.NotifyAddr().String(), nil)
	if err != nil {
		t.Fatalf("Failed to dial notification endpoint: %v", err)
	}
	defer consumer.Close()

	got, err := consumer.Fetch(ctx, bridge.BulkChannel)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got.Name != "cfg" {
		t.Errorf("Payload name %q, want cfg", got.Name)
	}
	if !bytes.Equal(got.Data, data) {
		t.Errorf("Payload data mismatch: got %d bytes", len(got.Data))
	}
	if got.Checksum != payload.Checksum {
		t.Errorf("Checksum %08x, want %08x", got.Checksum, payload.Checksum)
	}

	b.stop(t, cancel)

	// Header plus ceil(45/20) chunks.
	if sent := b.svc.Stats().BulkSent; sent != 4 {
		t.Errorf("Bulk notifications sent = %d, want 4", sent)
	}
}

// TestE2E_ProtocolLog records a session to a file and reads the bus
// trace back.
func TestE2E_ProtocolLog(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	path := filepath.Join(t.TempDir(), "session.pblog")
	file, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("Failed to create log: %v", err)
	}

	b := startBench(t, ctx, bridge.Options{Sleep: noSleep, ProtocolLogger: file})
	b.svc.Sim().Load(0x10, []byte{0x42, 0x43})

	_, err = b.ctrl.Exchange(ctx, &wire.CommandBatch{Envelopes: []wire.CommandEnvelope{{
		Transport: wire.TransportWebSocket,
		Bus:       wire.BusSPI,
		Operations: []wire.BusOperation{
			{Operation: wire.OpWrite, Address: 0x20, Data: []byte{0x01}},
			{Operation: wire.OpRead, Address: 0x10, Data: []byte{0, 0}},
		},
	}}})
	if err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}

	b.stop(t, cancel)
	b.ctrl.Stop()
	file.Close()

	layer := log.LayerBus
	reader, err := log.NewFilteredReader(path, log.Filter{Layer: &layer})
	if err != nil {
		t.Fatalf("Failed to open log: %v", err)
	}
	defer reader.Close()

	var ops []wire.Operation
	for {
		ev, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Failed to read log: %v", err)
		}
		if ev.Bus == nil {
			t.Fatalf("Bus-layer event without bus details: %+v", ev)
		}
		ops = append(ops, ev.Bus.Operation)
		if ev.Bus.Operation == wire.OpRead && !bytes.Equal(ev.Bus.RxData, []byte{0x42, 0x43}) {
			t.Errorf("Read rx = %x, want 4243", ev.Bus.RxData)
		}
	}

	if len(ops) != 2 || ops[0] != wire.OpWrite || ops[1] != wire.OpRead {
		t.Errorf("Bus trace = %v, want [Write Read]", ops)
	}
}
