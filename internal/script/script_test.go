package script_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/peripheral-bridge/bridge-go/internal/controller"
	"github.com/peripheral-bridge/bridge-go/internal/script"
	"github.com/peripheral-bridge/bridge-go/internal/script/mocks"
	"github.com/peripheral-bridge/bridge-go/pkg/wire"
)

const sensorScript = `
name: sensor check
description: reads the id register and configures the sensor
timeout: 500ms
steps:
  - name: read id
    ops:
      - {op: read, address: 0x10, length: 2}
    expect: ["42 43"]
  - name: configure
    bus: spi
    ops:
      - {op: write, address: 0x20, data: "01", delay: 5ms}
      - {op: transfer, address: 0x30, data: "0xa1b2"}
  - name: two envelopes
    envelopes:
      - bus: SPI
        ops:
          - {op: read, address: 0x11, length: 1}
      - transport: stream
        bus: I2C
        ops:
          - {op: ack, address: 0x00}
    expect: ["*"]
`

func ack(addr uint32, data ...byte) controller.Response {
	return controller.Response{
		Transport: wire.TransportWebSocket,
		Bus:       wire.BusSPI,
		Op:        wire.BusOperation{Operation: wire.OpAck, Address: addr, Data: data},
	}
}

func TestParseScript(t *testing.T) {
	s, err := script.Parse([]byte(sensorScript))
	require.NoError(t, err)

	assert.Equal(t, "sensor check", s.Name)
	assert.Equal(t, 500*time.Millisecond, s.Timeout)
	require.Len(t, s.Steps, 3)

	b, err := s.Steps[0].Batch()
	require.NoError(t, err)
	require.Len(t, b.Envelopes, 1)
	env := b.Envelopes[0]
	assert.Equal(t, wire.TransportWebSocket, env.Transport)
	assert.Equal(t, wire.BusSPI, env.Bus)
	assert.Equal(t, wire.OpRead, env.Operations[0].Operation)
	assert.Equal(t, uint32(0x10), env.Operations[0].Address)
	assert.Len(t, env.Operations[0].Data, 2)

	b, err = s.Steps[1].Batch()
	require.NoError(t, err)
	ops := b.Envelopes[0].Operations
	assert.Equal(t, wire.OpWrite, ops[0].Operation)
	assert.Equal(t, []byte{0x01}, ops[0].Data)
	assert.Equal(t, 5*time.Millisecond, ops[0].Delay())
	assert.Equal(t, wire.OpTransfer, ops[1].Operation)
	assert.Equal(t, []byte{0xa1, 0xb2}, ops[1].Data)

	b, err = s.Steps[2].Batch()
	require.NoError(t, err)
	require.Len(t, b.Envelopes, 2)
	assert.Equal(t, wire.TransportStream, b.Envelopes[1].Transport)
	assert.Equal(t, wire.BusI2C, b.Envelopes[1].Bus)
	assert.Equal(t, 1, controller.ExpectedResponses(b))
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no name", "steps: [{ops: [{op: ack}]}]", "name is required"},
		{"no steps", "name: x", "at least one step"},
		{"empty step", "name: x\nsteps: [{name: a}]", "step 1: step has no operations"},
		{"both forms", "name: x\nsteps: [{ops: [{op: ack}], envelopes: [{ops: [{op: ack}]}]}]", "mutually exclusive"},
		{"unknown op", "name: x\nsteps: [{ops: [{op: poke}]}]", "unknown op"},
		{"read with data", "name: x\nsteps: [{ops: [{op: read, data: '00'}]}]", "takes length"},
		{"bad hex", "name: x\nsteps: [{ops: [{op: write, data: zz}]}]", "op 1"},
		{"unknown bus", "name: x\nsteps: [{bus: CAN, ops: [{op: ack}]}]", "unknown bus"},
		{"bad expect", "name: x\nsteps: [{ops: [{op: ack}], expect: [xyz]}]", "invalid expect"},
		{"malformed", "name: [", "failed to parse YAML"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := script.Parse([]byte(tt.yaml))
			require.Error(t, err)
			var le *script.LoadError
			assert.True(t, errors.As(err, &le))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadReportsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: x\nsteps: [{name: a}]"), 0o600))

	_, err := script.Load(path)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), path+": step 1:"), err.Error())

	_, err = script.Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(sensorScript), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte("name: b\nsteps: [{ops: [{op: ack}]}]"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	scripts, err := script.LoadDirectory(dir)
	require.NoError(t, err)
	require.Len(t, scripts, 2)
	assert.Equal(t, "sensor check", scripts[0].Name)
	assert.Equal(t, "b", scripts[1].Name)
}

func TestParseHex(t *testing.T) {
	for in, want := range map[string][]byte{
		"4243":        {0x42, 0x43},
		"0x4243":      {0x42, 0x43},
		"42 43":       {0x42, 0x43},
		"de:ad_be:ef": {0xde, 0xad, 0xbe, 0xef},
		"":            {},
	} {
		got, err := script.ParseHex(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestCheck(t *testing.T) {
	resps := []controller.Response{ack(0x10, 0x42, 0x43), ack(0x11, 0x07)}

	assert.Empty(t, script.Check(nil, resps))
	assert.Empty(t, script.Check([]string{"4243", "*"}, resps))

	m := script.Check([]string{"4244", "07"}, resps)
	require.Len(t, m, 1)
	assert.Contains(t, m[0], "expected 4244, got 4243")

	m = script.Check([]string{"4243"}, resps)
	require.Len(t, m, 1)
	assert.Contains(t, m[0], "expected 1 responses, got 2")
}

func TestRunnerPassesAndFails(t *testing.T) {
	s, err := script.Parse([]byte(sensorScript))
	require.NoError(t, err)

	ex := mocks.NewMockExchanger(t)
	ex.EXPECT().Exchange(mock.Anything, mock.MatchedBy(func(b *wire.CommandBatch) bool {
		return b.Envelopes[0].Operations[0].Address == 0x10
	})).Return([]controller.Response{ack(0x10, 0x42, 0x43)}, nil).Once()
	ex.EXPECT().Exchange(mock.Anything, mock.MatchedBy(func(b *wire.CommandBatch) bool {
		return b.Envelopes[0].Operations[0].Address == 0x20
	})).Return(nil, nil).Once()
	ex.EXPECT().Exchange(mock.Anything, mock.MatchedBy(func(b *wire.CommandBatch) bool {
		return len(b.Envelopes) == 2
	})).Return(nil, controller.ErrTimeout).Once()

	res := script.NewRunner(ex, script.RunnerConfig{}).Run(context.Background(), s)

	assert.False(t, res.Passed)
	assert.Equal(t, 2, res.PassCount)
	assert.Equal(t, 1, res.FailCount)
	assert.ErrorIs(t, res.Steps[2].Error, controller.ErrTimeout)
}

func TestRunnerStopOnFailure(t *testing.T) {
	s, err := script.Parse([]byte(sensorScript))
	require.NoError(t, err)

	ex := mocks.NewMockExchanger(t)
	ex.EXPECT().Exchange(mock.Anything, mock.Anything).
		Return([]controller.Response{ack(0x10, 0x00, 0x00)}, nil).Once()

	res := script.NewRunner(ex, script.RunnerConfig{StopOnFailure: true}).Run(context.Background(), s)

	assert.False(t, res.Passed)
	assert.Equal(t, 1, res.FailCount)
	assert.Equal(t, 2, res.SkipCount)
	assert.True(t, res.Steps[1].Skipped)
}

func TestRunnerAppliesScriptTimeout(t *testing.T) {
	s, err := script.Parse([]byte(sensorScript))
	require.NoError(t, err)
	s.Steps = s.Steps[:1]

	ex := mocks.NewMockExchanger(t)
	ex.EXPECT().Exchange(mock.Anything, mock.Anything).
		RunAndReturn(func(ctx context.Context, _ *wire.CommandBatch) ([]controller.Response, error) {
			deadline, ok := ctx.Deadline()
			require.True(t, ok)
			assert.LessOrEqual(t, time.Until(deadline), 500*time.Millisecond)
			return []controller.Response{ack(0x10, 0x42, 0x43)}, nil
		}).Once()

	res := script.NewRunner(ex, script.RunnerConfig{Timeout: time.Minute}).Run(context.Background(), s)
	assert.True(t, res.Passed)
}

func TestTextReporter(t *testing.T) {
	s, err := script.Parse([]byte(sensorScript))
	require.NoError(t, err)

	res := &script.Result{
		Script: s,
		Steps: []script.StepResult{
			{Index: 0, Step: &s.Steps[0], Passed: true, Responses: []controller.Response{ack(0x10, 0x42, 0x43)}},
			{Index: 1, Step: &s.Steps[1], Error: controller.ErrLinkLost},
			{Index: 2, Step: &s.Steps[2], Skipped: true},
		},
		PassCount: 1, FailCount: 1, SkipCount: 1,
	}

	var buf bytes.Buffer
	script.NewTextReporter(&buf, true).Report(res)
	out := buf.String()

	assert.Contains(t, out, "=== Script: sensor check ===")
	assert.Contains(t, out, "[PASS] Step 1: read id")
	assert.Contains(t, out, "Ack 0x10 4243")
	assert.Contains(t, out, "[FAIL] Step 2: configure")
	assert.Contains(t, out, "Error: bridge link closed")
	assert.Contains(t, out, "[SKIP] Step 3: two envelopes")
	assert.Contains(t, out, "Skipped: 1")
}

func TestJSONReporter(t *testing.T) {
	s, err := script.Parse([]byte(sensorScript))
	require.NoError(t, err)

	res := &script.Result{
		Script: s,
		Passed: true,
		Steps: []script.StepResult{
			{Index: 0, Step: &s.Steps[0], Passed: true, Responses: []controller.Response{ack(0x10, 0x42, 0x43)}},
		},
	}

	var buf bytes.Buffer
	script.NewJSONReporter(&buf, false).Report(res)

	var jr script.JSONResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &jr))
	assert.True(t, jr.Passed)
	require.Len(t, jr.Steps, 1)
	assert.Equal(t, "PASS", jr.Steps[0].Status)
	assert.Equal(t, []string{"4243"}, jr.Steps[0].Responses)
}
