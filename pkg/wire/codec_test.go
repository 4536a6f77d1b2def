package wire

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func delayUS(us uint64) *uint64 {
	return &us
}

func TestBatchRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		batch CommandBatch
	}{
		{
			name:  "empty batch",
			batch: CommandBatch{},
		},
		{
			name: "single read",
			batch: CommandBatch{Envelopes: []CommandEnvelope{{
				Transport:  TransportWebSocket,
				Bus:        BusSPI,
				Operations: []BusOperation{{Operation: OpRead, Address: 0x05, Data: []byte{0, 0}}},
			}}},
		},
		{
			name: "absent and empty data",
			batch: CommandBatch{Envelopes: []CommandEnvelope{{
				Operations: []BusOperation{
					{Operation: OpWrite, Address: 1},
					{Operation: OpWrite, Address: 2, Data: []byte{}},
				},
			}}},
		},
		{
			name: "delays",
			batch: CommandBatch{Envelopes: []CommandEnvelope{{
				Transport: TransportStream,
				Bus:       BusSPI,
				Operations: []BusOperation{
					{Operation: OpWrite, Address: 0x20, Data: []byte{0x47}, DelayUS: delayUS(1000)},
					{Operation: OpTransfer, Address: 0x21, Data: []byte{1, 2, 3}, DelayUS: delayUS(0)},
				},
			}}},
		},
		{
			name: "multiple envelopes",
			batch: CommandBatch{Envelopes: []CommandEnvelope{
				{Transport: TransportWebSocket, Bus: BusSPI, Operations: []BusOperation{{Operation: OpAck, Address: 7}}},
				{Transport: TransportWebSocket, Bus: BusI2C, Operations: []BusOperation{}},
				{Transport: TransportNotify, Bus: BusUART},
			}},
		},
		{
			name: "unknown operation code survives",
			batch: CommandBatch{Envelopes: []CommandEnvelope{{
				Operations: []BusOperation{{Operation: Operation(42), Address: 0xFFFFFFFF, Data: []byte{0xFF}}},
			}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeBatch(&tt.batch)
			if err != nil {
				t.Fatalf("EncodeBatch failed: %v", err)
			}

			decoded, err := DecodeBatch(data)
			if err != nil {
				t.Fatalf("DecodeBatch failed: %v", err)
			}

			if !reflect.DeepEqual(*decoded, tt.batch) {
				t.Errorf("round trip mismatch:\n got  %+v\n want %+v", *decoded, tt.batch)
			}
		})
	}
}

func TestDecodeBatchRejectsMalformed(t *testing.T) {
	valid, err := EncodeBatch(&CommandBatch{Envelopes: []CommandEnvelope{{
		Transport:  TransportWebSocket,
		Bus:        BusSPI,
		Operations: []BusOperation{{Operation: OpRead, Address: 5, Data: []byte{0, 0}}},
	}}})
	if err != nil {
		t.Fatalf("EncodeBatch failed: %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"nil", nil},
		{"empty", []byte{}},
		{"not a map", []byte{0x83, 0x01, 0x02, 0x03}},
		{"null", []byte{0xf6}},
		{"truncated header", valid[:1]},
		{"truncated body", valid[:len(valid)-1]},
		{"trailing bytes", append(append([]byte{}, valid...), 0x00)},
		{"wrong envelope type", []byte{0xa1, 0x01, 0x63, 'a', 'b', 'c'}},
		{"negative address", []byte{0xa1, 0x01, 0x81, 0xa1, 0x03, 0x81, 0xa1, 0x02, 0x20}},
		{"garbage", []byte{0xff, 0xff, 0xff}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := DecodeBatch(tt.data)
			if err == nil {
				t.Fatalf("DecodeBatch succeeded, got %+v", b)
			}
			if !errors.Is(err, ErrDecode) {
				t.Errorf("error %v does not match ErrDecode", err)
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Errorf("error %T is not *DecodeError", err)
			}
		})
	}
}

func TestDecodeBatchTruncationNeverPanics(t *testing.T) {
	data, err := EncodeBatch(&CommandBatch{Envelopes: []CommandEnvelope{
		{Transport: TransportWebSocket, Bus: BusSPI, Operations: []BusOperation{
			{Operation: OpWrite, Address: 0x10, Data: []byte{1, 2, 3, 4}, DelayUS: delayUS(500)},
			{Operation: OpRead, Address: 0x11, Data: make([]byte, 6)},
		}},
	}})
	if err != nil {
		t.Fatalf("EncodeBatch failed: %v", err)
	}

	for i := 0; i < len(data); i++ {
		if _, err := DecodeBatch(data[:i]); err == nil {
			t.Errorf("DecodeBatch(data[:%d]) should fail", i)
		}
	}
}

func TestUnknownFieldsIgnored(t *testing.T) {
	msg := map[int]any{
		1: []map[int]any{{
			1:  uint32(TransportWebSocket),
			2:  uint32(BusSPI),
			3:  []map[int]any{{1: uint32(OpWrite), 2: uint32(3), 3: []byte{9}, 99: "future"}},
			42: true,
		}},
		99: "future field",
	}

	data, err := Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	decoded, err := DecodeBatch(data)
	if err != nil {
		t.Fatalf("DecodeBatch should succeed with unknown fields: %v", err)
	}
	if decoded.OperationCount() != 1 {
		t.Fatalf("OperationCount: got %d, want 1", decoded.OperationCount())
	}
	op := decoded.Envelopes[0].Operations[0]
	if op.Operation != OpWrite || op.Address != 3 || !reflect.DeepEqual(op.Data, []byte{9}) {
		t.Errorf("unexpected operation %+v", op)
	}
}

func TestControlMessageRoundTrip(t *testing.T) {
	tests := []ControlMessage{
		{Type: ControlPing, Sequence: 1},
		{Type: ControlPong, Sequence: 1},
		{Type: ControlClose},
		{Type: ControlSubscribe, Channel: 1},
		{Type: ControlUnsubscribe, Channel: 2},
	}

	for _, msg := range tests {
		t.Run(msg.Type.String(), func(t *testing.T) {
			data, err := EncodeControlMessage(&msg)
			if err != nil {
				t.Fatalf("EncodeControlMessage failed: %v", err)
			}
			decoded, err := DecodeControlMessage(data)
			if err != nil {
				t.Fatalf("DecodeControlMessage failed: %v", err)
			}
			if *decoded != msg {
				t.Errorf("got %+v, want %+v", *decoded, msg)
			}
		})
	}
}

func TestPeekMessageType(t *testing.T) {
	batch, _ := EncodeBatch(&CommandBatch{Envelopes: []CommandEnvelope{{Bus: BusSPI}}})
	emptyBatch, _ := EncodeBatch(&CommandBatch{})
	ping, _ := EncodeControlMessage(&ControlMessage{Type: ControlPing, Sequence: 9})
	sub, _ := EncodeControlMessage(&ControlMessage{Type: ControlSubscribe, Channel: 1})

	tests := []struct {
		name    string
		data    []byte
		want    MessageType
		wantErr bool
	}{
		{"batch", batch, MessageTypeBatch, false},
		{"empty batch", emptyBatch, MessageTypeBatch, false},
		{"empty map", []byte{0xa0}, MessageTypeBatch, false},
		{"ping", ping, MessageTypeControl, false},
		{"subscribe", sub, MessageTypeControl, false},
		{"text key 1", []byte{0xa1, 0x01, 0x61, 'x'}, MessageTypeUnknown, false},
		{"empty", nil, MessageTypeUnknown, true},
		{"array", []byte{0x80}, MessageTypeUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PeekMessageType(tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("PeekMessageType error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("PeekMessageType = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCBORCompactness(t *testing.T) {
	b := NewResponse(TransportWebSocket, BusSPI, BusOperation{Operation: OpAck, Address: 5, Data: []byte{0x42, 0x43}})
	data, err := EncodeBatch(b)
	if err != nil {
		t.Fatalf("EncodeBatch failed: %v", err)
	}

	// {1:[{1:1,2:1,3:[{1:0,2:5,3:h'4243'}]}]}
	if len(data) > 20 {
		t.Errorf("CBOR encoding too large: %d bytes (expected <= 20)", len(data))
	}
}

func TestBusOperationDelay(t *testing.T) {
	op := BusOperation{Operation: OpWrite}
	if op.Delay() != 0 {
		t.Errorf("Delay without DelayUS: got %v, want 0", op.Delay())
	}

	op = op.WithDelay(1500 * time.Microsecond)
	if op.DelayUS == nil || *op.DelayUS != 1500 {
		t.Fatalf("WithDelay: DelayUS = %v", op.DelayUS)
	}
	if op.Delay() != 1500*time.Microsecond {
		t.Errorf("Delay: got %v, want 1.5ms", op.Delay())
	}
}

func TestEqual(t *testing.T) {
	a := BusOperation{Operation: OpRead, Address: 1, Data: []byte{0}}
	b := BusOperation{Operation: OpRead, Address: 1, Data: []byte{0}}
	c := BusOperation{Operation: OpRead, Address: 2, Data: []byte{0}}

	if !Equal(a, b) {
		t.Errorf("Equal(a, b) should be true")
	}
	if Equal(a, c) {
		t.Errorf("Equal(a, c) should be false")
	}
}
