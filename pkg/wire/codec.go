package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder mode for bridge frames.
// Configured for deterministic encoding with integer keys.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for bridge frames.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Unknown keys are ignored so newer controllers can talk to older bridges.
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// CBOR major types used when peeking at raw frames.
const (
	majorUint  = 0
	majorArray = 4
	majorMap   = 5
	majorOther = 7 // simple values, null included
)

// Marshal encodes a value to CBOR bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes into a value.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// NewEncoder creates a new CBOR encoder that writes to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder creates a new CBOR decoder that reads from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

// EncodeBatch encodes a command batch to CBOR bytes.
func EncodeBatch(b *CommandBatch) ([]byte, error) {
	if b == nil {
		return nil, errors.New("nil batch")
	}
	return Marshal(b)
}

// DecodeBatch decodes CBOR bytes into a command batch.
//
// Empty, truncated or malformed input, trailing bytes after the top-level
// map and values of the wrong type all yield a *DecodeError.
func DecodeBatch(data []byte) (*CommandBatch, error) {
	if err := expectMap(data); err != nil {
		return nil, &DecodeError{What: "batch", Err: err}
	}
	var b CommandBatch
	if err := Unmarshal(data, &b); err != nil {
		return nil, &DecodeError{What: "batch", Err: err}
	}
	return &b, nil
}

// EncodeControlMessage encodes a control message to CBOR bytes.
func EncodeControlMessage(msg *ControlMessage) ([]byte, error) {
	return Marshal(msg)
}

// DecodeControlMessage decodes CBOR bytes into a control message.
func DecodeControlMessage(data []byte) (*ControlMessage, error) {
	if err := expectMap(data); err != nil {
		return nil, &DecodeError{What: "control message", Err: err}
	}
	var msg ControlMessage
	if err := Unmarshal(data, &msg); err != nil {
		return nil, &DecodeError{What: "control message", Err: err}
	}
	return &msg, nil
}

// expectMap checks that data starts with a CBOR map header.
func expectMap(data []byte) error {
	if len(data) == 0 {
		return io.ErrUnexpectedEOF
	}
	if major := data[0] >> 5; major != majorMap {
		return fmt.Errorf("expected map, got major type %d", major)
	}
	return nil
}

// MessageType represents the type of a decoded message.
type MessageType int

const (
	MessageTypeUnknown MessageType = iota
	MessageTypeBatch
	MessageTypeControl
)

// String returns the message type name.
func (t MessageType) String() string {
	switch t {
	case MessageTypeBatch:
		return "batch"
	case MessageTypeControl:
		return "control"
	default:
		return "unknown"
	}
}

// PeekMessageType examines CBOR data to determine the message type
// without fully decoding it.
//
// Message type detection logic:
//   - Control: key 1 holds an unsigned integer (the control type)
//   - Batch: key 1 holds an array or null, or is absent (empty batch)
func PeekMessageType(data []byte) (MessageType, error) {
	if err := expectMap(data); err != nil {
		return MessageTypeUnknown, &DecodeError{What: "message", Err: err}
	}
	var peek struct {
		Field1 cbor.RawMessage `cbor:"1,keyasint"`
	}
	if err := Unmarshal(data, &peek); err != nil {
		return MessageTypeUnknown, &DecodeError{What: "message", Err: err}
	}
	if len(peek.Field1) == 0 {
		return MessageTypeBatch, nil
	}

	switch peek.Field1[0] >> 5 {
	case majorUint:
		return MessageTypeControl, nil
	case majorArray, majorOther:
		return MessageTypeBatch, nil
	default:
		return MessageTypeUnknown, nil
	}
}

// Equal compares two values by their CBOR encoding.
func Equal(a, b any) bool {
	dataA, errA := Marshal(a)
	dataB, errB := Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(dataA, dataB)
}
