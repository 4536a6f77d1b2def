package wire

import "time"

// BusOperation is a single operation applied to a bus.
//
// CBOR encoding:
//
//	{
//	  1: operation,  // uint32
//	  2: address,    // uint32: register or command selector
//	  3: data,       // bstr or null
//	  4: delay_us    // uint64, absent when no delay is requested
//	}
type BusOperation struct {
	Operation Operation `cbor:"1,keyasint"`
	Address   uint32    `cbor:"2,keyasint"`
	Data      []byte    `cbor:"3,keyasint"`
	DelayUS   *uint64   `cbor:"4,keyasint,omitempty"`
}

// Delay returns the post-operation delay, or zero when none is set.
func (op *BusOperation) Delay() time.Duration {
	if op.DelayUS == nil {
		return 0
	}
	return time.Duration(*op.DelayUS) * time.Microsecond
}

// WithDelay returns a copy of the operation with the given post delay.
func (op BusOperation) WithDelay(d time.Duration) BusOperation {
	us := uint64(d / time.Microsecond)
	op.DelayUS = &us
	return op
}

// CommandEnvelope groups the operations destined for one transport/bus pair.
//
// CBOR encoding:
//
//	{
//	  1: transport,   // uint32
//	  2: bus,         // uint32
//	  3: operations   // array of BusOperation
//	}
type CommandEnvelope struct {
	Transport  TransportType  `cbor:"1,keyasint"`
	Bus        BusType        `cbor:"2,keyasint"`
	Operations []BusOperation `cbor:"3,keyasint"`
}

// CommandBatch is the unit exchanged in one frame.
//
// CBOR encoding:
//
//	{
//	  1: envelopes   // array of CommandEnvelope
//	}
type CommandBatch struct {
	Envelopes []CommandEnvelope `cbor:"1,keyasint"`
}

// OperationCount returns the total number of operations in the batch.
func (b *CommandBatch) OperationCount() int {
	n := 0
	for i := range b.Envelopes {
		n += len(b.Envelopes[i].Operations)
	}
	return n
}

// NewResponse wraps a single operation into a batch tagged for the
// response channel.
func NewResponse(transport TransportType, bus BusType, op BusOperation) *CommandBatch {
	return &CommandBatch{
		Envelopes: []CommandEnvelope{{
			Transport:  transport,
			Bus:        bus,
			Operations: []BusOperation{op},
		}},
	}
}

// ControlMessage represents a transport-level control message.
// These are separate from command batches.
type ControlMessage struct {
	Type     ControlMessageType `cbor:"1,keyasint"`
	Sequence uint32             `cbor:"2,keyasint,omitempty"`
	Channel  uint8              `cbor:"3,keyasint,omitempty"`
}

// ControlMessageType represents the type of control message.
type ControlMessageType uint8

const (
	// ControlPing is sent to check connection liveness.
	ControlPing ControlMessageType = 1

	// ControlPong is the response to a ping.
	ControlPong ControlMessageType = 2

	// ControlClose initiates graceful connection close.
	ControlClose ControlMessageType = 3

	// ControlSubscribe enables notifications on a channel.
	ControlSubscribe ControlMessageType = 4

	// ControlUnsubscribe disables notifications on a channel.
	ControlUnsubscribe ControlMessageType = 5
)

// String returns the control message type name.
func (t ControlMessageType) String() string {
	switch t {
	case ControlPing:
		return "ping"
	case ControlPong:
		return "pong"
	case ControlClose:
		return "close"
	case ControlSubscribe:
		return "subscribe"
	case ControlUnsubscribe:
		return "unsubscribe"
	default:
		return "unknown"
	}
}
