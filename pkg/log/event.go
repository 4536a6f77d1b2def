package log

import (
	"time"

	"github.com/peripheral-bridge/bridge-go/pkg/wire"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// LocalRole identifies the endpoint that captured the event.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// BridgeID names the bridge instance.
	BridgeID string `cbor:"8,keyasint,omitempty"`

	// Channel is the notification channel, when the event concerns one.
	Channel uint8 `cbor:"9,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"` // Wire layer (decoded)
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Connection/link/gate state
	ControlMsg  *ControlMsgEvent  `cbor:"13,keyasint,omitempty"` // Ping/pong/close/subscribe
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
	Bus         *BusEvent         `cbor:"15,keyasint,omitempty"` // Bus transactions
	Stream      *StreamEvent      `cbor:"16,keyasint,omitempty"` // Bulk transfer passes
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the message encoding layer (decoded CBOR).
	LayerWire Layer = 1
	// LayerBus is the hardware bus layer.
	LayerBus Layer = 2
	// LayerStream is the notification streaming layer.
	LayerStream Layer = 3
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerBus:
		return "BUS"
	case LayerStream:
		return "STREAM"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a protocol message (batch, response, notification).
	CategoryMessage Category = 0
	// CategoryControl indicates a control message.
	CategoryControl Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role identifies the local endpoint.
type Role uint8

const (
	// RoleBridge is the bridge driving the hardware bus.
	RoleBridge Role = 0
	// RoleController submits batches to a bridge.
	RoleController Role = 1
	// RoleConsumer receives notifications from a bridge.
	RoleConsumer Role = 2
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleBridge:
		return "BRIDGE"
	case RoleController:
		return "CONTROLLER"
	case RoleConsumer:
		return "CONSUMER"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes (including length prefix).
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a decoded command batch at the wire layer.
type MessageEvent struct {
	// Type distinguishes batches from responses.
	Type MessageType `cbor:"1,keyasint"`

	// Envelopes is the number of envelopes in the batch.
	Envelopes int `cbor:"2,keyasint"`

	// Operations is the total number of operations in the batch.
	Operations int `cbor:"3,keyasint"`

	// Batch is the decoded batch.
	Batch *wire.CommandBatch `cbor:"4,keyasint,omitempty"`

	// ProcessingTime is the time spent executing a batch.
	// Stored as nanoseconds.
	ProcessingTime *time.Duration `cbor:"5,keyasint,omitempty"`
}

// MessageType distinguishes inbound batches from responses.
type MessageType uint8

const (
	// MessageTypeBatch indicates a command batch from a controller.
	MessageTypeBatch MessageType = 0
	// MessageTypeResponse indicates a response emitted by a bridge.
	MessageTypeResponse MessageType = 1
)

// String returns the message type name.
func (m MessageType) String() string {
	switch m {
	case MessageTypeBatch:
		return "BATCH"
	case MessageTypeResponse:
		return "RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// NewMessageEvent summarizes a batch.
func NewMessageEvent(t MessageType, b *wire.CommandBatch) *MessageEvent {
	return &MessageEvent{
		Type:       t,
		Envelopes:  len(b.Envelopes),
		Operations: b.OperationCount(),
		Batch:      b,
	}
}

// StateChangeEvent captures lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntityLink indicates a change of the bridge's controller link.
	StateEntityLink StateEntity = 1
	// StateEntitySubscription indicates a subscription gate change.
	StateEntitySubscription StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityLink:
		return "LINK"
	case StateEntitySubscription:
		return "SUBSCRIPTION"
	default:
		return "UNKNOWN"
	}
}

// ControlMsgEvent captures transport-level control messages.
type ControlMsgEvent struct {
	// Type of control message.
	Type ControlMsgType `cbor:"1,keyasint"`

	// Sequence is the ping/pong sequence number.
	Sequence uint32 `cbor:"2,keyasint,omitempty"`
}

// ControlMsgType indicates the type of control message.
type ControlMsgType uint8

const (
	// ControlMsgPing indicates a ping message.
	ControlMsgPing ControlMsgType = 0
	// ControlMsgPong indicates a pong message.
	ControlMsgPong ControlMsgType = 1
	// ControlMsgClose indicates a close message.
	ControlMsgClose ControlMsgType = 2
	// ControlMsgSubscribe indicates a subscribe message.
	ControlMsgSubscribe ControlMsgType = 3
	// ControlMsgUnsubscribe indicates an unsubscribe message.
	ControlMsgUnsubscribe ControlMsgType = 4
)

// String returns the control message type name.
func (c ControlMsgType) String() string {
	switch c {
	case ControlMsgPing:
		return "PING"
	case ControlMsgPong:
		return "PONG"
	case ControlMsgClose:
		return "CLOSE"
	case ControlMsgSubscribe:
		return "SUBSCRIBE"
	case ControlMsgUnsubscribe:
		return "UNSUBSCRIBE"
	default:
		return "UNKNOWN"
	}
}

// ControlMsgTypeFor maps a wire control type to its log type.
func ControlMsgTypeFor(t wire.ControlMessageType) (ControlMsgType, bool) {
	switch t {
	case wire.ControlPing:
		return ControlMsgPing, true
	case wire.ControlPong:
		return ControlMsgPong, true
	case wire.ControlClose:
		return ControlMsgClose, true
	case wire.ControlSubscribe:
		return ControlMsgSubscribe, true
	case wire.ControlUnsubscribe:
		return ControlMsgUnsubscribe, true
	default:
		return 0, false
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the error code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}

// BusEvent captures one executed bus operation.
type BusEvent struct {
	// Bus is the bus tag of the envelope.
	Bus wire.BusType `cbor:"1,keyasint"`

	// Operation is the operation code.
	Operation wire.Operation `cbor:"2,keyasint"`

	// Address is the operation address.
	Address uint32 `cbor:"3,keyasint"`

	// Envelope and Index locate the operation inside its batch.
	Envelope int `cbor:"4,keyasint"`
	Index    int `cbor:"5,keyasint"`

	// TxLen is the transaction length in bytes (0 without bus activity).
	TxLen int `cbor:"6,keyasint,omitempty"`

	// RxData holds the bytes returned by a read.
	RxData []byte `cbor:"7,keyasint,omitempty"`

	// Duration is the transaction time.
	Duration time.Duration `cbor:"8,keyasint,omitempty"`

	// Delay is the post-operation delay that followed.
	Delay time.Duration `cbor:"9,keyasint,omitempty"`
}

// StreamEvent captures a bulk transfer pass or sample stream change.
type StreamEvent struct {
	// Phase is START, DONE or ABORTED.
	Phase string `cbor:"1,keyasint"`

	// Name is the payload name.
	Name string `cbor:"2,keyasint,omitempty"`

	// Length is the payload length in bytes.
	Length int `cbor:"3,keyasint,omitempty"`

	// Checksum is the payload CRC-32.
	Checksum uint32 `cbor:"4,keyasint,omitempty"`

	// Notifications is the number of notifications of the pass.
	Notifications int `cbor:"5,keyasint,omitempty"`

	// Duration is the pass duration (DONE and ABORTED only).
	Duration time.Duration `cbor:"6,keyasint,omitempty"`
}

// Stream phases.
const (
	StreamPhaseStart   = "START"
	StreamPhaseDone    = "DONE"
	StreamPhaseAborted = "ABORTED"
)
