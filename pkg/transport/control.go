package transport

import (
	"time"

	"github.com/peripheral-bridge/bridge-go/pkg/log"
	"github.com/peripheral-bridge/bridge-go/pkg/wire"
)

// EncodePing encodes a ping control message.
func EncodePing(seq uint32) ([]byte, error) {
	return wire.EncodeControlMessage(&wire.ControlMessage{
		Type:     wire.ControlPing,
		Sequence: seq,
	})
}

// EncodePong encodes a pong control message.
func EncodePong(seq uint32) ([]byte, error) {
	return wire.EncodeControlMessage(&wire.ControlMessage{
		Type:     wire.ControlPong,
		Sequence: seq,
	})
}

// EncodeClose encodes a close control message.
func EncodeClose() ([]byte, error) {
	return wire.EncodeControlMessage(&wire.ControlMessage{
		Type: wire.ControlClose,
	})
}

// EncodeSubscribe encodes a subscribe control message for a channel.
func EncodeSubscribe(channel uint8) ([]byte, error) {
	return wire.EncodeControlMessage(&wire.ControlMessage{
		Type:    wire.ControlSubscribe,
		Channel: channel,
	})
}

// EncodeUnsubscribe encodes an unsubscribe control message for a channel.
func EncodeUnsubscribe(channel uint8) ([]byte, error) {
	return wire.EncodeControlMessage(&wire.ControlMessage{
		Type:    wire.ControlUnsubscribe,
		Channel: channel,
	})
}

// AsControlMessage returns the decoded control message if data is one.
func AsControlMessage(data []byte) (*wire.ControlMessage, bool) {
	msgType, err := wire.PeekMessageType(data)
	if err != nil || msgType != wire.MessageTypeControl {
		return nil, false
	}
	msg, err := wire.DecodeControlMessage(data)
	if err != nil {
		return nil, false
	}
	return msg, true
}

// controlEvent builds a log event for a control message.
func controlEvent(connID, remote string, role log.Role, msg *wire.ControlMessage, direction log.Direction) (log.Event, bool) {
	t, ok := log.ControlMsgTypeFor(msg.Type)
	if !ok {
		return log.Event{}, false
	}
	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     log.CategoryControl,
		LocalRole:    role,
		RemoteAddr:   remote,
		Channel:      msg.Channel,
		ControlMsg: &log.ControlMsgEvent{
			Type:     t,
			Sequence: msg.Sequence,
		},
	}, true
}

// stateEvent builds a log event for a connection state change.
func stateEvent(connID, remote string, role log.Role, oldState, newState, reason string) log.Event {
	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		LocalRole:    role,
		RemoteAddr:   remote,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	}
}
