package notify

import (
	"errors"
	"fmt"
)

const (
	// DefaultMTU is the maximum notification payload size.
	DefaultMTU = 20

	// MaxChannelID is the highest usable channel id.
	MaxChannelID = 0x7F
)

// Notification errors.
var (
	ErrNotSubscribed    = errors.New("channel not subscribed")
	ErrPayloadTooLarge  = errors.New("payload exceeds MTU")
	ErrInvalidChannel   = errors.New("invalid channel id")
	ErrDuplicateChannel = errors.New("channel already registered")
	ErrUnknownChannel   = errors.New("unknown channel")
	ErrShortFrame       = errors.New("notification frame too short")
)

// ValidChannelID reports whether id is usable as a channel id.
func ValidChannelID(id uint8) bool {
	return id >= 1 && id <= MaxChannelID
}

// EncodeFrame builds the notification frame for payload on channel id.
func EncodeFrame(id uint8, payload []byte) ([]byte, error) {
	if !ValidChannelID(id) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannel, id)
	}
	frame := make([]byte, 0, 1+len(payload))
	frame = append(frame, id)
	return append(frame, payload...), nil
}

// DecodeFrame splits a notification frame. The payload aliases frame.
func DecodeFrame(frame []byte) (uint8, []byte, error) {
	if len(frame) < 1 {
		return 0, nil, ErrShortFrame
	}
	if !ValidChannelID(frame[0]) {
		return 0, nil, fmt.Errorf("%w: %d", ErrInvalidChannel, frame[0])
	}
	return frame[0], frame[1:], nil
}

// IsNotificationFrame reports whether frame is a notification rather than a
// control message.
func IsNotificationFrame(frame []byte) bool {
	return len(frame) > 0 && ValidChannelID(frame[0])
}
