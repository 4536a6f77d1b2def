package wire

import (
	"errors"
	"fmt"
)

// ErrDecode is matched by every error returned from a Decode function.
var ErrDecode = errors.New("decode error")

// DecodeError reports a frame that could not be decoded.
type DecodeError struct {
	What string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("failed to decode %s", e.What)
	}
	return fmt.Sprintf("failed to decode %s: %v", e.What, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrDecode.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}
