package executor

import (
	"errors"
	"fmt"

	"github.com/peripheral-bridge/bridge-go/pkg/wire"
)

// Sentinel errors matched with errors.Is.
var (
	ErrUnknownOperation = errors.New("unknown operation")
	ErrBus              = errors.New("bus transaction failed")
)

// ProtocolKind classifies protocol violations.
type ProtocolKind uint8

const (
	// UnknownOperation is an operation code outside the known set.
	UnknownOperation ProtocolKind = iota + 1
)

// String returns the kind name.
func (k ProtocolKind) String() string {
	switch k {
	case UnknownOperation:
		return "UnknownOperation"
	default:
		return "Unknown"
	}
}

// ProtocolError reports an operation the bridge refuses to execute.
type ProtocolError struct {
	Kind      ProtocolKind
	Operation wire.Operation
	Address   uint32
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s: code %d (address 0x%02x)", e.Kind, uint32(e.Operation), e.Address)
}

// Is reports whether target names the same violation.
func (e *ProtocolError) Is(target error) bool {
	return e.Kind == UnknownOperation && target == ErrUnknownOperation
}

// BusError reports a failed bus transaction.
type BusError struct {
	Operation wire.Operation
	Address   uint32
	Err       error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("bus error: %s at 0x%02x: %v", e.Operation, e.Address, e.Err)
}

func (e *BusError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrBus.
func (e *BusError) Is(target error) bool {
	return target == ErrBus
}

// OpError locates a failure inside a batch.
type OpError struct {
	Envelope  int
	Operation int
	Err       error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("envelope %d operation %d: %v", e.Envelope, e.Operation, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}
