package executor

import (
	"github.com/peripheral-bridge/bridge-go/pkg/bus"
	"github.com/peripheral-bridge/bridge-go/pkg/wire"
)

// Execute applies op to drv and returns the response to emit, or nil.
//
// The address is truncated to its low byte when it becomes the command
// byte of a transaction.
func Execute(op wire.BusOperation, drv bus.Driver) (*wire.BusOperation, error) {
	switch op.Operation {
	case wire.OpAck:
		return nil, nil

	case wire.OpRead:
		if op.Data == nil {
			return nil, nil
		}
		buf := make([]byte, len(op.Data)+1)
		buf[0] = byte(op.Address) | bus.ReadFlag
		if err := drv.Transfer(buf); err != nil {
			return nil, &BusError{Operation: op.Operation, Address: op.Address, Err: err}
		}
		return &wire.BusOperation{
			Operation: wire.OpAck,
			Address:   op.Address,
			Data:      buf[1:],
		}, nil

	case wire.OpWrite, wire.OpTransfer:
		if op.Data == nil {
			return nil, nil
		}
		buf := make([]byte, 0, len(op.Data)+1)
		buf = append(buf, byte(op.Address))
		buf = append(buf, op.Data...)
		if err := drv.Transfer(buf); err != nil {
			return nil, &BusError{Operation: op.Operation, Address: op.Address, Err: err}
		}
		return nil, nil

	default:
		return nil, &ProtocolError{Kind: UnknownOperation, Operation: op.Operation, Address: op.Address}
	}
}
