package wire

// Operation is the code of a single bus operation.
//
// Codes outside the known range still decode; rejecting them is the
// executor's job.
type Operation uint32

const (
	// OpAck acknowledges a previous operation. Bridges send Ack carrying
	// the bytes clocked in by a Read.
	OpAck Operation = 0

	// OpRead clocks in len(Data) bytes from the register at Address.
	OpRead Operation = 1

	// OpWrite clocks Data out to the register at Address.
	OpWrite Operation = 2

	// OpTransfer clocks Data out after the Address command byte and
	// discards whatever the peripheral returns.
	OpTransfer Operation = 3
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpAck:
		return "Ack"
	case OpRead:
		return "Read"
	case OpWrite:
		return "Write"
	case OpTransfer:
		return "Transfer"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the operation code is known.
func (o Operation) IsValid() bool {
	return o <= OpTransfer
}
