package bulk

import "fmt"

// maxPrealloc bounds the buffer reserved from an announced length.
const maxPrealloc = 1 << 20

// Assembler rebuilds a payload from the notifications of one pass.
type Assembler struct {
	header *Header
	data   []byte
}

// NewAssembler creates an Assembler waiting for a header.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Add consumes one notification. It reports true once the announced
// length has been received; the payload checksum is verified then.
func (a *Assembler) Add(notification []byte) (bool, error) {
	if a.header == nil {
		h, err := ParseHeader(notification)
		if err != nil {
			return false, err
		}
		a.header = &h
		a.data = make([]byte, 0, int(min(h.Length, maxPrealloc)))
		return a.complete()
	}

	if uint64(len(a.data)+len(notification)) > a.header.Length {
		return false, fmt.Errorf("%w: %d > %d", ErrOverrun, len(a.data)+len(notification), a.header.Length)
	}
	a.data = append(a.data, notification...)
	return a.complete()
}

func (a *Assembler) complete() (bool, error) {
	if uint64(len(a.data)) < a.header.Length {
		return false, nil
	}
	if sum := Checksum(a.data); sum != a.header.Checksum {
		return true, fmt.Errorf("%w: got %08x, header %08x", ErrChecksumMismatch, sum, a.header.Checksum)
	}
	return true, nil
}

// Header returns the received header, or nil before the first notification.
func (a *Assembler) Header() *Header {
	return a.header
}

// Received returns the number of payload bytes received so far.
func (a *Assembler) Received() int {
	return len(a.data)
}

// Payload returns the reassembled payload.
func (a *Assembler) Payload() *Payload {
	if a.header == nil {
		return nil
	}
	return &Payload{
		Name:     a.header.NameString(),
		Data:     a.data,
		Checksum: Checksum(a.data),
	}
}

// Reset discards all state so a new pass can be received.
func (a *Assembler) Reset() {
	a.header = nil
	a.data = nil
}
