package bulk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
)

// Wire layout constants.
const (
	NameSize   = 7
	HeaderSize = NameSize + 8 + 4

	// DefaultChunkSize matches the notification payload limit.
	DefaultChunkSize = 20
)

// Errors returned by this package.
var (
	ErrNameTooLong      = errors.New("payload name longer than 7 bytes")
	ErrNameNotASCII     = errors.New("payload name is not printable ASCII")
	ErrShortHeader      = errors.New("header shorter than 19 bytes")
	ErrChecksumMismatch = errors.New("payload checksum mismatch")
	ErrOverrun          = errors.New("received more bytes than announced")
)

// Payload is an immutable named blob with its checksum.
// Streams reference Data directly and never copy it.
type Payload struct {
	Name     string
	Data     []byte
	Checksum uint32
}

// NewPayload validates name and computes the checksum of data.
func NewPayload(name string, data []byte) (*Payload, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return &Payload{
		Name:     name,
		Data:     data,
		Checksum: Checksum(data),
	}, nil
}

// LoadPayload reads a payload from a file.
func LoadPayload(name, path string) (*Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return NewPayload(name, data)
}

// Checksum returns the CRC-32 (IEEE, seed 0) of data.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// Len returns the payload length in bytes.
func (p *Payload) Len() int {
	return len(p.Data)
}

// Header returns the transfer header announcing p.
func (p *Payload) Header() Header {
	h := Header{
		Length:   uint64(len(p.Data)),
		Checksum: p.Checksum,
	}
	copy(h.Name[:], p.Name)
	return h
}

// ValidateName checks that name fits the header name field.
func ValidateName(name string) error {
	if len(name) > NameSize {
		return fmt.Errorf("%w: %q", ErrNameTooLong, name)
	}
	for i := 0; i < len(name); i++ {
		if name[i] < 0x20 || name[i] > 0x7E {
			return fmt.Errorf("%w: %q", ErrNameNotASCII, name)
		}
	}
	return nil
}

// Header announces a payload at the start of a pass.
type Header struct {
	Name     [NameSize]byte
	Length   uint64
	Checksum uint32
}

// NameString returns the name without its zero padding.
func (h Header) NameString() string {
	n := 0
	for n < NameSize && h.Name[n] != 0 {
		n++
	}
	return string(h.Name[:n])
}

// MarshalBinary encodes the 19-byte header.
func (h Header) MarshalBinary() ([]byte, error) {
	return h.AppendBinary(make([]byte, 0, HeaderSize))
}

// AppendBinary appends the encoded header to b.
func (h Header) AppendBinary(b []byte) ([]byte, error) {
	b = append(b, h.Name[:]...)
	b = binary.BigEndian.AppendUint64(b, h.Length)
	b = binary.BigEndian.AppendUint32(b, h.Checksum)
	return b, nil
}

// ParseHeader decodes a header notification. Bytes beyond the header
// are ignored.
func ParseHeader(data []byte) (Header, error) {
	var h Header
	if len(data) < HeaderSize {
		return h, fmt.Errorf("%w: got %d", ErrShortHeader, len(data))
	}
	copy(h.Name[:], data[:NameSize])
	h.Length = binary.BigEndian.Uint64(data[NameSize:])
	h.Checksum = binary.BigEndian.Uint32(data[NameSize+8:])
	return h, nil
}

// Chunks splits data into consecutive size-byte slices, the last one
// possibly shorter. The slices alias data.
func Chunks(data []byte, size int) [][]byte {
	if size <= 0 {
		size = DefaultChunkSize
	}
	chunks := make([][]byte, 0, (len(data)+size-1)/size)
	for off := 0; off < len(data); off += size {
		end := min(off+size, len(data))
		chunks = append(chunks, data[off:end:end])
	}
	return chunks
}
