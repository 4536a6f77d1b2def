package sample

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// Values is the number of values per sample.
	Values = 6

	// Size is the encoded sample size in bytes.
	Size = Values * 2
)

// ErrShortSample is returned when decoding fewer than Size bytes.
var ErrShortSample = errors.New("sample too short")

// Sample is one reading of six signed 16-bit values.
type Sample [Values]int16

// AppendBinary appends the little-endian encoding of s to b.
func (s Sample) AppendBinary(b []byte) ([]byte, error) {
	for _, v := range s {
		b = binary.LittleEndian.AppendUint16(b, uint16(v))
	}
	return b, nil
}

// MarshalBinary returns the 12-byte little-endian encoding of s.
func (s Sample) MarshalBinary() ([]byte, error) {
	return s.AppendBinary(make([]byte, 0, Size))
}

// Parse decodes a sample from the first Size bytes of b.
func Parse(b []byte) (Sample, error) {
	var s Sample
	if len(b) < Size {
		return s, fmt.Errorf("%w: %d < %d", ErrShortSample, len(b), Size)
	}
	for i := range s {
		s[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return s, nil
}
