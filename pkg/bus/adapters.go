package bus

import (
	"errors"

	"tinygo.org/x/drivers"
)

// ErrEmptyTransaction is returned for a transaction without a command byte.
var ErrEmptyTransaction = errors.New("empty transaction")

// SPI adapts a drivers.SPI bus to Driver.
type SPI struct {
	bus drivers.SPI
	rx  []byte
}

// Ensure compile-time conformance with Driver
var _ Driver = (*SPI)(nil)

// NewSPI wraps a configured SPI bus. Chip select handling belongs to the
// bus implementation.
func NewSPI(bus drivers.SPI) *SPI {
	return &SPI{bus: bus}
}

// Transfer performs one Tx with equally sized write and read buffers.
// Not safe for concurrent use; wrap in Shared when the bus is shared.
func (s *SPI) Transfer(buf []byte) error {
	if len(buf) == 0 {
		return ErrEmptyTransaction
	}
	if cap(s.rx) < len(buf) {
		s.rx = make([]byte, len(buf))
	}
	rx := s.rx[:len(buf)]
	if err := s.bus.Tx(buf, rx); err != nil {
		return err
	}
	copy(buf, rx)
	return nil
}

// I2C adapts a register-mapped drivers.I2C peripheral to Driver.
//
// I2C is half duplex, so the command byte is interpreted: with ReadFlag
// set, the register (command byte without the flag) is written and the
// remaining bytes of buf are read back, leaving buf[0] untouched. Without
// the flag, buf is written as is and nothing is read.
type I2C struct {
	bus  drivers.I2C
	addr uint16
}

var _ Driver = (*I2C)(nil)

// NewI2C wraps an I2C bus talking to the peripheral at addr.
func NewI2C(bus drivers.I2C, addr uint16) *I2C {
	return &I2C{bus: bus, addr: addr}
}

// Transfer implements Driver.
func (d *I2C) Transfer(buf []byte) error {
	if len(buf) == 0 {
		return ErrEmptyTransaction
	}
	if buf[0]&ReadFlag == 0 {
		return d.bus.Tx(d.addr, buf, nil)
	}
	if len(buf) == 1 {
		return nil
	}
	return d.bus.Tx(d.addr, []byte{buf[0] &^ ReadFlag}, buf[1:])
}
