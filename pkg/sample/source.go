package sample

import (
	"fmt"
	"sync"

	"github.com/peripheral-bridge/bridge-go/pkg/bus"
)

// Source produces samples.
type Source interface {
	Next() (Sample, error)
}

// syntheticFactors scale the counter for each value.
var syntheticFactors = [Values]int16{1, 3, 5, 2, 4, 6}

// Synthetic generates count*k mod 0x1000 for k = 1, 3, 5, 2, 4, 6 with a
// wrapping 16-bit counter starting at zero.
type Synthetic struct {
	mu    sync.Mutex
	count int16
}

// NewSynthetic creates a Synthetic source.
func NewSynthetic() *Synthetic {
	return &Synthetic{}
}

// Next implements Source.
func (s *Synthetic) Next() (Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out Sample
	for i, k := range syntheticFactors {
		out[i] = (s.count * k) % 0x1000
	}
	s.count++
	return out, nil
}

// BusSource reads Size bytes starting at a register with one read
// transaction per sample.
type BusSource struct {
	drv      bus.Driver
	register uint8
	buf      [Size + 1]byte
	mu       sync.Mutex
}

// NewBusSource creates a BusSource. drv should be the shared bus driver
// when command batches use the same bus.
func NewBusSource(drv bus.Driver, register uint8) *BusSource {
	return &BusSource{drv: drv, register: register}
}

// Next implements Source.
func (s *BusSource) Next() (Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.buf[:])
	s.buf[0] = s.register | bus.ReadFlag
	if err := s.drv.Transfer(s.buf[:]); err != nil {
		return Sample{}, fmt.Errorf("sample read at 0x%02x: %w", s.register, err)
	}
	return Parse(s.buf[1:])
}
