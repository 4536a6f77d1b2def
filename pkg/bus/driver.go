package bus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/peripheral-bridge/bridge-go/pkg/wire"
)

// ReadFlag is set on the command byte of a read transaction.
const ReadFlag byte = 0x80

// Driver performs full-duplex bus transactions.
type Driver interface {
	// Transfer clocks out buf and replaces its contents with the bytes
	// clocked in. The transaction runs to completion.
	Transfer(buf []byte) error
}

// Selector resolves the driver for the bus named by an envelope.
type Selector interface {
	Select(bus wire.BusType) (Driver, error)
}

// ErrNoDriver is returned when no driver is registered for a bus.
var ErrNoDriver = errors.New("no driver for bus")

// Single returns a Selector that routes every envelope to drv regardless
// of its bus tag.
func Single(drv Driver) Selector {
	return single{drv}
}

type single struct {
	drv Driver
}

func (s single) Select(wire.BusType) (Driver, error) {
	return s.drv, nil
}

// Mux routes envelopes to drivers by bus tag. Envelopes tagged
// BusUnspecified go to the fallback driver, if any.
type Mux struct {
	mu       sync.RWMutex
	drivers  map[wire.BusType]Driver
	fallback Driver
}

// NewMux creates an empty Mux. fallback may be nil.
func NewMux(fallback Driver) *Mux {
	return &Mux{
		drivers:  make(map[wire.BusType]Driver),
		fallback: fallback,
	}
}

// Register sets the driver for a bus tag.
func (m *Mux) Register(bus wire.BusType, drv Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[bus] = drv
}

// Select implements Selector.
func (m *Mux) Select(bus wire.BusType) (Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if drv, ok := m.drivers[bus]; ok {
		return drv, nil
	}
	if bus == wire.BusUnspecified && m.fallback != nil {
		return m.fallback, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoDriver, bus)
}

// Shared serializes transactions on a driver used by more than one
// producer.
type Shared struct {
	mu  sync.Mutex
	drv Driver
}

// NewShared wraps drv.
func NewShared(drv Driver) *Shared {
	return &Shared{drv: drv}
}

// Transfer implements Driver. Only one transaction is in flight at a time.
func (s *Shared) Transfer(buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drv.Transfer(buf)
}

// DriverFunc adapts a function to the Driver interface.
type DriverFunc func(buf []byte) error

// Transfer implements Driver.
func (f DriverFunc) Transfer(buf []byte) error {
	return f(buf)
}
