package bus

import (
	"sync"

	"tinygo.org/x/drivers"
)

// RegisterCount is the size of the simulated register file. Register
// addresses are 7 bits wide since the top bit of the command byte marks
// a read.
const RegisterCount = 128

// Sim is a simulated SPI peripheral exposing a register file with
// auto-increment addressing. It implements drivers.SPI so it can sit
// behind the SPI adapter exactly like a real bus.
//
// A transaction starts with a command byte. With ReadFlag set, the
// following bytes clock out registers starting at the addressed one.
// Without it, the following bytes are stored starting at the addressed
// register. The byte clocked in alongside the command byte is always 0.
type Sim struct {
	mu   sync.Mutex
	regs [RegisterCount]byte
	fail error
	txs  int
}

// Ensure compile-time conformance with drivers.SPI
var _ drivers.SPI = (*Sim)(nil)

// NewSim creates a simulated peripheral with all registers zeroed.
func NewSim() *Sim {
	return &Sim{}
}

// Tx implements drivers.SPI. Each call is one chip-select transaction.
func (s *Sim) Tx(w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fail != nil {
		err := s.fail
		s.fail = nil
		return err
	}
	s.txs++

	n := len(w)
	if len(r) > n {
		n = len(r)
	}
	if n == 0 {
		return nil
	}

	var cmd byte
	if len(w) > 0 {
		cmd = w[0]
	}
	reg := int(cmd &^ ReadFlag)

	if len(r) > 0 {
		r[0] = 0
	}
	for i := 1; i < n; i++ {
		addr := (reg + i - 1) % RegisterCount
		if cmd&ReadFlag != 0 {
			if i < len(r) {
				r[i] = s.regs[addr]
			}
			continue
		}
		if i < len(w) {
			s.regs[addr] = w[i]
		}
		if i < len(r) {
			r[i] = 0
		}
	}
	return nil
}

// Transfer implements drivers.SPI as a one-byte transaction.
func (s *Sim) Transfer(b byte) (byte, error) {
	r := []byte{0}
	if err := s.Tx([]byte{b}, r); err != nil {
		return 0, err
	}
	return r[0], nil
}

// Load stores data into the register file starting at reg.
func (s *Sim) Load(reg byte, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range data {
		s.regs[(int(reg)+i)%RegisterCount] = b
	}
}

// Registers returns a copy of n registers starting at reg.
func (s *Sim) Registers(reg byte, n int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, n)
	for i := range out {
		out[i] = s.regs[(int(reg)+i)%RegisterCount]
	}
	return out
}

// FailNext makes the next transaction fail with err.
func (s *Sim) FailNext(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

// Transactions returns the number of completed transactions.
func (s *Sim) Transactions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txs
}
