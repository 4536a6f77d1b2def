// Package bus provides the hardware bus abstraction used by the bridge.
//
// A Driver performs one full-duplex transaction: the buffer is clocked
// out and overwritten in place with the bytes clocked in. The first byte
// of every transaction is a command byte; its high bit marks a read.
//
// Adapters map the Driver contract onto tinygo.org/x/drivers buses:
//   - SPI wraps drivers.SPI and performs a single Tx per transaction.
//   - I2C wraps drivers.I2C, splitting a read into register-select write
//     and data read.
//
// Shared serializes access when several producers (the command session
// and the sample stream) use the same physical bus. Sim is a register
// file peripheral used by tests and by the bridge's simulation mode.
package bus
