// Package executor applies bus operations to a bus driver.
//
// Execute handles a single operation and returns the response to emit,
// if any. Runner walks a whole batch in program order, honouring the
// post delay of every operation before starting the next one and
// handing each response to the caller as soon as it exists.
//
// # Transaction Layout
//
//	Read      [address|0x80, 0 x n]   response: Ack{address, rx[1:]}
//	Write     [address, data...]      no response
//	Transfer  [address, data...]      no response, rx discarded
//	Ack       no bus activity         no response
//
// Operations without data perform no bus activity.
//
// # Failure Policy
//
// The first failing operation stops the batch: the remaining operations
// of its envelope and every later envelope are skipped. Unknown
// operation codes fail with a ProtocolError, driver failures with a
// BusError. What happens to the connection is up to the caller.
package executor
