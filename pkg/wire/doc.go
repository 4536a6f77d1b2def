// Package wire defines the CBOR wire format of the peripheral bridge.
//
// Command batches travel between a controller and a bridge as single
// length-prefixed frames. Each frame holds exactly one CBOR map using
// integer keys that mirror the field numbers of the bridge schema:
//
//	CommandBatch     { 1: [CommandEnvelope] }
//	CommandEnvelope  { 1: transport, 2: bus, 3: [BusOperation] }
//	BusOperation     { 1: operation, 2: address, 3: data, 4: delay_us }
//
// # Absent vs Empty Data
//
// The data field of a BusOperation is always present on the wire. A null
// value means the operation carries no data; an empty byte string means
// it carries zero bytes. Decoding preserves the distinction (nil vs empty
// slice), which matters for Read where the data length selects how many
// bytes are clocked in.
//
// # Control Messages
//
// Control messages (ping, pong, close, subscribe, unsubscribe) share the
// same framing. They carry an unsigned integer under key 1 while a batch
// carries an array, which lets PeekMessageType tell them apart without a
// full decode.
package wire
