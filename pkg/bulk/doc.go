// Package bulk streams a large payload over a push-only notification
// channel whose messages are limited to a few bytes.
//
// A pass sends one header notification followed by the payload split
// into fixed-size chunks:
//
//	header   name[7] | length[8, big-endian] | checksum[4, big-endian]
//	chunk    payload[i*20 : (i+1)*20]
//	...
//	last     payload[n*20 :]            (only when length % 20 != 0)
//
// The checksum is CRC-32 (IEEE polynomial, seed 0) over the whole
// payload. No acknowledgments are exchanged; receivers use Assembler to
// rebuild and verify the payload.
package bulk
