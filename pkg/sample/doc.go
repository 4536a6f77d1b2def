// Package sample streams fixed-layout sensor samples over a notification
// channel while a consumer is subscribed.
//
// A sample is six signed 16-bit values, little-endian, 12 bytes. Samples
// come from a Source: Synthetic produces a deterministic counter pattern,
// BusSource reads a register block through the bridge's shared bus.
package sample
