// Package notify implements the bridge's push-only notification channels.
//
// A Server exposes numbered channels to a single consumer at a time.
// Consumers subscribe to a channel with a control message; from then on
// every Notify on that channel is pushed as one frame:
//
//	[channel id] ++ payload      len(payload) <= MTU
//
// Channel ids are 1..127, so the first byte of a notification frame never
// collides with the map header that starts a CBOR control message (pong,
// close). Subscriptions do not survive the consumer's connection.
//
// Each channel owns a gate.Gate: subscribe arms it, unsubscribe disarms it.
// Producers such as the bulk streamer block in the gate, never in the
// notification path.
package notify
