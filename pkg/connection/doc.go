// Package connection keeps a bridge's dial-out link to its controller alive.
//
// A Supervisor dials the controller, waits for the link to end and dials
// again with exponential backoff:
//
//  1. Initial delay: 500 milliseconds
//  2. Exponential increase: 1s, 2s, 4s, 8s, 16s
//  3. Maximum delay: 30 seconds
//  4. Continue at 30s until successful
//  5. Reset to the initial delay after a successful dial
//
// # Jitter
//
// To keep a rack of bridges from reconnecting in lockstep:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
package connection
