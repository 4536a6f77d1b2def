// Package bridge runs a peripheral bridge.
//
// A Service owns the bus and ties the lower-level packages together:
//   - a Session per controller link decodes command batches, executes
//     them in order on the bus and emits each response immediately
//   - the link supervisor redials the controller with backoff
//   - the notification server carries the bulk channel and the sample
//     channel to one consumer
//   - the bulk channel streams the payload once per subscription
//   - the sample channel streams samples while subscribed
//   - the notification endpoint is advertised over mDNS
//
// Example usage:
//
//	cfg := config.Default()
//	cfg.Controller.Address = "192.168.1.20:7420"
//
//	svc, err := bridge.NewService(cfg, bridge.Options{Logger: logger})
//	if err != nil {
//		return err
//	}
//	return svc.Run(ctx)
//
// # Error policy
//
// A frame that does not decode is dropped and the link stays up. A batch
// stops at its first failing operation. An unknown operation closes the
// link when close_on_protocol_error is set; a bus failure never does.
// A failed response send closes the link and the supervisor redials.
package bridge
