package bridge

import (
	"fmt"
	"time"

	"github.com/peripheral-bridge/bridge-go/pkg/log"
	"github.com/peripheral-bridge/bridge-go/pkg/wire"
)

// Sender is the interface for a connection that can send data.
// This is implemented by transport.Connection.
type Sender interface {
	Send(data []byte) error
}

// Emitter wraps each response in its own single-envelope batch and sends
// it at once.
type Emitter struct {
	sender    Sender
	transport wire.TransportType
	bus       wire.BusType

	// optional protocol logging
	logger   log.Logger
	connID   string
	bridgeID string
}

// NewEmitter creates an emitter tagging responses with transport and bus.
func NewEmitter(sender Sender, transport wire.TransportType, bus wire.BusType) *Emitter {
	return &Emitter{sender: sender, transport: transport, bus: bus}
}

// SetLogger records every emitted response as a wire-layer event.
func (e *Emitter) SetLogger(logger log.Logger, connID, bridgeID string) {
	e.logger = logger
	e.connID = connID
	e.bridgeID = bridgeID
}

// Emit sends op as CommandBatch{[CommandEnvelope{transport, bus, [op]}]}.
func (e *Emitter) Emit(op wire.BusOperation) error {
	batch := wire.NewResponse(e.transport, e.bus, op)
	data, err := wire.EncodeBatch(batch)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if err := e.sender.Send(data); err != nil {
		return fmt.Errorf("send response: %w", err)
	}

	if e.logger != nil {
		e.logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: e.connID,
			Direction:    log.DirectionOut,
			Layer:        log.LayerWire,
			Category:     log.CategoryMessage,
			LocalRole:    log.RoleBridge,
			BridgeID:     e.bridgeID,
			Message:      log.NewMessageEvent(log.MessageTypeResponse, batch),
		})
	}
	return nil
}
