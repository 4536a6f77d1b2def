package bridge

import (
	"errors"
	"log/slog"
	"time"

	"github.com/peripheral-bridge/bridge-go/pkg/bulk"
	"github.com/peripheral-bridge/bridge-go/pkg/bus"
	"github.com/peripheral-bridge/bridge-go/pkg/discovery"
	"github.com/peripheral-bridge/bridge-go/pkg/log"
	"github.com/peripheral-bridge/bridge-go/pkg/wire"
)

// Notification channel ids.
const (
	// BulkChannel streams the payload once per subscription.
	BulkChannel uint8 = 1

	// SampleChannel streams samples while subscribed.
	SampleChannel uint8 = 2
)

// Service errors.
var (
	ErrAlreadyStarted = errors.New("service already started")
	ErrNoDriver       = errors.New("external bus driver not supplied")
	ErrSessionClosed  = errors.New("session closed")
)

// ServiceState represents the service state.
type ServiceState uint8

const (
	// StateIdle - service created but not started.
	StateIdle ServiceState = iota

	// StateRunning - service is running normally.
	StateRunning

	// StateStopped - service has stopped.
	StateStopped
)

// String returns the state name.
func (s ServiceState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Options supplies the collaborators a configuration file cannot name.
type Options struct {
	// Driver is the bus driver. Required when the configured bus driver is
	// "external"; ignored otherwise.
	Driver bus.Driver

	// Buses adds drivers for other bus tags, e.g. bus.NewI2C. When set,
	// SPI and untagged operations use the primary driver and any other
	// unlisted tag fails with bus.ErrNoDriver.
	Buses map[wire.BusType]bus.Driver

	// Payload overrides the configured bulk payload.
	Payload *bulk.Payload

	// Advertiser overrides the mDNS advertiser.
	Advertiser discovery.Advertiser

	// Sleep blocks for post-operation and pacing delays.
	// Default: time.Sleep.
	Sleep func(time.Duration)

	// Logger is the operational logger (optional).
	Logger *slog.Logger

	// ProtocolLogger records protocol events (optional).
	ProtocolLogger log.Logger
}

// Stats summarizes bridge activity.
type Stats struct {
	Links          int
	Batches        uint64
	Operations     uint64
	Responses      uint64
	Failures       uint64
	DecodeErrors   uint64
	ProtocolErrors uint64
	BusErrors      uint64
	BulkPasses     uint64
	BulkSent       uint64
	SamplesSent    uint64
}
