package wire

// TransportType identifies the transport a command envelope travels on.
type TransportType uint32

const (
	TransportUnspecified TransportType = 0

	// TransportWebSocket is the bidirectional message channel used by
	// controllers to submit batches.
	TransportWebSocket TransportType = 1

	// TransportStream is a raw length-prefixed TCP stream.
	TransportStream TransportType = 2

	// TransportNotify is the push-only notification channel.
	TransportNotify TransportType = 3
)

// String returns the transport name.
func (t TransportType) String() string {
	switch t {
	case TransportUnspecified:
		return "UNSPECIFIED"
	case TransportWebSocket:
		return "WEBSOCKET"
	case TransportStream:
		return "STREAM"
	case TransportNotify:
		return "NOTIFY"
	default:
		return "UNKNOWN"
	}
}

// ParseTransportType parses a transport name as printed by String.
func ParseTransportType(s string) (TransportType, bool) {
	for t := TransportUnspecified; t <= TransportNotify; t++ {
		if t.String() == s {
			return t, true
		}
	}
	return TransportUnspecified, false
}

// BusType identifies the physical bus a command envelope targets.
type BusType uint32

const (
	BusUnspecified BusType = 0
	BusSPI         BusType = 1
	BusI2C         BusType = 2
	BusUART        BusType = 3
)

// String returns the bus name.
func (b BusType) String() string {
	switch b {
	case BusUnspecified:
		return "UNSPECIFIED"
	case BusSPI:
		return "SPI"
	case BusI2C:
		return "I2C"
	case BusUART:
		return "UART"
	default:
		return "UNKNOWN"
	}
}

// ParseBusType parses a bus name as printed by String.
func ParseBusType(s string) (BusType, bool) {
	for b := BusUnspecified; b <= BusUART; b++ {
		if b.String() == s {
			return b, true
		}
	}
	return BusUnspecified, false
}
