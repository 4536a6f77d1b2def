package discovery

import (
	"errors"
	"time"

	"github.com/peripheral-bridge/bridge-go/pkg/wire"
)

// Service type constants for mDNS.
const (
	// ServiceTypeBridge is the service type for bridge notification endpoints.
	ServiceTypeBridge = "_pbridge._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the default notification endpoint port.
	DefaultPort = 7421
)

// TXT record key constants.
const (
	TXTKeyName       = "name"    // Bridge name
	TXTKeyMTU        = "mtu"     // Notification MTU
	TXTKeyBus        = "bus"     // Bus type (SPI, I2C, UART)
	TXTKeyPayload    = "payload" // Bulk payload name (optional)
	TXTKeyPayloadLen = "len"     // Bulk payload length (optional)
	TXTKeyPayloadCRC = "crc"     // Bulk payload CRC-32, hex (optional)
)

// Timing constants.
const (
	// BrowseTimeout is the default timeout for mDNS browsing.
	BrowseTimeout = 10 * time.Second
)

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// MaxTXTRecordSize is the maximum total TXT record size.
	MaxTXTRecordSize = 400
)

// Discovery errors.
var (
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrMissingRequired     = errors.New("missing required field")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotFound            = errors.New("service not found")
	ErrNotAdvertising      = errors.New("not advertising")
)

// BridgeInfo contains the information a bridge advertises.
type BridgeInfo struct {
	// Name is the bridge name, also used as the instance name.
	Name string

	// Port is the notification endpoint port.
	Port uint16

	// MTU is the maximum notification payload size.
	MTU int

	// Bus is the bus the bridge drives.
	Bus wire.BusType

	// PayloadName is the bulk payload name. Empty when no payload is served.
	PayloadName string

	// PayloadLength is the bulk payload length in bytes.
	PayloadLength uint64

	// PayloadChecksum is the CRC-32 of the bulk payload.
	PayloadChecksum uint32
}

// HasPayload reports whether a bulk payload is advertised.
func (i *BridgeInfo) HasPayload() bool {
	return i.PayloadName != ""
}

// BridgeService is a bridge found by browsing.
type BridgeService struct {
	// InstanceName is the mDNS instance name.
	InstanceName string

	// Host is the target host name.
	Host string

	// Port is the notification endpoint port.
	Port uint16

	// Addresses are the resolved IP addresses.
	Addresses []string

	BridgeInfo
}
