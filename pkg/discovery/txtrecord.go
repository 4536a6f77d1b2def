package discovery

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/peripheral-bridge/bridge-go/pkg/wire"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeBridgeTXT creates TXT records for bridge discovery.
func EncodeBridgeTXT(info *BridgeInfo) TXTRecordMap {
	txt := make(TXTRecordMap)

	// Required fields
	txt[TXTKeyName] = info.Name
	txt[TXTKeyMTU] = strconv.Itoa(info.MTU)
	txt[TXTKeyBus] = info.Bus.String()

	// Optional fields
	if info.HasPayload() {
		txt[TXTKeyPayload] = info.PayloadName
		txt[TXTKeyPayloadLen] = strconv.FormatUint(info.PayloadLength, 10)
		txt[TXTKeyPayloadCRC] = fmt.Sprintf("%08x", info.PayloadChecksum)
	}

	return txt
}

// DecodeBridgeTXT parses TXT records from bridge discovery.
func DecodeBridgeTXT(txt TXTRecordMap) (*BridgeInfo, error) {
	info := &BridgeInfo{}

	// Parse name (required)
	var ok bool
	info.Name, ok = txt[TXTKeyName]
	if !ok || info.Name == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyName)
	}

	// Parse MTU (required)
	mtuStr, ok := txt[TXTKeyMTU]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyMTU)
	}
	mtu, err := strconv.Atoi(mtuStr)
	if err != nil || mtu <= 0 {
		return nil, fmt.Errorf("%w: invalid mtu %q", ErrInvalidTXTRecord, mtuStr)
	}
	info.MTU = mtu

	// Parse bus (required)
	busStr, ok := txt[TXTKeyBus]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyBus)
	}
	info.Bus, ok = wire.ParseBusType(busStr)
	if !ok {
		return nil, fmt.Errorf("%w: invalid bus %q", ErrInvalidTXTRecord, busStr)
	}

	// Payload fields are all-or-nothing
	name, ok := txt[TXTKeyPayload]
	if !ok {
		return info, nil
	}
	info.PayloadName = name

	lenStr, ok := txt[TXTKeyPayloadLen]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyPayloadLen)
	}
	info.PayloadLength, err = strconv.ParseUint(lenStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid len %q", ErrInvalidTXTRecord, lenStr)
	}

	crcStr, ok := txt[TXTKeyPayloadCRC]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyPayloadCRC)
	}
	crc, err := strconv.ParseUint(crcStr, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid crc %q", ErrInvalidTXTRecord, crcStr)
	}
	info.PayloadChecksum = uint32(crc)

	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to a slice of "key=value" strings.
// This format is commonly used by mDNS libraries.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without value (boolean flag)
			txt[parts[0]] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}

// InstanceName returns the mDNS instance name for a bridge name.
func InstanceName(name string) string {
	if len(name) > MaxInstanceNameLen {
		return name[:MaxInstanceNameLen]
	}
	return name
}
