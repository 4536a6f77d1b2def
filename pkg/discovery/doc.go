// Package discovery implements mDNS/DNS-SD discovery of bridge notification
// endpoints.
//
// # Bridge Discovery (_pbridge._tcp)
//
// A bridge advertises one instance for its notification endpoint.
// Instance name format: the configured bridge name, truncated to 63 bytes.
// TXT records include: name (bridge name), mtu (notification MTU),
// bus (bus type), and when a bulk payload is configured, payload (payload
// name), len (payload length) and crc (CRC-32 as 8 hex digits).
//
// Consumers browse the service type and connect to the advertised port.
// Addresses seen on several interfaces are merged into one entry.
package discovery
