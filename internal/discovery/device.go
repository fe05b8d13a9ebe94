package discovery

import (
	"fmt"
	"time"
)

// Device is a controller found in pairing mode
type Device struct {
	// Name is the pairing name (e.g., "Pool-ABCD")
	Name string

	// Suffix is the MAC-derived part of the name (e.g., "ABCD")
	Suffix string

	// Hostname is the mDNS hostname
	Hostname string

	// IP is the IPv4 address, or IPv6 when no IPv4 was announced
	IP string

	// Port is the pairing endpoint port
	Port int

	// Metadata contains the TXT records: "id", "path", "version"
	Metadata map[string]string

	// DiscoveredAt is when the device was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the device
func (d *Device) String() string {
	return fmt.Sprintf("%s (%s) at %s:%d", d.Name, d.GetMetadata("id"), d.IP, d.Port)
}

// PairingURL returns the WebSocket URL of the pairing endpoint
func (d *Device) PairingURL() string {
	path := d.GetMetadata("path")
	if path == "" {
		path = DefaultPairingPath
	}
	return fmt.Sprintf("ws://%s:%d%s", d.IP, d.Port, path)
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}
