// Package wifi manages the station link and the soft-AP used by the captive
// portal.
package wifi

import (
	"context"
	"net"
)

// Network is one scan result
type Network struct {
	SSID string `json:"ssid"`
	RSSI int    `json:"rssi"`
	Open bool   `json:"open"`
}

// Status describes the station link
type Status struct {
	Connected bool
	SSID      string
	IP        string
	RSSI      int
}

// Link is the station interface. Connect blocks until associated, failed,
// or ctx expires.
type Link interface {
	Connect(ctx context.Context, ssid, secret string) error
	Disconnect() error
	Connected() bool
	Status() Status
	Scan(ctx context.Context) ([]Network, error)
	HardwareAddr() net.HardwareAddr
}

// Hotspot is an open access point for the captive portal
type Hotspot interface {
	StartHotspot(ctx context.Context, ssid string) error
	StopHotspot() error
}
