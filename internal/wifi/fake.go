package wifi

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/muurk/poolctl/internal/faults"
)

// Attempt records one Connect call on a Fake
type Attempt struct {
	SSID   string
	Secret string
}

// Fake is an in-memory link. Connect succeeds only for networks added with
// Allow (or for anything when AcceptAny is set).
type Fake struct {
	mu        sync.Mutex
	allowed   map[string]string
	acceptAny bool
	status    Status
	networks  []Network
	attempts  []Attempt
	hotspot   string
	scanErr   error
	mac       net.HardwareAddr
}

// NewFake returns a disconnected link with the given MAC address
func NewFake(mac net.HardwareAddr) *Fake {
	return &Fake{allowed: make(map[string]string), mac: mac}
}

// Allow makes ssid joinable with secret
func (f *Fake) Allow(ssid, secret string) {
	f.mu.Lock()
	f.allowed[ssid] = secret
	f.mu.Unlock()
}

// Forbid makes ssid unreachable
func (f *Fake) Forbid(ssid string) {
	f.mu.Lock()
	delete(f.allowed, ssid)
	f.mu.Unlock()
}

// AcceptAny makes every Connect succeed
func (f *Fake) AcceptAny(accept bool) {
	f.mu.Lock()
	f.acceptAny = accept
	f.mu.Unlock()
}

// SetNetworks sets the scan result
func (f *Fake) SetNetworks(networks []Network) {
	f.mu.Lock()
	f.networks = append([]Network(nil), networks...)
	f.mu.Unlock()
}

// FailScan makes Scan return err
func (f *Fake) FailScan(err error) {
	f.mu.Lock()
	f.scanErr = err
	f.mu.Unlock()
}

// Drop simulates losing the access point
func (f *Fake) Drop() {
	f.mu.Lock()
	f.status = Status{}
	f.mu.Unlock()
}

// Attempts returns every Connect call so far
func (f *Fake) Attempts() []Attempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Attempt(nil), f.attempts...)
}

// HotspotSSID returns the running hotspot name, or "" when none is up
func (f *Fake) HotspotSSID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hotspot
}

// Connect joins ssid if it is allowed
func (f *Fake) Connect(ctx context.Context, ssid, secret string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.attempts = append(f.attempts, Attempt{SSID: ssid, Secret: secret})
	if err := ctx.Err(); err != nil {
		return faults.NewLinkFailure(fmt.Sprintf("timed out joining %q", ssid), err)
	}

	want, ok := f.allowed[ssid]
	if !f.acceptAny && (!ok || want != secret) {
		f.status = Status{}
		return faults.NewLinkFailure(fmt.Sprintf("timed out joining %q", ssid), context.DeadlineExceeded)
	}

	rssi := -55
	for _, n := range f.networks {
		if n.SSID == ssid {
			rssi = n.RSSI
		}
	}
	f.status = Status{Connected: true, SSID: ssid, IP: "192.168.1.50", RSSI: rssi}
	return nil
}

// Disconnect drops the link
func (f *Fake) Disconnect() error {
	f.Drop()
	return nil
}

// Connected reports the link state
func (f *Fake) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status.Connected
}

// Status returns the link status
func (f *Fake) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// SetRSSI changes the signal strength of the current link
func (f *Fake) SetRSSI(rssi int) {
	f.mu.Lock()
	f.status.RSSI = rssi
	f.mu.Unlock()
}

// Scan returns the configured networks
func (f *Fake) Scan(ctx context.Context) ([]Network, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return append([]Network(nil), f.networks...), nil
}

// HardwareAddr returns the configured MAC
func (f *Fake) HardwareAddr() net.HardwareAddr {
	return f.mac
}

// StartHotspot records the hotspot name
func (f *Fake) StartHotspot(ctx context.Context, ssid string) error {
	f.mu.Lock()
	f.hotspot = ssid
	f.mu.Unlock()
	return nil
}

// StopHotspot clears the hotspot
func (f *Fake) StopHotspot() error {
	f.mu.Lock()
	f.hotspot = ""
	f.mu.Unlock()
	return nil
}
