package discovery

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/muurk/poolctl/internal/logging"
	"go.uber.org/zap"
)

const (
	// PairingService is advertised while the controller waits for credentials
	PairingService = "_poolctl-pair._tcp"

	// PortalService is advertised while the captive portal is up
	PortalService = "_http._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for device discovery
	DefaultScanTimeout = 10 * time.Second

	// DefaultPairingPath is the WebSocket path of the pairing endpoint
	DefaultPairingPath = "/pair"
)

// namePattern matches pairing names such as "Pool-ABCD"
var namePattern = regexp.MustCompile(`^(.+)-([0-9A-F]{4})$`)

// PairingName returns "<prefix>-XXXX" from the last two octets of mac
func PairingName(prefix string, mac net.HardwareAddr) string {
	if len(mac) < 2 {
		return prefix + "-0000"
	}
	return fmt.Sprintf("%s-%02X%02X", prefix, mac[len(mac)-2], mac[len(mac)-1])
}

// Advertisement is a registered mDNS service
type Advertisement struct {
	server *zeroconf.Server
	name   string
}

// Advertise registers instance under service on port with the given TXT records
func Advertise(instance, service string, port int, txt []string) (*Advertisement, error) {
	server, err := zeroconf.Register(instance, service, ServiceDomain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service %s: %w", service, err)
	}

	logging.Info("mDNS service registered",
		zap.String("instance", instance),
		zap.String("service", service),
		zap.Int("port", port),
	)
	return &Advertisement{server: server, name: instance}, nil
}

// Shutdown withdraws the advertisement
func (a *Advertisement) Shutdown() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
	logging.Info("mDNS service withdrawn", zap.String("instance", a.name))
}

// Scanner handles mDNS device discovery
type Scanner struct {
	// Timeout is the maximum time to wait for device discovery
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// ScanForDevices discovers controllers in pairing mode
func (s *Scanner) ScanForDevices() ([]*Device, error) {
	return s.ScanForDevicesWithContext(context.Background())
}

// ScanForDevicesWithContext discovers devices with a custom context
func (s *Scanner) ScanForDevicesWithContext(ctx context.Context) ([]*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan []*Device)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	// The resolver closes entries when ctx ends
	go func() {
		devices := make([]*Device, 0)
		seen := make(map[string]bool)
		for entry := range entries {
			device := s.parseServiceEntry(entry)
			if device != nil && !seen[device.Name] {
				seen[device.Name] = true
				devices = append(devices, device)
			}
		}
		done <- devices
	}()

	if err := resolver.Browse(ctx, PairingService, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	return <-done, nil
}

// parseServiceEntry converts a zeroconf service entry to a Device.
// Returns nil if the entry is not a poolctl pairing service.
func (s *Scanner) parseServiceEntry(entry *zeroconf.ServiceEntry) *Device {
	matches := namePattern.FindStringSubmatch(entry.Instance)
	if len(matches) < 3 {
		return nil
	}

	// Get IP address (prefer IPv4)
	var ip string
	for _, addr := range entry.AddrIPv4 {
		ip = addr.String()
		break
	}
	if ip == "" && len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" || entry.Port == 0 {
		return nil
	}

	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}

	return &Device{
		Name:         entry.Instance,
		Suffix:       matches[2],
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         entry.Port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// ScanForDevices is a convenience function to scan for devices with a custom timeout
func ScanForDevices(timeout time.Duration) ([]*Device, error) {
	scanner := NewScanner()
	scanner.Timeout = timeout
	return scanner.ScanForDevices()
}
