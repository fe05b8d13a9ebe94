package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func newEntry(instance string, port int, v4, v6 []net.IP, txt []string) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, PairingService, ServiceDomain)
	e.HostName = "poolctl.local."
	e.Port = port
	e.AddrIPv4 = v4
	e.AddrIPv6 = v6
	e.Text = txt
	return e
}

func TestScanner_parseServiceEntry(t *testing.T) {
	scanner := NewScanner()

	tests := []struct {
		name       string
		entry      *zeroconf.ServiceEntry
		wantNil    bool
		wantSuffix string
		wantIP     string
		wantPort   int
	}{
		{
			name:       "pairing device with IPv4",
			entry:      newEntry("Pool-ABCD", 8765, []net.IP{net.ParseIP("192.168.4.16")}, nil, []string{"id=esp32-pool-01", "path=/pair"}),
			wantSuffix: "ABCD",
			wantIP:     "192.168.4.16",
			wantPort:   8765,
		},
		{
			name:       "prefix containing a dash",
			entry:      newEntry("Back-Yard-01FF", 8765, []net.IP{net.ParseIP("10.0.0.5")}, nil, nil),
			wantSuffix: "01FF",
			wantIP:     "10.0.0.5",
			wantPort:   8765,
		},
		{
			name:       "IPv6 only device",
			entry:      newEntry("Pool-0001", 8765, nil, []net.IP{net.ParseIP("fe80::1")}, nil),
			wantSuffix: "0001",
			wantIP:     "fe80::1",
			wantPort:   8765,
		},
		{
			name:       "device with both IPv4 and IPv6 (should prefer IPv4)",
			entry:      newEntry("Pool-0002", 8765, []net.IP{net.ParseIP("192.168.1.50")}, []net.IP{net.ParseIP("fe80::2")}, nil),
			wantSuffix: "0002",
			wantIP:     "192.168.1.50",
			wantPort:   8765,
		},
		{
			name:    "lowercase suffix",
			entry:   newEntry("Pool-abcd", 8765, []net.IP{net.ParseIP("192.168.1.1")}, nil, nil),
			wantNil: true,
		},
		{
			name:    "no suffix",
			entry:   newEntry("printer", 8765, []net.IP{net.ParseIP("192.168.1.1")}, nil, nil),
			wantNil: true,
		},
		{
			name:    "no IP address",
			entry:   newEntry("Pool-ABCD", 8765, nil, nil, nil),
			wantNil: true,
		},
		{
			name:    "no port",
			entry:   newEntry("Pool-ABCD", 0, []net.IP{net.ParseIP("192.168.1.1")}, nil, nil),
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := scanner.parseServiceEntry(tt.entry)

			if tt.wantNil {
				if device != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", device)
				}
				return
			}

			if device == nil {
				t.Fatal("parseServiceEntry() = nil, want non-nil device")
			}
			if device.Suffix != tt.wantSuffix {
				t.Errorf("device.Suffix = %v, want %v", device.Suffix, tt.wantSuffix)
			}
			if device.IP != tt.wantIP {
				t.Errorf("device.IP = %v, want %v", device.IP, tt.wantIP)
			}
			if device.Port != tt.wantPort {
				t.Errorf("device.Port = %v, want %v", device.Port, tt.wantPort)
			}
			if device.Name != tt.entry.Instance {
				t.Errorf("device.Name = %v, want %v", device.Name, tt.entry.Instance)
			}
			if time.Since(device.DiscoveredAt) > time.Second {
				t.Errorf("device.DiscoveredAt is not recent: %v", device.DiscoveredAt)
			}
		})
	}
}

func TestScanner_parseServiceEntry_Metadata(t *testing.T) {
	scanner := NewScanner()
	entry := newEntry("Pool-ABCD", 8765, []net.IP{net.ParseIP("192.168.4.16")}, nil,
		[]string{"id=esp32-pool-01", "path=/pair", "flag", "version=1.0"})

	device := scanner.parseServiceEntry(entry)
	if device == nil {
		t.Fatal("parseServiceEntry() = nil, want device")
	}

	expectedMetadata := map[string]string{
		"id":      "esp32-pool-01",
		"path":    "/pair",
		"flag":    "",
		"version": "1.0",
	}
	if len(device.Metadata) != len(expectedMetadata) {
		t.Errorf("device.Metadata has %d entries, want %d", len(device.Metadata), len(expectedMetadata))
	}
	for key, expectedValue := range expectedMetadata {
		if actualValue, ok := device.Metadata[key]; !ok {
			t.Errorf("device.Metadata missing key %q", key)
		} else if actualValue != expectedValue {
			t.Errorf("device.Metadata[%q] = %q, want %q", key, actualValue, expectedValue)
		}
	}
}

func TestNewScanner(t *testing.T) {
	scanner := NewScanner()
	if scanner.Timeout != DefaultScanTimeout {
		t.Errorf("scanner.Timeout = %v, want %v", scanner.Timeout, DefaultScanTimeout)
	}
}

func TestPairingName(t *testing.T) {
	tests := []struct {
		prefix string
		mac    net.HardwareAddr
		want   string
	}{
		{"Pool", net.HardwareAddr{0x24, 0x6f, 0x28, 0x01, 0xab, 0xcd}, "Pool-ABCD"},
		{"Pool", net.HardwareAddr{0xde, 0xad, 0xbe, 0xef, 0x00, 0x0a}, "Pool-000A"},
		{"Spa", nil, "Spa-0000"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := PairingName(tt.prefix, tt.mac); got != tt.want {
				t.Errorf("PairingName() = %s, want %s", got, tt.want)
			}
			if tt.mac != nil && !namePattern.MatchString(PairingName(tt.prefix, tt.mac)) {
				t.Error("pairing name does not match the browse pattern")
			}
		})
	}
}
