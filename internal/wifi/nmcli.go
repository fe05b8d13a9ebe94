package wifi

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"

	"github.com/muurk/poolctl/internal/faults"
	"github.com/muurk/poolctl/internal/logging"
	"go.uber.org/zap"
)

const hotspotConnection = "poolctl-portal"

type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w: %s", name, args[0], err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// NM drives NetworkManager through nmcli
type NM struct {
	iface string
	run   runner
}

// NewNM returns a link bound to the wireless interface iface
func NewNM(iface string) *NM {
	return &NM{iface: iface, run: execRunner}
}

// Connect joins ssid. An empty secret joins an open network.
func (n *NM) Connect(ctx context.Context, ssid, secret string) error {
	args := []string{"device", "wifi", "connect", ssid}
	if secret != "" {
		args = append(args, "password", secret)
	}
	args = append(args, "ifname", n.iface)

	if _, err := n.run(ctx, "nmcli", args...); err != nil {
		if ctx.Err() != nil {
			return faults.NewLinkFailure(fmt.Sprintf("timed out joining %q", ssid), ctx.Err())
		}
		return faults.NewLinkFailure(fmt.Sprintf("failed to join %q", ssid), err)
	}

	logging.Info("Wi-Fi associated", zap.String("ssid", ssid), zap.String("iface", n.iface))
	return nil
}

// Disconnect drops the station link
func (n *NM) Disconnect() error {
	_, err := n.run(context.Background(), "nmcli", "device", "disconnect", n.iface)
	return err
}

// Connected reports whether the interface has an active station connection
func (n *NM) Connected() bool {
	return n.Status().Connected
}

// Status returns the active access point and the interface address
func (n *NM) Status() Status {
	out, err := n.run(context.Background(), "nmcli", "-t", "-f", "ACTIVE,SSID,SIGNAL", "device", "wifi", "list", "ifname", n.iface, "--rescan", "no")
	if err != nil {
		logging.Debug("Wi-Fi status query failed", zap.Error(err))
		return Status{}
	}

	for _, line := range strings.Split(string(out), "\n") {
		fields := splitTerse(line)
		if len(fields) < 3 || fields[0] != "yes" {
			continue
		}
		signal, _ := strconv.Atoi(fields[2])
		return Status{
			Connected: true,
			SSID:      fields[1],
			IP:        interfaceIP(n.iface),
			RSSI:      signalToDBm(signal),
		}
	}
	return Status{}
}

// Scan rescans and returns visible networks, strongest first as nmcli orders them
func (n *NM) Scan(ctx context.Context) ([]Network, error) {
	out, err := n.run(ctx, "nmcli", "-t", "-f", "SSID,SIGNAL,SECURITY", "device", "wifi", "list", "ifname", n.iface, "--rescan", "yes")
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	return parseScan(string(out)), nil
}

// HardwareAddr returns the MAC address of the interface
func (n *NM) HardwareAddr() net.HardwareAddr {
	ifi, err := net.InterfaceByName(n.iface)
	if err != nil {
		return nil
	}
	return ifi.HardwareAddr
}

// StartHotspot brings up an open access point with shared IPv4
func (n *NM) StartHotspot(ctx context.Context, ssid string) error {
	// A stale profile from a previous run would make "add" create a duplicate
	_, _ = n.run(ctx, "nmcli", "connection", "delete", hotspotConnection)

	if _, err := n.run(ctx, "nmcli", "connection", "add",
		"type", "wifi",
		"ifname", n.iface,
		"con-name", hotspotConnection,
		"autoconnect", "no",
		"ssid", ssid,
		"802-11-wireless.mode", "ap",
		"ipv4.method", "shared",
	); err != nil {
		return fmt.Errorf("create hotspot profile: %w", err)
	}

	if _, err := n.run(ctx, "nmcli", "connection", "up", hotspotConnection); err != nil {
		return fmt.Errorf("start hotspot: %w", err)
	}

	logging.Info("Hotspot started", zap.String("ssid", ssid), zap.String("iface", n.iface))
	return nil
}

// StopHotspot removes the access point profile
func (n *NM) StopHotspot() error {
	if _, err := n.run(context.Background(), "nmcli", "connection", "delete", hotspotConnection); err != nil {
		return fmt.Errorf("stop hotspot: %w", err)
	}
	logging.Info("Hotspot stopped")
	return nil
}

func parseScan(out string) []Network {
	var networks []Network
	seen := make(map[string]bool)

	for _, line := range strings.Split(out, "\n") {
		fields := splitTerse(line)
		if len(fields) < 3 || fields[0] == "" || seen[fields[0]] {
			continue
		}
		seen[fields[0]] = true

		signal, _ := strconv.Atoi(fields[1])
		security := strings.TrimSpace(fields[2])
		networks = append(networks, Network{
			SSID: fields[0],
			RSSI: signalToDBm(signal),
			Open: security == "" || security == "--",
		})
	}
	return networks
}

// splitTerse splits one line of nmcli terse output, honouring \: and \\ escapes
func splitTerse(line string) []string {
	if line == "" {
		return nil
	}

	var fields []string
	var cur strings.Builder
	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(fields, cur.String())
}

// signalToDBm maps NetworkManager's 0-100 quality to an approximate RSSI
func signalToDBm(signal int) int {
	if signal <= 0 {
		return -100
	}
	if signal >= 100 {
		return -50
	}
	return signal/2 - 100
}

func interfaceIP(iface string) string {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return ""
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.To4() != nil {
			return ipnet.IP.String()
		}
	}
	return ""
}
