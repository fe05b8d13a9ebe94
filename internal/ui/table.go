package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muurk/poolctl/internal/discovery"
	"github.com/muurk/poolctl/internal/wifi"
)

// Table renders rows in left-aligned columns sized to their widest cell
type Table struct {
	Headers []string
	Rows    [][]string
}

// Render returns the table; cells are padded to plain-text width before
// styling so colors do not skew the alignment
func (t Table) Render() string {
	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	var b strings.Builder
	b.WriteString(t.line(t.Headers, widths, TableHeaderStyle))
	for _, row := range t.Rows {
		b.WriteByte('\n')
		b.WriteString(t.line(row, widths, TableCellStyle))
	}
	return b.String()
}

func (t Table) line(cells []string, widths []int, style lipgloss.Style) string {
	parts := make([]string, len(widths))
	for i := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		pad := widths[i] - lipgloss.Width(cell)
		parts[i] = style.Render(cell) + strings.Repeat(" ", pad)
	}
	return "  " + strings.TrimRight(strings.Join(parts, "  "), " ")
}

// SignalBars renders an RSSI as a four-step bar
func SignalBars(rssi int) string {
	bars := 1
	switch {
	case rssi >= -50:
		bars = 4
	case rssi >= -60:
		bars = 3
	case rssi >= -70:
		bars = 2
	}
	return strings.Repeat("▮", bars) + strings.Repeat("▯", 4-bars)
}

func signalColor(rssi int) lipgloss.Color {
	switch {
	case rssi >= -60:
		return SuccessColor
	case rssi >= -70:
		return WarningColor
	default:
		return ErrorColor
	}
}

// NetworksTable lists scan results strongest first, skipping hidden networks
func NetworksTable(networks []wifi.Network) Table {
	sorted := make([]wifi.Network, 0, len(networks))
	for _, n := range networks {
		if n.SSID != "" {
			sorted = append(sorted, n)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RSSI > sorted[j].RSSI })

	t := Table{Headers: []string{"SSID", "SIGNAL", "RSSI", "SECURITY"}}
	for _, n := range sorted {
		security := "WPA"
		if n.Open {
			security = "open"
		}
		bars := lipgloss.NewStyle().Foreground(signalColor(n.RSSI)).Render(SignalBars(n.RSSI))
		t.Rows = append(t.Rows, []string{n.SSID, bars, fmt.Sprintf("%d dBm", n.RSSI), security})
	}
	return t
}

// DevicesTable lists devices found in pairing mode
func DevicesTable(devices []*discovery.Device) Table {
	t := Table{Headers: []string{"NAME", "ADDRESS", "ID", "VERSION"}}
	for _, d := range devices {
		t.Rows = append(t.Rows, []string{
			d.Name,
			fmt.Sprintf("%s:%d", d.IP, d.Port),
			d.GetMetadata("id"),
			d.GetMetadata("version"),
		})
	}
	return t
}

// KeyValues renders an aligned key/value listing
func KeyValues(pairs ...Param) string {
	lines := make([]string, len(pairs))
	for i, p := range pairs {
		lines[i] = "  " + KeyStyle.Render(p.Key) + ValueStyle.Render(p.Value)
	}
	return strings.Join(lines, "\n")
}
