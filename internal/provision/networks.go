package provision

import (
	"encoding/json"
	"strings"

	"github.com/muurk/poolctl/internal/server"
	"github.com/muurk/poolctl/internal/wifi"
)

// budgetHeadroom is kept free below the transport's maximum payload for the
// frame envelope
const budgetHeadroom = 32

// NetworksJSON renders networks as a JSON array that fits in one transport
// message of maxPayload bytes. The bare array stays within maxPayload minus
// the envelope headroom, and the array sent as a networks frame, escaped and
// newline-terminated the way the transport encodes it, stays within
// maxPayload. Entries with an empty SSID are skipped and whole entries are
// dropped once the budget is spent, so the result is always a valid array.
func NetworksJSON(networks []wifi.Network, maxPayload int) string {
	budget := maxPayload - budgetHeadroom

	var b strings.Builder
	b.WriteByte('[')

	n := 0
	for _, nw := range networks {
		if nw.SSID == "" {
			continue
		}
		entry, err := json.Marshal(nw)
		if err != nil {
			continue
		}

		candidate := b.String()
		if n > 0 {
			candidate += ","
		}
		candidate += string(entry) + "]"
		if len(candidate) > budget || FrameSize(server.SlotNetworks, candidate) > maxPayload {
			break
		}

		if n > 0 {
			b.WriteByte(',')
		}
		b.Write(entry)
		n++
	}

	b.WriteByte(']')
	return b.String()
}

// FrameSize is the number of bytes a slot notification occupies on the wire
func FrameSize(slot, value string) int {
	data, err := json.Marshal(server.Frame{Slot: slot, Value: value})
	if err != nil {
		return 0
	}
	// The WebSocket JSON writer terminates each message with a newline
	return len(data) + 1
}
