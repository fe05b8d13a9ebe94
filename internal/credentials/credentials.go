// Package credentials holds the single Wi-Fi credential pair of the device
// and persists it through a small key-value store.
package credentials

import (
	"fmt"

	"github.com/muurk/poolctl/internal/faults"
)

// Source records where a credential pair came from
type Source int

const (
	SourceStored Source = iota
	SourcePaired
	SourcePortal
	SourceFallback
)

// String returns the lowercase source name
func (s Source) String() string {
	switch s {
	case SourceStored:
		return "stored"
	case SourcePaired:
		return "paired"
	case SourcePortal:
		return "portal"
	case SourceFallback:
		return "fallback"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// Credentials is a network credential pair
type Credentials struct {
	SSID   string
	Secret string
	Source Source
}

// Open reports whether the network needs no secret
func (c Credentials) Open() bool {
	return c.Secret == ""
}

// Validate checks the pair against 802.11 limits: SSID 1-32 bytes, WPA2
// passphrase 8-63 bytes, or no secret at all for open networks.
func (c Credentials) Validate() error {
	if c.SSID == "" {
		return faults.NewValidationError("SSID cannot be empty")
	}
	if len(c.SSID) > 32 {
		return faults.NewValidationError(fmt.Sprintf("SSID too long (max 32 bytes): %d bytes", len(c.SSID)))
	}
	if c.Open() {
		return nil
	}
	if len(c.Secret) < 8 {
		return faults.NewValidationError(fmt.Sprintf("passphrase too short (min 8 chars): %d chars", len(c.Secret)))
	}
	if len(c.Secret) > 63 {
		return faults.NewValidationError(fmt.Sprintf("passphrase too long (max 63 chars): %d chars", len(c.Secret)))
	}
	return nil
}

// String never includes the secret
func (c Credentials) String() string {
	return fmt.Sprintf("%s (%s)", c.SSID, c.Source)
}
