package credentials

import (
	"fmt"

	"github.com/muurk/poolctl/internal/logging"
	"go.uber.org/zap"
)

const (
	keySSID   = "wifi.ssid"
	keySecret = "wifi.secret"
)

// Store persists at most one credential pair. Saving overwrites; nothing is merged.
type Store struct {
	kv KV
}

// NewStore wraps a KV
func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

// Load returns the persisted pair, or nil when none is stored.
// Loaded credentials always report SourceStored.
func (s *Store) Load() (*Credentials, error) {
	ssid, ok, err := s.kv.Get(keySSID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ssid: %w", err)
	}
	if !ok || ssid == "" {
		return nil, nil
	}

	secret, _, err := s.kv.Get(keySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to load secret: %w", err)
	}

	return &Credentials{SSID: ssid, Secret: secret, Source: SourceStored}, nil
}

// Save persists c, replacing whatever was stored
func (s *Store) Save(c Credentials) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := s.kv.Set(keySecret, c.Secret); err != nil {
		return fmt.Errorf("failed to store secret: %w", err)
	}
	// ssid last: Load treats a missing ssid as "nothing stored"
	if err := s.kv.Set(keySSID, c.SSID); err != nil {
		return fmt.Errorf("failed to store ssid: %w", err)
	}

	logging.Info("Credentials persisted",
		zap.String("ssid", c.SSID),
		zap.String("source", c.Source.String()),
	)
	return nil
}

// Clear removes the stored pair
func (s *Store) Clear() error {
	if err := s.kv.Delete(keySSID); err != nil {
		return fmt.Errorf("failed to clear ssid: %w", err)
	}
	if err := s.kv.Delete(keySecret); err != nil {
		return fmt.Errorf("failed to clear secret: %w", err)
	}
	logging.Info("Stored credentials cleared")
	return nil
}
