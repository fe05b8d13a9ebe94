package session

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/muurk/poolctl/internal/logging"
	"go.uber.org/zap"
)

// NewTLSConfig trusts the CA certificates in the PEM file at trustAnchor.
// Certificate validity is checked against the system clock, which is why the
// supervisor waits for time sync before connecting.
func NewTLSConfig(trustAnchor, serverName string) (*tls.Config, error) {
	pem, err := os.ReadFile(trustAnchor)
	if err != nil {
		return nil, fmt.Errorf("failed to read trust anchor: %w", err)
	}

	cfg, err := NewTLSConfigFromMemory(pem, serverName)
	if err != nil {
		return nil, err
	}

	logging.Info("TLS configuration created from trust anchor",
		zap.String("trust_anchor", trustAnchor),
		zap.String("server_name", serverName),
	)
	return cfg, nil
}

// NewTLSConfigFromMemory trusts the PEM-encoded CA certificates in pem
func NewTLSConfigFromMemory(pem []byte, serverName string) (*tls.Config, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("trust anchor contains no PEM certificates")
	}

	return &tls.Config{
		RootCAs:    pool,
		ServerName: serverName,
		MinVersion: tls.VersionTLS12,
	}, nil
}
