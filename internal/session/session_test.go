package session

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/muurk/poolctl/internal/faults"
)

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		opts Options
		want string
	}{
		{Options{Host: "broker.local", Port: 8883, TrustAnchor: "/etc/poolctl/ca.pem"}, "ssl://broker.local:8883"},
		{Options{Host: "127.0.0.1", Port: 1883}, "tcp://127.0.0.1:1883"},
	}
	for _, tt := range tests {
		if got := tt.opts.BrokerURL(); got != tt.want {
			t.Errorf("BrokerURL() = %s, want %s", got, tt.want)
		}
	}
}

func selfSignedCA(t *testing.T) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "poolctl test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestNewTLSConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(path, selfSignedCA(t), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewTLSConfig(path, "broker.local")
	if err != nil {
		t.Fatalf("NewTLSConfig() error = %v", err)
	}
	if cfg.RootCAs == nil || cfg.ServerName != "broker.local" {
		t.Errorf("config = %+v", cfg)
	}
}

func TestNewTLSConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewTLSConfig(filepath.Join(dir, "missing.pem"), "x"); err == nil {
		t.Error("missing trust anchor should fail")
	}
	if _, err := NewTLSConfigFromMemory([]byte("not a certificate"), "x"); err == nil {
		t.Error("non-PEM trust anchor should fail")
	}
}

func TestNewMQTT_BadTrustAnchor(t *testing.T) {
	_, err := NewMQTT(Options{Host: "broker.local", Port: 8883, ClientID: "dev", TrustAnchor: "/nonexistent/ca.pem"})
	if !faults.Is(err, faults.ErrTypeSession) {
		t.Errorf("NewMQTT() error = %v, want session failure", err)
	}
}

type stubMessage struct {
	topic   string
	payload []byte
}

func (m stubMessage) Duplicate() bool   { return false }
func (m stubMessage) Qos() byte         { return 1 }
func (m stubMessage) Retained() bool    { return false }
func (m stubMessage) Topic() string     { return m.topic }
func (m stubMessage) MessageID() uint16 { return 0 }
func (m stubMessage) Payload() []byte   { return m.payload }
func (m stubMessage) Ack()              {}

func TestMQTT_InboundQueueOrder(t *testing.T) {
	s, err := NewMQTT(Options{Host: "127.0.0.1", Port: 1883, ClientID: "dev", ConnectTimeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if s.Connected() {
		t.Fatal("fresh client reports connected")
	}

	s.onMessage(nil, stubMessage{"devices/dev/pump/set", []byte("ON")})
	s.onMessage(nil, stubMessage{"devices/dev/valve/set", []byte("2")})
	s.onMessage(nil, stubMessage{"devices/dev/pump/set", []byte("OFF")})

	got := s.Drain()
	want := []string{"ON", "2", "OFF"}
	if len(got) != len(want) {
		t.Fatalf("Drain() = %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		if string(got[i].Payload) != want[i] {
			t.Errorf("message %d = %s, want %s", i, got[i].Payload, want[i])
		}
	}
	if len(s.Drain()) != 0 {
		t.Error("second Drain() should be empty")
	}
}

func TestFake(t *testing.T) {
	f := NewFake("dev")
	ctx := context.Background()

	if err := f.PublishRetained("devices/dev/pump/state", "ON"); err == nil {
		t.Error("publish before connect should fail")
	}

	f.FailConnect(errors.New("refused"))
	if err := f.Connect(ctx); err == nil || f.Connected() {
		t.Fatal("Connect() should fail")
	}

	f.FailConnect(nil)
	if err := f.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	if p, ok := f.Last(AvailabilityTopic("dev")); !ok || p != Online {
		t.Errorf("availability = %q, %v", p, ok)
	}
	if f.Connects() != 2 {
		t.Errorf("Connects() = %d, want 2", f.Connects())
	}

	f.Inject("devices/dev/pump/set", "ON")
	if msgs := f.Drain(); len(msgs) != 1 || msgs[0].Topic != "devices/dev/pump/set" {
		t.Errorf("Drain() = %+v", msgs)
	}
}
