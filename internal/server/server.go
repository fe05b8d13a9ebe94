package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/muurk/poolctl/internal/discovery"
	"github.com/muurk/poolctl/internal/logging"
	"go.uber.org/zap"
)

// Slots of the credential protocol
const (
	SlotSSID     = "ssid"
	SlotSecret   = "secret"
	SlotScan     = "scan"
	SlotStatus   = "status"
	SlotNetworks = "networks"
)

// WriteFunc receives an inbound slot write. It runs on a connection
// goroutine and must not block.
type WriteFunc func(slot, value string)

// Config holds the listener configuration shared by both transports
type Config struct {
	Listen     string
	MaxPayload int
	DeviceID   string
	Version    string
	// Advertise registers the transport over mDNS
	Advertise bool
}

// base runs an HTTP server with a WebSocket hub and an optional mDNS advertisement
type base struct {
	config  Config
	service string
	hub     *hub

	mu       sync.Mutex
	listener net.Listener
	http     *http.Server
	adv      *discovery.Advertisement
	wg       sync.WaitGroup
}

func newBase(config Config, service string) *base {
	return &base{
		config:  config,
		service: service,
		hub:     newHub(config.MaxPayload),
	}
}

// start listens and serves handler; name is the advertised instance name
func (b *base) start(name string, handler http.Handler, txt []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.listener != nil {
		return fmt.Errorf("already running")
	}

	listener, err := net.Listen("tcp", b.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", b.config.Listen, err)
	}
	b.listener = listener
	b.http = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	b.wg.Add(1)
	go func(srv *http.Server) {
		defer b.wg.Done()
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Transport server stopped", zap.String("service", b.service), zap.Error(err))
		}
	}(b.http)

	logging.Info("Transport listening",
		zap.String("service", b.service),
		zap.String("addr", listener.Addr().String()),
		zap.String("name", name),
	)

	if b.config.Advertise {
		port := listener.Addr().(*net.TCPAddr).Port
		adv, err := discovery.Advertise(name, b.service, port, txt)
		if err != nil {
			// The transport still works by address; only discovery is lost
			logging.Warn("mDNS advertisement failed", zap.Error(err))
		} else {
			b.adv = adv
		}
	}
	return nil
}

// addr returns the bound address, or "" when stopped
func (b *base) addr() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listener == nil {
		return ""
	}
	return b.listener.Addr().String()
}

func (b *base) stop() error {
	b.mu.Lock()
	srv, adv := b.http, b.adv
	b.http, b.adv, b.listener = nil, nil, nil
	b.mu.Unlock()

	if srv == nil {
		return nil
	}

	adv.Shutdown()
	b.hub.closeAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close", zap.String("service", b.service))
	}

	logging.Info("Transport stopped", zap.String("service", b.service))
	return err
}
