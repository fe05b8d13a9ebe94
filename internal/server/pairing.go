package server

import (
	"net/http"

	"github.com/muurk/poolctl/internal/discovery"
	"github.com/muurk/poolctl/internal/logging"
	"go.uber.org/zap"
)

// Pairing is the short-range pairing endpoint: a WebSocket at /pair
// advertised as _poolctl-pair._tcp
type Pairing struct {
	*base
}

// NewPairing returns a stopped pairing endpoint
func NewPairing(config Config) *Pairing {
	return &Pairing{base: newBase(config, discovery.PairingService)}
}

// Handler returns the HTTP handler of the endpoint; write receives slot writes
func (p *Pairing) Handler(write WriteFunc) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(discovery.DefaultPairingPath, func(w http.ResponseWriter, r *http.Request) {
		p.hub.serve(w, r, write, Frame{Slot: SlotStatus, Value: "connected"})
	})
	return mux
}

// Start listens and advertises the endpoint as name
func (p *Pairing) Start(name string, write WriteFunc) error {
	txt := []string{
		"id=" + p.config.DeviceID,
		"path=" + discovery.DefaultPairingPath,
		"version=" + p.config.Version,
	}
	if err := p.start(name, p.Handler(write), txt); err != nil {
		return err
	}
	p.hub.notify(SlotStatus, "waiting")
	return nil
}

// Notify sends a slot value to every connected client
func (p *Pairing) Notify(slot, value string) {
	logging.Debug("Pairing notification", zap.String("slot", slot), zap.String("value", value))
	p.hub.notify(slot, value)
}

// Stop tears the endpoint down
func (p *Pairing) Stop() error {
	return p.stop()
}

// Addr returns the bound address, or "" when stopped
func (p *Pairing) Addr() string {
	return p.addr()
}
