// Package provision acquires Wi-Fi credentials through a fallback chain:
// the persisted store (plus configured fallback networks), then the pairing
// endpoint, then the captive portal.
//
// The chain is a state machine advanced one transition per Step so the
// control loop stays responsive while waiting for a user. Connect attempts
// are the only blocking stages and are bounded by the connect timeout.
package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/muurk/poolctl/internal/clock"
	"github.com/muurk/poolctl/internal/credentials"
	"github.com/muurk/poolctl/internal/discovery"
	"github.com/muurk/poolctl/internal/faults"
	"github.com/muurk/poolctl/internal/logging"
	"github.com/muurk/poolctl/internal/server"
	"github.com/muurk/poolctl/internal/wifi"
	"go.uber.org/zap"
)

// Stage is a state of the provisioning chain
type Stage int

const (
	CheckStore Stage = iota
	ConnectStored
	ClearStore
	Pairing
	ConnectPaired
	ClearPaired
	Persist
	Portal
	Done
	Terminal
)

var stageNames = map[Stage]string{
	CheckStore:    "check_store",
	ConnectStored: "connect_stored",
	ClearStore:    "clear_store",
	Pairing:       "pairing",
	ConnectPaired: "connect_paired",
	ClearPaired:   "clear_paired",
	Persist:       "persist",
	Portal:        "portal",
	Done:          "done",
	Terminal:      "terminal",
}

// String returns the stage name
func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Pairing status values sent on the status slot
const (
	StatusWaiting          = "waiting"
	StatusConnected        = "connected"
	StatusSSIDReceived     = "ssid_received"
	StatusPasswordReceived = "password_received"
	StatusCredentialsReady = "credentials_ready"
	StatusConnecting       = "connecting"
	StatusWiFiConnected    = "wifi_connected"
	StatusWiFiFailed       = "wifi_failed"
)

// Transport is a local credential endpoint
type Transport interface {
	Start(name string, write server.WriteFunc) error
	Notify(slot, value string)
	Stop() error
}

// Options wire a Provisioner. Hotspot and Portal may be nil, in which case
// the chain ends at Terminal when pairing times out.
type Options struct {
	Store     *credentials.Store
	Link      wifi.Link
	Hotspot   wifi.Hotspot
	Pairing   Transport
	Portal    Transport
	Clock     clock.Clock
	Fallbacks []credentials.Credentials

	NamePrefix     string
	ConnectTimeout time.Duration
	PairingTimeout time.Duration
	PortalTimeout  time.Duration
	PollInterval   time.Duration
	MaxPayload     int
	ClearOnBoot    bool

	// Observer is told about every stage change
	Observer func(from, to Stage)
}

// Provisioner runs the credential chain. It is driven from one goroutine.
type Provisioner struct {
	opts Options

	stage   Stage
	booted  bool
	stored  *credentials.Credentials
	pending credentials.Credentials
	result  *credentials.Credentials

	pairingInbox *Inbox
	portalInbox  *Inbox
	pairingUp    bool
	portalUp     bool
	deadline     time.Time
}

// New returns a provisioner at CheckStore
func New(opts Options) *Provisioner {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 200 * time.Millisecond
	}
	if opts.MaxPayload <= 0 {
		opts.MaxPayload = 512
	}
	return &Provisioner{
		opts:         opts,
		stage:        CheckStore,
		pairingInbox: NewInbox(false),
		portalInbox:  NewInbox(true),
	}
}

// Stage returns the current stage
func (p *Provisioner) Stage() Stage { return p.stage }

// Result returns the credentials that produced a link once Done
func (p *Provisioner) Result() (credentials.Credentials, bool) {
	if p.stage != Done || p.result == nil {
		return credentials.Credentials{}, false
	}
	return *p.result, true
}

// Name returns the pairing name derived from the link's MAC address
func (p *Provisioner) Name() string {
	return discovery.PairingName(p.opts.NamePrefix, p.opts.Link.HardwareAddr())
}

// Reset restarts the chain at CheckStore, tearing down any transport
func (p *Provisioner) Reset() {
	p.teardown()
	p.result = nil
	p.stored = nil
	p.pending = credentials.Credentials{}
	p.transition(CheckStore)
}

// Close tears down any running transport
func (p *Provisioner) Close() {
	p.teardown()
}

// Acquire steps the chain until it finishes, sleeping the poll interval
// between waiting steps
func (p *Provisioner) Acquire(ctx context.Context) (credentials.Credentials, error) {
	for {
		stage, err := p.Step(ctx)
		switch stage {
		case Done:
			c, _ := p.Result()
			return c, nil
		case Terminal:
			return credentials.Credentials{}, err
		}
		if err := ctx.Err(); err != nil {
			p.teardown()
			return credentials.Credentials{}, err
		}
		if stage == Pairing || stage == Portal {
			p.opts.Clock.Sleep(p.opts.PollInterval)
		}
	}
}

// Step performs at most one stage transition and returns the resulting
// stage. Terminal comes with a ProvisioningFailure.
func (p *Provisioner) Step(ctx context.Context) (Stage, error) {
	switch p.stage {
	case CheckStore:
		p.checkStore()
	case ConnectStored:
		p.connectStored(ctx)
	case ClearStore:
		p.enterPairing()
	case Pairing:
		p.pollPairing(ctx)
	case ConnectPaired:
		p.connectPaired(ctx)
	case ClearPaired:
		p.pending = credentials.Credentials{}
		p.pairingInbox.Reset()
		p.stopPairing()
		p.enterPortal(ctx)
	case Persist:
		if err := p.opts.Store.Save(p.pending); err != nil {
			// The link is up; losing persistence only costs a re-pair after reboot
			logging.Warn("Failed to persist credentials", zap.Error(err))
		}
		result := p.pending
		p.result = &result
		p.teardown()
		p.transition(Done)
	case Portal:
		p.pollPortal(ctx)
	case Terminal:
		return p.stage, faults.NewProvisioningFailure("all credential sources exhausted")
	}

	if p.stage == Terminal {
		return p.stage, faults.NewProvisioningFailure("all credential sources exhausted")
	}
	return p.stage, nil
}

func (p *Provisioner) transition(to Stage) {
	from := p.stage
	if from == to {
		return
	}
	p.stage = to
	logging.LogStage("provisioner", from.String(), to.String())
	if p.opts.Observer != nil {
		p.opts.Observer(from, to)
	}
}

func (p *Provisioner) checkStore() {
	if p.opts.ClearOnBoot && !p.booted {
		logging.Info("Clearing stored credentials on boot")
		if err := p.opts.Store.Clear(); err != nil {
			logging.Warn("Failed to clear stored credentials", zap.Error(err))
		}
	}
	p.booted = true

	stored, err := p.opts.Store.Load()
	if err != nil {
		logging.Warn("Failed to load stored credentials", zap.Error(err))
		stored = nil
	}
	p.stored = stored

	if stored == nil && len(p.opts.Fallbacks) == 0 {
		p.enterPairing()
		return
	}
	p.transition(ConnectStored)
}

// candidates returns stored credentials first, then the fallbacks
func (p *Provisioner) candidates() []credentials.Credentials {
	var list []credentials.Credentials
	if p.stored != nil {
		list = append(list, *p.stored)
	}
	for _, f := range p.opts.Fallbacks {
		f.Source = credentials.SourceFallback
		list = append(list, f)
	}
	return list
}

func (p *Provisioner) connect(ctx context.Context, c credentials.Credentials) error {
	cctx, cancel := context.WithTimeout(ctx, p.opts.ConnectTimeout)
	defer cancel()

	logging.Info("Joining network",
		zap.String("ssid", c.SSID),
		zap.String("source", c.Source.String()),
		zap.Duration("timeout", p.opts.ConnectTimeout),
	)
	err := p.opts.Link.Connect(cctx, c.SSID, c.Secret)
	if err != nil {
		logging.Warn("Join failed", zap.String("ssid", c.SSID), zap.Error(err))
	}
	return err
}

func (p *Provisioner) connectStored(ctx context.Context) {
	for _, c := range p.candidates() {
		if err := p.connect(ctx, c); err == nil {
			result := c
			p.result = &result
			p.transition(Done)
			return
		}
	}

	// Nothing joined: the stored pair is stale. Pairing starts on the next step.
	if p.stored != nil {
		if err := p.opts.Store.Clear(); err != nil {
			logging.Warn("Failed to clear stored credentials", zap.Error(err))
		}
		p.stored = nil
	}
	p.transition(ClearStore)
}

func (p *Provisioner) enterPairing() {
	p.pairingInbox.Reset()
	p.transition(Pairing)

	if p.opts.Pairing == nil {
		p.deadline = p.opts.Clock.Now()
		return
	}

	name := p.Name()
	if err := p.opts.Pairing.Start(name, p.pairingInbox.Write); err != nil {
		logging.Error("Failed to start pairing endpoint", zap.Error(err))
		p.deadline = p.opts.Clock.Now()
		return
	}
	p.pairingUp = true
	p.deadline = p.opts.Clock.Now().Add(p.opts.PairingTimeout)
	logging.Info("Pairing endpoint advertised",
		zap.String("name", name),
		zap.Duration("timeout", p.opts.PairingTimeout),
	)
}

func (p *Provisioner) pollPairing(ctx context.Context) {
	snap := p.pairingInbox.Take()
	p.report(p.opts.Pairing, snap)

	if snap.Scan {
		p.publishScan(ctx, p.opts.Pairing)
	}

	if snap.Ready {
		p.pending = snap.Credentials
		p.pending.Source = credentials.SourcePaired
		p.notify(p.opts.Pairing, StatusCredentialsReady)
		p.transition(ConnectPaired)
		return
	}

	if !p.opts.Clock.Now().Before(p.deadline) {
		logging.Warn("Pairing timed out")
		p.stopPairing()
		p.enterPortal(ctx)
	}
}

func (p *Provisioner) connectPaired(ctx context.Context) {
	p.notify(p.opts.Pairing, StatusConnecting)

	if err := p.pending.Validate(); err != nil {
		logging.Warn("Paired credentials rejected", zap.Error(err))
		p.notify(p.opts.Pairing, StatusWiFiFailed)
		p.transition(ClearPaired)
		return
	}

	if err := p.connect(ctx, p.pending); err != nil {
		p.notify(p.opts.Pairing, StatusWiFiFailed)
		p.transition(ClearPaired)
		return
	}

	p.notify(p.opts.Pairing, StatusWiFiConnected)
	p.transition(Persist)
}

func (p *Provisioner) enterPortal(ctx context.Context) {
	if p.opts.Portal == nil {
		logging.Error("No captive portal configured")
		p.transition(Terminal)
		return
	}

	p.portalInbox.Reset()
	p.transition(Portal)
	name := p.Name()

	// Scan while still a station; most radios cannot scan in AP mode
	p.publishScan(ctx, p.opts.Portal)

	if err := p.startHotspot(ctx, name); err != nil {
		logging.Error("Failed to start hotspot", zap.Error(err))
		p.transition(Terminal)
		return
	}
	if err := p.opts.Portal.Start(name, p.portalInbox.Write); err != nil {
		logging.Error("Failed to start captive portal", zap.Error(err))
		p.stopHotspot()
		p.transition(Terminal)
		return
	}
	p.portalUp = true
	p.deadline = p.opts.Clock.Now().Add(p.opts.PortalTimeout)
	logging.Info("Captive portal up",
		zap.String("name", name),
		zap.Duration("timeout", p.opts.PortalTimeout),
	)
}

func (p *Provisioner) pollPortal(ctx context.Context) {
	snap := p.portalInbox.Take()
	p.report(p.opts.Portal, snap)

	if snap.Scan {
		p.publishScan(ctx, p.opts.Portal)
	}

	if snap.Ready {
		c := snap.Credentials
		c.Source = credentials.SourcePortal
		if p.portalConnect(ctx, c) {
			p.pending = c
			p.transition(Persist)
			return
		}
	}

	if !p.opts.Clock.Now().Before(p.deadline) {
		logging.Error("Captive portal timed out")
		p.teardown()
		p.transition(Terminal)
	}
}

// portalConnect leaves AP mode to try c and restores the hotspot on failure
func (p *Provisioner) portalConnect(ctx context.Context, c credentials.Credentials) bool {
	p.notify(p.opts.Portal, StatusConnecting)

	if err := c.Validate(); err != nil {
		logging.Warn("Portal credentials rejected", zap.Error(err))
		p.notify(p.opts.Portal, StatusWiFiFailed)
		return false
	}

	p.stopHotspot()
	if err := p.connect(ctx, c); err != nil {
		if err := p.startHotspot(ctx, p.Name()); err != nil {
			logging.Error("Failed to restore hotspot", zap.Error(err))
		}
		p.notify(p.opts.Portal, StatusWiFiFailed)
		return false
	}

	p.notify(p.opts.Portal, StatusWiFiConnected)
	return true
}

func (p *Provisioner) report(t Transport, snap Snapshot) {
	if snap.NewSSID {
		p.notify(t, StatusSSIDReceived)
	}
	if snap.NewSecret {
		p.notify(t, StatusPasswordReceived)
	}
}

func (p *Provisioner) publishScan(ctx context.Context, t Transport) {
	if t == nil {
		return
	}
	networks, err := p.opts.Link.Scan(ctx)
	if err != nil {
		logging.Warn("Network scan failed", zap.Error(err))
		networks = nil
	}
	payload := NetworksJSON(networks, p.opts.MaxPayload)
	logging.Debug("Publishing scan results",
		zap.Int("found", len(networks)),
		zap.Int("bytes", len(payload)),
	)
	t.Notify(server.SlotNetworks, payload)
}

func (p *Provisioner) notify(t Transport, status string) {
	if t == nil {
		return
	}
	t.Notify(server.SlotStatus, status)
}

func (p *Provisioner) startHotspot(ctx context.Context, name string) error {
	if p.opts.Hotspot == nil {
		return nil
	}
	return p.opts.Hotspot.StartHotspot(ctx, name)
}

func (p *Provisioner) stopHotspot() {
	if p.opts.Hotspot == nil {
		return
	}
	if err := p.opts.Hotspot.StopHotspot(); err != nil {
		logging.Warn("Failed to stop hotspot", zap.Error(err))
	}
}

func (p *Provisioner) stopPairing() {
	if !p.pairingUp {
		return
	}
	p.pairingUp = false
	if err := p.opts.Pairing.Stop(); err != nil {
		logging.Warn("Failed to stop pairing endpoint", zap.Error(err))
	}
}

func (p *Provisioner) stopPortal() {
	if !p.portalUp {
		return
	}
	p.portalUp = false
	if err := p.opts.Portal.Stop(); err != nil {
		logging.Warn("Failed to stop captive portal", zap.Error(err))
	}
	p.stopHotspot()
}

func (p *Provisioner) teardown() {
	p.stopPairing()
	p.stopPortal()
}
