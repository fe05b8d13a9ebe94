// Package supervisor owns the connectivity state of the device: it drives
// the credential provisioner, brings up the link, waits for a plausible
// clock, opens the broker session and keeps all three alive afterwards.
package supervisor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/muurk/poolctl/internal/clock"
	"github.com/muurk/poolctl/internal/credentials"
	"github.com/muurk/poolctl/internal/faults"
	"github.com/muurk/poolctl/internal/logging"
	"github.com/muurk/poolctl/internal/provision"
	"github.com/muurk/poolctl/internal/session"
	"github.com/muurk/poolctl/internal/wifi"
	"go.uber.org/zap"
)

// State is the connectivity state
type State int32

const (
	Unprovisioned State = iota
	Provisioning
	LinkUp
	TimeSynced
	SessionUp
	Degraded
)

// String returns the state name
func (s State) String() string {
	switch s {
	case Unprovisioned:
		return "unprovisioned"
	case Provisioning:
		return "provisioning"
	case LinkUp:
		return "link_up"
	case TimeSynced:
		return "time_synced"
	case SessionUp:
		return "session_up"
	case Degraded:
		return "degraded"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

const defaultSyncPoll = 500 * time.Millisecond

// Options wire a Supervisor
type Options struct {
	Link        wifi.Link
	Session     session.Session
	Provisioner *provision.Provisioner
	Store       *credentials.Store
	Clock       clock.Clock
	Fallbacks   []credentials.Credentials

	// Topics are subscribed after every session connect
	Topics []string
	// Announce publishes the full retained state after every session connect
	Announce func()

	ConnectTimeout    time.Duration
	RelinkInterval    time.Duration
	MaxRelinkFailures int
	MinEpoch          int64
	SyncTimeout       time.Duration
	SyncPoll          time.Duration
}

// Supervisor is driven by Tick from the control loop
type Supervisor struct {
	opts Options

	state  atomic.Int32
	busy   atomic.Bool
	cached *credentials.Credentials

	relinkFailures int
	lastRelink     time.Time
}

// New returns a supervisor in Unprovisioned
func New(opts Options) *Supervisor {
	if opts.SyncPoll <= 0 {
		opts.SyncPoll = defaultSyncPoll
	}
	if opts.MaxRelinkFailures <= 0 {
		opts.MaxRelinkFailures = 3
	}
	return &Supervisor{opts: opts}
}

// State returns the current connectivity state
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Credentials returns the credentials the link was last brought up with
func (s *Supervisor) Credentials() (credentials.Credentials, bool) {
	if s.cached == nil {
		return credentials.Credentials{}, false
	}
	return *s.cached, true
}

func (s *Supervisor) setState(to State) {
	from := s.State()
	if from == to {
		return
	}
	s.state.Store(int32(to))
	logging.LogStage("supervisor", from.String(), to.String())
}

// CanPublish reports whether retained publishes will be attempted
func (s *Supervisor) CanPublish() bool {
	return s.State() == SessionUp && s.opts.Session.Connected()
}

// PublishRetained publishes on the session. It fails with a SessionFailure
// unless the session is up.
func (s *Supervisor) PublishRetained(topic, payload string) error {
	if !s.CanPublish() {
		return faults.NewSessionFailure("session not up", nil)
	}
	if err := s.opts.Session.PublishRetained(topic, payload); err != nil {
		return faults.NewSessionFailure(fmt.Sprintf("publish to %s failed", topic), err)
	}
	return nil
}

// Tick advances the connectivity state machine. A call made while another
// Tick is running returns the current state without doing anything.
// A ProvisioningFailure means every credential source is exhausted and the
// caller should restart the device.
func (s *Supervisor) Tick(ctx context.Context) (State, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return s.State(), nil
	}
	defer s.busy.Store(false)

	switch s.State() {
	case Unprovisioned:
		s.setState(Provisioning)
		return s.provision(ctx)
	case Provisioning:
		return s.provision(ctx)
	case LinkUp, TimeSynced:
		if !s.opts.Link.Connected() {
			s.linkLost()
			return s.State(), nil
		}
		return s.bringUp(ctx)
	case SessionUp:
		return s.maintain(ctx)
	case Degraded:
		return s.relink(ctx)
	}
	return s.State(), nil
}

// provision steps the provisioner once
func (s *Supervisor) provision(ctx context.Context) (State, error) {
	stage, err := s.opts.Provisioner.Step(ctx)
	switch stage {
	case provision.Terminal:
		return s.State(), err
	case provision.Done:
		c, _ := s.opts.Provisioner.Result()
		s.cached = &c
		s.relinkFailures = 0
		logging.Info("Link up", zap.String("credentials", c.String()))
		s.setState(LinkUp)
		return s.bringUp(ctx)
	}
	return s.State(), nil
}

// bringUp runs the remaining stages after the link is up
func (s *Supervisor) bringUp(ctx context.Context) (State, error) {
	if s.State() == LinkUp {
		if err := s.syncTime(); err != nil {
			logging.Warn("Continuing without a synced clock", zap.Error(err))
		}
		s.setState(TimeSynced)
	}
	if err := s.connectSession(ctx); err != nil {
		return s.State(), err
	}
	return s.State(), nil
}

// syncTime waits, bounded, for the clock to pass the minimum plausible epoch.
// Certificate validation needs it.
func (s *Supervisor) syncTime() error {
	clk := s.opts.Clock
	deadline := clk.Now().Add(s.opts.SyncTimeout)
	for {
		now := clk.Now()
		if now.Unix() >= s.opts.MinEpoch {
			logging.Info("Clock synced", zap.Time("now", now))
			return nil
		}
		if !now.Before(deadline) {
			return faults.NewTimeSyncFailure(fmt.Sprintf("clock still at %s after %s", now.UTC().Format(time.RFC3339), s.opts.SyncTimeout))
		}
		clk.Sleep(s.opts.SyncPoll)
	}
}

// connectSession connects, subscribes and republishes. Every step is
// idempotent, so it runs unchanged on reconnect.
func (s *Supervisor) connectSession(ctx context.Context) error {
	sess := s.opts.Session
	if err := sess.Connect(ctx); err != nil {
		logging.Warn("Broker connect failed", zap.Error(err))
		return faults.NewSessionFailure("broker connect failed", err)
	}
	if err := sess.Subscribe(s.opts.Topics); err != nil {
		logging.Warn("Subscribe failed", zap.Error(err))
		sess.Disconnect()
		return faults.NewSessionFailure("subscribe failed", err)
	}
	s.setState(SessionUp)
	if s.opts.Announce != nil {
		s.opts.Announce()
	}
	return nil
}

// maintain watches link and session once they are up
func (s *Supervisor) maintain(ctx context.Context) (State, error) {
	if !s.opts.Link.Connected() {
		s.linkLost()
		return s.State(), nil
	}
	if s.opts.Session.Connected() {
		return s.State(), nil
	}

	logging.Warn("Broker session lost, reconnecting")
	s.setState(TimeSynced)
	return s.bringUp(ctx)
}

func (s *Supervisor) linkLost() {
	logging.Warn("Link lost")
	s.opts.Session.Disconnect()
	s.relinkFailures = 0
	s.lastRelink = time.Time{}
	s.setState(Degraded)
}

// candidates returns the cached credentials followed by the fallbacks
func (s *Supervisor) candidates() []credentials.Credentials {
	var list []credentials.Credentials
	if s.cached != nil {
		list = append(list, *s.cached)
	}
	for _, f := range s.opts.Fallbacks {
		if s.cached != nil && f.SSID == s.cached.SSID {
			continue
		}
		f.Source = credentials.SourceFallback
		list = append(list, f)
	}
	return list
}

// relink retries the link at most once per RelinkInterval. Too many
// consecutive failures mean the cached credentials are stale; they are
// cleared and the provisioner starts over.
func (s *Supervisor) relink(ctx context.Context) (State, error) {
	now := s.opts.Clock.Now()
	if !s.lastRelink.IsZero() && now.Sub(s.lastRelink) < s.opts.RelinkInterval {
		return s.State(), nil
	}
	s.lastRelink = now

	var lastErr error
	for _, c := range s.candidates() {
		cctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
		err := s.opts.Link.Connect(cctx, c.SSID, c.Secret)
		cancel()
		if err == nil {
			cc := c
			s.cached = &cc
			s.relinkFailures = 0
			logging.Info("Link restored", zap.String("credentials", c.String()))
			s.setState(LinkUp)
			return s.bringUp(ctx)
		}
		lastErr = err
	}

	s.relinkFailures++
	logging.Warn("Relink failed",
		zap.Int("attempt", s.relinkFailures),
		zap.Int("max", s.opts.MaxRelinkFailures),
		zap.Error(lastErr),
	)
	if s.relinkFailures < s.opts.MaxRelinkFailures {
		return s.State(), faults.NewLinkFailure("relink failed", lastErr)
	}

	logging.Warn("Cached credentials no longer work, provisioning again")
	if err := s.opts.Store.Clear(); err != nil {
		logging.Warn("Failed to clear stored credentials", zap.Error(err))
	}
	s.cached = nil
	s.relinkFailures = 0
	s.opts.Provisioner.Reset()
	s.setState(Provisioning)
	return s.State(), nil
}
