// Package device assembles the controller from its configuration and runs
// the single control loop that owns every state machine.
package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/muurk/poolctl/internal/actuator"
	"github.com/muurk/poolctl/internal/automation"
	"github.com/muurk/poolctl/internal/clock"
	"github.com/muurk/poolctl/internal/config"
	"github.com/muurk/poolctl/internal/credentials"
	"github.com/muurk/poolctl/internal/faults"
	"github.com/muurk/poolctl/internal/hw"
	"github.com/muurk/poolctl/internal/logging"
	"github.com/muurk/poolctl/internal/provision"
	"github.com/muurk/poolctl/internal/router"
	"github.com/muurk/poolctl/internal/session"
	"github.com/muurk/poolctl/internal/supervisor"
	"github.com/muurk/poolctl/internal/telemetry"
	"github.com/muurk/poolctl/internal/wifi"
	"go.uber.org/zap"
)

// ExitReboot is the process exit code asking the service manager to
// restart the device after provisioning gave up
const ExitReboot = 3

// Options are the collaborators of a Device. Probe, Hotspot and the
// transports may be nil.
type Options struct {
	Clock   clock.Clock
	Link    wifi.Link
	Hotspot wifi.Hotspot
	Session session.Session
	Bank    hw.Bank
	// Sensor returns the feedback input of an actuator
	Sensor  func(cfg config.ActuatorConfig) (hw.AnalogInput, error)
	Probe   hw.Thermometer
	KV      credentials.KV
	Pairing provision.Transport
	Portal  provision.Transport
}

// Device is the assembled controller
type Device struct {
	cfg   *config.Config
	clock clock.Clock
	bank  hw.Bank

	actuators   []*actuator.Actuator
	timer       *automation.Timer
	publisher   *telemetry.Publisher
	router      *router.Router
	provisioner *provision.Provisioner
	supervisor  *supervisor.Supervisor
	session     session.Session
}

// New wires a Device from cfg and opts
func New(cfg *config.Config, opts Options) (*Device, error) {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}

	d := &Device{
		cfg:     cfg,
		clock:   opts.Clock,
		bank:    opts.Bank,
		session: opts.Session,
	}

	for _, ac := range cfg.Actuators {
		var sensor hw.AnalogInput
		if ac.Feedback != nil {
			if opts.Sensor == nil {
				return nil, faults.NewValidationError(fmt.Sprintf("%s: feedback configured but no sensor backend", ac.Name))
			}
			s, err := opts.Sensor(ac)
			if err != nil {
				return nil, err
			}
			sensor = s
		}
		a, err := actuator.Build(ac, opts.Bank, sensor, opts.Clock)
		if err != nil {
			return nil, fmt.Errorf("failed to build actuator %s: %w", ac.Name, err)
		}
		d.actuators = append(d.actuators, a)
	}

	d.publisher = telemetry.New(telemetry.Options{
		DeviceID:  cfg.Device.ID,
		Link:      opts.Link,
		Probe:     opts.Probe,
		Actuators: d.actuators,
		Interval:  cfg.Telemetry.Interval,
	})

	if cfg.Automation.Enabled {
		pump, valve := d.Actuator(cfg.Automation.Pump), d.Actuator(cfg.Automation.Valve)
		if pump == nil || valve == nil {
			return nil, faults.NewValidationError("automation needs both its pump and valve actuators")
		}
		d.timer = automation.New(pump, valve, d.publisher, opts.Clock, automation.Settings{
			Settle:        cfg.Automation.Settle,
			PublishEvery:  cfg.Automation.PublishEvery,
			NearZero:      cfg.Automation.NearZero,
			MaxPublishGap: cfg.Automation.MaxPublishGap,
		})
		d.publisher.SetTimer(d.timer)
	}

	d.router = router.New(cfg.Device.ID, d.actuators, d.timer, d.publisher)

	store := credentials.NewStore(opts.KV)
	fallbacks := Fallbacks(cfg)

	d.provisioner = provision.New(provision.Options{
		Store:          store,
		Link:           opts.Link,
		Hotspot:        opts.Hotspot,
		Pairing:        opts.Pairing,
		Portal:         opts.Portal,
		Clock:          opts.Clock,
		Fallbacks:      fallbacks,
		NamePrefix:     cfg.Device.NamePrefix,
		ConnectTimeout: cfg.WiFi.ConnectTimeout,
		PairingTimeout: cfg.Provisioning.PairingTimeout,
		PortalTimeout:  cfg.Provisioning.PortalTimeout,
		PollInterval:   cfg.Provisioning.PollInterval,
		MaxPayload:     cfg.Provisioning.MaxPayload,
		ClearOnBoot:    cfg.Provisioning.ClearOnBoot,
	})

	d.supervisor = supervisor.New(supervisor.Options{
		Link:              opts.Link,
		Session:           opts.Session,
		Provisioner:       d.provisioner,
		Store:             store,
		Clock:             opts.Clock,
		Fallbacks:         fallbacks,
		Topics:            d.router.Topics(),
		Announce:          d.publisher.PublishAll,
		ConnectTimeout:    cfg.WiFi.ConnectTimeout,
		RelinkInterval:    cfg.WiFi.RelinkInterval,
		MaxRelinkFailures: cfg.WiFi.MaxRelinkFailures,
		MinEpoch:          cfg.Time.MinEpoch,
		SyncTimeout:       cfg.Time.SyncTimeout,
	})
	d.publisher.SetSink(d.supervisor)

	return d, nil
}

// Fallbacks converts the configured fallback networks
func Fallbacks(cfg *config.Config) []credentials.Credentials {
	var list []credentials.Credentials
	for _, n := range cfg.WiFi.Fallbacks {
		list = append(list, credentials.Credentials{
			SSID:   n.SSID,
			Secret: n.Secret,
			Source: credentials.SourceFallback,
		})
	}
	return list
}

// Actuator returns the actuator named name, or nil
func (d *Device) Actuator(name string) *actuator.Actuator {
	for _, a := range d.actuators {
		if a.Name() == name {
			return a
		}
	}
	return nil
}

// Actuators returns every actuator in configuration order
func (d *Device) Actuators() []*actuator.Actuator { return d.actuators }

// Timer returns the automation timer, or nil when automation is disabled
func (d *Device) Timer() *automation.Timer { return d.timer }

// Supervisor returns the connectivity supervisor
func (d *Device) Supervisor() *supervisor.Supervisor { return d.supervisor }

// Router returns the command router
func (d *Device) Router() *router.Router { return d.router }

// Step runs one loop iteration: connectivity, then queued commands in
// arrival order, then the timer and periodic telemetry. Only a
// ProvisioningFailure is returned; everything else is retried next time.
func (d *Device) Step(ctx context.Context) error {
	state, err := d.supervisor.Tick(ctx)
	if err != nil {
		if faults.Is(err, faults.ErrTypeProvisioning) {
			return err
		}
		logging.Debug("Connectivity not ready",
			zap.String("state", state.String()),
			zap.Error(err),
		)
	}

	for _, msg := range d.session.Drain() {
		_ = d.router.HandleTopic(msg.Topic, msg.Payload)
	}

	now := d.clock.Now()
	if d.timer != nil {
		d.timer.Tick(now)
	}
	d.publisher.Tick(now)
	return nil
}

// Run steps the loop every Loop.Interval until ctx is cancelled or
// provisioning fails
func (d *Device) Run(ctx context.Context) error {
	logging.Info("Control loop started",
		zap.String("device", d.cfg.Device.ID),
		zap.Int("actuators", len(d.actuators)),
		zap.Bool("automation", d.timer != nil),
		zap.Duration("interval", d.cfg.Loop.Interval),
	)

	for {
		if err := d.Step(ctx); err != nil {
			logging.Error("Provisioning exhausted, restart required", zap.Error(err))
			return err
		}
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		d.clock.Sleep(d.cfg.Loop.Interval)
	}
}

// Close stops the transports, the session and the pin bank
func (d *Device) Close() error {
	d.provisioner.Close()
	d.session.Disconnect()
	if d.bank != nil {
		return d.bank.Close()
	}
	return nil
}
