package device

import (
	"fmt"
	"net"
	"sync"

	"github.com/muurk/poolctl/internal/actuator"
	"github.com/muurk/poolctl/internal/clock"
	"github.com/muurk/poolctl/internal/config"
	"github.com/muurk/poolctl/internal/credentials"
	"github.com/muurk/poolctl/internal/hw"
	"github.com/muurk/poolctl/internal/logging"
	"github.com/muurk/poolctl/internal/server"
	"github.com/muurk/poolctl/internal/session"
	"github.com/muurk/poolctl/internal/version"
	"github.com/muurk/poolctl/internal/wifi"
	"go.uber.org/zap"
)

// simulatedMAC is the hardware address reported by the simulated link
var simulatedMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x5e, 0xa1}

// Open builds the production collaborators for cfg. With simulate the pins,
// sensors and Wi-Fi link are in-memory models; the broker session and the
// provisioning transports stay real.
func Open(cfg *config.Config, simulate bool) (*Device, error) {
	opts := Options{
		Clock: clock.Real{},
		KV:    credentials.NewFileKV(cfg.Provisioning.CredentialsFile),
		Pairing: server.NewPairing(server.Config{
			Listen:     cfg.Provisioning.PairingListen,
			MaxPayload: cfg.Provisioning.MaxPayload,
			DeviceID:   cfg.Device.ID,
			Version:    version.Version,
			Advertise:  true,
		}),
		Portal: server.NewPortal(server.Config{
			Listen:     cfg.Provisioning.PortalListen,
			MaxPayload: cfg.Provisioning.MaxPayload,
			DeviceID:   cfg.Device.ID,
			Version:    version.Version,
			Advertise:  true,
		}),
	}

	broker := session.Options{
		Host:           cfg.Broker.Host,
		Port:           cfg.Broker.Port,
		ClientID:       cfg.Device.ID,
		Username:       cfg.Broker.Username,
		Password:       cfg.Broker.Password,
		TrustAnchor:    cfg.Broker.TrustAnchor,
		ConnectTimeout: cfg.Broker.ConnectTimeout,
		KeepAlive:      cfg.Broker.KeepAlive,
	}
	sess, err := session.NewMQTT(broker)
	if err != nil {
		return nil, err
	}
	opts.Session = sess

	driver := cfg.GPIO.Driver
	if simulate {
		driver = config.DriverSim
	}

	switch driver {
	case config.DriverSim:
		sim := NewSimHardware()
		opts.Bank = sim
		opts.Sensor = sim.Sensor
		opts.Probe = hw.NewSimThermometer(26.5)
	case config.DriverCdev:
		bank, err := hw.OpenCdev(cfg.GPIO.Chip)
		if err != nil {
			return nil, err
		}
		opts.Bank = bank
	case config.DriverRpio:
		bank, err := hw.OpenRpio()
		if err != nil {
			return nil, err
		}
		opts.Bank = bank
	default:
		return nil, fmt.Errorf("unknown gpio driver %q", driver)
	}

	if driver != config.DriverSim {
		opts.Sensor = func(ac config.ActuatorConfig) (hw.AnalogInput, error) {
			return hw.SysfsADC{Path: ac.Feedback.Source}, nil
		}
		if cfg.Telemetry.Temperature != "" {
			opts.Probe = hw.W1Thermometer{Path: cfg.Telemetry.Temperature}
		}
	}

	if simulate {
		link := wifi.NewFake(simulatedMAC)
		link.AcceptAny(true)
		link.SetNetworks([]wifi.Network{
			{SSID: "PoolHouse", RSSI: -48},
			{SSID: "Garden", RSSI: -67},
			{SSID: "Guest", RSSI: -74, Open: true},
		})
		opts.Link, opts.Hotspot = link, link
	} else {
		nm := wifi.NewNM(cfg.WiFi.Interface)
		opts.Link, opts.Hotspot = nm, nm
	}

	logging.Info("Backends ready",
		zap.String("gpio", driver),
		zap.Bool("simulated_link", simulate),
		zap.String("broker", broker.BrokerURL()),
	)

	d, err := New(cfg, opts)
	if err != nil {
		if opts.Bank != nil {
			_ = opts.Bank.Close()
		}
		return nil, err
	}
	return d, nil
}

// SimHardware is a pin bank whose feedback actuators are wired to simulated
// latching relays, so pulses move a contact that the sensor then reports.
type SimHardware struct {
	*hw.SimBank

	mu     sync.Mutex
	coils  map[int]hw.Output
	relays map[string]*hw.SimLatchingRelay
}

// NewSimHardware returns an empty simulated board
func NewSimHardware() *SimHardware {
	return &SimHardware{
		SimBank: hw.NewSimBank(),
		coils:   make(map[int]hw.Output),
		relays:  make(map[string]*hw.SimLatchingRelay),
	}
}

// Sensor builds the relay behind a feedback actuator and claims its pins
func (s *SimHardware) Sensor(ac config.ActuatorConfig) (hw.AnalogInput, error) {
	a, b := int(actuator.Off), int(actuator.On)
	if ac.Kind == config.KindSelector {
		a, b = int(actuator.Mode1), int(actuator.Mode2)
	}
	relay := hw.NewSimLatchingRelay(a, b, a, ac.Feedback.Powered)
	relay.SensorHigh = ac.Feedback.Threshold + 1000
	relay.SensorLow = 0

	s.mu.Lock()
	defer s.mu.Unlock()
	s.relays[ac.Name] = relay
	switch len(ac.Pins) {
	case 1:
		s.coils[ac.Pins[0]] = relay.ToggleCoil()
	case 2:
		s.coils[ac.Pins[0]] = relay.Coil(0)
		s.coils[ac.Pins[1]] = relay.Coil(1)
	}
	return relay.Sensor(), nil
}

// Output returns the relay coil claimed for pin, or a plain simulated line
func (s *SimHardware) Output(pin int) (hw.Output, error) {
	s.mu.Lock()
	coil, ok := s.coils[pin]
	s.mu.Unlock()
	if ok {
		return coil, nil
	}
	return s.SimBank.Output(pin)
}

// Relay returns the relay behind the named actuator
func (s *SimHardware) Relay(name string) *hw.SimLatchingRelay {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relays[name]
}
