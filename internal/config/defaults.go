package config

import "time"

// Defaults used for any field left empty in the file
const (
	DefaultBrokerHost        = "localhost"
	DefaultMinEpoch          = 1700000000
	DefaultSyncTimeout       = 15 * time.Second
	DefaultLinkTimeout       = 20 * time.Second
	DefaultRelinkInterval    = 5 * time.Second
	DefaultMaxRelinkFailures = 3
	DefaultPairingTimeout    = 5 * time.Minute
	DefaultPortalTimeout     = 5 * time.Minute
	DefaultPollInterval      = 200 * time.Millisecond
	DefaultMaxPayload        = 512
	DefaultPulse             = 150 * time.Millisecond
	DefaultSettle            = 200 * time.Millisecond
	DefaultTimerSettle       = 500 * time.Millisecond
	DefaultTelemetryInterval = 30 * time.Second
	DefaultLoopInterval      = 50 * time.Millisecond
)

// Default returns the configuration of the reference pool controller board:
// a direct-drive pump, a pulse-confirmed two-relay valve and a status light.
func Default() *Config {
	cfg := &Config{
		Version: 1,
		Device: DeviceConfig{
			ID:         "esp32-pool-01",
			NamePrefix: "Pool",
		},
		Broker: BrokerConfig{
			Host:        DefaultBrokerHost,
			Port:        8883,
			TrustAnchor: "/etc/poolctl/ca.pem",
		},
		WiFi: WiFiConfig{
			Interface: "wlan0",
		},
		Provisioning: ProvisioningConfig{
			CredentialsFile: "/var/lib/poolctl/credentials.yaml",
			PairingListen:   ":8765",
			PortalListen:    ":80",
		},
		GPIO: GPIOConfig{
			Driver: DriverCdev,
			Chip:   "gpiochip0",
		},
		Actuators: []ActuatorConfig{
			{Name: "pump", Kind: KindSwitch, Drive: DriveDirect, Pins: []int{26}},
			{
				Name:  "valve",
				Kind:  KindSelector,
				Drive: DrivePulse,
				Pins:  []int{27, 22},
				Feedback: &FeedbackConfig{
					Source:    "/sys/bus/iio/devices/iio:device0/in_voltage0_raw",
					Threshold: 2000,
					Powered:   2,
					Unpowered: 1,
				},
			},
			{Name: "light", Kind: KindSwitch, Drive: DriveDirect, Pins: []int{4}},
		},
		Automation: AutomationConfig{
			Enabled: true,
			Pump:    "pump",
			Valve:   "valve",
		},
		Telemetry: TelemetryConfig{
			Temperature: "/sys/bus/w1/devices/28-000000000000/temperature",
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults
func (c *Config) ApplyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Device.NamePrefix == "" {
		c.Device.NamePrefix = "Pool"
	}
	if c.Broker.Port == 0 {
		c.Broker.Port = 8883
	}
	if c.Broker.ConnectTimeout == 0 {
		c.Broker.ConnectTimeout = 10 * time.Second
	}
	if c.Broker.KeepAlive == 0 {
		c.Broker.KeepAlive = 30 * time.Second
	}
	if c.WiFi.ConnectTimeout == 0 {
		c.WiFi.ConnectTimeout = DefaultLinkTimeout
	}
	if c.WiFi.RelinkInterval == 0 {
		c.WiFi.RelinkInterval = DefaultRelinkInterval
	}
	if c.WiFi.MaxRelinkFailures == 0 {
		c.WiFi.MaxRelinkFailures = DefaultMaxRelinkFailures
	}
	if c.Provisioning.PairingTimeout == 0 {
		c.Provisioning.PairingTimeout = DefaultPairingTimeout
	}
	if c.Provisioning.PortalTimeout == 0 {
		c.Provisioning.PortalTimeout = DefaultPortalTimeout
	}
	if c.Provisioning.PollInterval == 0 {
		c.Provisioning.PollInterval = DefaultPollInterval
	}
	if c.Provisioning.MaxPayload == 0 {
		c.Provisioning.MaxPayload = DefaultMaxPayload
	}
	if c.Time.MinEpoch == 0 {
		c.Time.MinEpoch = DefaultMinEpoch
	}
	if c.Time.SyncTimeout == 0 {
		c.Time.SyncTimeout = DefaultSyncTimeout
	}
	if c.GPIO.Driver == "" {
		c.GPIO.Driver = DriverCdev
	}
	if c.GPIO.Chip == "" {
		c.GPIO.Chip = "gpiochip0"
	}
	for i := range c.Actuators {
		a := &c.Actuators[i]
		if a.Drive == DrivePulse || a.Drive == DriveLatch {
			if a.Pulse == 0 {
				a.Pulse = DefaultPulse
			}
			if a.Settle == 0 {
				a.Settle = DefaultSettle
			}
		}
		if f := a.Feedback; f != nil && f.Powered == 0 && f.Unpowered == 0 {
			switch a.Kind {
			case KindSwitch:
				f.Powered = 1
			case KindSelector:
				f.Powered, f.Unpowered = 2, 1
			}
		}
	}
	if c.Automation.Settle == 0 {
		c.Automation.Settle = DefaultTimerSettle
	}
	if c.Automation.PublishEvery == 0 {
		c.Automation.PublishEvery = 10
	}
	if c.Automation.NearZero == 0 {
		c.Automation.NearZero = 5
	}
	if c.Automation.MaxPublishGap == 0 {
		c.Automation.MaxPublishGap = 30 * time.Second
	}
	if c.Telemetry.Interval == 0 {
		c.Telemetry.Interval = DefaultTelemetryInterval
	}
	if c.Loop.Interval == 0 {
		c.Loop.Interval = DefaultLoopInterval
	}
}
