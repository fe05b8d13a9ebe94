package config

import "time"

// Config is the complete controller configuration file
type Config struct {
	Version      int                `yaml:"version"`
	Device       DeviceConfig       `yaml:"device"`
	Broker       BrokerConfig       `yaml:"broker"`
	WiFi         WiFiConfig         `yaml:"wifi"`
	Provisioning ProvisioningConfig `yaml:"provisioning"`
	Time         TimeConfig         `yaml:"time"`
	GPIO         GPIOConfig         `yaml:"gpio"`
	Actuators    []ActuatorConfig   `yaml:"actuators"`
	Automation   AutomationConfig   `yaml:"automation"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Loop         LoopConfig         `yaml:"loop"`
}

// DeviceConfig identifies the device on the broker
type DeviceConfig struct {
	ID         string `yaml:"id"`          // Client id and topic root (devices/{id}/...)
	NamePrefix string `yaml:"name_prefix"` // Pairing/portal name prefix, suffixed with MAC digits
}

// BrokerConfig holds the MQTT session parameters
type BrokerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	TrustAnchor    string        `yaml:"trust_anchor"` // PEM file with the root CA
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
}

// Network is a statically configured fallback network
type Network struct {
	SSID   string `yaml:"ssid"`
	Secret string `yaml:"secret,omitempty"`
}

// WiFiConfig controls the station link
type WiFiConfig struct {
	Interface         string        `yaml:"interface"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	RelinkInterval    time.Duration `yaml:"relink_interval"`
	MaxRelinkFailures int           `yaml:"max_relink_failures"`
	Fallbacks         []Network     `yaml:"fallback_networks,omitempty"`
}

// ProvisioningConfig controls the credential acquisition chain
type ProvisioningConfig struct {
	CredentialsFile string        `yaml:"credentials_file"`
	ClearOnBoot     bool          `yaml:"clear_on_boot"`
	PairingTimeout  time.Duration `yaml:"pairing_timeout"`
	PortalTimeout   time.Duration `yaml:"portal_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	PairingListen   string        `yaml:"pairing_listen"`
	PortalListen    string        `yaml:"portal_listen"`
	MaxPayload      int           `yaml:"max_payload"` // Pairing transport message limit in bytes
}

// TimeConfig controls the pre-session clock plausibility wait
type TimeConfig struct {
	MinEpoch    int64         `yaml:"min_epoch"`
	SyncTimeout time.Duration `yaml:"sync_timeout"`
}

// GPIOConfig selects the pin backend
type GPIOConfig struct {
	Driver string `yaml:"driver"` // "cdev", "rpio" or "sim"
	Chip   string `yaml:"chip"`   // Character device chip for the cdev driver
}

// ActuatorConfig describes one physical output and how it is driven
type ActuatorConfig struct {
	Name     string          `yaml:"name"`  // Topic domain (devices/{id}/{name}/set)
	Kind     string          `yaml:"kind"`  // "switch" or "selector"
	Drive    string          `yaml:"drive"` // "direct", "level", "latch" or "pulse"
	Pins     []int           `yaml:"pins"`
	Inverted bool            `yaml:"inverted,omitempty"`
	Pulse    time.Duration   `yaml:"pulse,omitempty"`
	Settle   time.Duration   `yaml:"settle,omitempty"`
	Feedback *FeedbackConfig `yaml:"feedback,omitempty"`
}

// FeedbackConfig describes the analog sensor confirming a latching relay
type FeedbackConfig struct {
	Source    string `yaml:"source"`    // IIO raw value file
	Threshold int    `yaml:"threshold"` // Readings >= threshold count as powered
	Powered   int    `yaml:"powered"`   // Position reported when powered
	Unpowered int    `yaml:"unpowered"` // Position reported otherwise
}

// AutomationConfig wires the countdown timer to its actuators
type AutomationConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Pump          string        `yaml:"pump"`
	Valve         string        `yaml:"valve"`
	Settle        time.Duration `yaml:"settle"`
	PublishEvery  uint32        `yaml:"publish_every"`
	NearZero      uint32        `yaml:"near_zero"`
	MaxPublishGap time.Duration `yaml:"max_publish_gap"`
}

// TelemetryConfig controls periodic publication
type TelemetryConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Temperature string        `yaml:"temperature,omitempty"` // 1-Wire temperature file; empty disables
}

// LoopConfig controls the control loop cadence
type LoopConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Actuator kinds
const (
	KindSwitch   = "switch"
	KindSelector = "selector"
)

// Drive modes
const (
	DriveDirect = "direct"
	DriveLevel  = "level"
	DriveLatch  = "latch"
	DrivePulse  = "pulse"
)

// GPIO drivers
const (
	DriverCdev = "cdev"
	DriverRpio = "rpio"
	DriverSim  = "sim"
)

// Find returns the actuator configuration with the given name, or nil
func (c *Config) Find(name string) *ActuatorConfig {
	for i := range c.Actuators {
		if c.Actuators[i].Name == name {
			return &c.Actuators[i]
		}
	}
	return nil
}
