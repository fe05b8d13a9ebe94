package config

import (
	"fmt"

	"github.com/muurk/poolctl/internal/faults"
)

// reserved domains are published by the controller itself
var reserved = map[string]bool{
	"timer":       true,
	"wifi":        true,
	"temperature": true,
	"status":      true,
}

// Validate checks the configuration and returns every problem found
func (c *Config) Validate() []error {
	var errs []error

	if c.Device.ID == "" {
		errs = append(errs, faults.NewValidationError("device.id cannot be empty"))
	}
	if c.Broker.Host == "" {
		errs = append(errs, faults.NewValidationError("broker.host cannot be empty"))
	}
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		errs = append(errs, faults.NewValidationError(fmt.Sprintf("broker.port out of range: %d", c.Broker.Port)))
	}

	switch c.GPIO.Driver {
	case DriverCdev, DriverRpio, DriverSim:
	default:
		errs = append(errs, faults.NewValidationError(fmt.Sprintf("unknown gpio.driver %q", c.GPIO.Driver)))
	}

	for i, n := range c.WiFi.Fallbacks {
		if n.SSID == "" || len(n.SSID) > 32 {
			errs = append(errs, faults.NewValidationError(fmt.Sprintf("wifi.fallback_networks[%d]: ssid must be 1-32 characters", i)))
		}
	}

	seen := make(map[string]bool)
	for i := range c.Actuators {
		a := &c.Actuators[i]
		if seen[a.Name] {
			errs = append(errs, faults.NewValidationError(fmt.Sprintf("duplicate actuator %q", a.Name)))
		}
		seen[a.Name] = true
		for _, err := range validateActuator(a) {
			errs = append(errs, fmt.Errorf("actuator %q: %w", a.Name, err))
		}
	}

	if c.Automation.Enabled {
		if p := c.Find(c.Automation.Pump); p == nil || p.Kind != KindSwitch {
			errs = append(errs, faults.NewValidationError(fmt.Sprintf("automation.pump %q must name a switch actuator", c.Automation.Pump)))
		}
		if v := c.Find(c.Automation.Valve); v == nil || v.Kind != KindSelector {
			errs = append(errs, faults.NewValidationError(fmt.Sprintf("automation.valve %q must name a selector actuator", c.Automation.Valve)))
		}
	}

	return errs
}

func validateActuator(a *ActuatorConfig) []error {
	var errs []error

	if a.Name == "" {
		errs = append(errs, faults.NewValidationError("name cannot be empty"))
	}
	if reserved[a.Name] {
		errs = append(errs, faults.NewValidationError(fmt.Sprintf("name %q is reserved", a.Name)))
	}

	wantPins := 0
	switch {
	case a.Kind == KindSwitch && a.Drive == DriveDirect:
		wantPins = 1
	case a.Kind == KindSelector && a.Drive == DriveLevel:
		wantPins = 1
	case a.Kind == KindSelector && a.Drive == DriveLatch:
		wantPins = 2
	case a.Drive == DrivePulse:
		// One shared toggle line or one line per position
		if len(a.Pins) != 1 && len(a.Pins) != 2 {
			errs = append(errs, faults.NewValidationError("pulse drive needs 1 or 2 pins"))
		}
		if a.Feedback == nil {
			errs = append(errs, faults.NewValidationError("pulse drive needs a feedback sensor"))
		}
	default:
		errs = append(errs, faults.NewValidationError(fmt.Sprintf("unsupported kind/drive %q/%q", a.Kind, a.Drive)))
	}

	if wantPins > 0 && len(a.Pins) != wantPins {
		errs = append(errs, faults.NewValidationError(fmt.Sprintf("%s drive needs %d pin(s), got %d", a.Drive, wantPins, len(a.Pins))))
	}

	if f := a.Feedback; f != nil {
		if f.Source == "" {
			errs = append(errs, faults.NewValidationError("feedback.source cannot be empty"))
		}
		if f.Powered == f.Unpowered {
			errs = append(errs, faults.NewValidationError("feedback powered and unpowered positions must differ"))
		}
		if lo, hi, ok := positionRange(a.Kind); ok {
			for _, p := range []struct {
				field string
				value int
			}{{"powered", f.Powered}, {"unpowered", f.Unpowered}} {
				if p.value < lo || p.value > hi {
					errs = append(errs, faults.NewValidationError(fmt.Sprintf("feedback.%s %d is not a %s position (%d-%d)", p.field, p.value, a.Kind, lo, hi)))
				}
			}
		}
	}

	return errs
}

// positionRange is the span of positions an actuator kind can report
func positionRange(kind string) (lo, hi int, ok bool) {
	switch kind {
	case KindSwitch:
		return 0, 1, true
	case KindSelector:
		return 1, 2, true
	}
	return 0, 0, false
}
