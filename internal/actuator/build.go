package actuator

import (
	"fmt"

	"github.com/muurk/poolctl/internal/clock"
	"github.com/muurk/poolctl/internal/config"
	"github.com/muurk/poolctl/internal/faults"
	"github.com/muurk/poolctl/internal/hw"
)

var kinds = map[string]Kind{
	config.KindSwitch:   Switch,
	config.KindSelector: Selector,
}

var drives = map[string]Drive{
	config.DriveDirect: Direct,
	config.DriveLevel:  Level,
	config.DriveLatch:  Latch,
	config.DrivePulse:  PulseConfirmed,
}

// Build creates an actuator from its configuration. Lines come from bank;
// sensor is the feedback input and is ignored when cfg has no feedback.
func Build(cfg config.ActuatorConfig, bank hw.Bank, sensor hw.AnalogInput, clk clock.Clock) (*Actuator, error) {
	kind, ok := kinds[cfg.Kind]
	if !ok {
		return nil, faults.NewValidationError(fmt.Sprintf("%s: unknown kind %q", cfg.Name, cfg.Kind))
	}
	drive, ok := drives[cfg.Drive]
	if !ok {
		return nil, faults.NewValidationError(fmt.Sprintf("%s: unknown drive %q", cfg.Name, cfg.Drive))
	}

	spec := Spec{
		Name:   cfg.Name,
		Kind:   kind,
		Drive:  drive,
		Pulse:  cfg.Pulse,
		Settle: cfg.Settle,
	}

	for _, pin := range cfg.Pins {
		line, err := bank.Output(pin)
		if err != nil {
			return nil, faults.NewHardwareError(fmt.Sprintf("%s: pin %d", cfg.Name, pin), err)
		}
		if cfg.Inverted {
			line = hw.Invert(line)
		}
		spec.Lines = append(spec.Lines, line)
	}

	if f := cfg.Feedback; f != nil {
		spec.Feedback = &Feedback{
			Input:     sensor,
			Threshold: f.Threshold,
			Powered:   Position(f.Powered),
			Unpowered: Position(f.Unpowered),
		}
	}

	return New(spec, clk)
}
