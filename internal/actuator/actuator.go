package actuator

import (
	"fmt"
	"strings"
	"time"

	"github.com/muurk/poolctl/internal/clock"
	"github.com/muurk/poolctl/internal/faults"
	"github.com/muurk/poolctl/internal/hw"
	"github.com/muurk/poolctl/internal/logging"
	"go.uber.org/zap"
)

// Kind selects the position vocabulary
type Kind int

const (
	// Switch positions are Off and On
	Switch Kind = iota
	// Selector positions are Mode1 and Mode2
	Selector
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case Switch:
		return "switch"
	case Selector:
		return "selector"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Drive selects how a position is expressed on the output lines
type Drive int

const (
	Direct Drive = iota
	Level
	Latch
	PulseConfirmed
)

// String returns the drive name
func (d Drive) String() string {
	switch d {
	case Direct:
		return "direct"
	case Level:
		return "level"
	case Latch:
		return "latch"
	case PulseConfirmed:
		return "pulse"
	default:
		return fmt.Sprintf("drive(%d)", int(d))
	}
}

// Position is the logical state of an actuator
type Position int

const (
	Off   Position = 0
	On    Position = 1
	Mode1 Position = 1
	Mode2 Position = 2
)

// Feedback converts an analog reading into a position: at or above
// Threshold reads as Powered, below as Unpowered.
type Feedback struct {
	Input     hw.AnalogInput
	Threshold int
	Powered   Position
	Unpowered Position
}

// Position reads the sensor
func (f *Feedback) Position() (Position, int, error) {
	raw, err := f.Input.Read()
	if err != nil {
		return 0, 0, faults.NewHardwareError("feedback read failed", err)
	}
	if raw >= f.Threshold {
		return f.Powered, raw, nil
	}
	return f.Unpowered, raw, nil
}

// Spec describes one physical output
type Spec struct {
	Name     string
	Kind     Kind
	Drive    Drive
	Lines    []hw.Output
	Feedback *Feedback
	Pulse    time.Duration
	Settle   time.Duration
}

// Actuator owns the logical position of one output. It is not safe for
// concurrent use; the control loop is its only caller.
type Actuator struct {
	spec     Spec
	clock    clock.Clock
	position Position
}

// New validates spec and puts the output in its safe default: off for a
// switch, mode 1 for a selector. A sensor-confirmed actuator adopts what its
// sensor reports instead.
func New(spec Spec, clk clock.Clock) (*Actuator, error) {
	if err := validate(spec); err != nil {
		return nil, err
	}

	a := &Actuator{spec: spec, clock: clk, position: Off}
	if spec.Kind == Selector {
		a.position = Mode1
	}

	switch spec.Drive {
	case Direct, Level:
		if err := a.write(a.position); err != nil {
			return nil, err
		}
	case Latch:
		if err := a.release(); err != nil {
			return nil, err
		}
	case PulseConfirmed:
		if err := a.release(); err != nil {
			return nil, err
		}
		if observed, raw, err := spec.Feedback.Position(); err == nil {
			a.position = observed
			logging.Debug("Actuator synchronized from sensor",
				zap.String("actuator", spec.Name),
				zap.Int("raw", raw),
				zap.String("state", a.Payload()),
			)
		} else {
			logging.Warn("Initial sensor read failed, assuming default",
				zap.String("actuator", spec.Name),
				zap.Error(err),
			)
		}
	}

	return a, nil
}

func validate(spec Spec) error {
	if spec.Name == "" {
		return faults.NewValidationError("actuator name cannot be empty")
	}

	want := 1
	switch {
	case spec.Drive == Direct && spec.Kind == Switch:
	case spec.Drive == Level && spec.Kind == Selector:
	case spec.Drive == Latch && spec.Kind == Selector:
		want = 2
	case spec.Drive == PulseConfirmed:
		if spec.Feedback == nil || spec.Feedback.Input == nil {
			return faults.NewValidationError(fmt.Sprintf("%s: pulse drive needs a feedback sensor", spec.Name))
		}
		if len(spec.Lines) == 2 {
			want = 2
		}
	default:
		return faults.NewValidationError(fmt.Sprintf("%s: %s drive is not supported for a %s", spec.Name, spec.Drive, spec.Kind))
	}

	if len(spec.Lines) != want {
		return faults.NewValidationError(fmt.Sprintf("%s: %s drive needs %d line(s), got %d", spec.Name, spec.Drive, want, len(spec.Lines)))
	}
	return nil
}

// Name returns the topic domain of the actuator
func (a *Actuator) Name() string { return a.spec.Name }

// Kind returns the actuator kind
func (a *Actuator) Kind() Kind { return a.spec.Kind }

// Drive returns the drive mode
func (a *Actuator) Drive() Drive { return a.spec.Drive }

// Current returns the last observed position
func (a *Actuator) Current() Position { return a.position }

// Payload renders the current position: ON/OFF for a switch, a digit for a selector
func (a *Actuator) Payload() string {
	return a.Format(a.position)
}

// Format renders p in the actuator's vocabulary
func (a *Actuator) Format(p Position) string {
	if a.spec.Kind == Switch {
		if p == On {
			return "ON"
		}
		return "OFF"
	}
	return fmt.Sprintf("%d", int(p))
}

// Valid reports whether p is a position of this actuator
func (a *Actuator) Valid(p Position) bool {
	if a.spec.Kind == Switch {
		return p == Off || p == On
	}
	return p == Mode1 || p == Mode2
}

// Parse maps a command payload to a target position. Payloads are trimmed
// and matched case-insensitively; TOGGLE inverts the current position.
func (a *Actuator) Parse(payload string) (Position, error) {
	cmd := strings.ToUpper(strings.TrimSpace(payload))

	if cmd == "TOGGLE" {
		return a.other(a.position), nil
	}

	if a.spec.Kind == Switch {
		switch cmd {
		case "ON", "1":
			return On, nil
		case "OFF", "0":
			return Off, nil
		}
	} else {
		switch cmd {
		case "1":
			return Mode1, nil
		case "2":
			return Mode2, nil
		}
	}

	return a.position, faults.NewMalformedCommand(fmt.Sprintf("%s: unrecognized payload %q", a.spec.Name, payload), nil)
}

// Apply parses payload and moves to the requested position
func (a *Actuator) Apply(payload string) (Position, error) {
	target, err := a.Parse(payload)
	if err != nil {
		return a.position, err
	}
	return a.SetState(target)
}

// SetState moves the output to target and returns the observed position.
// For a PulseConfirmed actuator the result is whatever the sensor reports
// after the settle delay, which may differ from target.
func (a *Actuator) SetState(target Position) (Position, error) {
	if !a.Valid(target) {
		return a.position, faults.NewValidationError(fmt.Sprintf("%s: position %d out of range", a.spec.Name, int(target)))
	}

	var err error
	switch a.spec.Drive {
	case Direct, Level:
		err = a.setLevel(target)
	case Latch:
		err = a.setLatch(target)
	case PulseConfirmed:
		err = a.setConfirmed(target)
	}
	return a.position, err
}

func (a *Actuator) setLevel(target Position) error {
	if err := a.write(target); err != nil {
		return err
	}
	a.position = target
	return nil
}

func (a *Actuator) setLatch(target Position) error {
	if target == a.position {
		return nil
	}
	if err := a.pulse(target); err != nil {
		return err
	}
	a.position = target
	return nil
}

func (a *Actuator) setConfirmed(target Position) error {
	observed, raw, err := a.spec.Feedback.Position()
	if err != nil {
		return err
	}
	if observed == target {
		a.position = observed
		logging.Debug("Sensor already reports target, no pulse",
			zap.String("actuator", a.spec.Name),
			zap.Int("raw", raw),
		)
		return nil
	}

	if err := a.pulse(target); err != nil {
		return err
	}
	a.clock.Sleep(a.spec.Settle)

	observed, raw, err = a.spec.Feedback.Position()
	if err != nil {
		return err
	}
	a.position = observed

	if observed != target {
		mismatch := faults.NewSensorMismatch(fmt.Sprintf("%s: requested %s, sensor reports %s",
			a.spec.Name, a.Format(target), a.Format(observed)))
		logging.Warn("Relay did not reach requested position",
			zap.String("actuator", a.spec.Name),
			zap.Int("raw", raw),
			zap.Error(mismatch),
		)
	}
	return nil
}

// pulse energizes the coil for target, holding every other coil low, then
// releases all coils
func (a *Actuator) pulse(target Position) error {
	coil := 0
	if len(a.spec.Lines) == 2 {
		coil = a.coilIndex(target)
	}

	for i, line := range a.spec.Lines {
		if err := line.Set(i == coil); err != nil {
			_ = a.release()
			return faults.NewHardwareError(fmt.Sprintf("%s: failed to drive coil %d", a.spec.Name, i), err)
		}
	}

	logging.Debug("Relay pulse",
		zap.String("actuator", a.spec.Name),
		zap.Int("coil", coil),
		zap.Duration("duration", a.spec.Pulse),
	)
	a.clock.Sleep(a.spec.Pulse)

	return a.release()
}

func (a *Actuator) release() error {
	for i, line := range a.spec.Lines {
		if err := line.Set(false); err != nil {
			return faults.NewHardwareError(fmt.Sprintf("%s: failed to release coil %d", a.spec.Name, i), err)
		}
	}
	return nil
}

func (a *Actuator) write(p Position) error {
	high := p == On
	if a.spec.Kind == Selector {
		high = p == Mode2
	}
	if err := a.spec.Lines[0].Set(high); err != nil {
		return faults.NewHardwareError(fmt.Sprintf("%s: failed to write output", a.spec.Name), err)
	}
	return nil
}

// coilIndex maps a position to its coil: switch off/on and selector 1/2
// use coils 0 and 1
func (a *Actuator) coilIndex(p Position) int {
	if a.spec.Kind == Selector {
		return int(p) - 1
	}
	return int(p)
}

func (a *Actuator) other(p Position) Position {
	if a.spec.Kind == Switch {
		if p == On {
			return Off
		}
		return On
	}
	if p == Mode2 {
		return Mode1
	}
	return Mode2
}
