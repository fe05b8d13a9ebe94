package actuator

import (
	"errors"
	"testing"
	"time"

	"github.com/muurk/poolctl/internal/clock"
	"github.com/muurk/poolctl/internal/config"
	"github.com/muurk/poolctl/internal/faults"
	"github.com/muurk/poolctl/internal/hw"
)

func newClock() *clock.Fake {
	return clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
}

func newSwitch(t *testing.T) (*Actuator, *hw.SimOutput) {
	t.Helper()
	out := &hw.SimOutput{}
	a, err := New(Spec{Name: "pump", Kind: Switch, Drive: Direct, Lines: []hw.Output{out}}, newClock())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a, out
}

func newValve(t *testing.T, relay *hw.SimLatchingRelay, clk clock.Clock) *Actuator {
	t.Helper()
	a, err := New(Spec{
		Name:   "valve",
		Kind:   Selector,
		Drive:  PulseConfirmed,
		Lines:  []hw.Output{relay.Coil(0), relay.Coil(1)},
		Pulse:  150 * time.Millisecond,
		Settle: 200 * time.Millisecond,
		Feedback: &Feedback{
			Input:     relay.Sensor(),
			Threshold: 2000,
			Powered:   Mode2,
			Unpowered: Mode1,
		},
	}, clk)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func TestDirect_Vocabulary(t *testing.T) {
	tests := []struct {
		payload string
		start   Position
		want    Position
		wantErr bool
	}{
		{"ON", Off, On, false},
		{"on", Off, On, false},
		{"  On \n", Off, On, false},
		{"1", Off, On, false},
		{"OFF", On, Off, false},
		{"0", On, Off, false},
		{"TOGGLE", Off, On, false},
		{"toggle", On, Off, false},
		{"2", On, On, true},
		{"", Off, Off, true},
		{"ENABLE", On, On, true},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			a, out := newSwitch(t)
			if _, err := a.SetState(tt.start); err != nil {
				t.Fatal(err)
			}
			writes := len(out.History())

			got, err := a.Apply(tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Apply(%q) error = %v, wantErr %v", tt.payload, err, tt.wantErr)
			}
			if tt.wantErr {
				if !faults.Is(err, faults.ErrTypeMalformedCommand) {
					t.Errorf("Apply(%q) error type = %v, want malformed command", tt.payload, err)
				}
				if len(out.History()) != writes {
					t.Error("rejected payload touched the output")
				}
			}
			if got != tt.want || a.Current() != tt.want {
				t.Errorf("Apply(%q) = %d (current %d), want %d", tt.payload, got, a.Current(), tt.want)
			}
			if out.Level() != (tt.want == On) {
				t.Errorf("output level = %v, want %v", out.Level(), tt.want == On)
			}
		})
	}
}

func TestDirect_SafeDefault(t *testing.T) {
	a, out := newSwitch(t)
	if a.Current() != Off || a.Payload() != "OFF" {
		t.Errorf("initial state = %s", a.Payload())
	}
	if h := out.History(); len(h) != 1 || h[0] {
		t.Errorf("initial writes = %v, want [false]", h)
	}
}

func TestToggle_InvertsOncePerCommand(t *testing.T) {
	a, _ := newSwitch(t)
	want := []string{"ON", "OFF", "ON", "OFF"}
	for i, w := range want {
		if _, err := a.Apply("TOGGLE"); err != nil {
			t.Fatal(err)
		}
		if a.Payload() != w {
			t.Errorf("toggle %d: state = %s, want %s", i+1, a.Payload(), w)
		}
	}
}

func TestLevel_Selector(t *testing.T) {
	out := &hw.SimOutput{}
	a, err := New(Spec{Name: "valve", Kind: Selector, Drive: Level, Lines: []hw.Output{out}}, newClock())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := a.Apply("2"); err != nil {
		t.Fatal(err)
	}
	if !out.Level() || a.Payload() != "2" {
		t.Errorf("mode 2: level %v payload %s", out.Level(), a.Payload())
	}

	// Out of range leaves mode unchanged
	if _, err := a.SetState(3); err == nil {
		t.Error("SetState(3) should fail")
	}
	if _, err := a.Apply("3"); err == nil {
		t.Error(`Apply("3") should fail`)
	}
	if a.Current() != Mode2 {
		t.Errorf("mode changed to %d", a.Current())
	}

	if _, err := a.Apply("TOGGLE"); err != nil {
		t.Fatal(err)
	}
	if out.Level() || a.Payload() != "1" {
		t.Errorf("toggle back: level %v payload %s", out.Level(), a.Payload())
	}
}

func TestLatch_PulsesThenReleases(t *testing.T) {
	c0, c1 := &hw.SimOutput{}, &hw.SimOutput{}
	clk := newClock()
	a, err := New(Spec{
		Name:  "valve",
		Kind:  Selector,
		Drive: Latch,
		Lines: []hw.Output{c0, c1},
		Pulse: 100 * time.Millisecond,
	}, clk)
	if err != nil {
		t.Fatal(err)
	}

	// Already at mode 1: no-op
	if _, err := a.SetState(Mode1); err != nil {
		t.Fatal(err)
	}
	if clk.Slept() != 0 {
		t.Errorf("no-op latch slept %v", clk.Slept())
	}

	if _, err := a.SetState(Mode2); err != nil {
		t.Fatal(err)
	}
	if a.Current() != Mode2 {
		t.Errorf("Current() = %d, want 2", a.Current())
	}
	if clk.Slept() != 100*time.Millisecond {
		t.Errorf("Slept() = %v, want pulse duration", clk.Slept())
	}

	// coil 1 went high then low; coil 0 held low throughout
	h1 := c1.History()
	if len(h1) < 2 || !h1[len(h1)-2] || h1[len(h1)-1] {
		t.Errorf("coil 1 history = %v", h1)
	}
	for _, v := range c0.History() {
		if v {
			t.Errorf("coil 0 energized: %v", c0.History())
		}
	}
}

func TestPulseConfirmed_ReachesTarget(t *testing.T) {
	relay := hw.NewSimLatchingRelay(1, 2, 1, 2)
	clk := newClock()
	a := newValve(t, relay, clk)

	if a.Current() != Mode1 {
		t.Fatalf("initial = %d, want 1", a.Current())
	}

	got, err := a.Apply("2")
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got != Mode2 || a.Payload() != "2" {
		t.Errorf("observed = %d, want 2", got)
	}
	if relay.Pulses() != 1 {
		t.Errorf("Pulses() = %d, want 1", relay.Pulses())
	}
	if clk.Slept() != 350*time.Millisecond {
		t.Errorf("Slept() = %v, want pulse + settle", clk.Slept())
	}
}

func TestPulseConfirmed_SensorAlreadyAtTarget(t *testing.T) {
	relay := hw.NewSimLatchingRelay(1, 2, 1, 2)
	clk := newClock()
	a := newValve(t, relay, clk)

	// Someone moved the valve by hand; logical state is stale
	_ = relay.Coil(1).Set(true)
	_ = relay.Coil(1).Set(false)
	pulses := relay.Pulses()

	got, err := a.SetState(Mode2)
	if err != nil {
		t.Fatal(err)
	}
	if got != Mode2 {
		t.Errorf("observed = %d, want 2", got)
	}
	if relay.Pulses() != pulses {
		t.Error("pulsed although the sensor already reported the target")
	}
	if clk.Slept() != 0 {
		t.Errorf("Slept() = %v, want 0", clk.Slept())
	}
}

func TestPulseConfirmed_StuckAdoptsSensor(t *testing.T) {
	relay := hw.NewSimLatchingRelay(1, 2, 1, 2)
	a := newValve(t, relay, newClock())
	relay.Stick(true)

	got, err := a.SetState(Mode2)
	if err != nil {
		t.Fatalf("SetState() error = %v", err)
	}
	if got != Mode1 || a.Current() != Mode1 {
		t.Errorf("observed = %d, want sensor reading 1", got)
	}
	if relay.Pulses() != 1 {
		t.Errorf("Pulses() = %d, want exactly one (no retry)", relay.Pulses())
	}
}

func TestPulseConfirmed_SensorFlipsDuringSettle(t *testing.T) {
	relay := hw.NewSimLatchingRelay(1, 2, 1, 2)
	relay.Stick(true)
	clk := newClock()
	a := newValve(t, relay, clk)

	// The contact moves late, during the settle wait
	clk.OnSleep(func(time.Time) {
		if clk.Slept() >= 350*time.Millisecond {
			relay.Stick(false)
			_ = relay.Coil(1).Set(false)
			_ = relay.Coil(1).Set(true)
			_ = relay.Coil(1).Set(false)
		}
	})

	got, err := a.SetState(Mode2)
	if err != nil {
		t.Fatal(err)
	}
	if got != Mode2 {
		t.Errorf("observed = %d, want post-settle reading 2", got)
	}
}

func TestPulseConfirmed_SensorError(t *testing.T) {
	sensor := hw.NewSimAnalog(0)
	coil := &hw.SimOutput{}
	a, err := New(Spec{
		Name:     "valve",
		Kind:     Selector,
		Drive:    PulseConfirmed,
		Lines:    []hw.Output{coil},
		Feedback: &Feedback{Input: sensor, Threshold: 2000, Powered: Mode2, Unpowered: Mode1},
	}, newClock())
	if err != nil {
		t.Fatal(err)
	}

	sensor.Fail(errors.New("i2c timeout"))
	got, err := a.SetState(Mode2)
	if !faults.Is(err, faults.ErrTypeHardware) {
		t.Errorf("SetState() error = %v, want hardware error", err)
	}
	if got != Mode1 {
		t.Errorf("position changed to %d on sensor failure", got)
	}
}

func TestPulseConfirmed_SingleToggleCoil(t *testing.T) {
	relay := hw.NewSimLatchingRelay(0, 1, 0, 1)
	a, err := New(Spec{
		Name:     "light",
		Kind:     Switch,
		Drive:    PulseConfirmed,
		Lines:    []hw.Output{relay.ToggleCoil()},
		Feedback: &Feedback{Input: relay.Sensor(), Threshold: 2000, Powered: On, Unpowered: Off},
	}, newClock())
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []Position{On, Off} {
		got, err := a.SetState(want)
		if err != nil || got != want {
			t.Errorf("SetState(%d) = %d, %v", want, got, err)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	out := &hw.SimOutput{}
	tests := []struct {
		name string
		spec Spec
	}{
		{"no name", Spec{Kind: Switch, Drive: Direct, Lines: []hw.Output{out}}},
		{"direct selector", Spec{Name: "x", Kind: Selector, Drive: Direct, Lines: []hw.Output{out}}},
		{"latch one line", Spec{Name: "x", Kind: Selector, Drive: Latch, Lines: []hw.Output{out}}},
		{"pulse without sensor", Spec{Name: "x", Kind: Selector, Drive: PulseConfirmed, Lines: []hw.Output{out}}},
		{"direct no line", Spec{Name: "x", Kind: Switch, Drive: Direct}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.spec, newClock()); !faults.Is(err, faults.ErrTypeValidation) {
				t.Errorf("New() error = %v, want validation error", err)
			}
		})
	}
}

func TestBuild_FromDefaultConfig(t *testing.T) {
	cfg := config.Default()
	bank := hw.NewSimBank()

	for _, ac := range cfg.Actuators {
		a, err := Build(ac, bank, hw.NewSimAnalog(0), newClock())
		if err != nil {
			t.Fatalf("Build(%s) error = %v", ac.Name, err)
		}
		if a.Name() != ac.Name {
			t.Errorf("Name() = %s, want %s", a.Name(), ac.Name)
		}
	}

	inv := config.ActuatorConfig{Name: "aux", Kind: config.KindSwitch, Drive: config.DriveDirect, Pins: []int{9}, Inverted: true}
	a, err := Build(inv, bank, nil, newClock())
	if err != nil {
		t.Fatal(err)
	}
	if !bank.Pin(9).Level() {
		t.Error("inverted output should idle high")
	}
	if _, err := a.Apply("ON"); err != nil {
		t.Fatal(err)
	}
	if bank.Pin(9).Level() {
		t.Error("inverted output should drive low when on")
	}
}
