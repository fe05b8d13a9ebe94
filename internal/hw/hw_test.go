package hw

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInvert(t *testing.T) {
	out := &SimOutput{}
	if err := Invert(out).Set(true); err != nil {
		t.Fatal(err)
	}
	if out.Level() {
		t.Error("inverted Set(true) should drive low")
	}
}

func TestSysfsADC(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in_voltage0_raw")
	if err := os.WriteFile(path, []byte("2048\n"), 0644); err != nil {
		t.Fatal(err)
	}

	v, err := SysfsADC{Path: path}.Read()
	if err != nil || v != 2048 {
		t.Errorf("Read() = %d, %v; want 2048", v, err)
	}

	if _, err := (SysfsADC{Path: filepath.Join(dir, "missing")}).Read(); err == nil {
		t.Error("Read() of a missing channel should fail")
	}
}

func TestParseW1(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    float64
		wantErr bool
	}{
		{"temperature attribute", "23125\n", 23.125, false},
		{"negative", "-1500", -1.5, false},
		{"w1_slave ok", "72 01 4b 46 7f ff 0e 10 57 : crc=57 YES\n72 01 4b 46 7f ff 0e 10 57 t=23125\n", 23.125, false},
		{"w1_slave crc failure", "72 01 4b 46 7f ff 0e 10 57 : crc=57 NO\n72 01 4b 46 7f ff 0e 10 57 t=23125\n", SentinelCelsius, false},
		{"garbage", "abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseW1(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseW1() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseW1() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestW1Thermometer_MissingProbe(t *testing.T) {
	got, err := W1Thermometer{Path: filepath.Join(t.TempDir(), "temperature")}.Celsius()
	if err != nil || got != SentinelCelsius {
		t.Errorf("Celsius() = %v, %v; want sentinel", got, err)
	}
}

func TestSimLatchingRelay_TwoCoils(t *testing.T) {
	r := NewSimLatchingRelay(1, 2, 1, 2)

	if v, _ := r.Sensor().Read(); v != r.SensorLow {
		t.Errorf("sensor at position 1 = %d, want low", v)
	}

	// A pulse is a rising edge followed by release
	_ = r.Coil(1).Set(true)
	_ = r.Coil(1).Set(false)

	if r.Position() != 2 {
		t.Errorf("Position() = %d, want 2", r.Position())
	}
	if v, _ := r.Sensor().Read(); v != r.SensorHigh {
		t.Errorf("sensor at position 2 = %d, want high", v)
	}

	// Holding the coil high is one pulse, not many
	_ = r.Coil(0).Set(true)
	_ = r.Coil(0).Set(true)
	_ = r.Coil(0).Set(false)
	if r.Pulses() != 2 {
		t.Errorf("Pulses() = %d, want 2", r.Pulses())
	}
	if r.Position() != 1 {
		t.Errorf("Position() = %d, want 1", r.Position())
	}
}

func TestSimLatchingRelay_ToggleAndStuck(t *testing.T) {
	r := NewSimLatchingRelay(0, 1, 0, 1)
	coil := r.ToggleCoil()

	_ = coil.Set(true)
	_ = coil.Set(false)
	if r.Position() != 1 {
		t.Fatalf("Position() after toggle = %d, want 1", r.Position())
	}

	r.Stick(true)
	_ = coil.Set(true)
	_ = coil.Set(false)
	if r.Position() != 1 {
		t.Errorf("stuck relay moved to %d", r.Position())
	}
	if r.Pulses() != 2 {
		t.Errorf("Pulses() = %d, want 2", r.Pulses())
	}
}

func TestSimBank_SamePinSameLine(t *testing.T) {
	b := NewSimBank()
	o, _ := b.Output(5)
	_ = o.Set(true)
	if !b.Pin(5).Level() {
		t.Error("Pin(5) should observe the level written through Output(5)")
	}
	if h := b.Pin(5).History(); len(h) != 1 || !h[0] {
		t.Errorf("History() = %v", h)
	}
}
