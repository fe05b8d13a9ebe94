package device

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/muurk/poolctl/internal/clock"
	"github.com/muurk/poolctl/internal/config"
	"github.com/muurk/poolctl/internal/credentials"
	"github.com/muurk/poolctl/internal/faults"
	"github.com/muurk/poolctl/internal/hw"
	"github.com/muurk/poolctl/internal/session"
	"github.com/muurk/poolctl/internal/supervisor"
	"github.com/muurk/poolctl/internal/wifi"
)

type bench struct {
	dev  *Device
	cfg  *config.Config
	sim  *SimHardware
	sess *session.Fake
	link *wifi.Fake
	clk  *clock.Fake
	kv   *credentials.MemoryKV
}

func newBench(t *testing.T, provisioned bool) *bench {
	t.Helper()
	cfg := config.Default()
	cfg.Device.ID = "pool-01"

	b := &bench{
		cfg:  cfg,
		sim:  NewSimHardware(),
		sess: session.NewFake("pool-01"),
		link: wifi.NewFake(net.HardwareAddr{0, 1, 2, 3, 4, 5}),
		clk:  clock.NewFake(time.Unix(1700000100, 0)),
		kv:   credentials.NewMemoryKV(),
	}
	if provisioned {
		store := credentials.NewStore(b.kv)
		if err := store.Save(credentials.Credentials{SSID: "Home", Secret: "secret123"}); err != nil {
			t.Fatal(err)
		}
		b.link.Allow("Home", "secret123")
	}

	dev, err := New(cfg, Options{
		Clock:   b.clk,
		Link:    b.link,
		Hotspot: b.link,
		Session: b.sess,
		Bank:    b.sim,
		Sensor:  b.sim.Sensor,
		Probe:   hw.NewSimThermometer(26.5),
		KV:      b.kv,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	b.dev = dev
	return b
}

func (b *bench) step(t *testing.T) {
	t.Helper()
	if err := b.dev.Step(context.Background()); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
}

func (b *bench) online(t *testing.T) {
	t.Helper()
	for i := 0; i < 5; i++ {
		b.step(t)
		if b.dev.Supervisor().State() == supervisor.SessionUp {
			return
		}
	}
	t.Fatalf("device never came online; state %v", b.dev.Supervisor().State())
}

func (b *bench) state(t *testing.T, domain string) string {
	t.Helper()
	got, ok := b.sess.Last("devices/pool-01/" + domain + "/state")
	if !ok {
		t.Fatalf("nothing published for %s", domain)
	}
	return got
}

func TestDevice_InitialStatePublished(t *testing.T) {
	b := newBench(t, true)
	b.online(t)

	tests := []struct {
		domain string
		want   string
	}{
		{"pump", "OFF"},
		{"valve", "1"},
		{"light", "OFF"},
		{"temperature", "26.5"},
		{"timer", `{"active":false,"remaining":0,"mode":1,"duration":0}`},
	}
	for _, tt := range tests {
		if got := b.state(t, tt.domain); got != tt.want {
			t.Errorf("%s state = %q, want %q", tt.domain, got, tt.want)
		}
	}
	if got := b.state(t, "wifi"); !strings.Contains(got, `"ssid":"Home"`) {
		t.Errorf("wifi state = %q", got)
	}

	subscribed := strings.Join(b.sess.Subscribed(), ",")
	for _, d := range []string{"pump", "valve", "light", "timer"} {
		if !strings.Contains(subscribed, "devices/pool-01/"+d+"/set") {
			t.Errorf("%s command topic not subscribed: %s", d, subscribed)
		}
	}
}

func TestDevice_CommandsInArrivalOrder(t *testing.T) {
	b := newBench(t, true)
	b.online(t)

	b.sess.Inject("devices/pool-01/pump/set", "ON")
	b.sess.Inject("devices/pool-01/light/set", "on")
	b.sess.Inject("devices/pool-01/pump/set", "OFF")
	b.step(t)

	if got := b.state(t, "pump"); got != "OFF" {
		t.Errorf("pump state = %q, want OFF", got)
	}
	if got := b.state(t, "light"); got != "ON" {
		t.Errorf("light state = %q, want ON", got)
	}
	if b.sim.Pin(26).Level() {
		t.Error("pump pin high after OFF")
	}
}

func TestDevice_ValvePulse(t *testing.T) {
	b := newBench(t, true)
	b.online(t)

	b.sess.Inject("devices/pool-01/valve/set", "2")
	b.step(t)

	relay := b.sim.Relay("valve")
	if relay.Position() != 2 || relay.Pulses() != 1 {
		t.Errorf("relay position %d after %d pulses, want 2 after 1", relay.Position(), relay.Pulses())
	}
	if got := b.state(t, "valve"); got != "2" {
		t.Errorf("valve state = %q, want 2", got)
	}
}

func TestDevice_TimerRuns(t *testing.T) {
	b := newBench(t, true)
	b.online(t)

	b.sess.Inject("devices/pool-01/timer/set", `{"mode":2,"duration":3}`)
	b.step(t)

	if !b.dev.Timer().State().Active || b.dev.Actuator("pump").Payload() != "ON" {
		t.Fatal("timer did not start the pump")
	}
	if got := b.state(t, "valve"); got != "2" {
		t.Errorf("valve state = %q, want 2", got)
	}

	for i := 0; i < 3; i++ {
		b.clk.Advance(time.Second)
		b.step(t)
	}

	if b.dev.Timer().State().Active {
		t.Error("timer still active after its duration")
	}
	if got := b.state(t, "pump"); got != "OFF" {
		t.Errorf("pump state = %q, want OFF", got)
	}
	if got := b.state(t, "timer"); !strings.Contains(got, `"active":false`) {
		t.Errorf("timer state = %q", got)
	}
}

func TestDevice_ForeignTopicIgnored(t *testing.T) {
	b := newBench(t, true)
	b.online(t)
	before := len(b.sess.Published())

	b.sess.Inject("devices/other/pump/set", "ON")
	b.step(t)

	if b.dev.Actuator("pump").Payload() != "OFF" {
		t.Error("command for another device applied")
	}
	if len(b.sess.Published()) != before {
		t.Error("ignored command published something")
	}
}

func TestDevice_ProvisioningExhausted(t *testing.T) {
	b := newBench(t, false)
	b.cfg.Provisioning.PairingTimeout = 0

	sim := NewSimHardware()
	dev, err := New(b.cfg, Options{
		Clock:   b.clk,
		Link:    b.link,
		Session: b.sess,
		Bank:    sim,
		Sensor:  sim.Sensor,
		KV:      b.kv,
	})
	if err != nil {
		t.Fatal(err)
	}

	err = dev.Run(context.Background())
	if !faults.Is(err, faults.ErrTypeProvisioning) {
		t.Fatalf("Run() error = %v, want provisioning failure", err)
	}
}

func TestDevice_RunStopsOnCancel(t *testing.T) {
	b := newBench(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.dev.Run(ctx); err != nil {
		t.Errorf("Run() error = %v, want nil", err)
	}
	if err := b.dev.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNew_AutomationNeedsActuators(t *testing.T) {
	cfg := config.Default()
	cfg.Automation.Valve = "missing"

	sim := NewSimHardware()
	_, err := New(cfg, Options{
		Clock:   clock.NewFake(time.Unix(1700000100, 0)),
		Link:    wifi.NewFake(nil),
		Session: session.NewFake(cfg.Device.ID),
		Bank:    sim,
		Sensor:  sim.Sensor,
		KV:      credentials.NewMemoryKV(),
	})
	if !faults.Is(err, faults.ErrTypeValidation) {
		t.Errorf("New() error = %v, want validation error", err)
	}
}

func TestFallbacks(t *testing.T) {
	cfg := config.Default()
	cfg.WiFi.Fallbacks = []config.Network{{SSID: "Shed", Secret: "shedpass12"}}

	got := Fallbacks(cfg)
	if len(got) != 1 || got[0].SSID != "Shed" || got[0].Source != credentials.SourceFallback {
		t.Errorf("Fallbacks() = %v", got)
	}
}
