package automation

import (
	"testing"
	"time"

	"github.com/muurk/poolctl/internal/actuator"
	"github.com/muurk/poolctl/internal/clock"
	"github.com/muurk/poolctl/internal/hw"
)

type event struct {
	domain  string
	payload string
	state   State
}

type recorder struct {
	events []event
}

func (r *recorder) PublishActuator(a *actuator.Actuator) {
	r.events = append(r.events, event{domain: a.Name(), payload: a.Payload()})
}

func (r *recorder) PublishTimer(s State) {
	r.events = append(r.events, event{domain: Domain, payload: s.Payload(), state: s})
}

func (r *recorder) timerStates() []State {
	var out []State
	for _, e := range r.events {
		if e.domain == Domain {
			out = append(out, e.state)
		}
	}
	return out
}

type fixture struct {
	timer *Timer
	rec   *recorder
	clock *clock.Fake
	pump  *actuator.Actuator
	valve *actuator.Actuator
	relay *hw.SimLatchingRelay
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	pump, err := actuator.New(actuator.Spec{
		Name:  "pump",
		Kind:  actuator.Switch,
		Drive: actuator.Direct,
		Lines: []hw.Output{&hw.SimOutput{}},
	}, clk)
	if err != nil {
		t.Fatal(err)
	}

	relay := hw.NewSimLatchingRelay(1, 2, 1, 2)
	valve, err := actuator.New(actuator.Spec{
		Name:   "valve",
		Kind:   actuator.Selector,
		Drive:  actuator.PulseConfirmed,
		Lines:  []hw.Output{relay.Coil(0), relay.Coil(1)},
		Pulse:  150 * time.Millisecond,
		Settle: 200 * time.Millisecond,
		Feedback: &actuator.Feedback{
			Input:     relay.Sensor(),
			Threshold: 2000,
			Powered:   actuator.Mode2,
			Unpowered: actuator.Mode1,
		},
	}, clk)
	if err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	timer := New(pump, valve, rec, clk, Settings{
		Settle:        500 * time.Millisecond,
		PublishEvery:  10,
		NearZero:      5,
		MaxPublishGap: 30 * time.Second,
	})
	return &fixture{timer: timer, rec: rec, clock: clk, pump: pump, valve: valve, relay: relay}
}

func (f *fixture) tickSeconds(n int) {
	for i := 0; i < n; i++ {
		f.clock.Advance(time.Second)
		f.timer.Tick(f.clock.Now())
	}
}

func TestStart_Sequence(t *testing.T) {
	f := newFixture(t)

	if err := f.timer.Start(2, 10); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	want := []string{"valve", "pump", Domain}
	if len(f.rec.events) != len(want) {
		t.Fatalf("events = %+v, want domains %v", f.rec.events, want)
	}
	for i, d := range want {
		if f.rec.events[i].domain != d {
			t.Errorf("event %d = %s, want %s", i, f.rec.events[i].domain, d)
		}
	}
	if f.rec.events[0].payload != "2" || f.rec.events[1].payload != "ON" {
		t.Errorf("valve/pump payloads = %s/%s", f.rec.events[0].payload, f.rec.events[1].payload)
	}
	if f.relay.Position() != 2 {
		t.Errorf("relay position = %d, want 2", f.relay.Position())
	}

	// valve pulse + valve settle + timer settle
	if f.clock.Slept() != 850*time.Millisecond {
		t.Errorf("Slept() = %v", f.clock.Slept())
	}

	got := f.timer.State()
	if !got.Active || got.Remaining != 10 || got.Duration != 10 || got.Mode != 2 {
		t.Errorf("State() = %+v", got)
	}
	if p := f.rec.events[2].payload; p != `{"active":true,"remaining":10,"mode":2,"duration":10}` {
		t.Errorf("timer payload = %s", p)
	}
}

func TestStart_StuckValveReportsObservedMode(t *testing.T) {
	f := newFixture(t)
	f.relay.Stick(true)

	if err := f.timer.Start(2, 60); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if got := f.valve.Current(); got != actuator.Mode1 {
		t.Fatalf("valve = %v, want it stuck in mode 1", got)
	}
	if got := f.timer.State().Mode; got != 1 {
		t.Errorf("timer mode = %d, want observed mode 1", got)
	}
	states := f.rec.timerStates()
	if len(states) == 0 || states[len(states)-1].Mode != 1 {
		t.Errorf("published timer states = %+v, want mode 1", states)
	}
	if f.pump.Current() != actuator.On {
		t.Error("pump should still run")
	}
}

func TestCountdown_TenSeconds(t *testing.T) {
	f := newFixture(t)
	if err := f.timer.Start(2, 10); err != nil {
		t.Fatal(err)
	}

	for want := uint32(9); want > 0; want-- {
		f.tickSeconds(1)
		if got := f.timer.State().Remaining; got != want {
			t.Fatalf("remaining = %d, want %d", got, want)
		}
	}

	f.tickSeconds(1)
	st := f.timer.State()
	if st.Active || st.Remaining != 0 {
		t.Errorf("final state = %+v, want idle with 0 remaining", st)
	}
	if f.pump.Current() != actuator.Off {
		t.Error("pump still on after countdown")
	}

	// 10 (start), then 5,4,3,2,1, then the idle publish from Stop
	var remaining []uint32
	for _, s := range f.rec.timerStates() {
		remaining = append(remaining, s.Remaining)
	}
	want := []uint32{10, 5, 4, 3, 2, 1, 0}
	if len(remaining) != len(want) {
		t.Fatalf("published remaining = %v, want %v", remaining, want)
	}
	for i := range want {
		if remaining[i] != want[i] {
			t.Errorf("published remaining = %v, want %v", remaining, want)
			break
		}
	}
	if last := f.rec.events[len(f.rec.events)-1]; last.state.Active {
		t.Error("last publish should report inactive")
	}
}

func TestTick_MultipleSecondsAtOnce(t *testing.T) {
	f := newFixture(t)
	if err := f.timer.Start(1, 100); err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(3500 * time.Millisecond)
	f.timer.Tick(f.clock.Now())
	if got := f.timer.State().Remaining; got != 97 {
		t.Errorf("remaining = %d, want 97", got)
	}

	// The half second carries over
	f.clock.Advance(500 * time.Millisecond)
	f.timer.Tick(f.clock.Now())
	if got := f.timer.State().Remaining; got != 96 {
		t.Errorf("remaining = %d, want 96", got)
	}
}

func TestTick_PublishPolicy(t *testing.T) {
	f := newFixture(t)
	if err := f.timer.Start(1, 100); err != nil {
		t.Fatal(err)
	}
	before := len(f.rec.timerStates())

	f.tickSeconds(9) // 99..91, nothing due
	if n := len(f.rec.timerStates()) - before; n != 0 {
		t.Errorf("published %d times before a multiple of 10", n)
	}
	f.tickSeconds(1) // 90
	if n := len(f.rec.timerStates()) - before; n != 1 {
		t.Errorf("published %d times at 90, want 1", n)
	}
}

func TestTick_MaxPublishGap(t *testing.T) {
	f := newFixture(t)
	f.timer.settings.PublishEvery = 1000
	if err := f.timer.Start(1, 500); err != nil {
		t.Fatal(err)
	}
	before := len(f.rec.timerStates())

	f.tickSeconds(29)
	if n := len(f.rec.timerStates()) - before; n != 0 {
		t.Errorf("published %d times within the gap", n)
	}
	f.tickSeconds(1)
	if n := len(f.rec.timerStates()) - before; n != 1 {
		t.Errorf("published %d times at the gap, want 1", n)
	}
}

func TestTick_ClockBackwards(t *testing.T) {
	f := newFixture(t)
	if err := f.timer.Start(1, 60); err != nil {
		t.Fatal(err)
	}

	f.tickSeconds(5)
	f.clock.Set(f.clock.Now().Add(-time.Hour))
	f.timer.Tick(f.clock.Now())

	st := f.timer.State()
	if st.Remaining != 55 || st.Remaining > st.Duration {
		t.Errorf("remaining after backwards jump = %d, want 55", st.Remaining)
	}

	f.tickSeconds(1)
	if got := f.timer.State().Remaining; got != 54 {
		t.Errorf("remaining = %d, want 54", got)
	}
}

func TestTick_IdleIsNoop(t *testing.T) {
	f := newFixture(t)
	f.tickSeconds(5)
	if len(f.rec.events) != 0 {
		t.Errorf("idle timer published %d events", len(f.rec.events))
	}
}

func TestStart_ZeroDurationEqualsStop(t *testing.T) {
	a := newFixture(t)
	b := newFixture(t)

	for _, f := range []*fixture{a, b} {
		if err := f.timer.Start(2, 30); err != nil {
			t.Fatal(err)
		}
	}

	if err := a.timer.Start(1, 0); err != nil {
		t.Fatalf("Start(1, 0) error = %v", err)
	}
	b.timer.Stop()

	if a.timer.State() != b.timer.State() {
		t.Errorf("Start(1,0) state = %+v, Stop() state = %+v", a.timer.State(), b.timer.State())
	}
	if a.pump.Current() != b.pump.Current() {
		t.Error("pump differs between Start(_, 0) and Stop()")
	}
}

func TestStart_InvalidMode(t *testing.T) {
	f := newFixture(t)

	for _, mode := range []int{0, 3, -1} {
		if err := f.timer.Start(mode, 10); err == nil {
			t.Errorf("Start(%d, 10) should fail", mode)
		}
	}
	if f.timer.State().Active || len(f.rec.events) != 0 {
		t.Error("invalid mode mutated or published")
	}
}

func TestStop_IdleIsNoop(t *testing.T) {
	f := newFixture(t)
	f.timer.Stop()
	if len(f.rec.events) != 0 {
		t.Errorf("Stop() on idle timer published %d events", len(f.rec.events))
	}
}
