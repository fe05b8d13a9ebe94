// Package automation runs the filtration countdown: select a valve mode, run
// the pump for a number of seconds, then stop it.
package automation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/muurk/poolctl/internal/actuator"
	"github.com/muurk/poolctl/internal/clock"
	"github.com/muurk/poolctl/internal/faults"
	"github.com/muurk/poolctl/internal/logging"
	"go.uber.org/zap"
)

// Domain is the topic domain of the timer
const Domain = "timer"

// Reporter publishes state changes
type Reporter interface {
	PublishActuator(a *actuator.Actuator)
	PublishTimer(s State)
}

// State is the timer as published. Remaining never exceeds Duration and is
// zero whenever the timer is idle.
type State struct {
	Active    bool   `json:"active"`
	Remaining uint32 `json:"remaining"`
	Mode      int    `json:"mode"`
	Duration  uint32 `json:"duration"`
}

// Payload returns the JSON form of s
func (s State) Payload() string {
	data, _ := json.Marshal(s)
	return string(data)
}

// Settings tune the countdown
type Settings struct {
	// Settle is the pause between moving the valve and starting the pump
	Settle time.Duration
	// PublishEvery publishes whenever remaining is a multiple of it
	PublishEvery uint32
	// NearZero publishes every second once remaining drops to it
	NearZero uint32
	// MaxPublishGap forces a publish after this long without one
	MaxPublishGap time.Duration
}

// Timer drives the pump and valve actuators
type Timer struct {
	pump     *actuator.Actuator
	valve    *actuator.Actuator
	reporter Reporter
	clock    clock.Clock
	settings Settings

	state       State
	baseline    time.Time
	lastPublish time.Time
}

// New returns an idle timer in mode 1
func New(pump, valve *actuator.Actuator, reporter Reporter, clk clock.Clock, settings Settings) *Timer {
	if settings.PublishEvery == 0 {
		settings.PublishEvery = 10
	}
	return &Timer{
		pump:     pump,
		valve:    valve,
		reporter: reporter,
		clock:    clk,
		settings: settings,
		state:    State{Mode: int(actuator.Mode1)},
	}
}

// State returns a copy of the timer state
func (t *Timer) State() State { return t.state }

// Start selects valve mode, waits for the valve to settle, turns the pump on
// and starts counting down from seconds. A zero duration stops the timer.
// Starting a running timer restarts it with the new parameters.
func (t *Timer) Start(mode int, seconds uint32) error {
	if seconds == 0 {
		t.Stop()
		return nil
	}
	if !t.valve.Valid(actuator.Position(mode)) {
		return faults.NewValidationError(fmt.Sprintf("timer mode %d out of range", mode))
	}

	now := t.clock.Now()
	t.state = State{Active: true, Remaining: seconds, Mode: mode, Duration: seconds}
	t.baseline = now

	logging.Info("Automation timer started",
		zap.Int("mode", mode),
		zap.Uint32("duration", seconds),
	)

	if _, err := t.valve.SetState(actuator.Position(mode)); err != nil {
		logging.Warn("Timer could not move valve", zap.Error(err))
	}
	// A stuck valve runs the pump in whatever mode it is actually in
	if observed := int(t.valve.Current()); observed != mode {
		logging.Warn("Valve did not reach the timer mode",
			zap.Int("requested", mode),
			zap.Int("observed", observed),
		)
		t.state.Mode = observed
	}
	t.reporter.PublishActuator(t.valve)

	t.clock.Sleep(t.settings.Settle)

	if _, err := t.pump.SetState(actuator.On); err != nil {
		logging.Warn("Timer could not start pump", zap.Error(err))
	}
	t.reporter.PublishActuator(t.pump)

	// The settle wait is not counted against the run time
	t.baseline = t.clock.Now()
	t.publish(t.baseline)
	return nil
}

// Stop turns the pump off and idles the timer. Stopping an idle timer does nothing.
func (t *Timer) Stop() {
	if !t.state.Active {
		return
	}

	if _, err := t.pump.SetState(actuator.Off); err != nil {
		logging.Warn("Timer could not stop pump", zap.Error(err))
	}
	t.reporter.PublishActuator(t.pump)

	t.state.Active = false
	t.state.Remaining = 0
	logging.Info("Automation timer stopped", zap.Int("mode", t.state.Mode))

	t.publish(t.clock.Now())
}

// Tick counts down the whole seconds elapsed since the last tick. A clock
// that moved backwards resets the baseline instead of adding time.
func (t *Timer) Tick(now time.Time) {
	if !t.state.Active {
		return
	}

	if now.Before(t.baseline) {
		logging.Warn("Clock moved backwards, resetting timer baseline",
			zap.Time("baseline", t.baseline),
			zap.Time("now", now),
		)
		t.baseline = now
		return
	}

	elapsed := uint32(now.Sub(t.baseline) / time.Second)
	if elapsed == 0 {
		return
	}

	due := false
	for i := uint32(0); i < elapsed && t.state.Remaining > 0; i++ {
		t.state.Remaining--
		t.baseline = t.baseline.Add(time.Second)
		if t.state.Remaining%t.settings.PublishEvery == 0 || t.state.Remaining <= t.settings.NearZero {
			due = true
		}
	}

	if t.state.Remaining == 0 {
		t.Stop()
		return
	}

	if due || (t.settings.MaxPublishGap > 0 && now.Sub(t.lastPublish) >= t.settings.MaxPublishGap) {
		t.publish(now)
	}
}

func (t *Timer) publish(now time.Time) {
	t.lastPublish = now
	t.reporter.PublishTimer(t.state)
}
