// Package router maps inbound command messages to actuators and the timer.
package router

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/muurk/poolctl/internal/actuator"
	"github.com/muurk/poolctl/internal/automation"
	"github.com/muurk/poolctl/internal/faults"
	"github.com/muurk/poolctl/internal/logging"
	"go.uber.org/zap"
)

const setSuffix = "/set"

// Reporter publishes the observed state of an actuator
type Reporter interface {
	PublishActuator(a *actuator.Actuator)
}

// Router dispatches commands by exact topic suffix. It is owned by the
// control loop and not safe for concurrent use.
type Router struct {
	deviceID  string
	actuators map[string]*actuator.Actuator
	timer     *automation.Timer
	reporter  Reporter
}

// New returns a router over actuators and an optional timer
func New(deviceID string, actuators []*actuator.Actuator, timer *automation.Timer, reporter Reporter) *Router {
	r := &Router{
		deviceID:  deviceID,
		actuators: make(map[string]*actuator.Actuator, len(actuators)),
		timer:     timer,
		reporter:  reporter,
	}
	for _, a := range actuators {
		r.actuators[a.Name()] = a
	}
	return r
}

// Domains returns every command domain, sorted
func (r *Router) Domains() []string {
	domains := make([]string, 0, len(r.actuators)+1)
	for name := range r.actuators {
		domains = append(domains, name)
	}
	if r.timer != nil {
		domains = append(domains, automation.Domain)
	}
	sort.Strings(domains)
	return domains
}

// Topics returns the full command topic of every domain
func (r *Router) Topics() []string {
	domains := r.Domains()
	topics := make([]string, len(domains))
	for i, d := range domains {
		topics[i] = fmt.Sprintf("devices/%s/%s%s", r.deviceID, d, setSuffix)
	}
	return topics
}

// HandleTopic strips the devices/{id}/ prefix and dispatches the rest
func (r *Router) HandleTopic(topic string, payload []byte) error {
	prefix := "devices/" + r.deviceID + "/"
	if !strings.HasPrefix(topic, prefix) {
		return faults.NewMalformedCommand(fmt.Sprintf("topic %q is not addressed to this device", topic), nil)
	}
	return r.Dispatch(strings.TrimPrefix(topic, prefix), payload)
}

// Dispatch routes one command. suffix is "<domain>/set". Rejected commands
// are logged and returned; they never mutate state or publish.
func (r *Router) Dispatch(suffix string, payload []byte) error {
	logging.LogCommand(suffix, payload)

	err := r.dispatch(suffix, payload)
	if err != nil {
		logging.Warn("Command ignored",
			zap.String("topic", suffix),
			zap.Error(err),
		)
	}
	return err
}

func (r *Router) dispatch(suffix string, payload []byte) error {
	domain, ok := strings.CutSuffix(suffix, setSuffix)
	if !ok || domain == "" || strings.Contains(domain, "/") {
		return faults.NewMalformedCommand(fmt.Sprintf("unroutable topic %q", suffix), nil)
	}

	if domain == automation.Domain && r.timer != nil {
		return r.dispatchTimer(payload)
	}

	a, ok := r.actuators[domain]
	if !ok {
		return faults.NewMalformedCommand(fmt.Sprintf("unknown domain %q", domain), nil)
	}

	if _, err := a.Apply(string(payload)); err != nil {
		return err
	}
	r.reporter.PublishActuator(a)
	return nil
}

type timerCommand struct {
	Mode     *int64 `json:"mode"`
	Duration *int64 `json:"duration"`
}

// ParseTimerCommand decodes {"mode":<1|2>,"duration":<seconds>}. Both fields
// are required integers; duration must fit in 32 bits.
func ParseTimerCommand(payload []byte) (mode int, seconds uint32, err error) {
	var cmd timerCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return 0, 0, faults.NewMalformedCommand("timer payload is not a valid object", err)
	}
	if cmd.Mode == nil {
		return 0, 0, faults.NewMalformedCommand("timer payload missing mode", nil)
	}
	if cmd.Duration == nil {
		return 0, 0, faults.NewMalformedCommand("timer payload missing duration", nil)
	}
	if *cmd.Duration < 0 || *cmd.Duration > math.MaxUint32 {
		return 0, 0, faults.NewMalformedCommand(fmt.Sprintf("timer duration out of range: %d", *cmd.Duration), nil)
	}
	return int(*cmd.Mode), uint32(*cmd.Duration), nil
}

func (r *Router) dispatchTimer(payload []byte) error {
	mode, seconds, err := ParseTimerCommand(payload)
	if err != nil {
		return err
	}
	if seconds == 0 {
		r.timer.Stop()
		return nil
	}
	if err := r.timer.Start(mode, seconds); err != nil {
		return faults.NewMalformedCommand("timer command rejected", err)
	}
	return nil
}
