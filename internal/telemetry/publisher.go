// Package telemetry publishes the retained state topics of the device.
//
// Every publish goes through one primitive guarded by Sink.CanPublish, so
// state changes made while the session is down are dropped rather than
// queued. The next (re)connect republishes everything through PublishAll.
package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/muurk/poolctl/internal/actuator"
	"github.com/muurk/poolctl/internal/automation"
	"github.com/muurk/poolctl/internal/hw"
	"github.com/muurk/poolctl/internal/logging"
	"github.com/muurk/poolctl/internal/wifi"
	"go.uber.org/zap"
)

// Topic domains published by the telemetry publisher itself
const (
	DomainWiFi        = "wifi"
	DomainTemperature = "temperature"
)

// Sink is the retained-publish primitive of the session
type Sink interface {
	CanPublish() bool
	PublishRetained(topic, payload string) error
}

// StateTopic returns devices/{id}/{domain}/state
func StateTopic(deviceID, domain string) string {
	return fmt.Sprintf("devices/%s/%s/state", deviceID, domain)
}

// CommandTopic returns devices/{id}/{domain}/set
func CommandTopic(deviceID, domain string) string {
	return fmt.Sprintf("devices/%s/%s/set", deviceID, domain)
}

// Quality classifies a signal strength in dBm
func Quality(rssi int) string {
	switch {
	case rssi >= -50:
		return "excellent"
	case rssi >= -60:
		return "good"
	case rssi >= -70:
		return "fair"
	default:
		return "weak"
	}
}

const disconnectedPayload = `{"status":"disconnected"}`

type connectivity struct {
	Status  string `json:"status"`
	SSID    string `json:"ssid"`
	IP      string `json:"ip"`
	RSSI    int    `json:"rssi"`
	Quality string `json:"quality"`
}

// ConnectivityPayload renders a link status
func ConnectivityPayload(st wifi.Status) string {
	if !st.Connected {
		return disconnectedPayload
	}
	data, _ := json.Marshal(connectivity{
		Status:  "connected",
		SSID:    st.SSID,
		IP:      st.IP,
		RSSI:    st.RSSI,
		Quality: Quality(st.RSSI),
	})
	return string(data)
}

// Publisher owns the derived telemetry snapshot. Nothing it publishes is
// stored; each payload is recomputed at publish time.
type Publisher struct {
	deviceID  string
	sink      Sink
	link      wifi.Link
	probe     hw.Thermometer
	actuators []*actuator.Actuator
	timer     *automation.Timer
	interval  time.Duration
	lastRun   time.Time
}

// Options configure a Publisher. Probe and Timer may be nil.
type Options struct {
	DeviceID  string
	Sink      Sink
	Link      wifi.Link
	Probe     hw.Thermometer
	Actuators []*actuator.Actuator
	Interval  time.Duration
}

// New returns a publisher
func New(opts Options) *Publisher {
	return &Publisher{
		deviceID:  opts.DeviceID,
		sink:      opts.Sink,
		link:      opts.Link,
		probe:     opts.Probe,
		actuators: opts.Actuators,
		interval:  opts.Interval,
	}
}

// SetSink attaches the publish primitive. The supervisor is built after the
// publisher and attaches itself here.
func (p *Publisher) SetSink(s Sink) { p.sink = s }

// SetTimer attaches the automation timer, which itself reports through p
func (p *Publisher) SetTimer(t *automation.Timer) { p.timer = t }

func (p *Publisher) publish(domain, payload string) {
	if p.sink == nil || !p.sink.CanPublish() {
		logging.Debug("Publish skipped, session down", zap.String("domain", domain))
		return
	}
	topic := StateTopic(p.deviceID, domain)
	err := p.sink.PublishRetained(topic, payload)
	logging.LogPublish(topic, payload, err)
}

// PublishActuator publishes the observed position of a
func (p *Publisher) PublishActuator(a *actuator.Actuator) {
	p.publish(a.Name(), a.Payload())
}

// PublishTimer publishes s
func (p *Publisher) PublishTimer(s automation.State) {
	p.publish(automation.Domain, s.Payload())
}

// PublishConnectivity publishes the link quality
func (p *Publisher) PublishConnectivity() {
	p.publish(DomainWiFi, ConnectivityPayload(p.link.Status()))
}

// PublishEnvironment publishes the water temperature with one decimal.
// A failed read or a disconnected probe skips this cycle.
func (p *Publisher) PublishEnvironment() {
	if p.probe == nil {
		return
	}
	c, err := p.probe.Celsius()
	if err != nil {
		logging.Warn("Temperature read failed", zap.Error(err))
		return
	}
	if c <= hw.SentinelCelsius {
		logging.Debug("Temperature probe disconnected, skipping")
		return
	}
	p.publish(DomainTemperature, fmt.Sprintf("%.1f", c))
}

// PublishAll publishes connectivity, environment, every actuator and the timer
func (p *Publisher) PublishAll() {
	p.PublishConnectivity()
	p.PublishEnvironment()
	for _, a := range p.actuators {
		p.PublishActuator(a)
	}
	if p.timer != nil {
		p.PublishTimer(p.timer.State())
	}
}

// Tick runs PublishAll once per interval while the session is up
func (p *Publisher) Tick(now time.Time) {
	if p.sink == nil || !p.sink.CanPublish() {
		return
	}
	if !p.lastRun.IsZero() && now.Sub(p.lastRun) < p.interval && !now.Before(p.lastRun) {
		return
	}
	p.lastRun = now
	p.PublishAll()
}
