package session

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/muurk/poolctl/internal/faults"
	"github.com/muurk/poolctl/internal/logging"
	"go.uber.org/zap"
)

const qos = 1

// Options configure the broker connection
type Options struct {
	Host     string
	Port     int
	ClientID string
	Username string
	Password string
	// TrustAnchor is a PEM file of CA certificates. When empty the
	// connection is plain TCP, which is only meant for a local test broker.
	TrustAnchor    string
	ConnectTimeout time.Duration
	KeepAlive      time.Duration
}

// BrokerURL returns the paho server URL for opts
func (o Options) BrokerURL() string {
	scheme := "tcp"
	if o.TrustAnchor != "" {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, o.Host, o.Port)
}

// MQTT is a Session over the paho client. Reconnection is driven by the
// supervisor, so paho's own auto-reconnect is disabled.
type MQTT struct {
	opts   Options
	client mqtt.Client
	inbox  queue
}

// NewMQTT prepares a client; nothing is dialled until Connect
func NewMQTT(opts Options) (*MQTT, error) {
	var tlsConfig *tls.Config
	if opts.TrustAnchor != "" {
		var err error
		tlsConfig, err = NewTLSConfig(opts.TrustAnchor, opts.Host)
		if err != nil {
			return nil, faults.NewSessionFailure("failed to load trust anchor", err)
		}
	}

	s := &MQTT{opts: opts}

	co := mqtt.NewClientOptions()
	co.AddBroker(opts.BrokerURL())
	co.SetClientID(opts.ClientID)
	co.SetUsername(opts.Username)
	co.SetPassword(opts.Password)
	co.SetAutoReconnect(false)
	co.SetConnectRetry(false)
	co.SetCleanSession(true)
	co.SetOrderMatters(true)
	co.SetConnectTimeout(opts.ConnectTimeout)
	co.SetKeepAlive(opts.KeepAlive)
	co.SetWill(AvailabilityTopic(opts.ClientID), Offline, qos, true)
	if tlsConfig != nil {
		co.SetTLSConfig(tlsConfig)
	}
	co.SetDefaultPublishHandler(s.onMessage)
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logging.Warn("MQTT connection lost", zap.Error(err))
	})

	s.client = mqtt.NewClient(co)
	return s, nil
}

func (s *MQTT) onMessage(_ mqtt.Client, msg mqtt.Message) {
	s.inbox.push(Message{Topic: msg.Topic(), Payload: append([]byte(nil), msg.Payload()...)})
}

// Connect dials the broker and announces the device online
func (s *MQTT) Connect(ctx context.Context) error {
	timeout := s.opts.ConnectTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}

	logging.Info("Connecting to broker",
		zap.String("broker", s.opts.BrokerURL()),
		zap.String("client_id", s.opts.ClientID),
	)

	token := s.client.Connect()
	if !token.WaitTimeout(timeout) {
		return faults.NewSessionFailure("broker connect timed out", context.DeadlineExceeded)
	}
	if err := token.Error(); err != nil {
		return faults.NewSessionFailure("broker connect failed", err)
	}

	return s.PublishRetained(AvailabilityTopic(s.opts.ClientID), Online)
}

// Connected reports whether the connection is open
func (s *MQTT) Connected() bool {
	return s.client.IsConnectionOpen()
}

// Subscribe subscribes to every topic at QoS 1
func (s *MQTT) Subscribe(topics []string) error {
	filters := make(map[string]byte, len(topics))
	for _, t := range topics {
		filters[t] = qos
	}

	token := s.client.SubscribeMultiple(filters, s.onMessage)
	if !token.WaitTimeout(s.opts.ConnectTimeout) {
		return faults.NewSessionFailure("subscribe timed out", context.DeadlineExceeded)
	}
	if err := token.Error(); err != nil {
		return faults.NewSessionFailure("subscribe failed", err)
	}

	logging.Info("Subscribed to command topics", zap.Strings("topics", topics))
	return nil
}

// PublishRetained publishes payload at QoS 1 with the retain flag
func (s *MQTT) PublishRetained(topic, payload string) error {
	token := s.client.Publish(topic, qos, true, payload)
	if !token.WaitTimeout(s.opts.ConnectTimeout) {
		return faults.NewSessionFailure(fmt.Sprintf("publish to %s timed out", topic), context.DeadlineExceeded)
	}
	if err := token.Error(); err != nil {
		return faults.NewSessionFailure(fmt.Sprintf("publish to %s failed", topic), err)
	}
	return nil
}

// Drain returns queued inbound messages in arrival order
func (s *MQTT) Drain() []Message {
	return s.inbox.drain()
}

// Disconnect publishes offline and closes the connection
func (s *MQTT) Disconnect() {
	if !s.client.IsConnectionOpen() {
		return
	}
	_ = s.PublishRetained(AvailabilityTopic(s.opts.ClientID), Offline)
	s.client.Disconnect(250)
}
