package session

import (
	"context"
	"errors"
	"sync"
)

// Publication is one retained publish recorded by Fake
type Publication struct {
	Topic   string
	Payload string
}

// Fake is an in-memory broker connection
type Fake struct {
	mu         sync.Mutex
	deviceID   string
	up         bool
	connectErr error
	connects   int
	subscribed []string
	published  []Publication
	inbox      queue
}

// NewFake returns a disconnected session for deviceID
func NewFake(deviceID string) *Fake {
	return &Fake{deviceID: deviceID}
}

// FailConnect makes Connect return err; nil restores success
func (f *Fake) FailConnect(err error) {
	f.mu.Lock()
	f.connectErr = err
	f.mu.Unlock()
}

// Drop simulates the broker closing the connection
func (f *Fake) Drop() {
	f.mu.Lock()
	f.up = false
	f.mu.Unlock()
}

// Inject queues an inbound message as if the broker delivered it
func (f *Fake) Inject(topic, payload string) {
	f.inbox.push(Message{Topic: topic, Payload: []byte(payload)})
}

// Connect marks the session up and publishes online
func (f *Fake) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.up = true
	f.published = append(f.published, Publication{AvailabilityTopic(f.deviceID), Online})
	return nil
}

// Connected reports the session state
func (f *Fake) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.up
}

// Subscribe records topics
func (f *Fake) Subscribe(topics []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.up {
		return errors.New("not connected")
	}
	f.subscribed = append(f.subscribed, topics...)
	return nil
}

// PublishRetained records a publish
func (f *Fake) PublishRetained(topic, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.up {
		return errors.New("not connected")
	}
	f.published = append(f.published, Publication{topic, payload})
	return nil
}

// Drain returns queued inbound messages
func (f *Fake) Drain() []Message {
	return f.inbox.drain()
}

// Disconnect marks the session down
func (f *Fake) Disconnect() {
	f.Drop()
}

// Connects returns how many times Connect was called
func (f *Fake) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

// Subscribed returns every topic subscribed so far
func (f *Fake) Subscribed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscribed...)
}

// Published returns every publish so far
func (f *Fake) Published() []Publication {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Publication(nil), f.published...)
}

// Last returns the most recent payload published to topic
func (f *Fake) Last(topic string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.published) - 1; i >= 0; i-- {
		if f.published[i].Topic == topic {
			return f.published[i].Payload, true
		}
	}
	return "", false
}
