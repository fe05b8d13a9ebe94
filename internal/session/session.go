// Package session maintains the MQTT connection of the device.
//
// The paho client runs its own goroutines. The only thing its message
// handler does is append to an ordered inbound queue; the control loop
// drains that queue once per iteration, so commands are handled strictly in
// arrival order on the loop goroutine.
package session

import (
	"context"
	"sync"
)

// Message is one inbound publish
type Message struct {
	Topic   string
	Payload []byte
}

// Session is the broker connection as seen by the supervisor
type Session interface {
	Connect(ctx context.Context) error
	Connected() bool
	Subscribe(topics []string) error
	PublishRetained(topic, payload string) error
	Drain() []Message
	Disconnect()
}

// AvailabilityTopic returns devices/{id}/status
func AvailabilityTopic(deviceID string) string {
	return "devices/" + deviceID + "/status"
}

// Availability payloads
const (
	Online  = "online"
	Offline = "offline"
)

// queue is a mutex-guarded FIFO between the client goroutine and the loop
type queue struct {
	mu    sync.Mutex
	items []Message
}

func (q *queue) push(m Message) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()
}

func (q *queue) drain() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}
