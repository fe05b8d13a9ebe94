package provision

import (
	"sync"
	"sync/atomic"

	"github.com/muurk/poolctl/internal/credentials"
	"github.com/muurk/poolctl/internal/server"
)

// Inbox is the buffer between a transport's connection goroutines (the
// producer) and the control loop (the consumer). Write only copies and sets
// flags; Take is the only place the loop reads and clears them.
type Inbox struct {
	allowOpen bool

	mu         sync.Mutex
	ssid       string
	secret     string
	haveSSID   bool
	haveSecret bool
	newSSID    bool
	newSecret  bool

	ready atomic.Bool
	scan  atomic.Bool
}

// NewInbox returns an empty inbox. With allowOpen an empty secret counts as
// written, so open networks can be submitted.
func NewInbox(allowOpen bool) *Inbox {
	return &Inbox{allowOpen: allowOpen}
}

// Write is a server.WriteFunc
func (b *Inbox) Write(slot, value string) {
	switch slot {
	case server.SlotScan:
		b.scan.Store(true)
		return
	case server.SlotSSID, server.SlotSecret:
	default:
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if slot == server.SlotSSID {
		b.ssid = value
		b.haveSSID = value != ""
		b.newSSID = b.haveSSID
	} else {
		b.secret = value
		b.haveSecret = value != "" || b.allowOpen
		b.newSecret = b.haveSecret
	}
	if b.haveSSID && b.haveSecret {
		b.ready.Store(true)
	}
}

// Snapshot is what the loop learns from one Take
type Snapshot struct {
	Ready       bool
	Credentials credentials.Credentials
	NewSSID     bool
	NewSecret   bool
	Scan        bool
}

// Take consumes pending events. When credentials are ready they are
// returned and the buffer is cleared for the next submission.
func (b *Inbox) Take() Snapshot {
	s := Snapshot{Scan: b.scan.Swap(false)}

	b.mu.Lock()
	defer b.mu.Unlock()

	s.NewSSID, s.NewSecret = b.newSSID, b.newSecret
	b.newSSID, b.newSecret = false, false

	if b.ready.Load() {
		s.Ready = true
		s.Credentials = credentials.Credentials{SSID: b.ssid, Secret: b.secret}
		b.clearLocked()
	}
	return s
}

// Reset drops anything buffered
func (b *Inbox) Reset() {
	b.scan.Store(false)
	b.mu.Lock()
	b.clearLocked()
	b.newSSID, b.newSecret = false, false
	b.mu.Unlock()
}

func (b *Inbox) clearLocked() {
	b.ssid, b.secret = "", ""
	b.haveSSID, b.haveSecret = false, false
	b.ready.Store(false)
}
