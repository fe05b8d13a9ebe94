package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/poolctl/internal/logging"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
)

// Frame is one slot message in either direction
type Frame struct {
	Slot  string `json:"slot"`
	Value string `json:"value"`
}

// client is one WebSocket peer. Writes go through send so only the write
// pump touches the connection for writing.
type client struct {
	conn *websocket.Conn
	send chan Frame
}

// hub tracks peers, fans out notifications and remembers the last value of
// each outbound slot for peers that connect later
type hub struct {
	maxPayload int
	upgrader   websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]bool
	last    map[string]string
	wg      sync.WaitGroup
}

func newHub(maxPayload int) *hub {
	return &hub{
		maxPayload: maxPayload,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Pairing clients are phone apps, not browsers on our origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]bool),
		last:    make(map[string]string),
	}
}

// notify sends a frame to every peer and remembers it
func (h *hub) notify(slot, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.last[slot] = value
	for c := range h.clients {
		select {
		case c.send <- Frame{Slot: slot, Value: value}:
		default:
			logging.Warn("Dropping notification for slow client",
				zap.String("remote_addr", c.conn.RemoteAddr().String()),
				zap.String("slot", slot),
			)
		}
	}
}

func (h *hub) lastValue(slot string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.last[slot]
	return v, ok
}

func (h *hub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// serve upgrades the request and runs the peer until it disconnects. Every
// valid inbound frame is passed to write. greeting goes to this peer only,
// ahead of the remembered slot values, and is not remembered.
func (h *hub) serve(w http.ResponseWriter, r *http.Request, write WriteFunc, greeting ...Frame) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("WebSocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}
	remoteAddr := conn.RemoteAddr().String()
	logging.Info("Transport client connected", zap.String("remote_addr", remoteAddr))

	c := &client{conn: conn, send: make(chan Frame, 16)}

	h.mu.Lock()
	h.clients[c] = true
	for _, f := range greeting {
		c.send <- f
	}
	// Late joiners get the current status and network list
	for slot, value := range h.last {
		c.send <- Frame{Slot: slot, Value: value}
	}
	h.wg.Add(1)
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(c, write)

	h.mu.Lock()
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()
	h.wg.Done()

	logging.Info("Transport client disconnected", zap.String("remote_addr", remoteAddr))
}

func (h *hub) readPump(c *client, write WriteFunc) {
	defer func() { _ = c.conn.Close() }()

	// Oversized messages close the connection with 1009
	c.conn.SetReadLimit(int64(h.maxPayload))
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Info("Connection closed or error reading frame",
					zap.String("remote_addr", c.conn.RemoteAddr().String()),
					zap.Error(err),
				)
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			logging.Warn("Ignoring malformed frame",
				zap.String("remote_addr", c.conn.RemoteAddr().String()),
				zap.Error(err),
			)
			continue
		}

		switch f.Slot {
		case SlotSSID, SlotSecret, SlotScan:
			write(f.Slot, f.Value)
		default:
			logging.Warn("Ignoring write to unknown slot", zap.String("slot", f.Slot))
		}
	}
}

func (h *hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case f, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(f); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// closeAll disconnects every peer and waits for their goroutines
func (h *hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		_ = c.conn.Close()
	}
	h.mu.Unlock()
	h.wg.Wait()
}
