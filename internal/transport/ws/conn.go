package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 256
)

// Conn is the gateway-owned connection context: one verified user, at most
// one bound meeting. Room membership lives here and in the hub, never on the
// transport object graph.
type Conn struct {
	ws     *websocket.Conn
	userID string

	mu        sync.RWMutex
	meetingID string

	send   chan Message
	closed chan struct{}
	once   sync.Once
}

func newConn(ws *websocket.Conn, userID string) *Conn {
	return &Conn{
		ws:     ws,
		userID: userID,
		send:   make(chan Message, sendBuffer),
		closed: make(chan struct{}),
	}
}

func (c *Conn) UserID() string { return c.userID }

func (c *Conn) MeetingID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meetingID
}

func (c *Conn) setMeetingID(id string) {
	c.mu.Lock()
	c.meetingID = id
	c.mu.Unlock()
}

// queue enqueues a message without blocking; a slow consumer loses messages
// rather than stalling the room.
func (c *Conn) queue(msg Message) bool {
	select {
	case c.send <- msg:
		return true
	default:
		slog.Debug("ws send buffer full, dropping", "user", c.userID, "type", msg.Type)
		return false
	}
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *Conn) close() {
	c.once.Do(func() { close(c.closed) })
	_ = c.ws.Close()
}
