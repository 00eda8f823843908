package ws

import (
	"sync"
)

// Hub maps meeting rooms to live connections. It only answers which
// connections should receive a broadcast and is never consulted for business
// decisions: the persisted active set stays authoritative, so the hub can
// always be rebuilt by clients re-running join_meeting.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Conn]struct{} // meetingID -> set of connections
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Conn]struct{})}
}

// Bind attaches the connection to the meeting's room, detaching it from any
// previous room first. A connection is bound to at most one meeting.
func (h *Hub) Bind(c *Conn, meetingID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.detach(c)
	rs, ok := h.rooms[meetingID]
	if !ok {
		rs = make(map[*Conn]struct{})
		h.rooms[meetingID] = rs
	}
	rs[c] = struct{}{}
	c.setMeetingID(meetingID)
}

func (h *Hub) Unbind(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detach(c)
}

func (h *Hub) detach(c *Conn) {
	id := c.MeetingID()
	if id == "" {
		return
	}
	if rs, ok := h.rooms[id]; ok {
		delete(rs, c)
		if len(rs) == 0 {
			delete(h.rooms, id)
		}
	}
	c.setMeetingID("")
}

// Broadcast implements service.EventSink.
func (h *Hub) Broadcast(meetingID, event string, payload any) {
	h.send(meetingID, "", Message{Type: event, Payload: payload})
}

func (h *Hub) BroadcastExcept(meetingID, exceptUserID, event string, payload any) {
	h.send(meetingID, exceptUserID, Message{Type: event, Payload: payload})
}

func (h *Hub) send(meetingID, exceptUserID string, msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[meetingID] {
		if exceptUserID != "" && c.UserID() == exceptUserID {
			continue
		}
		c.queue(msg) // best-effort
	}
}

// Notify delivers an event to every connection of one user in the room.
func (h *Hub) Notify(meetingID, userID, event string, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[meetingID] {
		if c.UserID() == userID {
			c.queue(Message{Type: event, Payload: payload})
		}
	}
}

// CloseRoom force-unbinds every connection; used after meeting_ended.
func (h *Hub) CloseRoom(meetingID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.rooms[meetingID] {
		c.setMeetingID("")
	}
	delete(h.rooms, meetingID)
}

// EvictUser unbinds the target's connections from the room.
func (h *Hub) EvictUser(meetingID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rs, ok := h.rooms[meetingID]
	if !ok {
		return
	}
	for c := range rs {
		if c.UserID() == userID {
			delete(rs, c)
			c.setMeetingID("")
		}
	}
	if len(rs) == 0 {
		delete(h.rooms, meetingID)
	}
}
