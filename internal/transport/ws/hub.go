package ws

import "sync"

// Subscriber is a live session from the hub's point of view.
type Subscriber interface {
	ID() string
	Identity() string
	Enqueue(ev Event) bool
	CloseSlow()
}

// Hub tracks which sessions are joined to which rooms and fans events out.
// It holds no authoritative state: membership truth lives in the registry.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[Subscriber]struct{}
	joins    map[Subscriber]map[string]struct{}
	sessions map[string]map[Subscriber]struct{} // identity -> its live sessions
}

func NewHub() *Hub {
	return &Hub{
		rooms:    make(map[string]map[Subscriber]struct{}),
		joins:    make(map[Subscriber]map[string]struct{}),
		sessions: make(map[string]map[Subscriber]struct{}),
	}
}

// Register records a live session for its identity, independent of room
// membership. An identity with several devices has several sessions.
func (h *Hub) Register(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ss, ok := h.sessions[sub.Identity()]
	if !ok {
		ss = make(map[Subscriber]struct{})
		h.sessions[sub.Identity()] = ss
	}
	ss[sub] = struct{}{}
}

// HasIdentity reports whether the identity still has any live session.
func (h *Hub) HasIdentity(identity string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.sessions[identity]) > 0
}

func (h *Hub) Join(roomID string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rs, ok := h.rooms[roomID]
	if !ok {
		rs = make(map[Subscriber]struct{})
		h.rooms[roomID] = rs
	}
	rs[sub] = struct{}{}

	js, ok := h.joins[sub]
	if !ok {
		js = make(map[string]struct{})
		h.joins[sub] = js
	}
	js[roomID] = struct{}{}
}

func (h *Hub) Joined(roomID string, sub Subscriber) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.joins[sub][roomID]
	return ok
}

// RemoveSession drops the session from every room's fan-out list.
func (h *Hub) RemoveSession(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for roomID := range h.joins[sub] {
		delete(h.rooms[roomID], sub)
		if len(h.rooms[roomID]) == 0 {
			delete(h.rooms, roomID)
		}
	}
	delete(h.joins, sub)

	if ss, ok := h.sessions[sub.Identity()]; ok {
		delete(ss, sub)
		if len(ss) == 0 {
			delete(h.sessions, sub.Identity())
		}
	}
}

// Broadcast delivers the event to every session joined to the room, skipping
// sessions of exceptIdentity when set. Sessions that cannot keep up are
// closed as slow consumers rather than buffered without bound.
func (h *Hub) Broadcast(roomID string, ev Event, exceptIdentity string) {
	h.mu.RLock()
	var slow []Subscriber
	for sub := range h.rooms[roomID] {
		if exceptIdentity != "" && sub.Identity() == exceptIdentity {
			continue
		}
		if !sub.Enqueue(ev) {
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		sub.CloseSlow()
	}
}
