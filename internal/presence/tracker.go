// Package presence tracks ephemeral typing state per room. Entries live in
// process memory only and expire by TTL; losing them on restart is fine
// because they are advisory.
package presence

import (
	"sort"
	"sync"
	"time"
)

type Tracker struct {
	mu    sync.Mutex
	rooms map[string]map[string]time.Time // roomID -> identity -> expiresAt
	now   func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		rooms: make(map[string]map[string]time.Time),
		now:   time.Now,
	}
}

// SetTyping records (or refreshes) a typing heartbeat.
func (t *Tracker) SetTyping(roomID, identity string, ttl time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rs, ok := t.rooms[roomID]
	if !ok {
		rs = make(map[string]time.Time)
		t.rooms[roomID] = rs
	}
	rs[identity] = t.now().Add(ttl)
}

func (t *Tracker) ClearTyping(roomID, identity string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rs, ok := t.rooms[roomID]; ok {
		delete(rs, identity)
		if len(rs) == 0 {
			delete(t.rooms, roomID)
		}
	}
}

// ClearIdentity drops every typing entry of one identity, e.g. when its
// session closes.
func (t *Tracker) ClearIdentity(identity string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for roomID, rs := range t.rooms {
		delete(rs, identity)
		if len(rs) == 0 {
			delete(t.rooms, roomID)
		}
	}
}

// ActiveTypers returns identities with an unexpired entry, sorted for stable
// output. Expired entries are dropped on the way.
func (t *Tracker) ActiveTypers(roomID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	rs, ok := t.rooms[roomID]
	if !ok {
		return nil
	}
	now := t.now()
	var out []string
	for identity, expiresAt := range rs {
		if now.Before(expiresAt) {
			out = append(out, identity)
		} else {
			delete(rs, identity)
		}
	}
	if len(rs) == 0 {
		delete(t.rooms, roomID)
	}
	sort.Strings(out)
	return out
}
