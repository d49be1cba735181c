package service

import "sync"

// roomLocks hands out one mutex per room id. Appends and their fan-out are
// serialized under it so broadcast order matches commit order within a room;
// different rooms never contend.
type roomLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func newRoomLocks() *roomLocks {
	return &roomLocks{m: make(map[string]*sync.Mutex)}
}

func (l *roomLocks) of(roomID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk, ok := l.m[roomID]
	if !ok {
		lk = &sync.Mutex{}
		l.m[roomID] = lk
	}
	return lk
}
