// Package memstore is a process-local implementation of the room and message
// repositories. It backs the "memory" storage driver for local runs and the
// test suites; it is not durable and holds everything behind one mutex.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mesabook/chat-service/internal/domain"
)

type dedupEntry struct {
	messageID string
	expiresAt time.Time
}

type Store struct {
	mu       sync.Mutex
	rooms    map[string]*domain.Room
	byPair   map[string]string
	messages map[string]*domain.Message
	byRoom   map[string][]string // message ids in sequence order
	lastSeq  map[string]int64
	dedup    map[string]dedupEntry
	nextID   func() string
}

func New(nextID func() string) *Store {
	return &Store{
		rooms:    make(map[string]*domain.Room),
		byPair:   make(map[string]string),
		messages: make(map[string]*domain.Message),
		byRoom:   make(map[string][]string),
		lastSeq:  make(map[string]int64),
		dedup:    make(map[string]dedupEntry),
		nextID:   nextID,
	}
}

func copyRoom(r *domain.Room) *domain.Room {
	c := *r
	return &c
}

func copyMessage(m *domain.Message) *domain.Message {
	c := *m
	return &c
}

func (s *Store) GetOrCreate(_ context.Context, a, b string) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := domain.PairKey(a, b)
	if id, ok := s.byPair[key]; ok {
		return copyRoom(s.rooms[id]), nil
	}
	now := time.Now().UTC()
	rm := &domain.Room{
		ID:             s.nextID(),
		ParticipantA:   a,
		ParticipantB:   b,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	s.rooms[rm.ID] = rm
	s.byPair[key] = rm.ID
	return copyRoom(rm), nil
}

func (s *Store) Get(_ context.Context, id string) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rm, ok := s.rooms[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyRoom(rm), nil
}

func (s *Store) ListFor(_ context.Context, identity string) ([]domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Room
	for _, rm := range s.rooms {
		if rm.HasParticipant(identity) {
			out = append(out, *rm)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivityAt.After(out[j].LastActivityAt)
	})
	return out, nil
}

func (s *Store) Archive(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rm, ok := s.rooms[id]
	if !ok {
		return domain.ErrNotFound
	}
	rm.Archived = true
	return nil
}

func dedupKey(roomID, senderID, clientMsgID string) string {
	return roomID + "|" + senderID + "|" + clientMsgID
}

func (s *Store) Append(_ context.Context, m *domain.Message, clientMsgID string, dedupWindow time.Duration) (*domain.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if clientMsgID != "" {
		if e, ok := s.dedup[dedupKey(m.RoomID, m.SenderID, clientMsgID)]; ok && e.expiresAt.After(m.CreatedAt) {
			return copyMessage(s.messages[e.messageID]), true, nil
		}
	}

	s.lastSeq[m.RoomID]++
	stored := copyMessage(m)
	stored.Sequence = s.lastSeq[m.RoomID]
	s.messages[stored.ID] = stored
	s.byRoom[stored.RoomID] = append(s.byRoom[stored.RoomID], stored.ID)

	if clientMsgID != "" {
		s.dedup[dedupKey(m.RoomID, m.SenderID, clientMsgID)] = dedupEntry{
			messageID: stored.ID,
			expiresAt: m.CreatedAt.Add(dedupWindow),
		}
	}
	if rm, ok := s.rooms[stored.RoomID]; ok {
		rm.LastActivityAt = stored.CreatedAt
	}
	return copyMessage(stored), false, nil
}

func (s *Store) GetMessage(_ context.Context, id string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyMessage(m), nil
}

func (s *Store) Edit(_ context.Context, id, newBody string, at time.Time) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if m.Deleted() {
		return nil, domain.ErrAlreadyDeleted
	}
	m.Body = newBody
	at = at.UTC()
	m.EditedAt = &at
	return copyMessage(m), nil
}

func (s *Store) SoftDelete(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return domain.ErrNotFound
	}
	if m.Deleted() {
		return nil
	}
	m.Body = domain.TombstoneBody
	at = at.UTC()
	m.DeletedAt = &at
	return nil
}

func (s *Store) Page(_ context.Context, roomID string, afterSeq *int64, limit int) ([]domain.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.byRoom[roomID]
	var out []domain.Message
	var hasMore bool

	if afterSeq != nil {
		for _, id := range ids {
			m := s.messages[id]
			if m.Sequence <= *afterSeq {
				continue
			}
			if len(out) == limit {
				hasMore = true
				break
			}
			out = append(out, *m)
		}
		return out, hasMore, nil
	}

	start := len(ids) - limit
	if start < 0 {
		start = 0
	} else if start > 0 {
		hasMore = true
	}
	for _, id := range ids[start:] {
		out = append(out, *s.messages[id])
	}
	return out, hasMore, nil
}
