package service

import (
	"context"
	"time"

	"github.com/mesabook/chat-service/internal/presence"
)

// TypingService guards typing signals and relays them to the tracker. Typing
// is advisory: nothing here touches durable state.
type TypingService struct {
	guard   *Guard
	tracker *presence.Tracker
	pub     Publisher
	ttl     time.Duration
}

func NewTypingService(guard *Guard, tracker *presence.Tracker, pub Publisher, ttl time.Duration) *TypingService {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &TypingService{guard: guard, tracker: tracker, pub: pub, ttl: ttl}
}

func (s *TypingService) Start(ctx context.Context, identity, roomID string) error {
	room, err := s.guard.CheckMembership(ctx, identity, roomID)
	if err != nil {
		return err
	}
	s.tracker.SetTyping(roomID, identity, s.ttl)
	if s.pub != nil {
		s.pub.TypingChanged(room, identity, s.tracker.ActiveTypers(roomID))
	}
	return nil
}

func (s *TypingService) Stop(ctx context.Context, identity, roomID string) error {
	room, err := s.guard.CheckMembership(ctx, identity, roomID)
	if err != nil {
		return err
	}
	s.tracker.ClearTyping(roomID, identity)
	if s.pub != nil {
		s.pub.TypingChanged(room, identity, s.tracker.ActiveTypers(roomID))
	}
	return nil
}

// DropIdentity clears every typing entry of a disconnecting identity without
// broadcasting; observers see the state lapse by TTL.
func (s *TypingService) DropIdentity(identity string) {
	s.tracker.ClearIdentity(identity)
}
