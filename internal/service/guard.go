package service

import (
	"context"
	"errors"

	"github.com/mesabook/chat-service/internal/domain"
)

type RoomGetter interface {
	Get(ctx context.Context, id string) (*domain.Room, error)
}

// Guard answers one question: is this identity a participant of this room.
// Every room operation goes through it first.
type Guard struct {
	rooms RoomGetter
}

func NewGuard(rooms RoomGetter) *Guard {
	return &Guard{rooms: rooms}
}

// CheckMembership returns the room when identity is a participant. Unknown
// rooms also come back as ErrForbidden so a non-member cannot probe which
// room ids exist.
func (g *Guard) CheckMembership(ctx context.Context, identity, roomID string) (*domain.Room, error) {
	room, err := g.rooms.Get(ctx, roomID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrForbidden
		}
		return nil, err
	}
	if !room.HasParticipant(identity) {
		return nil, domain.ErrForbidden
	}
	return room, nil
}
