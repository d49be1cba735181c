package service

import (
	"context"
	"fmt"

	"github.com/mesabook/chat-service/internal/domain"
)

type RoomRepository interface {
	GetOrCreate(ctx context.Context, a, b string) (*domain.Room, error)
	Get(ctx context.Context, id string) (*domain.Room, error)
	ListFor(ctx context.Context, identity string) ([]domain.Room, error)
	Archive(ctx context.Context, id string) error
}

// RoomService is the room registry: lifecycle and membership live here.
type RoomService struct {
	repo  RoomRepository
	guard *Guard
}

func NewRoomService(repo RoomRepository, guard *Guard) *RoomService {
	return &RoomService{repo: repo, guard: guard}
}

// GetOrCreateRoom resolves the room for the identity/counterpart pair,
// creating it on first contact. Idempotent in either argument order.
func (s *RoomService) GetOrCreateRoom(ctx context.Context, identity, counterpart string) (*domain.Room, error) {
	if identity == "" || counterpart == "" {
		return nil, fmt.Errorf("%w: participant ids must be set", domain.ErrValidation)
	}
	if identity == counterpart {
		return nil, fmt.Errorf("%w: cannot open a room with yourself", domain.ErrValidation)
	}

	room, err := s.repo.GetOrCreate(ctx, identity, counterpart)
	if err != nil {
		return nil, fmt.Errorf("roomRepo.GetOrCreate: %w", err)
	}
	return room, nil
}

// ListRoomsFor returns the identity's rooms, most recent activity first.
func (s *RoomService) ListRoomsFor(ctx context.Context, identity string) ([]domain.Room, error) {
	return s.repo.ListFor(ctx, identity)
}

// Archive marks the room read-only. Archived rooms keep serving history but
// reject new sends.
func (s *RoomService) Archive(ctx context.Context, identity, roomID string) error {
	if _, err := s.guard.CheckMembership(ctx, identity, roomID); err != nil {
		return err
	}
	return s.repo.Archive(ctx, roomID)
}
