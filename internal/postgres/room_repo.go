package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/mesabook/chat-service/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RoomRepository struct {
	db *pgxpool.Pool
}

func NewRoomRepository(db *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{db: db}
}

// GetOrCreate inserts a room for the pair unless one exists. The unique
// pair_key makes concurrent creation first-writer-wins: the loser's insert is
// a no-op and it reads back the winner's row.
func (r *RoomRepository) GetOrCreate(ctx context.Context, a, b string) (*domain.Room, error) {
	pairKey := domain.PairKey(a, b)

	var rm domain.Room
	err := r.db.QueryRow(ctx, `
		INSERT INTO rooms (id, pair_key, participant_a, participant_b)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (pair_key) DO NOTHING
		RETURNING id, participant_a, participant_b, archived, created_at, last_activity_at
	`, uuid.NewString(), pairKey, a, b).
		Scan(&rm.ID, &rm.ParticipantA, &rm.ParticipantB, &rm.Archived, &rm.CreatedAt, &rm.LastActivityAt)
	if err == nil {
		return &rm, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("insert room: %w", err)
	}

	err = r.db.QueryRow(ctx, `
		SELECT id, participant_a, participant_b, archived, created_at, last_activity_at
		FROM rooms WHERE pair_key = $1
	`, pairKey).
		Scan(&rm.ID, &rm.ParticipantA, &rm.ParticipantB, &rm.Archived, &rm.CreatedAt, &rm.LastActivityAt)
	if err != nil {
		return nil, fmt.Errorf("select room by pair: %w", err)
	}
	return &rm, nil
}

func (r *RoomRepository) Get(ctx context.Context, id string) (*domain.Room, error) {
	var rm domain.Room
	err := r.db.QueryRow(ctx, `
		SELECT id, participant_a, participant_b, archived, created_at, last_activity_at
		FROM rooms WHERE id = $1
	`, id).
		Scan(&rm.ID, &rm.ParticipantA, &rm.ParticipantB, &rm.Archived, &rm.CreatedAt, &rm.LastActivityAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &rm, nil
}

func (r *RoomRepository) ListFor(ctx context.Context, identity string) ([]domain.Room, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, participant_a, participant_b, archived, created_at, last_activity_at
		FROM rooms
		WHERE participant_a = $1 OR participant_b = $1
		ORDER BY last_activity_at DESC
	`, identity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Room
	for rows.Next() {
		var rm domain.Room
		if err := rows.Scan(&rm.ID, &rm.ParticipantA, &rm.ParticipantB, &rm.Archived, &rm.CreatedAt, &rm.LastActivityAt); err != nil {
			return nil, err
		}
		out = append(out, rm)
	}
	return out, rows.Err()
}

func (r *RoomRepository) Archive(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE rooms SET archived = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
