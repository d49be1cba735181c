package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mesabook/chat-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepository struct {
	db *pgxpool.Pool
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageColumns = `id, room_id, sender_id, sequence, body, attachment_ref, created_at, edited_at, deleted_at`

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var m domain.Message
	err := row.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Sequence, &m.Body,
		&m.AttachmentRef, &m.CreatedAt, &m.EditedAt, &m.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Append writes the message with the next per-room sequence in one
// transaction. The sequence comes from an upsert increment on room_sequences,
// which is the store's atomic increment-and-read: two appends to the same
// room can never observe the same last_seq. Returns (original, true) when
// clientMsgID was already seen inside the dedup window.
func (r *MessageRepository) Append(ctx context.Context, m *domain.Message, clientMsgID string, dedupWindow time.Duration) (*domain.Message, bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("begin append tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if clientMsgID != "" {
		orig, err := scanMessage(tx.QueryRow(ctx, `
			SELECT m.id, m.room_id, m.sender_id, m.sequence, m.body,
			       m.attachment_ref, m.created_at, m.edited_at, m.deleted_at
			FROM message_dedup d
			JOIN messages m ON m.id = d.message_id
			WHERE d.room_id = $1 AND d.sender_id = $2 AND d.client_msg_id = $3
			  AND d.expires_at > now()
		`, m.RoomID, m.SenderID, clientMsgID))
		if err == nil {
			return orig, true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, false, fmt.Errorf("dedup lookup: %w", err)
		}
	}

	var seq int64
	err = tx.QueryRow(ctx, `
		INSERT INTO room_sequences (room_id, last_seq) VALUES ($1, 1)
		ON CONFLICT (room_id) DO UPDATE SET last_seq = room_sequences.last_seq + 1
		RETURNING last_seq
	`, m.RoomID).Scan(&seq)
	if err != nil {
		return nil, false, fmt.Errorf("next sequence: %w", err)
	}
	m.Sequence = seq

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, room_id, sender_id, sequence, body, attachment_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, m.ID, m.RoomID, m.SenderID, m.Sequence, m.Body, m.AttachmentRef, m.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("insert message: %w", err)
	}

	if clientMsgID != "" {
		_, err = tx.Exec(ctx, `
			INSERT INTO message_dedup (room_id, sender_id, client_msg_id, message_id, expires_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (room_id, sender_id, client_msg_id)
			DO UPDATE SET message_id = EXCLUDED.message_id, expires_at = EXCLUDED.expires_at
		`, m.RoomID, m.SenderID, clientMsgID, m.ID, m.CreatedAt.Add(dedupWindow))
		if err != nil {
			return nil, false, fmt.Errorf("insert dedup: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `UPDATE rooms SET last_activity_at = $2 WHERE id = $1`, m.RoomID, m.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("touch room activity: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit append: %w", err)
	}
	return m, false, nil
}

func (r *MessageRepository) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	m, err := scanMessage(r.db.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *MessageRepository) Edit(ctx context.Context, id, newBody string, at time.Time) (*domain.Message, error) {
	m, err := scanMessage(r.db.QueryRow(ctx, `
		UPDATE messages SET body = $2, edited_at = $3
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+messageColumns, id, newBody, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAlreadyDeleted
		}
		return nil, err
	}
	return m, nil
}

// SoftDelete redacts the body and stamps deleted_at. Already-deleted rows are
// left untouched, which keeps the operation idempotent.
func (r *MessageRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE messages SET body = $2, deleted_at = $3
		WHERE id = $1 AND deleted_at IS NULL
	`, id, domain.TombstoneBody, at)
	return err
}

// Page returns messages with sequence > afterSeq in ascending order, capped
// at limit. A nil afterSeq serves the most recent limit messages, still
// ascending; hasMore then reports whether older messages exist.
func (r *MessageRepository) Page(ctx context.Context, roomID string, afterSeq *int64, limit int) ([]domain.Message, bool, error) {
	var rows pgx.Rows
	var err error
	if afterSeq != nil {
		rows, err = r.db.Query(ctx, `
			SELECT `+messageColumns+` FROM messages
			WHERE room_id = $1 AND sequence > $2
			ORDER BY sequence ASC
			LIMIT $3
		`, roomID, *afterSeq, limit+1)
	} else {
		rows, err = r.db.Query(ctx, `
			SELECT `+messageColumns+` FROM messages
			WHERE room_id = $1
			ORDER BY sequence DESC
			LIMIT $2
		`, roomID, limit+1)
	}
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, false, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	if afterSeq == nil {
		// rows came newest-first: keep the newest limit, flip to ascending
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, hasMore, nil
}
