package domain

import "time"

// TombstoneBody replaces the body of a soft-deleted message. The row and its
// sequence stay so pagination and ordering remain continuous.
const TombstoneBody = "[deleted]"

type Message struct {
	ID            string     `db:"id"`
	RoomID        string     `db:"room_id"`
	SenderID      string     `db:"sender_id"`
	Sequence      int64      `db:"sequence"`
	Body          string     `db:"body"`
	AttachmentRef *string    `db:"attachment_ref"`
	CreatedAt     time.Time  `db:"created_at"`
	EditedAt      *time.Time `db:"edited_at"`
	DeletedAt     *time.Time `db:"deleted_at"`
}

func (m *Message) Deleted() bool {
	return m.DeletedAt != nil
}
