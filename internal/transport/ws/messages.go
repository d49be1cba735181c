package ws

import (
	"encoding/json"
	"time"

	"github.com/mesabook/chat-service/internal/domain"

	"github.com/samber/lo"
)

// client -> server event types
const (
	TypeJoin        = "join"
	TypeSend        = "send"
	TypeEdit        = "edit"
	TypeDelete      = "delete"
	TypeTypingStart = "typing_start"
	TypeTypingStop  = "typing_stop"
	TypeResync      = "resync"
)

// server -> client event types
const (
	TypeJoined         = "joined"
	TypeMessage        = "message"
	TypeMessageAck     = "message_ack"
	TypeMessageEdited  = "message_edited"
	TypeMessageDeleted = "message_deleted"
	TypeTyping         = "typing"
	TypeResyncResult   = "resync_result"
	TypeError          = "error"
)

// Envelope is the inbound frame: the payload stays raw until the type is known.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Event is the outbound frame.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type JoinPayload struct {
	RoomID string `json:"room_id" validate:"required"`
}

type SendPayload struct {
	RoomID        string  `json:"room_id" validate:"required"`
	Body          string  `json:"body" validate:"required"`
	AttachmentRef *string `json:"attachment_ref,omitempty"`
	ClientMsgID   string  `json:"client_msg_id" validate:"required"`
}

type EditPayload struct {
	MessageID string `json:"message_id" validate:"required"`
	NewBody   string `json:"new_body" validate:"required"`
}

type DeletePayload struct {
	MessageID string `json:"message_id" validate:"required"`
}

type TypingPayload struct {
	RoomID string `json:"room_id" validate:"required"`
}

type ResyncPayload struct {
	RoomID           string `json:"room_id" validate:"required"`
	LastSeenSequence int64  `json:"last_seen_sequence" validate:"min=0"`
}

type MessageItem struct {
	ID            string     `json:"id"`
	RoomID        string     `json:"room_id"`
	SenderID      string     `json:"sender_id"`
	Sequence      int64      `json:"sequence"`
	Body          string     `json:"body"`
	AttachmentRef *string    `json:"attachment_ref,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	EditedAt      *time.Time `json:"edited_at,omitempty"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}

func toMessageItem(m *domain.Message) MessageItem {
	return MessageItem{
		ID:            m.ID,
		RoomID:        m.RoomID,
		SenderID:      m.SenderID,
		Sequence:      m.Sequence,
		Body:          m.Body,
		AttachmentRef: m.AttachmentRef,
		CreatedAt:     m.CreatedAt,
		EditedAt:      m.EditedAt,
		DeletedAt:     m.DeletedAt,
	}
}

func toMessageItems(ms []domain.Message) []MessageItem {
	return lo.Map(ms, func(m domain.Message, _ int) MessageItem {
		return toMessageItem(&m)
	})
}

type JoinedPayload struct {
	RoomID   string        `json:"room_id"`
	Messages []MessageItem `json:"messages"`
	HasMore  bool          `json:"has_more"`
}

type AckPayload struct {
	ClientMsgID string `json:"client_msg_id"`
	MessageID   string `json:"message_id"`
	Sequence    int64  `json:"sequence"`
}

type DeletedPayload struct {
	MessageID string `json:"message_id"`
	RoomID    string `json:"room_id"`
	Sequence  int64  `json:"sequence"`
}

type TypingEventPayload struct {
	RoomID string   `json:"room_id"`
	Users  []string `json:"users"`
}

type ResyncResultPayload struct {
	RoomID   string        `json:"room_id"`
	Messages []MessageItem `json:"messages"`
	HasMore  bool          `json:"has_more"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Ref     string `json:"ref,omitempty"` // client_msg_id or the offending event type
}
