package http

import (
	"time"

	"github.com/mesabook/chat-service/internal/domain"

	"github.com/samber/lo"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type OpenRoomRequest struct {
	CounterpartID string `json:"counterpart_id"`
}

type RoomItem struct {
	ID             string    `json:"id"`
	Counterpart    string    `json:"counterpart"`
	Archived       bool      `json:"archived"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

func toRoomItem(rm *domain.Room, viewer string) RoomItem {
	return RoomItem{
		ID:             rm.ID,
		Counterpart:    rm.Counterpart(viewer),
		Archived:       rm.Archived,
		CreatedAt:      rm.CreatedAt,
		LastActivityAt: rm.LastActivityAt,
	}
}

type RoomsListResponse struct {
	Items []RoomItem `json:"items"`
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

type HistoryResponse struct {
	Items   []MessageItem `json:"items"`
	HasMore bool          `json:"has_more"`
}

func toHistoryResponse(ms []domain.Message, hasMore bool) HistoryResponse {
	return HistoryResponse{
		HasMore: hasMore,
		Items: lo.Map(ms, func(m domain.Message, _ int) MessageItem {
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
		}),
	}
}
