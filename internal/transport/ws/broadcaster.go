package ws

import "github.com/mesabook/chat-service/internal/domain"

// Broadcaster adapts the hub to the services' Publisher contract. Services
// call it while holding the room's lock, so enqueue order per room equals
// commit order.
type Broadcaster struct {
	hub *Hub
}

func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

func (b *Broadcaster) MessagePosted(room *domain.Room, m *domain.Message) {
	b.hub.Broadcast(room.ID, Event{Type: TypeMessage, Payload: toMessageItem(m)}, "")
}

func (b *Broadcaster) MessageEdited(room *domain.Room, m *domain.Message) {
	b.hub.Broadcast(room.ID, Event{Type: TypeMessageEdited, Payload: toMessageItem(m)}, "")
}

func (b *Broadcaster) MessageDeleted(room *domain.Room, m *domain.Message) {
	b.hub.Broadcast(room.ID, Event{Type: TypeMessageDeleted, Payload: DeletedPayload{
		MessageID: m.ID,
		RoomID:    m.RoomID,
		Sequence:  m.Sequence,
	}}, "")
}

// TypingChanged is not echoed back to the typist.
func (b *Broadcaster) TypingChanged(room *domain.Room, actor string, typers []string) {
	b.hub.Broadcast(room.ID, Event{Type: TypeTyping, Payload: TypingEventPayload{
		RoomID: room.ID,
		Users:  typers,
	}}, actor)
}
