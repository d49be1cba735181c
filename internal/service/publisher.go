package service

import "github.com/mesabook/chat-service/internal/domain"

// Publisher fans committed results out to live sessions. The gateway's hub
// implements it; services never hold connection state themselves.
type Publisher interface {
	MessagePosted(room *domain.Room, m *domain.Message)
	MessageEdited(room *domain.Room, m *domain.Message)
	MessageDeleted(room *domain.Room, m *domain.Message)
	TypingChanged(room *domain.Room, actor string, typers []string)
}
