package ws

import (
	"errors"

	"github.com/mesabook/chat-service/internal/domain"
)

const (
	codeForbidden      = "forbidden"
	codeNotFound       = "not_found"
	codeRoomArchived   = "room_archived"
	codeAlreadyDeleted = "already_deleted"
	codeValidation     = "validation_error"
	codeUnavailable    = "unavailable"
)

func codeFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrForbidden):
		return codeForbidden
	case errors.Is(err, domain.ErrNotFound):
		return codeNotFound
	case errors.Is(err, domain.ErrRoomArchived):
		return codeRoomArchived
	case errors.Is(err, domain.ErrAlreadyDeleted):
		return codeAlreadyDeleted
	case errors.Is(err, domain.ErrValidation):
		return codeValidation
	default:
		return codeUnavailable
	}
}
