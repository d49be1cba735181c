package domain

import "errors"

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrRoomArchived    = errors.New("room is archived")
	ErrAlreadyDeleted  = errors.New("message already deleted")
	ErrValidation      = errors.New("validation failed")
	ErrUnavailable     = errors.New("storage unavailable")
)
