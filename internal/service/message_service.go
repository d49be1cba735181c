package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mesabook/chat-service/internal/domain"
	"github.com/mesabook/chat-service/internal/presence"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

type MessageRepository interface {
	Append(ctx context.Context, m *domain.Message, clientMsgID string, dedupWindow time.Duration) (*domain.Message, bool, error)
	GetMessage(ctx context.Context, id string) (*domain.Message, error)
	Edit(ctx context.Context, id, newBody string, at time.Time) (*domain.Message, error)
	SoftDelete(ctx context.Context, id string, at time.Time) error
	Page(ctx context.Context, roomID string, afterSeq *int64, limit int) ([]domain.Message, bool, error)
}

type MessageConfig struct {
	MaxBodyLen   int
	PageLimit    int
	DedupWindow  time.Duration
	MaxRetries   uint64        // retry budget for transient storage failures
	RetryInitial time.Duration // first backoff interval
}

func (c *MessageConfig) defaults() {
	if c.MaxBodyLen <= 0 {
		c.MaxBodyLen = 4000
	}
	if c.PageLimit <= 0 {
		c.PageLimit = 50
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = 10 * time.Minute
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = 100 * time.Millisecond
	}
}

// MessageService owns message state: appends with per-room sequences, edits,
// soft deletes and history pages. Fan-out of committed results goes through
// the Publisher while the room's lock is still held.
type MessageService struct {
	repo   MessageRepository
	guard  *Guard
	typing *presence.Tracker
	pub    Publisher
	locks  *roomLocks
	cfg    MessageConfig
	log    *slog.Logger
}

func NewMessageService(repo MessageRepository, guard *Guard, typing *presence.Tracker, pub Publisher, cfg MessageConfig, log *slog.Logger) *MessageService {
	cfg.defaults()
	return &MessageService{
		repo:   repo,
		guard:  guard,
		typing: typing,
		pub:    pub,
		locks:  newRoomLocks(),
		cfg:    cfg,
		log:    log,
	}
}

func (s *MessageService) validateBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", fmt.Errorf("%w: empty body", domain.ErrValidation)
	}
	if len(body) > s.cfg.MaxBodyLen {
		return "", fmt.Errorf("%w: body exceeds %d bytes", domain.ErrValidation, s.cfg.MaxBodyLen)
	}
	return body, nil
}

// Send appends a message and broadcasts it. A clientMsgID already seen inside
// the dedup window returns the original message without a second append or
// broadcast, so retries after an Unavailable are safe.
func (s *MessageService) Send(ctx context.Context, senderID, roomID, body string, attachmentRef *string, clientMsgID string) (*domain.Message, error) {
	body, err := s.validateBody(body)
	if err != nil {
		return nil, err
	}

	room, err := s.guard.CheckMembership(ctx, senderID, roomID)
	if err != nil {
		return nil, err
	}
	if room.Archived {
		return nil, domain.ErrRoomArchived
	}

	lk := s.locks.of(roomID)
	lk.Lock()
	defer lk.Unlock()

	m := &domain.Message{
		ID:            uuid.NewString(),
		RoomID:        roomID,
		SenderID:      senderID,
		Body:          body,
		AttachmentRef: attachmentRef,
		CreatedAt:     time.Now().UTC(),
	}

	var stored *domain.Message
	var duplicate bool
	err = s.withRetry(ctx, "append", func() error {
		var opErr error
		stored, duplicate, opErr = s.repo.Append(ctx, m, clientMsgID, s.cfg.DedupWindow)
		return opErr
	})
	if err != nil {
		return nil, err
	}

	s.typing.ClearTyping(roomID, senderID)

	if !duplicate && s.pub != nil {
		s.pub.MessagePosted(room, stored)
	}
	return stored, nil
}

// Edit replaces the body of the editor's own message and stamps editedAt.
func (s *MessageService) Edit(ctx context.Context, editorID, messageID, newBody string) (*domain.Message, error) {
	newBody, err := s.validateBody(newBody)
	if err != nil {
		return nil, err
	}

	m, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	room, err := s.guard.CheckMembership(ctx, editorID, m.RoomID)
	if err != nil {
		return nil, err
	}
	if m.SenderID != editorID {
		return nil, domain.ErrForbidden
	}
	if m.Deleted() {
		return nil, domain.ErrAlreadyDeleted
	}

	lk := s.locks.of(m.RoomID)
	lk.Lock()
	defer lk.Unlock()

	var updated *domain.Message
	err = s.withRetry(ctx, "edit", func() error {
		var opErr error
		updated, opErr = s.repo.Edit(ctx, messageID, newBody, time.Now().UTC())
		return opErr
	})
	if err != nil {
		return nil, err
	}

	if s.pub != nil {
		s.pub.MessageEdited(room, updated)
	}
	return updated, nil
}

// SoftDelete turns the sender's own message into a tombstone. Deleting an
// already-deleted message is a no-op success.
func (s *MessageService) SoftDelete(ctx context.Context, requesterID, messageID string) (*domain.Message, error) {
	m, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	room, err := s.guard.CheckMembership(ctx, requesterID, m.RoomID)
	if err != nil {
		return nil, err
	}
	if m.SenderID != requesterID {
		return nil, domain.ErrForbidden
	}
	if m.Deleted() {
		return m, nil
	}

	lk := s.locks.of(m.RoomID)
	lk.Lock()
	defer lk.Unlock()

	err = s.withRetry(ctx, "soft delete", func() error {
		return s.repo.SoftDelete(ctx, messageID, time.Now().UTC())
	})
	if err != nil {
		return nil, err
	}

	tombstone, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if s.pub != nil {
		s.pub.MessageDeleted(room, tombstone)
	}
	return tombstone, nil
}

// Page serves history: messages with sequence > afterSeq ascending, capped at
// limit. Nil afterSeq means the most recent page.
func (s *MessageService) Page(ctx context.Context, identity, roomID string, afterSeq *int64, limit int) ([]domain.Message, bool, error) {
	if _, err := s.guard.CheckMembership(ctx, identity, roomID); err != nil {
		return nil, false, err
	}
	if limit <= 0 || limit > s.cfg.PageLimit {
		limit = s.cfg.PageLimit
	}
	return s.repo.Page(ctx, roomID, afterSeq, limit)
}

// withRetry retries transient storage failures with exponential backoff and
// surfaces ErrUnavailable once the budget is spent. Domain errors are final.
func (s *MessageService) withRetry(ctx context.Context, op string, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.RetryInitial

	err := backoff.Retry(func() error {
		if err := fn(); err != nil {
			if isDomainErr(err) {
				return backoff.Permanent(err)
			}
			s.log.Warn("storage retry", "op", op, "err", err)
			return err
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, s.cfg.MaxRetries), ctx))
	if err == nil {
		return nil
	}
	if isDomainErr(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrUnavailable, op, err)
}

func isDomainErr(err error) bool {
	for _, sentinel := range []error{
		domain.ErrForbidden,
		domain.ErrNotFound,
		domain.ErrRoomArchived,
		domain.ErrAlreadyDeleted,
		domain.ErrValidation,
		domain.ErrUnauthenticated,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
