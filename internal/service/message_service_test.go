package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mesabook/chat-service/internal/domain"
	"github.com/mesabook/chat-service/internal/memstore"
	"github.com/mesabook/chat-service/internal/presence"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type capturePub struct {
	mu      sync.Mutex
	posted  []*domain.Message
	edited  []*domain.Message
	deleted []*domain.Message
	typing  []string
}

func (p *capturePub) MessagePosted(_ *domain.Room, m *domain.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posted = append(p.posted, m)
}

func (p *capturePub) MessageEdited(_ *domain.Room, m *domain.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.edited = append(p.edited, m)
}

func (p *capturePub) MessageDeleted(_ *domain.Room, m *domain.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, m)
}

func (p *capturePub) TypingChanged(_ *domain.Room, actor string, _ []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typing = append(p.typing, actor)
}

type fixture struct {
	store   *memstore.Store
	pub     *capturePub
	tracker *presence.Tracker
	svc     *MessageService
	room    *domain.Room
}

func newFixture(t *testing.T, cfg MessageConfig) *fixture {
	t.Helper()
	store := memstore.New(uuid.NewString)
	pub := &capturePub{}
	tracker := presence.NewTracker()
	svc := NewMessageService(store, NewGuard(store), tracker, pub, cfg, slog.Default())

	room, err := store.GetOrCreate(context.Background(), "alice", "bob")
	require.NoError(t, err)
	return &fixture{store: store, pub: pub, tracker: tracker, svc: svc, room: room}
}

func Test_Send_Assigns_Sequences_From_One(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, MessageConfig{})
	ctx := context.Background()

	first, err := f.svc.Send(ctx, "alice", f.room.ID, "Hi", nil, "c1")
	req.NoError(err)
	req.Equal(int64(1), first.Sequence)

	second, err := f.svc.Send(ctx, "bob", f.room.ID, "Hello", nil, "c2")
	req.NoError(err)
	req.Equal(int64(2), second.Sequence)

	req.Len(f.pub.posted, 2)
}

func Test_Send_Validates_Body(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, MessageConfig{MaxBodyLen: 10})
	ctx := context.Background()

	_, err := f.svc.Send(ctx, "alice", f.room.ID, "   ", nil, "c1")
	req.ErrorIs(err, domain.ErrValidation)

	_, err = f.svc.Send(ctx, "alice", f.room.ID, "0123456789ABC", nil, "c2")
	req.ErrorIs(err, domain.ErrValidation)

	req.Empty(f.pub.posted)
}

func Test_Send_Rejects_Non_Participant(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, MessageConfig{})

	_, err := f.svc.Send(context.Background(), "mallory", f.room.ID, "Hi", nil, "c1")
	req.ErrorIs(err, domain.ErrForbidden)
	req.Empty(f.pub.posted)
}

func Test_Send_Into_Unknown_Room_Is_Forbidden(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, MessageConfig{})

	_, err := f.svc.Send(context.Background(), "alice", uuid.NewString(), "Hi", nil, "c1")
	req.ErrorIs(err, domain.ErrForbidden)
}

func Test_Send_Rejects_Archived_Room(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, MessageConfig{})
	ctx := context.Background()

	req.NoError(f.store.Archive(ctx, f.room.ID))
	_, err := f.svc.Send(ctx, "alice", f.room.ID, "Hi", nil, "c1")
	req.ErrorIs(err, domain.ErrRoomArchived)

	// archived rooms stay readable
	_, _, err = f.svc.Page(ctx, "alice", f.room.ID, nil, 10)
	req.NoError(err)
}

func Test_Send_Clears_Typing_State(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, MessageConfig{})

	f.tracker.SetTyping(f.room.ID, "alice", time.Minute)
	_, err := f.svc.Send(context.Background(), "alice", f.room.ID, "Hi", nil, "c1")
	req.NoError(err)
	req.Empty(f.tracker.ActiveTypers(f.room.ID))
}

func Test_Send_Deduplicates_Client_Msg_ID(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, MessageConfig{})
	ctx := context.Background()

	first, err := f.svc.Send(ctx, "alice", f.room.ID, "Hi", nil, "retry-me")
	req.NoError(err)
	second, err := f.svc.Send(ctx, "alice", f.room.ID, "Hi", nil, "retry-me")
	req.NoError(err)

	req.Equal(first.ID, second.ID)
	req.Equal(first.Sequence, second.Sequence)
	req.Len(f.pub.posted, 1) // duplicate is not re-broadcast
}

func Test_Concurrent_Sends_Never_Share_A_Sequence(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, MessageConfig{})
	ctx := context.Background()

	const n = 40
	var wg sync.WaitGroup
	results := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := "alice"
			if i%2 == 0 {
				sender = "bob"
			}
			m, err := f.svc.Send(ctx, sender, f.room.ID, fmt.Sprintf("msg %d", i), nil, fmt.Sprintf("c%d", i))
			if err == nil {
				results <- m.Sequence
			}
		}(i)
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool)
	for seq := range results {
		req.False(seen[seq], "sequence %d assigned twice", seq)
		seen[seq] = true
	}
	req.Len(seen, n)
	for i := int64(1); i <= n; i++ {
		req.True(seen[i], "gap at sequence %d", i)
	}

	// broadcast order matches commit order
	req.Len(f.pub.posted, n)
	for i, m := range f.pub.posted {
		req.Equal(int64(i+1), m.Sequence)
	}
}

func Test_Edit_Rules(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, MessageConfig{})
	ctx := context.Background()

	m, err := f.svc.Send(ctx, "alice", f.room.ID, "Hi", nil, "c1")
	req.NoError(err)

	// only the sender may edit
	_, err = f.svc.Edit(ctx, "bob", m.ID, "hacked")
	req.ErrorIs(err, domain.ErrForbidden)

	updated, err := f.svc.Edit(ctx, "alice", m.ID, "Hi there")
	req.NoError(err)
	req.Equal("Hi there", updated.Body)
	req.NotNil(updated.EditedAt)
	req.Equal(m.Sequence, updated.Sequence)
	req.Len(f.pub.edited, 1)

	_, err = f.svc.Edit(ctx, "alice", uuid.NewString(), "whatever")
	req.ErrorIs(err, domain.ErrNotFound)
}

func Test_Edit_Tombstone_Fails(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, MessageConfig{})
	ctx := context.Background()

	m, err := f.svc.Send(ctx, "alice", f.room.ID, "Hi", nil, "c1")
	req.NoError(err)
	_, err = f.svc.SoftDelete(ctx, "alice", m.ID)
	req.NoError(err)

	_, err = f.svc.Edit(ctx, "alice", m.ID, "resurrect")
	req.ErrorIs(err, domain.ErrAlreadyDeleted)
}

func Test_SoftDelete_Rules(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, MessageConfig{})
	ctx := context.Background()

	m, err := f.svc.Send(ctx, "alice", f.room.ID, "Hi", nil, "c1")
	req.NoError(err)

	// participants cannot delete each other's messages
	_, err = f.svc.SoftDelete(ctx, "bob", m.ID)
	req.ErrorIs(err, domain.ErrForbidden)

	tombstone, err := f.svc.SoftDelete(ctx, "alice", m.ID)
	req.NoError(err)
	req.True(tombstone.Deleted())
	req.Equal(domain.TombstoneBody, tombstone.Body)
	req.Equal(m.Sequence, tombstone.Sequence)
	req.Len(f.pub.deleted, 1)

	// idempotent: second delete succeeds without another broadcast
	again, err := f.svc.SoftDelete(ctx, "alice", m.ID)
	req.NoError(err)
	req.True(again.Deleted())
	req.Len(f.pub.deleted, 1)
}

func Test_Page_Requires_Membership(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, MessageConfig{})

	_, _, err := f.svc.Page(context.Background(), "mallory", f.room.ID, nil, 10)
	req.ErrorIs(err, domain.ErrForbidden)
}

func Test_Page_Window_Semantics(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, MessageConfig{PageLimit: 100})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.svc.Send(ctx, "alice", f.room.ID, fmt.Sprintf("msg %d", i+1), nil, fmt.Sprintf("c%d", i))
		req.NoError(err)
	}

	after := int64(2)
	msgs, hasMore, err := f.svc.Page(ctx, "bob", f.room.ID, &after, 2)
	req.NoError(err)
	req.True(hasMore)
	req.Equal(int64(3), msgs[0].Sequence)
	req.Equal(int64(4), msgs[1].Sequence)

	after = int64(3)
	msgs, hasMore, err = f.svc.Page(ctx, "bob", f.room.ID, &after, 5)
	req.NoError(err)
	req.False(hasMore)
	req.Len(msgs, 2)
}

// flakyRepo fails Append a number of times before delegating.
type flakyRepo struct {
	MessageRepository
	mu       sync.Mutex
	failures int
	attempts int
	err      error
}

func (r *flakyRepo) Append(ctx context.Context, m *domain.Message, clientMsgID string, w time.Duration) (*domain.Message, bool, error) {
	r.mu.Lock()
	r.attempts++
	fail := r.attempts <= r.failures
	r.mu.Unlock()
	if fail {
		return nil, false, r.err
	}
	return r.MessageRepository.Append(ctx, m, clientMsgID, w)
}

func Test_Send_Retries_Transient_Storage_Failures(t *testing.T) {
	req := require.New(t)

	store := memstore.New(uuid.NewString)
	room, err := store.GetOrCreate(context.Background(), "alice", "bob")
	req.NoError(err)

	flaky := &flakyRepo{MessageRepository: store, failures: 2, err: errors.New("connection reset")}
	svc := NewMessageService(flaky, NewGuard(store), presence.NewTracker(), nil,
		MessageConfig{MaxRetries: 3, RetryInitial: time.Millisecond}, slog.Default())

	m, err := svc.Send(context.Background(), "alice", room.ID, "Hi", nil, "c1")
	req.NoError(err)
	req.Equal(int64(1), m.Sequence)
	req.Equal(3, flaky.attempts)
}

func Test_Send_Surfaces_Unavailable_After_Retry_Budget(t *testing.T) {
	req := require.New(t)

	store := memstore.New(uuid.NewString)
	room, err := store.GetOrCreate(context.Background(), "alice", "bob")
	req.NoError(err)

	flaky := &flakyRepo{MessageRepository: store, failures: 100, err: errors.New("connection reset")}
	svc := NewMessageService(flaky, NewGuard(store), presence.NewTracker(), nil,
		MessageConfig{MaxRetries: 2, RetryInitial: time.Millisecond}, slog.Default())

	_, err = svc.Send(context.Background(), "alice", room.ID, "Hi", nil, "c1")
	req.ErrorIs(err, domain.ErrUnavailable)
	req.Equal(3, flaky.attempts) // initial try + 2 retries
}

func Test_Send_Does_Not_Retry_Domain_Errors(t *testing.T) {
	req := require.New(t)

	store := memstore.New(uuid.NewString)
	room, err := store.GetOrCreate(context.Background(), "alice", "bob")
	req.NoError(err)

	flaky := &flakyRepo{MessageRepository: store, failures: 100, err: domain.ErrNotFound}
	svc := NewMessageService(flaky, NewGuard(store), presence.NewTracker(), nil,
		MessageConfig{MaxRetries: 5, RetryInitial: time.Millisecond}, slog.Default())

	_, err = svc.Send(context.Background(), "alice", room.ID, "Hi", nil, "c1")
	req.ErrorIs(err, domain.ErrNotFound)
	req.Equal(1, flaky.attempts)
}
