package memstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mesabook/chat-service/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func seedRoom(t *testing.T, s *Store) *domain.Room {
	t.Helper()
	rm, err := s.GetOrCreate(context.Background(), "alice", "bob")
	require.NoError(t, err)
	return rm
}

func appendN(t *testing.T, s *Store, roomID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, _, err := s.Append(context.Background(), &domain.Message{
			ID:        uuid.NewString(),
			RoomID:    roomID,
			SenderID:  "alice",
			Body:      fmt.Sprintf("msg %d", i+1),
			CreatedAt: time.Now().UTC(),
		}, "", 0)
		require.NoError(t, err)
	}
}

func Test_Page_After_Sequence(t *testing.T) {
	req := require.New(t)
	s := New(uuid.NewString)
	rm := seedRoom(t, s)
	appendN(t, s, rm.ID, 5)

	after := int64(2)
	msgs, hasMore, err := s.Page(context.Background(), rm.ID, &after, 2)
	req.NoError(err)
	req.True(hasMore) // sequences 3,4 returned, 5 remains
	req.Len(msgs, 2)
	req.Equal(int64(3), msgs[0].Sequence)
	req.Equal(int64(4), msgs[1].Sequence)

	after = int64(4)
	msgs, hasMore, err = s.Page(context.Background(), rm.ID, &after, 10)
	req.NoError(err)
	req.False(hasMore)
	req.Len(msgs, 1)
	req.Equal(int64(5), msgs[0].Sequence)
}

func Test_Page_Recent_Window(t *testing.T) {
	req := require.New(t)
	s := New(uuid.NewString)
	rm := seedRoom(t, s)
	appendN(t, s, rm.ID, 5)

	msgs, hasMore, err := s.Page(context.Background(), rm.ID, nil, 3)
	req.NoError(err)
	req.True(hasMore)
	req.Len(msgs, 3)
	// most recent window, still ascending
	req.Equal(int64(3), msgs[0].Sequence)
	req.Equal(int64(5), msgs[2].Sequence)

	msgs, hasMore, err = s.Page(context.Background(), rm.ID, nil, 10)
	req.NoError(err)
	req.False(hasMore)
	req.Len(msgs, 5)
}

func Test_Dedup_Returns_Original_Within_Window(t *testing.T) {
	req := require.New(t)
	s := New(uuid.NewString)
	rm := seedRoom(t, s)

	m := &domain.Message{
		ID: uuid.NewString(), RoomID: rm.ID, SenderID: "alice",
		Body: "hi", CreatedAt: time.Now().UTC(),
	}
	first, dup, err := s.Append(context.Background(), m, "client-1", 10*time.Minute)
	req.NoError(err)
	req.False(dup)

	retry := &domain.Message{
		ID: uuid.NewString(), RoomID: rm.ID, SenderID: "alice",
		Body: "hi", CreatedAt: time.Now().UTC(),
	}
	second, dup, err := s.Append(context.Background(), retry, "client-1", 10*time.Minute)
	req.NoError(err)
	req.True(dup)
	req.Equal(first.ID, second.ID)
	req.Equal(first.Sequence, second.Sequence)
}

func Test_SoftDelete_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	s := New(uuid.NewString)
	rm := seedRoom(t, s)
	appendN(t, s, rm.ID, 1)

	msgs, _, err := s.Page(context.Background(), rm.ID, nil, 1)
	req.NoError(err)
	id := msgs[0].ID

	req.NoError(s.SoftDelete(context.Background(), id, time.Now()))
	req.NoError(s.SoftDelete(context.Background(), id, time.Now()))

	m, err := s.GetMessage(context.Background(), id)
	req.NoError(err)
	req.True(m.Deleted())
	req.Equal(domain.TombstoneBody, m.Body)
	req.Equal(int64(1), m.Sequence)
}
