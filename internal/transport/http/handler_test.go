package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mesabook/chat-service/internal/auth"
	"github.com/mesabook/chat-service/internal/domain"
	"github.com/mesabook/chat-service/internal/memstore"
	"github.com/mesabook/chat-service/internal/presence"
	"github.com/mesabook/chat-service/internal/service"
	"github.com/mesabook/chat-service/internal/transport/ws"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "http_test_secret"
	testIssuer = "mesabook"
)

type nopPub struct{}

func (nopPub) MessagePosted(*domain.Room, *domain.Message)  {}
func (nopPub) MessageEdited(*domain.Room, *domain.Message)  {}
func (nopPub) MessageDeleted(*domain.Room, *domain.Message) {}
func (nopPub) TypingChanged(*domain.Room, string, []string) {}

type apiFixture struct {
	ts      *httptest.Server
	roomSvc *service.RoomService
	msgSvc  *service.MessageService
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()

	store := memstore.New(uuid.NewString)
	guard := service.NewGuard(store)
	tracker := presence.NewTracker()

	roomSvc := service.NewRoomService(store, guard)
	msgSvc := service.NewMessageService(store, guard, tracker, nopPub{},
		service.MessageConfig{RetryInitial: time.Millisecond}, slog.Default())
	typingSvc := service.NewTypingService(guard, tracker, nopPub{}, time.Minute)

	verifier := auth.NewJWTVerifier(testSecret, testIssuer)
	wsServer := ws.NewServer(ws.NewHub(), verifier, roomSvc, msgSvc, typingSvc, ws.Config{})

	router := NewRouter(NewHandler(roomSvc, msgSvc), verifier, wsServer)
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return &apiFixture{ts: ts, roomSvc: roomSvc, msgSvc: msgSvc}
}

func (f *apiFixture) do(t *testing.T, method, path, identity string, body any) *http.Response {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.ts.URL+path, rd)
	require.NoError(t, err)
	if identity != "" {
		token, err := auth.IssueToken(testSecret, testIssuer, identity, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func Test_API_Requires_Token(t *testing.T) {
	req := require.New(t)
	f := newAPI(t)

	resp := f.do(t, http.MethodGet, "/rooms", "", nil)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/rooms", "", OpenRoomRequest{CounterpartID: "bob"})
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func Test_API_Open_Room_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	f := newAPI(t)

	resp := f.do(t, http.MethodPost, "/rooms", "alice", OpenRoomRequest{CounterpartID: "bob"})
	req.Equal(http.StatusOK, resp.StatusCode)
	first := decodeBody[RoomItem](t, resp)
	req.Equal("bob", first.Counterpart)
	req.False(first.Archived)

	// the counterpart opens the same pair and lands in the same room
	resp = f.do(t, http.MethodPost, "/rooms", "bob", OpenRoomRequest{CounterpartID: "alice"})
	req.Equal(http.StatusOK, resp.StatusCode)
	second := decodeBody[RoomItem](t, resp)
	req.Equal(first.ID, second.ID)
	req.Equal("alice", second.Counterpart)
}

func Test_API_Open_Room_Rejects_Self(t *testing.T) {
	req := require.New(t)
	f := newAPI(t)

	resp := f.do(t, http.MethodPost, "/rooms", "alice", OpenRoomRequest{CounterpartID: "alice"})
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func Test_API_List_Rooms_Shows_Only_Own(t *testing.T) {
	req := require.New(t)
	f := newAPI(t)

	ctx := context.Background()
	_, err := f.roomSvc.GetOrCreateRoom(ctx, "alice", "bob")
	req.NoError(err)
	_, err = f.roomSvc.GetOrCreateRoom(ctx, "alice", "carol")
	req.NoError(err)

	resp := f.do(t, http.MethodGet, "/rooms", "alice", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	list := decodeBody[RoomsListResponse](t, resp)
	req.Len(list.Items, 2)

	resp = f.do(t, http.MethodGet, "/rooms", "bob", nil)
	list = decodeBody[RoomsListResponse](t, resp)
	req.Len(list.Items, 1)
	req.Equal("alice", list.Items[0].Counterpart)

	resp = f.do(t, http.MethodGet, "/rooms", "dave", nil)
	list = decodeBody[RoomsListResponse](t, resp)
	req.Empty(list.Items)
}

func Test_API_History_Pagination(t *testing.T) {
	req := require.New(t)
	f := newAPI(t)

	ctx := context.Background()
	room, err := f.roomSvc.GetOrCreateRoom(ctx, "alice", "bob")
	req.NoError(err)
	for i := 1; i <= 5; i++ {
		_, err := f.msgSvc.Send(ctx, "alice", room.ID, fmt.Sprintf("m%d", i), nil, uuid.NewString())
		req.NoError(err)
	}

	resp := f.do(t, http.MethodGet, "/rooms/"+room.ID+"/messages?after_seq=2&limit=2", "bob", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	page := decodeBody[HistoryResponse](t, resp)
	req.Len(page.Items, 2)
	req.Equal(int64(3), page.Items[0].Sequence)
	req.Equal(int64(4), page.Items[1].Sequence)
	req.True(page.HasMore)

	resp = f.do(t, http.MethodGet, "/rooms/"+room.ID+"/messages?after_seq=4", "bob", nil)
	page = decodeBody[HistoryResponse](t, resp)
	req.Len(page.Items, 1)
	req.Equal("m5", page.Items[0].Body)
	req.False(page.HasMore)

	resp = f.do(t, http.MethodGet, "/rooms/"+room.ID+"/messages?after_seq=nope", "bob", nil)
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func Test_API_History_Forbidden_For_Outsiders(t *testing.T) {
	req := require.New(t)
	f := newAPI(t)

	ctx := context.Background()
	room, err := f.roomSvc.GetOrCreateRoom(ctx, "alice", "bob")
	req.NoError(err)

	resp := f.do(t, http.MethodGet, "/rooms/"+room.ID+"/messages", "carol", nil)
	req.Equal(http.StatusForbidden, resp.StatusCode)

	// an unknown room id is indistinguishable from a foreign one
	resp = f.do(t, http.MethodGet, "/rooms/"+uuid.NewString()+"/messages", "carol", nil)
	req.Equal(http.StatusForbidden, resp.StatusCode)
}

func Test_API_Archive_Freezes_Room_But_Keeps_History(t *testing.T) {
	req := require.New(t)
	f := newAPI(t)

	ctx := context.Background()
	room, err := f.roomSvc.GetOrCreateRoom(ctx, "alice", "bob")
	req.NoError(err)
	_, err = f.msgSvc.Send(ctx, "alice", room.ID, "before archive", nil, uuid.NewString())
	req.NoError(err)

	resp := f.do(t, http.MethodPost, "/rooms/"+room.ID+"/archive", "alice", nil)
	req.Equal(http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/rooms/"+room.ID+"/archive", "carol", nil)
	req.Equal(http.StatusForbidden, resp.StatusCode)

	_, err = f.msgSvc.Send(ctx, "bob", room.ID, "too late", nil, uuid.NewString())
	req.ErrorIs(err, domain.ErrRoomArchived)

	resp = f.do(t, http.MethodGet, "/rooms/"+room.ID+"/messages", "bob", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	page := decodeBody[HistoryResponse](t, resp)
	req.Len(page.Items, 1)
	req.Equal("before archive", page.Items[0].Body)
}
