package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mesabook/chat-service/internal/service"
	httpmw "github.com/mesabook/chat-service/internal/transport/http/middleware"

	"github.com/go-chi/chi/v5"
)

// Handler is the plain request/response surface for non-live clients. It
// delegates straight to the registry and store; the gateway is not involved.
type Handler struct {
	roomSvc *service.RoomService
	msgSvc  *service.MessageService
}

func NewHandler(room *service.RoomService, msg *service.MessageService) *Handler {
	return &Handler{roomSvc: room, msgSvc: msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error, publicMsg string) {
	status := toStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("http handler", "err", err)
	}
	writeJSON(w, status, ErrorResponse{Error: publicMsg})
}

// POST /rooms — open (or return) the room with a counterpart
func (h *Handler) OpenRoom(w http.ResponseWriter, r *http.Request) {
	identity := httpmw.IdentityFromCtx(r.Context())

	var req OpenRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}

	room, err := h.roomSvc.GetOrCreateRoom(r.Context(), identity, req.CounterpartID)
	if err != nil {
		writeErr(w, err, "could not open room")
		return
	}
	writeJSON(w, http.StatusOK, toRoomItem(room, identity))
}

// GET /rooms — the caller's rooms, most recent activity first
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	identity := httpmw.IdentityFromCtx(r.Context())

	rooms, err := h.roomSvc.ListRoomsFor(r.Context(), identity)
	if err != nil {
		writeErr(w, err, "could not list rooms")
		return
	}
	resp := RoomsListResponse{Items: make([]RoomItem, 0, len(rooms))}
	for _, rm := range rooms {
		resp.Items = append(resp.Items, toRoomItem(&rm, identity))
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /rooms/{id}/archive
func (h *Handler) ArchiveRoom(w http.ResponseWriter, r *http.Request) {
	identity := httpmw.IdentityFromCtx(r.Context())
	roomID := chi.URLParam(r, "id")

	if err := h.roomSvc.Archive(r.Context(), identity, roomID); err != nil {
		writeErr(w, err, "could not archive room")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "archived"})
}

// GET /rooms/{id}/messages?after_seq=&limit=
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	identity := httpmw.IdentityFromCtx(r.Context())
	roomID := chi.URLParam(r, "id")

	var afterSeq *int64
	if s := r.URL.Query().Get("after_seq"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid after_seq"})
			return
		}
		afterSeq = &n
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}

	msgs, hasMore, err := h.msgSvc.Page(r.Context(), identity, roomID, afterSeq, limit)
	if err != nil {
		writeErr(w, err, "could not fetch history")
		return
	}
	writeJSON(w, http.StatusOK, toHistoryResponse(msgs, hasMore))
}
