package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mesabook/chat-service/internal/auth"
	"github.com/mesabook/chat-service/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type RoomSvc interface {
	ListRoomsFor(ctx context.Context, identity string) ([]domain.Room, error)
}

type MessageSvc interface {
	Send(ctx context.Context, senderID, roomID, body string, attachmentRef *string, clientMsgID string) (*domain.Message, error)
	Edit(ctx context.Context, editorID, messageID, newBody string) (*domain.Message, error)
	SoftDelete(ctx context.Context, requesterID, messageID string) (*domain.Message, error)
	Page(ctx context.Context, identity, roomID string, afterSeq *int64, limit int) ([]domain.Message, bool, error)
}

type TypingSvc interface {
	Start(ctx context.Context, identity, roomID string) error
	Stop(ctx context.Context, identity, roomID string) error
	DropIdentity(identity string)
}

type Config struct {
	QueueSize       int           // outbound events buffered per session
	IdleTimeout     time.Duration // close after this long without a frame or pong
	PageLimit       int           // page size for join/resync replies
	MaxPayloadBytes int64
	WriteTimeout    time.Duration
}

func (c *Config) defaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.PageLimit <= 0 {
		c.PageLimit = 50
	}
	if c.MaxPayloadBytes <= 0 {
		c.MaxPayloadBytes = 1 << 16
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
}

// Server is the connection gateway. A session moves through
// connecting -> authenticated -> joined -> closed; all room operations are
// routed to the services, which guard membership and own the state.
type Server struct {
	upgrader websocket.Upgrader
	hub      *Hub
	verifier auth.Verifier
	rooms    RoomSvc
	messages MessageSvc
	typing   TypingSvc
	validate *validator.Validate
	cfg      Config
}

func NewServer(hub *Hub, verifier auth.Verifier, rooms RoomSvc, messages MessageSvc, typing TypingSvc, cfg Config) *Server {
	cfg.defaults()
	return &Server{
		hub:      hub,
		verifier: verifier,
		rooms:    rooms,
		messages: messages,
		typing:   typing,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// WS endpoint: GET /ws?access_token=...
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("access_token"))
	if token == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimSpace(h[7:])
		}
	}
	identity, err := s.verifier.Verify(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	sess := newSession(uuid.NewString(), identity, conn, s.cfg.QueueSize)
	s.hub.Register(sess)
	go sess.writePump(s.pingEvery(), s.cfg.WriteTimeout)

	// fan-out registration for every room the caller belongs to; paging is
	// still pulled explicitly via join/resync
	if rooms, err := s.rooms.ListRoomsFor(r.Context(), identity); err == nil {
		for _, rm := range rooms {
			s.hub.Join(rm.ID, sess)
		}
	} else {
		slog.Warn("ws auto-join failed", "identity", identity, "err", err)
	}

	slog.Debug("ws session open", "conn", sess.ID(), "identity", identity)
	s.readLoop(r.Context(), sess)

	s.hub.RemoveSession(sess)
	// typing state survives while another device of the identity is live
	if !s.hub.HasIdentity(identity) {
		s.typing.DropIdentity(identity)
	}
	sess.terminate(websocket.CloseNormalClosure, "")
	slog.Debug("ws session closed", "conn", sess.ID(), "identity", identity)
}

func (s *Server) pingEvery() time.Duration {
	p := s.cfg.IdleTimeout / 3
	if p < time.Second {
		p = time.Second
	}
	return p
}

func (s *Server) readLoop(ctx context.Context, sess *session) {
	conn := sess.conn
	conn.SetReadLimit(s.cfg.MaxPayloadBytes)
	reset := func() { _ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)) }
	reset()
	conn.SetPongHandler(func(string) error {
		reset()
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		reset()

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.sendErr(sess, domain.ErrValidation, "malformed frame", "")
			continue
		}
		s.dispatch(ctx, sess, env)
	}
}

// dispatch decodes one inbound event and routes it. Errors are structured
// rejections of that single event; the session stays open.
func (s *Server) dispatch(ctx context.Context, sess *session, env Envelope) {
	switch env.Type {
	case TypeJoin:
		var p JoinPayload
		if !s.decode(sess, env, &p) {
			return
		}
		msgs, hasMore, err := s.messages.Page(ctx, sess.Identity(), p.RoomID, nil, s.cfg.PageLimit)
		if err != nil {
			s.sendErr(sess, err, "join failed", env.Type)
			return
		}
		s.hub.Join(p.RoomID, sess)
		s.reply(sess, Event{Type: TypeJoined, Payload: JoinedPayload{
			RoomID:   p.RoomID,
			Messages: toMessageItems(msgs),
			HasMore:  hasMore,
		}})

	case TypeSend:
		var p SendPayload
		if !s.decode(sess, env, &p) {
			return
		}
		m, err := s.messages.Send(ctx, sess.Identity(), p.RoomID, p.Body, p.AttachmentRef, p.ClientMsgID)
		if err != nil {
			s.sendErr(sess, err, "send failed", p.ClientMsgID)
			return
		}
		s.reply(sess, Event{Type: TypeMessageAck, Payload: AckPayload{
			ClientMsgID: p.ClientMsgID,
			MessageID:   m.ID,
			Sequence:    m.Sequence,
		}})

	case TypeEdit:
		var p EditPayload
		if !s.decode(sess, env, &p) {
			return
		}
		if _, err := s.messages.Edit(ctx, sess.Identity(), p.MessageID, p.NewBody); err != nil {
			s.sendErr(sess, err, "edit failed", env.Type)
		}

	case TypeDelete:
		var p DeletePayload
		if !s.decode(sess, env, &p) {
			return
		}
		if _, err := s.messages.SoftDelete(ctx, sess.Identity(), p.MessageID); err != nil {
			s.sendErr(sess, err, "delete failed", env.Type)
		}

	case TypeTypingStart:
		var p TypingPayload
		if !s.decode(sess, env, &p) {
			return
		}
		if err := s.typing.Start(ctx, sess.Identity(), p.RoomID); err != nil {
			s.sendErr(sess, err, "typing failed", env.Type)
		}

	case TypeTypingStop:
		var p TypingPayload
		if !s.decode(sess, env, &p) {
			return
		}
		if err := s.typing.Stop(ctx, sess.Identity(), p.RoomID); err != nil {
			s.sendErr(sess, err, "typing failed", env.Type)
		}

	case TypeResync:
		var p ResyncPayload
		if !s.decode(sess, env, &p) {
			return
		}
		after := p.LastSeenSequence
		msgs, hasMore, err := s.messages.Page(ctx, sess.Identity(), p.RoomID, &after, s.cfg.PageLimit)
		if err != nil {
			s.sendErr(sess, err, "resync failed", env.Type)
			return
		}
		s.hub.Join(p.RoomID, sess)
		s.reply(sess, Event{Type: TypeResyncResult, Payload: ResyncResultPayload{
			RoomID:   p.RoomID,
			Messages: toMessageItems(msgs),
			HasMore:  hasMore,
		}})

	default:
		s.sendErr(sess, domain.ErrValidation, "unknown event type", env.Type)
	}
}

func (s *Server) decode(sess *session, env Envelope, dst any) bool {
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		s.sendErr(sess, domain.ErrValidation, "malformed payload", env.Type)
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.sendErr(sess, domain.ErrValidation, "invalid payload: "+err.Error(), env.Type)
		return false
	}
	return true
}

// reply delivers a direct response to one session. A full queue means the
// client is not draining; it gets the same slow-consumer close as on the
// broadcast path instead of a silently missing reply.
func (s *Server) reply(sess *session, ev Event) {
	if !sess.Enqueue(ev) {
		sess.CloseSlow()
	}
}

func (s *Server) sendErr(sess *session, err error, msg, ref string) {
	s.reply(sess, Event{Type: TypeError, Payload: ErrorPayload{
		Code:    codeFor(err),
		Message: msg,
		Ref:     ref,
	}})
}
