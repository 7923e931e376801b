package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/Kjeonghyun5142/bap-pool/internal/domain"
	"github.com/Kjeonghyun5142/bap-pool/internal/httputil"
	"github.com/Kjeonghyun5142/bap-pool/internal/logger"
	"github.com/Kjeonghyun5142/bap-pool/internal/metrics"
	"github.com/Kjeonghyun5142/bap-pool/internal/security"

	"github.com/gorilla/websocket"
)

const (
	msgNotAllowedJoin = "not allowed to join this room"
	msgNotAllowedSend = "not allowed to send messages to this room"
	msgJoinFailed     = "failed to join room"
	msgSendFailed     = "failed to send message"
	msgRateLimited    = "rate limit exceeded"
	msgInternal       = "internal server error"
	msgBadFrame       = "invalid message format"
)

type TokenVerifier interface {
	Verify(token string) (int64, error)
}

type RoomAuthorizer interface {
	Authorize(ctx context.Context, roomID, userID int64) (*domain.ChatRoom, error)
}

type MessageSender interface {
	Send(ctx context.Context, roomID, senderID int64, content string) (*domain.MessageWithSender, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, userID int64) (bool, error)
}

// ProfileReader loads the public profile of a user.
type ProfileReader interface {
	GetProfile(ctx context.Context, id int64) (*domain.Profile, error)
}

// Relay forwards an encoded room event to other instances.
type Relay interface {
	Publish(roomID int64, event []byte) error
}

type Deps struct {
	Hub      *Hub
	Tokens   TokenVerifier
	Rooms    RoomAuthorizer
	Chat     MessageSender
	Profiles ProfileReader // optional
	Limiter  RateLimiter   // optional
	Relay    Relay         // optional
}

type Options struct {
	ReadLimit    int64
	PongWait     time.Duration
	PingPeriod   time.Duration
	WriteWait    time.Duration
	CheckOrigin  bool
	AllowOrigins []string
}

func (o *Options) withDefaults() {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 << 10
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
}

// sendStripes bounds the per-room send locks; rooms sharing a stripe are
// serialized together.
const sendStripes = 64

type Server struct {
	upgrader websocket.Upgrader
	deps     Deps
	opts     Options

	// held from persist through local broadcast and relay publish so that a
	// room's members see messages in commit order
	sendLocks [sendStripes]sync.Mutex
}

func NewServer(deps Deps, opts Options) *Server {
	opts.withDefaults()
	s := &Server{
		deps: deps,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.upgrader.CheckOrigin = s.checkOrigin
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if !s.opts.CheckOrigin {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.opts.AllowOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// HandleWS authenticates the handshake and serves one connection until it
// closes. GET /ws?token=... or with an Authorization bearer header.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := security.HandshakeToken(r)
	if token == "" {
		httputil.Error(w, http.StatusUnauthorized, domain.ErrUnauthenticated.Error(), nil)
		return
	}
	userID, err := s.deps.Tokens.Verify(token)
	if err != nil {
		logger.FromContext(r.Context()).Debug("ws: token rejected", slog.Any("err", err))
		httputil.Error(w, http.StatusUnauthorized, domain.ErrInvalidToken.Error(), nil)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		logger.FromContext(r.Context()).Warn("ws upgrade failed", slog.Any("err", err))
		return
	}

	c := newWsConn(conn, userID, s.opts.WriteWait)
	log := logger.FromContext(r.Context()).With(slog.Int64("user_id", userID))
	ctx := logger.WithContext(r.Context(), log)

	s.deps.Hub.Register(c)
	metrics.WSConnections.Inc()
	log.Info("ws connected")

	go s.writeLoop(c)
	s.readLoop(ctx, c)

	s.deps.Hub.LeaveAll(c)
	metrics.WSConnections.Dec()
	_ = c.Close()
	log.Info("ws disconnected")
}

func (s *Server) readLoop(ctx context.Context, c *wsConn) {
	c.conn.SetReadLimit(s.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.FromContext(ctx).Debug("ws read failed", slog.Any("err", err))
			}
			return
		}
		s.dispatch(ctx, c, data)
	}
}

// dispatch handles one frame. A panic is contained to this event.
func (s *Server) dispatch(ctx context.Context, c *wsConn, data []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.FromContext(ctx).Error("ws event panic",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			_ = c.Send(errorMessage(TypeServerError, msgInternal))
		}
	}()

	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		metrics.EventsTotal.WithLabelValues("malformed").Inc()
		_ = c.Send(errorMessage(TypeServerError, msgBadFrame))
		return
	}

	switch in.Type {
	case TypeJoinRoom:
		metrics.EventsTotal.WithLabelValues(TypeJoinRoom).Inc()
		s.handleJoin(ctx, c, in.Payload)
	case TypeSendMessage:
		metrics.EventsTotal.WithLabelValues(TypeSendMessage).Inc()
		s.handleSend(ctx, c, in.Payload)
	default:
		metrics.EventsTotal.WithLabelValues("unknown").Inc()
		_ = c.Send(errorMessage(TypeServerError, fmt.Sprintf("unknown event type %q", in.Type)))
	}
}

func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func (s *Server) handleJoin(ctx context.Context, c *wsConn, raw json.RawMessage) {
	var p JoinRoomPayload
	if err := decodePayload(raw, &p); err != nil {
		_ = c.Send(errorMessage(TypeRoomError, domain.ErrMissingRoomID.Error()))
		return
	}
	roomID := int64(p.RoomID)
	if roomID <= 0 {
		_ = c.Send(errorMessage(TypeRoomError, domain.ErrMissingRoomID.Error()))
		return
	}

	if _, err := s.deps.Rooms.Authorize(ctx, roomID, c.userID); err != nil {
		_ = c.Send(errorMessage(TypeRoomError, joinErrorMessage(err)))
		if !isClientError(err) {
			logger.FromContext(ctx).Error("ws join failed", slog.Int64("room_id", roomID), slog.Any("err", err))
		}
		return
	}

	s.deps.Hub.Join(roomID, c)
	_ = c.Send(Message{
		Type: TypeRoomJoined,
		Payload: RoomJoinedPayload{
			RoomID:  roomID,
			Message: fmt.Sprintf("joined chat room %d", roomID),
		},
	})
}

func (s *Server) handleSend(ctx context.Context, c *wsConn, raw json.RawMessage) {
	log := logger.FromContext(ctx)

	var p SendMessagePayload
	if err := decodePayload(raw, &p); err != nil {
		metrics.MessagesTotal.WithLabelValues(metrics.ResultRejected).Inc()
		_ = c.Send(errorMessage(TypeMessageError, domain.ErrMissingRoomID.Error()))
		return
	}
	roomID := int64(p.RoomID)

	if s.deps.Limiter != nil {
		ok, err := s.deps.Limiter.Allow(ctx, c.userID)
		if err != nil {
			log.Warn("ws rate limiter unavailable", slog.Any("err", err))
		}
		if !ok {
			metrics.MessagesTotal.WithLabelValues(metrics.ResultRateLimited).Inc()
			_ = c.Send(errorMessage(TypeMessageError, msgRateLimited))
			return
		}
	}

	s.sendOrdered(ctx, c, roomID, p.Content)
}

func (s *Server) roomLock(roomID int64) *sync.Mutex {
	return &s.sendLocks[uint64(roomID)%sendStripes]
}

func (s *Server) sendOrdered(ctx context.Context, c *wsConn, roomID int64, content string) {
	log := logger.FromContext(ctx)

	mu := s.roomLock(roomID)
	mu.Lock()
	defer mu.Unlock()

	start := time.Now()
	msg, err := s.deps.Chat.Send(ctx, roomID, c.userID, content)
	if err != nil {
		if isClientError(err) {
			metrics.MessagesTotal.WithLabelValues(metrics.ResultRejected).Inc()
		} else {
			metrics.MessagesTotal.WithLabelValues(metrics.ResultFailed).Inc()
			log.Error("ws send failed", slog.Int64("room_id", roomID), slog.Any("err", err))
		}
		_ = c.Send(errorMessage(TypeMessageError, sendErrorMessage(err)))
		return
	}
	metrics.PersistLatency.Observe(time.Since(start).Seconds())
	metrics.MessagesTotal.WithLabelValues(metrics.ResultSent).Inc()

	data, err := json.Marshal(Message{Type: TypeNewMessage, Payload: newMessagePayload(msg)})
	if err != nil {
		log.Error("ws encode new_message", slog.Any("err", err))
		_ = c.Send(errorMessage(TypeServerError, msgInternal))
		return
	}
	s.deps.Hub.BroadcastRaw(roomID, data)

	if s.deps.Relay != nil {
		if err := s.deps.Relay.Publish(roomID, data); err != nil {
			log.Warn("ws relay publish failed", slog.Int64("room_id", roomID), slog.Any("err", err))
		}
	}
}

// NotifyRoomCreated tells the other participant's open connections that
// createdBy started a conversation with them. The creator's profile is
// attached when it can be loaded. Returns the number of deliveries.
func (s *Server) NotifyRoomCreated(ctx context.Context, room *domain.ChatRoom, createdBy int64) int {
	peer := room.Peer(createdBy)
	if peer == 0 {
		return 0
	}

	payload := RoomCreatedPayload{RoomID: room.ID, CreatedBy: createdBy}
	if s.deps.Profiles != nil {
		p, err := s.deps.Profiles.GetProfile(ctx, createdBy)
		if err != nil {
			logger.FromContext(ctx).Warn("ws room_created: creator profile",
				slog.Int64("user_id", createdBy), slog.Any("err", err))
		} else {
			payload.Creator = &SenderPayload{ID: p.ID, DisplayName: p.DisplayName, Email: p.Email}
		}
	}
	return s.deps.Hub.SendToUser(peer, Message{Type: TypeRoomCreated, Payload: payload})
}

func (s *Server) writeLoop(c *wsConn) {
	ticker := time.NewTicker(s.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.ping(); err != nil {
				_ = c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

func isClientError(err error) bool {
	return errors.Is(err, domain.ErrRoomNotFound) ||
		errors.Is(err, domain.ErrNotParticipant) ||
		errors.Is(err, domain.ErrMissingRoomID) ||
		errors.Is(err, domain.ErrEmptyContent) ||
		errors.Is(err, domain.ErrContentTooLong)
}

func joinErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return domain.ErrRoomNotFound.Error()
	case errors.Is(err, domain.ErrNotParticipant):
		return msgNotAllowedJoin
	case errors.Is(err, domain.ErrMissingRoomID):
		return domain.ErrMissingRoomID.Error()
	default:
		return msgJoinFailed
	}
}

func sendErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyContent):
		return domain.ErrEmptyContent.Error()
	case errors.Is(err, domain.ErrContentTooLong):
		return domain.ErrContentTooLong.Error()
	case errors.Is(err, domain.ErrMissingRoomID):
		return domain.ErrMissingRoomID.Error()
	case errors.Is(err, domain.ErrRoomNotFound):
		return domain.ErrRoomNotFound.Error()
	case errors.Is(err, domain.ErrNotParticipant):
		return msgNotAllowedSend
	default:
		return msgSendFailed
	}
}
