package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Kjeonghyun5142/bap-pool/internal/domain"
	"github.com/Kjeonghyun5142/bap-pool/internal/httputil"
	"github.com/Kjeonghyun5142/bap-pool/internal/logger"
	httpmw "github.com/Kjeonghyun5142/bap-pool/internal/transport/http/middleware"

	"github.com/go-chi/chi/v5"
)

type RoomService interface {
	CreateOrGet(ctx context.Context, userID, targetID int64) (*domain.ChatRoom, bool, error)
	List(ctx context.Context, userID int64) ([]domain.RoomSummary, error)
}

type ChatService interface {
	History(ctx context.Context, roomID, userID int64, after string, limit int) ([]domain.MessageWithSender, string, error)
}

// RoomNotifier pushes room events to connected clients.
type RoomNotifier interface {
	NotifyRoomCreated(ctx context.Context, room *domain.ChatRoom, createdBy int64) int
}

type Handler struct {
	rooms    RoomService
	chat     ChatService
	notifier RoomNotifier
}

// NewHandler builds the handler; notifier may be nil.
func NewHandler(rooms RoomService, chat ChatService, notifier RoomNotifier) *Handler {
	return &Handler{rooms: rooms, chat: chat, notifier: notifier}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error(op, slog.Any("err", err))
	}
	httputil.Error(w, status, msg, nil)
}

// POST /api/chat/rooms
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if req.TargetUserID <= 0 {
		httputil.Error(w, http.StatusBadRequest, domain.ErrMissingTarget.Error(), nil)
		return
	}

	userID := httpmw.UserIDFromCtx(r.Context())
	room, created, err := h.rooms.CreateOrGet(r.Context(), userID, req.TargetUserID)
	if err != nil {
		h.fail(w, r, "handler.CreateRoom", err)
		return
	}

	resp := CreateRoomResponse{Created: created, Room: roomItem(room)}
	if created {
		if h.notifier != nil {
			h.notifier.NotifyRoomCreated(r.Context(), room, userID)
		}
		httputil.Created(w, resp)
		return
	}
	httputil.OK(w, resp)
}

// GET /api/chat/rooms
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.rooms.List(r.Context(), httpmw.UserIDFromCtx(r.Context()))
	if err != nil {
		h.fail(w, r, "handler.ListRooms", err)
		return
	}

	items := make([]RoomItem, 0, len(rooms))
	for _, rm := range rooms {
		items = append(items, summaryItem(rm))
	}
	httputil.OK(w, ListRoomsResponse{Rooms: items})
}

// GET /api/chat/rooms/{roomID}/messages?after=&limit=
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	roomID, err := strconv.ParseInt(chi.URLParam(r, "roomID"), 10, 64)
	if err != nil || roomID <= 0 {
		httputil.Error(w, http.StatusBadRequest, "invalid room id", nil)
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			httputil.Error(w, http.StatusBadRequest, "invalid limit", map[string]any{"limit": s})
			return
		}
		limit = n
	}

	msgs, next, err := h.chat.History(r.Context(), roomID, httpmw.UserIDFromCtx(r.Context()), r.URL.Query().Get("after"), limit)
	if err != nil {
		h.fail(w, r, "handler.ListMessages", err)
		return
	}

	items := make([]MessageItem, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, messageItem(m))
	}
	httputil.OK(w, ListMessagesResponse{Messages: items, NextCursor: next})
}
