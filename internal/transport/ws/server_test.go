package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Kjeonghyun5142/bap-pool/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokens map[string]int64

func (f fakeTokens) Verify(token string) (int64, error) {
	if id, ok := f[token]; ok {
		return id, nil
	}
	return 0, domain.ErrInvalidToken
}

// fakeStore holds room 5 between users 1 and 2.
type fakeStore struct {
	mu       sync.Mutex
	rooms    map[int64]domain.ChatRoom
	profiles map[int64]domain.Profile
	nextID   int64
	saveErr  error
	panicOn  string
	saved    int
	// afterCommit runs once the message id is assigned, before Send returns
	afterCommit func(id int64)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rooms: map[int64]domain.ChatRoom{
			5: {ID: 5, ParticipantLow: 1, ParticipantHigh: 2, Kind: domain.RoomKindDirect},
		},
		profiles: map[int64]domain.Profile{
			1: {ID: 1, DisplayName: "A", Email: "a@bappool.test"},
			2: {ID: 2, DisplayName: "B", Email: "b@bappool.test"},
			3: {ID: 3, DisplayName: "C", Email: "c@bappool.test"},
		},
	}
}

func (f *fakeStore) Authorize(_ context.Context, roomID, userID int64) (*domain.ChatRoom, error) {
	if roomID <= 0 {
		return nil, domain.ErrMissingRoomID
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	if !r.HasParticipant(userID) {
		return nil, domain.ErrNotParticipant
	}
	return &r, nil
}

func (f *fakeStore) Send(ctx context.Context, roomID, senderID int64, content string) (*domain.MessageWithSender, error) {
	text, err := domain.NormalizeContent(content)
	if err != nil {
		return nil, err
	}
	if text == f.panicOn {
		panic("boom")
	}
	if _, err := f.Authorize(ctx, roomID, senderID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	if f.saveErr != nil {
		f.mu.Unlock()
		return nil, f.saveErr
	}
	f.nextID++
	f.saved++
	msg := &domain.MessageWithSender{
		ChatMessage: domain.ChatMessage{
			ID: f.nextID, RoomID: roomID, SenderID: senderID, Content: text, CreatedAt: time.Now().UTC(),
		},
		Sender: f.profiles[senderID],
	}
	hook := f.afterCommit
	f.mu.Unlock()

	if hook != nil {
		hook(msg.ID)
	}
	return msg, nil
}

func (f *fakeStore) GetProfile(_ context.Context, id int64) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &p, nil
}

func (f *fakeStore) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saved
}

type denyAll struct{}

func (denyAll) Allow(context.Context, int64) (bool, error) { return false, nil }

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, int64) (bool, error) {
	return true, errors.New("redis down")
}

type relayRecorder struct {
	mu     sync.Mutex
	events map[int64][][]byte
}

func (r *relayRecorder) Publish(roomID int64, event []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events == nil {
		r.events = map[int64][][]byte{}
	}
	r.events[roomID] = append(r.events[roomID], event)
	return nil
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (f frame) message(t *testing.T) string {
	t.Helper()
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(f.Payload, &p))
	return p.Message
}

type harness struct {
	srv   *httptest.Server
	hub   *Hub
	store *fakeStore
}

func newHarness(t *testing.T, mutate func(*Deps)) *harness {
	t.Helper()
	h := &harness{hub: NewHub(), store: newFakeStore()}
	deps := Deps{
		Hub:    h.hub,
		Tokens: fakeTokens{"t1": 1, "t2": 2, "t3": 3},
		Rooms:  h.store,
		Chat:   h.store,
	}
	if mutate != nil {
		mutate(&deps)
	}
	s := NewServer(deps, Options{PongWait: 2 * time.Second, WriteWait: time.Second})
	h.srv = httptest.NewServer(http.HandlerFunc(s.HandleWS))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) url(token string) string {
	u := "ws" + strings.TrimPrefix(h.srv.URL, "http")
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func (h *harness) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(h.url(token), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func send(t *testing.T, c *websocket.Conn, typ string, payload any) {
	t.Helper()
	require.NoError(t, c.WriteJSON(map[string]any{"type": typ, "payload": payload}))
}

func read(t *testing.T, c *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, c.ReadJSON(&f))
	return f
}

// syncPoint sends an unknown event and reads up to its server_error, proving no
// other frame was queued for c before it.
func syncPoint(t *testing.T, c *websocket.Conn) {
	t.Helper()
	send(t, c, "ping_me", nil)
	f := read(t, c)
	require.Equal(t, TypeServerError, f.Type, "unexpected frame %s", f.Payload)
}

func join(t *testing.T, c *websocket.Conn, roomID any) frame {
	t.Helper()
	send(t, c, TypeJoinRoom, map[string]any{"room_id": roomID})
	return read(t, c)
}

func TestHandleWS_RejectsMissingToken(t *testing.T) {
	h := newHarness(t, nil)

	resp, err := http.Get(h.srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), "authentication token required")
}

func TestHandleWS_RejectsInvalidToken(t *testing.T) {
	h := newHarness(t, nil)

	_, resp, err := websocket.DefaultDialer.Dial(h.url("forged"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), "invalid authentication token")
}

func TestHandleWS_BearerHeader(t *testing.T) {
	h := newHarness(t, nil)

	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer t1")
	c, _, err := websocket.DefaultDialer.Dial(h.url(""), hdr)
	require.NoError(t, err)
	defer c.Close()

	f := join(t, c, 5)
	assert.Equal(t, TypeRoomJoined, f.Type)
}

func TestHandleWS_DirectRoomConversation(t *testing.T) {
	h := newHarness(t, nil)
	u1, u2, u3 := h.dial(t, "t1"), h.dial(t, "t2"), h.dial(t, "t3")

	f := join(t, u1, 5)
	require.Equal(t, TypeRoomJoined, f.Type)
	var joined RoomJoinedPayload
	require.NoError(t, json.Unmarshal(f.Payload, &joined))
	assert.Equal(t, int64(5), joined.RoomID)
	assert.NotEmpty(t, joined.Message)

	require.Equal(t, TypeRoomJoined, join(t, u2, "5").Type)

	f = join(t, u3, 5)
	require.Equal(t, TypeRoomError, f.Type)
	assert.Equal(t, "not allowed to join this room", f.message(t))

	send(t, u1, TypeSendMessage, map[string]any{"room_id": 5, "content": "  hi  "})

	for _, c := range []*websocket.Conn{u1, u2} {
		f := read(t, c)
		require.Equal(t, TypeNewMessage, f.Type)
		var p NewMessagePayload
		require.NoError(t, json.Unmarshal(f.Payload, &p))
		assert.Equal(t, "hi", p.Content)
		assert.Equal(t, int64(5), p.RoomID)
		assert.Equal(t, int64(1), p.SenderID)
		assert.Equal(t, "A", p.Sender.DisplayName)
		assert.NotZero(t, p.ID)
	}
	syncPoint(t, u1)
	syncPoint(t, u2)
	syncPoint(t, u3)

	send(t, u3, TypeSendMessage, map[string]any{"room_id": 5, "content": "let me in"})
	f = read(t, u3)
	require.Equal(t, TypeMessageError, f.Type)
	assert.Equal(t, "not allowed to send messages to this room", f.message(t))
	syncPoint(t, u1)
	assert.Equal(t, 1, h.store.savedCount())
}

func TestHandleWS_SendWithoutJoin(t *testing.T) {
	h := newHarness(t, nil)
	u1, u2 := h.dial(t, "t1"), h.dial(t, "t2")
	require.Equal(t, TypeRoomJoined, join(t, u1, 5).Type)

	send(t, u2, TypeSendMessage, map[string]any{"room_id": 5, "content": "hey"})

	f := read(t, u1)
	require.Equal(t, TypeNewMessage, f.Type)
	syncPoint(t, u2)
}

func TestHandleWS_JoinErrors(t *testing.T) {
	h := newHarness(t, nil)
	c := h.dial(t, "t1")

	f := join(t, c, 404)
	assert.Equal(t, TypeRoomError, f.Type)
	assert.Equal(t, domain.ErrRoomNotFound.Error(), f.message(t))

	f = join(t, c, nil)
	assert.Equal(t, TypeRoomError, f.Type)
	assert.Equal(t, domain.ErrMissingRoomID.Error(), f.message(t))

	f = join(t, c, "abc")
	assert.Equal(t, TypeRoomError, f.Type)

	assert.Equal(t, TypeRoomJoined, join(t, c, 5).Type)
	assert.Equal(t, TypeRoomJoined, join(t, c, 5).Type, "repeat joins are acknowledged")
	assert.Len(t, h.hub.Members(5), 1)
}

func TestHandleWS_SendValidation(t *testing.T) {
	h := newHarness(t, nil)
	c := h.dial(t, "t1")

	cases := []struct {
		name    string
		payload map[string]any
		want    string
	}{
		{"blank content", map[string]any{"room_id": 5, "content": "   "}, domain.ErrEmptyContent.Error()},
		{"blank content and no room", map[string]any{"content": ""}, domain.ErrEmptyContent.Error()},
		{"missing room", map[string]any{"content": "hi"}, domain.ErrMissingRoomID.Error()},
		{"unknown room", map[string]any{"room_id": 9, "content": "hi"}, domain.ErrRoomNotFound.Error()},
		{"too long", map[string]any{"room_id": 5, "content": strings.Repeat("x", domain.MaxContentRunes+1)}, domain.ErrContentTooLong.Error()},
	}
	for _, tc := range cases {
		send(t, c, TypeSendMessage, tc.payload)
		f := read(t, c)
		assert.Equal(t, TypeMessageError, f.Type, tc.name)
		assert.Equal(t, tc.want, f.message(t), tc.name)
	}
	assert.Zero(t, h.store.savedCount())
}

func TestHandleWS_PersistenceFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.store.saveErr = errors.New("connection refused")
	u1, u2 := h.dial(t, "t1"), h.dial(t, "t2")
	require.Equal(t, TypeRoomJoined, join(t, u1, 5).Type)
	require.Equal(t, TypeRoomJoined, join(t, u2, 5).Type)

	send(t, u1, TypeSendMessage, map[string]any{"room_id": 5, "content": "hi"})
	f := read(t, u1)
	require.Equal(t, TypeMessageError, f.Type)
	assert.Equal(t, "failed to send message", f.message(t))

	syncPoint(t, u2)
}

func TestHandleWS_MalformedAndUnknownFrames(t *testing.T) {
	h := newHarness(t, nil)
	c := h.dial(t, "t1")

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("{not json")))
	f := read(t, c)
	assert.Equal(t, TypeServerError, f.Type)

	send(t, c, "dance", nil)
	f = read(t, c)
	assert.Equal(t, TypeServerError, f.Type)
	assert.Contains(t, f.message(t), "dance")

	assert.Equal(t, TypeRoomJoined, join(t, c, 5).Type, "connection survives bad frames")
}

func TestHandleWS_PanicIsContained(t *testing.T) {
	h := newHarness(t, nil)
	h.store.panicOn = "explode"
	c := h.dial(t, "t1")
	require.Equal(t, TypeRoomJoined, join(t, c, 5).Type)

	send(t, c, TypeSendMessage, map[string]any{"room_id": 5, "content": "explode"})
	f := read(t, c)
	assert.Equal(t, TypeServerError, f.Type)

	send(t, c, TypeSendMessage, map[string]any{"room_id": 5, "content": "still here"})
	assert.Equal(t, TypeNewMessage, read(t, c).Type)
}

func TestHandleWS_RateLimited(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Limiter = denyAll{} })
	c := h.dial(t, "t1")

	send(t, c, TypeSendMessage, map[string]any{"room_id": 5, "content": "hi"})
	f := read(t, c)
	assert.Equal(t, TypeMessageError, f.Type)
	assert.Equal(t, "rate limit exceeded", f.message(t))
	assert.Zero(t, h.store.savedCount())
}

func TestHandleWS_LimiterFailsOpen(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Limiter = failingLimiter{} })
	c := h.dial(t, "t1")
	require.Equal(t, TypeRoomJoined, join(t, c, 5).Type)

	send(t, c, TypeSendMessage, map[string]any{"room_id": 5, "content": "hi"})
	assert.Equal(t, TypeNewMessage, read(t, c).Type)
}

func TestHandleWS_RelayPublishesBroadcast(t *testing.T) {
	rec := &relayRecorder{}
	h := newHarness(t, func(d *Deps) { d.Relay = rec })
	c := h.dial(t, "t2")
	require.Equal(t, TypeRoomJoined, join(t, c, 5).Type)

	send(t, c, TypeSendMessage, map[string]any{"room_id": 5, "content": "relay me"})
	local := read(t, c)
	require.Equal(t, TypeNewMessage, local.Type)

	var events [][]byte
	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		events = rec.events[5]
		return len(events) == 1
	}, 2*time.Second, 10*time.Millisecond)
	var relayed frame
	require.NoError(t, json.Unmarshal(events[0], &relayed))
	assert.Equal(t, TypeNewMessage, relayed.Type)
	assert.JSONEq(t, string(local.Payload), string(relayed.Payload))
}

func TestHandleWS_BroadcastFollowsCommitOrder(t *testing.T) {
	h := newHarness(t, nil)
	// the first commit is slow to return, the second is immediate
	h.store.afterCommit = func(id int64) {
		if id == 1 {
			time.Sleep(200 * time.Millisecond)
		}
	}
	u1, u2 := h.dial(t, "t1"), h.dial(t, "t2")
	require.Equal(t, TypeRoomJoined, join(t, u1, 5).Type)
	require.Equal(t, TypeRoomJoined, join(t, u2, 5).Type)

	send(t, u1, TypeSendMessage, map[string]any{"room_id": 5, "content": "first"})
	require.Eventually(t, func() bool { return h.store.savedCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	send(t, u2, TypeSendMessage, map[string]any{"room_id": 5, "content": "second"})

	for _, c := range []*websocket.Conn{u1, u2} {
		var ids []int64
		for i := 0; i < 2; i++ {
			f := read(t, c)
			require.Equal(t, TypeNewMessage, f.Type)
			var p NewMessagePayload
			require.NoError(t, json.Unmarshal(f.Payload, &p))
			ids = append(ids, p.ID)
		}
		assert.Equal(t, []int64{1, 2}, ids)
	}
}

func TestServer_RoomLockStriping(t *testing.T) {
	s := NewServer(Deps{Hub: NewHub()}, Options{})
	assert.Same(t, s.roomLock(5), s.roomLock(5))
	assert.Same(t, s.roomLock(5), s.roomLock(5+sendStripes))
	assert.NotSame(t, s.roomLock(5), s.roomLock(6))
}

func TestHandleWS_DisconnectDropsMemberships(t *testing.T) {
	h := newHarness(t, nil)
	c := h.dial(t, "t1")
	require.Equal(t, TypeRoomJoined, join(t, c, 5).Type)
	require.Len(t, h.hub.Members(5), 1)

	require.NoError(t, c.Close())

	assert.Eventually(t, func() bool {
		return len(h.hub.Members(5)) == 0 && h.hub.Connections() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNotifyRoomCreated_ReachesPeerPrivateGroup(t *testing.T) {
	hub := NewHub()
	s := NewServer(Deps{Hub: hub, Profiles: newFakeStore()}, Options{})
	peer, otherTab, creator := &fakeConn{id: 2}, &fakeConn{id: 2}, &fakeConn{id: 1}
	hub.Register(peer)
	hub.Register(otherTab)
	hub.Register(creator)

	room := &domain.ChatRoom{ID: 5, ParticipantLow: 1, ParticipantHigh: 2}
	assert.Equal(t, 2, s.NotifyRoomCreated(context.Background(), room, 1))
	assert.Equal(t, 0, creator.count())

	require.Equal(t, 1, peer.count())
	assert.JSONEq(t,
		`{"type":"room_created","payload":{"room_id":5,"created_by":1,"creator":{"id":1,"display_name":"A","email":"a@bappool.test"}}}`,
		string(peer.frames[0]))

	assert.Equal(t, 0, s.NotifyRoomCreated(context.Background(), room, 3), "outsiders notify nobody")
}

func TestNotifyRoomCreated_WithoutProfile(t *testing.T) {
	hub := NewHub()
	store := newFakeStore()
	delete(store.profiles, 1)
	s := NewServer(Deps{Hub: hub, Profiles: store}, Options{})
	peer := &fakeConn{id: 2}
	hub.Register(peer)

	room := &domain.ChatRoom{ID: 5, ParticipantLow: 1, ParticipantHigh: 2}
	require.Equal(t, 1, s.NotifyRoomCreated(context.Background(), room, 1))
	assert.JSONEq(t, `{"type":"room_created","payload":{"room_id":5,"created_by":1}}`, string(peer.frames[0]))
}
