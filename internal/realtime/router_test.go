package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/streamhub/internal/models"
)

type savedChat struct {
	streamID string
	userID   *string
	userName string
	text     string
}

type fakeChats struct {
	mu    sync.Mutex
	saved []savedChat
	err   error
}

func (f *fakeChats) PersistChatMessage(_ context.Context, streamID string, userID *string, userName, text string) (*models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.saved = append(f.saved, savedChat{streamID: streamID, userID: userID, userName: userName, text: text})
	msg := &models.ChatMessage{
		ID:           uuid.New(),
		LivestreamID: uuid.New(),
		UserName:     userName,
		Text:         text,
		CreatedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	if userID != nil {
		if id, err := uuid.Parse(*userID); err == nil {
			msg.UserID = &id
		}
	}
	return msg, nil
}

type fakeStats struct {
	mu    sync.Mutex
	live  map[string]models.StreamStats
	err   error
	calls int
}

func (f *fakeStats) StreamStats(_ context.Context, streamID string) (*models.StreamStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.live[streamID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func newTestHub(t *testing.T, chats ChatStore, stats StatsSource) (*Hub, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	return NewHub(Options{}, chats, stats, clock, nil, nil), clock
}

func send(t *testing.T, h *Hub, c Conn, frame string) {
	t.Helper()
	h.NewRouter(c, "").Handle(context.Background(), []byte(frame))
}

func TestRouter_ChatBroadcastsToStreamOnly(t *testing.T) {
	chats := &fakeChats{}
	h, _ := newTestHub(t, chats, nil)
	a, b, c := newFakeConn("A"), newFakeConn("B"), newFakeConn("C")

	send(t, h, a, `{"type":"subscribe","streamId":"e1"}`)
	send(t, h, b, `{"type":"subscribe","streamId":"e1"}`)
	send(t, h, c, `{"type":"subscribe","streamId":"e2"}`)
	send(t, h, a, `{"type":"chat-message","streamId":"e1","userName":"Bob","text":"hi"}`)

	require.Len(t, chats.saved, 1)
	assert.Equal(t, "e1", chats.saved[0].streamID)
	assert.Nil(t, chats.saved[0].userID)

	for _, conn := range []*fakeConn{a, b} {
		var ev NewMessageEvent
		conn.last(t, &ev)
		assert.Equal(t, TypeNewMessage, ev.Type)
		assert.Equal(t, "Bob", ev.Message.UserName)
		assert.Equal(t, "hi", ev.Message.Text)
		assert.Nil(t, ev.Message.UserID)
	}
	assert.Empty(t, c.sent())
}

func TestRouter_ChatPersistFailure(t *testing.T) {
	chats := &fakeChats{err: errors.New("db down")}
	h, _ := newTestHub(t, chats, nil)
	a, b := newFakeConn("A"), newFakeConn("B")
	send(t, h, a, `{"type":"subscribe","streamId":"e1"}`)
	send(t, h, b, `{"type":"subscribe","streamId":"e1"}`)

	send(t, h, a, `{"type":"chat-message","streamId":"e1","userName":"Bob","text":"hi"}`)

	var em ErrorMessage
	a.last(t, &em)
	assert.Equal(t, ErrorMessage{Type: TypeError, Message: "Failed to send message"}, em)
	assert.Len(t, a.sent(), 1)
	assert.Empty(t, b.sent())
}

func TestRouter_ChatUsesAuthenticatedUser(t *testing.T) {
	chats := &fakeChats{}
	h, _ := newTestHub(t, chats, nil)
	a := newFakeConn("A")
	userID := uuid.New().String()
	rt := h.NewRouter(a, userID)

	rt.Handle(context.Background(), []byte(`{"type":"subscribe","streamId":"e1"}`))
	rt.Handle(context.Background(), []byte(`{"type":"chat-message","streamId":"e1","userName":"Ann","text":"yo"}`))

	require.Len(t, chats.saved, 1)
	require.NotNil(t, chats.saved[0].userID)
	assert.Equal(t, userID, *chats.saved[0].userID)

	var ev NewMessageEvent
	a.last(t, &ev)
	require.NotNil(t, ev.Message.UserID)
	assert.Equal(t, userID, ev.Message.UserID.String())
}

func TestRouter_ChatValidation(t *testing.T) {
	chats := &fakeChats{}
	h, _ := newTestHub(t, chats, nil)
	a := newFakeConn("A")

	send(t, h, a, `{"type":"chat-message","text":"hi"}`)
	send(t, h, a, `{"type":"chat-message","streamId":"e1"}`)

	assert.Empty(t, chats.saved)
	assert.Equal(t, []string{TypeError, TypeError}, a.types(t))
}

func TestRouter_ProtocolErrors(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{"not json", `hello`, "Invalid message format"},
		{"no type", `{"streamId":"e1"}`, "Invalid message format"},
		{"unknown type", `{"type":"dance"}`, "Unknown message type"},
		{"subscribe without stream", `{"type":"subscribe"}`, "streamId is required"},
		{"notifications without user", `{"type":"subscribe-notifications"}`, "userId is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHub(t, nil, nil)
			c := newFakeConn("c")
			send(t, h, c, tt.frame)

			var em ErrorMessage
			c.last(t, &em)
			assert.Equal(t, TypeError, em.Type)
			assert.Equal(t, tt.want, em.Message)
			assert.Empty(t, h.Registry().StreamKeys())
		})
	}
}

func TestRouter_PingPong(t *testing.T) {
	h, clock := newTestHub(t, nil, nil)
	c := newFakeConn("c")

	send(t, h, c, `{"type":"ping"}`)
	assert.Equal(t, []string{TypePong}, c.types(t))

	clock.Advance(time.Minute)
	send(t, h, c, `{"type":"pong"}`)
	assert.Len(t, c.sent(), 1, "pong is not answered")

	last, ok := h.Registry().LastActivity(c)
	require.True(t, ok)
	assert.Equal(t, clock.Now(), last)
}

func TestRouter_RejectedFrameCountsAsActivity(t *testing.T) {
	h, clock := newTestHub(t, nil, nil)
	c := newFakeConn("c")
	clock.Advance(time.Hour)

	send(t, h, c, `garbage`)

	last, ok := h.Registry().LastActivity(c)
	require.True(t, ok)
	assert.Equal(t, clock.Now(), last)
}

func TestRouter_SubscribePushesStatsWhenLive(t *testing.T) {
	live := models.StreamStats{CurrentViewers: 3, PeakViewers: 5, ChatMessages: 9, Duration: 120, IsLive: true}
	stats := &fakeStats{live: map[string]models.StreamStats{"e1": live}}
	h, _ := newTestHub(t, nil, stats)
	a, b := newFakeConn("A"), newFakeConn("B")

	send(t, h, a, `{"type":"subscribe","streamId":"e1"}`)
	send(t, h, b, `{"type":"subscribe","streamId":"offline"}`)

	var sm StatsMessage
	a.last(t, &sm)
	assert.Equal(t, StatsMessage{Type: TypeStats, Stats: live}, sm)
	assert.Empty(t, b.sent())
	assert.Equal(t, 1, h.Registry().Count(StreamChannel("offline")))
}

func TestRouter_SubscribeStatsErrorStillJoins(t *testing.T) {
	h, _ := newTestHub(t, nil, &fakeStats{err: errors.New("timeout")})
	a := newFakeConn("A")

	send(t, h, a, `{"type":"subscribe","streamId":"e1"}`)

	assert.Empty(t, a.sent())
	assert.Equal(t, 1, h.Registry().Count(StreamChannel("e1")))
}

func TestRouter_SubscribeAtCapacity(t *testing.T) {
	clock := clockwork.NewFakeClock()
	h := NewHub(Options{MaxPerStream: 1}, nil, nil, clock, nil, nil)
	a, b := newFakeConn("A"), newFakeConn("B")

	send(t, h, a, `{"type":"subscribe","streamId":"e1"}`)
	send(t, h, b, `{"type":"subscribe","streamId":"e1"}`)

	var em ErrorMessage
	b.last(t, &em)
	assert.Equal(t, "Stream capacity reached", em.Message)
	assert.Equal(t, 1, h.Registry().Count(StreamChannel("e1")))
}

func TestRouter_SubscribeStatusAndNotifications(t *testing.T) {
	h, _ := newTestHub(t, nil, nil)
	c := newFakeConn("c")

	send(t, h, c, `{"type":"subscribe-stream-status"}`)
	send(t, h, c, `{"type":"subscribe-notifications","userId":"u1"}`)

	assert.Empty(t, c.sent())
	assert.Equal(t, 1, h.Registry().Count(StreamStatusChannel))
	assert.Equal(t, []string{"u1"}, h.Registry().NotificationKeys())
}

func TestRouter_RateLimit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	h := NewHub(Options{RatePerSecond: 1, RateBurst: 2}, nil, nil, clock, nil, nil)
	c := newFakeConn("c")
	rt := h.NewRouter(c, "")

	for i := 0; i < 3; i++ {
		rt.Handle(context.Background(), []byte(`{"type":"ping"}`))
	}

	assert.Equal(t, []string{TypePong, TypePong, TypeError}, c.types(t))
	var em ErrorMessage
	c.last(t, &em)
	assert.Equal(t, "Too many messages", em.Message)
}
