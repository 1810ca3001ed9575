package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_NotifyUser(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClock(), 0, nil)
	n := NewNotifier(r, nil)
	b, c, d := newFakeConn("B"), newFakeConn("C"), newFakeConn("D")
	require.NoError(t, r.Join(b, NotificationChannel("u1")))
	require.NoError(t, r.Join(c, NotificationChannel("u1")))
	require.NoError(t, r.Join(d, NotificationChannel("u2")))

	payload := map[string]any{"type": "new-notification", "id": 7}
	assert.Equal(t, 2, n.NotifyUser("u1", payload))

	for _, conn := range []*fakeConn{b, c} {
		var got map[string]any
		conn.last(t, &got)
		assert.Equal(t, "new-notification", got["type"])
		assert.EqualValues(t, 7, got["id"])
	}
	assert.Empty(t, d.sent())
}

func TestNotifier_NotifyUnknownUserIsNoop(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClock(), 0, nil)
	n := NewNotifier(r, nil)

	assert.Zero(t, n.NotifyUser("nobody", TypedMessage{Type: TypeNewNotification}))
	assert.False(t, r.Has(NotificationChannel("nobody")))
}

func TestNotifier_StreamStatusSubscribers(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClock(), 0, nil)
	n := NewNotifier(r, nil)
	s1, s2, other := newFakeConn("s1"), newFakeConn("s2"), newFakeConn("other")
	require.NoError(t, r.Join(s1, StreamStatusChannel))
	require.NoError(t, r.Join(s2, StreamStatusChannel))
	require.NoError(t, r.Join(other, NotificationChannel("u1")))

	assert.Equal(t, 2, n.StreamStatusChanged())
	assert.Equal(t, 2, n.ViewerKicked("u9"))

	assert.Equal(t, []string{TypeStreamStatusChange, TypeViewerKicked}, s1.types(t))
	var kicked ViewerKickedMessage
	s2.last(t, &kicked)
	assert.Equal(t, ViewerKickedMessage{Type: TypeViewerKicked, UserID: "u9"}, kicked)
	assert.Empty(t, other.sent())
}

func TestNotifier_AllNotificationSubscribers(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClock(), 0, nil)
	n := NewNotifier(r, nil)
	a, b, status := newFakeConn("a"), newFakeConn("b"), newFakeConn("status")
	require.NoError(t, r.Join(a, NotificationChannel("u1")))
	require.NoError(t, r.Join(b, NotificationChannel("u2")))
	require.NoError(t, r.Join(status, StreamStatusChannel))

	assert.Equal(t, 2, n.NewNotificationForAll())
	assert.Equal(t, []string{TypeNewNotification}, a.types(t))
	assert.Equal(t, []string{TypeNewNotification}, b.types(t))
	assert.Empty(t, status.sent())
}

func TestNotifier_RawPayloadPassesThrough(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClock(), 0, nil)
	n := NewNotifier(r, nil)
	c := newFakeConn("c")
	require.NoError(t, r.Join(c, StreamStatusChannel))

	raw := json.RawMessage(`{"type":"stream-update","streamId":"e1"}`)
	n.NotifyAllStreamStatusSubscribers(raw)

	require.Len(t, c.sent(), 1)
	assert.Equal(t, string(raw), string(c.sent()[0]))
}

func TestNotifier_UnencodablePayload(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClock(), 0, nil)
	n := NewNotifier(r, nil)
	c := newFakeConn("c")
	require.NoError(t, r.Join(c, StreamStatusChannel))

	assert.Zero(t, n.NotifyAllStreamStatusSubscribers(func() {}))
	assert.Empty(t, c.sent())
}

func TestLocalPublisher(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClock(), 0, nil)
	p := LocalPublisher(NewNotifier(r, nil))
	c := newFakeConn("c")
	require.NoError(t, r.Join(c, NotificationChannel("u1")))

	require.NoError(t, p.NotifyUser(context.Background(), "u1", TypedMessage{Type: TypeNewNotification}))
	require.NoError(t, p.NotifyAllNotificationSubscribers(context.Background(), TypedMessage{Type: TypeNewNotification}))
	require.NoError(t, p.NotifyAllStreamStatusSubscribers(context.Background(), TypedMessage{Type: TypeStreamUpdate}))

	assert.Equal(t, []string{TypeNewNotification, TypeNewNotification}, c.types(t))
}
