package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/streamhub/internal/models"
)

type statsFunc func(ctx context.Context, streamID string) (*models.StreamStats, error)

func (f statsFunc) StreamStats(ctx context.Context, streamID string) (*models.StreamStats, error) {
	return f(ctx, streamID)
}

func TestStatsBroadcaster_PushesOnlyLiveStreams(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewMetrics(prometheus.NewRegistry())
	r := NewRegistry(clock, 0, m)
	live := models.StreamStats{CurrentViewers: 2, PeakViewers: 4, ChatMessages: 1, Duration: 30, IsLive: true}
	source := &fakeStats{live: map[string]models.StreamStats{"live": live}}

	a, b, off := newFakeConn("a"), newFakeConn("b"), newFakeConn("off")
	require.NoError(t, r.Join(a, StreamChannel("live")))
	require.NoError(t, r.Join(b, StreamChannel("live")))
	require.NoError(t, r.Join(off, StreamChannel("offline")))

	sb := NewStatsBroadcaster(r, source, clock, time.Second, time.Second, m, nil)
	assert.Equal(t, 1, sb.Tick(context.Background()))

	for _, c := range []*fakeConn{a, b} {
		var sm StatsMessage
		c.last(t, &sm)
		assert.Equal(t, live, sm.Stats)
	}
	assert.Empty(t, off.sent())
	assert.Equal(t, 2, source.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StatsPushes))
}

func TestStatsBroadcaster_StopsAfterStreamGoesOffline(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRegistry(clock, 0, nil)
	source := &fakeStats{live: map[string]models.StreamStats{"e1": {IsLive: true, CurrentViewers: 2}}}
	a, b := newFakeConn("a"), newFakeConn("b")
	require.NoError(t, r.Join(a, StreamChannel("e1")))
	require.NoError(t, r.Join(b, StreamChannel("e1")))
	sb := NewStatsBroadcaster(r, source, clock, time.Second, time.Second, nil, nil)

	assert.Equal(t, 1, sb.Tick(context.Background()))
	assert.Equal(t, []string{TypeStats}, a.types(t))
	assert.Equal(t, []string{TypeStats}, b.types(t))

	source.mu.Lock()
	delete(source.live, "e1")
	source.mu.Unlock()

	assert.Zero(t, sb.Tick(context.Background()))
	assert.Zero(t, sb.Tick(context.Background()))
	assert.Len(t, a.sent(), 1)
	assert.Len(t, b.sent(), 1)
	assert.Equal(t, 2, r.Count(StreamChannel("e1")), "going offline does not unsubscribe")
}

func TestStatsBroadcaster_IsolatesFailingStreams(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRegistry(clock, 0, nil)
	ok := models.StreamStats{IsLive: true, CurrentViewers: 1}
	source := statsFunc(func(_ context.Context, streamID string) (*models.StreamStats, error) {
		switch streamID {
		case "a-err":
			return nil, errors.New("query failed")
		case "b-panic":
			panic("boom")
		default:
			return &ok, nil
		}
	})

	conns := map[string]*fakeConn{}
	for _, id := range []string{"a-err", "b-panic", "c-ok"} {
		conns[id] = newFakeConn(id)
		require.NoError(t, r.Join(conns[id], StreamChannel(id)))
	}

	sb := NewStatsBroadcaster(r, source, clock, time.Second, time.Second, nil, nil)
	assert.Equal(t, 1, sb.Tick(context.Background()))

	assert.Empty(t, conns["a-err"].sent())
	assert.Empty(t, conns["b-panic"].sent())
	assert.Equal(t, []string{TypeStats}, conns["c-ok"].types(t))
}

func TestStatsBroadcaster_EvictsFailedSubscribers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRegistry(clock, 0, nil)
	source := &fakeStats{live: map[string]models.StreamStats{"s": {IsLive: true}}}
	dead := newFakeConn("dead")
	dead.setFail(true)
	require.NoError(t, r.Join(dead, StreamChannel("s")))

	sb := NewStatsBroadcaster(r, source, clock, time.Second, time.Second, nil, nil)
	sb.Tick(context.Background())

	assert.False(t, r.Has(StreamChannel("s")))
}

func TestStatsBroadcaster_NoSource(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClock(), 0, nil)
	require.NoError(t, r.Join(newFakeConn("a"), StreamChannel("s")))

	sb := NewStatsBroadcaster(r, nil, clockwork.NewFakeClock(), time.Second, time.Second, nil, nil)
	assert.Zero(t, sb.Tick(context.Background()))
	sb.Run(context.Background()) // returns immediately
}
