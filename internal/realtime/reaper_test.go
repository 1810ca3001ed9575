package realtime

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaper_EvictsIdleConnections(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewMetrics(prometheus.NewRegistry())
	r := NewRegistry(clock, 0, m)
	idle, active := newFakeConn("idle"), newFakeConn("active")

	r.Touch(idle)
	require.NoError(t, r.Join(idle, StreamChannel("s1")))
	require.NoError(t, r.Join(idle, NotificationChannel("u1")))
	r.Touch(active)
	require.NoError(t, r.Join(active, StreamChannel("s1")))

	clock.Advance(4 * time.Minute)
	r.Touch(active)
	clock.Advance(2 * time.Minute)

	reaper := NewReaper(r, clock, time.Minute, 5*time.Minute, m, nil)
	assert.Equal(t, 1, reaper.Tick())

	assert.Equal(t, 1, idle.closeCount())
	assert.Zero(t, active.closeCount())
	assert.Equal(t, 1, r.Count(StreamChannel("s1")))
	assert.False(t, r.Has(NotificationChannel("u1")))
	_, tracked := r.LastActivity(idle)
	assert.False(t, tracked)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReapedConnections))
}

func TestReaper_ExactlyAtTimeoutIsKept(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRegistry(clock, 0, nil)
	c := newFakeConn("c")
	r.Touch(c)

	clock.Advance(5 * time.Minute)
	reaper := NewReaper(r, clock, time.Minute, 5*time.Minute, nil, nil)
	assert.Zero(t, reaper.Tick())

	clock.Advance(time.Second)
	assert.Equal(t, 1, reaper.Tick())
	assert.Zero(t, reaper.Tick(), "already evicted")
}

type panicOnClose struct {
	*fakeConn
}

func (p panicOnClose) Close() error {
	panic("close exploded")
}

func TestReaper_CloseFailureDoesNotStopTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRegistry(clock, 0, nil)
	bad := panicOnClose{newFakeConn("bad")}
	good := newFakeConn("good")
	r.Touch(bad)
	r.Touch(good)

	clock.Advance(10 * time.Minute)
	reaper := NewReaper(r, clock, time.Minute, 5*time.Minute, nil, nil)

	assert.Equal(t, 2, reaper.Tick())
	assert.Equal(t, 1, good.closeCount())
	assert.Empty(t, r.Connections())
}

func TestReaper_DoesNotRecountPurgedConnections(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewMetrics(prometheus.NewRegistry())
	r := NewRegistry(clock, 0, m)
	c := newFakeConn("c")
	r.Touch(c)
	clock.Advance(10 * time.Minute)

	reaper := NewReaper(r, clock, time.Minute, 5*time.Minute, m, nil)
	require.Equal(t, 1, reaper.Tick())

	// A second pass, or a read loop purge racing the reaper, finds nothing to evict.
	r.Purge(c)
	assert.Zero(t, reaper.Tick())
	assert.False(t, r.PurgeIfIdle(c, clock.Now()))
	assert.Equal(t, 1, c.closeCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReapedConnections))
}
