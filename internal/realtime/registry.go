package realtime

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultMaxPerStream is the subscriber cap for a single stream channel.
const DefaultMaxPerStream = 1000

// ErrCapacityExceeded is returned by Join when a stream channel is full.
var ErrCapacityExceeded = errors.New("stream capacity reached")

// Conn is the registry's view of one open connection. The registry never owns it:
// it only sends to it and looks it up by ID.
type Conn interface {
	ID() string
	// Send queues data for delivery. It must not block.
	Send(data []byte) error
	Close() error
}

// ChannelKind distinguishes the three channel families.
type ChannelKind uint8

const (
	KindStream ChannelKind = iota + 1
	KindStreamStatus
	KindNotification
)

func (k ChannelKind) String() string {
	switch k {
	case KindStream:
		return "stream"
	case KindStreamStatus:
		return "stream_status"
	case KindNotification:
		return "notification"
	default:
		return "unknown"
	}
}

// ChannelKey names one channel. ID is the stream id or user id; empty for the stream-status channel.
type ChannelKey struct {
	Kind ChannelKind
	ID   string
}

// StreamStatusChannel is the single global stream-status channel.
var StreamStatusChannel = ChannelKey{Kind: KindStreamStatus}

// StreamChannel returns the key of the viewer/chat channel for a stream.
func StreamChannel(streamID string) ChannelKey {
	return ChannelKey{Kind: KindStream, ID: streamID}
}

// NotificationChannel returns the key of the notification channel for a user.
func NotificationChannel(userID string) ChannelKey {
	return ChannelKey{Kind: KindNotification, ID: userID}
}

type activity struct {
	conn Conn
	last time.Time
}

// RegistryStats is a point-in-time summary of the registry.
type RegistryStats struct {
	Connections          int `json:"connections"`
	StreamChannels       int `json:"stream_channels"`
	NotificationChannels int `json:"notification_channels"`
	StreamStatusMembers  int `json:"stream_status_members"`
}

// Registry tracks which connections belong to which channel and when each connection was last active.
// All state lives in maps keyed by channel key and connection id; every operation runs under one mutex.
type Registry struct {
	mu           sync.Mutex
	clock        clockwork.Clock
	maxPerStream int
	metrics      *Metrics

	channels    map[ChannelKey]map[string]Conn
	memberships map[string]map[ChannelKey]struct{}
	activity    map[string]activity
}

// NewRegistry creates an empty registry. maxPerStream <= 0 selects DefaultMaxPerStream.
func NewRegistry(clock clockwork.Clock, maxPerStream int, metrics *Metrics) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if maxPerStream <= 0 {
		maxPerStream = DefaultMaxPerStream
	}
	return &Registry{
		clock:        clock,
		maxPerStream: maxPerStream,
		metrics:      metrics,
		channels:     make(map[ChannelKey]map[string]Conn),
		memberships:  make(map[string]map[ChannelKey]struct{}),
		activity:     make(map[string]activity),
	}
}

// MaxPerStream returns the configured stream channel cap.
func (r *Registry) MaxPerStream() int {
	return r.maxPerStream
}

// Join adds conn to the channel, creating it if needed. Stream channels at capacity
// reject the join with ErrCapacityExceeded. Joining twice is a no-op.
func (r *Registry) Join(conn Conn, key ChannelKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.channels[key]
	if _, ok := members[conn.ID()]; ok {
		return nil
	}
	if key.Kind == KindStream && len(members) >= r.maxPerStream {
		r.metrics.capacityRejected()
		return ErrCapacityExceeded
	}
	if members == nil {
		members = make(map[string]Conn)
		r.channels[key] = members
		r.metrics.channelOpened(key.Kind)
	}
	members[conn.ID()] = conn

	joined := r.memberships[conn.ID()]
	if joined == nil {
		joined = make(map[ChannelKey]struct{})
		r.memberships[conn.ID()] = joined
	}
	joined[key] = struct{}{}
	return nil
}

// Leave removes conn from the channel and deletes the channel once it is empty.
func (r *Registry) Leave(conn Conn, key ChannelKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(conn.ID(), key)
}

func (r *Registry) leaveLocked(connID string, key ChannelKey) {
	if members, ok := r.channels[key]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.channels, key)
			r.metrics.channelClosed(key.Kind)
		}
	}
	if joined, ok := r.memberships[connID]; ok {
		delete(joined, key)
		if len(joined) == 0 {
			delete(r.memberships, connID)
		}
	}
}

// Touch records the current time as conn's last activity.
func (r *Registry) Touch(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.activity[conn.ID()]; !ok {
		r.metrics.connectionTracked()
	}
	r.activity[conn.ID()] = activity{conn: conn, last: r.clock.Now()}
}

// LastActivity returns conn's last activity time, if tracked.
func (r *Registry) LastActivity(conn Conn) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.activity[conn.ID()]
	return a.last, ok
}

// Purge removes conn from every channel it belongs to and forgets its activity record.
func (r *Registry) Purge(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	for key := range r.memberships[id] {
		r.leaveLocked(id, key)
	}
	if _, ok := r.activity[id]; ok {
		delete(r.activity, id)
		r.metrics.connectionForgotten()
	}
}

// PurgeIfIdle purges conn only if its last activity is still before cutoff.
// It reports whether a tracked connection was evicted; a connection already purged
// elsewhere only has leftover memberships removed and reports false.
func (r *Registry) PurgeIfIdle(conn Conn, cutoff time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	a, tracked := r.activity[id]
	if tracked && !a.last.Before(cutoff) {
		return false
	}
	for key := range r.memberships[id] {
		r.leaveLocked(id, key)
	}
	if !tracked {
		return false
	}
	delete(r.activity, id)
	r.metrics.connectionForgotten()
	return true
}

// Broadcast sends data to every member of the channel and returns how many sends succeeded.
// Members whose send fails are removed from this channel once the pass completes.
func (r *Registry) Broadcast(key ChannelKey, data []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.channels[key]
	if len(members) == 0 {
		return 0
	}

	var failed []string
	sent := 0
	for id, conn := range members {
		if err := conn.Send(data); err != nil {
			failed = append(failed, id)
			continue
		}
		sent++
	}
	for _, id := range failed {
		r.leaveLocked(id, key)
	}
	r.metrics.messagesSent(sent, len(failed))
	return sent
}

// SnapshotStale returns the connections whose last activity is older than now - timeout.
func (r *Registry) SnapshotStale(timeout time.Duration, now time.Time) []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-timeout)
	var stale []Conn
	for _, a := range r.activity {
		if a.last.Before(cutoff) {
			stale = append(stale, a.conn)
		}
	}
	return stale
}

// Members returns a copy of the channel's current members.
func (r *Registry) Members(key ChannelKey) []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := r.channels[key]
	out := make([]Conn, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

// Count returns the number of members in the channel.
func (r *Registry) Count(key ChannelKey) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels[key])
}

// Has reports whether the channel currently exists.
func (r *Registry) Has(key ChannelKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.channels[key]
	return ok
}

// StreamKeys returns the ids of all stream channels, sorted.
func (r *Registry) StreamKeys() []string {
	return r.keysOf(KindStream)
}

// NotificationKeys returns the user ids of all notification channels, sorted.
func (r *Registry) NotificationKeys() []string {
	return r.keysOf(KindNotification)
}

func (r *Registry) keysOf(kind ChannelKind) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for key := range r.channels {
		if key.Kind == kind {
			ids = append(ids, key.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// Connections returns every connection the registry knows about: members of any channel
// plus connections that are only tracked for activity.
func (r *Registry) Connections() []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]Conn, len(r.activity))
	for _, members := range r.channels {
		for id, c := range members {
			seen[id] = c
		}
	}
	for id, a := range r.activity {
		seen[id] = a.conn
	}
	out := make([]Conn, 0, len(seen))
	for _, c := range seen {
		out = append(out, c)
	}
	return out
}

// Stats summarizes the registry.
func (r *Registry) Stats() RegistryStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := RegistryStats{Connections: len(r.activity)}
	for key, members := range r.channels {
		switch key.Kind {
		case KindStream:
			s.StreamChannels++
		case KindNotification:
			s.NotificationChannels++
		case KindStreamStatus:
			s.StreamStatusMembers = len(members)
		}
	}
	return s
}
