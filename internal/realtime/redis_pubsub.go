package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// NotifyChannel is the Redis channel carrying notification envelopes between instances.
	NotifyChannel  = "streamhub:notify"
	publishTimeout = 5 * time.Second
)

// NotifyTarget selects which channels an envelope is delivered to.
type NotifyTarget string

const (
	TargetUser         NotifyTarget = "user"
	TargetStreamStatus NotifyTarget = "stream-status"
	TargetAllUsers     NotifyTarget = "all-users"
)

// notifyEnvelope is the message published to Redis for cross-instance delivery.
type notifyEnvelope struct {
	Target  NotifyTarget    `json:"target"`
	UserID  string          `json:"user_id,omitempty"`
	Payload json.RawMessage `json:"payload"`
	At      int64           `json:"at"`
}

// RedisPubSub publishes notifications to Redis and relays them into the local hub.
// Every instance runs Relay, so a notification published once reaches connections on all instances.
type RedisPubSub struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for notifications.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, channel: NotifyChannel, logger: logger}
}

// NotifyUser publishes payload for userID's notification channel.
func (r *RedisPubSub) NotifyUser(ctx context.Context, userID string, payload any) error {
	if userID == "" {
		return fmt.Errorf("notify user: empty user id")
	}
	return r.publish(ctx, TargetUser, userID, payload)
}

// NotifyAllStreamStatusSubscribers publishes payload for the stream-status channel.
func (r *RedisPubSub) NotifyAllStreamStatusSubscribers(ctx context.Context, payload any) error {
	return r.publish(ctx, TargetStreamStatus, "", payload)
}

// NotifyAllNotificationSubscribers publishes payload for every notification channel.
func (r *RedisPubSub) NotifyAllNotificationSubscribers(ctx context.Context, payload any) error {
	return r.publish(ctx, TargetAllUsers, "", payload)
}

func (r *RedisPubSub) publish(ctx context.Context, target NotifyTarget, userID string, payload any) error {
	data, err := encode(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	body, err := json.Marshal(notifyEnvelope{Target: target, UserID: userID, Payload: data, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, body).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", target, err)
	}
	return nil
}

// Relay subscribes to the notify channel and delivers each envelope through n until ctx is cancelled.
func (r *RedisPubSub) Relay(ctx context.Context, n *Notifier) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	r.logger.Info("notification relay subscribed", zap.String("channel", r.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := deliverEnvelope(n, []byte(msg.Payload)); err != nil {
				r.logger.Warn("drop notification envelope", zap.Error(err))
			}
		}
	}
}

func deliverEnvelope(n *Notifier, body []byte) error {
	var env notifyEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if len(env.Payload) == 0 {
		return fmt.Errorf("envelope without payload")
	}
	switch env.Target {
	case TargetUser:
		if env.UserID == "" {
			return fmt.Errorf("user envelope without user_id")
		}
		n.NotifyUser(env.UserID, env.Payload)
	case TargetStreamStatus:
		n.NotifyAllStreamStatusSubscribers(env.Payload)
	case TargetAllUsers:
		n.NotifyAllNotificationSubscribers(env.Payload)
	default:
		return fmt.Errorf("unknown target %q", env.Target)
	}
	return nil
}
