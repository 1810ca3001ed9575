package realtime

import (
	"context"

	"go.uber.org/zap"
)

// Publisher delivers notifications either to this instance only or, through Redis, to every instance.
type Publisher interface {
	NotifyUser(ctx context.Context, userID string, payload any) error
	NotifyAllStreamStatusSubscribers(ctx context.Context, payload any) error
	NotifyAllNotificationSubscribers(ctx context.Context, payload any) error
}

var (
	_ Publisher = (*RedisPubSub)(nil)
	_ Publisher = localPublisher{}
)

// Notifier is the push API collaborators use to reach connected clients.
// Payloads are opaque: the hub marshals and routes them without inspecting the content.
type Notifier struct {
	registry *Registry
	logger   *zap.Logger
}

// NewNotifier creates a notifier over registry.
func NewNotifier(registry *Registry, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{registry: registry, logger: logger}
}

// NotifyUser pushes payload to every connection subscribed under userID.
// It is a no-op when the user has no open subscription.
func (n *Notifier) NotifyUser(userID string, payload any) int {
	key := NotificationChannel(userID)
	if !n.registry.Has(key) {
		return 0
	}
	return n.broadcast(key, payload)
}

// NotifyAllStreamStatusSubscribers pushes payload to the global stream-status channel.
func (n *Notifier) NotifyAllStreamStatusSubscribers(payload any) int {
	return n.broadcast(StreamStatusChannel, payload)
}

// NotifyAllNotificationSubscribers pushes payload to every notification channel.
func (n *Notifier) NotifyAllNotificationSubscribers(payload any) int {
	data, err := encode(payload)
	if err != nil {
		n.logger.Error("encode notification", zap.Error(err))
		return 0
	}
	sent := 0
	for _, userID := range n.registry.NotificationKeys() {
		sent += n.registry.Broadcast(NotificationChannel(userID), data)
	}
	return sent
}

func (n *Notifier) broadcast(key ChannelKey, payload any) int {
	data, err := encode(payload)
	if err != nil {
		n.logger.Error("encode notification", zap.String("channel", key.Kind.String()), zap.Error(err))
		return 0
	}
	return n.registry.Broadcast(key, data)
}

// StreamStatusChanged tells status subscribers a stream went live or offline.
func (n *Notifier) StreamStatusChanged() int {
	return n.NotifyAllStreamStatusSubscribers(TypedMessage{Type: TypeStreamStatusChange})
}

// StreamUpdated tells status subscribers a stream's details changed.
func (n *Notifier) StreamUpdated() int {
	return n.NotifyAllStreamStatusSubscribers(TypedMessage{Type: TypeStreamUpdate})
}

// ViewersUpdated tells status subscribers the viewer list changed.
func (n *Notifier) ViewersUpdated() int {
	return n.NotifyAllStreamStatusSubscribers(TypedMessage{Type: TypeViewersUpdate})
}

// ViewerKicked tells status subscribers that userID was removed from the stream.
func (n *Notifier) ViewerKicked(userID string) int {
	return n.NotifyAllStreamStatusSubscribers(ViewerKickedMessage{Type: TypeViewerKicked, UserID: userID})
}

// NewNotification tells userID's connections a notification record was created.
func (n *Notifier) NewNotification(userID string) int {
	return n.NotifyUser(userID, TypedMessage{Type: TypeNewNotification})
}

// NewNotificationForAll tells every notification subscriber about a system-wide announcement.
func (n *Notifier) NewNotificationForAll() int {
	return n.NotifyAllNotificationSubscribers(TypedMessage{Type: TypeNewNotification})
}

// LocalPublisher adapts n to Publisher for single-instance deployments.
func LocalPublisher(n *Notifier) Publisher {
	return localPublisher{n: n}
}

type localPublisher struct {
	n *Notifier
}

func (p localPublisher) NotifyUser(_ context.Context, userID string, payload any) error {
	p.n.NotifyUser(userID, payload)
	return nil
}

func (p localPublisher) NotifyAllStreamStatusSubscribers(_ context.Context, payload any) error {
	p.n.NotifyAllStreamStatusSubscribers(payload)
	return nil
}

func (p localPublisher) NotifyAllNotificationSubscribers(_ context.Context, payload any) error {
	p.n.NotifyAllNotificationSubscribers(payload)
	return nil
}
