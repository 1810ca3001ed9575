package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Router decodes the frames of one connection and dispatches them.
type Router struct {
	hub     *Hub
	conn    Conn
	userID  string
	limiter *rate.Limiter
}

// NewRouter creates the router for conn. userID is the connection's authenticated identity, if any.
func (h *Hub) NewRouter(conn Conn, userID string) *Router {
	rt := &Router{hub: h, conn: conn, userID: userID}
	if h.opts.RatePerSecond > 0 {
		rt.limiter = rate.NewLimiter(rate.Limit(h.opts.RatePerSecond), h.opts.RateBurst)
	}
	return rt
}

// Handle processes one inbound frame. Every frame counts as activity, including rejected ones.
func (rt *Router) Handle(ctx context.Context, data []byte) {
	rt.hub.registry.Touch(rt.conn)

	if rt.limiter != nil && !rt.limiter.Allow() {
		rt.replyError(errTextRateLimited)
		return
	}

	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
		rt.replyError(errTextMalformed)
		return
	}

	switch msg.Type {
	case TypePing:
		rt.reply(pongFrame)
	case TypePong:
		// answer to the hub heartbeat; activity already recorded
	case TypeSubscribeStreamStatus:
		rt.join(StreamStatusChannel)
	case TypeSubscribe:
		rt.subscribe(ctx, msg)
	case TypeChatMessage:
		rt.chat(ctx, msg)
	case TypeSubscribeNotifications:
		if msg.UserID == "" {
			rt.replyError(errTextUserRequired)
			return
		}
		rt.join(NotificationChannel(msg.UserID))
	default:
		rt.replyError(errTextUnknownType)
	}
}

func (rt *Router) join(key ChannelKey) bool {
	if err := rt.hub.registry.Join(rt.conn, key); err != nil {
		if errors.Is(err, ErrCapacityExceeded) {
			rt.hub.logger.Info("stream subscription rejected at capacity",
				zap.String("conn_id", rt.conn.ID()),
				zap.String("stream_id", key.ID),
				zap.Int("max_per_stream", rt.hub.registry.MaxPerStream()),
			)
			rt.replyError(errTextCapacity)
		}
		return false
	}
	return true
}

func (rt *Router) subscribe(ctx context.Context, msg InboundMessage) {
	if msg.StreamID == "" {
		rt.replyError(errTextStreamRequired)
		return
	}
	if !rt.join(StreamChannel(msg.StreamID)) {
		return
	}
	if rt.hub.stats == nil {
		return
	}

	qctx, cancel := context.WithTimeout(ctx, rt.hub.opts.CollaboratorTimeout)
	defer cancel()
	stats, err := rt.hub.stats.StreamStats(qctx, msg.StreamID)
	if err != nil {
		rt.hub.logger.Warn("stream stats lookup failed", zap.String("stream_id", msg.StreamID), zap.Error(err))
		return
	}
	if stats == nil {
		return
	}
	data, err := encode(StatsMessage{Type: TypeStats, Stats: *stats})
	if err != nil {
		rt.hub.logger.Error("encode stats", zap.Error(err))
		return
	}
	rt.reply(data)
}

func (rt *Router) chat(ctx context.Context, msg InboundMessage) {
	if msg.StreamID == "" {
		rt.replyError(errTextStreamRequired)
		return
	}
	if msg.Text == "" {
		rt.replyError(errTextTextRequired)
		return
	}
	if rt.hub.chats == nil {
		rt.replyError(errTextChatFailed)
		return
	}

	var userID *string
	switch {
	case msg.UserID != "":
		userID = &msg.UserID
	case rt.userID != "":
		userID = &rt.userID
	}

	qctx, cancel := context.WithTimeout(ctx, rt.hub.opts.CollaboratorTimeout)
	defer cancel()
	saved, err := rt.hub.chats.PersistChatMessage(qctx, msg.StreamID, userID, msg.UserName, msg.Text)
	if err != nil {
		rt.hub.logger.Error("persist chat message failed",
			zap.String("conn_id", rt.conn.ID()),
			zap.String("stream_id", msg.StreamID),
			zap.Error(err),
		)
		rt.replyError(errTextChatFailed)
		return
	}

	data, err := encode(NewMessageEvent{Type: TypeNewMessage, Message: *saved})
	if err != nil {
		rt.hub.logger.Error("encode chat message", zap.Error(err))
		return
	}
	rt.hub.registry.Broadcast(StreamChannel(msg.StreamID), data)
}

func (rt *Router) reply(data []byte) {
	if err := rt.conn.Send(data); err != nil {
		rt.hub.logger.Debug("reply dropped", zap.String("conn_id", rt.conn.ID()), zap.Error(err))
	}
}

func (rt *Router) replyError(text string) {
	rt.reply(mustEncode(ErrorMessage{Type: TypeError, Message: text}))
}
