package realtime

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aura-webinar/streamhub/pkg/response"
)

// TokenValidator resolves an access token to a user id.
type TokenValidator func(ctx context.Context, token string) (userID string, err error)

// ServeWs upgrades GET /ws and runs the connection until it closes.
// The optional token query parameter binds the connection to an authenticated user.
func ServeWs(hub *Hub, allowOrigin func(origin string) bool, validate TokenValidator, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowOrigin == nil {
				return true
			}
			return allowOrigin(origin)
		},
	}

	return func(c *gin.Context) {
		var userID string
		if token := c.Query("token"); token != "" && validate != nil {
			id, err := validate(c.Request.Context(), token)
			if err != nil {
				logger.Debug("websocket token rejected", zap.Error(err))
				response.Unauthorized(c, "invalid token")
				return
			}
			userID = id
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := NewClient(conn, userID, hub.opts.SendBuffer, logger)
		logger.Debug("websocket connected", zap.String("conn_id", client.ID()), zap.String("user_id", userID))
		hub.Serve(c.Request.Context(), client)
	}
}

// StatsHandler reports registry counts, e.g. for dashboards.
func StatsHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		response.OK(c, hub.Registry().Stats())
	}
}

// StreamConnectionsHandler reports how many connections are subscribed to a stream.
func StreamConnectionsHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		streamID := c.Param("id")
		response.OK(c, gin.H{
			"stream_id": streamID,
			"count":     hub.Registry().Count(StreamChannel(streamID)),
			"capacity":  hub.Registry().MaxPerStream(),
		})
	}
}

type notifyRequest struct {
	Target  NotifyTarget    `json:"target" binding:"required"`
	UserID  string          `json:"user_id"`
	Payload json.RawMessage `json:"payload" binding:"required"`
}

// NotifyHandler lets backend services push a notification through publisher (POST body: target, user_id, payload).
func NotifyHandler(publisher Publisher, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		var req notifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid notification request")
			return
		}
		if !json.Valid(req.Payload) {
			response.BadRequest(c, "payload must be JSON")
			return
		}

		ctx := c.Request.Context()
		var err error
		switch req.Target {
		case TargetUser:
			if req.UserID == "" {
				response.BadRequest(c, "user_id is required for target user")
				return
			}
			err = publisher.NotifyUser(ctx, req.UserID, req.Payload)
		case TargetStreamStatus:
			err = publisher.NotifyAllStreamStatusSubscribers(ctx, req.Payload)
		case TargetAllUsers:
			err = publisher.NotifyAllNotificationSubscribers(ctx, req.Payload)
		default:
			response.BadRequest(c, "unknown target")
			return
		}
		if err != nil {
			logger.Error("publish notification", zap.String("target", string(req.Target)), zap.Error(err))
			response.ServiceUnavailable(c, "notification not delivered")
			return
		}
		response.Accepted(c, gin.H{"target": req.Target})
	}
}
