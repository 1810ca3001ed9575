package tokens

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/streamhub/internal/middleware"
	"github.com/aura-webinar/streamhub/pkg/response"
)

// Revoker blacklists every token issued to a user so far.
type Revoker interface {
	Add(ctx context.Context, userID uuid.UUID) error
}

// Handler serves token revocation.
type Handler struct {
	revoker Revoker
	logger  *zap.Logger
}

// NewHandler creates a token handler.
func NewHandler(revoker Revoker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{revoker: revoker, logger: logger}
}

// Logout handles POST /auth/logout. Runs behind middleware.JWT; revokes the caller's tokens,
// so new WebSocket upgrades with them are refused.
func (h *Handler) Logout(c *gin.Context) {
	userID, err := uuid.Parse(c.GetString(middleware.ContextUserID))
	if err != nil {
		response.Unauthorized(c, "missing user context")
		return
	}
	if err := h.revoker.Add(c.Request.Context(), userID); err != nil {
		h.logger.Error("revoke tokens", zap.String("user_id", userID.String()), zap.Error(err))
		response.ServiceUnavailable(c, "logout failed")
		return
	}
	h.logger.Info("tokens revoked", zap.String("user_id", userID.String()))
	response.OK(c, gin.H{"revoked": true})
}
