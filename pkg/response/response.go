package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body is the JSON envelope for the hub's HTTP endpoints.
type Body struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Unauthorized aborts with 401, e.g. before a WebSocket upgrade with a bad token.
func Unauthorized(c *gin.Context, err string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Body{Success: false, Error: err})
}

// ServiceUnavailable aborts with 503 when a dependency is down.
func ServiceUnavailable(c *gin.Context, err string) {
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, Body{Success: false, Error: err})
}

// BadRequest aborts with 400.
func BadRequest(c *gin.Context, err string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Body{Success: false, Error: err})
}

// Forbidden aborts with 403.
func Forbidden(c *gin.Context, err string) {
	c.AbortWithStatusJSON(http.StatusForbidden, Body{Success: false, Error: err})
}

// Accepted sends a 202 JSON response with data.
func Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, Body{Success: true, Data: data})
}
