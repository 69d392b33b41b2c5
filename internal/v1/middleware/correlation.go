// Package middleware holds the Gin middleware shared by every HTTP route
// of the task board API.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/taskboard/core/internal/v1/logging"
)

// HeaderXCorrelationID is the request/response header carrying the
// correlation id, reused from any upstream proxy that already set one.
const HeaderXCorrelationID = "X-Correlation-ID"

// CorrelationID assigns every request a correlation id (reusing one
// supplied by the caller), echoes it back on the response, and stashes
// it in the Gin context under logging.CorrelationIDKey so every log line
// emitted while handling the request can be tied back to it.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderXCorrelationID)
		if id == "" {
			id = uuid.New().String()
		}

		c.Header(HeaderXCorrelationID, id)
		c.Set(string(logging.CorrelationIDKey), id)
		c.Next()
	}
}
