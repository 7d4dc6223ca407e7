package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"storefront-backend/internal/correlation"
)

// correlationID reuses the caller's X-Correlation-Id or mints one, echoes it
// on the response and stores it in the request context.
func correlationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader(correlation.Header)
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header(correlation.Header, cid)
		c.Request = c.Request.WithContext(correlation.With(c.Request.Context(), cid))
		c.Next()
	}
}

func requestTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
