package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	SessionCookie = "session"
	userIDKey     = "userId"
)

// RequireSession accepts a Bearer token or the session cookie and stores
// the authenticated user id in the gin context.
func RequireSession(tokens *Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c.GetHeader("Authorization"))
		if tokenStr == "" {
			tokenStr, _ = c.Cookie(SessionCookie)
		}
		if tokenStr == "" {
			abort(c, http.StatusUnauthorized, "NOT_AUTHENTICATED", "Authentication required.")
			return
		}

		userID, err := tokens.Parse(tokenStr)
		if err != nil {
			abort(c, http.StatusUnauthorized, "NOT_AUTHENTICATED", "Invalid or expired session.")
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// RequireOwner rejects requests whose session user differs from the
// :userId path parameter. It must run after RequireSession.
func RequireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := SessionUser(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "NOT_AUTHENTICATED", "Authentication required.")
			return
		}
		if !strings.EqualFold(userID.Hex(), c.Param("userId")) {
			abort(c, http.StatusForbidden, "NOT_AUTHORIZED", "Not authorized to access this resource.")
			return
		}
		c.Next()
	}
}

func SessionUser(c *gin.Context) (primitive.ObjectID, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return primitive.NilObjectID, false
	}
	id, ok := v.(primitive.ObjectID)
	return id, ok
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code, "message": msg})
}
