package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront-backend/internal/apperr"
	"storefront-backend/internal/correlation"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func statusFor(kind apperr.Kind) (int, string) {
	switch kind {
	case apperr.Invalid:
		return http.StatusBadRequest, "WRONG_PARAMS"
	case apperr.BadRequest:
		return http.StatusBadRequest, "BAD_REQUEST"
	case apperr.Unauthenticated:
		return http.StatusUnauthorized, "NOT_AUTHENTICATED"
	case apperr.Forbidden:
		return http.StatusForbidden, "NOT_AUTHORIZED"
	case apperr.NotFound:
		return http.StatusNotFound, "NOT_FOUND"
	case apperr.Conflict:
		return http.StatusConflict, "CONFLICT"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

// writeError renders err as {error, message}. Internal errors are logged
// and reach the client only as a generic message.
func (h *handler) writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status, code := statusFor(kind)
	if kind == apperr.Internal {
		h.logger.Printf("[%s] %s %s: %v",
			correlation.FromContext(c.Request.Context()), c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(status, errorBody{Error: code, Message: apperr.Message(err)})
}

func (h *handler) badBody(c *gin.Context, err error) {
	h.writeError(c, apperr.Wrap(apperr.Invalid, "Invalid request body.", err))
}

func (h *handler) recovered(c *gin.Context, rec any) {
	h.logger.Printf("[%s] panic: %v", correlation.FromContext(c.Request.Context()), rec)
	status, code := statusFor(apperr.Internal)
	c.AbortWithStatusJSON(status, errorBody{Error: code, Message: apperr.Message(nil)})
}
