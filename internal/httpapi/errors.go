package httpapi

import (
	"net/http"

	"voip-platform/internal/apperr"
	"voip-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

var statusByKind = map[apperr.Kind]int{
	apperr.KindUnauthorized:           http.StatusUnauthorized,
	apperr.KindForbidden:              http.StatusForbidden,
	apperr.KindNotFound:               http.StatusNotFound,
	apperr.KindInvalidArgument:        http.StatusBadRequest,
	apperr.KindInvalidState:           http.StatusConflict,
	apperr.KindUnsupportedDestination: http.StatusUnprocessableEntity,
	apperr.KindCallerIDNotVerified:    http.StatusForbidden,
	apperr.KindInsufficientBalance:    http.StatusPaymentRequired,
	apperr.KindTopupFailed:            http.StatusPaymentRequired,
	apperr.KindAlreadyVerified:        http.StatusConflict,
	apperr.KindCodeExpired:            http.StatusGone,
	apperr.KindTooManyAttempts:        http.StatusTooManyRequests,
	apperr.KindInvalidCode:            http.StatusBadRequest,
	apperr.KindRateLimited:            http.StatusTooManyRequests,
	apperr.KindProvider:               http.StatusBadGateway,
}

// StatusFor maps an error kind to its HTTP status; unknown kinds are 500.
func StatusFor(err error) int {
	if st, ok := statusByKind[apperr.KindOf(err)]; ok {
		return st
	}
	return http.StatusInternalServerError
}

// writeError aborts with the mapped status. 5xx bodies never carry detail;
// the cause is logged instead.
func writeError(c *gin.Context, err error) {
	status := StatusFor(err)
	kind := apperr.KindOf(err)
	log := logger.FromGin(c)

	if status >= http.StatusInternalServerError {
		log.Error("request failed", "kind", string(kind), "err", err)
		msg := "internal error"
		if kind == apperr.KindProvider {
			msg = "upstream provider unavailable"
		}
		c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": string(kind)})
		return
	}

	log.Warn("request rejected", "kind", string(kind), "err", err)
	c.AbortWithStatusJSON(status, gin.H{"error": apperr.Message(err), "code": string(kind)})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "code": string(apperr.KindInvalidArgument)})
}
