package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ensembleai/agentgate/internal/auth"
)

// statusFor maps a failure classification to an HTTP status. This is the
// single place the mapping lives; new auth methods never touch it.
func statusFor(kind auth.ErrorKind) int {
	switch kind {
	case auth.ErrorKindInvalidToken, auth.ErrorKindExpired:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// messageFor returns the caller-safe message for a failure classification.
// Detail stays in server-side logs.
func messageFor(kind auth.ErrorKind) string {
	switch kind {
	case auth.ErrorKindInvalidToken:
		return "authentication failed"
	case auth.ErrorKindExpired:
		return "credentials expired"
	default:
		return "internal server error"
	}
}

func writeError(c *gin.Context, status int, kind, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":   kind,
		"message": message,
	})
}
