package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"factory/internal/apperrors"
)

// statusFor maps an application error code to the HTTP status handlers
// should respond with.
func statusFor(code apperrors.Code) int {
	switch code {
	case apperrors.CodeValidation:
		return http.StatusBadRequest
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.CodeForbidden:
		return http.StatusForbidden
	case apperrors.CodeConflict, apperrors.CodeLastAdmin:
		return http.StatusConflict
	case apperrors.CodeInsufficient:
		return http.StatusPaymentRequired
	case apperrors.CodeLedgerFailure, apperrors.CodeContainerFailure:
		return http.StatusBadGateway
	case apperrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes the standard {"error": {"code", "message"}} envelope
// for err, choosing the HTTP status from its apperrors.Code.
func RespondError(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)
	c.JSON(statusFor(code), gin.H{"error": gin.H{
		"code":    string(code),
		"message": err.Error(),
	}})
}
