package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainagg "github.com/yungbote/lotline-backend/internal/domain/aggregates"
)

var codeStatus = map[domainagg.ErrorCode]int{
	domainagg.CodeValidation:         http.StatusBadRequest,
	domainagg.CodeNotFound:           http.StatusNotFound,
	domainagg.CodeConflict:           http.StatusConflict,
	domainagg.CodeInvariantViolation: http.StatusUnprocessableEntity,
	domainagg.CodePreconditionFailed: http.StatusUnprocessableEntity,
	domainagg.CodeRetryable:          http.StatusServiceUnavailable,
	domainagg.CodeInternal:           http.StatusInternalServerError,
}

// StatusFor maps an aggregate error code to its HTTP status.
func StatusFor(code domainagg.ErrorCode) int {
	if s, ok := codeStatus[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// RespondError renders err as the error envelope. Errors that are not
// aggregate errors are reported as internal without leaking their text.
func RespondError(c *gin.Context, err error) {
	var aggErr *domainagg.Error
	if !errors.As(err, &aggErr) {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorEnvelope{Error: APIError{
			Code:    string(domainagg.CodeInternal),
			Kind:    string(domainagg.KindInternal),
			Message: "internal error",
		}})
		return
	}
	status := StatusFor(aggErr.Code)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	if aggErr.Code == domainagg.CodeRetryable {
		c.Header("Retry-After", "1")
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{
		Code:    string(aggErr.Code),
		Kind:    string(aggErr.Kind),
		Message: aggErr.Message,
		Op:      aggErr.Op,
	}})
}

// RespondInvalid reports a malformed request (bad JSON, path params).
func RespondInvalid(c *gin.Context, op string, err error) {
	msg := "invalid request"
	if err != nil {
		msg = err.Error()
	}
	RespondError(c, domainagg.NewKindError(domainagg.KindValidation, op, msg, err))
}
