package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"adboard-backend/internal/common/errors"
)

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Success   bool             `json:"success"`
	Error     *errors.AppError `json:"error"`
	Timestamp time.Time        `json:"timestamp"`
	RequestID string           `json:"request_id"`
}

// Recovery converts panics into a logged internal error response.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		requestID := getRequestID(c)

		log.Error().
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Interface("panic", recovered).
			Str("stack", string(debug.Stack())).
			Msg("panic recovered")

		appErr := errors.New(errors.ErrCodeInternal, "internal server error").
			WithRequestID(requestID)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:     appErr,
			Timestamp: time.Now(),
			RequestID: requestID,
		})
	})
}

// ErrorHandler turns errors attached to the gin context into JSON responses.
// Handlers call c.Error(err) and return; status mapping lives here.
func ErrorHandler(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		appErr, ok := errors.AsAppError(err)
		if !ok {
			appErr = errors.Wrap(err, errors.ErrCodeInternal, "unexpected error")
		}
		requestID := getRequestID(c)
		appErr.WithRequestID(requestID)

		status := httpStatus(appErr)
		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error().Err(appErr.Cause)
		}
		event.
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("code", string(appErr.Code)).
			Str("message", appErr.Message).
			Msg("request failed")

		c.JSON(status, ErrorResponse{
			Error:     appErr,
			Timestamp: time.Now(),
			RequestID: requestID,
		})
	}
}

func httpStatus(appErr *errors.AppError) int {
	switch appErr.Code {
	case errors.ErrCodeValidation, errors.ErrCodeAmountOutOfRange:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrCodeForbidden, errors.ErrCodeNotOwner, errors.ErrCodeNotAdvertiser:
		return http.StatusForbidden
	case errors.ErrCodeConflict, errors.ErrCodeInvalidTransition,
		errors.ErrCodeRevisionLimitExceeded, errors.ErrCodeAlreadyTerminal:
		return http.StatusConflict
	case errors.ErrCodeEscrowRejected:
		return http.StatusPaymentRequired
	case errors.ErrCodeEscrowTransient, errors.ErrCodeTelegramTransient:
		return http.StatusBadGateway
	case errors.ErrCodeCacheError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Abort attaches err to the context and stops the handler chain.
func Abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
