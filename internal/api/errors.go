package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/dogs-go/internal/catalog"
	"github.com/tphakala/dogs-go/internal/errors"
	"github.com/tphakala/dogs-go/internal/logger"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"` // matches the server log entry
}

// NewErrorResponse creates an error body with a fresh correlation id.
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString()[:8],
	}
}

// HandleError logs err and writes it as an ErrorResponse.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("method", ctx.Request().Method),
		logger.String("ip", ctx.RealIP()),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}

	log := c.log.WithContext(ctx.Request().Context())
	if code >= http.StatusInternalServerError {
		log.Error("API error", fields...)
	} else {
		log.Warn("API error", fields...)
	}
	return ctx.JSON(code, resp)
}

// statusFor maps catalog failures to HTTP status codes.
func statusFor(err error) int {
	var ce *catalog.Error
	if !errors.As(err, &ce) {
		return http.StatusInternalServerError
	}
	switch ce.Kind {
	case catalog.KindInvalidInput:
		if ce.Code == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	case catalog.KindNetwork:
		return http.StatusServiceUnavailable
	case catalog.KindAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// messageFor is the client-facing message for a catalog failure.
func messageFor(err error) string {
	var ce *catalog.Error
	if errors.As(err, &ce) && ce.Message != "" {
		return ce.Message
	}
	return "internal error"
}
