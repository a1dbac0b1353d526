package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/demopark/accounts/internal/api/handler"
	"github.com/demopark/accounts/internal/core/domain"
)

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their HTTP status codes.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders the handler.ErrorResponse envelope.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		resp := resolveError(err, log, c)
		resp.Timestamp = time.Now().UTC()
		resp.Error = http.StatusText(resp.Status)
		resp.Path = c.Request().URL.Path
		resp.Method = c.Request().Method

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(resp.Status)
			return
		}
		_ = c.JSON(resp.Status, resp)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) handler.ErrorResponse {
	var ve *handler.ValidationError
	if errors.As(err, &ve) {
		return handler.ErrorResponse{
			Status:  http.StatusUnprocessableEntity,
			Message: "validation failed",
			Errors:  ve.Fields,
		}
	}

	// Echo's own errors (bind failures, 404/405 from the router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return handler.ErrorResponse{Status: he.Code, Message: fmt.Sprintf("%v", he.Message)}
	}

	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("method", c.Request().Method).
			Str("path", c.Path()).
			Msg("unhandled error")
	}
	return handler.ErrorResponse{Status: status, Message: msg}
}

// statusFor maps domain errors to deterministic HTTP codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidationFailed), errors.Is(err, domain.ErrInvalidRole):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, domain.ErrUsernameConflict):
		return http.StatusConflict, "username already exists"
	case errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound, "account not found"
	case domain.IsPasswordRuleViolation(err):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrAuthenticationFailed):
		return http.StatusBadRequest, "invalid credentials"
	case errors.Is(err, domain.ErrTokenExpired),
		errors.Is(err, domain.ErrTokenInvalidSignature),
		errors.Is(err, domain.ErrTokenMalformed):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "access forbidden"
	}
	return http.StatusInternalServerError, "internal server error"
}
