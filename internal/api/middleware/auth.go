package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/demopark/accounts/internal/infrastructure/metrics"
	"github.com/demopark/accounts/internal/core/domain"
	"github.com/demopark/accounts/internal/core/ports"
)

// Context keys set by Auth.
const (
	UsernameKey = "username"
	RoleKey     = "role"
)

// Auth verifies the bearer token, stores the subject and role on the echo
// context and marks the subject as the acting user on the request context.
func Auth(verifier ports.TokenVerifier, now func() time.Time) echo.MiddlewareFunc {
	if now == nil {
		now = time.Now
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}

			claims, err := verifier.Verify(parts[1], now())
			if err != nil {
				metrics.TokenVerificationsTotal.WithLabelValues(verificationResult(err)).Inc()
				return err
			}
			metrics.TokenVerificationsTotal.WithLabelValues("valid").Inc()

			c.Set(UsernameKey, claims.Subject)
			c.Set(RoleKey, claims.Role)

			req := c.Request()
			c.SetRequest(req.WithContext(domain.WithActor(req.Context(), claims.Subject)))

			return next(c)
		}
	}
}

func verificationResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrTokenExpired):
		return "expired"
	case errors.Is(err, domain.ErrTokenInvalidSignature):
		return "invalid_signature"
	default:
		return "malformed"
	}
}
