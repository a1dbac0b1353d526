package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/demopark/accounts/internal/api/middleware"
	"github.com/demopark/accounts/internal/core/domain"
)

// ctxPrincipal extracts the identity injected by the Auth middleware. An
// empty subject or unknown role means the middleware did not run.
func ctxPrincipal(c echo.Context) (username string, role domain.Role, err error) {
	username, _ = c.Get(middleware.UsernameKey).(string)
	role, _ = c.Get(middleware.RoleKey).(domain.Role)
	if username == "" || !role.Valid() {
		return "", "", echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return username, role, nil
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "id must be a positive integer")
	}
	return id, nil
}

func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	return c.Validate(req)
}
