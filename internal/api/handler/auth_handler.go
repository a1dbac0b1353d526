package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/demopark/accounts/internal/core/ports"
)

type AuthHandler struct {
	authService ports.AuthService
	now         func() time.Time
}

func NewAuthHandler(authService ports.AuthService, now func() time.Time) *AuthHandler {
	if now == nil {
		now = time.Now
	}
	return &AuthHandler{authService: authService, now: now}
}

// Login authenticates an account and returns a bearer token.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  tokenResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      422   {object}  ErrorResponse
// @Router       /api/v1/auth [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	token, err := h.authService.Authenticate(c.Request().Context(), req.Username, req.Password, h.now())
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, tokenResponse{
		Token:     token.Value,
		Type:      "Bearer",
		ExpiresIn: int64(token.TTL().Seconds()),
	})
}
