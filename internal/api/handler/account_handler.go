package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/demopark/accounts/internal/core/domain"
	"github.com/demopark/accounts/internal/core/ports"
)

// AccountHandler handles HTTP requests for account operations.
type AccountHandler struct {
	service ports.AccountService
}

func NewAccountHandler(service ports.AccountService) *AccountHandler {
	return &AccountHandler{service: service}
}

// Create handles POST /api/v1/users.
//
// @Summary      Register a new account
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        body  body      createAccountRequest  true  "Account credentials"
// @Success      201   {object}  accountResponse
// @Failure      409   {object}  ErrorResponse
// @Failure      422   {object}  ErrorResponse
// @Router       /api/v1/users [post]
func (h *AccountHandler) Create(c echo.Context) error {
	var req createAccountRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	account, err := h.service.Register(c.Request().Context(), ports.RegisterInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, toAccountResponse(account))
}

// Get handles GET /api/v1/users/:id. Admins may read any account, clients only their own.
//
// @Summary      Get an account by id
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Account id"
// @Success      200  {object}  accountResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /api/v1/users/{id} [get]
func (h *AccountHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.authorizeOwner(c, id, true); err != nil {
		return err
	}

	account, err := h.service.GetByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toAccountResponse(account))
}

// List handles GET /api/v1/users.
//
// @Summary      List all accounts
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   accountResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Router       /api/v1/users [get]
func (h *AccountHandler) List(c echo.Context) error {
	accounts, err := h.service.ListAll(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toAccountResponses(accounts))
}

// ChangePassword handles PATCH /api/v1/users/:id. Only the owner may change a password.
//
// @Summary      Change the account password
// @Tags         users
// @Accept       json
// @Security     BearerAuth
// @Param        id    path  int                    true  "Account id"
// @Param        body  body  changePasswordRequest  true  "Current and new password"
// @Success      204
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /api/v1/users/{id} [patch]
func (h *AccountHandler) ChangePassword(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.authorizeOwner(c, id, false); err != nil {
		return err
	}

	var req changePasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	_, err = h.service.ChangePassword(c.Request().Context(), ports.ChangePasswordInput{
		ID:              id,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ChangeRole handles PUT /api/v1/users/:id/role.
//
// @Summary      Change the account role
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      int                true  "Account id"
// @Param        body  body      changeRoleRequest  true  "New role"
// @Success      200   {object}  accountResponse
// @Failure      401   {object}  ErrorResponse
// @Failure      403   {object}  ErrorResponse
// @Failure      404   {object}  ErrorResponse
// @Failure      422   {object}  ErrorResponse
// @Router       /api/v1/users/{id}/role [put]
func (h *AccountHandler) ChangeRole(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var req changeRoleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return &ValidationError{Fields: map[string]string{"role": err.Error()}}
	}

	account, err := h.service.ChangeRole(c.Request().Context(), id, role)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toAccountResponse(account))
}

// authorizeOwner allows the request when the caller owns account id, or is
// an admin and allowAdmin is set. A caller that is not allowed gets
// ErrAccountNotFound for an absent id and ErrForbidden otherwise.
func (h *AccountHandler) authorizeOwner(c echo.Context, id int64, allowAdmin bool) error {
	username, role, err := ctxPrincipal(c)
	if err != nil {
		return err
	}
	if allowAdmin && role == domain.RoleAdmin {
		return nil
	}

	ctx := c.Request().Context()
	caller, err := h.service.GetByUsername(ctx, username)
	switch {
	case err == nil && caller.ID == id:
		return nil
	case err != nil && !errors.Is(err, domain.ErrAccountNotFound):
		return err
	}

	if _, err := h.service.GetByID(ctx, id); err != nil {
		return err
	}
	return domain.ErrForbidden
}
