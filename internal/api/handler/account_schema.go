package handler

import (
	"time"

	"github.com/demopark/accounts/internal/core/domain"
)

// ErrorResponse is the error envelope returned on all 4xx/5xx responses.
type ErrorResponse struct {
	Timestamp time.Time         `json:"timestamp"`
	Status    int               `json:"status"`
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	Path      string            `json:"path"`
	Method    string            `json:"method"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// --- Request / Response types ---

type loginRequest struct {
	Username string `json:"username" validate:"required,max=100,username"`
	Password string `json:"password" validate:"required,min=6"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	Type      string `json:"type"`
	ExpiresIn int64  `json:"expiresIn"`
}

type createAccountRequest struct {
	Username string `json:"username" validate:"required,max=100,username"`
	Password string `json:"password" validate:"required,min=6"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required,min=6"`
	NewPassword     string `json:"newPassword"     validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,min=6"`
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=ADMIN CLIENT"`
}

type accountResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func toAccountResponse(a *domain.Account) accountResponse {
	return accountResponse{
		ID:       a.ID,
		Username: a.Username,
		Role:     a.Role.String(),
	}
}

func toAccountResponses(accounts []*domain.Account) []accountResponse {
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	return out
}
