package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidRole      = errors.New("invalid role")

	ErrUsernameConflict = errors.New("username already exists")
	ErrAccountNotFound  = errors.New("account not found")

	ErrWrongPassword     = errors.New("current password does not match")
	ErrPasswordUnchanged = errors.New("new password must differ from the current password")
	ErrPasswordMismatch  = errors.New("new password and confirmation do not match")

	// ErrAuthenticationFailed is returned for both unknown usernames and wrong passwords.
	ErrAuthenticationFailed = errors.New("invalid credentials")

	ErrTokenExpired          = errors.New("token expired")
	ErrTokenInvalidSignature = errors.New("token signature is invalid")
	ErrTokenMalformed        = errors.New("token is malformed")

	ErrForbidden = errors.New("access forbidden")
)

// UniqueViolationError is returned by stores when a write collides with a
// unique constraint. Field names the logical column, e.g. "username".
type UniqueViolationError struct {
	Field string
	Err   error
}

func (e *UniqueViolationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("unique constraint violated on %s", e.Field)
	}
	return fmt.Sprintf("unique constraint violated on %s: %v", e.Field, e.Err)
}

func (e *UniqueViolationError) Unwrap() error { return e.Err }

// IsPasswordRuleViolation reports whether err is one of the password change rule errors.
func IsPasswordRuleViolation(err error) bool {
	return errors.Is(err, ErrWrongPassword) ||
		errors.Is(err, ErrPasswordUnchanged) ||
		errors.Is(err, ErrPasswordMismatch)
}
