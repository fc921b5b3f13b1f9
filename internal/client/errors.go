package client

import (
	"errors"
	"fmt"

	"github.com/ittiee/liff-auth/internal/service"
)

// APIError is a wire-level failure as seen by the client: the HTTP status
// plus the coded body the server sent.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// isUnauthorized reports whether the error is an authorization failure that
// should trigger the refresh path.
func isUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == 401
}

// apiErrorFrom converts a service failure to the shape the wire produces,
// so the in-process backend is indistinguishable from the HTTP one.
func apiErrorFrom(err error) error {
	if err == nil {
		return nil
	}
	var authErr *service.AuthError
	if errors.As(err, &authErr) {
		return &APIError{Status: authErr.Status, Code: authErr.Code, Message: authErr.Message}
	}
	return err
}

// ErrorType classifies failures for UI collaborators.
type ErrorType string

const (
	ErrorTypeInit    ErrorType = "INIT_ERROR"
	ErrorTypeLogin   ErrorType = "LOGIN_ERROR"
	ErrorTypeProfile ErrorType = "PROFILE_ERROR"
	ErrorTypeNetwork ErrorType = "NETWORK_ERROR"
	ErrorTypeToken   ErrorType = "TOKEN_ERROR"
	ErrorTypeRefresh ErrorType = "REFRESH_ERROR"
)

// AuthError is the unified error surfaced to UI collaborators.
type AuthError struct {
	Type      ErrorType
	Message   string
	Code      string
	Retryable bool
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// newAuthError builds an AuthError. A bad login is a terminal user mistake;
// everything else may be retried.
func newAuthError(errType ErrorType, message, code string) *AuthError {
	return &AuthError{
		Type:      errType,
		Message:   message,
		Code:      code,
		Retryable: errType != ErrorTypeLogin,
	}
}
