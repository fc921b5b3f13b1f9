package service

import "fmt"

// Wire-level failure codes. These travel verbatim in the "error" field of
// HTTP error bodies and are the contract the client maps onto its own
// taxonomy.
const (
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeTooManyRequests    = "TOO_MANY_REQUESTS"
	CodeNoRefreshToken     = "NO_REFRESH_TOKEN"
	CodeSessionNotFound    = "SESSION_NOT_FOUND"
	CodeSessionRevoked     = "SESSION_REVOKED"
	CodeSessionExpired     = "SESSION_EXPIRED"
	CodeNoAccessToken      = "NO_ACCESS_TOKEN"
	CodeAccessTokenExpired = "ACCESS_TOKEN_EXPIRED"
	CodeInvalidAccessToken = "INVALID_ACCESS_TOKEN"
)

// AuthError is a coded authentication failure with its HTTP status.
type AuthError struct {
	Code    string
	Message string
	Status  int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newAuthError(code, message string, status int) *AuthError {
	return &AuthError{Code: code, Message: message, Status: status}
}
