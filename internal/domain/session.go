package domain

import "time"

// Session binds a refresh token to a user. The refresh-token value is the
// lookup key; a user may hold several concurrent sessions, one per login.
type Session struct {
	ID           int64
	UserID       string
	RefreshToken string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	Revoked      bool
}

// Credential pairs a directory user with its password hash. Kept separate
// from User so profile reads never carry hash material.
type Credential struct {
	Email        string
	PasswordHash string
}
