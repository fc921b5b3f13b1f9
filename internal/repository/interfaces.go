package repository

import (
	"context"
	"errors"

	"github.com/ittiee/liff-auth/internal/domain"
)

// ErrNotFound is returned when a lookup misses.
var ErrNotFound = errors.New("not found")

// UserRepository exposes the read-only user directory.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, id string) (domain.User, error)
}

// CredentialRepository resolves password hashes for login. Held apart from
// UserRepository so profile reads never see hash material.
type CredentialRepository interface {
	HashByEmail(ctx context.Context, email string) (string, error)
}

// Seeder accepts directory records at bootstrap time.
type Seeder interface {
	Seed(user domain.User, passwordHash string)
}
