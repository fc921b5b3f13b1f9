package repository

import (
	"context"
	"strings"
	"sync"

	"github.com/ittiee/liff-auth/internal/domain"
)

// MemoryDirectory is the in-process user directory. Records are seeded once
// at startup and read-only afterwards.
type MemoryDirectory struct {
	mu    sync.RWMutex
	byID  map[string]domain.User
	creds map[string]domain.Credential
}

var (
	_ UserRepository       = (*MemoryDirectory)(nil)
	_ CredentialRepository = (*MemoryDirectory)(nil)
	_ Seeder               = (*MemoryDirectory)(nil)
)

// NewMemoryDirectory creates an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		byID:  make(map[string]domain.User),
		creds: make(map[string]domain.Credential),
	}
}

// Seed registers a user and its password hash.
func (d *MemoryDirectory) Seed(user domain.User, passwordHash string) {
	email := normalize(user.Email)
	d.mu.Lock()
	d.byID[user.ID] = user
	d.creds[email] = domain.Credential{Email: email, PasswordHash: passwordHash}
	d.mu.Unlock()
}

// GetByEmail finds a user by normalized email.
func (d *MemoryDirectory) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	email = normalize(email)
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, user := range d.byID {
		if normalize(user.Email) == email {
			return user, nil
		}
	}
	return domain.User{}, ErrNotFound
}

// GetByID finds a user by id.
func (d *MemoryDirectory) GetByID(ctx context.Context, id string) (domain.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	user, ok := d.byID[id]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return user, nil
}

// HashByEmail resolves the stored password hash for the email.
func (d *MemoryDirectory) HashByEmail(ctx context.Context, email string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cred, ok := d.creds[normalize(email)]
	if !ok {
		return "", ErrNotFound
	}
	return cred.PasswordHash, nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
