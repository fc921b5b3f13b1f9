package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/ittiee/liff-auth/internal/domain"
)

// Validation failures surfaced by the store. The service layer maps these to
// wire error codes.
var (
	ErrNotFound = errors.New("session not found")
	ErrRevoked  = errors.New("session revoked")
	ErrExpired  = errors.New("session expired")
)

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Store is the source of truth for refresh-token sessions. The map keyed by
// refresh-token value is the sole persistence structure; state lives only in
// process memory for the lifetime of the serving process.
type Store struct {
	node     *snowflake.Node
	ttl      time.Duration
	tokenLen int
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]domain.Session
}

// NewStore creates an empty store issuing refresh tokens of tokenLen
// characters, each backing a session valid for ttl.
func NewStore(node *snowflake.Node, ttl time.Duration, tokenLen int) *Store {
	if tokenLen <= 0 {
		tokenLen = 64
	}
	return &Store{
		node:     node,
		ttl:      ttl,
		tokenLen: tokenLen,
		now:      time.Now,
		sessions: make(map[string]domain.Session),
	}
}

// Create opens a session for the user and returns the refresh token. The
// caller is responsible for transporting the token to the client.
func (s *Store) Create(userID string) (string, error) {
	token, err := s.generateToken()
	if err != nil {
		return "", err
	}

	now := s.now()
	s.mu.Lock()
	s.sessions[token] = domain.Session{
		ID:           s.node.Generate().Int64(),
		UserID:       userID,
		RefreshToken: token,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}
	s.mu.Unlock()
	return token, nil
}

// Validate looks up the session behind the token. Expired entries are
// evicted on the spot; there is no background sweep.
func (s *Store) Validate(refreshToken string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[refreshToken]
	if !ok {
		return domain.Session{}, ErrNotFound
	}
	if sess.Revoked {
		return domain.Session{}, ErrRevoked
	}
	if s.now().After(sess.ExpiresAt) {
		delete(s.sessions, refreshToken)
		return domain.Session{}, ErrExpired
	}
	return sess, nil
}

// Rotate atomically replaces the old session with a fresh one for the same
// user. The old token becomes unknown to the store, so a replay fails with
// ErrNotFound. Call only after Validate succeeded on oldToken.
func (s *Store) Rotate(oldToken, userID string) (string, error) {
	token, err := s.generateToken()
	if err != nil {
		return "", err
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[oldToken]; !ok {
		return "", ErrNotFound
	}
	delete(s.sessions, oldToken)
	s.sessions[token] = domain.Session{
		ID:           s.node.Generate().Int64(),
		UserID:       userID,
		RefreshToken: token,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}
	return token, nil
}

// Revoke marks the session revoked and removes it. Reports whether a
// session existed for the token.
func (s *Store) Revoke(refreshToken string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[refreshToken]
	if !ok {
		return false
	}
	sess.Revoked = true
	delete(s.sessions, refreshToken)
	return true
}

// Active lists live sessions, skipping entries past their expiry.
func (s *Store) Active() []domain.Session {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if !sess.Revoked && now.Before(sess.ExpiresAt) {
			out = append(out, sess)
		}
	}
	return out
}

// RevokeAll drops every session.
func (s *Store) RevokeAll() {
	s.mu.Lock()
	s.sessions = make(map[string]domain.Session)
	s.mu.Unlock()
}

func (s *Store) generateToken() (string, error) {
	buf := make([]byte, s.tokenLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	for i, b := range buf {
		buf[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}
	return string(buf), nil
}
