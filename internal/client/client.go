package client

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ittiee/liff-auth/internal/domain"
)

// Client caches the current access token, attaches it to outbound calls,
// and coordinates a single in-flight refresh across concurrent callers.
//
// The refresh state machine has two states. Idle: refresh is nil. Refreshing:
// refresh points at the one outstanding attempt; every caller that observes
// a 401 while refreshing waits on that attempt's done channel instead of
// starting its own. The transition back to idle happens unconditionally when
// the attempt settles, before its result is published to waiters.
type Client struct {
	backend Backend
	storage TokenStorage
	logger  *zap.Logger

	mu          sync.Mutex
	accessToken string
	refresh     *refreshAttempt
}

type refreshAttempt struct {
	done  chan struct{}
	token string
	err   error
}

// New creates a client over the backend. The storage seeds the cached token
// so a restarted process resumes its session.
func New(backend Backend, storage TokenStorage, logger *zap.Logger) *Client {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{backend: backend, storage: storage, logger: logger}
	if token, err := storage.Load(); err != nil {
		logger.Warn("load cached access token", zap.Error(err))
	} else {
		c.accessToken = token
	}
	return c
}

// AccessToken returns the cached access token, empty when logged out.
func (c *Client) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// SetAccessToken replaces the cached token and mirrors it into storage.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
	if err := c.storage.Save(token); err != nil {
		c.logger.Warn("persist access token", zap.Error(err))
	}
}

// ClearAccessToken drops the cached token and its persisted copy.
func (c *Client) ClearAccessToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
	if err := c.storage.Clear(); err != nil {
		c.logger.Warn("clear access token", zap.Error(err))
	}
}

// Login authenticates and caches the issued access token.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	resp, err := c.backend.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	c.SetAccessToken(resp.AccessToken)
	return resp, nil
}

// Logout revokes the session remotely and always clears local state, even
// when the remote call fails: the process must end logged out.
func (c *Client) Logout(ctx context.Context) error {
	err := c.backend.Logout(ctx)
	c.ClearAccessToken()
	return err
}

// Me fetches the current user's profile through the retrying request path.
func (c *Client) Me(ctx context.Context) (domain.User, error) {
	var user domain.User
	err := c.do(ctx, func(ctx context.Context, token string) error {
		u, err := c.backend.Me(ctx, token)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// do runs fn with the current access token. On an authorization failure it
// joins or starts the single in-flight refresh, then replays fn exactly
// once with the new token. A second authorization failure propagates.
func (c *Client) do(ctx context.Context, fn func(ctx context.Context, token string) error) error {
	err := fn(ctx, c.AccessToken())
	if !isUnauthorized(err) {
		return err
	}

	token, refreshErr := c.refreshAccessToken(ctx)
	if refreshErr != nil {
		// The refresh failure, not the original 401, reaches the caller.
		return refreshErr
	}
	return fn(ctx, token)
}

// refreshAccessToken resolves to the outcome of the one in-flight refresh,
// starting it if the client is idle. On success the new token is cached; on
// failure the cached token is cleared entirely (fail-closed) and every
// waiter receives the same error.
func (c *Client) refreshAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if attempt := c.refresh; attempt != nil {
		c.mu.Unlock()
		select {
		case <-attempt.done:
			return attempt.token, attempt.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	attempt := &refreshAttempt{done: make(chan struct{})}
	c.refresh = attempt
	c.mu.Unlock()

	token, err := c.backend.Refresh(ctx)

	c.mu.Lock()
	attempt.token, attempt.err = token, err
	if err == nil {
		c.accessToken = token
	} else {
		c.accessToken = ""
	}
	c.refresh = nil
	c.mu.Unlock()

	if err == nil {
		if saveErr := c.storage.Save(token); saveErr != nil {
			c.logger.Warn("persist refreshed token", zap.Error(saveErr))
		}
	} else {
		if clearErr := c.storage.Clear(); clearErr != nil {
			c.logger.Warn("clear access token", zap.Error(clearErr))
		}
		c.logger.Warn("token refresh failed", zap.Error(err))
	}

	close(attempt.done)
	return token, err
}
