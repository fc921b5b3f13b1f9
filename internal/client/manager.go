package client

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/ittiee/liff-auth/internal/domain"
	"github.com/ittiee/liff-auth/internal/service"
)

// State is the observable auth state consumed by UI collaborators. The
// manager notifies this state; rendering belongs to the consumer.
type State struct {
	Bootstrapping bool
	Initialized   bool
	LoggedIn      bool
	User          *domain.User
	Err           *AuthError
	Loading       bool
}

// Manager drives the session lifecycle on top of the client: bootstrap from
// a cached token, login/logout, bounded initialization retries.
type Manager struct {
	client     *Client
	maxRetries int
	logger     *zap.Logger

	mu       sync.Mutex
	state    State
	retries  int
	returnTo string
	subs     map[int]func(State)
	nextSub  int
}

// NewManager creates a manager. retryAttempts bounds Retry; values below 1
// fall back to 3.
func NewManager(client *Client, retryAttempts int, logger *zap.Logger) *Manager {
	if retryAttempts < 1 {
		retryAttempts = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		client:     client,
		maxRetries: retryAttempts,
		logger:     logger,
		state:      State{Bootstrapping: true},
		subs:       make(map[int]func(State)),
	}
}

// Snapshot returns the current state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers a listener for state changes and returns an
// unsubscribe function. Listeners run synchronously on the mutating
// goroutine and must not call back into the manager.
func (m *Manager) Subscribe(fn func(State)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Initialize bootstraps the session from the cached access token. A cached
// token that no longer works degrades silently to logged-out; transport
// failures surface as a retryable INIT_ERROR.
func (m *Manager) Initialize(ctx context.Context) {
	m.update(func(s *State) {
		s.Bootstrapping = true
		s.Err = nil
	})

	token := m.client.AccessToken()
	if token == "" {
		m.update(func(s *State) {
			s.Bootstrapping = false
			s.Initialized = true
			s.LoggedIn = false
			s.User = nil
		})
		return
	}

	m.update(func(s *State) { s.Loading = true })
	user, err := m.client.Me(ctx)
	if err != nil {
		m.client.ClearAccessToken()
		authErr := m.classifyInit(err)
		m.update(func(s *State) {
			s.Bootstrapping = false
			s.Initialized = authErr == nil
			s.LoggedIn = false
			s.User = nil
			s.Loading = false
			s.Err = authErr
		})
		return
	}

	m.resetRetries()
	m.update(func(s *State) {
		s.Bootstrapping = false
		s.Initialized = true
		s.LoggedIn = true
		s.User = &user
		s.Loading = false
	})
}

// Login authenticates and records the optional post-login return path.
func (m *Manager) Login(ctx context.Context, email, password, returnTo string) error {
	m.update(func(s *State) {
		s.Loading = true
		s.Err = nil
	})
	m.mu.Lock()
	m.returnTo = returnTo
	m.mu.Unlock()

	resp, err := m.client.Login(ctx, email, password)
	if err != nil {
		authErr := classifyLogin(err)
		m.update(func(s *State) {
			s.Loading = false
			s.Err = authErr
		})
		return authErr
	}

	m.resetRetries()
	m.update(func(s *State) {
		s.Loading = false
		s.LoggedIn = true
		s.Initialized = true
		s.Bootstrapping = false
		s.User = &resp.User
	})
	return nil
}

// Logout ends the session. Local state is always logged-out afterwards,
// whatever the remote call did.
func (m *Manager) Logout(ctx context.Context) {
	if err := m.client.Logout(ctx); err != nil {
		m.logger.Warn("remote logout failed", zap.Error(err))
	}
	m.update(func(s *State) {
		s.LoggedIn = false
		s.User = nil
		s.Err = nil
		s.Loading = false
	})
}

// Retry re-runs initialization until the configured cap, then reports a
// terminal NETWORK_ERROR.
func (m *Manager) Retry(ctx context.Context) {
	m.mu.Lock()
	if m.retries >= m.maxRetries {
		m.mu.Unlock()
		m.update(func(s *State) {
			s.Err = &AuthError{
				Type:      ErrorTypeNetwork,
				Message:   "Maximum retry attempts reached",
				Code:      "MAX_RETRIES_EXCEEDED",
				Retryable: false,
			}
			s.Bootstrapping = false
		})
		return
	}
	m.retries++
	m.mu.Unlock()
	m.Initialize(ctx)
}

// ClearError drops the surfaced error.
func (m *Manager) ClearError() {
	m.update(func(s *State) { s.Err = nil })
}

// ReturnTo pops the recorded post-login path.
func (m *Manager) ReturnTo() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	path := m.returnTo
	m.returnTo = ""
	return path
}

func (m *Manager) resetRetries() {
	m.mu.Lock()
	m.retries = 0
	m.mu.Unlock()
}

// classifyInit maps a bootstrap failure. A definite auth rejection means the
// cached session is dead: silent logged-out, no error. Anything else is a
// retryable INIT_ERROR.
func (m *Manager) classifyInit(err error) *AuthError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case 401, 404:
			m.logger.Info("cached session no longer valid", zap.String("code", apiErr.Code))
			return nil
		}
		return newAuthError(ErrorTypeInit, apiErr.Message, apiErr.Code)
	}
	return newAuthError(ErrorTypeInit, "Failed to initialize authentication", "INIT_FAILED")
}

func classifyLogin(err error) *AuthError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == service.CodeTooManyRequests {
			return newAuthError(ErrorTypeNetwork, apiErr.Message, apiErr.Code)
		}
		return newAuthError(ErrorTypeLogin, apiErr.Message, apiErr.Code)
	}
	return newAuthError(ErrorTypeNetwork, "Login request failed", "LOGIN_REQUEST_FAILED")
}

func (m *Manager) update(mutate func(*State)) {
	m.mu.Lock()
	mutate(&m.state)
	snapshot := m.state
	listeners := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}
