package client_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ittiee/liff-auth/internal/client"
	"github.com/ittiee/liff-auth/internal/domain"
	"github.com/ittiee/liff-auth/internal/password"
	"github.com/ittiee/liff-auth/internal/repository"
	"github.com/ittiee/liff-auth/internal/service"
	"github.com/ittiee/liff-auth/internal/session"
	"github.com/ittiee/liff-auth/internal/token"
)

// fakeBackend scripts wire behavior for coordination tests.
type fakeBackend struct {
	mu           sync.Mutex
	validToken   string
	refreshGate  chan struct{}
	refreshErr   error
	refreshCalls atomic.Int64
	staleMeCalls atomic.Int64
}

func (b *fakeBackend) Login(ctx context.Context, email, password string) (*client.LoginResponse, error) {
	return &client.LoginResponse{
		AccessToken: b.current(),
		User:        domain.User{ID: "1", Email: email, Roles: []string{"user"}},
	}, nil
}

func (b *fakeBackend) Refresh(ctx context.Context) (string, error) {
	b.refreshCalls.Add(1)
	if b.refreshGate != nil {
		<-b.refreshGate
	}
	if b.refreshErr != nil {
		return "", b.refreshErr
	}
	return b.current(), nil
}

func (b *fakeBackend) Logout(ctx context.Context) error { return nil }

func (b *fakeBackend) Me(ctx context.Context, accessToken string) (domain.User, error) {
	if accessToken != b.current() {
		b.staleMeCalls.Add(1)
		return domain.User{}, &client.APIError{Status: 401, Code: service.CodeAccessTokenExpired, Message: "Access token has expired"}
	}
	return domain.User{ID: "1", Email: "user@example.com", Roles: []string{"user"}}, nil
}

func (b *fakeBackend) current() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.validToken
}

func TestConcurrentUnauthorizedTriggersSingleRefresh(t *testing.T) {
	const workers = 25

	backend := &fakeBackend{validToken: "fresh", refreshGate: make(chan struct{})}
	c := client.New(backend, client.NewMemoryStorage(), zap.NewNop())
	c.SetAccessToken("stale")

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Me(context.Background())
		}(i)
	}

	// Hold the refresh open until every worker has seen its 401 and either
	// started or joined the pending attempt.
	require.Eventually(t, func() bool {
		return backend.staleMeCalls.Load() >= workers
	}, 2*time.Second, time.Millisecond)
	close(backend.refreshGate)
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "worker %d", i)
	}
	require.EqualValues(t, 1, backend.refreshCalls.Load())
	require.Equal(t, "fresh", c.AccessToken())
}

func TestFailedRefreshPropagatesToAllWaiters(t *testing.T) {
	const workers = 10

	refreshFailure := &client.APIError{Status: 401, Code: service.CodeSessionNotFound, Message: "Invalid or revoked refresh token"}
	backend := &fakeBackend{validToken: "fresh", refreshGate: make(chan struct{}), refreshErr: refreshFailure}
	storage := client.NewMemoryStorage()
	c := client.New(backend, storage, zap.NewNop())
	c.SetAccessToken("stale")

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Me(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool {
		return backend.staleMeCalls.Load() >= workers
	}, 2*time.Second, time.Millisecond)
	close(backend.refreshGate)
	wg.Wait()

	// Every waiter receives the refresh failure, not its original 401.
	for i, err := range errs {
		var apiErr *client.APIError
		require.ErrorAs(t, err, &apiErr, "worker %d", i)
		require.Equal(t, service.CodeSessionNotFound, apiErr.Code, "worker %d", i)
	}
	require.EqualValues(t, 1, backend.refreshCalls.Load())

	// Fail-closed: cached and persisted token are gone.
	require.Empty(t, c.AccessToken())
	persisted, err := storage.Load()
	require.NoError(t, err)
	require.Empty(t, persisted)
}

// stillStaleBackend refreshes "successfully" to a token the server keeps
// rejecting, exercising the no-infinite-retry guard.
type stillStaleBackend struct {
	meCalls      atomic.Int64
	refreshCalls atomic.Int64
}

func (b *stillStaleBackend) Login(ctx context.Context, email, password string) (*client.LoginResponse, error) {
	return nil, errors.New("not used")
}

func (b *stillStaleBackend) Refresh(ctx context.Context) (string, error) {
	b.refreshCalls.Add(1)
	return "still-stale", nil
}

func (b *stillStaleBackend) Logout(ctx context.Context) error { return nil }

func (b *stillStaleBackend) Me(ctx context.Context, accessToken string) (domain.User, error) {
	b.meCalls.Add(1)
	return domain.User{}, &client.APIError{Status: 401, Code: service.CodeInvalidAccessToken, Message: "Invalid access token"}
}

func TestRetriesExactlyOnce(t *testing.T) {
	backend := &stillStaleBackend{}
	c := client.New(backend, client.NewMemoryStorage(), zap.NewNop())
	c.SetAccessToken("stale")

	_, err := c.Me(context.Background())
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, service.CodeInvalidAccessToken, apiErr.Code)

	require.EqualValues(t, 2, backend.meCalls.Load())
	require.EqualValues(t, 1, backend.refreshCalls.Load())
}

// failingLogoutBackend rejects the remote revoke call.
type failingLogoutBackend struct {
	fakeBackend
}

func (b *failingLogoutBackend) Logout(ctx context.Context) error {
	return &client.APIError{Status: 500, Code: "SERVER_ERROR", Message: "revoke failed"}
}

func TestLogoutClearsLocalStateOnRemoteFailure(t *testing.T) {
	backend := &failingLogoutBackend{fakeBackend: fakeBackend{validToken: "fresh"}}
	storage := client.NewMemoryStorage()
	c := client.New(backend, storage, zap.NewNop())
	c.SetAccessToken("fresh")

	err := c.Logout(context.Background())
	require.Error(t, err)
	require.Empty(t, c.AccessToken())
	persisted, loadErr := storage.Load()
	require.NoError(t, loadErr)
	require.Empty(t, persisted)
}

func TestClientResumesFromStorage(t *testing.T) {
	storage := client.NewMemoryStorage()
	require.NoError(t, storage.Save("persisted-token"))

	backend := &fakeBackend{validToken: "persisted-token"}
	c := client.New(backend, storage, zap.NewNop())
	require.Equal(t, "persisted-token", c.AccessToken())

	user, err := c.Me(context.Background())
	require.NoError(t, err)
	require.Equal(t, "1", user.ID)
	require.Zero(t, backend.refreshCalls.Load())
}

func TestClientAgainstLocalBackend(t *testing.T) {
	ctx := context.Background()

	dir := repository.NewMemoryDirectory()
	hash, err := password.Hash("password123")
	require.NoError(t, err)
	dir.Seed(domain.User{ID: "1", Email: "user@example.com", Name: "John Doe", Roles: []string{"user"}}, hash)

	keys, err := token.NewKeyManager(nil)
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	svc := service.NewAuthService(dir, dir, token.NewService(keys, 24*time.Hour), session.NewStore(node, 7*24*time.Hour, 64), nil, zap.NewNop())

	backend := client.NewLocalBackend(svc)
	c := client.New(backend, client.NewMemoryStorage(), zap.NewNop())

	resp, err := c.Login(ctx, "user@example.com", "password123")
	require.NoError(t, err)
	require.Equal(t, []string{"user"}, resp.User.Roles)
	require.Equal(t, resp.AccessToken, c.AccessToken())

	user, err := c.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, "John Doe", user.Name)

	require.NoError(t, c.Logout(ctx))
	require.Empty(t, c.AccessToken())
	require.Empty(t, svc.ActiveSessions())

	_, err = c.Me(ctx)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 401, apiErr.Status)
}
