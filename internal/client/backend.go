package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/ittiee/liff-auth/internal/domain"
	"github.com/ittiee/liff-auth/internal/service"
)

// LoginResponse is the body of a successful login.
type LoginResponse struct {
	AccessToken string      `json:"accessToken"`
	User        domain.User `json:"user"`
}

// Backend is the transport behind the client. The refresh-token credential
// channel (cookie or in-process holder) is owned by the backend; the client
// never sees refresh tokens.
type Backend interface {
	Login(ctx context.Context, email, password string) (*LoginResponse, error)
	Refresh(ctx context.Context) (string, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context, accessToken string) (domain.User, error)
}

// CredentialChannel transports the refresh token for the in-process
// backend, standing in for the HTTP-only cookie.
type CredentialChannel interface {
	Set(token string)
	Get() string
	Clear()
}

// MemoryChannel is a process-local CredentialChannel.
type MemoryChannel struct {
	mu    sync.Mutex
	token string
}

func (c *MemoryChannel) Set(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *MemoryChannel) Get() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *MemoryChannel) Clear() {
	c.Set("")
}

// LocalBackend calls the auth service in-process. It mirrors the wire
// contract exactly, including error shapes, so the client cannot tell it
// apart from the HTTP backend.
type LocalBackend struct {
	Auth    *service.AuthService
	Channel CredentialChannel
}

// NewLocalBackend wraps the service with an in-memory credential channel.
func NewLocalBackend(auth *service.AuthService) *LocalBackend {
	return &LocalBackend{Auth: auth, Channel: &MemoryChannel{}}
}

func (b *LocalBackend) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	result, err := b.Auth.Login(ctx, email, password)
	if err != nil {
		return nil, apiErrorFrom(err)
	}
	b.Channel.Set(result.RefreshToken)
	return &LoginResponse{AccessToken: result.AccessToken, User: result.User}, nil
}

func (b *LocalBackend) Refresh(ctx context.Context) (string, error) {
	result, err := b.Auth.Refresh(ctx, b.Channel.Get())
	if err != nil {
		return "", apiErrorFrom(err)
	}
	b.Channel.Set(result.RefreshToken)
	return result.AccessToken, nil
}

func (b *LocalBackend) Logout(ctx context.Context) error {
	b.Auth.Logout(ctx, b.Channel.Get())
	b.Channel.Clear()
	return nil
}

func (b *LocalBackend) Me(ctx context.Context, accessToken string) (domain.User, error) {
	user, err := b.Auth.Me(ctx, accessToken)
	if err != nil {
		return domain.User{}, apiErrorFrom(err)
	}
	return user, nil
}

// HTTPBackend talks to a real auth server. The cookie jar carries the
// refresh token, so rotation happens transparently.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

// NewHTTPBackend creates a backend for the server at baseURL.
func NewHTTPBackend(baseURL string, timeout time.Duration) (*HTTPBackend, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPBackend{
		baseURL: baseURL,
		client:  &http.Client{Jar: jar, Timeout: timeout},
	}, nil
}

func (b *HTTPBackend) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var resp LoginResponse
	err := b.call(ctx, http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password}, "", &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (b *HTTPBackend) Refresh(ctx context.Context) (string, error) {
	var resp struct {
		AccessToken string `json:"accessToken"`
	}
	if err := b.call(ctx, http.MethodPost, "/auth/refresh", nil, "", &resp); err != nil {
		return "", err
	}
	return resp.AccessToken, nil
}

func (b *HTTPBackend) Logout(ctx context.Context) error {
	return b.call(ctx, http.MethodPost, "/auth/logout", nil, "", nil)
}

func (b *HTTPBackend) Me(ctx context.Context, accessToken string) (domain.User, error) {
	var user domain.User
	if err := b.call(ctx, http.MethodGet, "/auth/me", nil, accessToken, &user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (b *HTTPBackend) call(ctx context.Context, method, path string, body any, bearer string, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Code: "SERVER_ERROR", Message: resp.Status}
		var wire struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&wire); decodeErr == nil && wire.Error != "" {
			apiErr.Code = wire.Error
			apiErr.Message = wire.Message
		}
		return apiErr
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
