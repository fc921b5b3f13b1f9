package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ittiee/liff-auth/internal/config"
	"github.com/ittiee/liff-auth/internal/domain"
	"github.com/ittiee/liff-auth/internal/http/handler"
	"github.com/ittiee/liff-auth/internal/http/middleware"
	"github.com/ittiee/liff-auth/internal/password"
	"github.com/ittiee/liff-auth/internal/repository"
	"github.com/ittiee/liff-auth/internal/service"
	"github.com/ittiee/liff-auth/internal/session"
	"github.com/ittiee/liff-auth/internal/token"
)

func newTestRouter(t *testing.T, throttle service.ThrottleFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := repository.NewMemoryDirectory()
	hash, err := password.Hash("password123")
	require.NoError(t, err)
	dir.Seed(domain.User{ID: "1", Email: "user@example.com", Name: "John Doe", Roles: []string{"user"}}, hash)

	keys, err := token.NewKeyManager(nil)
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.Config{RefreshTokenTTL: 7 * 24 * time.Hour}
	svc := service.NewAuthService(dir, dir, token.NewService(keys, 24*time.Hour), session.NewStore(node, cfg.RefreshTokenTTL, 64), throttle, zap.NewNop())
	h := handler.NewAuthHandler(svc, cfg)
	auth := &middleware.Auth{AuthService: svc}

	r := gin.New()
	grp := r.Group("/auth")
	grp.POST("/login", h.Login)
	grp.POST("/refresh", h.Refresh)
	grp.POST("/logout", h.Logout)
	grp.GET("/me", auth.RequireBearer, h.Me)
	grp.GET("/sessions", h.Sessions)
	grp.POST("/sessions/revoke", h.RevokeSessions)
	return r
}

func doJSON(r *gin.Engine, method, path string, body any, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, fn := range mutate {
		fn(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func refreshCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == handler.RefreshCookie {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", handler.RefreshCookie)
	return nil
}

func TestLoginSetsCookieAndReturnsUser(t *testing.T) {
	r := newTestRouter(t, nil)

	w := doJSON(r, http.MethodPost, "/auth/login", gin.H{"email": "user@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		AccessToken string      `json:"accessToken"`
		User        domain.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.AccessToken)
	require.Equal(t, "user@example.com", body.User.Email)

	c := refreshCookie(t, w)
	require.Len(t, c.Value, 64)
	require.True(t, c.HttpOnly)
	require.Equal(t, "/", c.Path)
	require.Equal(t, http.SameSiteLaxMode, c.SameSite)
	require.Equal(t, int((7 * 24 * time.Hour).Seconds()), c.MaxAge)
}

func TestLoginRejections(t *testing.T) {
	r := newTestRouter(t, nil)

	cases := []struct {
		name   string
		body   gin.H
		status int
		code   string
	}{
		{"wrong password", gin.H{"email": "user@example.com", "password": "nope"}, http.StatusUnauthorized, service.CodeInvalidCredentials},
		{"unknown email", gin.H{"email": "ghost@example.com", "password": "password123"}, http.StatusUnauthorized, service.CodeInvalidCredentials},
		{"missing fields", gin.H{"email": "user@example.com"}, http.StatusBadRequest, "INVALID_REQUEST"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(r, http.MethodPost, "/auth/login", tc.body)
			require.Equal(t, tc.status, w.Code)
			var body struct {
				Error string `json:"error"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			require.Equal(t, tc.code, body.Error)
		})
	}
}

func TestLoginThrottled(t *testing.T) {
	r := newTestRouter(t, func() bool { return true })

	w := doJSON(r, http.MethodPost, "/auth/login", gin.H{"email": "user@example.com", "password": "password123"})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Contains(t, w.Body.String(), service.CodeTooManyRequests)
}

func TestRefreshRotatesCookie(t *testing.T) {
	r := newTestRouter(t, nil)

	login := doJSON(r, http.MethodPost, "/auth/login", gin.H{"email": "user@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, login.Code)
	first := refreshCookie(t, login)

	refresh := doJSON(r, http.MethodPost, "/auth/refresh", nil, func(req *http.Request) {
		req.AddCookie(first)
	})
	require.Equal(t, http.StatusOK, refresh.Code)
	require.Contains(t, refresh.Body.String(), "accessToken")

	rotated := refreshCookie(t, refresh)
	require.NotEqual(t, first.Value, rotated.Value)

	// The pre-rotation token is spent.
	replay := doJSON(r, http.MethodPost, "/auth/refresh", nil, func(req *http.Request) {
		req.AddCookie(first)
	})
	require.Equal(t, http.StatusUnauthorized, replay.Code)
	require.Contains(t, replay.Body.String(), service.CodeSessionNotFound)
}

func TestRefreshWithoutCookie(t *testing.T) {
	r := newTestRouter(t, nil)

	w := doJSON(r, http.MethodPost, "/auth/refresh", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), service.CodeNoRefreshToken)
}

func TestLogoutClearsCookie(t *testing.T) {
	r := newTestRouter(t, nil)

	login := doJSON(r, http.MethodPost, "/auth/login", gin.H{"email": "user@example.com", "password": "password123"})
	cookie := refreshCookie(t, login)

	logout := doJSON(r, http.MethodPost, "/auth/logout", nil, func(req *http.Request) {
		req.AddCookie(cookie)
	})
	require.Equal(t, http.StatusOK, logout.Code)
	cleared := refreshCookie(t, logout)
	require.Empty(t, cleared.Value)
	require.Negative(t, cleared.MaxAge)

	// Logout without a session is still 200.
	again := doJSON(r, http.MethodPost, "/auth/logout", nil)
	require.Equal(t, http.StatusOK, again.Code)
}

func TestMe(t *testing.T) {
	r := newTestRouter(t, nil)

	login := doJSON(r, http.MethodPost, "/auth/login", gin.H{"email": "user@example.com", "password": "password123"})
	var loginBody struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(login.Body.Bytes(), &loginBody))

	t.Run("authorized", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, "/auth/me", nil, func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+loginBody.AccessToken)
		})
		require.Equal(t, http.StatusOK, w.Code)
		var user domain.User
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))
		require.Equal(t, "John Doe", user.Name)
	})

	t.Run("missing token", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, "/auth/me", nil)
		require.Equal(t, http.StatusUnauthorized, w.Code)
		require.Contains(t, w.Body.String(), service.CodeNoAccessToken)
	})

	t.Run("garbage token", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, "/auth/me", nil, func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer not.a.jwt")
		})
		require.Equal(t, http.StatusUnauthorized, w.Code)
		require.Contains(t, w.Body.String(), service.CodeAccessTokenExpired)
	})
}

func TestSessionsDebugSurface(t *testing.T) {
	r := newTestRouter(t, nil)

	for i := 0; i < 3; i++ {
		w := doJSON(r, http.MethodPost, "/auth/login", gin.H{"email": "user@example.com", "password": "password123"})
		require.Equal(t, http.StatusOK, w.Code, "login %d", i)
	}

	list := doJSON(r, http.MethodGet, "/auth/sessions", nil)
	require.Equal(t, http.StatusOK, list.Code)
	var body struct {
		Sessions []json.RawMessage `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &body))
	require.Len(t, body.Sessions, 3)

	revoke := doJSON(r, http.MethodPost, "/auth/sessions/revoke", nil)
	require.Equal(t, http.StatusOK, revoke.Code)

	list = doJSON(r, http.MethodGet, "/auth/sessions", nil)
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &body))
	require.Empty(t, body.Sessions)
}

func TestHTTPBackendEndToEnd(t *testing.T) {
	r := newTestRouter(t, nil)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/auth/login", "application/json",
		bytes.NewBufferString(`{"email":"user@example.com","password":"password123"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/auth/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", body.AccessToken))
	me, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer me.Body.Close()
	require.Equal(t, http.StatusOK, me.StatusCode)
}
