package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ittiee/liff-auth/internal/domain"
	"github.com/ittiee/liff-auth/internal/password"
	"github.com/ittiee/liff-auth/internal/repository"
	"github.com/ittiee/liff-auth/internal/session"
	"github.com/ittiee/liff-auth/internal/token"
)

// ThrottleFunc decides whether a login attempt should be rejected with
// TOO_MANY_REQUESTS. Injected so tests stay deterministic; nil disables
// throttling.
type ThrottleFunc func() bool

// LoginResult is what a successful login hands back to the transport. The
// refresh token travels separately (cookie channel), never in the body.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	User         domain.User
}

// RefreshResult carries the rotated pair after a successful refresh.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
}

// AuthService orchestrates the directory, token service, and session store.
type AuthService struct {
	users    repository.UserRepository
	creds    repository.CredentialRepository
	tokens   *token.Service
	sessions *session.Store
	throttle ThrottleFunc
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewAuthService wires dependencies.
func NewAuthService(users repository.UserRepository, creds repository.CredentialRepository, tokens *token.Service, sessions *session.Store, throttle ThrottleFunc, logger *zap.Logger) *AuthService {
	return &AuthService{
		users:    users,
		creds:    creds,
		tokens:   tokens,
		sessions: sessions,
		throttle: throttle,
		logger:   logger,
		tracer:   otel.Tracer("github.com/ittiee/liff-auth/internal/service"),
	}
}

// Login authenticates the email/password pair and opens a session.
func (s *AuthService) Login(ctx context.Context, email, pass string) (*LoginResult, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Login")
	defer span.End()

	if s.throttle != nil && s.throttle() {
		return nil, newAuthError(CodeTooManyRequests, "Too many login attempts. Please try again later.", http.StatusTooManyRequests)
	}

	hash, err := s.creds.HashByEmail(ctx, email)
	if err != nil {
		return nil, newAuthError(CodeInvalidCredentials, "Invalid email or password", http.StatusUnauthorized)
	}
	valid, err := password.Verify(pass, hash)
	if err != nil || !valid {
		return nil, newAuthError(CodeInvalidCredentials, "Invalid email or password", http.StatusUnauthorized)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		span.RecordError(err)
		return nil, newAuthError(CodeUserNotFound, "User not found", http.StatusNotFound)
	}

	access, err := s.tokens.Issue(user)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.sessions.Create(user.ID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.audit("login.success", "user_id", user.ID, "email", user.Email)
	return &LoginResult{AccessToken: access, RefreshToken: refresh, User: user}, nil
}

// Refresh validates the refresh token, rotates the session, and issues a
// new access token. The old refresh token is dead afterwards whatever the
// outcome of the issue step.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Refresh")
	defer span.End()

	if refreshToken == "" {
		return nil, newAuthError(CodeNoRefreshToken, "No refresh token provided", http.StatusUnauthorized)
	}

	sess, err := s.sessions.Validate(refreshToken)
	if err != nil {
		span.RecordError(err)
		return nil, sessionError(err)
	}

	user, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		span.RecordError(err)
		return nil, newAuthError(CodeUserNotFound, "User not found", http.StatusNotFound)
	}

	next, err := s.sessions.Rotate(refreshToken, user.ID)
	if err != nil {
		span.RecordError(err)
		return nil, sessionError(err)
	}

	access, err := s.tokens.Issue(user)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("refresh issue token: %w", err)
	}

	s.audit("refresh.success", "user_id", user.ID, "session_id", sess.ID)
	return &RefreshResult{AccessToken: access, RefreshToken: next}, nil
}

// Logout revokes the session behind the refresh token. A missing or unknown
// token is not an error; logout is idempotent.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) {
	_, span := s.startSpan(ctx, "AuthService.Logout")
	defer span.End()

	if refreshToken == "" {
		return
	}
	if s.sessions.Revoke(refreshToken) {
		s.audit("logout.success")
	}
}

// Me resolves the user behind a bearer access token. Error ordering matches
// the wire contract: a stale-or-garbled token reads as expired before a
// structurally parsed token with a bad subject reads as invalid.
func (s *AuthService) Me(ctx context.Context, accessToken string) (domain.User, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Me")
	defer span.End()

	if accessToken == "" {
		return domain.User{}, newAuthError(CodeNoAccessToken, "No access token provided", http.StatusUnauthorized)
	}
	if s.tokens.Expired(accessToken) {
		return domain.User{}, newAuthError(CodeAccessTokenExpired, "Access token has expired", http.StatusUnauthorized)
	}

	claims, err := s.tokens.Parse(accessToken)
	if err != nil || claims.Subject == "" {
		return domain.User{}, newAuthError(CodeInvalidAccessToken, "Invalid access token", http.StatusUnauthorized)
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		span.RecordError(err)
		return domain.User{}, newAuthError(CodeUserNotFound, "User not found", http.StatusNotFound)
	}
	return user, nil
}

// ActiveSessions exposes live sessions for the debug surface.
func (s *AuthService) ActiveSessions() []domain.Session {
	return s.sessions.Active()
}

// RevokeAllSessions drops every live session.
func (s *AuthService) RevokeAllSessions() {
	s.sessions.RevokeAll()
	s.audit("sessions.revoke_all")
}

func sessionError(err error) error {
	switch {
	case errors.Is(err, session.ErrRevoked):
		return newAuthError(CodeSessionRevoked, "Invalid or revoked refresh token", http.StatusUnauthorized)
	case errors.Is(err, session.ErrExpired):
		return newAuthError(CodeSessionExpired, "Refresh token has expired", http.StatusUnauthorized)
	default:
		return newAuthError(CodeSessionNotFound, "Invalid or revoked refresh token", http.StatusUnauthorized)
	}
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *AuthService) audit(event string, attrs ...any) {
	logger := s.log()
	if logger == nil {
		return
	}
	fields := make([]zap.Field, 0, len(attrs)/2+2)
	fields = append(fields, zap.String("event", event), zap.Time("timestamp", time.Now().UTC()))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	logger.Info("audit", fields...)
}

func (s *AuthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
