package token

import (
	"errors"
	"fmt"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/ittiee/liff-auth/internal/domain"
)

// ErrInvalidToken covers every structural, decoding, and signature failure.
// Callers must treat the token as untrusted without distinguishing why.
var ErrInvalidToken = errors.New("invalid access token")

// Service signs and parses bearer access tokens.
type Service struct {
	keys *KeyManager
	ttl  time.Duration
}

// NewService constructs a token service issuing tokens valid for ttl.
func NewService(keys *KeyManager, ttl time.Duration) *Service {
	return &Service{keys: keys, ttl: ttl}
}

// Claims is the access-token payload.
type Claims struct {
	Subject  string
	Email    string
	Name     string
	Roles    []string
	IssuedAt time.Time
	Expiry   time.Time
}

type customClaims struct {
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

// Issue produces a signed token for the user. Pure function of the user and
// the current time; nothing is stored server-side.
func (s *Service) Issue(user domain.User) (string, error) {
	signer, err := gojose.NewSigner(s.keys.SigningKey(), (&gojose.SignerOptions{}).WithType("JWT").WithHeader("kid", s.keys.KID()))
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	now := time.Now().UTC()
	std := gojwt.Claims{
		Subject:  user.ID,
		IssuedAt: gojwt.NewNumericDate(now),
		Expiry:   gojwt.NewNumericDate(now.Add(s.ttl)),
	}
	custom := customClaims{
		Email: user.Email,
		Name:  user.Name,
		Roles: user.Roles,
	}

	raw, err := gojwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize token: %w", err)
	}
	return raw, nil
}

// Parse verifies the signature and decodes the claim set. Any failure maps
// to ErrInvalidToken; expiry is not checked here so callers can report an
// expired-but-genuine token separately from garbage.
func (s *Service) Parse(raw string) (*Claims, error) {
	parsed, err := gojwt.ParseSigned(raw, s.keys.Algorithms())
	if err != nil {
		return nil, ErrInvalidToken
	}

	var std gojwt.Claims
	var custom customClaims
	if err := parsed.Claims(s.keys.VerificationKey(), &std, &custom); err != nil {
		return nil, ErrInvalidToken
	}

	claims := &Claims{
		Subject: std.Subject,
		Email:   custom.Email,
		Name:    custom.Name,
		Roles:   custom.Roles,
	}
	if std.IssuedAt != nil {
		claims.IssuedAt = std.IssuedAt.Time()
	}
	if std.Expiry != nil {
		claims.Expiry = std.Expiry.Time()
	}
	return claims, nil
}

// Expired reports whether the token can no longer be trusted. Unparseable
// tokens and tokens without an exp claim count as expired (fail-closed);
// this never returns an error.
func (s *Service) Expired(raw string) bool {
	claims, err := s.Parse(raw)
	if err != nil {
		return true
	}
	if claims.Expiry.IsZero() {
		return true
	}
	return claims.Expiry.Unix() < time.Now().Unix()
}
