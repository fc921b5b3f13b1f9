package token

import (
	"crypto/rand"
	"fmt"

	"github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"
)

// KeyManager holds the in-process HS256 signing key. The key lives for the
// lifetime of the serving process; issued tokens do not survive a restart.
type KeyManager struct {
	kid    string
	secret []byte
}

// NewKeyManager creates a manager around the provided secret. An empty
// secret gets replaced with a freshly generated 64-byte key.
func NewKeyManager(secret []byte) (*KeyManager, error) {
	if len(secret) == 0 {
		secret = make([]byte, 64)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate signing secret: %w", err)
		}
	}
	return &KeyManager{kid: uuid.NewString(), secret: secret}, nil
}

// KID returns the key identifier stamped into token headers.
func (m *KeyManager) KID() string {
	return m.kid
}

// SigningKey exposes the key in the shape go-jose signers expect.
func (m *KeyManager) SigningKey() jose.SigningKey {
	return jose.SigningKey{Algorithm: jose.HS256, Key: m.secret}
}

// VerificationKey returns the raw secret used to check signatures.
func (m *KeyManager) VerificationKey() []byte {
	return m.secret
}

// Algorithms lists the signature algorithms accepted during parsing.
func (m *KeyManager) Algorithms() []jose.SignatureAlgorithm {
	return []jose.SignatureAlgorithm{jose.HS256}
}
