package session_test

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"

	"github.com/ittiee/liff-auth/internal/session"
)

func newNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

func TestCreateAndValidate(t *testing.T) {
	store := session.NewStore(newNode(t), 7*24*time.Hour, 64)

	token, err := store.Create("1")
	require.NoError(t, err)
	require.Len(t, token, 64)

	sess, err := store.Validate(token)
	require.NoError(t, err)
	require.Equal(t, "1", sess.UserID)
	require.Equal(t, token, sess.RefreshToken)
	require.False(t, sess.Revoked)
	require.WithinDuration(t, sess.CreatedAt.Add(7*24*time.Hour), sess.ExpiresAt, time.Second)
}

func TestValidateUnknownToken(t *testing.T) {
	store := session.NewStore(newNode(t), time.Hour, 64)

	_, err := store.Validate("nope")
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestRotateIsSingleUse(t *testing.T) {
	store := session.NewStore(newNode(t), time.Hour, 64)

	old, err := store.Create("1")
	require.NoError(t, err)

	next, err := store.Rotate(old, "1")
	require.NoError(t, err)
	require.NotEqual(t, old, next)

	// Replay of the rotated token must be indistinguishable from a token
	// that never existed.
	_, err = store.Validate(old)
	require.ErrorIs(t, err, session.ErrNotFound)

	sess, err := store.Validate(next)
	require.NoError(t, err)
	require.Equal(t, "1", sess.UserID)

	_, err = store.Rotate(old, "1")
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestRevoke(t *testing.T) {
	store := session.NewStore(newNode(t), time.Hour, 64)

	token, err := store.Create("2")
	require.NoError(t, err)

	require.True(t, store.Revoke(token))
	require.False(t, store.Revoke(token))

	_, err = store.Validate(token)
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestLazyExpiryEviction(t *testing.T) {
	store := session.NewStore(newNode(t), -time.Minute, 64)

	token, err := store.Create("1")
	require.NoError(t, err)

	_, err = store.Validate(token)
	require.ErrorIs(t, err, session.ErrExpired)

	// The expired entry was removed during validation.
	_, err = store.Validate(token)
	require.ErrorIs(t, err, session.ErrNotFound)
	require.Empty(t, store.Active())
}

func TestConcurrentSessionsPerUser(t *testing.T) {
	store := session.NewStore(newNode(t), time.Hour, 64)

	first, err := store.Create("1")
	require.NoError(t, err)
	second, err := store.Create("1")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	require.Len(t, store.Active(), 2)

	store.RevokeAll()
	require.Empty(t, store.Active())
	_, err = store.Validate(first)
	require.ErrorIs(t, err, session.ErrNotFound)
}
