package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollcall/apiserver/internal/auth"
	"github.com/rollcall/apiserver/types"
)

func seedUser(t *testing.T, s *memStore, h *auth.PasswordHasher, username, password string, role types.Role, locked, enabled bool) types.User {
	t.Helper()
	hash, err := h.Hash(password)
	require.NoError(t, err)
	u := types.NewPendingUser(username, username+"@example.com", role, hash)
	u.Locked = locked
	u.Enabled = enabled
	created, err := s.Create(context.Background(), u)
	require.NoError(t, err)
	return created
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	hasher := newHasher(t)
	tokens := newTokens(t)
	svc := NewAuthService(st, hasher, tokens, nil)

	seedUser(t, st, hasher, "bob", "s3cret-pass", types.RoleTeacher, false, true)

	res, err := svc.Login(ctx, "bob", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, "bob", res.Username)
	assert.Equal(t, []string{"TEACHER"}, res.Roles)
	assert.False(t, res.ExpiresAt.IsZero())

	claims, err := tokens.Validate(res.Token)
	require.NoError(t, err)
	assert.Equal(t, "bob", claims.Subject)
	assert.Equal(t, []string{"TEACHER"}, claims.Roles)
}

func TestAuthService_LoginFailuresAreUniform(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	hasher := newHasher(t)
	svc := NewAuthService(st, hasher, newTokens(t), nil)

	seedUser(t, st, hasher, "bob", "s3cret-pass", types.RoleTeacher, false, true)

	_, wrongPw := svc.Login(ctx, "bob", "nope-nope")
	_, unknown := svc.Login(ctx, "nobody", "s3cret-pass")
	_, blank := svc.Login(ctx, "", "")

	for _, err := range []error{wrongPw, unknown, blank} {
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
		assert.True(t, auth.IsUnauthenticated(err))
	}
	assert.Equal(t, wrongPw.Error(), unknown.Error())
}

func TestAuthService_LoginAccountState(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	hasher := newHasher(t)
	svc := NewAuthService(st, hasher, newTokens(t), nil)

	seedUser(t, st, hasher, "pending", "s3cret-pass", types.RoleStudent, true, true)
	seedUser(t, st, hasher, "banned", "s3cret-pass", types.RoleStudent, false, false)

	_, err := svc.Login(ctx, "pending", "s3cret-pass")
	assert.ErrorIs(t, err, auth.ErrAccountLocked)
	assert.True(t, auth.IsUnauthenticated(err))

	_, err = svc.Login(ctx, "banned", "s3cret-pass")
	assert.ErrorIs(t, err, auth.ErrAccountDisabled)

	// wrong password on a locked account must not reveal the lock
	_, err = svc.Login(ctx, "pending", "wrong-pass")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestAuthService_LoginStoreFailure(t *testing.T) {
	st := newMemStore()
	st.err = errors.New("db down")
	svc := NewAuthService(st, newHasher(t), newTokens(t), nil)

	_, err := svc.Login(context.Background(), "bob", "s3cret-pass")
	require.Error(t, err)
	assert.False(t, auth.IsUnauthenticated(err))
	assert.ErrorContains(t, err, "db down")
}

func TestAuthService_Authenticate(t *testing.T) {
	tokens := newTokens(t)
	svc := NewAuthService(newMemStore(), newHasher(t), tokens, nil)

	issued, err := tokens.Issue(types.User{Username: "carol", Role: types.RoleAdmin})
	require.NoError(t, err)

	p, err := svc.Authenticate(context.Background(), issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "carol", p.Username)
	assert.True(t, p.HasRole(types.RoleAdmin))

	_, err = svc.Authenticate(context.Background(), "garbage")
	assert.ErrorIs(t, err, auth.ErrMalformed)
}

func TestAuthService_AuthenticateExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	tokens, err := auth.NewTokenService(auth.TokenConfig{Secret: testSecret, TTL: time.Minute, Now: clock})
	require.NoError(t, err)
	svc := NewAuthService(newMemStore(), newHasher(t), tokens, nil)

	issued, err := tokens.Issue(types.User{Username: "carol", Role: types.RoleUser})
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = svc.Authenticate(context.Background(), issued.Token)
	assert.ErrorIs(t, err, auth.ErrExpired)
}
