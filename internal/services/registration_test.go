package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollcall/apiserver/internal/auth"
	"github.com/rollcall/apiserver/types"
)

type registrationFixture struct {
	store    *memStore
	notifier *recordingNotifier
	hasher   *auth.PasswordHasher
	svc      *RegistrationService
	now      time.Time
}

func newRegistrationFixture(t *testing.T) *registrationFixture {
	t.Helper()
	f := &registrationFixture{
		store:    newMemStore(),
		notifier: &recordingNotifier{},
		hasher:   newHasher(t),
		now:      time.Now(),
	}
	f.svc = NewRegistrationService(f.store, f.hasher, newVerificationTokens(t), f.notifier, RegistrationConfig{
		VerificationTTL: 72 * time.Hour,
		Now:             func() time.Time { return f.now },
	}, nil)
	return f
}

func aliceRequest() RegisterRequest {
	return RegisterRequest{
		Username:  "alice",
		Email:     "alice@example.com",
		Password:  "correct horse",
		FirstName: "Alice",
		LastName:  "Liddell",
		Role:      "STUDENT",
	}
}

func TestRegisterVerifyLogin(t *testing.T) {
	ctx := context.Background()
	f := newRegistrationFixture(t)

	res, err := f.svc.Register(ctx, adminPrincipal(), aliceRequest())
	require.NoError(t, err)
	assert.True(t, res.User.Locked)
	assert.Equal(t, types.RoleStudent, res.User.Role)
	assert.NotEmpty(t, res.VerificationToken)

	stored, err := f.store.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, stored.Locked)
	assert.NotEqual(t, "correct horse", stored.PasswordHash)

	// only the hash is persisted
	_, ok := f.store.tokens[res.VerificationToken]
	assert.False(t, ok)

	require.Len(t, f.notifier.tokens, 1)
	assert.Equal(t, res.VerificationToken, f.notifier.tokens[0])

	authSvc := NewAuthService(f.store, f.hasher, newTokens(t), nil)
	_, err = authSvc.Login(ctx, "alice", "correct horse")
	assert.ErrorIs(t, err, auth.ErrAccountLocked)

	vr, err := f.svc.Verify(ctx, res.VerificationToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", vr.Username)
	assert.Equal(t, "User alice verified successfully", vr.Message)

	stored, err = f.store.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, stored.Locked)

	login, err := authSvc.Login(ctx, "alice", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, []string{"STUDENT"}, login.Roles)
}

func TestRegister_RequiresAdmin(t *testing.T) {
	ctx := context.Background()
	f := newRegistrationFixture(t)

	_, err := f.svc.Register(ctx, auth.Principal{}, aliceRequest())
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	teacher := auth.Principal{Username: "t", Roles: []types.Role{types.RoleTeacher}}
	_, err = f.svc.Register(ctx, teacher, aliceRequest())
	assert.ErrorIs(t, err, auth.ErrForbidden)

	assert.Zero(t, f.store.creates)
	assert.Empty(t, f.notifier.tokens)
}

func TestRegister_InvalidRoleCreatesNothing(t *testing.T) {
	f := newRegistrationFixture(t)

	for _, role := range []string{"", "student", "ROOT", "ADMIN "} {
		req := aliceRequest()
		req.Role = role
		_, err := f.svc.Register(context.Background(), adminPrincipal(), req)
		require.Error(t, err, role)
		assert.ErrorIs(t, err, types.ErrInvalidRole)

		var roleErr *types.InvalidRoleError
		require.True(t, errors.As(err, &roleErr))
		assert.Equal(t, types.RoleNames(), roleErr.ValidRoles())
	}
	assert.Zero(t, f.store.creates)
}

func TestRegister_Validation(t *testing.T) {
	f := newRegistrationFixture(t)
	future := f.now.Add(48 * time.Hour)

	req := aliceRequest()
	req.Username = "-x"
	req.Email = "not-an-email"
	req.Password = "short"
	req.DateOfBirth = &future

	_, err := f.svc.Register(context.Background(), adminPrincipal(), req)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Contains(t, verr.Fields, "username")
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "password")
	assert.Contains(t, verr.Fields, "date_of_birth")
	assert.NotContains(t, verr.Fields, "first_name")
	assert.Zero(t, f.store.creates)
}

func TestRegister_PasswordOverBcryptLimit(t *testing.T) {
	f := newRegistrationFixture(t)

	req := aliceRequest()
	req.Password = strings.Repeat("p", 100)

	_, err := f.svc.Register(context.Background(), adminPrincipal(), req)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, "must be at most 72 bytes", verr.Fields["password"])
	assert.Zero(t, f.store.creates)

	// Under the rune limit but over the byte limit.
	req.Password = strings.Repeat("ß", 40)
	_, err = f.svc.Register(context.Background(), adminPrincipal(), req)
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Contains(t, verr.Fields, "password")
}

func TestRegister_Duplicate(t *testing.T) {
	ctx := context.Background()
	f := newRegistrationFixture(t)

	_, err := f.svc.Register(ctx, adminPrincipal(), aliceRequest())
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, adminPrincipal(), aliceRequest())
	assert.ErrorIs(t, err, auth.ErrDuplicateIdentity)

	req := aliceRequest()
	req.Username = "alice2"
	_, err = f.svc.Register(ctx, adminPrincipal(), req)
	assert.ErrorIs(t, err, auth.ErrDuplicateIdentity, "email must be unique too")
}

func TestRegister_NotifierFailureIsNotFatal(t *testing.T) {
	f := newRegistrationFixture(t)
	f.notifier.err = errors.New("broker unavailable")

	res, err := f.svc.Register(context.Background(), adminPrincipal(), aliceRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, res.VerificationToken)
}

func TestVerify_UnknownToken(t *testing.T) {
	ctx := context.Background()
	f := newRegistrationFixture(t)

	_, err := f.svc.Register(ctx, adminPrincipal(), aliceRequest())
	require.NoError(t, err)

	for _, tok := range []string{"", "   ", "does-not-exist"} {
		_, err := f.svc.Verify(ctx, tok)
		assert.ErrorIs(t, err, auth.ErrInvalidToken, tok)
	}

	stored, err := f.store.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, stored.Locked)
}

func TestVerify_RepeatIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newRegistrationFixture(t)

	res, err := f.svc.Register(ctx, adminPrincipal(), aliceRequest())
	require.NoError(t, err)

	_, err = f.svc.Verify(ctx, res.VerificationToken)
	require.NoError(t, err)

	_, err = f.svc.Verify(ctx, res.VerificationToken)
	assert.ErrorIs(t, err, auth.ErrAlreadyVerified)
}

func TestVerify_Expired(t *testing.T) {
	ctx := context.Background()
	f := newRegistrationFixture(t)

	res, err := f.svc.Register(ctx, adminPrincipal(), aliceRequest())
	require.NoError(t, err)

	f.store.backdateTokens(73 * time.Hour)

	_, err = f.svc.Verify(ctx, res.VerificationToken)
	assert.ErrorIs(t, err, auth.ErrVerificationExpired)

	stored, err := f.store.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, stored.Locked)
}

func TestVerify_StoreFailure(t *testing.T) {
	f := newRegistrationFixture(t)
	f.store.err = errors.New("db down")

	_, err := f.svc.Verify(context.Background(), "anything")
	require.Error(t, err)
	assert.NotErrorIs(t, err, auth.ErrInvalidToken)
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"password": "too short", "email": "bad"}}
	assert.Equal(t, "validation failed: email: bad; password: too short", err.Error())
}
