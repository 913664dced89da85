package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rollcall/apiserver/internal/auth"
	"github.com/rollcall/apiserver/internal/logging"
	"github.com/rollcall/apiserver/internal/store"
	"github.com/rollcall/apiserver/types"
)

// CredentialStore is the read side of the user repository used by login.
type CredentialStore interface {
	GetByUsername(ctx context.Context, username string) (types.User, error)
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	Roles     []string  `json:"roles"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthService authenticates credentials and session tokens.
type AuthService struct {
	users  CredentialStore
	hasher *auth.PasswordHasher
	tokens *auth.TokenService
	log    logging.Logger
}

func NewAuthService(users CredentialStore, hasher *auth.PasswordHasher, tokens *auth.TokenService, log logging.Logger) *AuthService {
	if log == nil {
		log = logging.Discard()
	}
	return &AuthService{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		log:    log.With("component", "auth"),
	}
}

// Login checks username and password and issues a session token.
//
// Unknown usernames and wrong passwords both return ErrInvalidCredentials.
// A locked or disabled account returns ErrAccountLocked or ErrAccountDisabled;
// callers at the boundary treat all three alike.
func (s *AuthService) Login(ctx context.Context, username, password string) (LoginResult, error) {
	if username == "" || password == "" {
		s.hasher.VerifyDummy(password)
		return LoginResult{}, auth.ErrInvalidCredentials
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.hasher.VerifyDummy(password)
			s.log.Info(ctx, "login rejected", "reason", "unknown user")
			return LoginResult{}, auth.ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("lookup user: %w", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		s.log.Info(ctx, "login rejected", "reason", "bad password", "username", user.Username)
		return LoginResult{}, auth.ErrInvalidCredentials
	}

	if err := auth.CanAuthenticate(user); err != nil {
		s.log.Info(ctx, "login rejected", "reason", err.Error(), "username", user.Username)
		return LoginResult{}, err
	}

	issued, err := s.tokens.Issue(user)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}

	s.log.Debug(ctx, "login succeeded", "username", user.Username, "jti", issued.Claims.ID)
	return LoginResult{
		Token:     issued.Token,
		Username:  user.Username,
		Roles:     issued.Claims.Roles,
		ExpiresAt: issued.ExpiresAt,
	}, nil
}

// Authenticate validates a session token and returns its principal. The
// credential store is not consulted.
func (s *AuthService) Authenticate(ctx context.Context, token string) (auth.Principal, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		s.log.Debug(ctx, "token rejected", "error", err)
		return auth.Principal{}, err
	}
	return claims.Principal()
}
