package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rollcall/apiserver/internal/auth"
	"github.com/rollcall/apiserver/internal/store"
	"github.com/rollcall/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
}

// UserService encapsulates user use-cases outside the registration flow.
type UserService struct {
	repo   UserRepository
	hasher *auth.PasswordHasher
}

func NewUserService(repo UserRepository, hasher *auth.PasswordHasher) *UserService {
	return &UserService{repo: repo, hasher: hasher}
}

// GetByUsername returns the stored identity for username.
func (s *UserService) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return s.repo.GetByUsername(ctx, username)
}

// CreateAdmin stores an unlocked, enabled ADMIN. It exists so the first
// administrator can be created before anyone is able to call Register.
func (s *UserService) CreateAdmin(ctx context.Context, username, email, password string) (types.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" {
		return types.User{}, errors.New("username and email are required")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return types.User{}, &ValidationError{Fields: map[string]string{"password": err.Error()}}
		}
		return types.User{}, err
	}

	user := types.NewPendingUser(username, email, types.RoleAdmin, hash)
	user.Locked = false

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, auth.ErrDuplicateIdentity
		}
		return types.User{}, fmt.Errorf("create admin: %w", err)
	}
	return created, nil
}

// SetEnabled enables or disables sign-in for the named user.
func (s *UserService) SetEnabled(ctx context.Context, username string, enabled bool) (types.User, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return types.User{}, err
	}
	if user.Enabled == enabled {
		return user, nil
	}
	user.Enabled = enabled
	return s.repo.Update(ctx, user)
}

