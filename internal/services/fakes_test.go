package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rollcall/apiserver/internal/auth"
	"github.com/rollcall/apiserver/internal/store"
	"github.com/rollcall/apiserver/types"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// memStore is an in-memory stand-in for store.UserRepository.
type memStore struct {
	mu      sync.Mutex
	nextID  int
	users   map[int]types.User
	tokens  map[string]types.VerificationToken
	creates int
	err     error
}

func newMemStore() *memStore {
	return &memStore{users: map[int]types.User{}, tokens: map[string]types.VerificationToken{}}
}

func (m *memStore) GetByUsername(_ context.Context, username string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return types.User{}, m.err
	}
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memStore) insertLocked(user types.User) (types.User, error) {
	for _, u := range m.users {
		if u.Username == user.Username || u.Email == user.Email {
			return types.User{}, store.ErrDuplicate
		}
	}
	m.nextID++
	user.ID = m.nextID
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = user
	m.creates++
	return user, nil
}

func (m *memStore) Create(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return types.User{}, m.err
	}
	return m.insertLocked(user)
}

func (m *memStore) CreateWithVerification(_ context.Context, user types.User, token types.VerificationToken) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return types.User{}, m.err
	}
	created, err := m.insertLocked(user)
	if err != nil {
		return types.User{}, err
	}
	token.ID = len(m.tokens) + 1
	token.UserID = created.ID
	token.CreatedAt = created.CreatedAt
	m.tokens[token.TokenHash] = token
	return created, nil
}

func (m *memStore) GetByVerificationToken(_ context.Context, tokenHash string) (types.User, types.VerificationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return types.User{}, types.VerificationToken{}, m.err
	}
	token, ok := m.tokens[tokenHash]
	if !ok {
		return types.User{}, types.VerificationToken{}, store.ErrNotFound
	}
	return m.users[token.UserID], token, nil
}

func (m *memStore) CompleteVerification(_ context.Context, user types.User, token types.VerificationToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.tokens[token.TokenHash]
	if !ok {
		return store.ErrNotFound
	}
	if current.Redeemed() {
		return store.ErrConflict
	}
	current.RedeemedAt = token.RedeemedAt
	m.tokens[token.TokenHash] = current
	stored := m.users[user.ID]
	stored.Locked = user.Locked
	m.users[user.ID] = stored
	return nil
}

func (m *memStore) Update(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	m.users[user.ID] = user
	return user, nil
}

func (m *memStore) backdateTokens(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, tok := range m.tokens {
		tok.CreatedAt = tok.CreatedAt.Add(-d)
		m.tokens[k] = tok
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	users  []types.User
	tokens []string
	err    error
}

func (n *recordingNotifier) NotifyVerification(_ context.Context, user types.User, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.users = append(n.users, user)
	n.tokens = append(n.tokens, token)
	return n.err
}

func newHasher(t *testing.T) *auth.PasswordHasher {
	t.Helper()
	h, err := auth.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	return h
}

func newTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	svc, err := auth.NewTokenService(auth.TokenConfig{Secret: testSecret, TTL: time.Hour, Issuer: "rollcall-test"})
	require.NoError(t, err)
	return svc
}

func newVerificationTokens(t *testing.T) *auth.VerificationTokens {
	t.Helper()
	v, err := auth.NewVerificationTokens(testSecret)
	require.NoError(t, err)
	return v
}

func adminPrincipal() auth.Principal {
	return auth.Principal{Username: "root", Roles: []types.Role{types.RoleAdmin}}
}
