package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/rollcall/apiserver/internal/auth"
	"github.com/rollcall/apiserver/internal/logging"
	"github.com/rollcall/apiserver/internal/store"
	"github.com/rollcall/apiserver/types"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// RegistrationStore persists pending identities and redeems their
// verification tokens.
type RegistrationStore interface {
	CreateWithVerification(ctx context.Context, user types.User, token types.VerificationToken) (types.User, error)
	GetByVerificationToken(ctx context.Context, tokenHash string) (types.User, types.VerificationToken, error)
	CompleteVerification(ctx context.Context, user types.User, token types.VerificationToken) error
}

// Notifier delivers a freshly minted verification token to its owner.
type Notifier interface {
	NotifyVerification(ctx context.Context, user types.User, token string) error
}

// RegisterRequest is the identity payload accepted by Register.
type RegisterRequest struct {
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	Password    string     `json:"password"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Role        string     `json:"role"`
}

// RegistrationResult carries the created identity and the raw verification
// token. The token is never persisted in this form.
type RegistrationResult struct {
	User              types.User `json:"user"`
	VerificationToken string     `json:"-"`
}

// VerificationResult is returned after a token is redeemed.
type VerificationResult struct {
	Username string
	Message  string
}

// ValidationError lists the payload fields that failed validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// RegistrationConfig tunes the registration flow.
type RegistrationConfig struct {
	VerificationTTL time.Duration
	Now             func() time.Time
}

// RegistrationService creates locked identities and unlocks them when their
// verification token is redeemed.
type RegistrationService struct {
	store    RegistrationStore
	hasher   *auth.PasswordHasher
	tokens   *auth.VerificationTokens
	notifier Notifier
	ttl      time.Duration
	now      func() time.Time
	log      logging.Logger
}

func NewRegistrationService(
	store RegistrationStore,
	hasher *auth.PasswordHasher,
	tokens *auth.VerificationTokens,
	notifier Notifier,
	cfg RegistrationConfig,
	log logging.Logger,
) *RegistrationService {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logging.Discard()
	}
	return &RegistrationService{
		store:    store,
		hasher:   hasher,
		tokens:   tokens,
		notifier: notifier,
		ttl:      cfg.VerificationTTL,
		now:      now,
		log:      log.With("component", "registration"),
	}
}

// Register creates a locked identity on behalf of an ADMIN caller and
// issues its verification token.
func (s *RegistrationService) Register(ctx context.Context, caller auth.Principal, req RegisterRequest) (RegistrationResult, error) {
	if err := auth.Authorize(caller, types.RoleAdmin); err != nil {
		return RegistrationResult{}, err
	}

	role, err := types.ParseRole(req.Role)
	if err != nil {
		return RegistrationResult{}, err
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if err := s.validate(req); err != nil {
		return RegistrationResult{}, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return RegistrationResult{}, fmt.Errorf("hash password: %w", err)
	}

	user := types.NewPendingUser(req.Username, req.Email, role, hash)
	user.FirstName = req.FirstName
	user.LastName = req.LastName
	user.DateOfBirth = req.DateOfBirth

	raw, tokenHash, err := s.tokens.Generate()
	if err != nil {
		return RegistrationResult{}, fmt.Errorf("generate verification token: %w", err)
	}

	created, err := s.store.CreateWithVerification(ctx, user, types.VerificationToken{TokenHash: tokenHash})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return RegistrationResult{}, auth.ErrDuplicateIdentity
		}
		return RegistrationResult{}, fmt.Errorf("create user: %w", err)
	}

	s.log.Info(ctx, "user registered", "username", created.Username, "role", created.Role.String(), "by", caller.Username)

	if s.notifier != nil {
		if err := s.notifier.NotifyVerification(ctx, created, raw); err != nil {
			s.log.Error(ctx, "verification notice failed", "username", created.Username, "error", err)
		}
	}

	return RegistrationResult{User: created, VerificationToken: raw}, nil
}

// Verify redeems a verification token and unlocks its identity. A token can
// be redeemed once.
func (s *RegistrationService) Verify(ctx context.Context, rawToken string) (VerificationResult, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return VerificationResult{}, auth.ErrInvalidToken
	}

	user, token, err := s.store.GetByVerificationToken(ctx, s.tokens.Hash(rawToken))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return VerificationResult{}, auth.ErrInvalidToken
		}
		return VerificationResult{}, fmt.Errorf("lookup verification token: %w", err)
	}

	if token.Redeemed() {
		return VerificationResult{}, auth.ErrAlreadyVerified
	}

	now := s.now()
	if s.ttl > 0 && now.Sub(token.CreatedAt) > s.ttl {
		return VerificationResult{}, auth.ErrVerificationExpired
	}

	user.Locked = false
	token.RedeemedAt = &now
	if err := s.store.CompleteVerification(ctx, user, token); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return VerificationResult{}, auth.ErrAlreadyVerified
		}
		return VerificationResult{}, fmt.Errorf("complete verification: %w", err)
	}

	s.log.Info(ctx, "user verified", "username", user.Username)
	return VerificationResult{
		Username: user.Username,
		Message:  fmt.Sprintf("User %s verified successfully", user.Username),
	}, nil
}

func (s *RegistrationService) validate(req RegisterRequest) error {
	now := s.now()
	err := validation.ValidateStruct(&req,
		validation.Field(&req.Username,
			validation.Required,
			validation.Length(3, 64),
			validation.Match(usernamePattern).Error("must start with a letter or digit and contain only letters, digits, dots, underscores and hyphens"),
		),
		validation.Field(&req.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&req.Password, validation.Required, validation.Length(8, 128), validation.By(maxBytes(auth.MaxPasswordBytes))),
		validation.Field(&req.FirstName, validation.Length(0, 100)),
		validation.Field(&req.LastName, validation.Length(0, 100)),
		validation.Field(&req.DateOfBirth, validation.By(notInFuture(now))),
	)
	if err == nil {
		return nil
	}

	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for field, ferr := range fieldErrs {
		out.Fields[field] = ferr.Error()
	}
	return out
}

// maxBytes limits the encoded length of a string. Length counts runes.
func maxBytes(n int) validation.RuleFunc {
	return func(value interface{}) error {
		s, ok := value.(string)
		if !ok || len(s) <= n {
			return nil
		}
		return fmt.Errorf("must be at most %d bytes", n)
	}
}

func notInFuture(now time.Time) validation.RuleFunc {
	return func(value interface{}) error {
		dob, ok := value.(*time.Time)
		if !ok || dob == nil {
			return nil
		}
		if dob.After(now) {
			return errors.New("must not be in the future")
		}
		return nil
	}
}
