package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rollcall/apiserver/types"
)

// TokenConfig configures a TokenService.
type TokenConfig struct {
	Secret        []byte
	SigningMethod string
	TTL           time.Duration
	Issuer        string

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Claims is the decoded payload of a session token.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// Principal converts decoded claims into the acting principal.
func (c *Claims) Principal() (Principal, error) {
	roles := make([]types.Role, 0, len(c.Roles))
	for _, name := range c.Roles {
		role, err := types.ParseRole(name)
		if err != nil {
			return Principal{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		roles = append(roles, role)
	}
	return Principal{Username: c.Subject, Roles: roles}, nil
}

// IssuedToken is a freshly signed session token with its claims.
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
	Claims    Claims
}

// TokenService issues and validates HMAC-signed JWT session tokens.
// It holds only read-only configuration and is safe for concurrent use.
type TokenService struct {
	method *jwt.SigningMethodHMAC
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

// NewTokenService validates cfg and builds a TokenService.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token signing secret is required")
	}
	if cfg.TTL < 0 {
		return nil, errors.New("token ttl must not be negative")
	}

	alg := cfg.SigningMethod
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing method %q", alg)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(now),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	return &TokenService{
		method: method,
		secret: cfg.Secret,
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		now:    now,
		parser: jwt.NewParser(opts...),
	}, nil
}

// TTL returns the lifetime of issued tokens.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for user. Claims are taken from user as it is now and
// are never refreshed from the store afterwards.
func (s *TokenService) Issue(user types.User) (IssuedToken, error) {
	if strings.TrimSpace(user.Username) == "" {
		return IssuedToken{}, errors.New("cannot issue token without a username")
	}
	if !user.Role.Valid() {
		return IssuedToken{}, fmt.Errorf("cannot issue token: %w", &types.InvalidRoleError{Value: user.Role.String()})
	}

	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Roles: []string{user.Role.String()},
	}

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return IssuedToken{
		Token:     signed,
		ExpiresAt: claims.ExpiresAt.Time,
		Claims:    claims,
	}, nil
}

// Validate checks structure, then signature, then expiry, and returns the
// decoded claims. Errors are ErrMalformed, ErrInvalidSignature or ErrExpired.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, ErrMalformed
	}

	sig, err := base64.RawURLEncoding.Strict().DecodeString(parts[2])
	if err != nil {
		return nil, ErrInvalidSignature
	}
	if err := s.method.Verify(parts[0]+"."+parts[1], sig, s.secret); err != nil {
		return nil, ErrInvalidSignature
	}

	claims := &Claims{}
	_, err = s.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, ErrInvalidSignature
		default:
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}
	if len(claims.Roles) == 0 {
		return nil, fmt.Errorf("%w: missing roles", ErrMalformed)
	}
	if _, err := claims.Principal(); err != nil {
		return nil, err
	}
	return claims, nil
}
