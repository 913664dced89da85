package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rollcall/apiserver/internal/auth"
	"github.com/rollcall/apiserver/types"
)

// TokenAuthenticator turns a bearer token into a principal.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Principal, error)
}

// RequireAuth validates the bearer token and stores the principal in the
// request context.
func RequireAuth(authn TokenAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}

			principal, err := authn.Authenticate(r.Context(), tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireRole allows the request through only if the principal holds one of
// roles. It must run after RequireAuth.
func RequireRole(roles ...types.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, _ := auth.PrincipalFromContext(r.Context())
			if err := auth.Authorize(principal, roles...); err != nil {
				status, msg := errorStatus(err)
				writeError(w, status, msg)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
