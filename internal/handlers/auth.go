package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rollcall/apiserver/internal/auth"
	"github.com/rollcall/apiserver/internal/logging"
	"github.com/rollcall/apiserver/internal/services"
	"github.com/rollcall/apiserver/types"
)

const dateLayout = "2006-01-02"

// Authenticator is the login side of the auth service.
type Authenticator interface {
	TokenAuthenticator
	Login(ctx context.Context, username, password string) (services.LoginResult, error)
}

// Registrar creates identities and redeems verification tokens.
type Registrar interface {
	Register(ctx context.Context, caller auth.Principal, req services.RegisterRequest) (services.RegistrationResult, error)
	Verify(ctx context.Context, token string) (services.VerificationResult, error)
}

// AuthHandler provides login, registration and verification endpoints.
type AuthHandler struct {
	authn     Authenticator
	registrar Registrar
	log       logging.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(authn Authenticator, registrar Registrar, log logging.Logger) *AuthHandler {
	if log == nil {
		log = logging.Discard()
	}
	return &AuthHandler{authn: authn, registrar: registrar, log: log}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, authn Authenticator, registrar Registrar, log logging.Logger) {
	handler := NewAuthHandler(authn, registrar, log)
	requireAuth := RequireAuth(authn)

	r.Post("/login", handler.Login)
	r.Get("/roles", handler.Roles)
	r.Get("/verification/{token}", handler.Verify)
	r.With(requireAuth).Get("/me", handler.Me)
	r.With(requireAuth, RequireRole(types.RoleAdmin)).Post("/register", handler.Register)
}

// Login verifies credentials and returns a JWT.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	result, err := h.authn.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Register creates a locked account. The caller must be an ADMIN.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	payload := services.RegisterRequest{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
	}
	if dob := strings.TrimSpace(req.DateOfBirth); dob != "" {
		parsed, err := parseDate(dob)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ValidationErrorResponse{
				Error:  "validation failed",
				Fields: map[string]string{"date_of_birth": "must be a date in YYYY-MM-DD format"},
			})
			return
		}
		payload.DateOfBirth = &parsed
	}

	caller, _ := auth.PrincipalFromContext(r.Context())
	result, err := h.registrar.Register(r.Context(), caller, payload)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{
		Message: "User registered successfully",
		User:    result.User,
	})
}

// Verify redeems a verification token. It is reached from the emailed link,
// so it answers in plain text.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	result, err := h.registrar.Verify(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		status, msg := errorStatus(err)
		if status == http.StatusInternalServerError {
			h.log.Error(r.Context(), "verification failed", "error", err)
		}
		writeText(w, status, msg)
		return
	}
	writeText(w, http.StatusOK, result.Message)
}

// Me returns the principal carried by the caller's token.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	writeJSON(w, http.StatusOK, MeResponse{Username: principal.Username, Roles: principal.RoleNames()})
}

// Roles lists the assignable roles.
func (h *AuthHandler) Roles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, RolesResponse{Roles: types.RoleNames()})
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
	Role        string `json:"role"`
}

type RegisterResponse struct {
	Message string     `json:"message"`
	User    types.User `json:"user"`
}

type MeResponse struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

type RolesResponse struct {
	Roles []string `json:"roles"`
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
