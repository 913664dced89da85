package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rollcall/apiserver/internal/auth"
	"github.com/rollcall/apiserver/internal/logging"
	"github.com/rollcall/apiserver/internal/services"
	"github.com/rollcall/apiserver/types"
)

const maxJSONBodyBytes = 1 << 20

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RoleErrorResponse is returned when a requested role is not recognized.
type RoleErrorResponse struct {
	Error      string   `json:"error"`
	ValidRoles []string `json:"valid_roles"`
}

// ValidationErrorResponse lists rejected payload fields.
type ValidationErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// errorStatus maps a service error to its HTTP status and public message.
// Credential, account-state and token failures all collapse to one
// "unauthenticated" answer.
func errorStatus(err error) (int, string) {
	switch {
	case auth.IsUnauthenticated(err):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, types.ErrInvalidRole):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, auth.ErrDuplicateIdentity):
		return http.StatusConflict, err.Error()
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, auth.ErrAlreadyVerified):
		return http.StatusConflict, err.Error()
	case errors.Is(err, auth.ErrVerificationExpired):
		return http.StatusGone, err.Error()
	case errors.Is(err, services.ErrEmptyFile), errors.Is(err, services.ErrInvalidFileName):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrFileNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, services.ErrStorageDisabled):
		return http.StatusServiceUnavailable, err.Error()
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge, "request body too large"
	}
	return http.StatusInternalServerError, "internal server error"
}

func writeServiceError(w http.ResponseWriter, r *http.Request, log logging.Logger, err error) {
	var roleErr *types.InvalidRoleError
	if errors.As(err, &roleErr) {
		writeJSON(w, http.StatusBadRequest, RoleErrorResponse{Error: roleErr.Error(), ValidRoles: roleErr.ValidRoles()})
		return
	}
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, ValidationErrorResponse{Error: "validation failed", Fields: verr.Fields})
		return
	}

	status, msg := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, msg)
}
