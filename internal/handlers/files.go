package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rollcall/apiserver/internal/auth"
	"github.com/rollcall/apiserver/internal/logging"
	"github.com/rollcall/apiserver/internal/services"
)

const maxUploadBytes = 64 << 20

// FileManager stores and retrieves per-user files.
type FileManager interface {
	Upload(ctx context.Context, caller auth.Principal, owner, name, contentType string, size int64, r io.Reader) (services.FileRef, error)
	Download(ctx context.Context, caller auth.Principal, owner, name string) (io.ReadCloser, services.FileRef, error)
	Delete(ctx context.Context, caller auth.Principal, owner, name string) error
}

// FileHandler exposes FileManager over HTTP.
type FileHandler struct {
	files    FileManager
	log      logging.Logger
	maxBytes int64
}

func NewFileHandler(files FileManager, log logging.Logger) *FileHandler {
	if log == nil {
		log = logging.Discard()
	}
	return &FileHandler{files: files, log: log, maxBytes: maxUploadBytes}
}

// FileRouter registers file routes. Every route requires authentication.
func FileRouter(r chi.Router, files FileManager, authn TokenAuthenticator, log logging.Logger) {
	fileRoutes(r, NewFileHandler(files, log), authn)
}

func fileRoutes(r chi.Router, handler *FileHandler, authn TokenAuthenticator) {
	r.Use(RequireAuth(authn))
	r.Put("/{name}", handler.Upload)
	r.Get("/{name}", handler.Download)
	r.Delete("/{name}", handler.Delete)
}

// Upload stores the raw request body. ?owner= lets an ADMIN write another
// user's file.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.PrincipalFromContext(r.Context())

	size := r.ContentLength
	if size > h.maxBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	body := http.MaxBytesReader(w, r.Body, h.maxBytes)

	ref, err := h.files.Upload(
		r.Context(),
		caller,
		r.URL.Query().Get("owner"),
		chi.URLParam(r, "name"),
		r.Header.Get("Content-Type"),
		size,
		body,
	)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}

func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.PrincipalFromContext(r.Context())

	rc, ref, err := h.files.Download(r.Context(), caller, r.URL.Query().Get("owner"), chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(ref.Name))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.log.Warn(r.Context(), "file download interrupted", "key", ref.Key, "error", err)
	}
}

func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.PrincipalFromContext(r.Context())

	if err := h.files.Delete(r.Context(), caller, r.URL.Query().Get("owner"), chi.URLParam(r, "name")); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
