// Package api implements the HTTP route layer: request validation, MIME
// sniffing, object naming, and the mapping from gateway faults to status
// codes. Handlers hold gateway interfaces so tests can swap in stubs.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/NeilR2s/cold-start-marketplace/internal/directory"
	"github.com/NeilR2s/cold-start-marketplace/internal/shared"
)

// UserDirectory is the slice of the user directory gateway the routes call.
type UserDirectory interface {
	Create(ctx context.Context, params directory.CreateParams) (directory.User, error)
	Search(ctx context.Context, term string, limit int) ([]directory.Projection, error)
	UpdateGeneral(ctx context.Context, id string, update directory.GeneralUpdate) error
	UpdateVerification(ctx context.Context, id string, isVerified bool, trustScore *int) error
	UpdateTwist(ctx context.Context, id string, updates map[string]any) error
	Delete(ctx context.Context, id string) error
}

// BlobUploader is the slice of the blob gateway the upload routes call.
type BlobUploader interface {
	Upload(ctx context.Context, name, contentType string, payload []byte) (string, error)
}

type Handler struct {
	Directory UserDirectory
	Images    BlobUploader
	Files     BlobUploader

	// APIPrefix is the mount point of the versioned routes, e.g. "/api/v1".
	APIPrefix string
	// CredentialsLoaded reports whether a dotenv file was found at startup.
	CredentialsLoaded bool
	Logger            *slog.Logger
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "cold-start marketplace backend is running",
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "healthy",
		"credentials_loaded": h.CredentialsLoaded,
	})
}

// faultStatus maps gateway faults and validation errors to status codes.
// Anything unclassified is surfaced as a 500 with the error text only.
func faultStatus(err error) int {
	if errors.Is(err, shared.ErrValidation) {
		return http.StatusBadRequest
	}
	if kind, ok := shared.KindOf(err); ok {
		switch kind {
		case shared.KindNotFound:
			return http.StatusNotFound
		case shared.KindConflict:
			return http.StatusConflict
		case shared.KindTransient, shared.KindUnavailable:
			return http.StatusServiceUnavailable
		}
	}
	return http.StatusInternalServerError
}

func writeFault(w http.ResponseWriter, err error) {
	writeError(w, faultStatus(err), err)
}
