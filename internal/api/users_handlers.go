package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/NeilR2s/cold-start-marketplace/internal/directory"
)

const (
	maxSearchLimit     = 50
	defaultSearchLimit = 20
	minSearchTermLen   = 2
)

type createUserRequest struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
	// Pointer so a missing key is distinguishable from an explicitly
	// empty avatar; the key is required, the value may be "".
	AvatarURL *string `json:"avatarUrl"`
}

type updateGeneralRequest struct {
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

type updateVerificationRequest struct {
	IsVerified *bool `json:"is_verified"`
	TrustScore *int  `json:"trust_score"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Users dispatches the users subtree: create, search, the three targeted
// patches, and delete.
func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, h.APIPrefix+"/users"), "/")
	switch {
	case rest == "":
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
			return
		}
		h.createUser(w, r)
	case rest == "search":
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
			return
		}
		h.searchUsers(w, r)
	default:
		parts := strings.Split(rest, "/")
		id := strings.TrimSpace(parts[0])
		if id == "" || len(parts) > 2 {
			writeError(w, http.StatusNotFound, errors.New("not found"))
			return
		}
		if len(parts) == 1 {
			if r.Method != http.MethodDelete {
				w.Header().Set("Allow", "DELETE")
				writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
				return
			}
			h.deleteUser(w, r, id)
			return
		}
		if r.Method != http.MethodPatch {
			w.Header().Set("Allow", "PATCH")
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
			return
		}
		switch parts[1] {
		case "general":
			h.updateGeneral(w, r, id)
		case "verification":
			h.updateVerification(w, r, id)
		case "twist":
			h.updateTwist(w, r, id)
		default:
			writeError(w, http.StatusNotFound, errors.New("not found"))
		}
	}
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, http.StatusBadRequest, errors.New("id is required"))
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, errors.New("email is required"))
		return
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		writeError(w, http.StatusBadRequest, errors.New("displayName is required"))
		return
	}
	if req.AvatarURL == nil {
		writeError(w, http.StatusBadRequest, errors.New("avatarUrl is required"))
		return
	}

	user, err := h.Directory.Create(r.Context(), directory.CreateParams{
		ID:          req.ID,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Role:        req.Role,
		AvatarURL:   *req.AvatarURL,
	})
	if err != nil {
		h.logger().Error("user create failed", "user_id", req.ID, "error", err)
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) searchUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := defaultSearchLimit
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be a number, got %q", raw))
			return
		}
		if parsed <= 0 || parsed > maxSearchLimit {
			writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be between 1 and %d", maxSearchLimit))
			return
		}
		limit = parsed
	}

	// Sub-minimum terms yield an empty result rather than an error; the
	// store is never consulted for them.
	term := strings.TrimSpace(query.Get("term"))
	if len(term) < minSearchTermLen {
		writeJSON(w, http.StatusOK, []directory.Projection{})
		return
	}

	results, err := h.Directory.Search(r.Context(), term, limit)
	if err != nil {
		h.logger().Error("user search failed", "term", term, "error", err)
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) updateGeneral(w http.ResponseWriter, r *http.Request, id string) {
	var req updateGeneralRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	err := h.Directory.UpdateGeneral(r.Context(), id, directory.GeneralUpdate{
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "success", Message: "General info updated"})
}

func (h *Handler) updateVerification(w http.ResponseWriter, r *http.Request, id string) {
	var req updateVerificationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.IsVerified == nil {
		writeError(w, http.StatusBadRequest, errors.New("is_verified is required"))
		return
	}
	if err := h.Directory.UpdateVerification(r.Context(), id, *req.IsVerified, req.TrustScore); err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "success", Message: "Verification data updated"})
}

func (h *Handler) updateTwist(w http.ResponseWriter, r *http.Request, id string) {
	var updates map[string]any
	if err := decodeJSONAllowUnknown(r, &updates); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.Directory.UpdateTwist(r.Context(), id, updates); err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "success", Message: "Twist data updated"})
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.Directory.Delete(r.Context(), id); err != nil {
		if status := faultStatus(err); status == http.StatusNotFound {
			writeError(w, http.StatusNotFound, fmt.Errorf("user %s not found", id))
			return
		}
		h.logger().Error("user delete failed", "user_id", id, "error", err)
		writeFault(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
