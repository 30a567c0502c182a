package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// UploadImage accepts a multipart image upload and returns the public URL of
// the stored object. Bound for avatars and product shots; the URL is what
// gets persisted in the user document instead of the payload itself.
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	h.handleUpload(w, r, h.Images, maxImageUploadBytes, allowedImageTypes)
}

// UploadFile is the generic document variant (invoices, receipts, clips).
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	h.handleUpload(w, r, h.Files, maxFileUploadBytes, allowedFileTypes)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request, uploader BlobUploader, maxBytes int64, allowed map[string]string) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	if uploader == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("blob storage is unavailable"))
		return
	}

	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid multipart payload"))
		return
	}

	var userID string
	var payload []byte
	var haveFile bool
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("read multipart data: %w", err))
			return
		}
		switch part.FormName() {
		case "file":
			if haveFile {
				_ = part.Close()
				continue
			}
			// The size gate runs before any type sniffing; an oversize
			// payload is rejected without inspecting its bytes.
			data, readErr := io.ReadAll(io.LimitReader(part, maxBytes+1))
			_ = part.Close()
			if readErr != nil {
				writeError(w, http.StatusBadRequest, fmt.Errorf("read upload: %w", readErr))
				return
			}
			if int64(len(data)) > maxBytes {
				writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("max file size allowed: %d", maxBytes))
				return
			}
			payload = data
			haveFile = true
		case "user_uuid":
			value, readErr := io.ReadAll(part)
			_ = part.Close()
			if readErr != nil {
				writeError(w, http.StatusBadRequest, fmt.Errorf("read form field: %w", readErr))
				return
			}
			userID = strings.TrimSpace(string(value))
		default:
			_ = part.Close()
		}
	}

	if userID == "" {
		writeError(w, http.StatusBadRequest, errors.New("user_uuid is required"))
		return
	}
	if !haveFile {
		writeError(w, http.StatusBadRequest, errors.New("file missing, expected an upload"))
		return
	}

	contentType, ext, err := detectContentType(payload, allowed)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	name := fmt.Sprintf("%s-%s.%s", userID, uuid.NewString(), ext)
	url, err := uploader.Upload(r.Context(), name, contentType, payload)
	if err != nil {
		h.logger().Error("blob upload failed", "name", name, "error", err)
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
