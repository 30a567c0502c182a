package api

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// sniffLen is how much of the payload the detector sees. Matches the window
// used for existing stored objects.
const sniffLen = 2048

const (
	maxImageUploadBytes = 11 * 1024 * 1024
	maxFileUploadBytes  = 10 * 1024 * 1024
)

var allowedImageTypes = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/gif":  "gif",
}

// Scripts and executables stay out of the allow list on purpose.
var allowedFileTypes = map[string]string{
	"application/pdf": "pdf",
	"video/mp4":       "mp4",
}

// detectContentType sniffs the real content type from the payload's leading
// bytes and resolves it against the allow list. The declared Content-Type
// header is never consulted.
func detectContentType(payload []byte, allowed map[string]string) (contentType, ext string, err error) {
	head := payload
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	detected := mimetype.Detect(head)
	for mime, extension := range allowed {
		if detected.Is(mime) {
			return mime, extension, nil
		}
	}
	return "", "", fmt.Errorf("invalid file type %s, allowed: %s", detected.String(), allowedList(allowed))
}

func allowedList(allowed map[string]string) string {
	keys := make([]string, 0, len(allowed))
	for mime := range allowed {
		keys = append(keys, mime)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}
