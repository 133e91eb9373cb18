// src/security/validation/file_validation.go
package validation

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/username/finledger/backend/src/logger"
)

// AllowedClientContentTypes is a map for quick lookup of allowed client-declared
// MIME types. CSV arrives under several historical names.
var AllowedClientContentTypes = map[string]bool{
	"text/csv":                 true,
	"application/csv":          true,
	"application/vnd.ms-excel": true, // often used for CSV by older Excel
	"text/plain":               true,
	"application/json":         true,
	"application/octet-stream": false,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": false, // .xlsx explicitly disallow
}

// ValidateClientContentType checks the Content-Type header provided by the client.
func ValidateClientContentType(contentType string) error {
	normalized := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if allowed, exists := AllowedClientContentTypes[normalized]; !exists || !allowed {
		logger.L.Warn("Disallowed client-declared Content-Type", "contentType", contentType)
		return fmt.Errorf("client-declared file type '%s' is not allowed for import", contentType)
	}
	return nil
}

// isBinaryContent checks if a buffer contains binary control characters (like
// null bytes) which indicate the file is not a valid text-based CSV/JSON.
func isBinaryContent(buf []byte) bool {
	if bytes.IndexByte(buf, 0) != -1 {
		return true
	}
	if !utf8.Valid(buf) {
		return true
	}
	return false
}

// ValidateFileContent inspects the leading bytes of an upload to reject binary
// payloads and anything whose sniffed type is not a text or JSON format. It
// returns the detected content type.
func ValidateFileContent(content []byte) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("file is empty")
	}

	sample := content
	if len(sample) > 1024 {
		sample = sample[:1024]
		// The cut can split a multibyte rune at the boundary; trim the
		// partial rune so valid UTF-8 is not flagged as binary.
		for i := 0; i < utf8.UTFMax-1 && len(sample) > 0 && !utf8.Valid(sample); i++ {
			sample = sample[:len(sample)-1]
		}
	}

	if isBinaryContent(sample) {
		logger.L.Warn("File rejected: binary content detected in text upload")
		return "application/octet-stream", fmt.Errorf("file appears to be binary or executable, not CSV/JSON")
	}

	detectedContentType := http.DetectContentType(sample)
	detectedContentType = strings.ToLower(strings.Split(detectedContentType, ";")[0])

	allowedDetectedTypes := map[string]bool{
		"text/plain":       true,
		"text/csv":         true,
		"application/csv":  true,
		"application/json": true,
	}

	if !allowedDetectedTypes[detectedContentType] {
		if detectedContentType == "application/octet-stream" {
			logger.L.Warn("File rejected: content type detected as octet-stream (ambiguous)")
		} else {
			logger.L.Warn("Disallowed detected file content type", "detectedContentType", detectedContentType)
		}
		return detectedContentType, fmt.Errorf("detected file content type '%s' is not allowed", detectedContentType)
	}

	logger.L.Debug("File content type validated", "detectedContentType", detectedContentType)
	return detectedContentType, nil
}
