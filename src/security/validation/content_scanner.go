// src/security/validation/content_scanner.go
package validation

import (
	"fmt"
	"strings"

	"github.com/username/finledger/backend/src/logger"
)

func truncateForLog(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

// CheckFormulaInjection detects if a string starts with characters common in
// CSV formula injection. Excel also treats tab and carriage return prefixes
// as triggers.
func CheckFormulaInjection(s, fieldName, contextID string) error {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	switch trimmed[0] {
	case '=', '+', '-', '@', '\t', '\r':
		errMsg := fmt.Sprintf("potential formula injection pattern detected in field '%s'", fieldName)
		logger.L.Warn(errMsg, "contextID", contextID, "contentPreview", truncateForLog(s, 50))
		return fmt.Errorf("%w: %s", ErrValidationFailed, errMsg)
	}
	return nil
}
