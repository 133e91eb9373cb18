// src/security/validation/field_validator.go
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var ErrValidationFailed = fmt.Errorf("validation failed")

const (
	DefaultMaxStringLength = 255
	MaxRuleNameLength      = 100
	MaxCurrencyCodeLength  = 3
	MaxDescriptionLength   = 1024
)

var currencyCodeRegex = regexp.MustCompile(`^[A-Z]{3}$`)

// ValidateStringNotEmpty checks if a string is not empty after trimming.
func ValidateStringNotEmpty(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrValidationFailed, fieldName)
	}
	return nil
}

// ValidateStringMaxLength checks if a string's UTF-8 character count is within max bounds.
func ValidateStringMaxLength(s string, maxLength int, fieldName string) error {
	if utf8.RuneCountInString(s) > maxLength {
		return fmt.Errorf("%w: %s exceeds maximum length of %d characters", ErrValidationFailed, fieldName, maxLength)
	}
	return nil
}

// ValidateCurrencyCode checks if a currency code is 3 uppercase letters.
// Empty strings pass so callers can apply their own default.
func ValidateCurrencyCode(s string) error {
	trimmed := strings.ToUpper(strings.TrimSpace(s))
	if trimmed == "" {
		return nil
	}
	if err := ValidateStringMaxLength(trimmed, MaxCurrencyCodeLength, "Currency Code"); err != nil {
		return err
	}
	if !currencyCodeRegex.MatchString(trimmed) {
		return fmt.Errorf("%w: Currency Code ('%s') is not in the expected format (3 uppercase letters)", ErrValidationFailed, s)
	}
	return nil
}
