package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxJSONSize bounds request bodies accepted by the API (in bytes).
const MaxJSONSize = 64 * 1024

// String length limits
const (
	MaxClassNameLength = 512
	MaxKeyLength       = 128
)

var (
	// ClassNamePattern allows dotted names with nested ('+') and generic
	// ('`') markers, e.g. "Moon.Shapes.Circle" or "List`1".
	ClassNamePattern = regexp.MustCompile("^[A-Za-z_][A-Za-z0-9_.+`-]*$")
	// KeyPattern allows alphanumeric, hyphens, underscores
	KeyPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	if value == "" {
		return nil
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}
	return nil
}

// ValidateClassName validates a fully-qualified class name
func ValidateClassName(name, fieldName string) error {
	if err := ValidateString(name, fieldName, 1, MaxClassNameLength, true); err != nil {
		return err
	}
	if !ClassNamePattern.MatchString(name) {
		return fmt.Errorf("%s is not a valid class name", fieldName)
	}
	if strings.Contains(name, "..") || strings.HasSuffix(name, ".") {
		return fmt.Errorf("%s has an empty name segment", fieldName)
	}
	return nil
}

// ValidateKey validates a scriptable object key or createable alias
func ValidateKey(key, fieldName string, required bool) error {
	if err := ValidateString(key, fieldName, 1, MaxKeyLength, required); err != nil {
		return err
	}
	if key != "" && !KeyPattern.MatchString(key) {
		return fmt.Errorf("%s contains invalid characters (only alphanumeric, hyphens, and underscores allowed)", fieldName)
	}
	return nil
}
