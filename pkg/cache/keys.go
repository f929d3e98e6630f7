package cache

import (
	"fmt"
	"strings"
	"unicode"
)

// ValidateKey checks if a cache key is valid.
//
// Rules:
// - Non-empty string
// - Maximum length of 250 characters
// - No control characters
// - No leading or trailing whitespace
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	if len(key) > 250 {
		return fmt.Errorf("%w: key too long (max 250 characters)", ErrInvalidKey)
	}

	for _, r := range key {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: key contains control character", ErrInvalidKey)
		}
	}

	if strings.TrimSpace(key) != key {
		return fmt.Errorf("%w: key has leading or trailing whitespace", ErrInvalidKey)
	}

	return nil
}

// SanitizeKey attempts to clean up a key to make it valid.
// Returns the sanitized key and any validation error that remains.
func SanitizeKey(key string) (string, error) {
	sanitized := strings.TrimSpace(key)

	var b strings.Builder
	for _, r := range sanitized {
		if !unicode.IsControl(r) {
			b.WriteRune(r)
		}
	}
	sanitized = b.String()

	if len(sanitized) > 250 {
		sanitized = sanitized[:250]
	}

	return sanitized, ValidateKey(sanitized)
}

// KeyPattern generates cache keys with a consistent naming convention,
// e.g. NewKeyPattern("decision", ":").Build("agent-7", "prompt-42").
type KeyPattern struct {
	prefix    string
	separator string
}

// NewKeyPattern creates a key pattern with the given prefix and separator.
// An empty separator defaults to ":".
func NewKeyPattern(prefix, separator string) *KeyPattern {
	if separator == "" {
		separator = ":"
	}
	return &KeyPattern{prefix: prefix, separator: separator}
}

// Build joins the prefix and parts into a cache key.
func (kp *KeyPattern) Build(parts ...string) string {
	if len(parts) == 0 {
		return kp.prefix
	}
	return kp.prefix + kp.separator + strings.Join(parts, kp.separator)
}

// MustBuild is like Build but panics if the resulting key is invalid.
func (kp *KeyPattern) MustBuild(parts ...string) string {
	key := kp.Build(parts...)
	if err := ValidateKey(key); err != nil {
		panic(fmt.Sprintf("invalid key generated: %v", err))
	}
	return key
}
