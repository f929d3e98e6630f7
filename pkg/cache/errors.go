package cache

import (
	"errors"
	"fmt"
	"strings"
)

// Common cache operation errors.
var (
	// ErrKeyNotFound is returned when a requested key does not exist in a tier
	ErrKeyNotFound = errors.New("cache: key not found")

	// ErrCacheMiss is an alias for ErrKeyNotFound
	ErrCacheMiss = ErrKeyNotFound

	// ErrInvalidKey is returned when a cache key is invalid (empty, too long, contains invalid characters)
	ErrInvalidKey = errors.New("cache: invalid key")

	// ErrTierUnavailable is returned when an external tier has been marked unavailable
	ErrTierUnavailable = errors.New("cache: tier unavailable")

	// ErrTimeout is returned when a tier operation exceeds its deadline
	ErrTimeout = errors.New("cache: operation timeout")

	// ErrCircuitOpen is returned when a resilience wrapper's circuit breaker is open
	ErrCircuitOpen = errors.New("cache: circuit breaker open")
)

// IsNotFound reports whether err indicates a cache miss.
// A miss is not a tier failure and must never disable a tier.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

// IsTimeout reports whether err indicates a tier operation timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsUnavailable reports whether err indicates a disabled tier.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrTierUnavailable)
}

// IsCircuitOpen reports whether err indicates an open circuit breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// ClassifyError returns a string classification of the error for metrics labels.
func ClassifyError(err error) string {
	if err == nil {
		return "none"
	}

	switch {
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_breaker_open"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrKeyNotFound):
		return "key_not_found"
	case errors.Is(err, ErrTierUnavailable):
		return "unavailable"
	case errors.Is(err, ErrInvalidKey):
		return "invalid_key"
	default:
		msg := strings.ToLower(err.Error())
		switch {
		case containsAny(msg, "connection", "connect", "dial"):
			return "connection"
		case containsAny(msg, "marshal", "unmarshal", "encode", "decode", "serialize"):
			return "serialization"
		case containsAny(msg, "redis", "postgres", "sql"):
			return "backend"
		default:
			return "other"
		}
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, substr := range substrs {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

// WrapError annotates an error with the tier and operation it came from.
func WrapError(err error, tier, operation string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("cache tier %s %s: %w", tier, operation, err)
}
