// pkg/nonce/nonce.go
package nonce

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Size is the fixed nonce length in bytes.
const Size = 32

// timestampLen is the length of the leading zero-padded millisecond
// timestamp segment. The trailing Size-timestampLen bytes are random.
const timestampLen = 16

// DefaultMaxAge is the freshness window applied when the caller does
// not specify one.
const DefaultMaxAge = 24 * time.Hour

var (
	ErrInvalidLength    = errors.New("nonce must be exactly 32 bytes")
	ErrInvalidTimestamp = errors.New("nonce timestamp segment is not a valid integer")
	ErrFutureNonce      = errors.New("nonce timestamp is in the future")
	ErrExpired          = errors.New("nonce has expired")
)

// Generate returns a fresh nonce: a zero-padded decimal millisecond
// timestamp in the first 16 bytes (ASCII) followed by 16 bytes of
// cryptographic randomness. The embedded timestamp lets a verifier
// check freshness without keeping a nonce registry.
func Generate() ([Size]byte, error) {
	return GenerateAt(time.Now())
}

// GenerateAt builds a nonce for the given instant. Exposed for callers
// that control their own clock.
func GenerateAt(now time.Time) ([Size]byte, error) {
	var n [Size]byte

	ts := fmt.Sprintf("%0*d", timestampLen, now.UnixMilli())
	copy(n[:timestampLen], ts)

	if _, err := rand.Read(n[timestampLen:]); err != nil {
		return n, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return n, nil
}

// Validate checks a nonce for well-formedness and freshness against
// the current clock. A nonce aged exactly maxAge is still valid.
func Validate(nonce []byte, maxAge time.Duration) error {
	return ValidateAt(nonce, maxAge, time.Now())
}

// ValidateAt is Validate with an explicit clock.
func ValidateAt(nonce []byte, maxAge time.Duration, now time.Time) error {
	if len(nonce) != Size {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidLength, len(nonce))
	}

	ms, err := strconv.ParseInt(string(nonce[:timestampLen]), 10, 64)
	if err != nil || ms < 0 {
		return fmt.Errorf("%w: %q", ErrInvalidTimestamp, string(nonce[:timestampLen]))
	}

	issued := time.UnixMilli(ms)
	if issued.After(now) {
		return fmt.Errorf("%w: issued at %s", ErrFutureNonce, issued.UTC().Format(time.RFC3339))
	}
	if now.Sub(issued) > maxAge {
		return fmt.Errorf("%w: issued at %s, max age %s", ErrExpired, issued.UTC().Format(time.RFC3339), maxAge)
	}
	return nil
}

// Timestamp extracts the embedded issue time from a well-formed nonce.
func Timestamp(nonce []byte) (time.Time, error) {
	if len(nonce) != Size {
		return time.Time{}, fmt.Errorf("%w: got %d bytes", ErrInvalidLength, len(nonce))
	}
	ms, err := strconv.ParseInt(string(nonce[:timestampLen]), 10, 64)
	if err != nil || ms < 0 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, string(nonce[:timestampLen]))
	}
	return time.UnixMilli(ms), nil
}
