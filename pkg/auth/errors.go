// pkg/auth/errors.go
package auth

import "fmt"

// NonceError reports a nonce that failed either the default freshness
// check or a caller-supplied predicate.
type NonceError struct {
	Err error
}

func (e *NonceError) Error() string {
	return fmt.Sprintf("nonce validation failed: %v", e.Err)
}

func (e *NonceError) Unwrap() error {
	return e.Err
}

// RecipientMismatchError names both sides of a failed recipient check.
// Expected is empty when a custom predicate rejected the value.
type RecipientMismatchError struct {
	Expected string
	Actual   string
	Custom   bool
}

func (e *RecipientMismatchError) Error() string {
	if e.Custom {
		return fmt.Sprintf("custom recipient validation failed for %q", e.Actual)
	}
	return fmt.Sprintf("recipient mismatch: expected %q, got %q", e.Expected, e.Actual)
}

// StateMismatchError reports a failed state check. Absent state is a
// distinct "undefined" value, never conflated with the empty string.
type StateMismatchError struct {
	Expected string
	Actual   *string
	Custom   bool
}

func (e *StateMismatchError) Error() string {
	actual := "undefined"
	if e.Actual != nil {
		actual = fmt.Sprintf("%q", *e.Actual)
	}
	if e.Custom {
		return fmt.Sprintf("custom state validation failed for %s", actual)
	}
	return fmt.Sprintf("state mismatch: expected %q, got %s", e.Expected, actual)
}

// MessageMismatchError reports a failed message check.
type MessageMismatchError struct {
	Expected string
	Actual   string
	Custom   bool
}

func (e *MessageMismatchError) Error() string {
	if e.Custom {
		return fmt.Sprintf("custom message validation failed for %q", e.Actual)
	}
	return fmt.Sprintf("message mismatch: expected %q, got %q", e.Expected, e.Actual)
}

// OwnershipKind distinguishes a registry that could not answer from a
// registry that answered "no".
type OwnershipKind int

const (
	// OwnershipAPIFailure covers transport failures, non-success HTTP
	// statuses and malformed registry responses.
	OwnershipAPIFailure OwnershipKind = iota
	// OwnershipKeyNotAssociated means the registry answered but the
	// key does not belong to the claimed account.
	OwnershipKeyNotAssociated
)

// OwnershipError reports a failed account/key-ownership check.
type OwnershipError struct {
	Kind OwnershipKind
	Err  error
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("ownership verification failed: %v", e.Err)
}

func (e *OwnershipError) Unwrap() error {
	return e.Err
}

// SignatureKind distinguishes an unusable key from a signature that
// simply does not verify.
type SignatureKind int

const (
	// SignatureUnsupportedKeyType means the token's public key carries
	// a curve prefix this verifier does not support.
	SignatureUnsupportedKeyType SignatureKind = iota
	// SignatureInvalid means the key parsed but the cryptographic
	// check failed.
	SignatureInvalid
)

// SignatureError reports a failed cryptographic verification.
type SignatureError struct {
	Kind SignatureKind
	Err  error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("signature verification failed: %v", e.Err)
}

func (e *SignatureError) Unwrap() error {
	return e.Err
}

// ConfigError reports options that could never be satisfied, such as
// supplying both an exact value and a predicate for the same axis.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid verification options: %s", e.Reason)
}
