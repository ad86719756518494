// pkg/auth/verify.go
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/busybox42/NearAuth/pkg/crypto"
	"github.com/busybox42/NearAuth/pkg/nonce"
	"github.com/busybox42/NearAuth/pkg/payload"
	"github.com/busybox42/NearAuth/pkg/registry"
	"github.com/busybox42/NearAuth/pkg/token"
)

// OwnershipLookup is the external trust anchor: it proves a public key
// is currently authorized to act for an account. The registry client
// implements it; tests substitute mocks.
type OwnershipLookup interface {
	VerifyOwner(ctx context.Context, accountID, publicKey string, requireFullAccessKey bool) error
}

// Result is returned only after every validation step and the
// cryptographic check succeed.
type Result struct {
	AccountID   string
	PublicKey   string
	Message     string
	CallbackURL *string
	State       *string
}

// Verifier runs the verification pipeline. It is stateless and safe
// for unbounded concurrent use; the only I/O is the ownership lookup.
type Verifier struct {
	lookup OwnershipLookup
}

// NewVerifier builds a Verifier backed by the public key registry.
func NewVerifier() *Verifier {
	return NewVerifierWith(registry.NewClient(nil))
}

// NewVerifierWith builds a Verifier with a custom ownership lookup.
func NewVerifierWith(lookup OwnershipLookup) *Verifier {
	return &Verifier{lookup: lookup}
}

// Verify decodes and validates a token. Checks run strictly in order:
// parse, nonce, recipient, state, message, ownership lookup, then the
// cryptographic signature check. Local checks come first so malformed
// tokens never cost a network call, and the network call comes before
// the signature so a stray key never costs the crypto work. The first
// failing step returns its typed error; nothing later runs.
func (v *Verifier) Verify(ctx context.Context, tokenString string, opts VerifyOptions) (*Result, error) {
	rec, err := token.Decode(tokenString)
	if err != nil {
		return nil, err
	}

	if err := checkNonce(rec, opts); err != nil {
		return nil, err
	}
	if err := checkRecipient(rec, opts.Recipient); err != nil {
		return nil, err
	}
	if err := checkState(rec, opts.State); err != nil {
		return nil, err
	}
	if err := checkMessage(rec, opts.Message); err != nil {
		return nil, err
	}

	if err := v.lookup.VerifyOwner(ctx, rec.AccountID, rec.PublicKey, opts.RequireFullAccessKey); err != nil {
		kind := OwnershipAPIFailure
		if errors.Is(err, registry.ErrNotAssociated) {
			kind = OwnershipKeyNotAssociated
		}
		return nil, &OwnershipError{Kind: kind, Err: err}
	}

	if err := checkSignature(rec); err != nil {
		return nil, err
	}

	return &Result{
		AccountID:   rec.AccountID,
		PublicKey:   rec.PublicKey,
		Message:     rec.Message,
		CallbackURL: rec.CallbackURL,
		State:       rec.State,
	}, nil
}

func checkNonce(rec *token.Record, opts VerifyOptions) error {
	if opts.Nonce.fn != nil {
		if !opts.Nonce.fn(rec.Nonce) {
			return &NonceError{Err: errors.New("custom nonce validation failed")}
		}
		return nil
	}

	maxAge := opts.NonceMaxAge
	if maxAge == 0 {
		maxAge = nonce.DefaultMaxAge
	}
	if err := nonce.Validate(rec.Nonce[:], maxAge); err != nil {
		return &NonceError{Err: err}
	}
	return nil
}

func checkRecipient(rec *token.Record, rule Rule) error {
	switch rule.kind {
	case ruleExact:
		if rec.Recipient != rule.exact {
			return &RecipientMismatchError{Expected: rule.exact, Actual: rec.Recipient}
		}
	case rulePredicate:
		if !rule.fn(rec.Recipient) {
			return &RecipientMismatchError{Actual: rec.Recipient, Custom: true}
		}
	}
	return nil
}

func checkState(rec *token.Record, rule Rule) error {
	switch rule.kind {
	case ruleExact:
		// A token with no state never matches an expected value; the
		// error reports "undefined" rather than "".
		if rec.State == nil || *rec.State != rule.exact {
			return &StateMismatchError{Expected: rule.exact, Actual: rec.State}
		}
	case rulePredicate:
		if rec.State == nil || !rule.fn(*rec.State) {
			return &StateMismatchError{Actual: rec.State, Custom: true}
		}
	}
	return nil
}

func checkMessage(rec *token.Record, rule Rule) error {
	switch rule.kind {
	case ruleExact:
		if rec.Message != rule.exact {
			return &MessageMismatchError{Expected: rule.exact, Actual: rec.Message}
		}
	case rulePredicate:
		if !rule.fn(rec.Message) {
			return &MessageMismatchError{Actual: rec.Message, Custom: true}
		}
	}
	return nil
}

// checkSignature rebuilds the signed payload from the decoded token's
// own fields, never from options, and verifies the signature over its
// hash.
func checkSignature(rec *token.Record) error {
	pub, err := crypto.ParsePublicKey(rec.PublicKey)
	if err != nil {
		kind := SignatureInvalid
		if errors.Is(err, crypto.ErrUnsupportedKeyType) {
			kind = SignatureUnsupportedKeyType
		}
		return &SignatureError{Kind: kind, Err: err}
	}

	hash, err := payload.HashPayload(&payload.SignedPayload{
		Message:     rec.Message,
		Nonce:       rec.Nonce,
		Recipient:   rec.Recipient,
		CallbackURL: rec.CallbackURL,
	})
	if err != nil {
		return &SignatureError{Kind: SignatureInvalid, Err: fmt.Errorf("failed to rebuild payload: %w", err)}
	}

	if !crypto.VerifyHash(hash, rec.Signature, pub) {
		return &SignatureError{Kind: SignatureInvalid, Err: errors.New("signature does not match payload")}
	}
	return nil
}
