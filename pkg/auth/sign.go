// pkg/auth/sign.go
package auth

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/busybox42/NearAuth/pkg/crypto"
	"github.com/busybox42/NearAuth/pkg/nonce"
	"github.com/busybox42/NearAuth/pkg/payload"
	"github.com/busybox42/NearAuth/pkg/token"
)

// SignedMessage is what a signer capability returns: the signature
// plus the identity it was made under. AccountID may be empty when the
// signer does not know it (raw keys).
type SignedMessage struct {
	Signature []byte
	PublicKey string
	AccountID string
}

// MessageSigner is the single capability a key custodian exposes:
// sign one canonical payload. Wallets and other out-of-process
// custodians implement this without revealing the private key;
// KeySigner implements it for raw in-process keys.
type MessageSigner interface {
	SignMessage(ctx context.Context, p *payload.SignedPayload) (*SignedMessage, error)
}

// KeySigner signs with a raw in-process private key. It does not know
// which account the key belongs to; the caller supplies the account in
// SignOptions.
type KeySigner struct {
	priv ed25519.PrivateKey
	pub  string
}

// NewKeySigner parses a curve-prefixed base58 private key string.
func NewKeySigner(privateKey string) (*KeySigner, error) {
	priv, err := crypto.ParsePrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return &KeySigner{
		priv: priv,
		pub:  crypto.EncodePublicKey(priv.Public().(ed25519.PublicKey)),
	}, nil
}

// PublicKey returns the signer's curve-prefixed public key string.
func (s *KeySigner) PublicKey() string {
	return s.pub
}

// SignMessage implements MessageSigner.
func (s *KeySigner) SignMessage(_ context.Context, p *payload.SignedPayload) (*SignedMessage, error) {
	hash, err := payload.HashPayload(p)
	if err != nil {
		return nil, err
	}
	return &SignedMessage{
		Signature: crypto.SignHash(hash, s.priv),
		PublicKey: s.pub,
	}, nil
}

// SignOptions configures token issuance.
type SignOptions struct {
	// Signer produces the signature. Use KeySigner for a raw key or
	// any MessageSigner implementation for delegated custody.
	Signer MessageSigner

	// AccountID is the account the token claims. Required with a
	// signer that does not report one; when set it takes precedence
	// over the signer's reported account.
	AccountID string

	Recipient   string
	CallbackURL *string
	State       *string

	// Nonce overrides the generated anti-replay nonce.
	Nonce *[32]byte
}

// SignMessage issues an encoded auth token for message. The signature
// covers message, nonce, recipient and callback URL; State rides along
// outside the signature for local correlation only.
func SignMessage(ctx context.Context, message string, opts SignOptions) (string, error) {
	if opts.Signer == nil {
		return "", errors.New("signer is required")
	}
	if opts.Recipient == "" {
		return "", errors.New("recipient is required")
	}

	var n [32]byte
	if opts.Nonce != nil {
		n = *opts.Nonce
	} else {
		generated, err := nonce.Generate()
		if err != nil {
			return "", fmt.Errorf("failed to generate nonce: %w", err)
		}
		n = generated
	}

	signed, err := opts.Signer.SignMessage(ctx, &payload.SignedPayload{
		Message:     message,
		Nonce:       n,
		Recipient:   opts.Recipient,
		CallbackURL: opts.CallbackURL,
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}

	accountID := opts.AccountID
	if accountID == "" {
		accountID = signed.AccountID
	}
	if accountID == "" {
		return "", errors.New("account ID is required when the signer does not report one")
	}

	return token.Encode(&token.Record{
		AccountID:   accountID,
		PublicKey:   signed.PublicKey,
		Signature:   signed.Signature,
		Message:     message,
		Nonce:       n,
		Recipient:   opts.Recipient,
		CallbackURL: opts.CallbackURL,
		State:       opts.State,
	})
}
