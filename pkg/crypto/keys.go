// pkg/crypto/keys.go
package crypto

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
)

// ED25519Prefix tags key strings with the curve they belong to, e.g.
// "ed25519:DcA2MzgpJbrUATQLLceocVckhhAqrkingax4oJ9kZ847".
const ED25519Prefix = "ed25519:"

// ErrUnsupportedKeyType reports a key string whose curve prefix is not
// ed25519. Kept distinct from malformed-key errors so callers can tell
// "wrong curve" from "garbage" when diagnosing a failed verification.
var ErrUnsupportedKeyType = errors.New("unsupported key type")

// ParsePublicKey decodes a curve-prefixed base58 public key string.
func ParsePublicKey(s string) (ed25519.PublicKey, error) {
	raw, err := decodeKeyData(s)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key length: got %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// ParsePrivateKey decodes a curve-prefixed base58 private key string.
// Both the 64-byte seed-plus-public form and a bare 32-byte seed are
// accepted.
func ParsePrivateKey(s string) (ed25519.PrivateKey, error) {
	raw, err := decodeKeyData(s)
	if err != nil {
		return nil, err
	}
	switch len(raw) {
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	default:
		return nil, fmt.Errorf("invalid private key length: got %d bytes, want %d or %d", len(raw), ed25519.PrivateKeySize, ed25519.SeedSize)
	}
}

// EncodePublicKey renders a public key in the curve-prefixed base58
// form used throughout the token format.
func EncodePublicKey(pub ed25519.PublicKey) string {
	return ED25519Prefix + base58.Encode(pub)
}

// SignHash signs a 32-byte payload digest.
func SignHash(hash [32]byte, priv ed25519.PrivateKey) []byte {
	return ed25519.Sign(priv, hash[:])
}

// VerifyHash checks a signature over a 32-byte payload digest.
func VerifyHash(hash [32]byte, signature []byte, pub ed25519.PublicKey) bool {
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, hash[:], signature)
}

func decodeKeyData(s string) ([]byte, error) {
	if !strings.HasPrefix(s, ED25519Prefix) {
		curve := s
		if i := strings.Index(s, ":"); i >= 0 {
			curve = s[:i]
		}
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKeyType, curve)
	}

	raw := base58.Decode(strings.TrimPrefix(s, ED25519Prefix))
	if len(raw) == 0 {
		return nil, fmt.Errorf("invalid base58 key data")
	}
	return raw, nil
}
