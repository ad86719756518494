// pkg/payload/payload.go
package payload

import (
	"crypto/sha256"
	"fmt"

	"github.com/near/borsh-go"
)

// MessageTag is the NEP-413 discriminant (2^31 + 413) prepended to the
// serialized payload before hashing. It keeps off-chain message
// signatures from ever colliding with signable on-chain transactions.
const MessageTag uint32 = 2147484061

// SignedPayload is the message a key holder actually signs. Field
// order is part of the wire contract: two implementations must produce
// byte-identical encodings for the same logical payload, because the
// signature covers exactly these bytes.
type SignedPayload struct {
	Message     string
	Nonce       [32]uint8
	Recipient   string
	CallbackURL *string
}

// Encode serializes the tag followed by the payload with borsh. The
// optional CallbackURL uses borsh's explicit presence byte, so an
// absent URL encodes identically everywhere.
func Encode(p *SignedPayload) ([]byte, error) {
	tag, err := borsh.Serialize(MessageTag)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize message tag: %w", err)
	}

	body, err := borsh.Serialize(*p)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload: %w", err)
	}

	return append(tag, body...), nil
}

// Hash returns the SHA-256 digest of a canonical encoding. Signatures
// are made over this digest, not the raw encoding, so payload size
// never changes the crypto primitive's input shape.
func Hash(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// HashPayload encodes and hashes in one step.
func HashPayload(p *SignedPayload) ([32]byte, error) {
	data, err := Encode(p)
	if err != nil {
		return [32]byte{}, err
	}
	return Hash(data), nil
}
