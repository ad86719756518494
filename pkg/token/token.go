// pkg/token/token.go
package token

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/near/borsh-go"
)

// Record carries everything in an issued token: the signed payload
// fields plus the metadata a verifier needs (account, key, signature)
// and the signature-exempt State used for local CSRF correlation.
// Field order is fixed; reordering is a wire-format break.
type Record struct {
	AccountID   string
	PublicKey   string
	Signature   []byte
	Message     string
	Nonce       [32]uint8
	Recipient   string
	CallbackURL *string
	State       *string
}

// ParseError reports a token string that could not be decoded. The
// underlying decoding failure is preserved for diagnostics.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse token: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Encode serializes a record with borsh and wraps it in standard
// base64 for transport.
func Encode(r *Record) (string, error) {
	data, err := borsh.Serialize(*r)
	if err != nil {
		return "", fmt.Errorf("failed to serialize token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode is the inverse of Encode. Malformed base64 or a malformed
// binary structure yields a *ParseError; adversarial input must never
// panic.
//
// Decoding reads the borsh layout directly rather than going through
// the generic deserializer: absent optionals (presence byte 0) must
// come back as nil pointers, never as pointers to the zero value,
// because the signature is over the Some/None distinction.
func Decode(s string) (*Record, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &ParseError{Err: fmt.Errorf("invalid base64: %w", err)}
	}

	r, err := decodeRecord(data)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	return r, nil
}

func decodeRecord(data []byte) (*Record, error) {
	buf := bytes.NewReader(data)
	r := &Record{}
	var err error

	if r.AccountID, err = readString(buf); err != nil {
		return nil, fmt.Errorf("failed to read account ID: %w", err)
	}
	if r.PublicKey, err = readString(buf); err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}
	if r.Signature, err = readBytes(buf); err != nil {
		return nil, fmt.Errorf("failed to read signature: %w", err)
	}
	if r.Message, err = readString(buf); err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	if _, err = io.ReadFull(buf, r.Nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to read nonce: %w", err)
	}
	if r.Recipient, err = readString(buf); err != nil {
		return nil, fmt.Errorf("failed to read recipient: %w", err)
	}
	if r.CallbackURL, err = readOptionalString(buf); err != nil {
		return nil, fmt.Errorf("failed to read callback URL: %w", err)
	}
	if r.State, err = readOptionalString(buf); err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	if buf.Len() != 0 {
		return nil, fmt.Errorf("trailing data after token structure: %d bytes", buf.Len())
	}
	return r, nil
}

// readBytes reads a u32 little-endian length followed by that many
// bytes. The length is checked against the remaining input before
// allocating, so a corrupted prefix cannot demand gigabytes.
func readBytes(buf *bytes.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(buf, binary.LittleEndian, &length); err != nil {
		return nil, fmt.Errorf("failed to read length: %w", err)
	}
	if int(length) > buf.Len() {
		return nil, fmt.Errorf("length %d exceeds remaining %d bytes", length, buf.Len())
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(buf, data); err != nil {
		return nil, err
	}
	return data, nil
}

func readString(buf *bytes.Reader) (string, error) {
	data, err := readBytes(buf)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// readOptionalString reads a borsh Option<String>: presence byte 0
// means None (returned as nil), 1 means Some followed by the string.
func readOptionalString(buf *bytes.Reader) (*string, error) {
	presence, err := buf.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("failed to read presence byte: %w", err)
	}
	switch presence {
	case 0:
		return nil, nil
	case 1:
		s, err := readString(buf)
		if err != nil {
			return nil, err
		}
		return &s, nil
	default:
		return nil, fmt.Errorf("invalid presence byte %d", presence)
	}
}
