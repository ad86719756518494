// pkg/auth/verify_test.go
package auth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"github.com/busybox42/NearAuth/pkg/crypto"
	"github.com/busybox42/NearAuth/pkg/nonce"
	"github.com/busybox42/NearAuth/pkg/registry"
	"github.com/busybox42/NearAuth/pkg/token"
	"github.com/stretchr/testify/require"
)

// mockLookup counts calls and answers from a fixed account set, so
// tests can assert both outcomes and whether the network step ran.
// The counter is mutex-guarded; the pipeline is exercised
// concurrently.
type mockLookup struct {
	owners map[string][]string // public key -> account IDs
	err    error

	mu    sync.Mutex
	calls int
}

func (m *mockLookup) VerifyOwner(_ context.Context, accountID, publicKey string, _ bool) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	for _, owner := range m.owners[publicKey] {
		if owner == accountID {
			return nil
		}
	}
	return fmt.Errorf("%w: account %q", registry.ErrNotAssociated, accountID)
}

func (m *mockLookup) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type testIdentity struct {
	signer    *KeySigner
	publicKey string
	lookup    *mockLookup
}

func newTestIdentity(t *testing.T, accountID string) *testIdentity {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	signer, err := NewKeySigner(crypto.ED25519Prefix + base58.Encode(priv))
	require.NoError(t, err)

	return &testIdentity{
		signer:    signer,
		publicKey: signer.PublicKey(),
		lookup: &mockLookup{
			owners: map[string][]string{signer.PublicKey(): {accountID}},
		},
	}
}

func (id *testIdentity) token(t *testing.T, accountID, message, recipient string) string {
	t.Helper()
	tok, err := SignMessage(context.Background(), message, SignOptions{
		Signer:    id.signer,
		AccountID: accountID,
		Recipient: recipient,
	})
	require.NoError(t, err)
	return tok
}

func TestVerifyRoundTrip(t *testing.T) {
	id := newTestIdentity(t, "alice.near")
	tok := id.token(t, "alice.near", "login attempt", "app.near")

	result, err := NewVerifierWith(id.lookup).Verify(context.Background(), tok, VerifyOptions{
		Recipient: Exact("app.near"),
	})
	require.NoError(t, err)
	require.Equal(t, "alice.near", result.AccountID)
	require.Equal(t, "login attempt", result.Message)
	require.Equal(t, id.publicKey, result.PublicKey)
	require.Nil(t, result.CallbackURL)
	require.Nil(t, result.State)
	require.Equal(t, 1, id.lookup.callCount())
}

func TestVerifyRecipientMismatch(t *testing.T) {
	id := newTestIdentity(t, "alice.near")
	tok := id.token(t, "alice.near", "login attempt", "app.near")

	_, err := NewVerifierWith(id.lookup).Verify(context.Background(), tok, VerifyOptions{
		Recipient: Exact("other.near"),
	})
	var mismatch *RecipientMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, "other.near", mismatch.Expected)
	require.Equal(t, "app.near", mismatch.Actual)
	require.Contains(t, err.Error(), "other.near")
	require.Contains(t, err.Error(), "app.near")
	require.Equal(t, 0, id.lookup.callCount(), "recipient mismatch must not reach the ownership lookup")
}

func TestVerifyRoundTripFullOptions(t *testing.T) {
	id := newTestIdentity(t, "alice.near")
	url := "https://example.com/cb"
	state := "csrf-123"

	tok, err := SignMessage(context.Background(), "hello", SignOptions{
		Signer:      id.signer,
		AccountID:   "alice.near",
		Recipient:   "app.near",
		CallbackURL: &url,
		State:       &state,
	})
	require.NoError(t, err)

	result, err := NewVerifierWith(id.lookup).Verify(context.Background(), tok, VerifyOptions{
		Recipient: Exact("app.near"),
		State:     Exact("csrf-123"),
		Message:   Exact("hello"),
	})
	require.NoError(t, err)
	require.NotNil(t, result.CallbackURL)
	require.Equal(t, url, *result.CallbackURL)
	require.NotNil(t, result.State)
	require.Equal(t, state, *result.State)
}

func TestVerifyStaleNonceStopsPipeline(t *testing.T) {
	id := newTestIdentity(t, "alice.near")

	stale, err := nonce.GenerateAt(time.Now().Add(-48 * time.Hour))
	require.NoError(t, err)

	tok, err := SignMessage(context.Background(), "login attempt", SignOptions{
		Signer:    id.signer,
		AccountID: "alice.near",
		Recipient: "app.near",
		Nonce:     &stale,
	})
	require.NoError(t, err)

	_, err = NewVerifierWith(id.lookup).Verify(context.Background(), tok, VerifyOptions{
		Recipient: Exact("app.near"),
	})
	var nonceErr *NonceError
	require.ErrorAs(t, err, &nonceErr)
	require.ErrorIs(t, err, nonce.ErrExpired)
	require.Equal(t, 0, id.lookup.callCount(), "stale nonce must not reach the ownership lookup")
}

func TestVerifyFutureNonce(t *testing.T) {
	id := newTestIdentity(t, "alice.near")

	future, err := nonce.GenerateAt(time.Now().Add(time.Hour))
	require.NoError(t, err)

	tok, err := SignMessage(context.Background(), "m", SignOptions{
		Signer:    id.signer,
		AccountID: "alice.near",
		Recipient: "app.near",
		Nonce:     &future,
	})
	require.NoError(t, err)

	_, err = NewVerifierWith(id.lookup).Verify(context.Background(), tok, VerifyOptions{})
	require.ErrorIs(t, err, nonce.ErrFutureNonce)
}

func TestVerifyCustomNoncePredicate(t *testing.T) {
	id := newTestIdentity(t, "alice.near")
	tok := id.token(t, "alice.near", "m", "app.near")

	seen := false
	opts := VerifyOptions{
		Nonce: NonceSatisfies(func(n [32]byte) bool {
			replay := seen
			seen = true
			return !replay
		}),
	}

	v := NewVerifierWith(id.lookup)
	_, err := v.Verify(context.Background(), tok, opts)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), tok, opts)
	var nonceErr *NonceError
	require.ErrorAs(t, err, &nonceErr)
	require.Contains(t, err.Error(), "custom nonce validation failed")
}

func TestVerifyOwnershipGateBeforeSignature(t *testing.T) {
	id := newTestIdentity(t, "alice.near")
	// Valid signature from alice's key, but the token claims mallory.
	tok := id.token(t, "mallory.near", "login attempt", "app.near")

	_, err := NewVerifierWith(id.lookup).Verify(context.Background(), tok, VerifyOptions{
		Recipient: Exact("app.near"),
	})
	var ownErr *OwnershipError
	require.ErrorAs(t, err, &ownErr)
	require.Equal(t, OwnershipKeyNotAssociated, ownErr.Kind)
	require.ErrorIs(t, err, registry.ErrNotAssociated)
	require.Equal(t, 1, id.lookup.callCount())
}

func TestVerifyOwnershipAPIFailure(t *testing.T) {
	id := newTestIdentity(t, "alice.near")
	id.lookup.err = registry.ErrAPIFailure
	tok := id.token(t, "alice.near", "m", "app.near")

	_, err := NewVerifierWith(id.lookup).Verify(context.Background(), tok, VerifyOptions{})
	var ownErr *OwnershipError
	require.ErrorAs(t, err, &ownErr)
	require.Equal(t, OwnershipAPIFailure, ownErr.Kind)
}

func TestVerifyTamperedFields(t *testing.T) {
	id := newTestIdentity(t, "alice.near")
	tok := id.token(t, "alice.near", "login attempt", "app.near")

	rec, err := token.Decode(tok)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(r *token.Record)
	}{
		{
			name:   "flip signature bit",
			mutate: func(r *token.Record) { r.Signature[10] ^= 0x01 },
		},
		{
			name:   "flip message bit",
			mutate: func(r *token.Record) { r.Message = "logiN attempt" },
		},
		{
			name:   "flip nonce random byte",
			mutate: func(r *token.Record) { r.Nonce[20] ^= 0x01 },
		},
		{
			name:   "change recipient",
			mutate: func(r *token.Record) { r.Recipient = "app.near" + "x" },
		},
		{
			name: "add callback url",
			mutate: func(r *token.Record) {
				url := "https://evil.example"
				r.CallbackURL = &url
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mutated := *rec
			mutated.Signature = append([]byte(nil), rec.Signature...)
			tt.mutate(&mutated)

			reencoded, err := token.Encode(&mutated)
			require.NoError(t, err)

			// No option checks: tampering has to surface at the
			// signature step.
			_, err = NewVerifierWith(id.lookup).Verify(context.Background(), reencoded, VerifyOptions{})
			var sigErr *SignatureError
			require.ErrorAs(t, err, &sigErr)
			require.Equal(t, SignatureInvalid, sigErr.Kind)
		})
	}
}

func TestVerifyUnsupportedKeyType(t *testing.T) {
	id := newTestIdentity(t, "alice.near")
	tok := id.token(t, "alice.near", "m", "app.near")

	rec, err := token.Decode(tok)
	require.NoError(t, err)
	rec.PublicKey = "secp256k1:abc123"
	// Keep the lookup answering yes so the pipeline reaches the
	// signature step.
	id.lookup.owners["secp256k1:abc123"] = []string{"alice.near"}

	reencoded, err := token.Encode(rec)
	require.NoError(t, err)

	_, err = NewVerifierWith(id.lookup).Verify(context.Background(), reencoded, VerifyOptions{})
	var sigErr *SignatureError
	require.ErrorAs(t, err, &sigErr)
	require.Equal(t, SignatureUnsupportedKeyType, sigErr.Kind)
	require.ErrorIs(t, err, crypto.ErrUnsupportedKeyType)
}

func TestVerifyParseError(t *testing.T) {
	id := newTestIdentity(t, "alice.near")

	_, err := NewVerifierWith(id.lookup).Verify(context.Background(), "!!not a token!!", VerifyOptions{})
	var parseErr *token.ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, 0, id.lookup.callCount())
}

func TestVerifyStateSemantics(t *testing.T) {
	id := newTestIdentity(t, "alice.near")

	withState := func(state *string) string {
		tok, err := SignMessage(context.Background(), "m", SignOptions{
			Signer:    id.signer,
			AccountID: "alice.near",
			Recipient: "app.near",
			State:     state,
		})
		require.NoError(t, err)
		return tok
	}

	v := NewVerifierWith(id.lookup)
	ctx := context.Background()

	t.Run("no constraint ignores state", func(t *testing.T) {
		state := "anything"
		_, err := v.Verify(ctx, withState(&state), VerifyOptions{})
		require.NoError(t, err)
	})

	t.Run("exact match", func(t *testing.T) {
		state := "csrf-1"
		_, err := v.Verify(ctx, withState(&state), VerifyOptions{State: Exact("csrf-1")})
		require.NoError(t, err)
	})

	t.Run("absent state is undefined, not empty", func(t *testing.T) {
		_, err := v.Verify(ctx, withState(nil), VerifyOptions{State: Exact("")})
		var mismatch *StateMismatchError
		require.ErrorAs(t, err, &mismatch)
		require.Nil(t, mismatch.Actual)
		require.Contains(t, err.Error(), "undefined")
	})

	t.Run("mismatch names both sides", func(t *testing.T) {
		state := "actual-state"
		_, err := v.Verify(ctx, withState(&state), VerifyOptions{State: Exact("expected-state")})
		require.Error(t, err)
		require.Contains(t, err.Error(), "expected-state")
		require.Contains(t, err.Error(), "actual-state")
	})

	t.Run("predicate", func(t *testing.T) {
		state := "ok-state"
		_, err := v.Verify(ctx, withState(&state), VerifyOptions{
			State: Satisfies(func(s string) bool { return s == "ok-state" }),
		})
		require.NoError(t, err)
	})
}

func TestVerifyMessageRule(t *testing.T) {
	id := newTestIdentity(t, "alice.near")
	tok := id.token(t, "alice.near", "login attempt", "app.near")
	v := NewVerifierWith(id.lookup)

	_, err := v.Verify(context.Background(), tok, VerifyOptions{Message: Exact("login attempt")})
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), tok, VerifyOptions{Message: Exact("something else")})
	var mismatch *MessageMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, "something else", mismatch.Expected)
	require.Equal(t, "login attempt", mismatch.Actual)
}

func TestVerifyOrderNonceBeforeRecipient(t *testing.T) {
	id := newTestIdentity(t, "alice.near")

	stale, err := nonce.GenerateAt(time.Now().Add(-48 * time.Hour))
	require.NoError(t, err)

	tok, err := SignMessage(context.Background(), "m", SignOptions{
		Signer:    id.signer,
		AccountID: "alice.near",
		Recipient: "app.near",
		Nonce:     &stale,
	})
	require.NoError(t, err)

	// Both checks would fail; the nonce step must win.
	_, err = NewVerifierWith(id.lookup).Verify(context.Background(), tok, VerifyOptions{
		Recipient: Exact("other.near"),
	})
	var nonceErr *NonceError
	require.ErrorAs(t, err, &nonceErr)
}

func TestVerifyConcurrent(t *testing.T) {
	id := newTestIdentity(t, "alice.near")
	tok := id.token(t, "alice.near", "m", "app.near")
	v := NewVerifierWith(id.lookup)

	done := make(chan error, 16)
	for i := 0; i < 16; i++ {
		go func() {
			_, err := v.Verify(context.Background(), tok, VerifyOptions{Recipient: Exact("app.near")})
			done <- err
		}()
	}
	for i := 0; i < 16; i++ {
		if err := <-done; err != nil {
			t.Errorf("Concurrent verification failed: %v", err)
		}
	}
}

func TestNewRuleConfigError(t *testing.T) {
	exact := "app.near"
	_, err := NewRule(&exact, func(string) bool { return true })
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)

	r, err := NewRule(&exact, nil)
	require.NoError(t, err)
	require.NoError(t, checkRecipient(&token.Record{Recipient: "app.near"}, r))

	r, err = NewRule(nil, func(s string) bool { return s == "app.near" })
	require.NoError(t, err)
	require.NoError(t, checkRecipient(&token.Record{Recipient: "app.near"}, r))

	r, err = NewRule(nil, nil)
	require.NoError(t, err)
	require.NoError(t, checkRecipient(&token.Record{Recipient: "whatever"}, r))
}

func TestVerifyNeverPartialResult(t *testing.T) {
	id := newTestIdentity(t, "alice.near")
	tok := id.token(t, "alice.near", "m", "app.near")

	result, err := NewVerifierWith(id.lookup).Verify(context.Background(), tok, VerifyOptions{
		Recipient: Exact("wrong.near"),
	})
	require.Error(t, err)
	require.Nil(t, result)
}
