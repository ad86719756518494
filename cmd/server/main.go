package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/busybox42/NearAuth/internal/store"
	"github.com/busybox42/NearAuth/pkg/auth"
	"github.com/busybox42/NearAuth/pkg/nonce"
	"github.com/busybox42/NearAuth/pkg/token"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func initLogger() {
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(logrus.InfoLevel)
}

type verifyServer struct {
	verifier    *auth.Verifier
	nonces      *store.NonceStore
	recipient   string
	fullAccess  bool
	nonceMaxAge time.Duration
}

func newVerifyServer(recipient string, fullAccess bool, nonceMaxAge time.Duration) *verifyServer {
	return &verifyServer{
		verifier:    auth.NewVerifier(),
		nonces:      store.NewNonceStore(nonceMaxAge),
		recipient:   recipient,
		fullAccess:  fullAccess,
		nonceMaxAge: nonceMaxAge,
	}
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	AccountID   string  `json:"account_id"`
	PublicKey   string  `json:"public_key"`
	Message     string  `json:"message"`
	CallbackURL *string `json:"callback_url,omitempty"`
	State       *string `json:"state,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *verifyServer) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid request body: %w", err))
		return
	}

	opts := auth.VerifyOptions{
		Recipient: auth.Exact(s.recipient),
		// Freshness plus single-use: reject anything already seen
		// inside the retention window.
		Nonce: auth.NonceSatisfies(func(n [32]byte) bool {
			if err := nonce.Validate(n[:], s.nonceMaxAge); err != nil {
				return false
			}
			return s.nonces.MarkUsed(n)
		}),
		RequireFullAccessKey: s.fullAccess,
	}

	result, err := s.verifier.Verify(r.Context(), req.Token, opts)
	if err != nil {
		status, kind := classify(err)
		log.WithFields(logrus.Fields{
			"kind":   kind,
			"remote": r.RemoteAddr,
		}).Infof("Verification failed: %v", err)
		writeError(w, status, kind, err)
		return
	}

	log.WithFields(logrus.Fields{
		"account_id": result.AccountID,
		"remote":     r.RemoteAddr,
	}).Info("Token verified")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(verifyResponse{
		AccountID:   result.AccountID,
		PublicKey:   result.PublicKey,
		Message:     result.Message,
		CallbackURL: result.CallbackURL,
		State:       result.State,
	})
}

func classify(err error) (int, string) {
	switch err.(type) {
	case *token.ParseError:
		return http.StatusBadRequest, "parse_error"
	case *auth.NonceError:
		return http.StatusUnauthorized, "nonce_error"
	case *auth.RecipientMismatchError:
		return http.StatusUnauthorized, "recipient_mismatch"
	case *auth.StateMismatchError:
		return http.StatusUnauthorized, "state_mismatch"
	case *auth.MessageMismatchError:
		return http.StatusUnauthorized, "message_mismatch"
	case *auth.OwnershipError:
		return http.StatusUnauthorized, "ownership_error"
	case *auth.SignatureError:
		return http.StatusUnauthorized, "signature_error"
	case *auth.ConfigError:
		return http.StatusInternalServerError, "config_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeError(w http.ResponseWriter, status int, kind string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error(), Kind: kind})
}

func main() {
	port := flag.Int("port", 8080, "HTTP listen port")
	recipient := flag.String("recipient", "", "expected token recipient (required)")
	fullAccess := flag.Bool("full-access-only", false, "require full-access keys in the ownership check")
	nonceMaxAge := flag.Duration("nonce-max-age", nonce.DefaultMaxAge, "maximum accepted nonce age")
	flag.Parse()

	initLogger()

	if *recipient == "" {
		log.Fatal("-recipient is required")
	}

	srv := newVerifyServer(*recipient, *fullAccess, *nonceMaxAge)

	mux := http.NewServeMux()
	mux.HandleFunc("/verify", srv.handleVerify)

	addr := fmt.Sprintf(":%d", *port)
	log.Infof("Verification server listening on %s (recipient: %s)", addr, *recipient)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
