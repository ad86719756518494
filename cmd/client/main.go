package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/busybox42/NearAuth/pkg/auth"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func initLogger() {
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.InfoLevel)
}

func loadPrivateKey(keyFlag, keyFileFlag string) (string, error) {
	if keyFlag != "" {
		return keyFlag, nil
	}
	if keyFileFlag == "" {
		return "", fmt.Errorf("one of -key or -key-file is required")
	}
	data, err := os.ReadFile(keyFileFlag)
	if err != nil {
		return "", fmt.Errorf("failed to read key file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func main() {
	key := flag.String("key", "", "private key string (ed25519:<base58>)")
	keyFile := flag.String("key-file", "", "file containing the private key string")
	account := flag.String("account", "", "account the token claims (required)")
	recipient := flag.String("recipient", "", "intended token recipient (required)")
	message := flag.String("message", "", "message to sign (required)")
	callbackURL := flag.String("callback-url", "", "optional callback URL")
	state := flag.String("state", "", "optional state for local correlation")
	flag.Parse()

	initLogger()

	if *account == "" || *recipient == "" || *message == "" {
		log.Fatal("-account, -recipient and -message are required")
	}

	keyString, err := loadPrivateKey(*key, *keyFile)
	if err != nil {
		log.Fatalf("Failed to load key: %v", err)
	}

	signer, err := auth.NewKeySigner(keyString)
	if err != nil {
		log.Fatalf("Failed to initialize signer: %v", err)
	}
	log.Infof("Signing as %s with key %s", *account, signer.PublicKey())

	opts := auth.SignOptions{
		Signer:    signer,
		AccountID: *account,
		Recipient: *recipient,
	}
	if *callbackURL != "" {
		opts.CallbackURL = callbackURL
	}
	if *state != "" {
		opts.State = state
	}

	token, err := auth.SignMessage(context.Background(), *message, opts)
	if err != nil {
		log.Fatalf("Failed to sign message: %v", err)
	}

	fmt.Println(token)
}
