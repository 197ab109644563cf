package main

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aelexs/time-engine/internal/auth"
	"github.com/aelexs/time-engine/internal/domain"
)

const keyBits = 2048

func runKeygen(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("keygen", stderr)
	out := fs.String("out", "", "output path for the PEM private key (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		fs.Usage()
		return fmt.Errorf("-out is required: %w", errUsage)
	}

	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return fmt.Errorf("generate RSA key: %w", err)
	}
	pemBytes, err := auth.EncodePrivateKeyPEM(key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, pemBytes, 0o600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	field(stdout, "wrote", *out)
	return nil
}

func runToken(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("token", stderr)
	keyPath := fs.String("key", "", "PEM private key path (required)")
	keyID := fs.String("kid", "dev-key-001", "key id placed in the token header")
	user := fs.String("user", "", "user id (UUID) for the token subject (required)")
	issuer := fs.String("issuer", "time-engine", "token issuer")
	audience := fs.String("audience", "time-engine-api", "token audience")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *keyPath == "" || *user == "" {
		fs.Usage()
		return fmt.Errorf("-key and -user are required: %w", errUsage)
	}

	userID, err := domain.NewUserID(*user)
	if err != nil {
		return fmt.Errorf("user %q: %w", *user, err)
	}
	keyStore, err := auth.LoadKeyStoreFile(*keyPath, *keyID)
	if err != nil {
		return err
	}

	minted, err := auth.NewMinter(auth.MinterConfig{
		KeyStore:  keyStore,
		AccessTTL: *ttl,
		Issuer:    *issuer,
		Audience:  *audience,
		Clock:     domain.RealClock{},
	}).MintAccessToken(userID)
	if err != nil {
		return err
	}

	field(stderr, "expires", minted.ExpiresAt.Format(time.RFC3339))
	fmt.Fprintln(stdout, minted.Token)
	return nil
}
