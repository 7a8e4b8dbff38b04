package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"sourcectl/internal/observability"
	"sourcectl/internal/secret"
	"sourcectl/internal/storage"
)

// runHashToken prints the bcrypt hash for SOURCED_ADMIN_TOKEN_HASH. The
// token is read from the first argument or, without one, from stdin.
func runHashToken(args []string) int {
	token := ""
	if len(args) > 0 {
		token = args[0]
	} else {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(os.Stderr, "hash-token: read token:", err)
			return 1
		}
		token = strings.TrimRight(line, "\r\n")
	}
	if token == "" {
		fmt.Fprintln(os.Stderr, "usage: sourced hash-token <token>")
		return 2
	}
	hash, err := secret.HashToken(token)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hash-token:", err)
		return 1
	}
	fmt.Println(string(hash))
	return 0
}

// runRotateKey re-encrypts every stored consumer secret from the old key
// to the new one.
func runRotateKey(logger observability.Logger, args []string) int {
	fs := flag.NewFlagSet("rotate-key", flag.ContinueOnError)
	oldHex := fs.String("old", os.Getenv("SOURCED_ENCRYPTION_KEY"), "current encryption key (hex)")
	newHex := fs.String("new", "", "new encryption key (hex); empty generates one")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	oldBox, err := boxFromHex(*oldHex)
	if err != nil {
		logger.Error("invalid old key", "error", err)
		return 1
	}
	generated := false
	if *newHex == "" {
		key, err := secret.GenerateKey()
		if err != nil {
			logger.Error("generate key failed", "error", err)
			return 1
		}
		*newHex = fmt.Sprintf("%x", key)
		generated = true
	}
	newBox, err := boxFromHex(*newHex)
	if err != nil {
		logger.Error("invalid new key", "error", err)
		return 1
	}

	store := selectStore(logger)
	defer func() { _ = store.Close() }()

	n, err := rotateSecrets(context.Background(), store, oldBox, newBox)
	if err != nil {
		logger.Error("key rotation failed", "rotated", n, "error", err)
		observability.CaptureError(err)
		return 1
	}
	logger.Info("key rotation complete", "rotated", n)
	if generated {
		fmt.Println(*newHex)
	}
	return 0
}

func boxFromHex(hexKey string) (*secret.Box, error) {
	key, err := secret.ParseKey(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, err
	}
	return secret.NewBox(key)
}

// rotateSecrets returns the number of sources re-encrypted. It stops at the
// first source whose secret cannot be opened with oldBox.
func rotateSecrets(ctx context.Context, store storage.SourceStore, oldBox, newBox *secret.Box) (int, error) {
	sources, err := store.ListSources(ctx)
	if err != nil {
		return 0, fmt.Errorf("list sources: %w", err)
	}
	rotated := 0
	for i := range sources {
		src := &sources[i]
		if src.ConsumerSecretEncrypted == "" {
			continue
		}
		plain, err := oldBox.Open(src.ConsumerSecretEncrypted)
		if err != nil {
			return rotated, fmt.Errorf("open secret of %q: %w", src.Slug, err)
		}
		sealed, err := newBox.Seal(plain)
		if err != nil {
			return rotated, fmt.Errorf("seal secret of %q: %w", src.Slug, err)
		}
		src.ConsumerSecretEncrypted = sealed
		if _, err := store.UpdateSource(ctx, src.Slug, src); err != nil {
			return rotated, fmt.Errorf("update %q: %w", src.Slug, err)
		}
		rotated++
	}
	return rotated, nil
}
