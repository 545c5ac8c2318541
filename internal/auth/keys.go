// Package auth hashes credentials and issues bearer tokens.
package auth

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"aidanwoods.dev/go-paseto"
)

const (
	keyLength    = 32 // v4.local keys are 256 bits
	keyHexLength = 2 * keyLength
	keyFileName  = "auth.key"
)

// parseKey decodes a hex v4.local key.
func parseKey(keyHex string) (paseto.V4SymmetricKey, error) {
	if len(keyHex) != keyHexLength {
		return paseto.V4SymmetricKey{}, fmt.Errorf("paseto key must be %d hex characters, got %d", keyHexLength, len(keyHex))
	}
	key, err := paseto.V4SymmetricKeyFromHex(keyHex)
	if err != nil {
		return paseto.V4SymmetricKey{}, fmt.Errorf("invalid paseto key: %w", err)
	}
	return key, nil
}

// LoadOrGenerateKey returns the key kept in <dir>/auth.key, writing a fresh
// one on first start. A file that does not hold a valid key is an error, never
// silently replaced, since that would sign every user out.
func LoadOrGenerateKey(dir string) (string, error) {
	path := filepath.Join(dir, keyFileName)

	//#nosec G304 -- path derived from the configured data directory
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		keyHex := strings.TrimSpace(string(raw))
		if _, err := parseKey(keyHex); err != nil {
			return "", fmt.Errorf("%s: %w", path, err)
		}
		return keyHex, nil
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("read auth key: %w", err)
	}

	keyHex := paseto.NewV4SymmetricKey().ExportHex()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(keyHex), 0o600); err != nil {
		return "", fmt.Errorf("save auth key: %w", err)
	}
	return keyHex, nil
}
