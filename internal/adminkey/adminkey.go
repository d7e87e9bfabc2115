// Package adminkey resolves the ticket-signing key.
//
// In a deployment the key is mounted as a secret file
// (ADMIN_SIGNING_KEY_FILE). For development and CI the inline
// ADMIN_SIGNING_KEY value is used instead. The file wins when both are set.
package adminkey

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cloudflare/circl/sign/ed25519"

	"github.com/0gfoundation/0g-emissions/internal/ticket"
)

var ErrNotConfigured = errors.New("adminkey: no key source configured")

// Source names where the key may come from.
type Source struct {
	Inline string
	File   string
}

// Load returns the signing key from src.
func Load(src Source) (ed25519.PrivateKey, error) {
	if src.File != "" {
		return loadFile(src.File)
	}
	if src.Inline != "" {
		key, err := ticket.ParsePrivateKey(src.Inline)
		if err != nil {
			return nil, fmt.Errorf("adminkey: inline key: %w", err)
		}
		return key, nil
	}
	return nil, ErrNotConfigured
}

// loadFile reads a hex seed, tolerating surrounding whitespace and a
// trailing newline as written by most secret stores.
func loadFile(path string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("adminkey: read %s: %w", path, err)
	}
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return nil, fmt.Errorf("adminkey: %s is empty", path)
	}
	key, err := ticket.ParsePrivateKey(s)
	if err != nil {
		return nil, fmt.Errorf("adminkey: %s: %w", path, err)
	}
	return key, nil
}
