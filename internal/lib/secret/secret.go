// Package secret provides the symmetric key used to sign and verify portal tokens.
package secret

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the length in bytes of the derived signing key.
const KeySize = 32

const keyInfo = "portal-session-token-signing-v1"

// ErrMissingSecret is returned when no signing secret is configured.
var ErrMissingSecret = errors.New("token signing secret is not configured")

// Provider holds the process-wide signing key. It is built once at startup.
type Provider struct {
	key []byte
}

// New derives a fixed-length signing key from the configured secret.
// A blank secret is rejected with ErrMissingSecret.
func New(raw string) (*Provider, error) {
	const op = "secret.New"

	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingSecret)
	}

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(raw), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Provider{key: key}, nil
}

// MustNew is like New but panics on error. Use it during startup only.
func MustNew(raw string) *Provider {
	p, err := New(raw)
	if err != nil {
		panic(err)
	}

	return p
}

// Key returns a copy of the signing key.
func (p *Provider) Key() []byte {
	out := make([]byte, len(p.key))
	copy(out, p.key)
	return out
}
