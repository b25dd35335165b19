// Package session manages the symmetric half of the secure channel: AES-256-GCM session keys that
// are generated per request, wrapped under the peer's RSA key, and used to seal both the request
// and the matching response.
package session

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"github.com/jetstack/securechannel/internal/envelope"
)

const (
	// KeySize is the size of the AES-256 key in bytes; aes.NewCipher generates cipher.Block based
	// on the size of key passed in
	KeySize = 32

	// NonceSize is the size of the AES-GCM nonce in bytes. NB: Nonce sizes can be security critical.
	// Reusing a nonce with the same key breaks AES-256 GCM completely.
	// Keys are generated per request and each seal draws a fresh random nonce, so a key seals at
	// most a request and its response.
	NonceSize = 12
)

// Key is an AES-256-GCM session key.
type Key struct {
	raw []byte
}

// GenerateKey returns a new random session key.
func GenerateKey() (*Key, error) {
	raw := make([]byte, KeySize)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("%w: failed to generate AES key: %w", envelope.ErrCryptoUnsupported, err)
	}
	return &Key{raw: raw}, nil
}

// ImportKey builds a key from its raw bytes. The input is copied.
func ImportKey(raw []byte) (*Key, error) {
	if len(raw) != KeySize {
		return nil, fmt.Errorf("%w: AES key must be %d bytes, got %d", envelope.ErrMalformedKey, KeySize, len(raw))
	}

	k := &Key{raw: make([]byte, KeySize)}
	subtle.ConstantTimeCopy(1, k.raw, raw)
	return k, nil
}

// Export returns a copy of the raw key bytes.
func (k *Key) Export() []byte {
	out := make([]byte, len(k.raw))
	copy(out, k.raw)
	return out
}

// Wipe zeroes the key. A wiped key can no longer open or seal anything.
func (k *Key) Wipe() {
	if k == nil {
		return
	}
	clear(k.raw)
	k.raw = nil
}

func (k *Key) usable() bool {
	return k != nil && len(k.raw) == KeySize
}
