package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/jetstack/securechannel/internal/envelope"
)

// Seal encrypts plaintext under key with a fresh random nonce. The returned
// ciphertext has the GCM tag appended.
func Seal(key *Key, plaintext []byte) (nonce, ciphertext []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to generate nonce: %w", envelope.ErrCryptoUnsupported, err)
	}

	return nonce, gcm.Seal(nil, nonce, plaintext, nil), nil
}

// Open decrypts and authenticates ciphertext. It returns
// envelope.ErrAuthenticationFailed, and no plaintext, if the tag does not
// verify for this key and nonce.
func Open(key *Key, nonce, ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: nonce must be %d bytes, got %d", envelope.ErrAuthenticationFailed, NonceSize, len(nonce))
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open ciphertext: %w", envelope.ErrAuthenticationFailed, err)
	}

	return plaintext, nil
}

func newGCM(key *Key) (cipher.AEAD, error) {
	if !key.usable() {
		return nil, fmt.Errorf("%w: session key is empty or wiped", envelope.ErrNoSessionKey)
	}

	block, err := aes.NewCipher(key.raw)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}

	return gcm, nil
}
