package rsa

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"

	"github.com/jetstack/securechannel/internal/envelope"
)

// MaxBlockSize is the largest input EncryptBlock accepts for publicKey:
// the modulus size minus the OAEP-SHA256 overhead. 190 bytes for 2048 bits.
func MaxBlockSize(publicKey *rsa.PublicKey) int {
	return publicKey.Size() - 2*sha256.Size - 2
}

// EncryptBlock encrypts a single short block with RSA-OAEP-SHA256.
func EncryptBlock(publicKey *rsa.PublicKey, data []byte) ([]byte, error) {
	if publicKey == nil {
		return nil, fmt.Errorf("%w: RSA public key cannot be nil", envelope.ErrMalformedKey)
	}

	if limit := MaxBlockSize(publicKey); len(data) > limit {
		return nil, fmt.Errorf("%w: %d bytes exceeds the %d byte limit for a %d bit key", envelope.ErrPayloadTooLarge, len(data), limit, publicKey.N.BitLen())
	}

	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, publicKey, data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt block with RSA: %w", err)
	}

	return ciphertext, nil
}

// DecryptBlock reverses EncryptBlock. Any failure, including a block that was
// altered in transit, is reported as envelope.ErrAuthenticationFailed.
func DecryptBlock(privateKey *rsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("%w: RSA private key cannot be nil", envelope.ErrMalformedKey)
	}

	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, privateKey, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decrypt block with RSA: %w", envelope.ErrAuthenticationFailed, err)
	}

	return plaintext, nil
}
