package rsa

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/jetstack/securechannel/internal/codec"
	"github.com/jetstack/securechannel/internal/envelope"
)

const (
	// KeySize is the size in bits of generated keys.
	KeySize = 2048

	// minRSAKeySize is the minimum RSA key size in bits; we'd expect that keys will be larger but 2048 is a sane floor
	// to enforce to ensure that a weak key can't accidentally be used
	minRSAKeySize = 2048

	publicKeyHeader = "-----BEGIN PUBLIC KEY-----"
	publicKeyFooter = "-----END PUBLIC KEY-----"
)

// KeyPair is an RSA key pair. The private key must never be written to the
// wire.
type KeyPair struct {
	PublicKey  *rsa.PublicKey
	PrivateKey *rsa.PrivateKey
}

// GenerateKeyPair creates a fresh 2048-bit key pair with public exponent
// 65537.
func GenerateKeyPair() (*KeyPair, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, KeySize)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to generate RSA key pair: %w", envelope.ErrCryptoUnsupported, err)
	}

	return NewKeyPair(privateKey)
}

// NewKeyPair wraps an existing private key, enforcing the minimum key size.
func NewKeyPair(privateKey *rsa.PrivateKey) (*KeyPair, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("%w: RSA private key cannot be nil", envelope.ErrMalformedKey)
	}

	if err := checkKeySize(&privateKey.PublicKey); err != nil {
		return nil, err
	}

	return &KeyPair{
		PublicKey:  &privateKey.PublicKey,
		PrivateKey: privateKey,
	}, nil
}

// ExportPublicKeyPEM serializes a public key as SPKI wrapped in PUBLIC KEY
// markers, with the base64 body on a single line.
func ExportPublicKeyPEM(publicKey *rsa.PublicKey) (string, error) {
	if publicKey == nil {
		return "", fmt.Errorf("%w: RSA public key cannot be nil", envelope.ErrMalformedKey)
	}

	der, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return "", fmt.Errorf("%w: failed to marshal PKIX public key: %w", envelope.ErrMalformedKey, err)
	}

	return publicKeyHeader + "\n" + codec.EncodeBase64(der) + "\n" + publicKeyFooter, nil
}

// ImportPublicKeyPEM parses the text produced by ExportPublicKeyPEM. PKCS1
// "RSA PUBLIC KEY" blocks are accepted too.
func ImportPublicKeyPEM(text string) (*rsa.PublicKey, error) {
	return LoadPublicKeyFromPEM([]byte(text))
}

// LoadPublicKeyFromPEM parses an RSA public key from PEM-encoded bytes.
// The PEM block should be of type "PUBLIC KEY" or "RSA PUBLIC KEY".
// Every failure wraps envelope.ErrMalformedKey.
func LoadPublicKeyFromPEM(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("%w: failed to decode PEM block", envelope.ErrMalformedKey)
	}

	var rsaKey *rsa.PublicKey
	switch block.Type {
	case "PUBLIC KEY":
		pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to parse PKIX public key: %w", envelope.ErrMalformedKey, err)
		}

		var ok bool
		rsaKey, ok = pubKey.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: key is not an RSA public key, got %T", envelope.ErrMalformedKey, pubKey)
		}
	case "RSA PUBLIC KEY":
		var err error
		rsaKey, err = x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to parse PKCS1 RSA public key: %w", envelope.ErrMalformedKey, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported PEM block type: %s (expected PUBLIC KEY or RSA PUBLIC KEY)", envelope.ErrMalformedKey, block.Type)
	}

	if err := checkKeySize(rsaKey); err != nil {
		return nil, err
	}

	return rsaKey, nil
}

// LoadPublicKeyFromPEMFile reads and parses an RSA public key from a PEM file.
func LoadPublicKeyFromPEMFile(path string) (*rsa.PublicKey, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PEM file: %w", err)
	}

	return LoadPublicKeyFromPEM(pemBytes)
}

// ExportPrivateKeyPEM serializes a private key as a PKCS8 "PRIVATE KEY" block.
func ExportPrivateKeyPEM(privateKey *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal PKCS8 private key: %w", err)
	}

	return pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: der,
	}), nil
}

// LoadPrivateKeyFromPEMFile reads a "PRIVATE KEY" (PKCS8) or
// "RSA PRIVATE KEY" (PKCS1) block from path and returns the key pair.
func LoadPrivateKeyFromPEMFile(path string) (*KeyPair, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PEM file: %w", err)
	}

	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("%w: failed to decode PEM block", envelope.ErrMalformedKey)
	}

	var privateKey *rsa.PrivateKey
	switch block.Type {
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to parse PKCS8 private key: %w", envelope.ErrMalformedKey, err)
		}

		var ok bool
		privateKey, ok = key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: key is not an RSA private key, got %T", envelope.ErrMalformedKey, key)
		}
	case "RSA PRIVATE KEY":
		privateKey, err = x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to parse PKCS1 private key: %w", envelope.ErrMalformedKey, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported PEM block type: %s (expected PRIVATE KEY or RSA PRIVATE KEY)", envelope.ErrMalformedKey, block.Type)
	}

	return NewKeyPair(privateKey)
}

func checkKeySize(publicKey *rsa.PublicKey) error {
	keySize := publicKey.N.BitLen()
	if keySize < minRSAKeySize {
		return fmt.Errorf("%w: RSA key size must be at least %d bits, got %d bits", envelope.ErrMalformedKey, minRSAKeySize, keySize)
	}
	return nil
}
