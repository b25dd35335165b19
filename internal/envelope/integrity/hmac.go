// Package integrity computes and verifies detached HMAC-SHA256 tags. It provides integrity without
// confidentiality and is independent of the envelope path.
package integrity

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/jetstack/securechannel/internal/codec"
)

// TagSize is the length in bytes of a tag.
const TagSize = sha256.Size

// Sign returns the HMAC-SHA256 of message under key.
func Sign(key, message []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return mac.Sum(nil)
}

// Verify reports whether tag is the HMAC-SHA256 of message under key. The
// comparison is constant time.
func Verify(key, message, tag []byte) bool {
	return hmac.Equal(Sign(key, message), tag)
}

// SignBase64 signs the UTF-8 bytes of message and returns the tag as base64.
func SignBase64(key []byte, message string) string {
	return codec.EncodeBase64(Sign(key, codec.EncodeText(message)))
}

// VerifyBase64 checks a base64 tag produced by SignBase64. A tag that is not
// valid base64 does not verify.
func VerifyBase64(key []byte, message, tag string) bool {
	raw, err := codec.DecodeBase64(tag)
	if err != nil {
		return false
	}
	return Verify(key, codec.EncodeText(message), raw)
}

// DeriveKey expands secret, typically an exported session key, into a
// separate 32-byte HMAC key bound to info. It uses HKDF-SHA256 without a salt.
func DeriveKey(secret []byte, info string) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("secret cannot be empty")
	}

	key := make([]byte, TagSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("failed to derive HMAC key: %w", err)
	}

	return key, nil
}
