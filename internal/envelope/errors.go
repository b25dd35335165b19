package envelope

import "errors"

// Errors returned by the secure channel packages. They are always wrapped with
// context, so compare with errors.Is.
var (
	// ErrCryptoUnsupported means the host could not provide a required
	// primitive, such as a secure random source. It is fatal for the channel.
	ErrCryptoUnsupported = errors.New("crypto unsupported")

	ErrMalformedKey      = errors.New("malformed key")
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrInvalidEnvelope   = errors.New("invalid envelope")
	ErrPayloadTooLarge   = errors.New("payload too large")

	// ErrAuthenticationFailed covers tampered ciphertext, the wrong key and
	// the wrong nonce. No plaintext is ever returned alongside it.
	ErrAuthenticationFailed = errors.New("authentication failed")

	ErrSerializationFailed   = errors.New("serialization failed")
	ErrDeserializationFailed = errors.New("deserialization failed")

	// ErrNotReady and ErrNoSessionKey signal protocol-state misuse by the
	// caller.
	ErrNotReady     = errors.New("channel not ready")
	ErrNoSessionKey = errors.New("no session key")
)
