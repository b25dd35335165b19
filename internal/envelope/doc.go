// Package envelope defines the wire format of the secure channel and the errors shared by the
// packages that produce and consume it.
//
// A request envelope combines three things: a fresh AES-256-GCM session key wrapped under the
// receiver's RSA public key (RSA-OAEP with SHA-256), the nonce used to seal the payload, and the
// sealed payload itself. Since asymmetric encryption is slow and has size limits, the RSA key
// only ever encrypts the 32-byte session key; the payload is encrypted symmetrically.
//
// A response envelope has the same top-level shape, but carries no wrapped key: the responder
// seals its reply with the session key it unwrapped from the matching request.
//
// In some documentation, the asymmetric key is called the "key encryption key" (KEK) and the
// symmetric key is called the "data encryption key" (DEK).
//
// The crypto primitives live in the rsa and session subpackages; this package only assembles and
// validates envelopes.
package envelope
