// Package keyfetch provides a client for fetching the peer's public key from an HTTP endpoint.
//
// The endpoint may serve the key as a JSON Web Key Set (JWKs), as a JSON object with a
// "public_key" PEM field, or as bare PEM text. In every case the result carries both the parsed
// key and its PEM text, since the secure channel is configured with the textual form.
//
// This package uses github.com/lestrrat-go/jwx/v3/jwk for JWK parsing and handling.
//
// Currently, keyfetch only supports RSA keys for envelope encryption.
package keyfetch
