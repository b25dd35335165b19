// Package rsa is the asymmetric half of the secure channel. It generates, imports and exports
// 2048-bit RSA keys and wraps single short blocks (session keys) with RSA-OAEP using SHA-256.
//
// It never encrypts payloads directly: OAEP limits a 2048-bit key to 190 bytes of input.
package rsa
