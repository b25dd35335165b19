// Package securechannel drives the request/response lifecycle of the encrypted channel.
//
// A Channel is the client half. It owns a local RSA key pair, the peer's public key and a single
// current session key:
//
//	Uninitialized --Init--> KeypairReady --SetPeerPublicKey--> PeerKeySet
//
// Every EncryptRequest generates a new session key and replaces the previous one, so a Channel
// can only have one exchange in flight. Callers that need concurrency must either serialize use
// of the Channel or give each exchange its own Channel.
//
// A Responder is the server half. It unwraps the session key of each request with its private key
// and keeps it, keyed by message id, until the matching response has been sealed. It is safe for
// concurrent use.
package securechannel
