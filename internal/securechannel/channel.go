package securechannel

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"sync"

	"k8s.io/klog/v2"

	"github.com/jetstack/securechannel/internal/envelope"
	internalrsa "github.com/jetstack/securechannel/internal/envelope/rsa"
	"github.com/jetstack/securechannel/internal/envelope/session"
	"github.com/jetstack/securechannel/pkg/logs"
)

// State is the lifecycle stage of a Channel.
type State int

const (
	StateUninitialized State = iota
	StateKeypairReady
	StatePeerKeySet
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateKeypairReady:
		return "KeypairReady"
	case StatePeerKeySet:
		return "PeerKeySet"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Status is a read-only snapshot of a Channel.
type Status struct {
	Initialized   bool `json:"initialized"`
	PeerKeySet    bool `json:"peerKeySet"`
	HasSessionKey bool `json:"hasSessionKey"`
}

// Option configures a Channel.
type Option func(*Channel)

// WithKeyPairGenerator replaces the function Init uses to create the local
// key pair.
func WithKeyPairGenerator(generate func() (*internalrsa.KeyPair, error)) Option {
	return func(c *Channel) {
		c.generateKeyPair = generate
	}
}

// Channel is the client side of the secure channel. The zero value is not
// usable; create one with New.
type Channel struct {
	generateKeyPair func() (*internalrsa.KeyPair, error)

	// mu makes each transition atomic. It does not pair requests with
	// responses.
	mu         sync.Mutex
	initErr    error
	keyPair    *internalrsa.KeyPair
	peerKey    *rsa.PublicKey
	sessionKey *session.Key
}

// New returns an uninitialized Channel.
func New(opts ...Option) *Channel {
	c := &Channel{
		generateKeyPair: internalrsa.GenerateKeyPair,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init generates the local key pair. Calling it on an initialized Channel is
// a no-op. If key generation fails the Channel is unusable and every later
// Init returns the same error.
func (c *Channel) Init(ctx context.Context) error {
	log := klog.FromContext(ctx).WithName("channel")

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initErr != nil {
		return c.initErr
	}
	if c.keyPair != nil {
		log.V(logs.Debug).Info("Channel already initialized")
		return nil
	}

	keyPair, err := c.generateKeyPair()
	if err != nil {
		c.initErr = fmt.Errorf("%w: failed to initialize channel: %w", envelope.ErrCryptoUnsupported, err)
		return c.initErr
	}

	c.keyPair = keyPair
	log.V(logs.Debug).Info("Generated local key pair", "bits", keyPair.PublicKey.N.BitLen())
	return nil
}

// PublicKeyPEM exports the local public key.
func (c *Channel) PublicKeyPEM() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.keyPair == nil {
		return "", fmt.Errorf("%w: channel is not initialized", envelope.ErrNotReady)
	}
	return internalrsa.ExportPublicKeyPEM(c.keyPair.PublicKey)
}

// SetPeerPublicKey imports the peer's PEM public key and replaces any
// previous peer key. On error the Channel is left unchanged.
func (c *Channel) SetPeerPublicKey(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.keyPair == nil {
		return fmt.Errorf("%w: channel is not initialized", envelope.ErrNotReady)
	}

	peerKey, err := internalrsa.ImportPublicKeyPEM(text)
	if err != nil {
		return fmt.Errorf("failed to set peer public key: %w", err)
	}

	replaced := c.peerKey != nil
	c.peerKey = peerKey
	klog.FromContext(ctx).WithName("channel").V(logs.Debug).Info("Set peer public key", "replaced", replaced)
	return nil
}

// EncryptRequest serializes payload to JSON and seals it for the peer under a
// new session key, which replaces the Channel's current one.
func (c *Channel) EncryptRequest(ctx context.Context, payload any, kind envelope.DataKind) (*envelope.Envelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.peerKey == nil {
		return nil, fmt.Errorf("%w: peer public key is not set", envelope.ErrNotReady)
	}

	kind, err := envelope.ParseDataKind(string(kind))
	if err != nil {
		return nil, err
	}

	if payload == nil {
		return nil, fmt.Errorf("%w: payload cannot be nil", envelope.ErrSerializationFailed)
	}
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", envelope.ErrSerializationFailed, err)
	}

	messageID, err := envelope.NewMessageID()
	if err != nil {
		return nil, err
	}

	key, err := session.GenerateKey()
	if err != nil {
		return nil, err
	}

	raw := key.Export()
	wrappedKey, err := internalrsa.EncryptBlock(c.peerKey, raw)
	clear(raw)
	if err != nil {
		key.Wipe()
		return nil, fmt.Errorf("failed to wrap session key: %w", err)
	}

	nonce, ciphertext, err := session.Seal(key, plaintext)
	if err != nil {
		key.Wipe()
		return nil, fmt.Errorf("failed to seal payload: %w", err)
	}

	c.sessionKey.Wipe()
	c.sessionKey = key

	klog.FromContext(ctx).WithName("channel").V(logs.Debug).Info("Encrypted request",
		"messageID", messageID, "kind", kind, "bytes", len(plaintext))

	return envelope.Encode(messageID, wrappedKey, nonce, kind, ciphertext), nil
}

// DecryptResponse opens a response envelope with the current session key and
// unmarshals the JSON payload into out.
func (c *Channel) DecryptResponse(ctx context.Context, env *envelope.Envelope, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionKey == nil {
		return fmt.Errorf("%w: no request has been encrypted on this channel", envelope.ErrNoSessionKey)
	}

	resp, err := envelope.DecodeResponse(env)
	if err != nil {
		return err
	}

	plaintext, err := session.Open(c.sessionKey, resp.Nonce, resp.Ciphertext)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(plaintext, out); err != nil {
		return fmt.Errorf("%w: %w", envelope.ErrDeserializationFailed, err)
	}

	klog.FromContext(ctx).WithName("channel").V(logs.Debug).Info("Decrypted response",
		"messageID", resp.MessageID, "kind", resp.Kind, "bytes", len(plaintext))
	return nil
}

// Reset forgets the peer key and the session key. The local key pair is
// kept, so an initialized Channel returns to StateKeypairReady.
func (c *Channel) Reset(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.peerKey = nil
	c.sessionKey.Wipe()
	c.sessionKey = nil

	klog.FromContext(ctx).WithName("channel").V(logs.Debug).Info("Channel reset")
}

// State returns the current lifecycle stage.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.peerKey != nil:
		return StatePeerKeySet
	case c.keyPair != nil:
		return StateKeypairReady
	}
	return StateUninitialized
}

// Status returns a snapshot of the Channel. It has no side effects.
func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Status{
		Initialized:   c.keyPair != nil,
		PeerKeySet:    c.peerKey != nil,
		HasSessionKey: c.sessionKey != nil,
	}
}
