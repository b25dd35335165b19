package securechannel

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pmylund/go-cache"
	"k8s.io/klog/v2"

	"github.com/jetstack/securechannel/internal/envelope"
	internalrsa "github.com/jetstack/securechannel/internal/envelope/rsa"
	"github.com/jetstack/securechannel/internal/envelope/session"
	"github.com/jetstack/securechannel/pkg/logs"
)

// DefaultSessionTTL is how long a Responder keeps the session key of a
// request that has not been answered.
const DefaultSessionTTL = 5 * time.Minute

// Request is a decrypted request.
type Request struct {
	MessageID string
	Kind      envelope.DataKind
	// Payload is the decrypted JSON document.
	Payload   json.RawMessage
	Timestamp time.Time
}

type pendingSession struct {
	mu   sync.Mutex
	key  *session.Key
	kind envelope.DataKind
}

// take hands the key to exactly one caller: SealResponse or the eviction
// hook. Later calls get nil.
func (p *pendingSession) take() *session.Key {
	p.mu.Lock()
	defer p.mu.Unlock()

	k := p.key
	p.key = nil
	return k
}

// Responder is the server side of the secure channel.
type Responder struct {
	keyPair      *internalrsa.KeyPair
	keyID        string
	publicKeyPEM string

	// sessions maps message id to *pendingSession. mu serializes the
	// replacement of an entry so the previous key is always wiped.
	mu       sync.Mutex
	sessions *cache.Cache
}

// NewResponder returns a Responder that decrypts requests wrapped under
// keyPair. Session keys of unanswered requests expire after ttl, or
// DefaultSessionTTL if ttl is not positive.
func NewResponder(keyPair *internalrsa.KeyPair, ttl time.Duration) (*Responder, error) {
	if keyPair == nil {
		return nil, fmt.Errorf("%w: key pair cannot be nil", envelope.ErrMalformedKey)
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	publicKeyPEM, err := internalrsa.ExportPublicKeyPEM(keyPair.PublicKey)
	if err != nil {
		return nil, err
	}

	sessions := cache.New(ttl, ttl/2)
	sessions.OnEvicted(func(_ string, v interface{}) {
		if p, ok := v.(*pendingSession); ok {
			p.take().Wipe()
		}
	})

	return &Responder{
		keyPair:      keyPair,
		keyID:        uuid.NewString(),
		publicKeyPEM: publicKeyPEM,
		sessions:     sessions,
	}, nil
}

// KeyID identifies the Responder's public key. It changes on every start.
func (r *Responder) KeyID() string {
	return r.keyID
}

func (r *Responder) PublicKey() *rsa.PublicKey {
	return r.keyPair.PublicKey
}

// PublicKeyPEM is the text clients pass to Channel.SetPeerPublicKey.
func (r *Responder) PublicKeyPEM() string {
	return r.publicKeyPEM
}

// Pending returns the number of requests still waiting for a response.
func (r *Responder) Pending() int {
	return r.sessions.ItemCount()
}

// OpenRequest unwraps the session key of env, decrypts its payload and keeps
// the session key until SealResponse is called for the same message id.
// A repeated message id replaces the earlier pending session.
func (r *Responder) OpenRequest(ctx context.Context, env *envelope.Envelope) (*Request, error) {
	log := klog.FromContext(ctx).WithName("responder")

	req, err := envelope.DecodeRequest(env)
	if err != nil {
		return nil, err
	}

	raw, err := internalrsa.DecryptBlock(r.keyPair.PrivateKey, req.WrappedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap session key: %w", err)
	}

	key, err := session.ImportKey(raw)
	clear(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to import session key: %w", err)
	}

	plaintext, err := session.Open(key, req.Nonce, req.Ciphertext)
	if err != nil {
		key.Wipe()
		return nil, err
	}

	if !json.Valid(plaintext) {
		key.Wipe()
		return nil, fmt.Errorf("%w: request payload is not valid JSON", envelope.ErrDeserializationFailed)
	}

	r.mu.Lock()
	// Delete runs the eviction hook on a pending session with the same id.
	r.sessions.Delete(req.MessageID)
	r.sessions.Set(req.MessageID, &pendingSession{key: key, kind: req.Kind}, cache.DefaultExpiration)
	r.mu.Unlock()

	log.V(logs.Debug).Info("Opened request", "messageID", req.MessageID, "kind", req.Kind, "bytes", len(plaintext))

	return &Request{
		MessageID: req.MessageID,
		Kind:      req.Kind,
		Payload:   plaintext,
		Timestamp: req.Timestamp,
	}, nil
}

// SealResponse encrypts payload under the session key of the request with
// messageID, using a fresh nonce, and then forgets that key.
func (r *Responder) SealResponse(ctx context.Context, messageID string, payload any) (*envelope.Envelope, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: payload cannot be nil", envelope.ErrSerializationFailed)
	}
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", envelope.ErrSerializationFailed, err)
	}

	r.mu.Lock()
	v, ok := r.sessions.Get(messageID)
	var key *session.Key
	var kind envelope.DataKind
	if ok {
		pending := v.(*pendingSession)
		key, kind = pending.take(), pending.kind
		r.sessions.Delete(messageID)
	}
	r.mu.Unlock()

	// The janitor may have expired the session after Get.
	if key == nil {
		return nil, fmt.Errorf("%w: no pending request with message id %q", envelope.ErrNoSessionKey, messageID)
	}
	defer key.Wipe()

	nonce, ciphertext, err := session.Seal(key, plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to seal response: %w", err)
	}

	klog.FromContext(ctx).WithName("responder").V(logs.Debug).Info("Sealed response", "messageID", messageID, "bytes", len(plaintext))

	return envelope.EncodeResponse(messageID, nonce, kind, ciphertext), nil
}
