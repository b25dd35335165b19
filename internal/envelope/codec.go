package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jetstack/securechannel/internal/codec"
)

type timeInterface interface {
	now() time.Time
}

var clock timeInterface = &realTime{}

type realTime struct {
}

func (*realTime) now() time.Time {
	return time.Now()
}

// Request holds the decoded fields of a request envelope.
type Request struct {
	MessageID  string
	WrappedKey []byte
	Nonce      []byte
	Kind       DataKind
	Ciphertext []byte
	Timestamp  time.Time
}

// Response holds the decoded fields of a response envelope.
type Response struct {
	MessageID  string
	Nonce      []byte
	Kind       DataKind
	Ciphertext []byte
	Timestamp  time.Time
}

// Encode assembles a request envelope. It stamps the current time and the
// protocol version and performs no validation.
func Encode(messageID string, wrappedKey, nonce []byte, kind DataKind, ciphertext []byte) *Envelope {
	return &Envelope{
		MessageID: messageID,
		Encryption: Encryption{
			Algorithm:     AlgorithmHybrid,
			KeyAlgorithm:  AlgorithmRSA,
			DataAlgorithm: AlgorithmAESGCM,
			EncryptedKey:  codec.EncodeBase64(wrappedKey),
			IV:            codec.EncodeBase64(nonce),
		},
		Data: Data{
			Type:    kind,
			Content: Content{Ciphertext: codec.EncodeBase64(ciphertext)},
		},
		Timestamp: clock.now().UnixMilli(),
		Version:   Version,
	}
}

// EncodeResponse assembles a response envelope for the request identified by
// messageID. The nonce travels inside the content object.
func EncodeResponse(messageID string, nonce []byte, kind DataKind, ciphertext []byte) *Envelope {
	iv := codec.EncodeBase64(nonce)
	return &Envelope{
		MessageID: messageID,
		Encryption: Encryption{
			Algorithm: AlgorithmAESGCM,
			IV:        iv,
		},
		Data: Data{
			Type: kind,
			Content: Content{
				IV:         iv,
				Ciphertext: codec.EncodeBase64(ciphertext),
			},
		},
		Timestamp: clock.now().UnixMilli(),
		Version:   Version,
	}
}

// Parse decodes a JSON envelope. Anything that is not a JSON object with the
// expected field types is ErrInvalidEnvelope.
func Parse(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEnvelope, err)
	}
	return &env, nil
}

// DecodeRequest validates a request envelope and decodes its binary fields.
func DecodeRequest(env *Envelope) (*Request, error) {
	kind, err := checkShape(env)
	if err != nil {
		return nil, err
	}

	if env.Encryption.Algorithm != AlgorithmHybrid {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidEnvelope, env.Encryption.Algorithm)
	}
	if env.Timestamp <= 0 {
		return nil, fmt.Errorf("%w: missing timestamp", ErrInvalidEnvelope)
	}

	wrappedKey, err := requiredField("encryption.encrypted_key", env.Encryption.EncryptedKey)
	if err != nil {
		return nil, err
	}

	// Browser clients put the nonce in encryption.iv; accept it from the
	// content object too.
	iv := env.Encryption.IV
	if iv == "" {
		iv = env.Data.Content.IV
	}
	nonce, err := requiredField("encryption.iv", iv)
	if err != nil {
		return nil, err
	}

	ciphertext, err := requiredField("data.content", env.Data.Content.Ciphertext)
	if err != nil {
		return nil, err
	}

	return &Request{
		MessageID:  env.MessageID,
		WrappedKey: wrappedKey,
		Nonce:      nonce,
		Kind:       kind,
		Ciphertext: ciphertext,
		Timestamp:  time.UnixMilli(env.Timestamp),
	}, nil
}

// DecodeResponse validates a response envelope and decodes its binary fields.
// Both data.content.iv and data.content.ciphertext must be present, and
// encryption.iv, when set, must carry the same nonce.
func DecodeResponse(env *Envelope) (*Response, error) {
	kind, err := checkShape(env)
	if err != nil {
		return nil, err
	}

	nonce, err := requiredField("data.content.iv", env.Data.Content.IV)
	if err != nil {
		return nil, err
	}

	// encryption.iv is a copy of the nonce. It is outside the GCM tag, so a
	// copy that disagrees means the envelope was altered in transit.
	if env.Encryption.IV != "" {
		copied, err := codec.DecodeBase64(env.Encryption.IV)
		if err != nil || !bytes.Equal(copied, nonce) {
			return nil, fmt.Errorf("%w: encryption.iv does not match data.content.iv", ErrAuthenticationFailed)
		}
	}

	ciphertext, err := requiredField("data.content.ciphertext", env.Data.Content.Ciphertext)
	if err != nil {
		return nil, err
	}

	return &Response{
		MessageID:  env.MessageID,
		Nonce:      nonce,
		Kind:       kind,
		Ciphertext: ciphertext,
		Timestamp:  time.UnixMilli(env.Timestamp),
	}, nil
}

func checkShape(env *Envelope) (DataKind, error) {
	if env == nil {
		return "", fmt.Errorf("%w: envelope is nil", ErrInvalidEnvelope)
	}
	if env.MessageID == "" {
		return "", fmt.Errorf("%w: missing message_id", ErrInvalidEnvelope)
	}
	if env.Version != "" && env.Version != Version {
		return "", fmt.Errorf("%w: unsupported version %q", ErrInvalidEnvelope, env.Version)
	}
	return ParseDataKind(string(env.Data.Type))
}

func requiredField(name, value string) ([]byte, error) {
	if value == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformedEnvelope, name)
	}

	b, err := codec.DecodeBase64(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrMalformedEnvelope, name, err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty %s", ErrMalformedEnvelope, name)
	}

	return b, nil
}
