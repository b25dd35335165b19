package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	// Version is the protocol version stamped on every envelope.
	Version = "1.0"

	AlgorithmHybrid = "RSA-OAEP-AES-GCM"
	AlgorithmRSA    = "RSA-OAEP"
	AlgorithmAESGCM = "AES-GCM"
)

// DataKind tags the payload carried by an envelope. It only has two values.
type DataKind string

const (
	// KindRegular is an ordinary application payload.
	KindRegular DataKind = "regular"
	// KindSensitive is a payload carrying credentials. Receivers must not
	// log or echo it.
	KindSensitive DataKind = "ssh_credentials"
)

// ParseDataKind returns the DataKind named by s. An empty string is treated
// as KindRegular.
func ParseDataKind(s string) (DataKind, error) {
	switch DataKind(s) {
	case "", KindRegular:
		return KindRegular, nil
	case KindSensitive:
		return KindSensitive, nil
	}
	return "", fmt.Errorf("%w: unknown data type %q", ErrInvalidEnvelope, s)
}

func (k DataKind) String() string {
	return string(k)
}

// Envelope is the message exchanged between client and server.
type Envelope struct {
	MessageID  string     `json:"message_id"`
	Encryption Encryption `json:"encryption"`
	Data       Data       `json:"data"`
	// Timestamp is the encode time in milliseconds since the Unix epoch.
	Timestamp int64  `json:"timestamp"`
	Version   string `json:"version,omitempty"`
}

// Encryption describes how the payload was protected. All binary fields are
// standard base64.
type Encryption struct {
	Algorithm     string `json:"algorithm"`
	KeyAlgorithm  string `json:"key_algorithm,omitempty"`
	DataAlgorithm string `json:"data_algorithm,omitempty"`
	EncryptedKey  string `json:"encrypted_key,omitempty"`
	IV            string `json:"iv,omitempty"`
}

// Data holds the sealed payload.
type Data struct {
	Type    DataKind `json:"type"`
	Content Content  `json:"content"`
}

// Content is the sealed payload. Requests carry it as a bare base64 string
// with the nonce in Encryption.IV. Responses carry it as an object holding
// both the nonce and the ciphertext.
type Content struct {
	IV         string
	Ciphertext string
}

type contentObject struct {
	IV         string `json:"iv,omitempty"`
	Ciphertext string `json:"ciphertext,omitempty"`
}

// MarshalJSON writes the object form when an IV is present and the string
// form otherwise.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.IV == "" {
		return json.Marshal(c.Ciphertext)
	}
	return json.Marshal(contentObject(c))
}

// UnmarshalJSON accepts both the string and the object form.
func (c *Content) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = Content{}
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = Content{Ciphertext: s}
		return nil
	}

	var obj contentObject
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*c = Content(obj)
	return nil
}
