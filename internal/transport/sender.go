// Package transport moves envelopes between a client and a secure channel server over HTTP.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"k8s.io/klog/v2"

	"github.com/jetstack/securechannel/internal/envelope"
	"github.com/jetstack/securechannel/internal/envelope/integrity"
	"github.com/jetstack/securechannel/pkg/version"
)

const (
	// SignatureHeader carries a base64 HMAC-SHA256 of the response body when
	// the server is configured with a bearer token.
	SignatureHeader = "X-Securechannel-Signature"

	signatureInfo = "securechannel response signature"

	// maxResponseBodySize bounds the response body read by HTTPSender.
	maxResponseBodySize = 10 << 20
)

// Sender delivers a request envelope and returns the response envelope.
type Sender interface {
	Send(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error)
}

// Compile-time check that HTTPSender implements Sender
var _ Sender = (*HTTPSender)(nil)

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("received response with status code %d: %s", e.Code, e.Message)
}

// SigningKey derives the HMAC key used for SignatureHeader from a bearer
// token.
func SigningKey(token string) ([]byte, error) {
	return integrity.DeriveKey([]byte(token), signatureInfo)
}

// HTTPSender POSTs envelopes as JSON to a single endpoint.
type HTTPSender struct {
	endpoint   string
	httpClient *http.Client
	token      string
	signingKey []byte
}

// NewHTTPSender creates a sender for endpoint. When token is not empty it is
// sent as a bearer token and the response signature is required.
// If httpClient is nil, a default HTTP client will be created.
func NewHTTPSender(endpoint string, httpClient *http.Client, token string) (*HTTPSender, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	s := &HTTPSender{
		endpoint:   endpoint,
		httpClient: httpClient,
		token:      token,
	}

	if token != "" {
		key, err := SigningKey(token)
		if err != nil {
			return nil, err
		}
		s.signingKey = key
	}

	return s, nil
}

// Send implements Sender.
func (s *HTTPSender) Send(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
	log := klog.FromContext(ctx).WithName("transport")

	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", envelope.ErrSerializationFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	version.SetUserAgent(req)

	res, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send envelope to %s: %w", s.endpoint, err)
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if code := res.StatusCode; code < 200 || code >= 300 {
		return nil, statusError(code, respBody)
	}

	if s.signingKey != nil {
		if !integrity.VerifyBase64(s.signingKey, string(respBody), res.Header.Get(SignatureHeader)) {
			return nil, fmt.Errorf("%w: response signature does not verify", envelope.ErrAuthenticationFailed)
		}
	}

	resp, err := envelope.Parse(respBody)
	if err != nil {
		return nil, err
	}

	log.V(2).Info("Received response", "messageID", resp.MessageID, "status", res.StatusCode, "bytes", len(respBody))
	return resp, nil
}

func statusError(code int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return &StatusError{Code: code, Message: payload.Error}
	}

	if len(body) > 500 {
		body = body[:500]
	}
	return &StatusError{Code: code, Message: string(bytes.TrimSpace(body))}
}
