package keyfetch

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"k8s.io/klog/v2"

	internalrsa "github.com/jetstack/securechannel/internal/envelope/rsa"
	"github.com/jetstack/securechannel/pkg/version"
)

const (
	// minRSAKeySize is the minimum RSA key size in bits; we'd expect that keys will be larger but 2048 is a sane floor
	// to enforce to ensure that a weak key can't accidentally be used
	minRSAKeySize = 2048

	// cacheTTL is how long a fetched key is reused before the endpoint is queried again.
	cacheTTL = 15 * time.Minute

	// maxBodySize bounds the response body; a key set is a few kilobytes at most.
	maxBodySize = 1 << 20
)

// KeyFetcher is an interface for fetching public keys.
type KeyFetcher interface {
	// FetchKey retrieves a public key from the key source.
	FetchKey(ctx context.Context) (PublicKey, error)
}

// Compile-time check that Client implements KeyFetcher
var _ KeyFetcher = (*Client)(nil)

// PublicKey represents an RSA public key retrieved from the key server.
type PublicKey struct {
	// KeyID is the unique identifier for this key. It may be empty for
	// endpoints that serve bare PEM.
	KeyID string

	// PEM is the key in the textual format accepted by the secure channel.
	PEM string

	// Key is the actual RSA public key
	Key *rsa.PublicKey
}

// keyDocument is the JSON form served by the secure channel server.
type keyDocument struct {
	PublicKey string `json:"public_key"`
	KeyID     string `json:"key_id"`
}

// Client fetches the public key from a single URL.
type Client struct {
	endpoint string

	// httpClient is the HTTP client used for requests
	httpClient *http.Client

	cachedKey      PublicKey
	cachedKeyMutex sync.Mutex
	cachedKeyTime  time.Time
}

// NewClient creates a new key fetching client for endpoint.
// If httpClient is nil, a default HTTP client will be created.
func NewClient(endpoint string, httpClient *http.Client) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("key endpoint cannot be empty")
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
	}, nil
}

// Invalidate drops the cached key so that the next FetchKey queries the
// endpoint.
func (c *Client) Invalidate() {
	c.cachedKeyMutex.Lock()
	defer c.cachedKeyMutex.Unlock()

	c.cachedKey = PublicKey{}
	c.cachedKeyTime = time.Time{}
}

// FetchKey retrieves the public key from the configured endpoint. Results are
// cached for 15 minutes.
func (c *Client) FetchKey(ctx context.Context) (PublicKey, error) {
	logger := klog.FromContext(ctx).WithName("keyfetch")
	c.cachedKeyMutex.Lock()
	defer c.cachedKeyMutex.Unlock()

	if c.cachedKey.Key != nil && time.Since(c.cachedKeyTime) < cacheTTL {
		logger.V(2).Info("using cached key", "fetchedAt", c.cachedKeyTime.Format(time.RFC3339Nano), "kid", c.cachedKey.KeyID)
		return c.cachedKey, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return PublicKey{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json, application/x-pem-file, text/plain")
	version.SetUserAgent(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return PublicKey{}, fmt.Errorf("failed to fetch key from %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return PublicKey{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return PublicKey{}, fmt.Errorf("unexpected status code %d from %s: %s", resp.StatusCode, c.endpoint, string(body))
	}

	var key PublicKey
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case mediaType == "application/json" || bytes.HasPrefix(bytes.TrimSpace(body), []byte("{")):
		key, err = parseJSON(body)
	default:
		key, err = parsePEM(string(body), "")
	}
	if err != nil {
		return PublicKey{}, fmt.Errorf("no valid RSA key found at %s: %w", c.endpoint, err)
	}

	logger.Info("fetched valid RSA key", "kid", key.KeyID)

	c.cachedKey = key
	c.cachedKeyTime = time.Now()

	return c.cachedKey, nil
}

func parseJSON(body []byte) (PublicKey, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return PublicKey{}, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	if _, ok := probe["keys"]; ok {
		return parseJWKS(body)
	}

	var doc keyDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return PublicKey{}, fmt.Errorf("failed to parse key document: %w", err)
	}
	if doc.PublicKey == "" {
		return PublicKey{}, fmt.Errorf("response has neither \"keys\" nor \"public_key\"")
	}

	return parsePEM(doc.PublicKey, doc.KeyID)
}

func parsePEM(text, kid string) (PublicKey, error) {
	rsaKey, err := internalrsa.ImportPublicKeyPEM(text)
	if err != nil {
		return PublicKey{}, err
	}

	return newPublicKey(kid, rsaKey)
}

func parseJWKS(body []byte) (PublicKey, error) {
	keySet, err := jwk.Parse(body)
	if err != nil {
		return PublicKey{}, fmt.Errorf("failed to parse JWKs response: %w", err)
	}

	for i := range keySet.Len() {
		key, ok := keySet.Key(i)
		if !ok {
			continue
		}

		// Only process RSA keys
		if key.KeyType().String() != "RSA" {
			continue
		}

		var rawKey any
		if err := jwk.Export(key, &rawKey); err != nil {
			// skip unparseable keys
			continue
		}

		rsaKey, ok := rawKey.(*rsa.PublicKey)
		if !ok {
			// only process RSA keys (for now)
			continue
		}

		if rsaKey.N.BitLen() < minRSAKeySize {
			// skip keys that are too small to be secure
			continue
		}

		kid, ok := key.KeyID()
		if !ok {
			// skip any keys which don't have an ID
			continue
		}

		alg, ok := key.Algorithm()
		if !ok {
			// skip any keys which don't have an algorithm specified
			continue
		}

		if alg.String() != "RSA-OAEP-256" {
			// we only use RSA keys for RSA-OAEP-256
			continue
		}

		// return the first valid key we find
		return newPublicKey(kid, rsaKey)
	}

	return PublicKey{}, fmt.Errorf("no RSA-OAEP-256 key of at least %d bits in key set", minRSAKeySize)
}

func newPublicKey(kid string, rsaKey *rsa.PublicKey) (PublicKey, error) {
	text, err := internalrsa.ExportPublicKeyPEM(rsaKey)
	if err != nil {
		return PublicKey{}, err
	}

	return PublicKey{
		KeyID: kid,
		PEM:   text,
		Key:   rsaKey,
	}, nil
}
