package keyfetch

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"sync"
)

// Compile-time check that FakeClient implements KeyFetcher
var _ KeyFetcher = (*FakeClient)(nil)

// FakeClient is a fake implementation of the key fetcher for testing.
// It can be configured to return specific keys or errors for testing different scenarios.
type FakeClient struct {
	// Key is the public key that will be returned by FetchKey.
	// If nil, a random key will be generated on the first call.
	// An empty PEM field is filled in from Key.Key.
	Key *PublicKey

	// Err is the error that will be returned by FetchKey.
	// If both Key and Err are set, Err takes precedence.
	Err error

	// FetchKeyCalls tracks how many times FetchKey was called
	FetchKeyCalls int

	mu sync.Mutex
}

// NewFakeClient creates a new fake client for testing.
func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

// NewFakeClientWithKey creates a new fake client that returns the specified key.
func NewFakeClientWithKey(keyID string, key *rsa.PublicKey) *FakeClient {
	return &FakeClient{
		Key: &PublicKey{
			KeyID: keyID,
			Key:   key,
		},
	}
}

// NewFakeClientWithError creates a new fake client that returns the specified error.
func NewFakeClientWithError(err error) *FakeClient {
	return &FakeClient{
		Err: err,
	}
}

// FetchKey implements the key fetching interface for testing.
// It returns the configured key or error, or generates a random key if none is configured.
func (f *FakeClient) FetchKey(ctx context.Context) (PublicKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.FetchKeyCalls++

	// Check if context is canceled
	if ctx.Err() != nil {
		return PublicKey{}, ctx.Err()
	}

	// If an error is configured, return it
	if f.Err != nil {
		return PublicKey{}, f.Err
	}

	if f.Key == nil {
		// Generate a random key for testing
		privateKey, err := rsa.GenerateKey(rand.Reader, minRSAKeySize)
		if err != nil {
			return PublicKey{}, fmt.Errorf("failed to generate test key: %w", err)
		}

		// Cache the generated key for subsequent calls
		f.Key = &PublicKey{
			KeyID: "test-key",
			Key:   &privateKey.PublicKey,
		}
	}

	if f.Key.PEM == "" && f.Key.Key != nil {
		key, err := newPublicKey(f.Key.KeyID, f.Key.Key)
		if err != nil {
			return PublicKey{}, err
		}
		f.Key = &key
	}

	return *f.Key, nil
}
