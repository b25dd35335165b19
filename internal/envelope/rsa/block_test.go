package rsa_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jetstack/securechannel/internal/envelope"
	internalrsa "github.com/jetstack/securechannel/internal/envelope/rsa"
)

func TestMaxBlockSize(t *testing.T) {
	keyPair, err := internalrsa.GenerateKeyPair()
	require.NoError(t, err)

	assert.Equal(t, 190, internalrsa.MaxBlockSize(keyPair.PublicKey))
}

func TestEncryptBlock(t *testing.T) {
	keyPair, err := internalrsa.GenerateKeyPair()
	require.NoError(t, err)

	testCases := []struct {
		name    string
		size    int
		wantErr error
	}{
		{name: "empty", size: 0},
		{name: "session key", size: 32},
		{name: "at limit", size: 190},
		{name: "over limit", size: 191, wantErr: envelope.ErrPayloadTooLarge},
		{name: "far over limit", size: 4096, wantErr: envelope.ErrPayloadTooLarge},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data := bytes.Repeat([]byte{0xab}, tc.size)

			ciphertext, err := internalrsa.EncryptBlock(keyPair.PublicKey, data)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				require.Nil(t, ciphertext)
				return
			}
			require.NoError(t, err)
			require.Len(t, ciphertext, 256)

			plaintext, err := internalrsa.DecryptBlock(keyPair.PrivateKey, ciphertext)
			require.NoError(t, err)
			require.Equal(t, len(data), len(plaintext))
			require.True(t, bytes.Equal(data, plaintext))
		})
	}
}

func TestEncryptBlock_NonDeterministic(t *testing.T) {
	keyPair, err := internalrsa.GenerateKeyPair()
	require.NoError(t, err)

	first, err := internalrsa.EncryptBlock(keyPair.PublicKey, []byte("same input"))
	require.NoError(t, err)
	second, err := internalrsa.EncryptBlock(keyPair.PublicKey, []byte("same input"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestDecryptBlock_Failures(t *testing.T) {
	keyPair, err := internalrsa.GenerateKeyPair()
	require.NoError(t, err)
	other, err := internalrsa.GenerateKeyPair()
	require.NoError(t, err)

	ciphertext, err := internalrsa.EncryptBlock(keyPair.PublicKey, []byte("session key bytes"))
	require.NoError(t, err)

	t.Run("wrong key", func(t *testing.T) {
		_, err := internalrsa.DecryptBlock(other.PrivateKey, ciphertext)
		require.ErrorIs(t, err, envelope.ErrAuthenticationFailed)
	})

	t.Run("flipped byte", func(t *testing.T) {
		tampered := bytes.Clone(ciphertext)
		tampered[100] ^= 0x01
		_, err := internalrsa.DecryptBlock(keyPair.PrivateKey, tampered)
		require.ErrorIs(t, err, envelope.ErrAuthenticationFailed)
	})

	t.Run("nil key", func(t *testing.T) {
		_, err := internalrsa.DecryptBlock(nil, ciphertext)
		require.ErrorIs(t, err, envelope.ErrMalformedKey)
	})
}
