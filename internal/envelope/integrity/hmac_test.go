package integrity

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign(t *testing.T) {
	// RFC 4231 test case 2
	tag := Sign([]byte("Jefe"), []byte("what do ya want for nothing?"))
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", hex.EncodeToString(tag))
}

func TestVerify(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	message := []byte(`{"x":1}`)
	tag := Sign(key, message)

	assert.True(t, Verify(key, message, tag))
	assert.False(t, Verify([]byte("another key"), message, tag))
	assert.False(t, Verify(key, []byte(`{"x":2}`), tag))
	assert.False(t, Verify(key, message, tag[:TagSize-1]))

	tampered := append([]byte(nil), tag...)
	tampered[0] ^= 0x80
	assert.False(t, Verify(key, message, tampered))
}

func TestBase64Tags(t *testing.T) {
	key := []byte("k")

	tag := SignBase64(key, "hello")
	assert.True(t, VerifyBase64(key, "hello", tag))
	assert.False(t, VerifyBase64(key, "hellO", tag))
	assert.False(t, VerifyBase64(key, "hello", "***"))
}

func TestDeriveKey(t *testing.T) {
	secret := make([]byte, 32)

	a, err := DeriveKey(secret, "request")
	require.NoError(t, err)
	require.Len(t, a, TagSize)

	again, err := DeriveKey(secret, "request")
	require.NoError(t, err)
	assert.Equal(t, a, again)

	b, err := DeriveKey(secret, "response")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, secret, a)

	_, err = DeriveKey(nil, "request")
	require.Error(t, err)
}
