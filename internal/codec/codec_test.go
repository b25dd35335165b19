package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBase64(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      []byte
		expectErr bool
	}{
		{name: "empty", input: "", want: []byte{}},
		{name: "single line", input: "aGVsbG8gd29ybGQ=", want: []byte("hello world")},
		{name: "folded with whitespace", input: "aGVs\nbG8g\r\nd29y bGQ=\t", want: []byte("hello world")},
		{name: "missing padding", input: "aGVsbG8gd29ybGQ", expectErr: true},
		{name: "url alphabet", input: "-_-_", expectErr: true},
		{name: "garbage", input: "not base64!", expectErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeBase64(tc.input)
			if tc.expectErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "failed to decode base64")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEncodeBase64(t *testing.T) {
	assert.Equal(t, "AAEC/w==", EncodeBase64([]byte{0x00, 0x01, 0x02, 0xff}))
	assert.Equal(t, "", EncodeBase64(nil))
}

func TestDecodeText(t *testing.T) {
	s, err := DecodeText(EncodeText("héllo, 世界"))
	require.NoError(t, err)
	assert.Equal(t, "héllo, 世界", s)

	_, err = DecodeText([]byte{0xff, 0xfe, 0xfd})
	require.Error(t, err)
}
