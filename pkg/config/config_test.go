package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	config, err := ParseConfig([]byte(`
server:
  listen: 127.0.0.1:9443
  token: s3cret
  session-ttl: 2m
  echo: true
  allowed-origins:
  - https://app.example.com
client:
  endpoint: https://api.example.com/api/secure/echo
  public-key-url: https://api.example.com/.well-known/jwks.json
  timeout: 10s
`))
	require.NoError(t, err)

	assert.Equal(t, Config{
		Server: Server{
			Listen:         "127.0.0.1:9443",
			Token:          "s3cret",
			SessionTTL:     2 * time.Minute,
			Echo:           true,
			AllowedOrigins: []string{"https://app.example.com"},
		},
		Client: Client{
			Endpoint:     "https://api.example.com/api/secure/echo",
			PublicKeyURL: "https://api.example.com/.well-known/jwks.json",
			Timeout:      10 * time.Second,
		},
	}, config)
}

func TestParseConfig_Defaults(t *testing.T) {
	config, err := ParseConfig([]byte(`
client:
  endpoint: http://localhost:8080/api/secure/echo
`))
	require.NoError(t, err)

	assert.Equal(t, DefaultListen, config.Server.Listen)
	assert.Equal(t, DefaultSessionTTL, config.Server.SessionTTL)
	assert.Equal(t, DefaultTimeout, config.Client.Timeout)
}

func TestParseConfig_Invalid(t *testing.T) {
	t.Run("unknown field", func(t *testing.T) {
		_, err := ParseConfig([]byte("server:\n  listne: :80\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config")
	})

	t.Run("all problems are reported", func(t *testing.T) {
		_, err := ParseConfig([]byte(`
server:
  listen: ""
  session-ttl: -1s
client:
  endpoint: ftp://example.com
  public-key-url: https://
  timeout: 0s
`))
		require.Error(t, err)
		msg := err.Error()
		assert.Contains(t, msg, "5 errors occurred")
		assert.Contains(t, msg, "server listen address is required")
		assert.Contains(t, msg, "server session-ttl must be positive, got -1s")
		assert.Contains(t, msg, "client timeout must be positive, got 0s")
		assert.Contains(t, msg, `client endpoint: "ftp://example.com" must use http or https`)
		assert.Contains(t, msg, `client public-key-url: "https://" has no host`)
	})
}

func TestLoad(t *testing.T) {
	t.Run("empty path gives the defaults", func(t *testing.T) {
		config, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), config)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config file")
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  listen: :9000\n"), 0o600))

		config, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, ":9000", config.Server.Listen)
	})
}

func TestDump(t *testing.T) {
	config := Default()
	config.Client.Endpoint = "http://localhost:8080/api/secure/echo"

	out, err := config.Dump()
	require.NoError(t, err)

	parsed, err := ParseConfig([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, config, parsed)
}
