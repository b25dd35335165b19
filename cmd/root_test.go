package cmd

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_setFlagsFromEnv(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	listen := fs.String("listen", ":8080", "")
	token := fs.String("token", "", "")
	ttl := fs.Duration("session-ttl", time.Minute, "")
	echo := fs.Bool("echo", false, "")

	require.NoError(t, fs.Parse([]string{"--token", "from-flag"}))

	t.Setenv("SECURECHANNEL_LISTEN", ":9443")
	t.Setenv("SECURECHANNEL_TOKEN", "from-env")
	t.Setenv("SECURECHANNEL_SESSION_TTL", "2m")

	setFlagsFromEnv("SECURECHANNEL_", fs)

	assert.Equal(t, ":9443", *listen)
	assert.True(t, fs.Changed("listen"))
	assert.Equal(t, "from-flag", *token, "command line wins over the environment")
	assert.Equal(t, 2*time.Minute, *ttl)
	assert.False(t, *echo)
	assert.False(t, fs.Changed("echo"))
}
