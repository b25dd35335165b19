// Package config reads the YAML configuration file shared by the serve and
// send commands. Command-line flags and SECURECHANNEL_ environment variables
// take precedence over the values read here.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	DefaultListen     = ":8080"
	DefaultSessionTTL = 5 * time.Minute
	DefaultTimeout    = 30 * time.Second
)

// Config wraps the options for both halves of the channel.
type Config struct {
	Server Server `yaml:"server"`
	Client Client `yaml:"client"`
}

// Server is the configuration of `securechannel serve`.
type Server struct {
	Listen         string        `yaml:"listen"`
	Token          string        `yaml:"token,omitempty"`
	SessionTTL     time.Duration `yaml:"session-ttl"`
	PrivateKeyFile string        `yaml:"private-key-file,omitempty"`
	Echo           bool          `yaml:"echo"`
	AllowedOrigins []string      `yaml:"allowed-origins,omitempty"`
}

// Client is the configuration of `securechannel send`.
type Client struct {
	Endpoint     string        `yaml:"endpoint"`
	PublicKeyURL string        `yaml:"public-key-url,omitempty"`
	Token        string        `yaml:"token,omitempty"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Default returns a Config with every default applied.
func Default() Config {
	return Config{
		Server: Server{
			Listen:     DefaultListen,
			SessionTTL: DefaultSessionTTL,
		},
		Client: Client{
			Timeout: DefaultTimeout,
		},
	}
}

// Dump generates a YAML string of the Config object
func (c *Config) Dump() (string, error) {
	d, err := yaml.Marshal(c)
	if err != nil {
		return "", errors.Wrap(err, "failed to generate YAML dump of config")
	}

	return string(d), nil
}

func (c *Config) validate() error {
	var result *multierror.Error

	if c.Server.Listen == "" {
		result = multierror.Append(result, fmt.Errorf("server listen address is required"))
	}

	if c.Server.SessionTTL <= 0 {
		result = multierror.Append(result, fmt.Errorf("server session-ttl must be positive, got %s", c.Server.SessionTTL))
	}

	if c.Client.Timeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("client timeout must be positive, got %s", c.Client.Timeout))
	}

	for name, raw := range map[string]string{
		"client endpoint":       c.Client.Endpoint,
		"client public-key-url": c.Client.PublicKeyURL,
	} {
		if raw == "" {
			continue
		}
		if err := checkURL(raw); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", name, err))
		}
	}

	return result.ErrorOrNil()
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}

// ParseConfig reads data over the defaults and validates the result.
func ParseConfig(data []byte) (Config, error) {
	config := Default()

	if err := yaml.UnmarshalStrict(data, &config); err != nil {
		return config, errors.Wrap(err, "failed to parse config")
	}

	if err := config.validate(); err != nil {
		return config, err
	}

	return config, nil
}

// Load reads the config file at path. An empty path returns the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to read config file %s", path)
	}

	return ParseConfig(data)
}
