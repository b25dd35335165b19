package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/jetstack/securechannel/internal/envelope"
	"github.com/jetstack/securechannel/internal/envelope/keyfetch"
	"github.com/jetstack/securechannel/internal/securechannel"
	"github.com/jetstack/securechannel/internal/server"
	"github.com/jetstack/securechannel/internal/transport"
	"github.com/jetstack/securechannel/pkg/config"
)

var sendFlags struct {
	configFile   string
	endpoint     string
	publicKeyURL string
	token        string
	timeout      time.Duration
	data         string
	kind         string
	retryMaxTime time.Duration
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Encrypts a JSON payload, sends it and prints the decrypted response",
	Long: `Fetches the server's public key, encrypts the JSON payload given with --data
(or read from stdin) under a fresh session key, posts the envelope to the
endpoint and prints the decrypted response.`,
	Example: `  securechannel send --endpoint http://localhost:8080/api/secure/echo --data '{"hello":"world"}'
  echo '{"hostname":"10.0.0.1","username":"root","password":"..."}' | \
    securechannel send --endpoint http://localhost:8080/api/secure/ssh --kind ssh_credentials`,
	Args: cobra.NoArgs,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	flags := sendCmd.PersistentFlags()
	flags.StringVarP(&sendFlags.configFile, "config", "c", "", "Path to a YAML config file.")
	flags.StringVarP(&sendFlags.endpoint, "endpoint", "e", "", "URL of the secure endpoint.")
	flags.StringVar(&sendFlags.publicKeyURL, "public-key-url", "", "URL serving the server's public key as PEM, a key document or a JWKS. Defaults to /api/public-key on the endpoint's host.")
	flags.StringVar(&sendFlags.token, "token", "", "Bearer token for the server. When set, response signatures are verified.")
	flags.DurationVar(&sendFlags.timeout, "timeout", config.DefaultTimeout, "Timeout of each HTTP request.")
	flags.StringVarP(&sendFlags.data, "data", "d", "", "JSON payload. Read from stdin when empty.")
	flags.StringVarP(&sendFlags.kind, "kind", "k", string(envelope.KindRegular), `Data type of the payload: "regular" or "ssh_credentials".`)
	flags.DurationVar(&sendFlags.retryMaxTime, "retry-max-time", time.Minute, "Give up retrying after this long.")
}

// sendOptions is everything a send needs once flags and config are resolved.
type sendOptions struct {
	endpoint     string
	publicKeyURL string
	token        string
	timeout      time.Duration
	kind         envelope.DataKind
	retryMaxTime time.Duration
}

func clientConfig(cmd *cobra.Command) (config.Client, error) {
	cfg, err := config.Load(sendFlags.configFile)
	if err != nil {
		return config.Client{}, err
	}
	c := cfg.Client

	flags := cmd.Flags()
	if flags.Changed("endpoint") {
		c.Endpoint = sendFlags.endpoint
	}
	if flags.Changed("public-key-url") {
		c.PublicKeyURL = sendFlags.publicKeyURL
	}
	if flags.Changed("token") {
		c.Token = sendFlags.token
	}
	if flags.Changed("timeout") {
		c.Timeout = sendFlags.timeout
	}
	return c, nil
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := clientConfig(cmd)
	if err != nil {
		return err
	}

	kind, err := envelope.ParseDataKind(sendFlags.kind)
	if err != nil {
		return err
	}

	payload, err := readPayload(sendFlags.data, cmd.InOrStdin())
	if err != nil {
		return err
	}

	return send(cmd.Context(), sendOptions{
		endpoint:     cfg.Endpoint,
		publicKeyURL: cfg.PublicKeyURL,
		token:        cfg.Token,
		timeout:      cfg.Timeout,
		kind:         kind,
		retryMaxTime: sendFlags.retryMaxTime,
	}, payload, cmd.OutOrStdout())
}

func readPayload(data string, stdin io.Reader) (json.RawMessage, error) {
	raw := []byte(data)
	if data == "" {
		var err error
		raw, err = io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload from stdin: %w", err)
		}
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("payload is empty, use --data or stdin")
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	return raw, nil
}

// defaultPublicKeyURL is PathPublicKey on the endpoint's host.
func defaultPublicKeyURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid endpoint %q: scheme and host are required", endpoint)
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: server.PathPublicKey}).String(), nil
}

func send(ctx context.Context, opts sendOptions, payload json.RawMessage, out io.Writer) error {
	log := klog.FromContext(ctx).WithName("send")

	if opts.endpoint == "" {
		return fmt.Errorf("an endpoint is required, use --endpoint or the client.endpoint config field")
	}

	keyURL := opts.publicKeyURL
	if keyURL == "" {
		var err error
		if keyURL, err = defaultPublicKeyURL(opts.endpoint); err != nil {
			return err
		}
	}

	httpClient := &http.Client{Timeout: opts.timeout}

	fetcher, err := keyfetch.NewClient(keyURL, httpClient)
	if err != nil {
		return err
	}

	sender, err := transport.NewHTTPSender(opts.endpoint, httpClient, opts.token)
	if err != nil {
		return err
	}

	channel := securechannel.New()
	if err := channel.Init(ctx); err != nil {
		return err
	}
	exchanger := transport.NewExchanger(channel, sender)

	var (
		response json.RawMessage
		final    error
	)
	exchange := func() error {
		key, err := fetcher.FetchKey(ctx)
		if err != nil {
			return err
		}
		if err := channel.SetPeerPublicKey(ctx, key.PEM); err != nil {
			final = err
			return nil
		}

		err = exchanger.Exchange(ctx, payload, opts.kind, &response)
		if err == nil || !retryable(err) {
			final = err
			return nil
		}

		var statusErr *transport.StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusUnprocessableEntity {
			// The server may have restarted with a new key pair.
			fetcher.Invalidate()
		}
		return err
	}

	backOff := backoff.NewExponentialBackOff()
	backOff.InitialInterval = 500 * time.Millisecond
	backOff.MaxInterval = 10 * time.Second
	backOff.MaxElapsedTime = opts.retryMaxTime
	err = backoff.RetryNotify(exchange, backoff.WithContext(backOff, ctx), func(err error, t time.Duration) {
		log.Info("Retrying", "after", t, "reason", err.Error())
	})
	if err != nil {
		return err
	}
	if final != nil {
		return final
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, response, "", "  "); err != nil {
		return fmt.Errorf("failed to format response: %w", err)
	}
	_, err = fmt.Fprintln(out, pretty.String())
	return err
}

// retryable reports whether err may go away on a later attempt: transport
// failures, server errors and a rejected session key.
func retryable(err error) bool {
	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= http.StatusInternalServerError || statusErr.Code == http.StatusUnprocessableEntity
	}

	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
