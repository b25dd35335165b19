package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	internalrsa "github.com/jetstack/securechannel/internal/envelope/rsa"
	"github.com/jetstack/securechannel/internal/securechannel"
	"github.com/jetstack/securechannel/internal/server"
	"github.com/jetstack/securechannel/pkg/config"
)

var serveFlags struct {
	configFile     string
	listen         string
	token          string
	sessionTTL     time.Duration
	privateKeyFile string
	echo           bool
	compact        bool
	allowedOrigins []string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts a server that answers encrypted requests",
	Long: `Starts an HTTP server that publishes its RSA public key at /api/public-key
and /.well-known/jwks.json, decrypts requests posted to /api/secure/echo and
/api/secure/ssh, and answers with responses encrypted under the request's
session key.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	flags := serveCmd.PersistentFlags()
	flags.StringVarP(&serveFlags.configFile, "config", "c", "", "Path to a YAML config file.")
	flags.StringVarP(&serveFlags.listen, "listen", "l", config.DefaultListen, "Address where to listen.")
	flags.StringVar(&serveFlags.token, "token", "", "Bearer token required on the secure endpoints. Also keys the response signatures.")
	flags.DurationVar(&serveFlags.sessionTTL, "session-ttl", config.DefaultSessionTTL, "How long the session key of an unanswered request is kept.")
	flags.StringVar(&serveFlags.privateKeyFile, "private-key-file", "", "PEM private key to use instead of generating one at startup.")
	flags.BoolVar(&serveFlags.echo, "echo", false, "Prints decrypted regular payloads. Sensitive payloads are always redacted.")
	flags.BoolVar(&serveFlags.compact, "compact", false, "Prints compact output.")
	flags.StringSliceVar(&serveFlags.allowedOrigins, "allowed-origins", nil, "CORS origins allowed to call the server. Defaults to all.")
}

// serverConfig overlays the flags the user set on the config file.
func serverConfig(cmd *cobra.Command) (config.Server, error) {
	cfg, err := config.Load(serveFlags.configFile)
	if err != nil {
		return config.Server{}, err
	}
	s := cfg.Server

	flags := cmd.Flags()
	if flags.Changed("listen") {
		s.Listen = serveFlags.listen
	}
	if flags.Changed("token") {
		s.Token = serveFlags.token
	}
	if flags.Changed("session-ttl") {
		s.SessionTTL = serveFlags.sessionTTL
	}
	if flags.Changed("private-key-file") {
		s.PrivateKeyFile = serveFlags.privateKeyFile
	}
	if flags.Changed("echo") {
		s.Echo = serveFlags.echo
	}
	if flags.Changed("allowed-origins") {
		s.AllowedOrigins = serveFlags.allowedOrigins
	}
	return s, nil
}

func loadKeyPair(path string) (*internalrsa.KeyPair, error) {
	if path == "" {
		return internalrsa.GenerateKeyPair()
	}
	return internalrsa.LoadPrivateKeyFromPEMFile(path)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := klog.FromContext(ctx).WithName("serve")
	ctx = klog.NewContext(ctx, log)

	cfg, err := serverConfig(cmd)
	if err != nil {
		return err
	}

	keyPair, err := loadKeyPair(cfg.PrivateKeyFile)
	if err != nil {
		return err
	}

	responder, err := securechannel.NewResponder(keyPair, cfg.SessionTTL)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Options{
		Responder:      responder,
		Token:          cfg.Token,
		Echo:           cfg.Echo,
		Compact:        serveFlags.compact,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	if err != nil {
		return err
	}

	if cfg.Token == "" {
		log.Info("No token configured, the secure endpoints accept anonymous requests and responses are unsigned")
	}

	return srv.ListenAndServe(ctx, cfg.Listen)
}
