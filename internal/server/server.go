// Package server exposes a Responder over HTTP: it publishes the server's public key and answers
// encrypted requests with encrypted responses.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	"github.com/jetstack/securechannel/internal/securechannel"
	"github.com/jetstack/securechannel/internal/transport"
)

const (
	PathPublicKey  = "/api/public-key"
	PathJWKS       = "/.well-known/jwks.json"
	PathSecureEcho = "/api/secure/echo"
	PathSecureSSH  = "/api/secure/ssh"
	PathHealth     = "/healthz"
	PathMetrics    = "/metrics"

	// maxEnvelopeSize bounds request bodies on the secure endpoints.
	maxEnvelopeSize = 1 << 20

	shutdownTimeout = 10 * time.Second
)

// Options configures a Server.
type Options struct {
	// Responder decrypts requests and seals responses. Required.
	Responder *securechannel.Responder

	// Token, when set, must be presented as a bearer token on the secure
	// endpoints and is used to sign response bodies.
	Token string

	// Echo prints decrypted regular payloads to Output.
	Echo bool

	// Compact prints echoed payloads without indentation.
	Compact bool

	// Output receives the echo. Defaults to os.Stdout.
	Output io.Writer

	// AllowedOrigins for CORS. Defaults to all origins.
	AllowedOrigins []string
}

// Server is the HTTP front end of a Responder.
type Server struct {
	responder  *securechannel.Responder
	token      string
	signingKey []byte
	console    *console
	router     chi.Router
}

// New builds a Server and its routes.
func New(opts Options) (*Server, error) {
	if opts.Responder == nil {
		return nil, fmt.Errorf("responder cannot be nil")
	}

	s := &Server{
		responder: opts.Responder,
		token:     opts.Token,
	}

	if opts.Token != "" {
		key, err := transport.SigningKey(opts.Token)
		if err != nil {
			return nil, err
		}
		s.signingKey = key
	}

	if opts.Echo {
		out := opts.Output
		if out == nil {
			out = os.Stdout
		}
		s.console = &console{out: out, compact: opts.Compact}
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{transport.SignatureHeader},
		MaxAge:         300,
	}))

	r.Get(PathHealth, s.handleHealth)
	r.Handle(PathMetrics, promhttp.Handler())
	r.Get(PathPublicKey, s.handlePublicKey)
	r.Get(PathJWKS, s.handleJWKS)

	r.Group(func(r chi.Router) {
		r.Use(requireToken(opts.Token))
		r.Use(chimw.AllowContentType("application/json"))

		r.Post(PathSecureEcho, s.handleSecureEcho)
		r.Post(PathSecureSSH, s.handleSecureSSH)
	})

	s.router = r
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	log := klog.FromContext(ctx).WithName("server")

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Listening for requests", "addr", addr, "keyID", s.responder.KeyID())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	return nil
}
