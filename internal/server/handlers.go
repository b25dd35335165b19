package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"k8s.io/klog/v2"

	"github.com/jetstack/securechannel/internal/envelope"
	"github.com/jetstack/securechannel/internal/envelope/integrity"
	"github.com/jetstack/securechannel/internal/securechannel"
	"github.com/jetstack/securechannel/internal/transport"
)

// publicKeyResponse is the body served at PathPublicKey.
type publicKeyResponse struct {
	PublicKey string `json:"public_key"`
	KeyID     string `json:"key_id"`
	Algorithm string `json:"algorithm"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":           "ok",
		"pending_sessions": s.responder.Pending(),
	})
}

func (s *Server) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, publicKeyResponse{
		PublicKey: s.responder.PublicKeyPEM(),
		KeyID:     s.responder.KeyID(),
		Algorithm: envelope.AlgorithmRSA,
	})
}

func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	set, err := s.keySet()
	if err != nil {
		writeError(w, r, fmt.Sprintf("building key set: %s", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, http.StatusOK, set)
}

func (s *Server) keySet() (jwk.Set, error) {
	key, err := jwk.Import(s.responder.PublicKey())
	if err != nil {
		return nil, fmt.Errorf("failed to import public key: %w", err)
	}

	if err := key.Set(jwk.KeyIDKey, s.responder.KeyID()); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.RSA_OAEP_256()); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyUsageKey, jwk.ForEncryption); err != nil {
		return nil, err
	}

	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		return nil, err
	}
	return set, nil
}

func (s *Server) handleSecureEcho(w http.ResponseWriter, r *http.Request) {
	req, ok := s.openRequest(w, r, "echo")
	if !ok {
		return
	}

	s.console.print(r, req)
	s.reply(w, r, req, req.Payload)
}

func (s *Server) handleSecureSSH(w http.ResponseWriter, r *http.Request) {
	req, ok := s.openRequest(w, r, "ssh")
	if !ok {
		return
	}

	if req.Kind != envelope.KindSensitive {
		s.reply(w, r, req, sshResult{
			Status:  "error",
			Message: fmt.Sprintf("expected data type %q, got %q", envelope.KindSensitive, req.Kind),
		})
		return
	}

	s.console.print(r, req)
	s.reply(w, r, req, processSSHCredentials(req.Payload))
}

// openRequest reads and decrypts the request envelope. On failure it writes
// the error response and returns false.
func (s *Server) openRequest(w http.ResponseWriter, r *http.Request, endpoint string) (*securechannel.Request, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEnvelopeSize))
	if err != nil {
		writeError(w, r, fmt.Sprintf("reading body: %s", err), http.StatusRequestEntityTooLarge)
		return nil, false
	}

	env, err := envelope.Parse(body)
	if err != nil {
		metricEnvelopes.WithLabelValues(endpoint, "unknown", "invalid").Inc()
		writeError(w, r, err.Error(), http.StatusBadRequest)
		return nil, false
	}

	req, err := s.responder.OpenRequest(r.Context(), env)
	metricPendingSessions.Set(float64(s.responder.Pending()))
	if err != nil {
		code, outcome := classify(err)
		metricEnvelopes.WithLabelValues(endpoint, string(env.Data.Type), outcome).Inc()
		klog.FromContext(r.Context()).V(1).Info("Rejected envelope", "reason", err.Error(), "messageID", env.MessageID)
		writeError(w, r, err.Error(), code)
		return nil, false
	}

	metricEnvelopes.WithLabelValues(endpoint, string(req.Kind), "ok").Inc()
	return req, true
}

// reply seals payload for the request and writes the response envelope.
func (s *Server) reply(w http.ResponseWriter, r *http.Request, req *securechannel.Request, payload any) {
	resp, err := s.responder.SealResponse(r.Context(), req.MessageID, payload)
	metricPendingSessions.Set(float64(s.responder.Pending()))
	if err != nil {
		writeError(w, r, fmt.Sprintf("sealing response: %s", err), http.StatusInternalServerError)
		return
	}

	body, err := json.Marshal(resp)
	if err != nil {
		writeError(w, r, fmt.Sprintf("encoding response: %s", err), http.StatusInternalServerError)
		return
	}

	if s.signingKey != nil {
		w.Header().Set(transport.SignatureHeader, integrity.SignBase64(s.signingKey, string(body)))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// classify maps a Responder error to an HTTP status and a metric outcome.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, envelope.ErrInvalidEnvelope), errors.Is(err, envelope.ErrMalformedEnvelope):
		return http.StatusBadRequest, "invalid"
	case errors.Is(err, envelope.ErrAuthenticationFailed), errors.Is(err, envelope.ErrMalformedKey):
		return http.StatusUnprocessableEntity, "authentication_failed"
	case errors.Is(err, envelope.ErrDeserializationFailed):
		return http.StatusBadRequest, "undecodable"
	}
	return http.StatusInternalServerError, "error"
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		writeError(w, r, fmt.Sprintf("encoding response: %s", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, r *http.Request, msg string, code int) {
	klog.FromContext(r.Context()).V(1).Info("Request failed", "code", code, "error", msg)

	body, _ := json.Marshal(struct {
		Error string `json:"error"`
		Code  int    `json:"code"`
	}{Error: msg, Code: code})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}
