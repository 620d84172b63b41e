package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/benaskins/rally/internal/audit"
	"github.com/benaskins/rally/internal/fault"
	"github.com/benaskins/rally/internal/keychain"
	"github.com/benaskins/rally/internal/relay"
)

// Credential is the single stored API key.
type Credential interface {
	Set(value string) error
	Get() (string, bool, error)
	Delete() error
}

// Server serves the rally REST API over a Unix socket.
type Server struct {
	cred     Credential
	relay    *relay.Relay
	audit    *audit.Logger
	listener net.Listener
	server   *http.Server
	logger   *slog.Logger
}

// NewServer creates an API server. auditLog may be nil.
func NewServer(cred Credential, rly *relay.Relay, auditLog *audit.Logger) *Server {
	s := &Server{
		cred:   cred,
		relay:  rly,
		audit:  auditLog,
		logger: slog.With("component", "api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("PUT /v1/api-key", s.setAPIKey)
	mux.HandleFunc("GET /v1/api-key", s.getAPIKey)
	mux.HandleFunc("DELETE /v1/api-key", s.deleteAPIKey)
	mux.HandleFunc("GET /v1/api-key/status", s.apiKeyStatus)
	mux.HandleFunc("POST /v1/relay", s.relayRequest)
	mux.HandleFunc("GET /v1/health", s.health)

	s.server = &http.Server{Handler: mux}
	return s
}

// ListenUnix starts the server on a Unix socket.
func (s *Server) ListenUnix(path string) error {
	ln, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Info("API listening", "socket", path)
	return s.server.Serve(ln)
}

// ListenTCP starts the server on a TCP address.
func (s *Server) ListenTCP(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Info("API listening", "addr", addr)
	return s.server.Serve(ln)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type apiKeyBody struct {
	APIKey *string `json:"apiKey"`
}

func (s *Server) setAPIKey(w http.ResponseWriter, r *http.Request) {
	var body apiKeyBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if body.APIKey == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "apiKey is required"})
		return
	}
	if err := s.cred.Set(*body.APIKey); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getAPIKey(w http.ResponseWriter, r *http.Request) {
	val, ok, err := s.cred.Get()
	if err != nil {
		writeError(w, err)
		return
	}
	var body apiKeyBody
	if ok {
		body.APIKey = &val
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) deleteAPIKey(w http.ResponseWriter, r *http.Request) {
	if err := s.cred.Delete(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type keyStatus struct {
	Present bool                  `json:"present"`
	Meta    *keychain.KeyMetadata `json:"metadata,omitempty"`
}

func (s *Server) apiKeyStatus(w http.ResponseWriter, r *http.Request) {
	_, ok, err := s.cred.Get()
	if err != nil {
		writeError(w, err)
		return
	}
	status := keyStatus{Present: ok}
	if m, isAudited := s.cred.(interface {
		Metadata() *keychain.MetadataStore
	}); isAudited && ok {
		status.Meta = m.Metadata().Get()
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) relayRequest(w http.ResponseWriter, r *http.Request) {
	var req relay.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	// A dispatched relay runs to completion even if the caller goes away.
	resp, err := s.relay.Do(context.WithoutCancel(r.Context()), req)
	s.recordRelay(req, resp, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) recordRelay(req relay.Request, resp *relay.Response, relayErr error) {
	status := 0
	if resp != nil {
		status = resp.Status
	}
	entry := audit.RelayEntry("daemon", req.Method, req.URL, status, relayErr)
	if err := s.audit.Log(entry); err != nil {
		s.logger.Warn("audit log write failed", "error", err)
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatusFor maps a failure kind to the HTTP status the API answers with.
func StatusFor(kind fault.Kind) int {
	switch kind {
	case fault.InvalidMethod, fault.InvalidURL, fault.InvalidAPIKey:
		return http.StatusBadRequest
	case fault.StoreUnavailable:
		return http.StatusServiceUnavailable
	case fault.TransportError, fault.BodyReadError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	var fe *fault.Error
	if !errors.As(err, &fe) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, StatusFor(fe.Kind), map[string]string{
		"error": err.Error(),
		"kind":  string(fe.Kind),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
