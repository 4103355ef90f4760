// Package httpapi is the thin HTTP façade over the oracle: it parses
// requests, routes them to internal/oracle, and encodes responses. It is
// intentionally thin — all the logic it fronts lives in internal/oracle,
// internal/sketch, and internal/ngram.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/naclave/password-oracle/internal/oracle"
)

// Server implements the oracle's HTTP surface.
type Server struct {
	oracle *oracle.Oracle
	logger *slog.Logger
	prefix string
}

// New returns a Server that serves under prefix, always starting and
// ending with "/".
func New(logger *slog.Logger, o *oracle.Oracle, prefix string) *Server {
	if prefix == "" {
		prefix = "/"
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Server{oracle: o, logger: logger, prefix: prefix}
}

// ServeHTTP implements http.Handler, routing GET {prefix}<command>.<fmt>
// and POST {prefix}add.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, s.prefix) {
		http.NotFound(w, r)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, s.prefix)

	if r.Method == http.MethodPost && rest == "add" {
		s.handleAdd(w, r)
		return
	}

	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	command, format, ok := strings.Cut(rest, ".")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if format != "json" {
		http.Error(w, "unsupported format", http.StatusUnsupportedMediaType)
		return
	}

	password := r.URL.Query().Get("password")
	if password == "" {
		http.NotFound(w, r)
		return
	}

	switch command {
	case "available":
		s.handleAvailable(w, password)
	case "entropy":
		s.handleEntropy(w, password)
	case "all":
		s.handleAll(w, password)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleAvailable(w http.ResponseWriter, password string) {
	available, err := s.oracle.Available(password)
	if err != nil {
		s.logger.Error("available query failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, available)
}

func (s *Server) handleEntropy(w http.ResponseWriter, password string) {
	if !s.oracle.HasModel() {
		http.Error(w, "no language model loaded", http.StatusServiceUnavailable)
		return
	}
	entropy := s.oracle.Entropy(password)
	writeJSON(w, http.StatusOK, *entropy)
}

type allResponse struct {
	Entropy   *float64 `json:"entropy"`
	Available bool     `json:"available"`
}

func (s *Server) handleAll(w http.ResponseWriter, password string) {
	res, err := s.oracle.All(password)
	if err != nil {
		s.logger.Error("all query failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, allResponse{Entropy: res.Entropy, Available: res.Available})
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}
	password := r.FormValue("password")
	if password == "" {
		http.NotFound(w, r)
		return
	}
	if err := s.oracle.Add(password); err != nil {
		s.logger.Error("add failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
