package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sophialabs/mimicry/internal/domain/audit"
	"github.com/sophialabs/mimicry/internal/domain/endpoint"
	"github.com/sophialabs/mimicry/internal/domain/match"
	"github.com/sophialabs/mimicry/internal/domain/scenario"
	"github.com/sophialabs/mimicry/internal/infrastructure/ports"
	"github.com/sophialabs/mimicry/internal/infrastructure/services"
	"github.com/sophialabs/mimicry/internal/infrastructure/usecases"
)

const (
	maxBodySize     = 10 << 20 // 10 MB
	defaultLogLimit = 50
	// statusClientClosed is logged when the client went away before the
	// response was written.
	statusClientClosed = 499
)

// RuleAdmin is the administrative view of the rule cache.
type RuleAdmin interface {
	Endpoints() []*match.CachedEndpoint
	ReloadEndpoint(ctx context.Context, id string) error
	ReloadRulesForEndpoint(ctx context.Context, id string) error
	RemoveEndpoint(id string) bool
}

// AuditLog exposes the most recent audit entries.
type AuditLog interface {
	Last(n int) []audit.Entry
}

// Deps are the collaborators of the Server. Metrics may be nil.
type Deps struct {
	Pipeline  *usecases.HandleRequestUseCase
	Auditor   *usecases.Auditor
	Reload    *usecases.ReloadUseCase
	Rules     RuleAdmin
	Scenarios *usecases.ScenarioUseCase
	Validate  *usecases.ValidateUseCase
	AuditLog  AuditLog
	Metrics   http.Handler
	Clock     ports.Clock
	Logger    ports.Logger
}

// Server serves mocked traffic and the /__admin surface. Every request
// outside /__admin goes through the request pipeline.
type Server struct {
	d      Deps
	router *chi.Mux
}

// NewServer creates a new Server.
func NewServer(d Deps) *Server {
	s := &Server{d: d}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/__admin", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/reload", s.handleReload)
		r.Get("/endpoints", s.handleListEndpoints)
		r.Post("/endpoints/validate", s.handleValidate)
		r.Post("/endpoints/{endpointID}/reload", s.handleReloadEndpoint)
		r.Post("/endpoints/{endpointID}/rules/reload", s.handleReloadRules)
		r.Delete("/endpoints/{endpointID}", s.handleRemoveEndpoint)
		r.Get("/protocols/{protocol}/schema", s.handleProtocolSchema)
		r.Get("/scenarios", s.handleListScenarios)
		r.Post("/scenarios/reset", s.handleResetAllScenarios)
		r.Post("/scenarios/{scenarioID}/reset", s.handleResetScenario)
		r.Get("/logs", s.handleLogs)
		if s.d.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.d.Metrics)
		}
	})

	// Mocked endpoints are matched by the pipeline, not by chi.
	r.NotFound(s.mockHandler)
	r.MethodNotAllowed(s.mockHandler)
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) mockHandler(w http.ResponseWriter, r *http.Request) {
	s.d.Logger.Info("request received", "method", r.Method, "path", r.URL.Path, "query", r.URL.RawQuery, "remote", r.RemoteAddr)

	defer func() { _ = r.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	rc := &match.RequestContext{
		Method:      r.Method,
		Path:        r.URL.Path,
		QueryString: r.URL.RawQuery,
		Query:       firstValues(r.URL.Query()),
		Headers:     firstValues(r.Header),
		Body:        body,
	}
	res := s.d.Pipeline.Execute(r.Context(), rc)

	entry := res.Entry
	switch {
	case r.Context().Err() != nil:
		entry.ResponseStatusCode = statusClientClosed
	case res.Reply.Reset:
		s.d.Logger.Info("connection reset injected", "method", r.Method, "path", r.URL.Path, "rule", entry.RuleID)
	default:
		writeReply(w, res.Reply)
	}
	entry.ResponseTimeMs = s.d.Clock.Now().Sub(entry.Timestamp).Milliseconds()
	s.d.Auditor.Submit(entry)

	if res.Reply.Reset && r.Context().Err() == nil {
		abortConnection(w)
	}
}

func writeReply(w http.ResponseWriter, reply usecases.Reply) {
	h := w.Header()
	for k, v := range reply.Header {
		h[k] = append([]string(nil), v...)
	}
	status := reply.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(reply.Body)
}

// abortConnection drops the client connection without a response. A
// hijacked TCP connection is closed with linger 0 so the peer sees a reset.
func abortConnection(w http.ResponseWriter) {
	conn, _, err := http.NewResponseController(w).Hijack()
	if err != nil {
		panic(http.ErrAbortHandler)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetLinger(0)
	}
	_ = conn.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.d.Reload.Execute(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "reload_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "caches reloaded"})
}

type endpointSummary struct {
	ID         string   `json:"id"`
	Service    string   `json:"service"`
	Method     string   `json:"method"`
	Path       string   `json:"path"`
	Protocol   string   `json:"protocol"`
	HasDefault bool     `json:"hasDefault"`
	Rules      []string `json:"rules"`
}

func (s *Server) handleListEndpoints(w http.ResponseWriter, _ *http.Request) {
	eps := s.d.Rules.Endpoints()
	out := make([]endpointSummary, 0, len(eps))
	for _, ep := range eps {
		rules := make([]string, 0, len(ep.Rules))
		for _, r := range ep.Rules {
			rules = append(rules, r.ID)
		}
		out = append(out, endpointSummary{
			ID:         ep.ID,
			Service:    ep.ServiceName,
			Method:     ep.HTTPMethod,
			Path:       ep.Path,
			Protocol:   string(ep.Protocol),
			HasDefault: ep.Default != nil,
			Rules:      rules,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleReloadEndpoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "endpointID")
	if err := s.d.Rules.ReloadEndpoint(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, "reload_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "id": id})
}

func (s *Server) handleReloadRules(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "endpointID")
	if err := s.d.Rules.ReloadRulesForEndpoint(r.Context(), id); err != nil {
		if errors.Is(err, endpoint.ErrNotFound) {
			respondError(w, http.StatusNotFound, "not_found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "reload_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "id": id})
}

func (s *Server) handleRemoveEndpoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "endpointID")
	if !s.d.Rules.RemoveEndpoint(id) {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "message": "endpoint not cached: " + id})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "id": id})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	findings, err := s.d.Validate.Execute(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "validate_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"valid": len(findings) == 0, "findings": findings})
}

func (s *Server) handleProtocolSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := s.d.Validate.Schema(chi.URLParam(r, "protocol"))
	if err != nil {
		if errors.Is(err, services.ErrUnsupportedProtocol) {
			respondError(w, http.StatusNotFound, "unsupported_protocol", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	respondJSON(w, http.StatusOK, schema)
}

func (s *Server) handleListScenarios(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.d.Scenarios.States())
}

func (s *Server) handleResetScenario(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "scenarioID")
	t, err := s.d.Scenarios.Reset(r.Context(), id)
	if err != nil {
		if errors.Is(err, scenario.ErrNotFound) {
			respondError(w, http.StatusNotFound, "not_found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "reset_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "id": id, "state": t.To})
}

func (s *Server) handleResetAllScenarios(w http.ResponseWriter, r *http.Request) {
	ts := s.d.Scenarios.ResetAll(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "reset": len(ts)})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	n := defaultLogLimit
	if v := r.URL.Query().Get("last"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": "last must be a positive integer"})
			return
		}
		n = parsed
	}
	entries := s.d.AuditLog.Last(n)
	if entries == nil {
		entries = []audit.Entry{}
	}
	respondJSON(w, http.StatusOK, entries)
}

func firstValues(values map[string][]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func respondError(w http.ResponseWriter, status int, code string, err error) {
	respondJSON(w, status, map[string]string{"error": code, "message": err.Error()})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeJSON(w, v)
}

func writeJSON(w http.ResponseWriter, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
