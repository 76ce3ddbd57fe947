// Package server exposes the research copilot over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"researchcopilot/pkg/agent/toolloop"
	"researchcopilot/pkg/logx"
	"researchcopilot/pkg/tools"
	"researchcopilot/pkg/transcript"
)

// MaxStepsLimit caps the per-request step budget.
const MaxStepsLimit = 20

const maxBodyBytes = 64 << 10

// Asker runs one research interaction. *toolloop.ToolLoop implements it.
type Asker interface {
	Ask(ctx context.Context, question string, maxSteps int) (*toolloop.Outcome, error)
}

// AskRequest is the body of POST /v1/ask.
type AskRequest struct {
	Question string `json:"question"`
	MaxSteps int    `json:"max_steps,omitempty"`
}

// AskResponse is the reply of POST /v1/ask.
type AskResponse struct {
	SessionID  string            `json:"session_id"`
	Answer     string            `json:"answer"`
	Outcome    string            `json:"outcome"`
	Steps      int               `json:"steps"`
	Transcript []transcript.Turn `json:"transcript"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server serves the ask, capability, log and metrics endpoints.
type Server struct {
	asker           Asker
	capabilities    []tools.Descriptor
	defaultMaxSteps int
	gatherer        prometheus.Gatherer
	logger          *logx.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer serves metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithDefaultMaxSteps sets the budget used when a request does not name one.
func WithDefaultMaxSteps(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.defaultMaxSteps = n
		}
	}
}

// New creates a server for asker advertising capabilities.
func New(asker Asker, capabilities []tools.Descriptor, opts ...Option) *Server {
	s := &Server{
		asker:           asker,
		capabilities:    capabilities,
		defaultMaxSteps: toolloop.DefaultMaxSteps,
		gatherer:        prometheus.DefaultGatherer,
		logger:          logx.NewLogger("server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/ask", s.handleAsk)
		r.Get("/capabilities", s.handleCapabilities)
		r.Get("/logs", s.handleLogs)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("🌐 Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		s.logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	}
}

// handleAsk implements POST /v1/ask.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var body AskRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		s.logger.Warn("ask: invalid request body: %v", err)
		return
	}
	body.Question = strings.TrimSpace(body.Question)
	if body.Question == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "question is required"})
		return
	}
	if body.MaxSteps < 0 || body.MaxSteps > MaxStepsLimit {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("max_steps must be between 1 and %d", MaxStepsLimit)})
		return
	}
	if body.MaxSteps == 0 {
		body.MaxSteps = s.defaultMaxSteps
	}

	out, err := s.asker.Ask(r.Context(), body.Question, body.MaxSteps)
	if err != nil {
		s.logger.Error("ask failed: %v", err)
		s.writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, AskResponse{
		SessionID:  out.Transcript.ID(),
		Answer:     out.Answer,
		Outcome:    out.Kind.Reason(),
		Steps:      out.Steps,
		Transcript: out.Transcript.Turns(),
	})
}

// handleCapabilities implements GET /v1/capabilities.
func (s *Server) handleCapabilities(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.capabilities)
}

// handleLogs implements GET /v1/logs?session=<id>&since=<RFC3339>.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var since time.Time
	if raw := query.Get("since"); raw != "" {
		var err error
		if since, err = time.Parse(time.RFC3339, raw); err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid since parameter (use RFC3339)"})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, logx.GetRecentLogEntries(query.Get("session"), since))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
	}
}
