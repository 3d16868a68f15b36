// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resetgate Contributors

// Package web exposes the reset workflow over a JSON API with
// cookie-scoped sessions. Rendering is the client's concern, driven by
// the stage in each response.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/resetgate/resetgate/internal/flow"
	"github.com/resetgate/resetgate/internal/observability"
)

// sessionCookie names the cookie carrying the session id.
const sessionCookie = "resetgate_session"

// maxBodyBytes bounds request bodies; the API only ever carries a
// username, a token, or a pair of passwords.
const maxBodyBytes = 16 << 10

// Config holds the web server settings.
type Config struct {
	// Addr is the listen address in "host:port" format.
	Addr string

	// SessionIdleTTL bounds how long an untouched session is kept.
	SessionIdleTTL time.Duration
}

// Server serves the reset API.
type Server struct {
	addr       string
	registry   *sessionRegistry
	verifier   Verifier
	metrics    *observability.Metrics
	logger     *slog.Logger
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a Server. metrics may be nil; everything else is
// required.
func NewServer(cfg Config, factory WorkflowFactory, verifier Verifier, metrics *observability.Metrics, logger *slog.Logger) (*Server, error) {
	if cfg.Addr == "" {
		return nil, oops.Errorf("listen address is required")
	}
	if factory == nil {
		return nil, oops.Errorf("workflow factory is required")
	}
	if verifier == nil {
		return nil, oops.Errorf("verifier is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	onCount := func(int) {}
	if metrics != nil {
		onCount = func(active int) { metrics.SessionsActive.Set(float64(active)) }
	}

	return &Server{
		addr:     cfg.Addr,
		registry: newSessionRegistry(factory, cfg.SessionIdleTTL, logger, onCount),
		verifier: verifier,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// Handler returns the API routes. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/reset/request", s.withSession(s.handleRequest))
	mux.HandleFunc("POST /api/reset/token", s.withSession(s.handleToken))
	mux.HandleFunc("POST /api/reset/password", s.withSession(s.handlePassword))
	mux.HandleFunc("POST /api/reset/back", s.withSession(s.handleBack))
	mux.HandleFunc("GET /api/reset/state", s.withSession(s.handleState))
	return mux
}

// Start begins serving. It returns an error channel that receives any
// serve error and is closed on graceful stop.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("web server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener
	s.registry.startJanitor()

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("web server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("web server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the server and the session janitor.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.registry.stop()
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_web_server").Wrap(err)
		}
	}

	s.logger.Info("web server stopped")
	return nil
}

// Addr returns the listen address, or "" when not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// apiResponse is the wire form of a flow.Outcome.
type apiResponse struct {
	OK      bool   `json:"ok"`
	Stage   string `json:"stage"`
	Message string `json:"message,omitempty"`
	Kind    string `json:"kind"`
}

type requestBody struct {
	Username string `json:"username"`
	Captcha  string `json:"captcha"`
}

type tokenBody struct {
	Token string `json:"token"`
}

type passwordBody struct {
	Password string `json:"password"`
	Repeat   string `json:"repeat"`
}

// withSession resolves the caller's session, creating one when needed,
// and serializes requests sharing a cookie.
func (s *Server) withSession(next func(http.ResponseWriter, *http.Request, *flow.Workflow)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var id string
		if cookie, err := r.Cookie(sessionCookie); err == nil {
			id = cookie.Value
		}

		newID, sess, err := s.registry.acquire(id)
		if err != nil {
			s.logger.Error("creating session", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if newID != id {
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookie,
				Value:    newID,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteStrictMode,
			})
		}

		sess.mu.Lock()
		defer sess.mu.Unlock()
		next(w, r, sess.workflow)
	}
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request, workflow *flow.Workflow) {
	var body requestBody
	if !s.decode(w, r, &body) {
		return
	}

	verified := s.verifier.Verify(r.Context(), body.Captcha)
	outcome := workflow.RequestToken(r.Context(), body.Username, verified)
	if s.metrics != nil {
		s.metrics.TokenRequests.WithLabelValues(outcome.Kind.String()).Inc()
	}
	s.respond(w, outcome)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request, workflow *flow.Workflow) {
	var body tokenBody
	if !s.decode(w, r, &body) {
		return
	}
	s.respond(w, workflow.SubmitToken(body.Token))
}

func (s *Server) handlePassword(w http.ResponseWriter, r *http.Request, workflow *flow.Workflow) {
	var body passwordBody
	if !s.decode(w, r, &body) {
		return
	}

	outcome := workflow.SetPassword(r.Context(), body.Password, body.Repeat)
	if s.metrics != nil {
		s.metrics.PasswordChanges.WithLabelValues(outcome.Kind.String()).Inc()
	}
	s.respond(w, outcome)
}

func (s *Server) handleBack(w http.ResponseWriter, _ *http.Request, workflow *flow.Workflow) {
	s.respond(w, workflow.Back())
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request, workflow *flow.Workflow) {
	s.respond(w, flow.Outcome{OK: true, Kind: flow.KindOK, Stage: workflow.Stage()})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) respond(w http.ResponseWriter, outcome flow.Outcome) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(apiResponse{
		OK:      outcome.OK,
		Stage:   outcome.Stage.String(),
		Message: outcome.Message,
		Kind:    outcome.Kind.String(),
	}); err != nil {
		s.logger.Error("writing response", "error", err)
	}
}
