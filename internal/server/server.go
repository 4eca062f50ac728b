package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-pkgz/rest"
	restlog "github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/xhs-agent/internal/safety"
	"github.com/xhs-agent/pkg/logger"
)

// defaultPauseReason is used when a pause request carries no reason
const defaultPauseReason = "paused via control api"

// Controller is the part of the rate gate exposed over HTTP
type Controller interface {
	Status(now time.Time) safety.Status
	Pause(ctx context.Context, reason string)
	Resume(ctx context.Context)
	Report(now time.Time) string
}

// Server is the control API of the agent
type Server struct {
	listen  string
	ctrl    Controller
	metrics http.Handler
	version string
	log     *logger.Logger
	now     func() time.Time

	lock       sync.Mutex
	httpServer *http.Server
	router     *routegroup.Bundle
}

// New initializes a new server instance. metrics may be nil.
func New(listen string, ctrl Controller, metrics http.Handler, version string, log *logger.Logger) *Server {
	s := &Server{
		listen:  listen,
		ctrl:    ctrl,
		metrics: metrics,
		version: version,
		log:     log.WithComponent("server"),
		now:     time.Now,
		router:  routegroup.New(http.NewServeMux()),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the routed handler, mostly useful in tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the HTTP server and shuts it down when ctx is done
func (s *Server) Run(ctx context.Context) error {
	s.log.Info().Str("listen", s.listen).Msg("Starting control server")

	s.lock.Lock()
	s.httpServer = &http.Server{
		Addr:              s.listen,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	s.lock.Unlock()

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("Shutting down control server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("Server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(rest.AppInfo("xhs-agent", "xhs-agent", s.version))
	s.router.Use(rest.Ping)
	s.router.Use(restlog.New(restlog.Log(s.log), restlog.Prefix("[DEBUG]")).Handler)
	s.router.Use(rest.Recoverer(s.log))
	s.router.Use(rest.SizeLimit(64 * 1024))
}

func (s *Server) setupRoutes() {
	s.router.Mount("/api/v1").Route(func(r *routegroup.Bundle) {
		r.HandleFunc("GET /status", s.statusHandler)
		r.HandleFunc("POST /pause", s.pauseHandler)
		r.HandleFunc("POST /resume", s.resumeHandler)
		r.HandleFunc("GET /report", s.reportHandler)
	})

	if s.metrics != nil {
		s.router.Handle("GET /metrics", s.metrics)
	}
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	RenderJSON(w, r, http.StatusOK, s.ctrl.Status(s.now()))
}

type pauseRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) pauseHandler(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		RenderError(w, r, fmt.Errorf("invalid pause request: %w", err), http.StatusBadRequest)
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = defaultPauseReason
	}

	s.ctrl.Pause(r.Context(), reason)
	s.log.Warn().Str("reason", reason).Msg("Paused via control api")
	RenderJSON(w, r, http.StatusOK, s.ctrl.Status(s.now()))
}

func (s *Server) resumeHandler(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Resume(r.Context())
	s.log.Info().Msg("Resumed via control api")
	RenderJSON(w, r, http.StatusOK, s.ctrl.Status(s.now()))
}

func (s *Server) reportHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, s.ctrl.Report(s.now()))
}

// RenderJSON sends JSON response
func RenderJSON(w http.ResponseWriter, _ *http.Request, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// RenderError sends error response as JSON
func RenderError(w http.ResponseWriter, r *http.Request, err error, code int) {
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	RenderJSON(w, r, code, rest.JSON{"error": errMsg})
}
