// Package server exposes sessions over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/sheetqa/internal/assistant"
	"github.com/KaramelBytes/sheetqa/internal/logging"
)

// Options configures the HTTP API.
type Options struct {
	Addr           string
	AllowedOrigins []string
	// MaxUploadBytes bounds one uploaded file; 0 means 32 MiB.
	MaxUploadBytes int64
	// QueryLimit caps rows returned by the sql route.
	QueryLimit int
	// HistoryDir, when set, receives each session's log after every answer.
	HistoryDir string
}

// Server routes requests to per-session state.
type Server struct {
	orch     *assistant.Orchestrator
	sessions *sessionStore
	opts     Options
	log      *slog.Logger
}

// New builds a server around an orchestrator.
func New(orch *assistant.Orchestrator, opts Options, log *slog.Logger) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Server{orch: orch, sessions: newSessionStore(), opts: opts, log: log}
}

// Router returns the HTTP handler with middleware applied.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Use(s.withSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/upload", s.handleUpload)
			r.Get("/schema", s.handleSchema)
			r.Get("/rows", s.handleRows)
			r.Get("/profile", s.handleProfile)
			r.Get("/chart", s.handleChart)
			r.Post("/ask", s.handleAsk)
			r.Get("/result", s.handleResult)
			r.Get("/history", s.handleHistory)
			r.Post("/sql", s.handleSQL)
		})
	})
	return r
}

// requestLogger logs one line per request through slog.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
			"remote", r.RemoteAddr,
		)
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("listening", "addr", s.opts.Addr, "cors", s.opts.AllowedOrigins)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("shutting down", "sessions", s.sessions.len())
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
