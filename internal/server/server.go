// Package server exposes the HTTP API and the embedded chat UI.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/quokkadev/opsrag/internal/config"
	"github.com/quokkadev/opsrag/internal/generation"
	"github.com/quokkadev/opsrag/internal/ingest"
	"github.com/quokkadev/opsrag/internal/keyword"
	"github.com/quokkadev/opsrag/internal/retrieval"
	"github.com/quokkadev/opsrag/internal/storage"
	"github.com/quokkadev/opsrag/internal/vector"
)

// Server is the HTTP front end.
type Server struct {
	cfg        *config.Config
	handlers   *Handlers
	httpServer *http.Server
	logger     *zap.Logger
}

// New wires the API around the given components.
func New(cfg *config.Config, store storage.Storage, ingestor *ingest.Ingestor,
	retriever *retrieval.Retriever, engine *generation.Engine,
	vectors vector.Index, keywords keyword.Index, logger *zap.Logger) *Server {

	handlers := &Handlers{
		cfg:       cfg,
		store:     store,
		ingestor:  ingestor,
		retriever: retriever,
		engine:    engine,
		vectors:   vectors,
		keywords:  keywords,
		logger:    logger,
	}

	s := &Server{cfg: cfg, handlers: handlers, logger: logger}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handlers.Health)
	r.Get("/", s.handlers.UI)

	r.Route("/api/v1", func(r chi.Router) {
		// /ask streams; no global timeout so long generations survive.
		r.Post("/ask", s.handlers.Ask)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Get("/documents", s.handlers.ListDocuments)
			r.Post("/documents", s.handlers.CreateDocument)
			r.Delete("/documents/{id}", s.handlers.DeleteDocument)
			r.Post("/ingest", s.handlers.Ingest)
			r.Get("/search", s.handlers.Search)
			r.Get("/status", s.handlers.Status)
		})
	})
	return r
}

// Start blocks serving HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
