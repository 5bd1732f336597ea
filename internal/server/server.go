// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It is the only place that knows:
// - which blob backend the configuration selected
// - whether the seed document is merged in (local mode only)
// - which URL and method map to which handler
// - how the server starts, drains and closes the store
//
// DEPENDENCY CHAIN:
//
//	config.Config → blobstore.Store → repository.Collections
//	             → service.MessageService / service.VoteService
//	             → handler.MessagesHandler → routes
//
// This is the "composition root" pattern: everything is built here from the
// config value, and no package keeps global state.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/microrager/internal/blobstore"
	"github.com/sakif/microrager/internal/blobstore/local"
	"github.com/sakif/microrager/internal/config"
	"github.com/sakif/microrager/internal/handler"
	"github.com/sakif/microrager/internal/middleware"
	"github.com/sakif/microrager/internal/repository"
	"github.com/sakif/microrager/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the blob store. For redis and sqlite that is a live
// connection pool, so it must be closed after the last request has drained
// (see Start). Local files and S3 hold nothing to close.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	store  blobstore.Store
}

// New opens the configured backend and builds the server.
//
// ctx bounds the backend dial (redis PING, AWS config loading). It is not
// kept: request contexts come from net/http.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.StorageMode, err)
	}
	return NewWithStore(cfg, logger, store, nil), nil
}

// NewWithStore builds the server around an existing store.
//
// Tests use it to hand in a store living in t.TempDir() and a fixed clock.
// now defaults to time.Now.
func NewWithStore(cfg config.Config, logger *slog.Logger, store blobstore.Store, now service.Clock) *Server {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}
	s.setupRoutes(now)
	return s
}

// newRepository builds the dataset merger for the configured mode.
//
// SEED VS RUNTIME:
// In local mode a day is two documents: the read-only seed file checked into
// local-data/ (demo content) and the runtime file under LocalDataDir that the
// service writes. Reads return seed + runtime; writes strip seed ids so the
// seed file is never touched. Network backends (s3, redis, sqlite) have no
// seed: the one per-day document is the whole collection.
//
// Local runtime files are indented so they can be read and edited by hand.
func (s *Server) newRepository() *repository.Collections {
	opts := repository.Options{Collection: s.config.Collection}
	if s.config.StorageMode == config.ModeLocal {
		opts.Seed = repository.NewSeed(local.New(s.config.LocalSeedDir), s.config.LocalSeedFilename)
		opts.Indent = true
	}
	return repository.New(s.store, opts)
}

// setupRoutes configures middleware and routes.
//
// ROUTES:
// OPTIONS|GET|POST|PATCH /messages → the message board resource
// *                      /         → same handler, for root mounts behind a gateway
// OPTIONS|PATCH          /votes    → vote batches only
//
// Anything else on a known path → 405 {"error":"Method not allowed"}.
// Unknown paths                 → 404 {"error":"Not found"}.
//
// MIDDLEWARE ORDER MATTERS:
// Middleware executes in the order it's added:
// 1. RequestID: tags the request so log lines can be correlated
// 2. RealIP (only with TrustProxyHeaders): rewrites RemoteAddr from proxy headers
// 3. Recoverer: turns a panic into a 500 instead of killing the process
// 4. Logger: one line per request, with status and duration
// 5. CORS: last, so every response gets the headers, 404/405 included
func (s *Server) setupRoutes(now service.Clock) {
	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	// RemoteAddr is the rate-limit identity. X-Forwarded-For is whatever the
	// client typed unless a proxy in front overwrites it, so RealIP is opt-in.
	if s.config.TrustProxyHeaders {
		s.router.Use(chimiddleware.RealIP)
	}
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.CORS)

	// === Dependency Chain ===
	// Collections implements repository.MessageRepository. Both services get
	// the same instance, so a vote sees a message appended a moment earlier.
	repo := s.newRepository()
	messageService := service.NewMessageService(repo, s.logger, now)
	voteService := service.NewVoteService(repo, s.logger, now)
	messagesHandler := handler.NewMessagesHandler(messageService, voteService, s.config.MaxBodyBytes, s.logger)

	// === Fallbacks ===
	// Registered BEFORE Route(): chi copies them into each subrouter when it
	// is mounted, so /messages and /votes answer 405 with our JSON envelope
	// instead of chi's plain-text default.
	s.router.MethodNotAllowed(messagesHandler.HandleMethodNotAllowed)
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Not found"}` + "\n"))
	})

	// === API Routes ===
	// Route("/messages") with r.Get("/") matches both /messages and /messages/.
	s.router.Route("/messages", func(r chi.Router) {
		r.Options("/", messagesHandler.HandleOptions)
		r.Get("/", messagesHandler.HandleList)
		r.Post("/", messagesHandler.HandleCreate)
		r.Patch("/", messagesHandler.HandleVote)
	})
	// Older clients send vote batches to /votes; same handler, PATCH only.
	s.router.Route("/votes", func(r chi.Router) {
		r.Options("/", messagesHandler.HandleOptions)
		r.Patch("/", messagesHandler.HandleVote)
	})
	// MessagesHandler is also an http.Handler that dispatches on method.
	s.router.Handle("/", messagesHandler)
}

// Handler exposes the router so tests can wrap it in httptest.NewServer
// without opening a port.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new connections on SIGINT/SIGTERM
// 2. Wait up to ShutdownTimeout for in-flight requests to finish
// 3. Close the store (deferred, so it also runs when ListenAndServe fails)
//
// Step 2 matters more than usual here: a request killed between its Load and
// its Save loses that day's write.
func (s *Server) Start() error {
	defer s.closeStore()

	// Timeouts keep a slow client from holding a connection (and a
	// goroutine) forever. Request bodies are tiny, so 15s is generous.
	srv := &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Buffered: signal.Notify does not block, so an unbuffered channel
	// could miss the signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	// ListenAndServe blocks, so it runs in its own goroutine and reports
	// back here. A port already in use surfaces through this channel.
	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("storage", s.config.StorageMode),
			slog.String("collection", s.config.Collection),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

func (s *Server) closeStore() {
	closer, ok := s.store.(blobstore.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		s.logger.Warn("closing store", slog.String("error", err.Error()))
	}
}
