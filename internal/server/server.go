// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It decides:
//   - which URL patterns map to which handler functions
//   - which middleware runs on which routes
//   - how the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	main.go: config.Load() → *config.Config, logger
//	server.New():
//	  sqlite.DB ─┬─ AuthService ← TokenService, PasswordService
//	             ├─ TaskService
//	             └─ HealthHandler
//	  AuthService → AuthHandler ← GitHubProvider (optional)
//	  TaskService → TaskHandler
//
// This is the "composition root" pattern: all dependencies are wired in one
// place, rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/task-manager/internal/auth"
	"github.com/sakif/task-manager/internal/config"
	"github.com/sakif/task-manager/internal/handler"
	"github.com/sakif/task-manager/internal/middleware"
	sqliteRepo "github.com/sakif/task-manager/internal/repository/sqlite"
	"github.com/sakif/task-manager/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection. Start closes it on the way out;
// callers that never Start (tests) call Close themselves.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	tokens *auth.TokenService
}

// New opens the database, builds every service and handler, and registers
// the routes. cfg must already be validated (config.Load does that).
//
// IMPORT ALIAS:
// repository/sqlite is imported as sqliteRepo so it isn't confused with the
// modernc.org/sqlite driver.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
	})
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		tokens: tokens,
	}
	s.setupRoutes()

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE (prefix defaults to /api/v1):
//
//	GET    /health                         → DB ping
//	POST   {prefix}/auth/register          → create account
//	POST   {prefix}/auth/login             → access token + refresh cookie
//	POST   {prefix}/auth/refresh           → rotate tokens (cookie)
//	GET    {prefix}/auth/github/login      → redirect to GitHub
//	GET    {prefix}/auth/github/callback   → finish GitHub sign-in
//	POST   {prefix}/auth/logout            → clear refresh cookie      [bearer]
//	GET    {prefix}/auth/me                → current user              [bearer]
//	GET    {prefix}/tasks                  → list                      [bearer]
//	POST   {prefix}/tasks                  → create                    [bearer]
//	GET    {prefix}/tasks/{id}             → get                       [bearer]
//	PATCH  {prefix}/tasks/{id}             → partial update            [bearer]
//	DELETE {prefix}/tasks/{id}             → delete                    [bearer]
//	PATCH  {prefix}/tasks/{id}/toggle      → flip completed            [bearer]
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: unique ID per request, picked up by the request logger
//  2. RealIP: client IP from proxy headers
//  3. Recoverer: a panic becomes a 500 instead of killing the process
//  4. Logger: one line per request
//  5. CORS: lets the browser client (CORS_ORIGIN) send credentials
func (s *Server) setupRoutes() {
	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.config.Server.CORSOrigin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true, // the refresh cookie
		MaxAge:           300,
	}))

	// === DEPENDENCY CHAIN ===
	// s.db implements both repository.UserRepository and
	// repository.TaskRepository. Services get the interfaces, handlers get
	// the services. The handler never touches the database directly.
	passwords := auth.NewPasswordServiceWithCost(s.config.Auth.BcryptCost)
	authService := service.NewAuthService(s.db, s.tokens, passwords, s.logger)
	taskService := service.NewTaskService(s.db, s.logger)

	var github *auth.GitHubProvider
	if s.config.GitHub.Enabled() {
		github = auth.NewGitHubProvider(auth.GitHubConfig{
			ClientID:     s.config.GitHub.ClientID,
			ClientSecret: s.config.GitHub.ClientSecret,
			CallbackURL:  s.config.GitHub.CallbackURL,
		})
	} else {
		s.logger.Info("GitHub sign-in disabled (GITHUB_CLIENT_ID not set)")
	}

	prefix := s.config.Server.APIPrefix
	authHandler := handler.NewAuthHandler(authService, github, handler.CookieConfig{
		Path:   prefix + "/auth",
		Secure: s.config.Auth.CookieSecure,
		MaxAge: s.config.JWT.RefreshTTL,
	}, s.config.Server.FrontendURL, s.logger)
	taskHandler := handler.NewTaskHandler(taskService, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.logger)

	s.router.Get("/health", healthHandler.HandleHealth)

	api := chi.NewRouter()

	// === Public routes ===
	api.Post("/auth/register", authHandler.HandleRegister)
	api.Post("/auth/login", authHandler.HandleLogin)
	api.Post("/auth/refresh", authHandler.HandleRefresh)
	api.Get("/auth/github/login", authHandler.HandleGitHubLogin)
	api.Get("/auth/github/callback", authHandler.HandleGitHubCallback)

	// === Protected routes ===
	// RequireAuth runs before every handler in this group and puts the
	// caller's identity in the request context.
	api.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(s.tokens, s.logger))

		r.Post("/auth/logout", authHandler.HandleLogout)
		r.Get("/auth/me", authHandler.HandleMe)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", taskHandler.HandleList)
			r.Post("/", taskHandler.HandleCreate)
			r.Get("/{id}", taskHandler.HandleGet)
			r.Patch("/{id}", taskHandler.HandleUpdate)
			r.Delete("/{id}", taskHandler.HandleDelete)
			r.Patch("/{id}/toggle", taskHandler.HandleToggle)
		})
	})

	if prefix == "" {
		s.router.Mount("/", api)
	} else {
		s.router.Mount(prefix, api)
	}
}

// Handler exposes the router, for tests and for embedding in another server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start serves HTTP until SIGINT/SIGTERM, then shuts down gracefully:
//  1. Stop accepting new connections
//  2. Wait for in-flight requests to finish (30s deadline)
//  3. Close the database (flushes WAL, releases the file lock)
func (s *Server) Start() error {
	defer s.db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("apiPrefix", s.config.Server.APIPrefix),
			slog.String("database", s.config.Database.Path),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
