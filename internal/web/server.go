// Package web is the administrative HTTP API: token auth, settings and
// chat user management, command testing, the live event feed and the
// Matrix transaction webhook. Everything under /api speaks JSON;
// errors use the {"detail": "..."} shape the web UI expects.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/security-onion-solutions/shallot/internal/auth"
	"github.com/security-onion-solutions/shallot/internal/channel"
	"github.com/security-onion-solutions/shallot/internal/command"
	"github.com/security-onion-solutions/shallot/internal/domain"
	"github.com/security-onion-solutions/shallot/internal/settings"
	"github.com/security-onion-solutions/shallot/internal/so"
)

// Server wires the API handlers to their dependencies.
type Server struct {
	store    domain.Store
	settings *settings.Service
	tokens   *auth.TokenManager
	catalog  *command.Catalog
	engine   *command.Engine
	siem     *so.Handle
	channels *channel.Manager
	feed     *channel.Feed
	logger   *slog.Logger

	addr    string
	origins []string
	version string

	httpServer *http.Server

	// Matrix webhook idempotency window.
	txnMu   sync.Mutex
	txnSeen map[string]struct{}
}

type Config struct {
	Addr     string
	Origins  []string
	Version  string
	Store    domain.Store
	Settings *settings.Service
	Tokens   *auth.TokenManager
	Catalog  *command.Catalog
	Engine   *command.Engine
	SIEM     *so.Handle
	Channels *channel.Manager
	Feed     *channel.Feed
	Logger   *slog.Logger
}

func NewServer(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if len(cfg.Origins) == 0 {
		cfg.Origins = []string{"*"}
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return &Server{
		store:    cfg.Store,
		settings: cfg.Settings,
		tokens:   cfg.Tokens,
		catalog:  cfg.Catalog,
		engine:   cfg.Engine,
		siem:     cfg.SIEM,
		channels: cfg.Channels,
		feed:     cfg.Feed,
		logger:   cfg.Logger,
		addr:     cfg.Addr,
		origins:  cfg.Origins,
		version:  cfg.Version,
		txnSeen:  make(map[string]struct{}),
	}
}

// Router builds the chi mux. Exposed separately so tests can drive it
// through httptest without a listener.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(metricsMiddleware)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/token", s.handleToken)
		r.Get("/auth/setup-required", s.handleSetupRequired)
		r.Post("/auth/first-user", s.handleFirstUser)
		r.Get("/health", s.handleHealth)
		r.Get("/ws", s.handleFeed)
		r.Put("/matrix/transactions/{txnID}", s.handleMatrixTransaction)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)

			r.Post("/auth/refresh", s.handleRefresh)
			r.Get("/auth/me", s.handleMe)
			r.Get("/settings", s.handleListSettings)
			r.Get("/settings/{key}", s.handleGetSetting)
			r.Get("/commands", s.handleListCommands)
			r.Post("/commands/test-command", s.handleTestCommand)
			r.Get("/attachments/{id}", s.handleAttachment)

			r.Group(func(r chi.Router) {
				r.Use(s.requireSuperuser)

				r.Put("/settings/{key}", s.handlePutSetting)
				r.Route("/chat-users", func(r chi.Router) {
					r.Get("/", s.handleListChatUsers)
					r.Post("/", s.handleCreateChatUser)
					r.Get("/{id}", s.handleGetChatUser)
					r.Put("/{id}", s.handleUpdateChatUser)
					r.Delete("/{id}", s.handleDeleteChatUser)
				})
			})
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Start serves until the context is cancelled, then drains with a
// 10 second grace window.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info("web API listening", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// handleFeed authenticates the websocket upgrade. Browsers cannot set
// an Authorization header on websocket dials, so the token may also
// arrive as a query parameter.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		unauthorized(w)
		return
	}
	if _, err := s.tokens.Verify(token); err != nil {
		unauthorized(w)
		return
	}
	s.feed.ServeHTTP(w, r)
}
