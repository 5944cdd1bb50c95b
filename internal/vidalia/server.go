// Package vidalia is the analyst web front-end: server-rendered pages
// over the Security Onion REST API for alert triage, PCAP retrieval,
// case browsing and grid management. It talks to the manager directly
// and shares nothing with the bot gateway but the client code.
package vidalia

import (
	"context"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/security-onion-solutions/shallot/internal/so"
)

// SIEM is the slice of the manager client the front-end uses.
type SIEM interface {
	QueryEvents(ctx context.Context, opts so.QueryOptions) (*so.EventsResponse, error)
	CreatePCAPJob(ctx context.Context, nodeID string, filter so.JobFilter) (*so.Job, error)
	GetJob(ctx context.Context, id int) (*so.Job, error)
	DownloadPCAP(ctx context.Context, jobID int) ([]byte, error)
	LookupPCAP(ctx context.Context, eventTime, esID, ncID string) ([]byte, error)
	ListCases(ctx context.Context) ([]so.Case, error)
	GetCase(ctx context.Context, id string) (*so.Case, error)
	CaseComments(ctx context.Context, caseID string) ([]so.Comment, error)
	Users(ctx context.Context) ([]so.User, error)
	GridNodes(ctx context.Context) ([]so.GridNode, error)
	RestartGridMember(ctx context.Context, memberID string) error
}

// Server holds the handlers and their dependencies.
type Server struct {
	siem        SIEM
	users       *userCache
	logger      *slog.Logger
	addr        string
	alertsLimit int
	tmpl        *template.Template

	httpServer *http.Server
}

type Config struct {
	Addr         string
	AlertsLimit  int
	UserCacheTTL time.Duration
	SIEM         SIEM
	Logger       *slog.Logger
}

func NewServer(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":5000"
	}
	if cfg.AlertsLimit <= 0 {
		cfg.AlertsLimit = 100
	}
	if cfg.UserCacheTTL <= 0 {
		cfg.UserCacheTTL = 300 * time.Second
	}
	return &Server{
		siem:        cfg.SIEM,
		users:       newUserCache(cfg.SIEM, cfg.UserCacheTTL),
		logger:      cfg.Logger,
		addr:        cfg.Addr,
		alertsLimit: cfg.AlertsLimit,
		tmpl:        parseTemplates(),
	}
}

// Router builds the chi mux. Exposed separately so tests can drive it
// through httptest without a listener.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/alerts", http.StatusFound)
	})
	r.Get("/alerts", s.handleAlerts)
	r.Post("/alerts/{id}/pcap/job", s.handleCreatePCAPJob)
	r.Get("/alerts/{id}/pcap/status/{job}", s.handlePCAPStatus)
	r.Get("/alerts/{id}/pcap/download/{job}", s.handlePCAPDownload)
	r.Get("/alerts/{id}/pcap/direct", s.handleDirectPCAP)
	r.Get("/cases", s.handleCases)
	r.Get("/cases/{id}", s.handleCase)
	r.Get("/grid", s.handleGrid)
	r.Post("/grid/{name}/reboot", s.handleReboot)

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
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info("vidalia listening", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", chimw.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// wantsJSON reports whether the client asked for data instead of a
// page. The dashboard JS sets the header explicitly.
func wantsJSON(r *http.Request) bool {
	return r.Header.Get("Accept") == "application/json"
}

func noCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encoding failed", "err", err)
	}
}

func (s *Server) render(w http.ResponseWriter, name string, data map[string]any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("template render failed", "template", name, "err", err)
	}
}

func (s *Server) renderError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.tmpl.ExecuteTemplate(w, "error.html", map[string]any{
		"Title":   "Error",
		"Message": message,
	}); err != nil {
		s.logger.Error("template render failed", "template", "error.html", "err", err)
	}
}
