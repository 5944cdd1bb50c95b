package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/security-onion-solutions/shallot/internal/auth"
	"github.com/security-onion-solutions/shallot/internal/bus"
	"github.com/security-onion-solutions/shallot/internal/channel"
	"github.com/security-onion-solutions/shallot/internal/command"
	"github.com/security-onion-solutions/shallot/internal/config"
	"github.com/security-onion-solutions/shallot/internal/domain"
	"github.com/security-onion-solutions/shallot/internal/metrics"
	"github.com/security-onion-solutions/shallot/internal/sched"
	"github.com/security-onion-solutions/shallot/internal/settings"
	"github.com/security-onion-solutions/shallot/internal/so"
	"github.com/security-onion-solutions/shallot/internal/store"
	"github.com/security-onion-solutions/shallot/internal/web"
)

const (
	defaultPollInterval = 60 * time.Second
	shutdownTimeout     = 10 * time.Second
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot gateway (chat channels + web API + alert poller)",
		Long:  "Starts the enabled chat channel, the command engine, the administrative web API, the websocket live feed and the background alert poller. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := new(slog.LevelVar)
	level.Set(parseLogLevel(cfg.General.LogLevel))
	logOut, closeLog, err := logWriter(cfg.General.LogFile)
	if err != nil {
		return err
	}
	if closeLog != nil {
		defer closeLog()
	}
	logger = slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	sealer, err := auth.NewSealer(cfg.Auth.EncryptionKey)
	if err != nil {
		return fmt.Errorf("settings sealer: %w", err)
	}

	events := bus.NewEventBus(logger)
	metrics.Observe(events)

	settingsSvc := settings.NewService(st, sealer, events, logger)
	if err := settingsSvc.Seed(ctx); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}

	// debugLogging in the system settings overrides the configured level
	// and can be flipped at runtime through the web API.
	applyLogLevel := func(ctx context.Context) {
		sys, err := settingsSvc.System(ctx)
		if err != nil {
			return
		}
		if sys.DebugLogging {
			level.Set(slog.LevelDebug)
		} else {
			level.Set(parseLogLevel(cfg.General.LogLevel))
		}
	}
	applyLogLevel(ctx)

	siem := so.NewHandle(buildSIEMClient(ctx, settingsSvc))
	connectSIEM(ctx, siem)

	messageBus := bus.New(100, logger)

	handlers := command.NewHandlers(command.HandlerOptions{
		Store:  st,
		SIEM:   siem,
		Logger: logger,
	})
	catalog := command.NewCatalog(handlers)
	dispatcher := command.NewDispatcher(catalog, st, events, logger)
	engine := command.NewEngine(command.EngineConfig{
		Bus:        messageBus,
		Dispatcher: dispatcher,
		Settings:   settingsSvc,
		Logger:     logger,
	})

	channels := channel.NewManager(channel.ManagerConfig{
		Settings: settingsSvc,
		Bus:      messageBus,
		Events:   events,
		Logger:   logger,
	})

	feed := channel.NewFeed(events, logger)

	scheduler := sched.New(logger)
	poller := sched.NewAlertPoller(sched.AlertPollerConfig{
		SIEM:     siem,
		Notifier: channels,
		Events:   events,
		Logger:   logger,
	})
	schedulePoller := func(ctx context.Context) {
		interval := defaultPollInterval
		if cs, err := settingsSvc.SecurityOnion(ctx); err == nil && cs.PollInterval > 0 {
			interval = time.Duration(cs.PollInterval) * time.Second
		}
		scheduler.Add(sched.Task{ID: "alert-poll", Name: "alert poll", Interval: interval, Run: poller.Poll})
	}
	schedulePoller(ctx)

	refresher := sched.NewTokenRefresher(siem, logger)
	scheduler.Add(sched.Task{ID: "token-refresh", Name: "token refresh", Interval: sched.RefreshInterval, Run: refresher.Refresh})

	// Settings writes take effect without a restart: SECURITY_ONION
	// rebuilds the SIEM client and re-times the poller, system flips the
	// log level. Chat-service keys are handled by the channel manager.
	events.On(bus.EventSettingUpdated, func(e bus.Event) {
		key, _ := e.Payload["key"].(string)
		switch key {
		case domain.SettingSecurityOnion:
			go func() {
				rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
				defer cancel()
				siem.Swap(buildSIEMClient(rctx, settingsSvc))
				connectSIEM(rctx, siem)
				schedulePoller(rctx)
			}()
		case domain.SettingSystem:
			applyLogLevel(ctx)
		}
	})

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		engine.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		channels.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		scheduler.Start(ctx)
	}()

	if cfg.Web.Enabled {
		webServer := web.NewServer(web.Config{
			Addr:     fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
			Origins:  cfg.Web.CORSOrigins,
			Version:  version,
			Store:    st,
			Settings: settingsSvc,
			Tokens:   auth.NewTokenManager(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute),
			Catalog:  catalog,
			Engine:   engine,
			SIEM:     siem,
			Channels: channels,
			Feed:     feed,
			Logger:   logger,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := webServer.Start(ctx); err != nil {
				logger.Error("web server error", "err", err)
			}
		}()
		if cfg.Metrics.Enabled {
			logger.Info("metrics enabled", "endpoint", cfg.Metrics.Endpoint)
		}
	} else {
		logger.Info("web API disabled")
	}

	logger.Info("shallot gateway started", "version", version)

	<-ctx.Done()
	logger.Info("shutting down gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
		messageBus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		return errors.New("shutdown timed out")
	}
}

// openStore picks PostgreSQL when a DATABASE_URL is configured, SQLite
// otherwise.
func openStore(ctx context.Context, cfg *config.Config) (domain.Store, error) {
	if cfg.Database.URL != "" {
		return store.NewPostgresStore(ctx, cfg.Database.URL, logger)
	}
	return store.NewSQLiteStore(config.ExpandPath(cfg.Database.Path), logger)
}

// buildSIEMClient constructs a manager client from the stored
// SECURITY_ONION settings. An unconfigured client is returned when the
// settings are absent; commands then answer "not connected".
func buildSIEMClient(ctx context.Context, svc *settings.Service) *so.Client {
	cs, err := svc.SecurityOnion(ctx)
	if err != nil {
		logger.Warn("SIEM settings unavailable", "err", err)
		return so.NewClient(so.Config{Logger: logger})
	}
	return so.NewClient(so.Config{
		APIURL:       cs.APIURL,
		ClientID:     cs.ClientID,
		ClientSecret: cs.ClientSecret,
		VerifySSL:    cs.VerifySSL,
		Logger:       logger,
	})
}

func connectSIEM(ctx context.Context, siem *so.Handle) {
	if siem.BaseURL() == "" {
		logger.Info("SIEM connection not configured, set SECURITY_ONION via the web API")
		return
	}
	actx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := siem.Authenticate(actx); err != nil {
		logger.Warn("SIEM authentication failed", "url", siem.BaseURL(), "err", err)
		return
	}
	logger.Info("SIEM connected", "url", siem.BaseURL())
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// logWriter returns stderr, optionally teed into the configured log
// file.
func logWriter(logFile string) (io.Writer, func() error, error) {
	if logFile == "" {
		return os.Stderr, nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return nil, nil, fmt.Errorf("cannot create log directory: %w", err)
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open log file: %w", err)
	}
	return io.MultiWriter(os.Stderr, f), f.Close, nil
}
