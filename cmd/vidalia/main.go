package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/security-onion-solutions/shallot/internal/config"
	"github.com/security-onion-solutions/shallot/internal/so"
	"github.com/security-onion-solutions/shallot/internal/vidalia"
)

var (
	version    = "1.0.0"
	logger     *slog.Logger
	configPath string
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	loadLocalEnv()

	root := &cobra.Command{
		Use:   "vidalia",
		Short: "Vidalia: Security Onion analyst console",
		Long: "Vidalia serves a lightweight web console over the Security Onion REST API:\n" +
			"alert review with PCAP download, case browsing and grid management.",
		RunE: runServer,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.shallot/config.json)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the vidalia version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("vidalia " + version)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadLocalEnv() {
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found, relying on process environment")
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfgPath := configPath
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
	}

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.General.LogLevel)}))

	vc := cfg.Vidalia
	apiURL := expanded(vc.APIURL)
	if apiURL == "" {
		return fmt.Errorf("Security Onion API not configured: set vidalia.apiUrl in %s or export SO_API_URL", cfgPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := so.NewClient(so.Config{
		APIURL:       apiURL,
		ClientID:     expanded(vc.ClientID),
		ClientSecret: expanded(vc.ClientSecret),
		VerifySSL:    vc.VerifySSL,
		Logger:       logger,
	})

	actx, cancel := context.WithTimeout(ctx, 15*time.Second)
	if err := client.Authenticate(actx); err != nil {
		logger.Warn("SIEM authentication failed at startup", "url", client.BaseURL(), "err", err)
	} else {
		logger.Info("SIEM connected", "url", client.BaseURL())
	}
	cancel()

	srv := vidalia.NewServer(vidalia.Config{
		Addr:         fmt.Sprintf("%s:%d", vc.Host, vc.Port),
		AlertsLimit:  vc.AlertsLimit,
		UserCacheTTL: time.Duration(vc.CacheTTL) * time.Second,
		SIEM:         client,
		Logger:       logger,
	})
	return srv.Start(ctx)
}

// expanded resolves ${VAR} references and treats values whose variables
// are unset as absent.
func expanded(s string) string {
	s = config.ExpandEnvVars(s)
	if strings.Contains(s, "${") {
		return ""
	}
	return s
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
