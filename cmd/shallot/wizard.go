package main

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/security-onion-solutions/shallot/internal/config"
)

func wizardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wizard",
		Short: "Interactive setup: data dir → secrets → database → Vidalia → save config",
		Long:  "Guides you through the data directory, web API secrets (generated when left at the default), the database backend and the Vidalia SIEM connection. Writes config to the path used by --config or default. Chat platform tokens are configured later through the web API.",
		RunE:  runWizard,
	}
}

func runWizard(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		cfg = config.Defaults()
	}

	reader := bufio.NewReader(os.Stdin)
	prompt := func(def string) (string, error) {
		if def != "" {
			fmt.Fprintf(os.Stdout, " [%s]: ", def)
		} else {
			fmt.Fprint(os.Stdout, ": ")
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		s := strings.TrimSpace(line)
		if s == "" && def != "" {
			return def, nil
		}
		return s, nil
	}

	// Step 1: Data directory
	fmt.Println("\n--- Step 1: Data directory ---")
	fmt.Fprint(os.Stdout, "Directory for the database and backups")
	dataDir, err := prompt(cfg.General.DataDir)
	if err != nil {
		return err
	}
	cfg.General.DataDir = dataDir
	expanded := config.ExpandPath(cfg.General.DataDir)
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	fmt.Fprintf(os.Stdout, "  Using data directory: %s\n", expanded)

	// Step 2: Web API and secrets
	fmt.Println("\n--- Step 2: Web API ---")
	fmt.Fprint(os.Stdout, "Enable the administrative web API? (y/n)")
	enableWeb, err := prompt(yesNo(cfg.Web.Enabled))
	if err != nil {
		return err
	}
	cfg.Web.Enabled = isYes(enableWeb)
	if cfg.Web.Enabled {
		fmt.Fprint(os.Stdout, "Listen host")
		if cfg.Web.Host, err = prompt(cfg.Web.Host); err != nil {
			return err
		}
		fmt.Fprint(os.Stdout, "Listen port")
		portStr, err := prompt(fmt.Sprint(cfg.Web.Port))
		if err != nil {
			return err
		}
		if n, _ := fmt.Sscanf(portStr, "%d", &cfg.Web.Port); n != 1 {
			return fmt.Errorf("invalid port %q", portStr)
		}
	}

	fmt.Fprint(os.Stdout, "JWT secret: paste a value, an env reference, or 'generate'")
	jwtSecret, err := prompt("generate")
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret, err = resolveSecret(jwtSecret); err != nil {
		return err
	}

	fmt.Fprint(os.Stdout, "Settings encryption key: paste a value, an env reference, or 'generate'")
	encKey, err := prompt("generate")
	if err != nil {
		return err
	}
	if cfg.Auth.EncryptionKey, err = resolveSecret(encKey); err != nil {
		return err
	}

	// Step 3: Database
	fmt.Println("\n--- Step 3: Database ---")
	fmt.Fprint(os.Stdout, "PostgreSQL DSN (leave empty for SQLite)")
	dsn, err := prompt("")
	if err != nil {
		return err
	}
	cfg.Database.URL = dsn
	if dsn == "" {
		fmt.Fprint(os.Stdout, "SQLite database path")
		if cfg.Database.Path, err = prompt(cfg.Database.Path); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "  Using SQLite: %s\n", config.ExpandPath(cfg.Database.Path))
	} else {
		fmt.Fprintln(os.Stdout, "  Using PostgreSQL")
	}

	// Step 4: Vidalia
	fmt.Println("\n--- Step 4: Vidalia (analyst console) ---")
	fmt.Fprint(os.Stdout, "Security Onion API URL (e.g. https://manager/ or ${SO_API_URL})")
	if cfg.Vidalia.APIURL, err = prompt(cfg.Vidalia.APIURL); err != nil {
		return err
	}
	fmt.Fprint(os.Stdout, "OAuth client id")
	if cfg.Vidalia.ClientID, err = prompt(cfg.Vidalia.ClientID); err != nil {
		return err
	}
	fmt.Fprint(os.Stdout, "OAuth client secret")
	if cfg.Vidalia.ClientSecret, err = prompt(cfg.Vidalia.ClientSecret); err != nil {
		return err
	}

	// Save
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "\nConfig saved to %s\n", cfgPath)
	fmt.Println("Next: run 'shallot user create <name>' for a web admin, then 'shallot serve'.")
	fmt.Println("Chat platform tokens and the SECURITY_ONION poller are configured through the web API.")
	return nil
}

// resolveSecret turns the wizard answer into a config value: "generate"
// mints a random key, anything else (including ${VAR} references) is
// stored as given.
func resolveSecret(answer string) (string, error) {
	if answer != "generate" {
		return answer, nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	fmt.Fprintln(os.Stdout, "  Generated.")
	return hex.EncodeToString(buf), nil
}

func yesNo(b bool) string {
	if b {
		return "y"
	}
	return "n"
}

func isYes(s string) bool {
	s = strings.ToLower(s)
	return s == "y" || s == "yes"
}
