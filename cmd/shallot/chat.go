package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/security-onion-solutions/shallot/internal/auth"
	"github.com/security-onion-solutions/shallot/internal/bus"
	"github.com/security-onion-solutions/shallot/internal/command"
	"github.com/security-onion-solutions/shallot/internal/config"
	"github.com/security-onion-solutions/shallot/internal/settings"
	"github.com/security-onion-solutions/shallot/internal/so"
)

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Run commands interactively from the terminal",
		Long:  "Starts a local REPL against the command engine. Runs with web-operator privileges, so every command is available regardless of chat roles.",
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

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
	settingsSvc := settings.NewService(st, sealer, events, logger)
	if err := settingsSvc.Seed(ctx); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}

	siem := so.NewHandle(buildSIEMClient(ctx, settingsSvc))
	connectSIEM(ctx, siem)

	handlers := command.NewHandlers(command.HandlerOptions{
		Store:  st,
		SIEM:   siem,
		Logger: logger,
	})
	dispatcher := command.NewDispatcher(command.NewCatalog(handlers), st, events, logger)
	engine := command.NewEngine(command.EngineConfig{
		Dispatcher: dispatcher,
		Settings:   settingsSvc,
		Logger:     logger,
	})

	fmt.Println("shallot chat. Commands start with '!', try !help. Type /quit to exit.")
	fmt.Print("you> ")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Print("you> ")
			continue
		}
		if line == "/quit" || line == "/exit" || line == "/q" {
			return nil
		}

		fmt.Println(engine.ProcessDirect(ctx, line, "web", "cli"))
		fmt.Print("you> ")
	}
	return scanner.Err()
}
