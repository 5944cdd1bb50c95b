package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/security-onion-solutions/shallot/internal/auth"
	"github.com/security-onion-solutions/shallot/internal/config"
	"github.com/security-onion-solutions/shallot/internal/domain"
)

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts from the command line",
	}
	cmd.AddCommand(userCreateCmd())
	cmd.AddCommand(userListCmd())
	cmd.AddCommand(userRoleCmd())
	return cmd
}

// userCreateCmd bootstraps a web admin account without going through
// the first-user API endpoint.
func userCreateCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "create [username]",
		Short: "Create a web admin account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := strings.TrimSpace(args[0])
			if username == "" {
				return fmt.Errorf("username cannot be empty")
			}

			if password == "" {
				fmt.Fprintf(os.Stderr, "Password for %s: ", username)
				reader := bufio.NewReader(os.Stdin)
				line, err := reader.ReadString('\n')
				if err != nil {
					return err
				}
				password = strings.TrimSpace(line)
			}
			if len(password) < 8 {
				return fmt.Errorf("password must be at least 8 characters")
			}

			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx := context.Background()
			st, err := openStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			user, err := st.CreateWebUser(ctx, domain.WebUser{
				Username:       username,
				HashedPassword: hash,
				IsActive:       true,
				IsSuperuser:    true,
			})
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}

			fmt.Printf("Web user created: %s (id %d)\n", user.Username, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	return cmd
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered chat users",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx := context.Background()
			st, err := openStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			users, err := st.ListChatUsers(ctx)
			if err != nil {
				return err
			}
			if len(users) == 0 {
				fmt.Println("No chat users registered.")
				return nil
			}

			fmt.Printf("%-5s %-10s %-22s %-20s %s\n", "ID", "PLATFORM", "PLATFORM ID", "USERNAME", "ROLE")
			for _, u := range users {
				fmt.Printf("%-5d %-10s %-22s %-20s %s\n", u.ID, u.Platform, u.PlatformID, u.Username, u.Role)
			}
			return nil
		},
	}
}

// userRoleCmd changes a chat user's role, the same operation the web
// API exposes on PUT /chat-users/{id}.
func userRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "role [id] [user|basic|admin]",
		Short: "Set a chat user's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id int64
			if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			role, err := domain.ParseRole(strings.ToLower(args[1]))
			if err != nil {
				return err
			}

			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx := context.Background()
			st, err := openStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			user, err := st.GetChatUserByID(ctx, id)
			if err != nil {
				return fmt.Errorf("lookup user %d: %w", id, err)
			}
			user.Role = role
			updated, err := st.UpdateChatUser(ctx, *user)
			if err != nil {
				return fmt.Errorf("update user: %w", err)
			}

			fmt.Printf("Role updated: %s/%s is now %s\n", updated.Platform, updated.Username, updated.Role)
			return nil
		},
	}
}
