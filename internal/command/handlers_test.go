package command

import (
	"context"
	"strings"
	"testing"

	"github.com/security-onion-solutions/shallot/internal/domain"
)

func TestHelp_UnregisteredSeesNudge(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.handlers.Help(context.Background(), chatInv("!help"))
	if err != nil {
		t.Fatalf("Help: %v", err)
	}
	if !strings.HasPrefix(res.Text, "Available commands:\n") {
		t.Errorf("text = %q", res.Text)
	}
	if !strings.Contains(res.Text, "✅ !help - Show available commands (e.g. !help)") {
		t.Errorf("help line missing: %q", res.Text)
	}
	if !strings.Contains(res.Text, "❌ !status") {
		t.Errorf("status should be marked unavailable: %q", res.Text)
	}
	if !strings.HasSuffix(res.Text, "Register with !register to access more commands") {
		t.Errorf("nudge missing: %q", res.Text)
	}
}

func TestHelp_AdminSeesEverythingChecked(t *testing.T) {
	env := newTestEnv(t)
	createChatUser(t, env, domain.RoleAdmin)

	res, err := env.handlers.Help(context.Background(), chatInv("!help"))
	if err != nil {
		t.Fatalf("Help: %v", err)
	}
	if strings.Contains(res.Text, "❌") {
		t.Errorf("admin sees denied marks: %q", res.Text)
	}
	if got := strings.Count(res.Text, "✅"); got != len(env.dispatcher.Catalog().All()) {
		t.Errorf("checked marks = %d, want %d", got, len(env.dispatcher.Catalog().All()))
	}
	if strings.Contains(res.Text, "Register with !register") {
		t.Errorf("admin sees registration nudge: %q", res.Text)
	}
}

func TestHelp_WebCallerSeesEverythingChecked(t *testing.T) {
	env := newTestEnv(t)

	inv := chatInv("!help")
	inv.UserType = domain.UserTypeWeb
	res, err := env.handlers.Help(context.Background(), inv)
	if err != nil {
		t.Fatalf("Help: %v", err)
	}
	if strings.Contains(res.Text, "❌") || strings.Contains(res.Text, "Register with") {
		t.Errorf("web caller output = %q", res.Text)
	}
}

func TestRegister_StoresPlatformIdentity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.handlers.Register(ctx, chatInv("!register"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.Text != "Registration successful! You now have access to public commands." {
		t.Errorf("text = %q", res.Text)
	}

	u, err := env.store.GetChatUser(ctx, domain.PlatformDiscord, "100200300")
	if err != nil {
		t.Fatalf("GetChatUser: %v", err)
	}
	if u.Username != "analyst" || u.DisplayName != "Analyst" {
		t.Errorf("stored user = %+v", u)
	}
	if u.Role != domain.RoleUser {
		t.Errorf("role = %s, want %s", u.Role, domain.RoleUser)
	}
}

func TestStatus_ReportsConnection(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.handlers.Status(context.Background(), chatInv("!status"))
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if res.Text != "All systems operational. Security Onion connection active." {
		t.Errorf("connected text = %q", res.Text)
	}

	env.siem.connected = false
	res, err = env.handlers.Status(context.Background(), chatInv("!status"))
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if res.Text != "Warning: Security Onion connection not available." {
		t.Errorf("disconnected text = %q", res.Text)
	}
}
