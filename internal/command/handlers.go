package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/security-onion-solutions/shallot/internal/domain"
	"github.com/security-onion-solutions/shallot/internal/so"
)

// SIEM is the slice of the Security Onion client the handlers need.
// *so.Client satisfies it; tests substitute a fake.
type SIEM interface {
	Connected() bool
	QueryEvents(ctx context.Context, opts so.QueryOptions) (*so.EventsResponse, error)
	AckAlert(ctx context.Context, eventID string) (int, error)
	GetDetection(ctx context.Context, publicID string) (so.Detection, error)
	SetDetectionEnabled(ctx context.Context, publicID string, enabled bool) (so.Detection, error)
	SuppressDetection(ctx context.Context, publicID, track, ip string) (so.Detection, error)
	CreateCase(ctx context.Context, title, description string) (*so.Case, error)
	AttachEvent(ctx context.Context, caseID string, fields map[string]any) error
}

// LookupFunc performs an external lookup (whois, dig) for a target.
type LookupFunc func(ctx context.Context, target string) (string, error)

// Handlers implements every chat command on top of the store and the
// SIEM client.
type Handlers struct {
	store   domain.Store
	siem    SIEM
	whois   LookupFunc
	dig     LookupFunc
	logger  *slog.Logger
	catalog *Catalog // set by NewCatalog
}

type HandlerOptions struct {
	Store  domain.Store
	SIEM   SIEM
	Whois  LookupFunc // defaults to a real WHOIS query
	Dig    LookupFunc // defaults to DNS against public resolvers
	Logger *slog.Logger
}

func NewHandlers(opts HandlerOptions) *Handlers {
	h := &Handlers{
		store:  opts.Store,
		siem:   opts.SIEM,
		whois:  opts.Whois,
		dig:    opts.Dig,
		logger: opts.Logger,
	}
	if h.whois == nil {
		h.whois = whoisLookup
	}
	if h.dig == nil {
		h.dig = digLookup
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// Help lists every command with a check mark for the ones the caller's
// role can run.
func (h *Handlers) Help(ctx context.Context, inv domain.Invocation) (domain.Result, error) {
	var role *domain.Role
	if inv.UserType != domain.UserTypeWeb {
		user, err := h.store.GetChatUser(ctx, inv.Platform, inv.UserID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return domain.Result{}, err
		}
		if user != nil {
			role = &user.Role
		}
	}

	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, spec := range h.catalog.All() {
		mark := "❌"
		if inv.UserType == domain.UserTypeWeb || domain.Satisfies(role, spec.Permission) {
			mark = "✅"
		}
		fmt.Fprintf(&b, "%s %s%s - %s (e.g. %s)\n", mark, DefaultPrefix, spec.Name, spec.Description, spec.Example)
	}
	if role == nil && inv.UserType != domain.UserTypeWeb {
		b.WriteString("\nRegister with !register to access more commands")
	}
	return domain.OK(b.String()), nil
}

// Register creates the caller's ChatUser record with the default role.
func (h *Handlers) Register(ctx context.Context, inv domain.Invocation) (domain.Result, error) {
	_, err := h.store.GetChatUser(ctx, inv.Platform, inv.UserID)
	if err == nil {
		return domain.OK("You are already registered!"), nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Result{}, err
	}

	_, err = h.store.CreateChatUser(ctx, domain.ChatUser{
		Platform:    inv.Platform,
		PlatformID:  inv.UserID,
		Username:    inv.Username,
		DisplayName: inv.DisplayName,
		Role:        domain.RoleUser,
	})
	if err != nil {
		return domain.Result{}, fmt.Errorf("create user: %w", err)
	}

	h.logger.Info("chat user registered", "platform", inv.Platform, "user", inv.UserID)
	return domain.OK("Registration successful! You now have access to public commands."), nil
}

// Status reports the SIEM connection state.
func (h *Handlers) Status(ctx context.Context, inv domain.Invocation) (domain.Result, error) {
	if h.siem != nil && h.siem.Connected() {
		return domain.OK("All systems operational. Security Onion connection active."), nil
	}
	return domain.OK("Warning: Security Onion connection not available."), nil
}
