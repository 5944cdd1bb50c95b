package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/security-onion-solutions/shallot/internal/bus"
	"github.com/security-onion-solutions/shallot/internal/domain"
)

// Dispatcher runs the per-invocation state machine: parse, resolve,
// authorize, validate, execute. Every outcome is a typed Result; handler
// errors and panics never cross the dispatch boundary.
type Dispatcher struct {
	catalog *Catalog
	store   domain.Store
	events  *bus.EventBus
	logger  *slog.Logger
}

func NewDispatcher(catalog *Catalog, store domain.Store, events *bus.EventBus, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		catalog: catalog,
		store:   store,
		events:  events,
		logger:  logger,
	}
}

// Catalog exposes the registry for the help handler and the web API.
func (d *Dispatcher) Catalog() *Catalog { return d.catalog }

// Dispatch processes one invocation. inv.Raw carries the full command
// text; Command and Args are filled in here and nowhere else.
func (d *Dispatcher) Dispatch(ctx context.Context, inv domain.Invocation) domain.Result {
	started := time.Now()

	name, args, reject := Parse(inv.Raw, inv.Prefix)
	if reject != "" {
		return domain.Result{Kind: domain.ResultInvalid, Text: reject}
	}
	inv.Command = name

	prefix := inv.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	spec, ok := d.catalog.Resolve(name)
	if !ok || !spec.AllowedOn(inv.Platform) {
		return domain.Result{
			Kind: domain.ResultUnknown,
			Text: fmt.Sprintf("Unknown command: %s. Try %shelp to see available commands.", name, prefix),
		}
	}

	if inv.UserType != domain.UserTypeWeb {
		role, err := d.callerRole(ctx, inv)
		if err != nil {
			d.logger.Error("role lookup failed", "platform", inv.Platform, "user", inv.UserID, "err", err)
			return domain.Result{
				Kind: domain.ResultError,
				Text: fmt.Sprintf("Error executing command: %s", err),
			}
		}
		required := d.catalog.RequiredPermission(name)
		if !domain.Satisfies(role, required) {
			d.auditDenial(ctx, inv, name, role)
			roleName := "none"
			if role != nil {
				roleName = string(*role)
			}
			return domain.Result{
				Kind: domain.ResultDenied,
				Text: fmt.Sprintf("Permission denied. This command requires %s access. Your role: %s", required, roleName),
			}
		}
	}

	args, reject = ValidateArgs(spec, args)
	if reject != "" {
		return domain.Result{Kind: domain.ResultInvalid, Text: reject}
	}
	inv.Args = args

	result, err := d.execute(ctx, spec, inv)
	if err != nil {
		d.logger.Error("command failed", "command", name, "platform", inv.Platform, "err", err)
		result = domain.Result{
			Kind: domain.ResultError,
			Text: fmt.Sprintf("Error executing command: %s", err),
		}
	}

	d.events.Emit(bus.Event{
		Type:   bus.EventCommandExecuted,
		Source: "dispatcher",
		Payload: map[string]any{
			"command":     name,
			"platform":    string(inv.Platform),
			"outcome":     string(result.Kind),
			"duration_ms": time.Since(started).Milliseconds(),
		},
	})
	return result
}

// callerRole loads the caller's stored role; nil means unregistered.
func (d *Dispatcher) callerRole(ctx context.Context, inv domain.Invocation) (*domain.Role, error) {
	user, err := d.store.GetChatUser(ctx, inv.Platform, inv.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user.Role, nil
}

func (d *Dispatcher) auditDenial(ctx context.Context, inv domain.Invocation, name string, role *domain.Role) {
	roleName := "none"
	if role != nil {
		roleName = string(*role)
	}
	entry := domain.AuditEntry{
		Actor:    string(inv.Platform) + ":" + inv.UserID,
		Platform: inv.Platform,
		Action:   "command_denied",
		Detail:   fmt.Sprintf("command=%s role=%s", name, roleName),
	}
	if err := d.store.AppendAudit(ctx, entry); err != nil {
		d.logger.Warn("cannot write audit entry", "err", err)
	}
	d.events.Emit(bus.Event{
		Type:   bus.EventCommandDenied,
		Source: "dispatcher",
		Payload: map[string]any{
			"command":  name,
			"platform": string(inv.Platform),
			"user":     inv.UserID,
			"role":     roleName,
		},
	})
}

// execute runs the handler with panic containment.
func (d *Dispatcher) execute(ctx context.Context, spec domain.CommandSpec, inv domain.Invocation) (result domain.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panic", "command", spec.Name, "panic", r)
			err = fmt.Errorf("internal error in %s", spec.Name)
		}
	}()
	return spec.Handler(ctx, inv)
}
