// Package command implements the chat command pipeline: a static
// catalog of command declarations, a parser, an argument validator, the
// permission-checking dispatcher and the handlers that talk to
// Security Onion.
package command

import (
	"github.com/security-onion-solutions/shallot/internal/domain"
)

// Catalog is the static command registry. Specs are registered once at
// construction and never mutated afterwards.
type Catalog struct {
	ordered []domain.CommandSpec
	byName  map[string]domain.CommandSpec
}

// NewCatalog declares every chat command. Permission defaults are
// deliberately restrictive: anything not explicitly public requires
// admin.
func NewCatalog(h *Handlers) *Catalog {
	c := &Catalog{byName: make(map[string]domain.CommandSpec)}
	h.catalog = c

	c.add(domain.CommandSpec{
		Name:          "help",
		Description:   "Show available commands",
		Example:       "!help",
		Permission:    domain.PermissionPublic,
		MultiWordFrom: -1,
		Handler:       h.Help,
	})
	c.add(domain.CommandSpec{
		Name:          "register",
		Description:   "Register yourself with the bot",
		Example:       "!register",
		Permission:    domain.PermissionPublic,
		MultiWordFrom: -1,
		Handler:       h.Register,
	})
	c.add(domain.CommandSpec{
		Name:          "status",
		Description:   "Show Security Onion connection status",
		Example:       "!status",
		Permission:    domain.PermissionAdmin,
		MultiWordFrom: -1,
		Handler:       h.Status,
	})
	c.add(domain.CommandSpec{
		Name:          "alerts",
		Description:   "Show the newest unacknowledged alerts",
		Example:       "!alerts",
		Permission:    domain.PermissionAdmin,
		MultiWordFrom: -1,
		Handler:       h.Alerts,
	})
	c.add(domain.CommandSpec{
		Name:          "ack",
		Description:   "Acknowledge an alert by event ID",
		Example:       "!ack 12345",
		Permission:    domain.PermissionAdmin,
		RequiredArgs:  1,
		MultiWordFrom: -1,
		Validators:    []domain.ArgValidator{validEventID},
		Handler:       h.Ack,
	})
	c.add(domain.CommandSpec{
		Name:          "detections",
		Description:   "Manage detection rules (enable, disable, summary, suppress)",
		Example:       "!detections enable 2100498",
		Permission:    domain.PermissionAdmin,
		RequiredArgs:  2,
		OptionalArgs:  2,
		MultiWordFrom: -1,
		Validators:    []domain.ArgValidator{validDetectionAction, validEventID, validTrack, validIPOrCIDR},
		Handler:       h.Detections,
	})
	c.add(domain.CommandSpec{
		Name:          "hunt",
		Description:   "Retrieve the full event record for an event ID",
		Example:       "!hunt 12345",
		Permission:    domain.PermissionAdmin,
		RequiredArgs:  1,
		MultiWordFrom: -1,
		Validators:    []domain.ArgValidator{validEventID},
		Handler:       h.Hunt,
	})
	c.add(domain.CommandSpec{
		Name:          "escalate",
		Description:   "Escalate an event to a case",
		Example:       "!escalate 12345 Suspicious beaconing",
		Permission:    domain.PermissionAdmin,
		RequiredArgs:  1,
		OptionalArgs:  1,
		MultiWordFrom: 1,
		Validators:    []domain.ArgValidator{validEventID},
		Handler:       h.Escalate,
	})
	c.add(domain.CommandSpec{
		Name:          "whois",
		Description:   "WHOIS lookup for an IP or domain",
		Example:       "!whois 8.8.8.8",
		Permission:    domain.PermissionAdmin,
		RequiredArgs:  1,
		MultiWordFrom: -1,
		Validators:    []domain.ArgValidator{validLookupTarget},
		Handler:       h.Whois,
	})
	c.add(domain.CommandSpec{
		Name:          "dig",
		Description:   "DNS lookup for an IP or hostname",
		Example:       "!dig example.com",
		Permission:    domain.PermissionAdmin,
		RequiredArgs:  1,
		MultiWordFrom: -1,
		Validators:    []domain.ArgValidator{validLookupTarget},
		Handler:       h.Dig,
	})

	return c
}

func (c *Catalog) add(spec domain.CommandSpec) {
	c.ordered = append(c.ordered, spec)
	c.byName[spec.Name] = spec
}

// Resolve returns the spec for a command name.
func (c *Catalog) Resolve(name string) (domain.CommandSpec, bool) {
	spec, ok := c.byName[name]
	return spec, ok
}

// All returns the specs in registration order.
func (c *Catalog) All() []domain.CommandSpec {
	return c.ordered
}

// RequiredPermission is fail-closed: a name that resolves to nothing
// requires admin, never public.
func (c *Catalog) RequiredPermission(name string) domain.Permission {
	if spec, ok := c.byName[name]; ok {
		return spec.Permission
	}
	return domain.PermissionAdmin
}
