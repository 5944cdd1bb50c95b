package command

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/likexian/whois"
	"github.com/miekg/dns"

	"github.com/security-onion-solutions/shallot/internal/domain"
)

// lookupOutputLimit keeps fenced lookup replies inside platform
// message limits.
const lookupOutputLimit = 1900

var digResolvers = []string{"8.8.8.8:53", "8.8.4.4:53"}

// Whois runs a WHOIS query for an IP or domain.
func (h *Handlers) Whois(ctx context.Context, inv domain.Invocation) (domain.Result, error) {
	target := inv.Args[0]
	out, err := h.whois(ctx, target)
	if err != nil {
		return domain.Result{}, fmt.Errorf("whois %s: %w", target, err)
	}
	return domain.OK(fenceOutput(out)), nil
}

// Dig resolves an IP or hostname against public resolvers and replies
// with dig-style output.
func (h *Handlers) Dig(ctx context.Context, inv domain.Invocation) (domain.Result, error) {
	target := inv.Args[0]
	out, err := h.dig(ctx, target)
	if err != nil {
		return domain.Result{}, fmt.Errorf("dig %s: %w", target, err)
	}
	return domain.OK(fenceOutput(out)), nil
}

func fenceOutput(out string) string {
	out = strings.TrimSpace(out)
	if len(out) > lookupOutputLimit {
		out = out[:lookupOutputLimit] + "\n... (truncated)"
	}
	return fmt.Sprintf("```\n%s\n```", out)
}

// whoisLookup is the default WHOIS implementation.
func whoisLookup(ctx context.Context, target string) (string, error) {
	client := whois.NewClient()
	if deadline, ok := ctx.Deadline(); ok {
		client.SetTimeout(time.Until(deadline))
	} else {
		client.SetTimeout(15 * time.Second)
	}
	return client.Whois(target)
}

// digLookup queries public resolvers in order until one answers. IPs
// get a PTR lookup, anything else an A lookup.
func digLookup(ctx context.Context, target string) (string, error) {
	m := new(dns.Msg)
	if _, err := netip.ParseAddr(target); err == nil {
		reverse, err := dns.ReverseAddr(target)
		if err != nil {
			return "", fmt.Errorf("reverse address: %w", err)
		}
		m.SetQuestion(reverse, dns.TypePTR)
	} else {
		m.SetQuestion(dns.Fqdn(target), dns.TypeA)
	}
	m.RecursionDesired = true

	client := &dns.Client{Timeout: 5 * time.Second}
	var lastErr error
	for _, resolver := range digResolvers {
		reply, _, err := client.ExchangeContext(ctx, m, resolver)
		if err != nil {
			lastErr = err
			continue
		}
		return reply.String(), nil
	}
	return "", fmt.Errorf("all resolvers failed: %w", lastErr)
}
