package command

import (
	"fmt"
	"net/netip"
	"regexp"
	"strings"

	"github.com/security-onion-solutions/shallot/internal/domain"
)

// ValidateArgs applies a spec's argument shape to the parsed tokens:
// multi-word collapsing first, then count bounds, then per-argument
// validators. The returned slice is the collapsed argument list; a
// non-empty reject is the user-facing failure message.
func ValidateArgs(spec domain.CommandSpec, args []string) (out []string, reject string) {
	if spec.MultiWordFrom >= 0 && len(args) > spec.MultiWordFrom {
		collapsed := make([]string, 0, spec.MultiWordFrom+1)
		collapsed = append(collapsed, args[:spec.MultiWordFrom]...)
		collapsed = append(collapsed, strings.Join(args[spec.MultiWordFrom:], " "))
		args = collapsed
	}

	if len(args) < spec.RequiredArgs || len(args) > spec.RequiredArgs+spec.OptionalArgs {
		return nil, usageMessage(spec)
	}

	for i, arg := range args {
		if i >= len(spec.Validators) || spec.Validators[i] == nil {
			continue
		}
		if err := spec.Validators[i](arg); err != nil {
			return nil, fmt.Sprintf("Invalid arguments: %s. Usage: %s", err, spec.Example)
		}
	}

	return args, ""
}

func usageMessage(spec domain.CommandSpec) string {
	return fmt.Sprintf("Invalid arguments. Usage: %s", spec.Example)
}

// eventIDPattern matches Elasticsearch and Zeek style identifiers.
// Anything outside this set would also be unsafe to splice into an
// onion query.
var eventIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)

func validEventID(value string) error {
	if !eventIDPattern.MatchString(value) {
		return fmt.Errorf("event id %q contains invalid characters", value)
	}
	return nil
}

func validDetectionAction(value string) error {
	switch value {
	case "enable", "disable", "summary", "suppress":
		return nil
	}
	return fmt.Errorf("action must be enable, disable, summary or suppress")
}

func validTrack(value string) error {
	switch value {
	case "by_src", "by_dst", "by_either":
		return nil
	}
	return fmt.Errorf("track must be by_src, by_dst or by_either")
}

func validIPOrCIDR(value string) error {
	if _, err := netip.ParseAddr(value); err == nil {
		return nil
	}
	if _, err := netip.ParsePrefix(value); err == nil {
		return nil
	}
	return fmt.Errorf("%q is not an IP address or CIDR", value)
}

// lookupTargetPattern covers hostnames, IPv4 and IPv6 literals.
var lookupTargetPattern = regexp.MustCompile(`^[A-Za-z0-9.:_-]+$`)

func validLookupTarget(value string) error {
	if !lookupTargetPattern.MatchString(value) {
		return fmt.Errorf("%q is not a valid lookup target", value)
	}
	return nil
}
