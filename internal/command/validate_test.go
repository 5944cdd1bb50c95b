package command

import (
	"reflect"
	"strings"
	"testing"

	"github.com/security-onion-solutions/shallot/internal/domain"
)

func TestValidateArgs_CountBounds(t *testing.T) {
	spec := domain.CommandSpec{
		Example:       "!ack 12345",
		RequiredArgs:  1,
		MultiWordFrom: -1,
	}

	if _, reject := ValidateArgs(spec, nil); reject != "Invalid arguments. Usage: !ack 12345" {
		t.Errorf("missing arg reject = %q", reject)
	}
	if _, reject := ValidateArgs(spec, []string{"a", "b"}); reject == "" {
		t.Error("extra arg accepted")
	}
	out, reject := ValidateArgs(spec, []string{"12345"})
	if reject != "" {
		t.Fatalf("valid args rejected: %q", reject)
	}
	if !reflect.DeepEqual(out, []string{"12345"}) {
		t.Errorf("out = %v", out)
	}
}

func TestValidateArgs_OptionalArgs(t *testing.T) {
	spec := domain.CommandSpec{
		Example:       "!detections enable 2100498",
		RequiredArgs:  2,
		OptionalArgs:  2,
		MultiWordFrom: -1,
	}

	if _, reject := ValidateArgs(spec, []string{"enable", "2100498"}); reject != "" {
		t.Errorf("two args rejected: %q", reject)
	}
	if _, reject := ValidateArgs(spec, []string{"suppress", "2100498", "by_src", "10.0.0.1"}); reject != "" {
		t.Errorf("four args rejected: %q", reject)
	}
	if _, reject := ValidateArgs(spec, []string{"a", "b", "c", "d", "e"}); reject == "" {
		t.Error("five args accepted")
	}
}

func TestValidateArgs_MultiWordCollapse(t *testing.T) {
	spec := domain.CommandSpec{
		Example:       "!escalate 12345 Suspicious beaconing",
		RequiredArgs:  1,
		OptionalArgs:  1,
		MultiWordFrom: 1,
	}

	out, reject := ValidateArgs(spec, []string{"12345", "Suspicious", "beaconing", "activity"})
	if reject != "" {
		t.Fatalf("rejected: %q", reject)
	}
	want := []string{"12345", "Suspicious beaconing activity"}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("out = %v, want %v", out, want)
	}

	out, reject = ValidateArgs(spec, []string{"12345"})
	if reject != "" {
		t.Fatalf("single arg rejected: %q", reject)
	}
	if !reflect.DeepEqual(out, []string{"12345"}) {
		t.Errorf("out = %v", out)
	}
}

func TestValidateArgs_ValidatorMessage(t *testing.T) {
	spec := domain.CommandSpec{
		Example:       "!ack 12345",
		RequiredArgs:  1,
		MultiWordFrom: -1,
		Validators:    []domain.ArgValidator{validEventID},
	}

	_, reject := ValidateArgs(spec, []string{"bad/id"})
	if !strings.HasPrefix(reject, "Invalid arguments: ") {
		t.Errorf("reject = %q", reject)
	}
	if !strings.Contains(reject, `"bad/id"`) || !strings.HasSuffix(reject, "Usage: !ack 12345") {
		t.Errorf("reject = %q", reject)
	}
}

func TestValidEventID(t *testing.T) {
	for _, ok := range []string{"12345", "CAbc123xYz", "a.b-c_d:e"} {
		if err := validEventID(ok); err != nil {
			t.Errorf("validEventID(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"", "a b", `a"b`, "a/b", "a*b", "a(b)"} {
		if err := validEventID(bad); err == nil {
			t.Errorf("validEventID(%q) accepted", bad)
		}
	}
}

func TestValidDetectionAction(t *testing.T) {
	for _, ok := range []string{"enable", "disable", "summary", "suppress"} {
		if err := validDetectionAction(ok); err != nil {
			t.Errorf("validDetectionAction(%q) = %v", ok, err)
		}
	}
	if err := validDetectionAction("delete"); err == nil {
		t.Error("validDetectionAction(delete) accepted")
	}
}

func TestValidTrack(t *testing.T) {
	for _, ok := range []string{"by_src", "by_dst", "by_either"} {
		if err := validTrack(ok); err != nil {
			t.Errorf("validTrack(%q) = %v", ok, err)
		}
	}
	if err := validTrack("by_both"); err == nil {
		t.Error("validTrack(by_both) accepted")
	}
}

func TestValidIPOrCIDR(t *testing.T) {
	for _, ok := range []string{"10.0.0.1", "2001:db8::1", "192.168.0.0/24", "fd00::/8"} {
		if err := validIPOrCIDR(ok); err != nil {
			t.Errorf("validIPOrCIDR(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"example.com", "10.0.0", "10.0.0.1/40"} {
		if err := validIPOrCIDR(bad); err == nil {
			t.Errorf("validIPOrCIDR(%q) accepted", bad)
		}
	}
}

func TestValidLookupTarget(t *testing.T) {
	for _, ok := range []string{"example.com", "8.8.8.8", "2001:db8::1", "sub-domain.example.org"} {
		if err := validLookupTarget(ok); err != nil {
			t.Errorf("validLookupTarget(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"a b", "$(reboot)", "a;b", ""} {
		if err := validLookupTarget(bad); err == nil {
			t.Errorf("validLookupTarget(%q) accepted", bad)
		}
	}
}
