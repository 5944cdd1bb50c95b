package command

import (
	"context"
	"strings"
	"testing"

	"github.com/security-onion-solutions/shallot/internal/domain"
	"github.com/security-onion-solutions/shallot/internal/so"
)

func TestDetections_EnableAndDisable(t *testing.T) {
	env := newTestEnv(t)
	createChatUser(t, env, domain.RoleAdmin)
	ctx := context.Background()

	var gotID string
	var gotEnabled bool
	env.siem.setFn = func(ctx context.Context, publicID string, enabled bool) (so.Detection, error) {
		gotID, gotEnabled = publicID, enabled
		return so.Detection{"publicId": publicID}, nil
	}

	res := env.dispatcher.Dispatch(ctx, chatInv("!detections enable 2100498"))
	if res.Text != "✅ Successfully enabled detection rule 2100498" {
		t.Errorf("enable text = %q", res.Text)
	}
	if gotID != "2100498" || !gotEnabled {
		t.Errorf("setFn got id=%q enabled=%v", gotID, gotEnabled)
	}

	res = env.dispatcher.Dispatch(ctx, chatInv("!detections disable 2100498"))
	if res.Text != "✅ Successfully disabled detection rule 2100498" {
		t.Errorf("disable text = %q", res.Text)
	}
	if gotEnabled {
		t.Error("disable did not clear enabled flag")
	}
}

func TestDetections_Summary(t *testing.T) {
	env := newTestEnv(t)
	createChatUser(t, env, domain.RoleAdmin)

	env.siem.getFn = func(ctx context.Context, publicID string) (so.Detection, error) {
		return so.Detection{
			"publicId":  publicID,
			"title":     "ET MALWARE Known Bad",
			"severity":  "high",
			"engine":    "suricata",
			"isEnabled": true,
		}, nil
	}

	res := env.dispatcher.Dispatch(context.Background(), chatInv("!detections summary 2100498"))
	if res.Kind != domain.ResultOK {
		t.Fatalf("kind = %s, text = %q", res.Kind, res.Text)
	}
	if !res.Code {
		t.Error("summary not marked as code")
	}
	if !strings.Contains(res.Text, "Rule 2100498 (enabled)") {
		t.Errorf("text = %q", res.Text)
	}
	if !strings.Contains(res.Text, "ET MALWARE Known Bad") {
		t.Errorf("text = %q", res.Text)
	}
}

func TestDetections_Suppress(t *testing.T) {
	env := newTestEnv(t)
	createChatUser(t, env, domain.RoleAdmin)

	var gotTrack, gotIP string
	env.siem.suppressFn = func(ctx context.Context, publicID, track, ip string) (so.Detection, error) {
		gotTrack, gotIP = track, ip
		return so.Detection{"publicId": publicID}, nil
	}

	res := env.dispatcher.Dispatch(context.Background(), chatInv("!detections suppress 2100498 by_src 10.0.0.5"))
	if res.Text != "✅ Successfully suppressed detection rule 2100498 for 10.0.0.5 (by_src)" {
		t.Errorf("text = %q", res.Text)
	}
	if gotTrack != "by_src" || gotIP != "10.0.0.5" {
		t.Errorf("suppressFn got track=%q ip=%q", gotTrack, gotIP)
	}
}

func TestDetections_SuppressNeedsTrackAndIP(t *testing.T) {
	env := newTestEnv(t)
	createChatUser(t, env, domain.RoleAdmin)

	res := env.dispatcher.Dispatch(context.Background(), chatInv("!detections suppress 2100498 by_src"))
	if res.Kind != domain.ResultInvalid {
		t.Fatalf("kind = %s, text = %q", res.Kind, res.Text)
	}
	if !strings.Contains(res.Text, "suppress <publicid> <by_src|by_dst|by_either> <ip|cidr>") {
		t.Errorf("text = %q", res.Text)
	}
	if env.siem.called("SuppressDetection") {
		t.Error("suppress ran with missing arguments")
	}
}

func TestDetections_RejectsBadTrack(t *testing.T) {
	env := newTestEnv(t)
	createChatUser(t, env, domain.RoleAdmin)

	res := env.dispatcher.Dispatch(context.Background(), chatInv("!detections suppress 2100498 by_both 10.0.0.5"))
	if res.Kind != domain.ResultInvalid {
		t.Fatalf("kind = %s, text = %q", res.Kind, res.Text)
	}
	if !strings.Contains(res.Text, "track must be by_src, by_dst or by_either") {
		t.Errorf("text = %q", res.Text)
	}
}

func TestDetections_RejectsBadIP(t *testing.T) {
	env := newTestEnv(t)
	createChatUser(t, env, domain.RoleAdmin)

	res := env.dispatcher.Dispatch(context.Background(), chatInv("!detections suppress 2100498 by_src not-an-ip"))
	if res.Kind != domain.ResultInvalid {
		t.Fatalf("kind = %s, text = %q", res.Kind, res.Text)
	}
	if !strings.Contains(res.Text, "is not an IP address or CIDR") {
		t.Errorf("text = %q", res.Text)
	}
}
