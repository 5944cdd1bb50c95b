package command

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/security-onion-solutions/shallot/internal/bus"
	"github.com/security-onion-solutions/shallot/internal/domain"
	"github.com/security-onion-solutions/shallot/internal/so"
	"github.com/security-onion-solutions/shallot/internal/store"
)

// fakeSIEM records every call and delegates to optional stubs.
type fakeSIEM struct {
	mu        sync.Mutex
	connected bool
	calls     []string

	queryFn    func(ctx context.Context, opts so.QueryOptions) (*so.EventsResponse, error)
	ackFn      func(ctx context.Context, eventID string) (int, error)
	getFn      func(ctx context.Context, publicID string) (so.Detection, error)
	setFn      func(ctx context.Context, publicID string, enabled bool) (so.Detection, error)
	suppressFn func(ctx context.Context, publicID, track, ip string) (so.Detection, error)
	createFn   func(ctx context.Context, title, description string) (*so.Case, error)
	attachFn   func(ctx context.Context, caseID string, fields map[string]any) error
}

func (f *fakeSIEM) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeSIEM) called(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == name {
			return true
		}
	}
	return false
}

func (f *fakeSIEM) Connected() bool { return f.connected }

func (f *fakeSIEM) QueryEvents(ctx context.Context, opts so.QueryOptions) (*so.EventsResponse, error) {
	f.record("QueryEvents")
	if f.queryFn != nil {
		return f.queryFn(ctx, opts)
	}
	return &so.EventsResponse{}, nil
}

func (f *fakeSIEM) AckAlert(ctx context.Context, eventID string) (int, error) {
	f.record("AckAlert")
	if f.ackFn != nil {
		return f.ackFn(ctx, eventID)
	}
	return 1, nil
}

func (f *fakeSIEM) GetDetection(ctx context.Context, publicID string) (so.Detection, error) {
	f.record("GetDetection")
	if f.getFn != nil {
		return f.getFn(ctx, publicID)
	}
	return so.Detection{"publicId": publicID}, nil
}

func (f *fakeSIEM) SetDetectionEnabled(ctx context.Context, publicID string, enabled bool) (so.Detection, error) {
	f.record("SetDetectionEnabled")
	if f.setFn != nil {
		return f.setFn(ctx, publicID, enabled)
	}
	return so.Detection{"publicId": publicID, "isEnabled": enabled}, nil
}

func (f *fakeSIEM) SuppressDetection(ctx context.Context, publicID, track, ip string) (so.Detection, error) {
	f.record("SuppressDetection")
	if f.suppressFn != nil {
		return f.suppressFn(ctx, publicID, track, ip)
	}
	return so.Detection{"publicId": publicID}, nil
}

func (f *fakeSIEM) CreateCase(ctx context.Context, title, description string) (*so.Case, error) {
	f.record("CreateCase")
	if f.createFn != nil {
		return f.createFn(ctx, title, description)
	}
	return &so.Case{ID: "case-1", Title: title}, nil
}

func (f *fakeSIEM) AttachEvent(ctx context.Context, caseID string, fields map[string]any) error {
	f.record("AttachEvent")
	if f.attachFn != nil {
		return f.attachFn(ctx, caseID, fields)
	}
	return nil
}

type testEnv struct {
	dispatcher *Dispatcher
	handlers   *Handlers
	store      domain.Store
	siem       *fakeSIEM
	events     *bus.EventBus
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := testLogger()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "shallot.db"), logger)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	siem := &fakeSIEM{connected: true}
	handlers := NewHandlers(HandlerOptions{
		Store:  st,
		SIEM:   siem,
		Logger: logger,
		Whois: func(ctx context.Context, target string) (string, error) {
			return "whois data for " + target, nil
		},
		Dig: func(ctx context.Context, target string) (string, error) {
			return "dig data for " + target, nil
		},
	})
	events := bus.NewEventBus(logger)
	dispatcher := NewDispatcher(NewCatalog(handlers), st, events, logger)

	return &testEnv{
		dispatcher: dispatcher,
		handlers:   handlers,
		store:      st,
		siem:       siem,
		events:     events,
	}
}

// chatInv builds a Discord invocation for the default test user.
func chatInv(raw string) domain.Invocation {
	return domain.Invocation{
		Raw:         raw,
		Prefix:      "!",
		Platform:    domain.PlatformDiscord,
		UserID:      "100200300",
		Username:    "analyst",
		DisplayName: "Analyst",
		UserType:    domain.UserTypeChat,
	}
}

// createChatUser inserts a registered user with the given role.
func createChatUser(t *testing.T, env *testEnv, role domain.Role) {
	t.Helper()
	ctx := context.Background()
	u, err := env.store.CreateChatUser(ctx, domain.ChatUser{
		Platform:   domain.PlatformDiscord,
		PlatformID: "100200300",
		Username:   "analyst",
		Role:       domain.RoleUser,
	})
	if err != nil {
		t.Fatalf("CreateChatUser: %v", err)
	}
	if role != domain.RoleUser {
		u.Role = role
		if _, err := env.store.UpdateChatUser(ctx, *u); err != nil {
			t.Fatalf("UpdateChatUser: %v", err)
		}
	}
}

func TestDispatch_RejectsUnprefixedText(t *testing.T) {
	env := newTestEnv(t)

	res := env.dispatcher.Dispatch(context.Background(), chatInv("status please"))
	if res.Kind != domain.ResultInvalid {
		t.Fatalf("kind = %s, want %s", res.Kind, domain.ResultInvalid)
	}
	if res.Text != "Commands must start with !" {
		t.Errorf("text = %q", res.Text)
	}
	if len(env.siem.calls) != 0 {
		t.Errorf("siem was called for unprefixed text: %v", env.siem.calls)
	}
}

func TestDispatch_EmptyCommand(t *testing.T) {
	env := newTestEnv(t)

	res := env.dispatcher.Dispatch(context.Background(), chatInv("!"))
	if res.Kind != domain.ResultInvalid {
		t.Fatalf("kind = %s", res.Kind)
	}
	want := "Please provide a command. Try !help to see available commands."
	if res.Text != want {
		t.Errorf("text = %q, want %q", res.Text, want)
	}
}

func TestDispatch_UnknownCommand(t *testing.T) {
	env := newTestEnv(t)

	res := env.dispatcher.Dispatch(context.Background(), chatInv("!frobnicate now"))
	if res.Kind != domain.ResultUnknown {
		t.Fatalf("kind = %s", res.Kind)
	}
	want := "Unknown command: frobnicate. Try !help to see available commands."
	if res.Text != want {
		t.Errorf("text = %q, want %q", res.Text, want)
	}
}

func TestDispatch_CommandNameIsCaseInsensitive(t *testing.T) {
	env := newTestEnv(t)

	res := env.dispatcher.Dispatch(context.Background(), chatInv("!HELP"))
	if res.Kind != domain.ResultOK {
		t.Fatalf("kind = %s, text = %q", res.Kind, res.Text)
	}
	if !strings.HasPrefix(res.Text, "Available commands:") {
		t.Errorf("text = %q", res.Text)
	}
}

func TestDispatch_UnregisteredUserDenied(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var denied []bus.Event
	env.events.On(bus.EventCommandDenied, func(e bus.Event) {
		denied = append(denied, e)
	})

	res := env.dispatcher.Dispatch(ctx, chatInv("!status"))
	if res.Kind != domain.ResultDenied {
		t.Fatalf("kind = %s, text = %q", res.Kind, res.Text)
	}
	want := "Permission denied. This command requires admin access. Your role: none"
	if res.Text != want {
		t.Errorf("text = %q, want %q", res.Text, want)
	}
	if env.siem.called("Connected") || len(env.siem.calls) != 0 {
		t.Errorf("handler ran despite denial: %v", env.siem.calls)
	}

	entries, err := env.store.ListAudit(ctx, 10)
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	if entries[0].Action != "command_denied" {
		t.Errorf("audit action = %q", entries[0].Action)
	}
	if entries[0].Actor != "discord:100200300" {
		t.Errorf("audit actor = %q", entries[0].Actor)
	}

	if len(denied) != 1 {
		t.Fatalf("denied events = %d, want 1", len(denied))
	}
	if denied[0].Payload["command"] != "status" || denied[0].Payload["role"] != "none" {
		t.Errorf("denied payload = %v", denied[0].Payload)
	}
}

func TestDispatch_BasicRoleDeniedAdminCommand(t *testing.T) {
	env := newTestEnv(t)
	createChatUser(t, env, domain.RoleBasic)

	res := env.dispatcher.Dispatch(context.Background(), chatInv("!alerts"))
	if res.Kind != domain.ResultDenied {
		t.Fatalf("kind = %s, text = %q", res.Kind, res.Text)
	}
	if !strings.Contains(res.Text, "Your role: basic") {
		t.Errorf("text = %q", res.Text)
	}
}

func TestDispatch_WebUserBypassesPermissions(t *testing.T) {
	env := newTestEnv(t)

	inv := domain.Invocation{
		Raw:      "!alerts",
		Prefix:   "!",
		Platform: domain.PlatformWeb,
		UserID:   "webadmin",
		Username: "webadmin",
		UserType: domain.UserTypeWeb,
	}
	res := env.dispatcher.Dispatch(context.Background(), inv)
	if res.Kind != domain.ResultOK {
		t.Fatalf("kind = %s, text = %q", res.Kind, res.Text)
	}
	if res.Text != "No unacknowledged alerts in the last 24 hours." {
		t.Errorf("text = %q", res.Text)
	}
	if !env.siem.called("QueryEvents") {
		t.Error("handler did not run for web caller")
	}
}

func TestDispatch_ArgumentCountEnforced(t *testing.T) {
	env := newTestEnv(t)
	createChatUser(t, env, domain.RoleAdmin)

	res := env.dispatcher.Dispatch(context.Background(), chatInv("!ack"))
	if res.Kind != domain.ResultInvalid {
		t.Fatalf("kind = %s, text = %q", res.Kind, res.Text)
	}
	if res.Text != "Invalid arguments. Usage: !ack 12345" {
		t.Errorf("text = %q", res.Text)
	}
	if env.siem.called("AckAlert") {
		t.Error("AckAlert ran despite missing argument")
	}
}

func TestDispatch_ArgumentValidatorEnforced(t *testing.T) {
	env := newTestEnv(t)
	createChatUser(t, env, domain.RoleAdmin)

	res := env.dispatcher.Dispatch(context.Background(), chatInv("!ack bad/id"))
	if res.Kind != domain.ResultInvalid {
		t.Fatalf("kind = %s, text = %q", res.Kind, res.Text)
	}
	if !strings.Contains(res.Text, "contains invalid characters") {
		t.Errorf("text = %q", res.Text)
	}
	if !strings.Contains(res.Text, "Usage: !ack 12345") {
		t.Errorf("text = %q", res.Text)
	}
}

func TestDispatch_AckHappyPath(t *testing.T) {
	env := newTestEnv(t)
	createChatUser(t, env, domain.RoleAdmin)

	var gotID string
	env.siem.ackFn = func(ctx context.Context, eventID string) (int, error) {
		gotID = eventID
		return 3, nil
	}

	res := env.dispatcher.Dispatch(context.Background(), chatInv("!ack 12345"))
	if res.Kind != domain.ResultOK {
		t.Fatalf("kind = %s, text = %q", res.Kind, res.Text)
	}
	if res.Text != "Successfully acknowledged alert with ID: 12345" {
		t.Errorf("text = %q", res.Text)
	}
	if gotID != "12345" {
		t.Errorf("acked id = %q", gotID)
	}
}

func TestDispatch_HandlerErrorBecomesResult(t *testing.T) {
	env := newTestEnv(t)
	createChatUser(t, env, domain.RoleAdmin)

	env.siem.ackFn = func(ctx context.Context, eventID string) (int, error) {
		return 0, errors.New("manager timeout")
	}

	res := env.dispatcher.Dispatch(context.Background(), chatInv("!ack 12345"))
	if res.Kind != domain.ResultError {
		t.Fatalf("kind = %s", res.Kind)
	}
	if res.Text != "Error executing command: manager timeout" {
		t.Errorf("text = %q", res.Text)
	}
}

func TestDispatch_HandlerPanicContained(t *testing.T) {
	env := newTestEnv(t)
	createChatUser(t, env, domain.RoleAdmin)

	env.siem.ackFn = func(ctx context.Context, eventID string) (int, error) {
		panic("boom")
	}

	res := env.dispatcher.Dispatch(context.Background(), chatInv("!ack 12345"))
	if res.Kind != domain.ResultError {
		t.Fatalf("kind = %s", res.Kind)
	}
	if res.Text != "Error executing command: internal error in ack" {
		t.Errorf("text = %q", res.Text)
	}
}

func TestDispatch_EmitsExecutedEvent(t *testing.T) {
	env := newTestEnv(t)

	var executed []bus.Event
	env.events.On(bus.EventCommandExecuted, func(e bus.Event) {
		executed = append(executed, e)
	})

	env.dispatcher.Dispatch(context.Background(), chatInv("!help"))

	if len(executed) != 1 {
		t.Fatalf("executed events = %d, want 1", len(executed))
	}
	p := executed[0].Payload
	if p["command"] != "help" || p["platform"] != "discord" || p["outcome"] != "ok" {
		t.Errorf("payload = %v", p)
	}
}

// TestDispatch_RegistrationLifecycle walks the full path from stranger
// to admin: denied, register, re-register, help marks, promotion,
// admin command.
func TestDispatch_RegistrationLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.siem.queryFn = func(ctx context.Context, opts so.QueryOptions) (*so.EventsResponse, error) {
		return &so.EventsResponse{
			Events: []so.Event{{
				ID: "evt-1",
				Payload: map[string]any{
					"rule.name":            "ET MALWARE Known Bad",
					"rule.uuid":            "2100498",
					"event.severity_label": "high",
					"log.id.uid":           "CAbc123",
					"source.ip":            "10.0.0.5",
					"destination.ip":       "203.0.113.9",
				},
			}},
			TotalEvents: 1,
		}, nil
	}

	res := env.dispatcher.Dispatch(ctx, chatInv("!alerts"))
	if res.Kind != domain.ResultDenied || !strings.Contains(res.Text, "Your role: none") {
		t.Fatalf("pre-registration alerts: kind = %s, text = %q", res.Kind, res.Text)
	}

	res = env.dispatcher.Dispatch(ctx, chatInv("!register"))
	if res.Text != "Registration successful! You now have access to public commands." {
		t.Fatalf("register: %q", res.Text)
	}

	res = env.dispatcher.Dispatch(ctx, chatInv("!register"))
	if res.Text != "You are already registered!" {
		t.Fatalf("second register: %q", res.Text)
	}

	res = env.dispatcher.Dispatch(ctx, chatInv("!help"))
	if res.Kind != domain.ResultOK {
		t.Fatalf("help: kind = %s", res.Kind)
	}
	if !strings.Contains(res.Text, "✅ !help") || !strings.Contains(res.Text, "✅ !register") {
		t.Errorf("help lacks public marks: %q", res.Text)
	}
	if !strings.Contains(res.Text, "❌ !alerts") {
		t.Errorf("help lacks denied mark for alerts: %q", res.Text)
	}
	if strings.Contains(res.Text, "Register with !register") {
		t.Errorf("registered user still sees registration nudge: %q", res.Text)
	}

	res = env.dispatcher.Dispatch(ctx, chatInv("!alerts"))
	if res.Kind != domain.ResultDenied || !strings.Contains(res.Text, "Your role: user") {
		t.Fatalf("user-role alerts: kind = %s, text = %q", res.Kind, res.Text)
	}

	u, err := env.store.GetChatUser(ctx, domain.PlatformDiscord, "100200300")
	if err != nil {
		t.Fatalf("GetChatUser: %v", err)
	}
	u.Role = domain.RoleAdmin
	if _, err := env.store.UpdateChatUser(ctx, *u); err != nil {
		t.Fatalf("UpdateChatUser: %v", err)
	}

	res = env.dispatcher.Dispatch(ctx, chatInv("!alerts"))
	if res.Kind != domain.ResultOK {
		t.Fatalf("admin alerts: kind = %s, text = %q", res.Kind, res.Text)
	}
	if !strings.Contains(res.Text, "Here are the newest 5 alerts:") {
		t.Errorf("alerts text = %q", res.Text)
	}
	if !res.Code {
		t.Error("alerts reply not marked as code")
	}
}
