package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/security-onion-solutions/shallot/internal/domain"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "shallot.db")
	s, err := NewSQLiteStore(dbPath, testLogger())
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_SettingsRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.GetSetting(ctx, "DISCORD"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing setting, got %v", err)
	}

	err := s.PutSetting(ctx, domain.Setting{
		Key:         "DISCORD",
		Value:       "sealed-blob",
		Description: "Discord bot settings",
	})
	if err != nil {
		t.Fatalf("PutSetting failed: %v", err)
	}

	got, err := s.GetSetting(ctx, "DISCORD")
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if got.Value != "sealed-blob" {
		t.Errorf("expected value 'sealed-blob', got %q", got.Value)
	}
	if got.Description != "Discord bot settings" {
		t.Errorf("unexpected description %q", got.Description)
	}

	// Upsert overwrites the value
	if err := s.PutSetting(ctx, domain.Setting{Key: "DISCORD", Value: "new-blob"}); err != nil {
		t.Fatal(err)
	}
	got, err = s.GetSetting(ctx, "DISCORD")
	if err != nil {
		t.Fatal(err)
	}
	if got.Value != "new-blob" {
		t.Errorf("expected upsert to overwrite, got %q", got.Value)
	}
}

func TestSQLiteStore_ListSettings(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, key := range []string{"SLACK", "DISCORD", "system"} {
		if err := s.PutSetting(ctx, domain.Setting{Key: key, Value: "{}"}); err != nil {
			t.Fatal(err)
		}
	}

	settings, err := s.ListSettings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(settings) != 3 {
		t.Fatalf("expected 3 settings, got %d", len(settings))
	}
	// Ordered by key
	if settings[0].Key != "DISCORD" || settings[1].Key != "SLACK" {
		t.Errorf("expected key order DISCORD, SLACK, got %s, %s", settings[0].Key, settings[1].Key)
	}
}

func TestSQLiteStore_ChatUserLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	created, err := s.CreateChatUser(ctx, domain.ChatUser{
		Platform:    domain.PlatformDiscord,
		PlatformID:  "99887766",
		Username:    "analyst",
		DisplayName: "Analyst One",
	})
	if err != nil {
		t.Fatalf("CreateChatUser failed: %v", err)
	}
	if created.ID == 0 {
		t.Error("expected a generated ID")
	}
	if created.Role != domain.RoleUser {
		t.Errorf("expected default role user, got %s", created.Role)
	}

	got, err := s.GetChatUser(ctx, domain.PlatformDiscord, "99887766")
	if err != nil {
		t.Fatalf("GetChatUser failed: %v", err)
	}
	if got.ID != created.ID || got.Username != "analyst" {
		t.Errorf("lookup mismatch: %+v", got)
	}

	got.Role = domain.RoleAdmin
	updated, err := s.UpdateChatUser(ctx, *got)
	if err != nil {
		t.Fatalf("UpdateChatUser failed: %v", err)
	}
	if updated.Role != domain.RoleAdmin {
		t.Errorf("expected role admin after update, got %s", updated.Role)
	}

	byID, err := s.GetChatUserByID(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if byID.Role != domain.RoleAdmin {
		t.Errorf("expected persisted role admin, got %s", byID.Role)
	}

	if err := s.DeleteChatUser(ctx, created.ID); err != nil {
		t.Fatalf("DeleteChatUser failed: %v", err)
	}
	if _, err := s.GetChatUserByID(ctx, created.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteChatUser(ctx, created.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestSQLiteStore_ChatUserMissing(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, err := s.GetChatUser(ctx, domain.PlatformSlack, "U0000000")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	_, err = s.UpdateChatUser(ctx, domain.ChatUser{ID: 42, Username: "ghost", Role: domain.RoleBasic})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound updating missing user, got %v", err)
	}
}

func TestSQLiteStore_WebUsers(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	count, err := s.CountWebUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("expected empty web_users, got %d", count)
	}

	created, err := s.CreateWebUser(ctx, domain.WebUser{
		Username:       "admin",
		HashedPassword: "$2a$10$fakehash",
		IsActive:       true,
		IsSuperuser:    true,
	})
	if err != nil {
		t.Fatalf("CreateWebUser failed: %v", err)
	}
	if created.ID == 0 {
		t.Error("expected a generated ID")
	}

	count, _ = s.CountWebUsers(ctx)
	if count != 1 {
		t.Errorf("expected 1 web user, got %d", count)
	}

	got, err := s.GetWebUser(ctx, "admin")
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsSuperuser || !got.IsActive {
		t.Errorf("flags not persisted: %+v", got)
	}

	if _, err := s.GetWebUser(ctx, "nobody"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// Duplicate username rejected
	if _, err := s.CreateWebUser(ctx, domain.WebUser{Username: "admin", HashedPassword: "x"}); err == nil {
		t.Error("expected unique constraint violation on username")
	}
}

func TestSQLiteStore_AuditLog(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := s.AppendAudit(ctx, domain.AuditEntry{
			Actor:    "discord:99887766",
			Platform: domain.PlatformDiscord,
			Action:   "command_denied",
			Detail:   "alerts",
		})
		if err != nil {
			t.Fatalf("AppendAudit failed: %v", err)
		}
	}

	entries, err := s.ListAudit(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected limit of 2 entries, got %d", len(entries))
	}
	if entries[0].ID == "" {
		t.Error("expected a generated ULID")
	}
	// ULIDs sort lexicographically by time, newest first
	if entries[0].ID < entries[1].ID {
		t.Error("expected newest-first ordering")
	}
}

func TestSQLiteStore_Attachments(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	data := []byte("hunt results payload")

	saved, err := s.SaveAttachment(ctx, domain.Attachment{
		Name:        "hunt_results_abc.txt",
		ContentType: "text/plain",
		Data:        data,
	})
	if err != nil {
		t.Fatalf("SaveAttachment failed: %v", err)
	}
	if len(saved.ID) != 16 {
		t.Errorf("expected 16-char content hash ID, got %q", saved.ID)
	}
	if saved.Size != int64(len(data)) {
		t.Errorf("expected size %d, got %d", len(data), saved.Size)
	}

	got, err := s.GetAttachment(ctx, saved.ID)
	if err != nil {
		t.Fatalf("GetAttachment failed: %v", err)
	}
	if string(got.Data) != string(data) {
		t.Error("attachment data mismatch")
	}

	// Same content yields the same ID
	again, err := s.SaveAttachment(ctx, domain.Attachment{Name: "other.txt", Data: data})
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != saved.ID {
		t.Errorf("expected content-addressed ID to be stable, got %s vs %s", again.ID, saved.ID)
	}

	if _, err := s.GetAttachment(ctx, "ffffffffffffffff"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAttachmentID_Deterministic(t *testing.T) {
	a := AttachmentID([]byte("same"))
	b := AttachmentID([]byte("same"))
	c := AttachmentID([]byte("different"))

	if a != b {
		t.Error("expected identical IDs for identical content")
	}
	if a == c {
		t.Error("expected different IDs for different content")
	}
	if len(a) != 16 {
		t.Errorf("expected 16 hex chars, got %d", len(a))
	}
}
