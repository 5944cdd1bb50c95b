package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/security-onion-solutions/shallot/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.Store using SQLite. It is the default
// backend; PostgresStore covers deployments with a DATABASE_URL.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger}

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

// DB exposes the underlying handle for the doctor command's checks.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// --- settings ---

func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (*domain.Setting, error) {
	var st domain.Setting
	err := s.db.QueryRowContext(ctx,
		`SELECT key, value, description, created_at, updated_at FROM settings WHERE key = ?`, key,
	).Scan(&st.Key, &st.Value, &st.Description, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("setting %q: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *SQLiteStore) ListSettings(ctx context.Context) ([]domain.Setting, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, description, created_at, updated_at FROM settings ORDER BY key`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settings []domain.Setting
	for rows.Next() {
		var st domain.Setting
		if err := rows.Scan(&st.Key, &st.Value, &st.Description, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, err
		}
		settings = append(settings, st)
	}
	return settings, rows.Err()
}

func (s *SQLiteStore) PutSetting(ctx context.Context, st domain.Setting) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, description=excluded.description, updated_at=excluded.updated_at`,
		st.Key, st.Value, st.Description, now, now,
	)
	return err
}

// --- chat users ---

func (s *SQLiteStore) GetChatUser(ctx context.Context, platform domain.Platform, platformID string) (*domain.ChatUser, error) {
	return s.scanChatUser(s.db.QueryRowContext(ctx,
		`SELECT id, platform, platform_id, username, display_name, role, created_at, updated_at
		 FROM chat_users WHERE platform = ? AND platform_id = ?`, string(platform), platformID,
	))
}

func (s *SQLiteStore) GetChatUserByID(ctx context.Context, id int64) (*domain.ChatUser, error) {
	return s.scanChatUser(s.db.QueryRowContext(ctx,
		`SELECT id, platform, platform_id, username, display_name, role, created_at, updated_at
		 FROM chat_users WHERE id = ?`, id,
	))
}

func (s *SQLiteStore) scanChatUser(row *sql.Row) (*domain.ChatUser, error) {
	var u domain.ChatUser
	var platform string
	err := row.Scan(&u.ID, &platform, &u.PlatformID, &u.Username, &u.DisplayName, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chat user: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	u.Platform = domain.Platform(platform)
	return &u, nil
}

func (s *SQLiteStore) ListChatUsers(ctx context.Context) ([]domain.ChatUser, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, platform, platform_id, username, display_name, role, created_at, updated_at
		 FROM chat_users ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.ChatUser
	for rows.Next() {
		var u domain.ChatUser
		var platform string
		if err := rows.Scan(&u.ID, &platform, &u.PlatformID, &u.Username, &u.DisplayName, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		u.Platform = domain.Platform(platform)
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLiteStore) CreateChatUser(ctx context.Context, u domain.ChatUser) (*domain.ChatUser, error) {
	now := time.Now()
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_users (platform, platform_id, username, display_name, role, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(u.Platform), u.PlatformID, u.Username, u.DisplayName, string(u.Role), now, now,
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	u.ID = id
	u.CreatedAt = now
	u.UpdatedAt = now
	return &u, nil
}

func (s *SQLiteStore) UpdateChatUser(ctx context.Context, u domain.ChatUser) (*domain.ChatUser, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_users SET username=?, display_name=?, role=?, updated_at=? WHERE id=?`,
		u.Username, u.DisplayName, string(u.Role), now, u.ID,
	)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("chat user %d: %w", u.ID, domain.ErrNotFound)
	}
	u.UpdatedAt = now
	return &u, nil
}

func (s *SQLiteStore) DeleteChatUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_users WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("chat user %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// --- web users ---

func (s *SQLiteStore) CountWebUsers(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM web_users`).Scan(&count)
	return count, err
}

func (s *SQLiteStore) GetWebUser(ctx context.Context, username string) (*domain.WebUser, error) {
	var u domain.WebUser
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, hashed_password, is_active, is_superuser, created_at, updated_at
		 FROM web_users WHERE username = ?`, username,
	).Scan(&u.ID, &u.Username, &u.HashedPassword, &u.IsActive, &u.IsSuperuser, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("web user %q: %w", username, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLiteStore) CreateWebUser(ctx context.Context, u domain.WebUser) (*domain.WebUser, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO web_users (username, hashed_password, is_active, is_superuser, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.Username, u.HashedPassword, u.IsActive, u.IsSuperuser, now, now,
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	u.ID = id
	u.CreatedAt = now
	u.UpdatedAt = now
	return &u, nil
}

// --- audit log ---

func (s *SQLiteStore) AppendAudit(ctx context.Context, e domain.AuditEntry) error {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, actor, platform, action, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Actor, string(e.Platform), e.Action, e.Detail, e.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) ListAudit(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, actor, platform, action, detail, created_at
		 FROM audit_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var platform string
		if err := rows.Scan(&e.ID, &e.Actor, &platform, &e.Action, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Platform = domain.Platform(platform)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- attachments ---

func (s *SQLiteStore) SaveAttachment(ctx context.Context, a domain.Attachment) (*domain.Attachment, error) {
	if a.ID == "" {
		a.ID = AttachmentID(a.Data)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.Size = int64(len(a.Data))
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO attachments (id, name, content_type, size, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.ContentType, a.Size, a.Data, a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *SQLiteStore) GetAttachment(ctx context.Context, id string) (*domain.Attachment, error) {
	var a domain.Attachment
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, content_type, size, data, created_at FROM attachments WHERE id = ?`, id,
	).Scan(&a.ID, &a.Name, &a.ContentType, &a.Size, &a.Data, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("attachment %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AttachmentID derives a content-addressed ID: the first 16 hex chars of
// the SHA-256 digest.
func AttachmentID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}
