package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/security-onion-solutions/shallot/internal/domain"
)

// PostgresStore implements domain.Store on a pgx connection pool. It is
// selected when database.url is set; SQLite remains the default.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresStore(ctx context.Context, databaseURL string, logger *slog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("cannot create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("cannot reach database: %w", err)
	}

	store := &PostgresStore{pool: pool, logger: logger}

	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("schema setup failed: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS chat_users (
			id BIGSERIAL PRIMARY KEY,
			platform TEXT NOT NULL,
			platform_id TEXT NOT NULL,
			username TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'user',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (platform, platform_id)
		)`,
		`CREATE TABLE IF NOT EXISTS web_users (
			id BIGSERIAL PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			hashed_password TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			is_superuser BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			actor TEXT NOT NULL,
			platform TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_time ON audit_log (created_at)`,
		`CREATE TABLE IF NOT EXISTS attachments (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			content_type TEXT NOT NULL DEFAULT 'text/plain',
			size BIGINT NOT NULL DEFAULT 0,
			data BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attachments_time ON attachments (created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// --- settings ---

func (s *PostgresStore) GetSetting(ctx context.Context, key string) (*domain.Setting, error) {
	var st domain.Setting
	err := s.pool.QueryRow(ctx,
		`SELECT key, value, description, created_at, updated_at FROM settings WHERE key = $1`, key,
	).Scan(&st.Key, &st.Value, &st.Description, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("setting %q: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *PostgresStore) ListSettings(ctx context.Context) ([]domain.Setting, error) {
	rows, err := s.pool.Query(ctx,
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

func (s *PostgresStore) PutSetting(ctx context.Context, st domain.Setting) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO settings (key, value, description, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, description = EXCLUDED.description, updated_at = NOW()`,
		st.Key, st.Value, st.Description,
	)
	return err
}

// --- chat users ---

func (s *PostgresStore) GetChatUser(ctx context.Context, platform domain.Platform, platformID string) (*domain.ChatUser, error) {
	return s.scanChatUser(s.pool.QueryRow(ctx,
		`SELECT id, platform, platform_id, username, display_name, role, created_at, updated_at
		 FROM chat_users WHERE platform = $1 AND platform_id = $2`, string(platform), platformID,
	))
}

func (s *PostgresStore) GetChatUserByID(ctx context.Context, id int64) (*domain.ChatUser, error) {
	return s.scanChatUser(s.pool.QueryRow(ctx,
		`SELECT id, platform, platform_id, username, display_name, role, created_at, updated_at
		 FROM chat_users WHERE id = $1`, id,
	))
}

func (s *PostgresStore) scanChatUser(row pgx.Row) (*domain.ChatUser, error) {
	var u domain.ChatUser
	var platform string
	err := row.Scan(&u.ID, &platform, &u.PlatformID, &u.Username, &u.DisplayName, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("chat user: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	u.Platform = domain.Platform(platform)
	return &u, nil
}

func (s *PostgresStore) ListChatUsers(ctx context.Context) ([]domain.ChatUser, error) {
	rows, err := s.pool.Query(ctx,
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

func (s *PostgresStore) CreateChatUser(ctx context.Context, u domain.ChatUser) (*domain.ChatUser, error) {
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO chat_users (platform, platform_id, username, display_name, role)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		string(u.Platform), u.PlatformID, u.Username, u.DisplayName, string(u.Role),
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) UpdateChatUser(ctx context.Context, u domain.ChatUser) (*domain.ChatUser, error) {
	err := s.pool.QueryRow(ctx,
		`UPDATE chat_users SET username = $1, display_name = $2, role = $3, updated_at = NOW()
		 WHERE id = $4
		 RETURNING updated_at`,
		u.Username, u.DisplayName, string(u.Role), u.ID,
	).Scan(&u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("chat user %d: %w", u.ID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) DeleteChatUser(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chat_users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chat user %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// --- web users ---

func (s *PostgresStore) CountWebUsers(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM web_users`).Scan(&count)
	return count, err
}

func (s *PostgresStore) GetWebUser(ctx context.Context, username string) (*domain.WebUser, error) {
	var u domain.WebUser
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, hashed_password, is_active, is_superuser, created_at, updated_at
		 FROM web_users WHERE username = $1`, username,
	).Scan(&u.ID, &u.Username, &u.HashedPassword, &u.IsActive, &u.IsSuperuser, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("web user %q: %w", username, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) CreateWebUser(ctx context.Context, u domain.WebUser) (*domain.WebUser, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO web_users (username, hashed_password, is_active, is_superuser)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		u.Username, u.HashedPassword, u.IsActive, u.IsSuperuser,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// --- audit log ---

func (s *PostgresStore) AppendAudit(ctx context.Context, e domain.AuditEntry) error {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (id, actor, platform, action, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.Actor, string(e.Platform), e.Action, e.Detail, e.CreatedAt,
	)
	return err
}

func (s *PostgresStore) ListAudit(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, actor, platform, action, detail, created_at
		 FROM audit_log ORDER BY id DESC LIMIT $1`, limit,
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

func (s *PostgresStore) SaveAttachment(ctx context.Context, a domain.Attachment) (*domain.Attachment, error) {
	if a.ID == "" {
		a.ID = AttachmentID(a.Data)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.Size = int64(len(a.Data))
	_, err := s.pool.Exec(ctx,
		`INSERT INTO attachments (id, name, content_type, size, data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, content_type = EXCLUDED.content_type`,
		a.ID, a.Name, a.ContentType, a.Size, a.Data, a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) GetAttachment(ctx context.Context, id string) (*domain.Attachment, error) {
	var a domain.Attachment
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, content_type, size, data, created_at FROM attachments WHERE id = $1`, id,
	).Scan(&a.ID, &a.Name, &a.ContentType, &a.Size, &a.Data, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("attachment %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
