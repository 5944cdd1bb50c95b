package domain

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by store lookups that match no row.
var ErrNotFound = errors.New("not found")

// Store handles persistent state: settings documents, chat users, web
// users, the audit log, and stored attachments.
type Store interface {
	GetSetting(ctx context.Context, key string) (*Setting, error)
	ListSettings(ctx context.Context) ([]Setting, error)
	PutSetting(ctx context.Context, s Setting) error

	GetChatUser(ctx context.Context, platform Platform, platformID string) (*ChatUser, error)
	GetChatUserByID(ctx context.Context, id int64) (*ChatUser, error)
	ListChatUsers(ctx context.Context) ([]ChatUser, error)
	CreateChatUser(ctx context.Context, u ChatUser) (*ChatUser, error)
	UpdateChatUser(ctx context.Context, u ChatUser) (*ChatUser, error)
	DeleteChatUser(ctx context.Context, id int64) error

	CountWebUsers(ctx context.Context) (int, error)
	GetWebUser(ctx context.Context, username string) (*WebUser, error)
	CreateWebUser(ctx context.Context, u WebUser) (*WebUser, error)

	AppendAudit(ctx context.Context, e AuditEntry) error
	ListAudit(ctx context.Context, limit int) ([]AuditEntry, error)

	SaveAttachment(ctx context.Context, a Attachment) (*Attachment, error)
	GetAttachment(ctx context.Context, id string) (*Attachment, error)

	Ping(ctx context.Context) error
	Close() error
}

// Attachment is a stored file blob, content-addressed by a digest-derived
// ID. Used for oversized command output (hunt results).
type Attachment struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Data        []byte    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}
