package domain

import "time"

// ChatUser is a platform-scoped identity created by !register. The
// (platform, platform_id) pair is unique; the role is only changed through
// the administrative web API.
type ChatUser struct {
	ID          int64     `json:"id"`
	Platform    Platform  `json:"platform"`
	PlatformID  string    `json:"platform_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WebUser is an administrative account for the web UI. Web users are
// always superusers in practice; the flag is kept for the API shape.
type WebUser struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	HashedPassword string    `json:"-"`
	IsActive       bool      `json:"is_active"`
	IsSuperuser    bool      `json:"is_superuser"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
