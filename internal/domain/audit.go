package domain

import "time"

// AuditEntry records one privileged action: a role update, a settings
// write, a detection toggle, a node reboot, or a command denial.
type AuditEntry struct {
	ID        string    `json:"id"` // ULID, lexically ordered by time
	Actor     string    `json:"actor"`
	Platform  Platform  `json:"platform,omitempty"`
	Action    string    `json:"action"` // command_denied | role_updated | setting_updated | detection_toggled | node_restarted | user_created | user_deleted
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
