package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AuditLogEntry is append-only. The runtime never updates or deletes rows;
// retention is handled outside the application.
type AuditLogEntry struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	EventType string         `gorm:"column:event_type;not null;index" json:"event_type"`
	Severity  string         `gorm:"column:severity;not null;index" json:"severity"` // info|warning|critical
	TenantID  string         `gorm:"column:tenant_id;not null;index:idx_audit_tenant_time,priority:1" json:"tenant_id"`
	UserID    string         `gorm:"column:user_id;index" json:"user_id,omitempty"`
	Resource  string         `gorm:"column:resource" json:"resource,omitempty"`
	Details   datatypes.JSON `gorm:"column:details" json:"details,omitempty"`
	CreatedAt time.Time      `gorm:"not null;default:now();index:idx_audit_tenant_time,priority:2" json:"created_at"`
}

func (AuditLogEntry) TableName() string { return "audit_log_entry" }
