package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// PermanentFailure is the durable record a retry-queue entry becomes once
// its retry budget is exhausted. Operators work these; the end user only
// ever saw a generic apology.
type PermanentFailure struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DLQID         string         `gorm:"column:dlq_id;not null;uniqueIndex" json:"dlq_id"`
	TenantID      string         `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	UserID        string         `gorm:"column:user_id" json:"user_id,omitempty"`
	MessageID     string         `gorm:"column:message_id;not null;index" json:"message_id"`
	Channel       string         `gorm:"column:channel" json:"channel,omitempty"`
	ErrorKind     string         `gorm:"column:error_kind;not null" json:"error_kind"`
	ErrorMessage  string         `gorm:"column:error_message" json:"error_message,omitempty"`
	RetryCount    int            `gorm:"column:retry_count;not null" json:"retry_count"`
	Payload       datatypes.JSON `gorm:"column:payload" json:"payload,omitempty"`
	CorrelationID string         `gorm:"column:correlation_id;index" json:"correlation_id,omitempty"`
	FirstFailedAt time.Time      `gorm:"column:first_failed_at" json:"first_failed_at"`
	CreatedAt     time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (PermanentFailure) TableName() string { return "permanent_failure" }
