package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TenantIdentity binds one channel identity (a phone number, an email
// address, a webchat visitor id) to the tenant that owns it. Resolution for
// the isolation guard always goes through this table, never through values
// the request claims.
type TenantIdentity struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TenantID uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Tenant   *Tenant   `gorm:"constraint:OnDelete:CASCADE;foreignKey:TenantID;references:ID" json:"tenant,omitempty"`
	Channel  string    `gorm:"column:channel;not null;index:idx_identity_channel,unique,priority:2" json:"channel"`
	Identity string    `gorm:"column:identity;not null;index:idx_identity_channel,unique,priority:1" json:"identity"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (TenantIdentity) TableName() string { return "tenant_identity" }
