package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Tenant struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Slug     string    `gorm:"column:slug;not null;uniqueIndex" json:"slug"`
	Name     string    `gorm:"column:name;not null" json:"name"`
	Timezone string    `gorm:"column:timezone;not null;default:'UTC'" json:"timezone"`
	// No column default on purpose: gorm omits zero-value fields that carry
	// one, which would silently persist an inactive tenant as active.
	Active    bool           `gorm:"column:active;not null" json:"active"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Tenant) TableName() string { return "tenant" }
