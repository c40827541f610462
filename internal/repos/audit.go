package repos

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/concierge-backend/internal/pkg/logger"
	"github.com/yungbote/concierge-backend/internal/types"
)

type AuditRepo interface {
	// Append inserts one audit row. There is no update or delete; the
	// table is append-only by contract.
	Append(ctx context.Context, tx *gorm.DB, entry *types.AuditLogEntry) (*types.AuditLogEntry, error)
	ListByTenant(ctx context.Context, tx *gorm.DB, tenantID string, since, until time.Time, limit int) ([]*types.AuditLogEntry, error)
}

type auditRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAuditRepo(db *gorm.DB, baseLog *logger.Logger) AuditRepo {
	return &auditRepo{db: db, log: baseLog.With("repo", "AuditRepo")}
}

func (r *auditRepo) Append(ctx context.Context, tx *gorm.DB, entry *types.AuditLogEntry) (*types.AuditLogEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *auditRepo) ListByTenant(ctx context.Context, tx *gorm.DB, tenantID string, since, until time.Time, limit int) ([]*types.AuditLogEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	q := transaction.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Limit(limit)
	if !since.IsZero() {
		q = q.Where("created_at >= ?", since)
	}
	if !until.IsZero() {
		q = q.Where("created_at <= ?", until)
	}

	var results []*types.AuditLogEntry
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
