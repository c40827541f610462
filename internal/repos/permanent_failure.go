package repos

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/concierge-backend/internal/pkg/logger"
	"github.com/yungbote/concierge-backend/internal/types"
)

type PermanentFailureRepo interface {
	// Create inserts the record, ignoring duplicates on dlq_id so a
	// concurrent double-conversion still yields exactly one row.
	Create(ctx context.Context, tx *gorm.DB, rec *types.PermanentFailure) (*types.PermanentFailure, error)
	ListByTenant(ctx context.Context, tx *gorm.DB, tenantID string, limit int) ([]*types.PermanentFailure, error)
}

type permanentFailureRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPermanentFailureRepo(db *gorm.DB, baseLog *logger.Logger) PermanentFailureRepo {
	return &permanentFailureRepo{db: db, log: baseLog.With("repo", "PermanentFailureRepo")}
}

func (r *permanentFailureRepo) Create(ctx context.Context, tx *gorm.DB, rec *types.PermanentFailure) (*types.PermanentFailure, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dlq_id"}},
			DoNothing: true,
		}).
		Create(rec).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *permanentFailureRepo) ListByTenant(ctx context.Context, tx *gorm.DB, tenantID string, limit int) ([]*types.PermanentFailure, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var results []*types.PermanentFailure
	if err := transaction.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
