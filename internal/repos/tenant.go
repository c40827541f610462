package repos

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	pkgerrors "github.com/yungbote/concierge-backend/internal/pkg/errors"
	"github.com/yungbote/concierge-backend/internal/pkg/logger"
	"github.com/yungbote/concierge-backend/internal/types"
)

type TenantRepo interface {
	GetBySlug(ctx context.Context, tx *gorm.DB, slug string) (*types.Tenant, error)
	// ResolveIdentity returns the tenant owning a channel identity. This is
	// the only path the isolation guard trusts; claimed tenant values in
	// the request payload are never consulted.
	ResolveIdentity(ctx context.Context, tx *gorm.DB, channel, identity string) (*types.Tenant, error)
	UpsertIdentity(ctx context.Context, tx *gorm.DB, ident *types.TenantIdentity) (*types.TenantIdentity, error)
}

type tenantRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTenantRepo(db *gorm.DB, baseLog *logger.Logger) TenantRepo {
	return &tenantRepo{db: db, log: baseLog.With("repo", "TenantRepo")}
}

func (r *tenantRepo) GetBySlug(ctx context.Context, tx *gorm.DB, slug string) (*types.Tenant, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var t types.Tenant
	err := transaction.WithContext(ctx).
		Where("slug = ? AND active = ?", strings.TrimSpace(slug), true).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tenantRepo) ResolveIdentity(ctx context.Context, tx *gorm.DB, channel, identity string) (*types.Tenant, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var ident types.TenantIdentity
	err := transaction.WithContext(ctx).
		Preload("Tenant").
		Where("channel = ? AND identity = ?", strings.TrimSpace(channel), strings.TrimSpace(identity)).
		First(&ident).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if ident.Tenant == nil || !ident.Tenant.Active {
		return nil, pkgerrors.ErrNotFound
	}
	return ident.Tenant, nil
}

func (r *tenantRepo) UpsertIdentity(ctx context.Context, tx *gorm.DB, ident *types.TenantIdentity) (*types.TenantIdentity, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	// Rebinding an existing (identity, channel) pair moves it to the new
	// tenant instead of tripping the unique index.
	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "identity"}, {Name: "channel"}},
			DoUpdates: clause.Assignments(map[string]any{
				"tenant_id":  ident.TenantID,
				"updated_at": time.Now().UTC(),
			}),
		}).
		Create(ident).Error; err != nil {
		return nil, err
	}
	return ident, nil
}
