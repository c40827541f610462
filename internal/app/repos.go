package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/concierge-backend/internal/pkg/logger"
	"github.com/yungbote/concierge-backend/internal/repos"
)

type Repos struct {
	Tenant           repos.TenantRepo
	Audit            repos.AuditRepo
	PermanentFailure repos.PermanentFailureRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Tenant:           repos.NewTenantRepo(db, log),
		Audit:            repos.NewAuditRepo(db, log),
		PermanentFailure: repos.NewPermanentFailureRepo(db, log),
	}
}
