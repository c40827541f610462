package services

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/concierge-backend/internal/pkg/logger"
	"github.com/yungbote/concierge-backend/internal/repos"
	"github.com/yungbote/concierge-backend/internal/types"
)

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

const (
	AuditEventTenantIsolation  = "tenant_isolation_violation"
	AuditEventChannelSpoofing  = "channel_spoofing_detected"
	AuditEventIdentityUnknown  = "identity_unresolved"
	AuditEventPermanentFailure = "dlq_permanent_failure"
	AuditEventDLQDropped       = "dlq_entry_expired"
	AuditEventEscalation       = "conversation_escalated"
)

// AuditService appends durable audit records. Failures to write audit rows
// are logged loudly but never mask the error being audited.
type AuditService interface {
	Append(ctx context.Context, eventType, severity, tenantID, userID, resource string, details map[string]any)
	ListByTenant(ctx context.Context, tenantID string, since, until time.Time, limit int) ([]*types.AuditLogEntry, error)
}

type auditService struct {
	log  *logger.Logger
	repo repos.AuditRepo
}

func NewAuditService(log *logger.Logger, repo repos.AuditRepo) AuditService {
	return &auditService{
		log:  log.With("service", "AuditService"),
		repo: repo,
	}
}

func (s *auditService) Append(ctx context.Context, eventType, severity, tenantID, userID, resource string, details map[string]any) {
	var raw datatypes.JSON
	if len(details) > 0 {
		if b, err := json.Marshal(details); err == nil {
			raw = datatypes.JSON(b)
		}
	}
	entry := &types.AuditLogEntry{
		EventType: eventType,
		Severity:  severity,
		TenantID:  tenantID,
		UserID:    userID,
		Resource:  resource,
		Details:   raw,
	}
	if _, err := s.repo.Append(ctx, nil, entry); err != nil {
		s.log.Error("Audit append failed",
			"event_type", eventType,
			"severity", severity,
			"tenant_id", tenantID,
			"error", err,
		)
	}
}

func (s *auditService) ListByTenant(ctx context.Context, tenantID string, since, until time.Time, limit int) ([]*types.AuditLogEntry, error) {
	return s.repo.ListByTenant(ctx, nil, tenantID, since, until, limit)
}
