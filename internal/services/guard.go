package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/concierge-backend/internal/domain"
	pkgerrors "github.com/yungbote/concierge-backend/internal/pkg/errors"
	"github.com/yungbote/concierge-backend/internal/pkg/logger"
	"github.com/yungbote/concierge-backend/internal/repos"
)

// TenantGuard verifies every inbound message before it can reach a handler.
// Verification failures are hard failures: there is no soft-fail path, and
// every rejection leaves a critical audit record carrying both the claimed
// and the actual values.
type TenantGuard interface {
	// ResolveAndVerify resolves the tenant owning identity independently of
	// anything the request claims, then checks the claims against reality.
	ResolveAndVerify(ctx context.Context, identity, claimedTenantID string, claimedChannel, actualChannel domain.Channel) (string, error)
	// Normalize applies metadata whitelisting to a raw message in the same
	// pass, before any business logic sees it.
	Normalize(msg domain.InboundMessage) domain.InboundMessage
}

type tenantGuard struct {
	log       *logger.Logger
	tenants   repos.TenantRepo
	audit     AuditService
	whitelist []string
}

func NewTenantGuard(log *logger.Logger, tenants repos.TenantRepo, audit AuditService, metadataWhitelist []string) TenantGuard {
	return &tenantGuard{
		log:       log.With("service", "TenantGuard"),
		tenants:   tenants,
		audit:     audit,
		whitelist: metadataWhitelist,
	}
}

func (g *tenantGuard) ResolveAndVerify(ctx context.Context, identity, claimedTenantID string, claimedChannel, actualChannel domain.Channel) (string, error) {
	if claimedChannel != actualChannel {
		err := &pkgerrors.ChannelSpoofingError{
			ClaimedChannel: claimedChannel.String(),
			ActualChannel:  actualChannel.String(),
		}
		g.audit.Append(ctx, AuditEventChannelSpoofing, SeverityCritical, claimedTenantID, identity, actualChannel.String(), map[string]any{
			"claimed_channel": claimedChannel.String(),
			"actual_channel":  actualChannel.String(),
			"identity":        identity,
		})
		g.log.Warn("Channel spoofing blocked",
			"identity", identity,
			"claimed_channel", claimedChannel,
			"actual_channel", actualChannel,
		)
		return "", err
	}

	tenant, err := g.tenants.ResolveIdentity(ctx, nil, actualChannel.String(), identity)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		g.audit.Append(ctx, AuditEventIdentityUnknown, SeverityCritical, claimedTenantID, identity, actualChannel.String(), map[string]any{
			"claimed_tenant_id": claimedTenantID,
			"identity":          identity,
			"channel":           actualChannel.String(),
		})
		return "", fmt.Errorf("resolve identity %q: %w", identity, err)
	}
	if err != nil {
		return "", fmt.Errorf("resolve identity: %w", err)
	}

	resolvedID := tenant.ID.String()
	if claimedTenantID != "" && claimedTenantID != resolvedID && claimedTenantID != tenant.Slug {
		isoErr := &pkgerrors.TenantIsolationError{
			Identity:        identity,
			ClaimedTenantID: claimedTenantID,
			ActualTenantID:  resolvedID,
		}
		g.audit.Append(ctx, AuditEventTenantIsolation, SeverityCritical, resolvedID, identity, actualChannel.String(), map[string]any{
			"claimed_tenant_id": claimedTenantID,
			"actual_tenant_id":  resolvedID,
			"identity":          identity,
		})
		g.log.Warn("Tenant isolation violation blocked",
			"identity", identity,
			"claimed_tenant_id", claimedTenantID,
			"actual_tenant_id", resolvedID,
		)
		return "", isoErr
	}

	return resolvedID, nil
}

func (g *tenantGuard) Normalize(msg domain.InboundMessage) domain.InboundMessage {
	msg.Metadata = domain.FilterMetadata(msg.Metadata, g.whitelist)
	return msg
}
