package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/concierge-backend/internal/domain"
	"github.com/yungbote/concierge-backend/internal/jobs"
	"github.com/yungbote/concierge-backend/internal/pkg/logger"
	"github.com/yungbote/concierge-backend/internal/repos"
	"github.com/yungbote/concierge-backend/internal/services"
	"github.com/yungbote/concierge-backend/internal/types"
)

// OpsHandler exposes the operator surface: retry-queue inspection and
// drain, audit queries, permanent failures, and breaker state.
type OpsHandler struct {
	log      *logger.Logger
	queue    services.RetryQueue
	worker   *jobs.DLQWorker
	gateway  services.PMSGateway
	audit    repos.AuditRepo
	failures repos.PermanentFailureRepo
}

func NewOpsHandler(log *logger.Logger, queue services.RetryQueue, worker *jobs.DLQWorker, gateway services.PMSGateway, audit repos.AuditRepo, failures repos.PermanentFailureRepo) *OpsHandler {
	return &OpsHandler{
		log:      log.With("Handler", "OpsHandler"),
		queue:    queue,
		worker:   worker,
		gateway:  gateway,
		audit:    audit,
		failures: failures,
	}
}

// GET /api/ops/dlq
// Lists parked entries, including ones not yet due; the far-future horizon
// turns the due-time query into a full listing.
func (h *OpsHandler) ListDLQ(c *gin.Context) {
	horizon := time.Now().UTC().AddDate(1, 0, 0)
	entries, err := h.queue.DequeueReady(c.Request.Context(), horizon)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "dlq_list_failed", err)
		return
	}
	RespondOK(c, gin.H{"entries": entries, "count": len(entries)})
}

// POST /api/ops/dlq/drain
// Forces one replay pass over all currently due entries.
func (h *OpsHandler) DrainDLQ(c *gin.Context) {
	h.worker.Tick(c.Request.Context())
	RespondOK(c, gin.H{"status": "drained"})
}

// GET /api/ops/audit?tenant_id=...&since=...&until=...&limit=...
func (h *OpsHandler) ListAudit(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		RespondErrorMsg(c, http.StatusBadRequest, "missing_tenant_id", "tenant_id query parameter is required")
		return
	}
	since, until, err := parseTimeRange(c)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_time_range", err)
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, aerr := strconv.Atoi(raw)
		if aerr != nil || n < 0 {
			RespondErrorMsg(c, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := h.audit.ListByTenant(c.Request.Context(), nil, tenantID, since, until, limit)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "audit_query_failed", err)
		return
	}
	RespondOK(c, gin.H{"entries": entries, "count": len(entries)})
}

// GET /api/ops/failures?tenant_id=...
func (h *OpsHandler) ListPermanentFailures(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		RespondErrorMsg(c, http.StatusBadRequest, "missing_tenant_id", "tenant_id query parameter is required")
		return
	}
	rows, err := h.failures.ListByTenant(c.Request.Context(), nil, tenantID, 0)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "failure_query_failed", err)
		return
	}
	RespondOK(c, gin.H{"failures": rows, "count": len(rows)})
}

// GET /api/ops/tenants/:tenant_id/health
// One-call operator overview: breaker state, recent audit records and
// permanent failures for a tenant, fetched concurrently.
func (h *OpsHandler) TenantHealth(c *gin.Context) {
	tenantID := c.Param("tenant_id")

	var (
		snapshot *domain.BreakerSnapshot
		audit    []*types.AuditLogEntry
		failures []*types.PermanentFailure
	)
	g, gctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() error {
		var err error
		snapshot, err = h.gateway.BreakerSnapshot(gctx, tenantID)
		return err
	})
	g.Go(func() error {
		var err error
		audit, err = h.audit.ListByTenant(gctx, nil, tenantID, time.Time{}, time.Time{}, 20)
		return err
	})
	g.Go(func() error {
		var err error
		failures, err = h.failures.ListByTenant(gctx, nil, tenantID, 20)
		return err
	})
	if err := g.Wait(); err != nil {
		RespondError(c, http.StatusInternalServerError, "health_query_failed", err)
		return
	}

	RespondOK(c, gin.H{
		"breaker":            snapshot,
		"recent_audit":       audit,
		"permanent_failures": failures,
	})
}

// GET /api/ops/breaker/:tenant_id
func (h *OpsHandler) BreakerState(c *gin.Context) {
	snapshot, err := h.gateway.BreakerSnapshot(c.Request.Context(), c.Param("tenant_id"))
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "breaker_query_failed", err)
		return
	}
	RespondOK(c, gin.H{"breaker": snapshot})
}

func parseTimeRange(c *gin.Context) (time.Time, time.Time, error) {
	var since, until time.Time
	var err error
	if raw := c.Query("since"); raw != "" {
		if since, err = time.Parse(time.RFC3339, raw); err != nil {
			return since, until, err
		}
	}
	if raw := c.Query("until"); raw != "" {
		if until, err = time.Parse(time.RFC3339, raw); err != nil {
			return since, until, err
		}
	}
	return since, until, nil
}
