package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/yungbote/concierge-backend/internal/domain"
	pkgerrors "github.com/yungbote/concierge-backend/internal/pkg/errors"
	"github.com/yungbote/concierge-backend/internal/pkg/logger"
	"github.com/yungbote/concierge-backend/internal/store"
)

// CircuitBreaker tracks upstream health per (tenant, upstream) pair. All
// state lives in the shared store so any orchestrator instance observes the
// same circuit; transitions are built from atomic increments and
// conditional sets, never from read-modify-write in process memory.
type CircuitBreaker interface {
	// Allow decides whether a call may proceed. While OPEN it returns a
	// CircuitBreakerOpenError without touching the upstream. When the
	// recovery timeout has elapsed exactly one caller is admitted as the
	// half-open probe; probe=true tells that caller its outcome decides
	// the next state.
	Allow(ctx context.Context, tenantID, upstream string) (probe bool, err error)
	RecordSuccess(ctx context.Context, tenantID, upstream string) error
	RecordFailure(ctx context.Context, tenantID, upstream string) error
	Snapshot(ctx context.Context, tenantID, upstream string) (*domain.BreakerSnapshot, error)
}

type BreakerConfig struct {
	FailureThreshold int64
	RecoveryTimeout  time.Duration
	// FailureWindow is the TTL on the consecutive-failure counter; a quiet
	// period longer than this forgets stale failures.
	FailureWindow time.Duration
	// StateTTL bounds how long an abandoned breaker record can linger.
	StateTTL time.Duration
}

func (c *BreakerConfig) applyDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 30 * time.Second
	}
	if c.FailureWindow <= 0 {
		c.FailureWindow = 10 * time.Minute
	}
	if c.StateTTL <= 0 {
		c.StateTTL = 24 * time.Hour
	}
}

type breakerRecord struct {
	State    domain.BreakerState `json:"state"`
	OpenedAt int64               `json:"opened_at"` // unix millis
}

type circuitBreaker struct {
	log   *logger.Logger
	store store.Store
	cfg   BreakerConfig
	now   func() time.Time
}

func NewCircuitBreaker(log *logger.Logger, st store.Store, cfg BreakerConfig) CircuitBreaker {
	cfg.applyDefaults()
	return &circuitBreaker{
		log:   log.With("service", "CircuitBreaker"),
		store: st,
		cfg:   cfg,
		now:   time.Now,
	}
}

func breakerStateKey(tenantID, upstream string) string {
	return fmt.Sprintf("cb:%s:%s:state", tenantID, upstream)
}

func breakerFailuresKey(tenantID, upstream string) string {
	return fmt.Sprintf("cb:%s:%s:failures", tenantID, upstream)
}

func breakerProbeKey(tenantID, upstream string) string {
	return fmt.Sprintf("cb:%s:%s:probe", tenantID, upstream)
}

func (b *circuitBreaker) readRecord(ctx context.Context, tenantID, upstream string) (*breakerRecord, error) {
	raw, ok, err := b.store.Get(ctx, breakerStateKey(tenantID, upstream))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var rec breakerRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("breaker state decode: %w", err)
	}
	return &rec, nil
}

func (b *circuitBreaker) writeRecord(ctx context.Context, tenantID, upstream string, rec breakerRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.store.Set(ctx, breakerStateKey(tenantID, upstream), string(raw), b.cfg.StateTTL)
}

func (b *circuitBreaker) Allow(ctx context.Context, tenantID, upstream string) (bool, error) {
	rec, err := b.readRecord(ctx, tenantID, upstream)
	if err != nil {
		return false, err
	}
	if rec == nil || rec.State == domain.BreakerClosed {
		return false, nil
	}

	openedAt := time.UnixMilli(rec.OpenedAt)
	elapsed := b.now().Sub(openedAt)

	if rec.State == domain.BreakerOpen && elapsed >= b.cfg.RecoveryTimeout {
		// Recovery window over: admit exactly one probe. The probe slot is
		// a conditional set so concurrent callers race safely; losers keep
		// seeing the breaker as open.
		won, err := b.store.SetNX(ctx, breakerProbeKey(tenantID, upstream), "1", b.cfg.RecoveryTimeout)
		if err != nil {
			return false, err
		}
		if won {
			if err := b.writeRecord(ctx, tenantID, upstream, breakerRecord{
				State:    domain.BreakerHalfOpen,
				OpenedAt: rec.OpenedAt,
			}); err != nil {
				return false, err
			}
			b.log.Info("Circuit breaker half-open, probing upstream",
				"tenant_id", tenantID, "upstream", upstream)
			return true, nil
		}
	}

	retryAfter := b.cfg.RecoveryTimeout - elapsed
	if retryAfter < 0 {
		retryAfter = 0
	}
	return false, &pkgerrors.CircuitBreakerOpenError{
		TenantID:   tenantID,
		Upstream:   upstream,
		RetryAfter: retryAfter,
	}
}

func (b *circuitBreaker) RecordSuccess(ctx context.Context, tenantID, upstream string) error {
	return b.store.Del(ctx,
		breakerStateKey(tenantID, upstream),
		breakerFailuresKey(tenantID, upstream),
		breakerProbeKey(tenantID, upstream),
	)
}

func (b *circuitBreaker) RecordFailure(ctx context.Context, tenantID, upstream string) error {
	rec, err := b.readRecord(ctx, tenantID, upstream)
	if err != nil {
		return err
	}

	if rec != nil && rec.State == domain.BreakerHalfOpen {
		// Probe failed: reopen with a fresh recovery window.
		if err := b.writeRecord(ctx, tenantID, upstream, breakerRecord{
			State:    domain.BreakerOpen,
			OpenedAt: b.now().UnixMilli(),
		}); err != nil {
			return err
		}
		if err := b.store.Del(ctx, breakerProbeKey(tenantID, upstream)); err != nil {
			return err
		}
		b.log.Warn("Circuit breaker probe failed, reopening",
			"tenant_id", tenantID, "upstream", upstream)
		return nil
	}
	if rec != nil && rec.State == domain.BreakerOpen {
		return nil
	}

	count, err := b.store.Incr(ctx, breakerFailuresKey(tenantID, upstream), b.cfg.FailureWindow)
	if err != nil {
		return err
	}
	if count >= b.cfg.FailureThreshold {
		if err := b.writeRecord(ctx, tenantID, upstream, breakerRecord{
			State:    domain.BreakerOpen,
			OpenedAt: b.now().UnixMilli(),
		}); err != nil {
			return err
		}
		b.log.Warn("Circuit breaker opened",
			"tenant_id", tenantID,
			"upstream", upstream,
			"consecutive_failures", count,
		)
	}
	return nil
}

func (b *circuitBreaker) Snapshot(ctx context.Context, tenantID, upstream string) (*domain.BreakerSnapshot, error) {
	snap := &domain.BreakerSnapshot{
		TenantID: tenantID,
		Upstream: upstream,
		State:    domain.BreakerClosed,
	}

	rec, err := b.readRecord(ctx, tenantID, upstream)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		snap.State = rec.State
		snap.OpenedAt = time.UnixMilli(rec.OpenedAt)
	}

	raw, ok, err := b.store.Get(ctx, breakerFailuresKey(tenantID, upstream))
	if err != nil {
		return nil, err
	}
	if ok {
		n, _ := strconv.ParseInt(raw, 10, 64)
		snap.ConsecutiveFailures = n
	}
	return snap, nil
}
