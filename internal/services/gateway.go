package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yungbote/concierge-backend/internal/clients/pms"
	"github.com/yungbote/concierge-backend/internal/domain"
	pkgerrors "github.com/yungbote/concierge-backend/internal/pkg/errors"
	"github.com/yungbote/concierge-backend/internal/pkg/logger"
	"github.com/yungbote/concierge-backend/internal/store"
)

// UpstreamPMS is the breaker scope name for the property-management system.
const UpstreamPMS = "pms"

// PMSGateway is the only path to the PMS. Reads go through a TTL cache and
// get bounded retries; writes are never cached, never silently retried, and
// invalidate cached reads on success. The circuit breaker guards both.
type PMSGateway interface {
	CheckAvailability(ctx context.Context, tenantID, checkIn, checkOut string) (*domain.Availability, error)
	GetReservation(ctx context.Context, tenantID, reservationID string) (*domain.Reservation, error)
	CreateReservation(ctx context.Context, req pms.CreateReservationRequest) (*domain.Reservation, error)
	CancelReservation(ctx context.Context, tenantID, reservationID string) error
	BreakerSnapshot(ctx context.Context, tenantID string) (*domain.BreakerSnapshot, error)
}

type GatewayConfig struct {
	CacheTTL        time.Duration
	CallTimeout     time.Duration
	ReadMaxRetries  int
	ReadBackoffBase time.Duration
	Policy          DegradedResponsePolicy
}

func (c *GatewayConfig) applyDefaults() {
	if c.CacheTTL <= 0 {
		c.CacheTTL = 60 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	if c.ReadMaxRetries < 0 {
		c.ReadMaxRetries = 0
	}
	if c.ReadBackoffBase <= 0 {
		c.ReadBackoffBase = 200 * time.Millisecond
	}
}

type pmsGateway struct {
	log     *logger.Logger
	client  pms.Client
	breaker CircuitBreaker
	store   store.Store
	cfg     GatewayConfig
	now     func() time.Time
	sleep   func(time.Duration)
}

func NewPMSGateway(log *logger.Logger, client pms.Client, breaker CircuitBreaker, st store.Store, cfg GatewayConfig) PMSGateway {
	cfg.applyDefaults()
	return &pmsGateway{
		log:     log.With("service", "PMSGateway"),
		client:  client,
		breaker: breaker,
		store:   st,
		cfg:     cfg,
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// Cache keys embed a per-tenant generation counter; invalidating every read
// for a tenant is one atomic increment instead of a pattern delete.
func (g *pmsGateway) cacheGen(ctx context.Context, tenantID string) string {
	raw, ok, err := g.store.Get(ctx, "pmscache_gen:"+tenantID)
	if err != nil || !ok {
		return "0"
	}
	return raw
}

func (g *pmsGateway) bumpCacheGen(ctx context.Context, tenantID string) {
	if _, err := g.store.Incr(ctx, "pmscache_gen:"+tenantID, 0); err != nil {
		g.log.Warn("Cache invalidation failed", "tenant_id", tenantID, "error", err)
	}
}

func availabilityCacheKey(tenantID, gen, checkIn, checkOut string) string {
	return fmt.Sprintf("pmscache:%s:%s:availability:%s:%s", tenantID, gen, checkIn, checkOut)
}

// lastKnownKey is deliberately generation-free: the last-known copy exists
// for outage fallback and is always tagged stale when served.
func lastKnownKey(tenantID, checkIn, checkOut string) string {
	return fmt.Sprintf("pmscache_last:%s:availability:%s:%s", tenantID, checkIn, checkOut)
}

func (g *pmsGateway) CheckAvailability(ctx context.Context, tenantID, checkIn, checkOut string) (*domain.Availability, error) {
	gen := g.cacheGen(ctx, tenantID)
	cacheKey := availabilityCacheKey(tenantID, gen, checkIn, checkOut)

	if raw, ok, err := g.store.Get(ctx, cacheKey); err == nil && ok {
		var av domain.Availability
		if json.Unmarshal([]byte(raw), &av) == nil {
			return &av, nil
		}
	}

	av, err := callRead(g, ctx, tenantID, func(callCtx context.Context) (*domain.Availability, error) {
		return g.client.CheckAvailability(callCtx, tenantID, checkIn, checkOut)
	})
	if err != nil {
		if pkgerrors.IsBreakerOpen(err) && g.cfg.Policy.AllowStaleReads {
			if raw, ok, gerr := g.store.Get(ctx, lastKnownKey(tenantID, checkIn, checkOut)); gerr == nil && ok {
				var stale domain.Availability
				if json.Unmarshal([]byte(raw), &stale) == nil {
					stale.Stale = true
					g.log.Info("Serving stale availability during upstream outage",
						"tenant_id", tenantID, "check_in", checkIn, "check_out", checkOut)
					return &stale, nil
				}
			}
			if sim, ok := g.cfg.Policy.SimulatedAvailability(checkIn, checkOut, g.now().UTC()); ok {
				g.log.Warn("Serving simulated availability (non-production policy)",
					"tenant_id", tenantID)
				return sim, nil
			}
		}
		return nil, err
	}

	if raw, merr := json.Marshal(av); merr == nil {
		if serr := g.store.Set(ctx, cacheKey, string(raw), g.cfg.CacheTTL); serr != nil {
			g.log.Warn("Availability cache write failed", "error", serr)
		}
		if serr := g.store.Set(ctx, lastKnownKey(tenantID, checkIn, checkOut), string(raw), 0); serr != nil {
			g.log.Warn("Last-known cache write failed", "error", serr)
		}
	}
	return av, nil
}

func (g *pmsGateway) GetReservation(ctx context.Context, tenantID, reservationID string) (*domain.Reservation, error) {
	return callRead(g, ctx, tenantID, func(callCtx context.Context) (*domain.Reservation, error) {
		return g.client.GetReservation(callCtx, tenantID, reservationID)
	})
}

func (g *pmsGateway) CreateReservation(ctx context.Context, req pms.CreateReservationRequest) (*domain.Reservation, error) {
	res, err := callWrite(g, ctx, req.TenantID, func(callCtx context.Context) (*domain.Reservation, error) {
		return g.client.CreateReservation(callCtx, req)
	})
	if err != nil {
		return nil, err
	}
	g.bumpCacheGen(ctx, req.TenantID)
	return res, nil
}

func (g *pmsGateway) CancelReservation(ctx context.Context, tenantID, reservationID string) error {
	_, err := callWrite(g, ctx, tenantID, func(callCtx context.Context) (*struct{}, error) {
		return &struct{}{}, g.client.CancelReservation(callCtx, tenantID, reservationID)
	})
	if err != nil {
		return err
	}
	g.bumpCacheGen(ctx, tenantID)
	return nil
}

func (g *pmsGateway) BreakerSnapshot(ctx context.Context, tenantID string) (*domain.BreakerSnapshot, error) {
	return g.breaker.Snapshot(ctx, tenantID, UpstreamPMS)
}

// callRead performs a breaker-guarded idempotent read with bounded
// exponential backoff. A half-open probe gets exactly one attempt.
func callRead[T any](g *pmsGateway, ctx context.Context, tenantID string, fn func(context.Context) (*T, error)) (*T, error) {
	backoff := g.cfg.ReadBackoffBase
	var lastErr error

	for attempt := 0; attempt <= g.cfg.ReadMaxRetries; attempt++ {
		probe, allowErr := g.breaker.Allow(ctx, tenantID, UpstreamPMS)
		if allowErr != nil {
			// Breaker open: no point in further attempts.
			return nil, allowErr
		}

		out, err := callOnce(g, ctx, tenantID, fn)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if probe || attempt == g.cfg.ReadMaxRetries || ctx.Err() != nil {
			break
		}
		g.sleep(backoff)
		backoff *= 2
	}
	return nil, lastErr
}

// callWrite performs a breaker-guarded single attempt. Whether a failed
// write is retried later is the caller's decision, via the retry queue.
func callWrite[T any](g *pmsGateway, ctx context.Context, tenantID string, fn func(context.Context) (*T, error)) (*T, error) {
	if _, err := g.breaker.Allow(ctx, tenantID, UpstreamPMS); err != nil {
		return nil, err
	}
	return callOnce(g, ctx, tenantID, fn)
}

func callOnce[T any](g *pmsGateway, ctx context.Context, tenantID string, fn func(context.Context) (*T, error)) (*T, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()

	out, err := fn(callCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = &pkgerrors.UpstreamTimeoutError{
				Upstream: UpstreamPMS,
				Timeout:  g.cfg.CallTimeout,
				Err:      err,
			}
		}
		if rerr := g.breaker.RecordFailure(ctx, tenantID, UpstreamPMS); rerr != nil {
			g.log.Warn("Breaker failure record failed", "error", rerr)
		}
		return nil, err
	}
	if rerr := g.breaker.RecordSuccess(ctx, tenantID, UpstreamPMS); rerr != nil {
		g.log.Warn("Breaker success record failed", "error", rerr)
	}
	return out, nil
}
