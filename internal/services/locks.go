package services

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/concierge-backend/internal/pkg/logger"
	"github.com/yungbote/concierge-backend/internal/store"
)

// ReservationLocks grants short-lived, named, mutually-exclusive leases over
// reservation-affecting resources. Acquisition is one conditional set
// against the shared store and never blocks; contention comes back as
// ok=false, not as waiting. The TTL, enforced by the store, bounds how long
// a crashed holder can keep a resource unavailable.
type ReservationLocks interface {
	Acquire(ctx context.Context, tenantID, resource, holder string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, tenantID, resource, holder string) error
}

type reservationLocks struct {
	log   *logger.Logger
	store store.Store
}

func NewReservationLocks(log *logger.Logger, st store.Store) ReservationLocks {
	return &reservationLocks{
		log:   log.With("service", "ReservationLocks"),
		store: st,
	}
}

// LockKey namespaces the resource by tenant so two tenants can never
// contend for the same logical room even when external ids collide.
func LockKey(tenantID, resource string) string {
	return fmt.Sprintf("lock:%s:%s", tenantID, resource)
}

func (l *reservationLocks) Acquire(ctx context.Context, tenantID, resource, holder string, ttl time.Duration) (bool, error) {
	if tenantID == "" || resource == "" || holder == "" {
		return false, fmt.Errorf("lock: tenantID, resource and holder required")
	}
	if ttl <= 0 {
		return false, fmt.Errorf("lock: positive ttl required")
	}

	ok, err := l.store.SetNX(ctx, LockKey(tenantID, resource), holder, ttl)
	if err != nil {
		return false, fmt.Errorf("lock acquire: %w", err)
	}
	if !ok {
		l.log.Debug("Lock contention", "tenant_id", tenantID, "resource", resource, "holder", holder)
	}
	return ok, nil
}

func (l *reservationLocks) Release(ctx context.Context, tenantID, resource, holder string) error {
	released, err := l.store.CompareAndDelete(ctx, LockKey(tenantID, resource), holder)
	if err != nil {
		return fmt.Errorf("lock release: %w", err)
	}
	if !released {
		// Lock expired and may have been re-acquired; deleting it here
		// would steal it from the new holder, so this is a no-op.
		l.log.Warn("Lock release skipped, holder no longer owns it",
			"tenant_id", tenantID,
			"resource", resource,
			"holder", holder,
		)
	}
	return nil
}
