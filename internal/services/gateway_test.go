package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/concierge-backend/internal/clients/pms"
	"github.com/yungbote/concierge-backend/internal/domain"
	pkgerrors "github.com/yungbote/concierge-backend/internal/pkg/errors"
	"github.com/yungbote/concierge-backend/internal/store"
)

func newTestGateway(t *testing.T, clock *fakeClock, client pms.Client, policy DegradedResponsePolicy) (*pmsGateway, *circuitBreaker, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	st.Now = clock.Now
	breaker := &circuitBreaker{
		log:   testLogger(t),
		store: st,
		cfg: BreakerConfig{
			FailureThreshold: 2,
			RecoveryTimeout:  30 * time.Second,
			FailureWindow:    10 * time.Minute,
			StateTTL:         24 * time.Hour,
		},
		now: clock.Now,
	}
	g := &pmsGateway{
		log:     testLogger(t),
		client:  client,
		breaker: breaker,
		store:   st,
		cfg: GatewayConfig{
			CacheTTL:        60 * time.Second,
			CallTimeout:     10 * time.Second,
			ReadMaxRetries:  0,
			ReadBackoffBase: time.Millisecond,
			Policy:          policy,
		},
		now:   clock.Now,
		sleep: func(time.Duration) {},
	}
	return g, breaker, st
}

func TestGatewayCachesAvailability(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	client := newFakePMS()
	g, _, _ := newTestGateway(t, clock, client, DefaultDegradedResponsePolicy())

	for i := 0; i < 3; i++ {
		av, err := g.CheckAvailability(ctx, "tenant-a", "2026-09-12", "2026-09-14")
		if err != nil {
			t.Fatalf("CheckAvailability: %v", err)
		}
		if av.Stale {
			t.Fatalf("fresh result must not be stale")
		}
	}
	if got := client.callCount("availability"); got != 1 {
		t.Fatalf("want one upstream call within cache TTL, got %d", got)
	}

	// Cache expires with time.
	clock.Advance(61 * time.Second)
	if _, err := g.CheckAvailability(ctx, "tenant-a", "2026-09-12", "2026-09-14"); err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	if got := client.callCount("availability"); got != 2 {
		t.Fatalf("want refetch after TTL, got %d calls", got)
	}
}

func TestGatewayWriteInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	client := newFakePMS()
	g, _, _ := newTestGateway(t, clock, client, DefaultDegradedResponsePolicy())

	if _, err := g.CheckAvailability(ctx, "tenant-a", "2026-09-12", "2026-09-14"); err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}

	if _, err := g.CreateReservation(ctx, pms.CreateReservationRequest{
		TenantID: "tenant-a", GuestID: "g1", RoomType: "double",
		CheckIn: "2026-09-12", CheckOut: "2026-09-14", RequestID: "m1",
	}); err != nil {
		t.Fatalf("CreateReservation: %v", err)
	}

	// The successful write bumped the tenant's cache generation, so the next
	// read goes back upstream despite the TTL not being over.
	if _, err := g.CheckAvailability(ctx, "tenant-a", "2026-09-12", "2026-09-14"); err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	if got := client.callCount("availability"); got != 2 {
		t.Fatalf("want cache invalidated by write, got %d availability calls", got)
	}
}

func TestGatewayServesStaleDuringOutage(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	client := newFakePMS()
	g, _, _ := newTestGateway(t, clock, client, DegradedResponsePolicy{AllowStaleReads: true})

	// Populate the last-known copy.
	if _, err := g.CheckAvailability(ctx, "tenant-a", "2026-09-12", "2026-09-14"); err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}

	// Upstream collapses; two failures open the breaker.
	client.availability = func(tenantID, checkIn, checkOut string) (*domain.Availability, error) {
		return nil, errors.New("connection refused")
	}
	clock.Advance(61 * time.Second)
	for i := 0; i < 2; i++ {
		if _, err := g.CheckAvailability(ctx, "tenant-a", "2026-09-12", "2026-09-14"); err == nil {
			t.Fatalf("want upstream error while breaker closes")
		}
	}

	// Breaker now open: the read degrades to the stale copy, tagged as such.
	av, err := g.CheckAvailability(ctx, "tenant-a", "2026-09-12", "2026-09-14")
	if err != nil {
		t.Fatalf("stale fallback should succeed, got %v", err)
	}
	if !av.Stale {
		t.Fatalf("outage fallback must be flagged stale")
	}
	if len(av.Rooms) != 1 || av.Rooms[0].RoomType != "double" {
		t.Fatalf("stale copy content lost: %+v", av)
	}
}

func TestGatewayStaleFallbackDisabledByPolicy(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	client := newFakePMS()
	g, _, _ := newTestGateway(t, clock, client, DegradedResponsePolicy{AllowStaleReads: false})

	if _, err := g.CheckAvailability(ctx, "tenant-a", "2026-09-12", "2026-09-14"); err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	client.availability = func(tenantID, checkIn, checkOut string) (*domain.Availability, error) {
		return nil, errors.New("connection refused")
	}
	clock.Advance(61 * time.Second)
	for i := 0; i < 2; i++ {
		_, _ = g.CheckAvailability(ctx, "tenant-a", "2026-09-12", "2026-09-14")
	}

	_, err := g.CheckAvailability(ctx, "tenant-a", "2026-09-12", "2026-09-14")
	if !pkgerrors.IsBreakerOpen(err) {
		t.Fatalf("without stale reads the breaker error surfaces, got %v", err)
	}
}

func TestGatewayWritesNeverServeCache(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	client := newFakePMS()
	g, _, _ := newTestGateway(t, clock, client, DefaultDegradedResponsePolicy())

	// Open the breaker.
	client.create = func(req pms.CreateReservationRequest) (*domain.Reservation, error) {
		return nil, errors.New("boom")
	}
	req := pms.CreateReservationRequest{
		TenantID: "tenant-a", GuestID: "g1", RoomType: "double",
		CheckIn: "2026-09-12", CheckOut: "2026-09-14", RequestID: "m1",
	}
	for i := 0; i < 2; i++ {
		if _, err := g.CreateReservation(ctx, req); err == nil {
			t.Fatalf("want write failure")
		}
	}

	// While open, a write is rejected without touching the upstream.
	before := client.callCount("create")
	_, err := g.CreateReservation(ctx, req)
	if !pkgerrors.IsBreakerOpen(err) {
		t.Fatalf("want breaker-open for write during outage, got %v", err)
	}
	if client.callCount("create") != before {
		t.Fatalf("open breaker must not let writes through")
	}
}

func TestGatewayWrapsCallTimeout(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	client := newFakePMS()
	client.get = func(tenantID, reservationID string) (*domain.Reservation, error) {
		return nil, context.DeadlineExceeded
	}
	g, _, _ := newTestGateway(t, clock, client, DefaultDegradedResponsePolicy())

	_, err := g.GetReservation(ctx, "tenant-a", "r1")
	if !pkgerrors.IsUpstreamTimeout(err) {
		t.Fatalf("want upstream-timeout wrapping, got %v", err)
	}
}
