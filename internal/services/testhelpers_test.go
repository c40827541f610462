package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/concierge-backend/internal/clients/pms"
	"github.com/yungbote/concierge-backend/internal/domain"
	pkgerrors "github.com/yungbote/concierge-backend/internal/pkg/errors"
	"github.com/yungbote/concierge-backend/internal/pkg/logger"
	"github.com/yungbote/concierge-backend/internal/types"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

// fakeClock drives services with injectable now funcs.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{t: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeAuditRepo records appended rows in memory.
type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*types.AuditLogEntry
}

func (r *fakeAuditRepo) Append(ctx context.Context, tx *gorm.DB, entry *types.AuditLogEntry) (*types.AuditLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return entry, nil
}

func (r *fakeAuditRepo) ListByTenant(ctx context.Context, tx *gorm.DB, tenantID string, since, until time.Time, limit int) ([]*types.AuditLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.AuditLogEntry
	for _, e := range r.entries {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeAuditRepo) countByEvent(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.EventType == event {
			n++
		}
	}
	return n
}

// fakeFailureRepo mimics the dlq_id unique index: duplicate inserts are
// silently ignored, like ON CONFLICT DO NOTHING.
type fakeFailureRepo struct {
	mu   sync.Mutex
	rows map[string]*types.PermanentFailure
}

func newFakeFailureRepo() *fakeFailureRepo {
	return &fakeFailureRepo{rows: map[string]*types.PermanentFailure{}}
}

func (r *fakeFailureRepo) Create(ctx context.Context, tx *gorm.DB, rec *types.PermanentFailure) (*types.PermanentFailure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.rows[rec.DLQID]; ok {
		return existing, nil
	}
	r.rows[rec.DLQID] = rec
	return rec, nil
}

func (r *fakeFailureRepo) ListByTenant(ctx context.Context, tx *gorm.DB, tenantID string, limit int) ([]*types.PermanentFailure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.PermanentFailure
	for _, rec := range r.rows {
		if rec.TenantID == tenantID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *fakeFailureRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// fakeTenantRepo resolves identities from a fixed map.
type fakeTenantRepo struct {
	tenants    map[string]*types.Tenant // slug -> tenant
	identities map[string]*types.Tenant // channel:identity -> tenant
}

func newFakeTenantRepo() *fakeTenantRepo {
	return &fakeTenantRepo{
		tenants:    map[string]*types.Tenant{},
		identities: map[string]*types.Tenant{},
	}
}

func (r *fakeTenantRepo) addTenant(slug string) *types.Tenant {
	t := &types.Tenant{ID: uuid.New(), Slug: slug, Name: slug, Active: true}
	r.tenants[slug] = t
	return t
}

func (r *fakeTenantRepo) bind(channel, identity string, t *types.Tenant) {
	r.identities[channel+":"+identity] = t
}

func (r *fakeTenantRepo) GetBySlug(ctx context.Context, tx *gorm.DB, slug string) (*types.Tenant, error) {
	if t, ok := r.tenants[slug]; ok && t.Active {
		return t, nil
	}
	return nil, pkgErrNotFound()
}

func (r *fakeTenantRepo) ResolveIdentity(ctx context.Context, tx *gorm.DB, channel, identity string) (*types.Tenant, error) {
	if t, ok := r.identities[channel+":"+identity]; ok && t.Active {
		return t, nil
	}
	return nil, pkgErrNotFound()
}

func (r *fakeTenantRepo) UpsertIdentity(ctx context.Context, tx *gorm.DB, ident *types.TenantIdentity) (*types.TenantIdentity, error) {
	return ident, nil
}

// fakePMS is a programmable PMS client. The per-method funcs default to
// success; tests swap them to fail.
type fakePMS struct {
	mu           sync.Mutex
	availability func(tenantID, checkIn, checkOut string) (*domain.Availability, error)
	create       func(req pms.CreateReservationRequest) (*domain.Reservation, error)
	get          func(tenantID, reservationID string) (*domain.Reservation, error)
	cancel       func(tenantID, reservationID string) error
	calls        map[string]int
}

func newFakePMS() *fakePMS {
	f := &fakePMS{calls: map[string]int{}}
	f.availability = func(tenantID, checkIn, checkOut string) (*domain.Availability, error) {
		return &domain.Availability{
			CheckIn:  checkIn,
			CheckOut: checkOut,
			Rooms: []domain.RoomOption{
				{RoomType: "double", NightlyRate: 120, Currency: "EUR", Available: 3},
			},
		}, nil
	}
	f.create = func(req pms.CreateReservationRequest) (*domain.Reservation, error) {
		return &domain.Reservation{
			ReservationID: "res-" + req.RequestID,
			TenantID:      req.TenantID,
			GuestID:       req.GuestID,
			RoomType:      req.RoomType,
			CheckIn:       req.CheckIn,
			CheckOut:      req.CheckOut,
			Status:        "confirmed",
		}, nil
	}
	f.get = func(tenantID, reservationID string) (*domain.Reservation, error) {
		return &domain.Reservation{ReservationID: reservationID, TenantID: tenantID, Status: "confirmed"}, nil
	}
	f.cancel = func(tenantID, reservationID string) error { return nil }
	return f
}

func (f *fakePMS) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakePMS) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakePMS) CheckAvailability(ctx context.Context, tenantID, checkIn, checkOut string) (*domain.Availability, error) {
	f.record("availability")
	return f.availability(tenantID, checkIn, checkOut)
}

func (f *fakePMS) GetReservation(ctx context.Context, tenantID, reservationID string) (*domain.Reservation, error) {
	f.record("get")
	return f.get(tenantID, reservationID)
}

func (f *fakePMS) CreateReservation(ctx context.Context, req pms.CreateReservationRequest) (*domain.Reservation, error) {
	f.record("create")
	return f.create(req)
}

func (f *fakePMS) CancelReservation(ctx context.Context, tenantID, reservationID string) error {
	f.record("cancel")
	return f.cancel(tenantID, reservationID)
}

// fakeClassifier returns a fixed result or error.
type fakeClassifier struct {
	result *domain.IntentResult
	err    error
}

func (f *fakeClassifier) Classify(ctx context.Context, text string, history []string, language string) (*domain.IntentResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakeSender captures dispatched replies.
type fakeSender struct {
	mu      sync.Mutex
	replies []OutboundReply
}

func (f *fakeSender) Send(ctx context.Context, userID string, reply OutboundReply) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, reply)
	return fmt.Sprintf("delivery-%d", len(f.replies)), nil
}

func pkgErrNotFound() error {
	return pkgerrors.ErrNotFound
}
