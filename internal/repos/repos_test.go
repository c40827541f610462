package repos

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	pkgerrors "github.com/yungbote/concierge-backend/internal/pkg/errors"
	"github.com/yungbote/concierge-backend/internal/pkg/logger"
	"github.com/yungbote/concierge-backend/internal/types"
)

// testDB opens an in-memory sqlite database with the schema the models
// expect. The production defaults (uuid_generate_v4, now()) are Postgres
// functions, so the tables are created by hand here and tests set ids
// explicitly.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// One pooled connection, or queries can land on a fresh empty :memory: db.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	ddl := []string{
		`CREATE TABLE tenant (
			id TEXT PRIMARY KEY,
			slug TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			timezone TEXT NOT NULL DEFAULT 'UTC',
			active BOOLEAN NOT NULL DEFAULT true,
			created_at DATETIME,
			updated_at DATETIME,
			deleted_at DATETIME
		)`,
		`CREATE TABLE tenant_identity (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			channel TEXT NOT NULL,
			identity TEXT NOT NULL,
			created_at DATETIME,
			updated_at DATETIME,
			deleted_at DATETIME,
			UNIQUE (identity, channel)
		)`,
		`CREATE TABLE audit_log_entry (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			user_id TEXT,
			resource TEXT,
			details TEXT,
			created_at DATETIME
		)`,
		`CREATE TABLE permanent_failure (
			id TEXT PRIMARY KEY,
			dlq_id TEXT NOT NULL UNIQUE,
			tenant_id TEXT NOT NULL,
			user_id TEXT,
			message_id TEXT NOT NULL,
			channel TEXT,
			error_kind TEXT NOT NULL,
			error_message TEXT,
			retry_count INTEGER NOT NULL,
			payload TEXT,
			correlation_id TEXT,
			first_failed_at DATETIME,
			created_at DATETIME
		)`,
	}
	for _, stmt := range ddl {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func repoLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func seedTenant(t *testing.T, db *gorm.DB, slug string, active bool) *types.Tenant {
	t.Helper()
	tenant := &types.Tenant{ID: uuid.New(), Slug: slug, Name: slug, Timezone: "UTC", Active: active}
	if err := db.Create(tenant).Error; err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	return tenant
}

func TestTenantRepoResolveIdentity(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	repo := NewTenantRepo(db, repoLogger(t))

	hotel := seedTenant(t, db, "grand-hotel", true)
	if _, err := repo.UpsertIdentity(ctx, nil, &types.TenantIdentity{
		ID: uuid.New(), TenantID: hotel.ID, Channel: "whatsapp", Identity: "+4912345",
	}); err != nil {
		t.Fatalf("UpsertIdentity: %v", err)
	}

	got, err := repo.ResolveIdentity(ctx, nil, "whatsapp", "+4912345")
	if err != nil {
		t.Fatalf("ResolveIdentity: %v", err)
	}
	if got.ID != hotel.ID {
		t.Fatalf("want=%s got=%s", hotel.ID, got.ID)
	}

	// Same identity string on a different channel is a different binding.
	if _, err := repo.ResolveIdentity(ctx, nil, "sms", "+4912345"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("want ErrNotFound for unbound channel, got %v", err)
	}
}

func TestTenantRepoInactiveTenantIsNotFound(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	repo := NewTenantRepo(db, repoLogger(t))

	closed := seedTenant(t, db, "closed-hotel", false)
	if _, err := repo.UpsertIdentity(ctx, nil, &types.TenantIdentity{
		ID: uuid.New(), TenantID: closed.ID, Channel: "whatsapp", Identity: "+4999999",
	}); err != nil {
		t.Fatalf("UpsertIdentity: %v", err)
	}

	if _, err := repo.ResolveIdentity(ctx, nil, "whatsapp", "+4999999"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("inactive tenant must resolve as not found, got %v", err)
	}
	if _, err := repo.GetBySlug(ctx, nil, "closed-hotel"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("inactive tenant must not load by slug, got %v", err)
	}
}

func TestTenantRepoUpsertIdentityRebinds(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	repo := NewTenantRepo(db, repoLogger(t))

	first := seedTenant(t, db, "first-hotel", true)
	second := seedTenant(t, db, "second-hotel", true)

	if _, err := repo.UpsertIdentity(ctx, nil, &types.TenantIdentity{
		ID: uuid.New(), TenantID: first.ID, Channel: "sms", Identity: "+4911111",
	}); err != nil {
		t.Fatalf("UpsertIdentity: %v", err)
	}
	if _, err := repo.UpsertIdentity(ctx, nil, &types.TenantIdentity{
		ID: uuid.New(), TenantID: second.ID, Channel: "sms", Identity: "+4911111",
	}); err != nil {
		t.Fatalf("UpsertIdentity rebind: %v", err)
	}

	got, err := repo.ResolveIdentity(ctx, nil, "sms", "+4911111")
	if err != nil {
		t.Fatalf("ResolveIdentity: %v", err)
	}
	if got.ID != second.ID {
		t.Fatalf("identity must follow the rebind: want=%s got=%s", second.ID, got.ID)
	}

	var count int64
	db.Model(&types.TenantIdentity{}).Count(&count)
	if count != 1 {
		t.Fatalf("rebind must not duplicate the binding, got %d rows", count)
	}
}

func TestAuditRepoAppendAndList(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	repo := NewAuditRepo(db, repoLogger(t))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		entry := &types.AuditLogEntry{
			ID:        uuid.New(),
			EventType: "tenant_isolation_blocked",
			Severity:  "critical",
			TenantID:  "tenant-a",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if _, err := repo.Append(ctx, nil, entry); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	other := &types.AuditLogEntry{
		ID: uuid.New(), EventType: "escalation", Severity: "info",
		TenantID: "tenant-b", CreatedAt: base,
	}
	if _, err := repo.Append(ctx, nil, other); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := repo.ListByTenant(ctx, nil, "tenant-a", time.Time{}, time.Time{}, 0)
	if err != nil {
		t.Fatalf("ListByTenant: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 rows for tenant-a, got %d", len(got))
	}
	if got[0].CreatedAt.Before(got[1].CreatedAt) {
		t.Fatalf("want newest first, got %v then %v", got[0].CreatedAt, got[1].CreatedAt)
	}

	// The time window filters rows, not tenants.
	got, err = repo.ListByTenant(ctx, nil, "tenant-a", base.Add(30*time.Minute), base.Add(90*time.Minute), 0)
	if err != nil {
		t.Fatalf("ListByTenant window: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 row inside window, got %d", len(got))
	}
}

func TestPermanentFailureRepoIgnoresDuplicateDLQID(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	repo := NewPermanentFailureRepo(db, repoLogger(t))

	rec := &types.PermanentFailure{
		ID: uuid.New(), DLQID: "dlq-1", TenantID: "tenant-a",
		MessageID: "m1", ErrorKind: "circuit_breaker_open", RetryCount: 3,
		FirstFailedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if _, err := repo.Create(ctx, nil, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	dup := &types.PermanentFailure{
		ID: uuid.New(), DLQID: "dlq-1", TenantID: "tenant-a",
		MessageID: "m1", ErrorKind: "circuit_breaker_open", RetryCount: 3,
	}
	if _, err := repo.Create(ctx, nil, dup); err != nil {
		t.Fatalf("duplicate Create must be silent: %v", err)
	}

	got, err := repo.ListByTenant(ctx, nil, "tenant-a", 0)
	if err != nil {
		t.Fatalf("ListByTenant: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want exactly one row per dlq_id, got %d", len(got))
	}
}
