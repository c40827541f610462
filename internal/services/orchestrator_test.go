package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/concierge-backend/internal/clients/nlp"
	"github.com/yungbote/concierge-backend/internal/domain"
	"github.com/yungbote/concierge-backend/internal/store"
)

// fakeLocks records acquisitions so tests can assert which intents lock.
type fakeLocks struct {
	mu       sync.Mutex
	inner    ReservationLocks
	acquires []string
}

func (f *fakeLocks) Acquire(ctx context.Context, tenantID, resource, holder string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	f.acquires = append(f.acquires, resource)
	f.mu.Unlock()
	return f.inner.Acquire(ctx, tenantID, resource, holder, ttl)
}

func (f *fakeLocks) Release(ctx context.Context, tenantID, resource, holder string) error {
	return f.inner.Release(ctx, tenantID, resource, holder)
}

func (f *fakeLocks) acquireCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.acquires)
}

type orchestratorFixture struct {
	orch      *orchestrator
	clock     *fakeClock
	store     *store.MemoryStore
	pms       *fakePMS
	locks     *fakeLocks
	queue     *retryQueue
	breaker   *circuitBreaker
	sessions  Sessions
	sender    *fakeSender
	auditRepo *fakeAuditRepo
	failures  *fakeFailureRepo
}

func newOrchestratorFixture(t *testing.T, classifier nlp.Classifier) *orchestratorFixture {
	t.Helper()
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	st := store.NewMemoryStore()
	st.Now = clock.Now
	log := testLogger(t)

	auditRepo := &fakeAuditRepo{}
	audit := NewAuditService(log, auditRepo)
	failures := newFakeFailureRepo()

	client := newFakePMS()
	breaker := &circuitBreaker{
		log:   log,
		store: st,
		cfg: BreakerConfig{
			FailureThreshold: 2,
			RecoveryTimeout:  30 * time.Second,
			FailureWindow:    10 * time.Minute,
			StateTTL:         24 * time.Hour,
		},
		now: clock.Now,
	}
	gateway := &pmsGateway{
		log:     log,
		client:  client,
		breaker: breaker,
		store:   st,
		cfg: GatewayConfig{
			CacheTTL:        60 * time.Second,
			CallTimeout:     10 * time.Second,
			ReadMaxRetries:  0,
			ReadBackoffBase: time.Millisecond,
			Policy:          DefaultDegradedResponsePolicy(),
		},
		now:   clock.Now,
		sleep: func(time.Duration) {},
	}
	queue := &retryQueue{
		log:      log,
		store:    st,
		failures: failures,
		audit:    audit,
		cfg: RetryQueueConfig{
			BaseDelay:  60 * time.Second,
			MaxRetries: 3,
			EntryTTL:   7 * 24 * time.Hour,
			BatchLimit: 50,
		},
		now: clock.Now,
	}
	locks := &fakeLocks{inner: NewReservationLocks(log, st)}
	sessions := NewSessions(log, st, 30*time.Minute)
	rules, err := nlp.NewRuleClassifier(log)
	if err != nil {
		t.Fatalf("init rule classifier: %v", err)
	}
	sender := &fakeSender{}
	senders := NewSenderRegistry(log)
	senders.Register(domain.ChannelWhatsApp, sender)

	orch := &orchestrator{
		log: log,
		cfg: OrchestratorConfig{
			ConfidenceThreshold: 0.6,
			LockTTL:             30 * time.Second,
			ProcessedTTL:        24 * time.Hour,
			HistoryTurns:        10,
		},
		sessions:   sessions,
		classifier: classifier,
		rules:      rules,
		gateway:    gateway,
		locks:      locks,
		queue:      queue,
		speech:     nil,
		senders:    senders,
		audit:      audit,
		store:      st,
		now:        clock.Now,
	}

	return &orchestratorFixture{
		orch:      orch,
		clock:     clock,
		store:     st,
		pms:       client,
		locks:     locks,
		queue:     queue,
		breaker:   breaker,
		sessions:  sessions,
		sender:    sender,
		auditRepo: auditRepo,
		failures:  failures,
	}
}

func intentResult(intent domain.Intent, confidence float64, entities ...domain.Entity) *domain.IntentResult {
	return &domain.IntentResult{Intent: intent, Confidence: confidence, Entities: entities}
}

func TestOrchestratorCheckAvailabilityNeverLocks(t *testing.T) {
	ctx := context.Background()
	fx := newOrchestratorFixture(t, &fakeClassifier{result: intentResult(
		domain.IntentCheckAvailability, 0.95,
		domain.Entity{Type: "check_in", Value: "2026-09-12", Confidence: 0.9},
		domain.Entity{Type: "check_out", Value: "2026-09-14", Confidence: 0.9},
	)})

	reply, err := fx.orch.HandleMessage(ctx, testMessage("m1"))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if !strings.Contains(reply.Text, "double") {
		t.Fatalf("reply should list rooms, got %q", reply.Text)
	}
	if reply.Degraded {
		t.Fatalf("healthy read must not be degraded")
	}
	if fx.locks.acquireCount() != 0 {
		t.Fatalf("read-only intent must not lock, got %d acquisitions", fx.locks.acquireCount())
	}
	if fx.pms.callCount("availability") != 1 {
		t.Fatalf("want one upstream read, got %d", fx.pms.callCount("availability"))
	}
	if len(fx.sender.replies) != 1 {
		t.Fatalf("want reply dispatched to channel sender, got %d", len(fx.sender.replies))
	}
}

func TestOrchestratorConfirmAcquiresAndReleasesLock(t *testing.T) {
	ctx := context.Background()
	fx := newOrchestratorFixture(t, &fakeClassifier{result: intentResult(domain.IntentConfirmReservation, 0.9)})

	seedBookingSession(t, fx)

	reply, err := fx.orch.HandleMessage(ctx, testMessage("m2"))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if !strings.Contains(reply.Text, "booked") {
		t.Fatalf("want booking confirmation, got %q", reply.Text)
	}
	if fx.locks.acquireCount() != 1 {
		t.Fatalf("confirm must lock exactly once, got %d", fx.locks.acquireCount())
	}
	if fx.pms.callCount("create") != 1 {
		t.Fatalf("want one create call, got %d", fx.pms.callCount("create"))
	}

	// Lock released: a new booking for the same room proceeds.
	ok, err := fx.locks.inner.Acquire(ctx, "tenant-a", "room:double:2026-09-12:2026-09-14", "probe", time.Second)
	if err != nil || !ok {
		t.Fatalf("lock should be free after confirm, got ok=%v err=%v", ok, err)
	}
}

func TestOrchestratorDuplicateMessageHasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	fx := newOrchestratorFixture(t, &fakeClassifier{result: intentResult(domain.IntentConfirmReservation, 0.9)})

	seedBookingSession(t, fx)

	if _, err := fx.orch.HandleMessage(ctx, testMessage("m2")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	reply, err := fx.orch.HandleMessage(ctx, testMessage("m2"))
	if err != nil {
		t.Fatalf("HandleMessage (duplicate): %v", err)
	}
	if fx.pms.callCount("create") != 1 {
		t.Fatalf("duplicate message must not create twice, got %d", fx.pms.callCount("create"))
	}
	if !strings.Contains(reply.Text, "already received") {
		t.Fatalf("want duplicate acknowledgement, got %q", reply.Text)
	}
}

func TestOrchestratorLowConfidenceEscalates(t *testing.T) {
	ctx := context.Background()
	fx := newOrchestratorFixture(t, &fakeClassifier{result: intentResult(domain.IntentCancelReservation, 0.3)})

	reply, err := fx.orch.HandleMessage(ctx, testMessage("m1"))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if !reply.Escalated {
		t.Fatalf("low-confidence turn must escalate instead of guessing")
	}
	if fx.pms.callCount("cancel") != 0 {
		t.Fatalf("escalated turn must not touch the upstream")
	}
	if got := fx.auditRepo.countByEvent(AuditEventEscalation); got != 1 {
		t.Fatalf("want escalation audit record, got %d", got)
	}

	session, err := fx.sessions.LoadOrCreate(ctx, "tenant-a", "guest-1", domain.ChannelWhatsApp)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if session.State != domain.SessionEscalated {
		t.Fatalf("want=%v got=%v", domain.SessionEscalated, session.State)
	}
}

func TestOrchestratorLockContentionIsNotRetried(t *testing.T) {
	ctx := context.Background()
	fx := newOrchestratorFixture(t, &fakeClassifier{result: intentResult(domain.IntentConfirmReservation, 0.9)})

	seedBookingSession(t, fx)

	// Another conversation holds the room lock.
	if ok, err := fx.locks.inner.Acquire(ctx, "tenant-a", "room:double:2026-09-12:2026-09-14", "other", time.Minute); err != nil || !ok {
		t.Fatalf("seed lock: ok=%v err=%v", ok, err)
	}

	reply, err := fx.orch.HandleMessage(ctx, testMessage("m2"))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if !reply.Degraded {
		t.Fatalf("contention reply should be flagged degraded")
	}
	if fx.pms.callCount("create") != 0 {
		t.Fatalf("contended confirm must not reach the upstream")
	}

	fx.clock.Advance(time.Hour)
	entries, err := fx.queue.DequeueReady(ctx, fx.clock.Now())
	if err != nil {
		t.Fatalf("DequeueReady: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("lock contention must not enqueue retries, got %d", len(entries))
	}
}

func TestOrchestratorOutageParksWriteAndReplays(t *testing.T) {
	ctx := context.Background()
	fx := newOrchestratorFixture(t, &fakeClassifier{result: intentResult(domain.IntentConfirmReservation, 0.9)})

	seedBookingSession(t, fx)

	// Open the breaker for the tenant.
	for i := 0; i < 2; i++ {
		if err := fx.breaker.RecordFailure(ctx, "tenant-a", UpstreamPMS); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}

	reply, err := fx.orch.HandleMessage(ctx, testMessage("m2"))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if !reply.Degraded {
		t.Fatalf("outage reply should be degraded")
	}
	if strings.Contains(strings.ToLower(reply.Text), "circuit") || strings.Contains(reply.Text, "breaker") {
		t.Fatalf("internal failure detail leaked to guest: %q", reply.Text)
	}
	if fx.pms.callCount("create") != 0 {
		t.Fatalf("open breaker must block the write")
	}

	// Exactly one parked entry.
	fx.clock.Advance(61 * time.Second)
	entries, err := fx.queue.DequeueReady(ctx, fx.clock.Now())
	if err != nil {
		t.Fatalf("DequeueReady: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("want one parked message, got %d", len(entries))
	}
	if entries[0].ErrorKind != domain.ErrorKindBreakerOpen {
		t.Fatalf("want=%v got=%v", domain.ErrorKindBreakerOpen, entries[0].ErrorKind)
	}

	// Upstream recovers.
	if err := fx.breaker.RecordSuccess(ctx, "tenant-a", UpstreamPMS); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}

	dispatched := len(fx.sender.replies)
	if err := fx.orch.Replay(ctx, entries[0]); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if fx.pms.callCount("create") != 1 {
		t.Fatalf("replay should complete the booking, got %d creates", fx.pms.callCount("create"))
	}

	// The guest gets the confirmation over their channel, not just a log line.
	if len(fx.sender.replies) != dispatched+1 {
		t.Fatalf("want replayed reply dispatched, got %d sends", len(fx.sender.replies))
	}
	final := fx.sender.replies[len(fx.sender.replies)-1]
	if !strings.Contains(final.Text, "booked") {
		t.Fatalf("want booking confirmation on replay, got %q", final.Text)
	}

	// Queue drained.
	entries, err = fx.queue.DequeueReady(ctx, fx.clock.Now())
	if err != nil {
		t.Fatalf("DequeueReady: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("replayed entry should be completed, got %d", len(entries))
	}
}

func TestOrchestratorRuleFallbackOnClassifierError(t *testing.T) {
	ctx := context.Background()
	fx := newOrchestratorFixture(t, &fakeClassifier{err: context.DeadlineExceeded})

	msg := testMessage("m1")
	msg.Text = "do you have any rooms available next week?"
	reply, err := fx.orch.HandleMessage(ctx, msg)
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	// The rule classifier recognizes availability wording and asks for dates.
	if !strings.Contains(strings.ToLower(reply.Text), "dates") {
		t.Fatalf("want date prompt from rule-classified intent, got %q", reply.Text)
	}
}

// seedBookingSession stores a session that already observed room and dates,
// as if the guest just went through make_reservation.
func seedBookingSession(t *testing.T, fx *orchestratorFixture) {
	t.Helper()
	now := fx.clock.Now()
	session := domain.NewConversationSession("tenant-a", "guest-1", domain.ChannelWhatsApp)
	session.BeginTurn(now)
	session.ObserveEntity("room_type", domain.Entity{Type: "room_type", Value: "double", Confidence: 0.9}, now)
	session.ObserveEntity("check_in", domain.Entity{Type: "check_in", Value: "2026-09-12", Confidence: 0.9}, now)
	session.ObserveEntity("check_out", domain.Entity{Type: "check_out", Value: "2026-09-14", Confidence: 0.9}, now)
	session.State = domain.SessionAwaitingConfirmation
	if err := fx.sessions.Save(context.Background(), session); err != nil {
		t.Fatalf("seed session: %v", err)
	}
}
