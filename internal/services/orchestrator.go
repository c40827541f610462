package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/concierge-backend/internal/clients/nlp"
	"github.com/yungbote/concierge-backend/internal/clients/pms"
	"github.com/yungbote/concierge-backend/internal/clients/speech"
	"github.com/yungbote/concierge-backend/internal/domain"
	pkgerrors "github.com/yungbote/concierge-backend/internal/pkg/errors"
	"github.com/yungbote/concierge-backend/internal/pkg/logger"
	"github.com/yungbote/concierge-backend/internal/store"
)

// Orchestrator turns one verified inbound message into one outbound reply.
// It owns the failure policy: upstream trouble degrades to a user-safe
// reply (parking writes for retry), and no internal error detail ever
// reaches the guest.
type Orchestrator interface {
	HandleMessage(ctx context.Context, msg domain.InboundMessage) (*OutboundReply, error)
	// Replay re-runs a parked message end to end. Handlers are idempotent
	// on message_id, so replaying a message that already succeeded is a
	// no-op that completes the entry.
	Replay(ctx context.Context, entry domain.DLQEntry) error
}

type OrchestratorConfig struct {
	ConfidenceThreshold float64
	LockTTL             time.Duration
	// ProcessedTTL is how long the per-message idempotency marker lives.
	ProcessedTTL time.Duration
	HistoryTurns int
}

func (c *OrchestratorConfig) applyDefaults() {
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = 0.6
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
	if c.ProcessedTTL <= 0 {
		c.ProcessedTTL = 24 * time.Hour
	}
	if c.HistoryTurns <= 0 {
		c.HistoryTurns = 10
	}
}

type orchestrator struct {
	log        *logger.Logger
	cfg        OrchestratorConfig
	sessions   Sessions
	classifier nlp.Classifier
	rules      *nlp.RuleClassifier
	gateway    PMSGateway
	locks      ReservationLocks
	queue      RetryQueue
	speech     speech.Provider
	senders    *SenderRegistry
	audit      AuditService
	store      store.Store
	now        func() time.Time
}

func NewOrchestrator(
	log *logger.Logger,
	cfg OrchestratorConfig,
	sessions Sessions,
	classifier nlp.Classifier,
	rules *nlp.RuleClassifier,
	gateway PMSGateway,
	locks ReservationLocks,
	queue RetryQueue,
	speechProvider speech.Provider,
	senders *SenderRegistry,
	audit AuditService,
	st store.Store,
) Orchestrator {
	cfg.applyDefaults()
	return &orchestrator{
		log:        log.With("service", "Orchestrator"),
		cfg:        cfg,
		sessions:   sessions,
		classifier: classifier,
		rules:      rules,
		gateway:    gateway,
		locks:      locks,
		queue:      queue,
		speech:     speechProvider,
		senders:    senders,
		audit:      audit,
		store:      st,
		now:        time.Now,
	}
}

func processedKey(tenantID, messageID string) string {
	return fmt.Sprintf("msg_done:%s:%s", tenantID, messageID)
}

func (o *orchestrator) HandleMessage(ctx context.Context, msg domain.InboundMessage) (*OutboundReply, error) {
	reply, err := o.process(ctx, msg)
	if err == nil {
		o.senders.Dispatch(ctx, msg.Channel, msg.UserID, *reply)
		return reply, nil
	}

	reply = o.convertFailure(ctx, msg, err, 0)
	o.senders.Dispatch(ctx, msg.Channel, msg.UserID, *reply)
	return reply, nil
}

func (o *orchestrator) Replay(ctx context.Context, entry domain.DLQEntry) error {
	reply, err := o.process(ctx, entry.Message)
	if err == nil {
		// The guest was promised automatic processing; the confirmation has
		// to reach them through their channel, not just the ops log.
		o.senders.Dispatch(ctx, entry.Message.Channel, entry.Message.UserID, *reply)
		return o.queue.Complete(ctx, entry.DLQID)
	}
	if pkgerrors.IsLockContention(err) || pkgerrors.IsBreakerOpen(err) || pkgerrors.IsUpstreamTimeout(err) || !isUserFacingOnly(err) {
		if cerr := o.queue.Complete(ctx, entry.DLQID); cerr != nil {
			return cerr
		}
		_, qerr := o.queue.Enqueue(ctx, entry.Message, classifyError(err), safeErrorMessage(err), entry.RetryCount+1, entry.CorrelationID)
		return qerr
	}
	return o.queue.Complete(ctx, entry.DLQID)
}

// process runs the full pipeline and returns the raw error for the failure
// policy to classify. It is safe to re-run for the same message_id.
func (o *orchestrator) process(ctx context.Context, msg domain.InboundMessage) (*OutboundReply, error) {
	done, _, err := o.store.Get(ctx, processedKey(msg.TenantID, msg.MessageID))
	if err == nil && done != "" {
		o.log.Debug("Duplicate message, skipping side effects",
			"tenant_id", msg.TenantID, "message_id", msg.MessageID)
		return &OutboundReply{Text: "We already received this message and are on it."}, nil
	}

	session, err := o.sessions.LoadOrCreate(ctx, msg.TenantID, msg.UserID, msg.Channel)
	if err != nil {
		return nil, err
	}
	now := o.now().UTC()
	session.BeginTurn(now)

	text := msg.Text
	if msg.Type == domain.MessageTypeAudio && msg.MediaURL != "" {
		if o.speech == nil {
			reply := &OutboundReply{Text: "Voice messages aren't supported here yet. Could you type your request instead?", Degraded: true}
			return reply, o.finishTurn(ctx, session, msg)
		}
		transcript, terr := o.speech.Transcribe(ctx, msg.MediaURL, msg.Language)
		if terr != nil {
			o.log.Warn("Transcription failed, asking guest to type",
				"tenant_id", msg.TenantID, "message_id", msg.MessageID, "error", terr)
			reply := &OutboundReply{Text: "Sorry, I couldn't make out that voice message. Could you type it instead?", Degraded: true}
			return reply, o.finishTurn(ctx, session, msg)
		}
		text = transcript
	}

	result := o.classify(ctx, text, session, msg.Language)
	session.RecordIntent(result.Intent, result.Confidence, now)
	for _, e := range result.Entities {
		session.ObserveEntity(e.Type, e, now)
	}
	// Persist the classified turn before dispatch so the failure policy can
	// read the intent even when the handler errors out.
	if err := o.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	// Rule-classified results are exempt from the threshold: their fixed
	// confidence reflects the classifier, not the message.
	if result.Confidence < o.cfg.ConfidenceThreshold && !result.Fallback && result.Intent != domain.IntentEscalate {
		session.State = domain.SessionEscalated
		o.audit.Append(ctx, AuditEventEscalation, SeverityWarning, msg.TenantID, msg.UserID, msg.MessageID, map[string]any{
			"intent":     result.Intent.String(),
			"confidence": result.Confidence,
			"fallback":   result.Fallback,
		})
		reply := &OutboundReply{
			Text:      "I want to make sure you get the right answer, so I'm connecting you with our team. Someone will be with you shortly.",
			Escalated: true,
		}
		return reply, o.finishTurn(ctx, session, msg)
	}

	reply, err := o.dispatch(ctx, msg, session, result)
	if err != nil {
		return nil, err
	}
	return reply, o.finishTurn(ctx, session, msg)
}

func (o *orchestrator) finishTurn(ctx context.Context, session *domain.ConversationSession, msg domain.InboundMessage) error {
	if err := o.sessions.Save(ctx, session); err != nil {
		return err
	}
	if err := o.store.Set(ctx, processedKey(msg.TenantID, msg.MessageID), "1", o.cfg.ProcessedTTL); err != nil {
		o.log.Warn("Idempotency marker write failed", "message_id", msg.MessageID, "error", err)
	}
	return nil
}

func (o *orchestrator) classify(ctx context.Context, text string, session *domain.ConversationSession, language string) *domain.IntentResult {
	history := session.RecentIntents(o.cfg.HistoryTurns)
	if o.classifier != nil {
		result, err := o.classifier.Classify(ctx, text, history, language)
		if err == nil {
			return result
		}
		o.log.Warn("NLP classifier unavailable, using rule fallback", "error", err)
	}
	result, rerr := o.rules.Classify(ctx, text, history, language)
	if rerr != nil {
		return &domain.IntentResult{Intent: domain.IntentUnknown, Confidence: 0, Fallback: true}
	}
	return result
}

// dispatch is the closed intent switch. Every Intent constant has a case;
// adding an intent without one is a compile-time review failure, not a
// silent dictionary miss.
func (o *orchestrator) dispatch(ctx context.Context, msg domain.InboundMessage, session *domain.ConversationSession, result *domain.IntentResult) (*OutboundReply, error) {
	switch result.Intent {
	case domain.IntentGreeting:
		return o.handleGreeting(session), nil
	case domain.IntentHelp:
		return o.handleHelp(), nil
	case domain.IntentCheckAvailability:
		return o.handleCheckAvailability(ctx, msg, session, result)
	case domain.IntentMakeReservation:
		return o.handleMakeReservation(session, result)
	case domain.IntentConfirmReservation:
		return o.handleConfirmReservation(ctx, msg, session)
	case domain.IntentCancelReservation:
		return o.handleCancelReservation(ctx, msg, session, result)
	case domain.IntentReservationStatus:
		return o.handleReservationStatus(ctx, msg, session, result)
	case domain.IntentEscalate:
		return o.handleEscalate(ctx, msg, session, result)
	case domain.IntentUnknown:
		return &OutboundReply{Text: "I didn't quite catch that. I can check room availability, make or cancel a reservation, or connect you with our team."}, nil
	default:
		return nil, fmt.Errorf("unhandled intent %q", result.Intent)
	}
}

func (o *orchestrator) handleGreeting(session *domain.ConversationSession) *OutboundReply {
	if session.State == domain.SessionEscalated {
		return &OutboundReply{Text: "Hello again! Our team has your conversation; meanwhile I can help with availability or reservations."}
	}
	return &OutboundReply{Text: "Hello! I can check room availability, book a stay, or look up an existing reservation. How can I help?"}
}

func (o *orchestrator) handleHelp() *OutboundReply {
	return &OutboundReply{Text: "You can ask me things like \"do you have a room next weekend?\", \"book a double room\", \"what's the status of my reservation?\" or \"cancel my booking\"."}
}

func (o *orchestrator) handleCheckAvailability(ctx context.Context, msg domain.InboundMessage, session *domain.ConversationSession, result *domain.IntentResult) (*OutboundReply, error) {
	checkIn := firstNonEmpty(result.EntityValue("check_in"), session.LatestEntity("check_in"))
	checkOut := firstNonEmpty(result.EntityValue("check_out"), session.LatestEntity("check_out"))
	if checkIn == "" || checkOut == "" {
		return &OutboundReply{Text: "Which dates are you interested in? For example: \"from 2026-09-12 to 2026-09-14\"."}, nil
	}

	av, err := o.gateway.CheckAvailability(ctx, msg.TenantID, checkIn, checkOut)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	if len(av.Rooms) == 0 {
		fmt.Fprintf(&sb, "I'm sorry, we're fully booked from %s to %s.", av.CheckIn, av.CheckOut)
	} else {
		fmt.Fprintf(&sb, "Here's what we have from %s to %s:\n", av.CheckIn, av.CheckOut)
		for _, r := range av.Rooms {
			fmt.Fprintf(&sb, "- %s: %.2f %s per night (%d left)\n", r.RoomType, r.NightlyRate, r.Currency, r.Available)
		}
		sb.WriteString("Reply with a room type to start a booking.")
	}
	if av.Stale {
		sb.WriteString("\nPlease note: this information may be slightly out of date; we'll confirm before any booking.")
	}
	return &OutboundReply{Text: sb.String(), Degraded: av.Stale}, nil
}

func (o *orchestrator) handleMakeReservation(session *domain.ConversationSession, result *domain.IntentResult) (*OutboundReply, error) {
	roomType := firstNonEmpty(result.EntityValue("room_type"), session.LatestEntity("room_type"))
	checkIn := firstNonEmpty(result.EntityValue("check_in"), session.LatestEntity("check_in"))
	checkOut := firstNonEmpty(result.EntityValue("check_out"), session.LatestEntity("check_out"))

	var missing []string
	if roomType == "" {
		missing = append(missing, "room type")
	}
	if checkIn == "" {
		missing = append(missing, "check-in date")
	}
	if checkOut == "" {
		missing = append(missing, "check-out date")
	}
	if len(missing) > 0 {
		return &OutboundReply{Text: fmt.Sprintf("Almost there! I still need the %s.", strings.Join(missing, " and "))}, nil
	}

	session.State = domain.SessionAwaitingConfirmation
	return &OutboundReply{Text: fmt.Sprintf("To confirm: a %s room, checking in %s and out %s. Shall I book it?", roomType, checkIn, checkOut)}, nil
}

func (o *orchestrator) handleConfirmReservation(ctx context.Context, msg domain.InboundMessage, session *domain.ConversationSession) (*OutboundReply, error) {
	roomType := session.LatestEntity("room_type")
	checkIn := session.LatestEntity("check_in")
	checkOut := session.LatestEntity("check_out")
	if roomType == "" || checkIn == "" || checkOut == "" {
		return &OutboundReply{Text: "I don't have a pending booking to confirm. Tell me the room type and dates and we'll start one."}, nil
	}

	resource := fmt.Sprintf("room:%s:%s:%s", roomType, checkIn, checkOut)
	holder := msg.MessageID

	acquired, err := o.locks.Acquire(ctx, msg.TenantID, resource, holder, o.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, &pkgerrors.LockContentionError{ResourceKey: resource}
	}
	defer func() {
		if rerr := o.locks.Release(ctx, msg.TenantID, resource, holder); rerr != nil {
			o.log.Warn("Lock release failed", "resource", resource, "error", rerr)
		}
	}()

	session.State = domain.SessionCreatingReservation
	res, err := o.gateway.CreateReservation(ctx, pms.CreateReservationRequest{
		TenantID:  msg.TenantID,
		GuestID:   msg.UserID,
		RoomType:  roomType,
		CheckIn:   checkIn,
		CheckOut:  checkOut,
		RequestID: msg.MessageID,
	})
	if err != nil {
		return nil, err
	}

	session.State = domain.SessionIdle
	session.ObserveEntity("reservation_id", domain.Entity{Type: "reservation_id", Value: res.ReservationID, Confidence: 1}, o.now().UTC())
	return &OutboundReply{Text: fmt.Sprintf("All set! Your %s room is booked from %s to %s. Confirmation number: %s.", res.RoomType, res.CheckIn, res.CheckOut, res.ReservationID)}, nil
}

func (o *orchestrator) handleCancelReservation(ctx context.Context, msg domain.InboundMessage, session *domain.ConversationSession, result *domain.IntentResult) (*OutboundReply, error) {
	reservationID := firstNonEmpty(result.EntityValue("reservation_id"), session.LatestEntity("reservation_id"))
	if reservationID == "" {
		return &OutboundReply{Text: "Which reservation should I cancel? Please share the confirmation number."}, nil
	}

	resource := "reservation:" + reservationID
	holder := msg.MessageID

	acquired, err := o.locks.Acquire(ctx, msg.TenantID, resource, holder, o.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, &pkgerrors.LockContentionError{ResourceKey: resource}
	}
	defer func() {
		if rerr := o.locks.Release(ctx, msg.TenantID, resource, holder); rerr != nil {
			o.log.Warn("Lock release failed", "resource", resource, "error", rerr)
		}
	}()

	if err := o.gateway.CancelReservation(ctx, msg.TenantID, reservationID); err != nil {
		return nil, err
	}

	session.State = domain.SessionIdle
	return &OutboundReply{Text: fmt.Sprintf("Your reservation %s has been cancelled. We hope to welcome you another time!", reservationID)}, nil
}

func (o *orchestrator) handleReservationStatus(ctx context.Context, msg domain.InboundMessage, session *domain.ConversationSession, result *domain.IntentResult) (*OutboundReply, error) {
	reservationID := firstNonEmpty(result.EntityValue("reservation_id"), session.LatestEntity("reservation_id"))
	if reservationID == "" {
		return &OutboundReply{Text: "Happy to check! What's the confirmation number?"}, nil
	}

	res, err := o.gateway.GetReservation(ctx, msg.TenantID, reservationID)
	if err != nil {
		return nil, err
	}
	return &OutboundReply{Text: fmt.Sprintf("Reservation %s: %s room, %s to %s, status %s.", res.ReservationID, res.RoomType, res.CheckIn, res.CheckOut, res.Status)}, nil
}

func (o *orchestrator) handleEscalate(ctx context.Context, msg domain.InboundMessage, session *domain.ConversationSession, result *domain.IntentResult) (*OutboundReply, error) {
	session.State = domain.SessionEscalated
	o.audit.Append(ctx, AuditEventEscalation, SeverityInfo, msg.TenantID, msg.UserID, msg.MessageID, map[string]any{
		"intent":     result.Intent.String(),
		"confidence": result.Confidence,
		"requested":  true,
	})
	return &OutboundReply{Text: "Of course — I'm connecting you with our team now. Someone will reply here as soon as possible.", Escalated: true}, nil
}

// convertFailure applies the propagation policy: everything that reaches
// the guest is a bounded, polite message; retryable work is parked.
func (o *orchestrator) convertFailure(ctx context.Context, msg domain.InboundMessage, err error, retryCount int) *OutboundReply {
	lastIntent := domain.IntentUnknown
	// The write/read decision keys off the message's classified intent;
	// the session's intent history has it after process().
	if session, serr := o.sessions.LoadOrCreate(ctx, msg.TenantID, msg.UserID, msg.Channel); serr == nil && len(session.IntentHistory) > 0 {
		lastIntent = session.IntentHistory[len(session.IntentHistory)-1].Intent
	}

	switch {
	case pkgerrors.IsLockContention(err):
		return &OutboundReply{Text: "Someone else is completing a booking for that room right now. Please try again in a moment.", Degraded: true}

	case pkgerrors.IsBreakerOpen(err), pkgerrors.IsUpstreamTimeout(err):
		if lastIntent.IsWrite() {
			if _, qerr := o.queue.Enqueue(ctx, msg, classifyError(err), safeErrorMessage(err), retryCount, ""); qerr != nil {
				o.log.Error("DLQ enqueue failed", "message_id", msg.MessageID, "error", qerr)
			}
			return &OutboundReply{Text: "Our reservation system is briefly unavailable. Your request is saved and we'll process it automatically — no need to resend.", Degraded: true}
		}
		return &OutboundReply{Text: "Our reservation system is briefly unavailable, so I can't look that up right now. Please try again in a few minutes.", Degraded: true}

	default:
		if _, qerr := o.queue.Enqueue(ctx, msg, classifyError(err), safeErrorMessage(err), retryCount, ""); qerr != nil {
			o.log.Error("DLQ enqueue failed", "message_id", msg.MessageID, "error", qerr)
		}
		o.log.Error("Message processing failed",
			"tenant_id", msg.TenantID,
			"message_id", msg.MessageID,
			"error", err,
		)
		return &OutboundReply{Text: "Something went wrong on our side. Please try again shortly — we've also saved your request.", Degraded: true}
	}
}

func classifyError(err error) domain.ErrorKind {
	switch {
	case pkgerrors.IsBreakerOpen(err):
		return domain.ErrorKindBreakerOpen
	case pkgerrors.IsUpstreamTimeout(err):
		return domain.ErrorKindUpstreamTimeout
	default:
		return domain.ErrorKindUnexpected
	}
}

// safeErrorMessage is stored in DLQ/audit records for operators; it is
// never included in guest-facing output.
func safeErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > 1000 {
		msg = msg[:1000]
	}
	return msg
}

func isUserFacingOnly(err error) bool {
	// Security violations never reach the orchestrator's handlers, but be
	// explicit: they must not be retried if they somehow do.
	return pkgerrors.IsSecurity(err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
