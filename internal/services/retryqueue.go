package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/concierge-backend/internal/domain"
	"github.com/yungbote/concierge-backend/internal/pkg/logger"
	"github.com/yungbote/concierge-backend/internal/repos"
	"github.com/yungbote/concierge-backend/internal/store"
	"github.com/yungbote/concierge-backend/internal/types"
)

const dlqIndexKey = "dlq:ready"

// RetryQueue parks messages whose end-to-end processing failed and feeds
// them back in due-time order with exponential backoff. An entry that burns
// through its retry budget becomes exactly one durable permanent-failure
// record instead of being retried forever.
type RetryQueue interface {
	// Enqueue schedules a replay after base*2^retryCount. When retryCount
	// has already reached the budget the message converts straight to a
	// permanent failure and the returned id refers to that record.
	Enqueue(ctx context.Context, msg domain.InboundMessage, kind domain.ErrorKind, errMsg string, retryCount int, correlationID string) (string, error)
	// DequeueReady returns entries due at or before now, ordered by due time.
	DequeueReady(ctx context.Context, now time.Time) ([]domain.DLQEntry, error)
	Complete(ctx context.Context, dlqID string) error
	FailPermanently(ctx context.Context, entry domain.DLQEntry) error
}

type RetryQueueConfig struct {
	BaseDelay  time.Duration
	MaxRetries int
	// EntryTTL bounds queue growth: entries older than this are dropped on
	// dequeue even if they still had retries left.
	EntryTTL   time.Duration
	BatchLimit int64
}

func (c *RetryQueueConfig) applyDefaults() {
	if c.BaseDelay <= 0 {
		c.BaseDelay = 60 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.EntryTTL <= 0 {
		c.EntryTTL = 7 * 24 * time.Hour
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = 50
	}
}

type retryQueue struct {
	log      *logger.Logger
	store    store.Store
	failures repos.PermanentFailureRepo
	audit    AuditService
	cfg      RetryQueueConfig
	now      func() time.Time
}

func NewRetryQueue(log *logger.Logger, st store.Store, failures repos.PermanentFailureRepo, audit AuditService, cfg RetryQueueConfig) RetryQueue {
	cfg.applyDefaults()
	return &retryQueue{
		log:      log.With("service", "RetryQueue"),
		store:    st,
		failures: failures,
		audit:    audit,
		cfg:      cfg,
		now:      time.Now,
	}
}

func dlqEntryKey(dlqID string) string { return "dlq:" + dlqID }

// Delay returns the backoff before retry number retryCount: base * 2^n.
func (q *retryQueue) Delay(retryCount int) time.Duration {
	return q.cfg.BaseDelay * time.Duration(1<<uint(retryCount))
}

func (q *retryQueue) Enqueue(ctx context.Context, msg domain.InboundMessage, kind domain.ErrorKind, errMsg string, retryCount int, correlationID string) (string, error) {
	now := q.now().UTC()
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	entry := domain.DLQEntry{
		DLQID:         uuid.NewString(),
		Message:       msg,
		ErrorKind:     kind,
		ErrorMessage:  errMsg,
		RetryCount:    retryCount,
		FirstFailedAt: now,
		CorrelationID: correlationID,
	}

	if retryCount >= q.cfg.MaxRetries {
		if err := q.FailPermanently(ctx, entry); err != nil {
			return "", err
		}
		return entry.DLQID, nil
	}

	entry.NextRetryAt = now.Add(q.Delay(retryCount))

	raw, err := json.Marshal(entry)
	if err != nil {
		return "", err
	}
	if err := q.store.Set(ctx, dlqEntryKey(entry.DLQID), string(raw), q.cfg.EntryTTL); err != nil {
		return "", fmt.Errorf("dlq entry write: %w", err)
	}
	if err := q.store.ZAdd(ctx, dlqIndexKey, entry.DLQID, float64(entry.NextRetryAt.UnixMilli())); err != nil {
		return "", fmt.Errorf("dlq index write: %w", err)
	}

	q.log.Info("Message parked for retry",
		"dlq_id", entry.DLQID,
		"message_id", msg.MessageID,
		"tenant_id", msg.TenantID,
		"error_kind", kind,
		"retry_count", retryCount,
		"next_retry_at", entry.NextRetryAt,
	)
	return entry.DLQID, nil
}

func (q *retryQueue) DequeueReady(ctx context.Context, now time.Time) ([]domain.DLQEntry, error) {
	ids, err := q.store.ZRangeByScoreAsc(ctx, dlqIndexKey, float64(now.UnixMilli()), q.cfg.BatchLimit)
	if err != nil {
		return nil, fmt.Errorf("dlq index read: %w", err)
	}

	entries := make([]domain.DLQEntry, 0, len(ids))
	for _, id := range ids {
		raw, ok, err := q.store.Get(ctx, dlqEntryKey(id))
		if err != nil {
			return nil, err
		}
		if !ok {
			// Entry record hit its TTL; drop it from the index too.
			if err := q.store.ZRem(ctx, dlqIndexKey, id); err != nil {
				q.log.Warn("Expired DLQ entry index cleanup failed", "dlq_id", id, "error", err)
			}
			q.audit.Append(ctx, AuditEventDLQDropped, SeverityWarning, "", "", id, map[string]any{
				"dlq_id": id,
			})
			continue
		}
		var entry domain.DLQEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			q.log.Error("Corrupt DLQ entry, removing", "dlq_id", id, "error", err)
			_ = q.store.ZRem(ctx, dlqIndexKey, id)
			_ = q.store.Del(ctx, dlqEntryKey(id))
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (q *retryQueue) Complete(ctx context.Context, dlqID string) error {
	if err := q.store.ZRem(ctx, dlqIndexKey, dlqID); err != nil {
		return err
	}
	if err := q.store.Del(ctx, dlqEntryKey(dlqID)); err != nil {
		return err
	}
	q.log.Info("DLQ entry completed", "dlq_id", dlqID)
	return nil
}

func (q *retryQueue) FailPermanently(ctx context.Context, entry domain.DLQEntry) error {
	payload, _ := json.Marshal(entry.Message)

	rec, err := q.failures.Create(ctx, nil, &types.PermanentFailure{
		DLQID:         entry.DLQID,
		TenantID:      entry.Message.TenantID,
		UserID:        entry.Message.UserID,
		MessageID:     entry.Message.MessageID,
		Channel:       entry.Message.Channel.String(),
		ErrorKind:     string(entry.ErrorKind),
		ErrorMessage:  entry.ErrorMessage,
		RetryCount:    entry.RetryCount,
		Payload:       datatypes.JSON(payload),
		CorrelationID: entry.CorrelationID,
		FirstFailedAt: entry.FirstFailedAt,
	})
	if err != nil {
		return fmt.Errorf("permanent failure record: %w", err)
	}

	q.audit.Append(ctx, AuditEventPermanentFailure, SeverityCritical, entry.Message.TenantID, entry.Message.UserID, entry.Message.MessageID, map[string]any{
		"dlq_id":         entry.DLQID,
		"error_kind":     string(entry.ErrorKind),
		"retry_count":    entry.RetryCount,
		"correlation_id": entry.CorrelationID,
	})

	if err := q.store.ZRem(ctx, dlqIndexKey, entry.DLQID); err != nil {
		return err
	}
	if err := q.store.Del(ctx, dlqEntryKey(entry.DLQID)); err != nil {
		return err
	}

	q.log.Error("Retry budget exhausted, message failed permanently",
		"dlq_id", entry.DLQID,
		"message_id", entry.Message.MessageID,
		"tenant_id", entry.Message.TenantID,
		"record_id", rec.ID,
	)
	return nil
}
