package jobs

import (
	"context"
	"time"

	"github.com/yungbote/concierge-backend/internal/domain"
	"github.com/yungbote/concierge-backend/internal/pkg/logger"
	"github.com/yungbote/concierge-backend/internal/services"
)

// DLQWorker drains the retry queue on a fixed tick, replaying each due
// entry through the orchestrator. Replays run sequentially within a tick;
// due-time order is preserved and a slow upstream never fans out.
type DLQWorker struct {
	log          *logger.Logger
	queue        services.RetryQueue
	orchestrator services.Orchestrator
	interval     time.Duration
	now          func() time.Time
}

func NewDLQWorker(baseLog *logger.Logger, queue services.RetryQueue, orchestrator services.Orchestrator, interval time.Duration) *DLQWorker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &DLQWorker{
		log:          baseLog.With("component", "DLQWorker"),
		queue:        queue,
		orchestrator: orchestrator,
		interval:     interval,
		now:          time.Now,
	}
}

func (w *DLQWorker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.Tick(ctx)
			}
		}
	}()
}

// Tick processes one batch of due entries. Exposed so operators can force
// a drain without waiting for the timer.
func (w *DLQWorker) Tick(ctx context.Context) {
	entries, err := w.queue.DequeueReady(ctx, w.now().UTC())
	if err != nil {
		w.log.Warn("DequeueReady failed", "error", err)
		return
	}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		w.replay(ctx, entry)
	}
}

func (w *DLQWorker) replay(ctx context.Context, entry domain.DLQEntry) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Replay panic",
				"dlq_id", entry.DLQID,
				"message_id", entry.Message.MessageID,
				"panic", r,
			)
		}
	}()

	if err := w.orchestrator.Replay(ctx, entry); err != nil {
		w.log.Warn("Replay failed",
			"dlq_id", entry.DLQID,
			"message_id", entry.Message.MessageID,
			"retry_count", entry.RetryCount,
			"error", err,
		)
		return
	}
	w.log.Info("Replay handled",
		"dlq_id", entry.DLQID,
		"message_id", entry.Message.MessageID,
	)
}
