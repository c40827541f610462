package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yungbote/concierge-backend/internal/domain"
	"github.com/yungbote/concierge-backend/internal/pkg/logger"
	"github.com/yungbote/concierge-backend/internal/store"
)

// Sessions stores conversation state in the shared store, one record per
// (tenant, user, channel), expiring after the inactivity TTL.
type Sessions interface {
	LoadOrCreate(ctx context.Context, tenantID, userID string, channel domain.Channel) (*domain.ConversationSession, error)
	Save(ctx context.Context, session *domain.ConversationSession) error
	Delete(ctx context.Context, tenantID, userID string, channel domain.Channel) error
}

type sessions struct {
	log   *logger.Logger
	store store.Store
	ttl   time.Duration
}

func NewSessions(log *logger.Logger, st store.Store, inactivityTTL time.Duration) Sessions {
	if inactivityTTL <= 0 {
		inactivityTTL = 30 * time.Minute
	}
	return &sessions{
		log:   log.With("service", "Sessions"),
		store: st,
		ttl:   inactivityTTL,
	}
}

func (s *sessions) LoadOrCreate(ctx context.Context, tenantID, userID string, channel domain.Channel) (*domain.ConversationSession, error) {
	key := domain.SessionKey(tenantID, userID, channel)
	raw, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("session read: %w", err)
	}
	if !ok {
		return domain.NewConversationSession(tenantID, userID, channel), nil
	}

	var session domain.ConversationSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		s.log.Warn("Corrupt session record, starting fresh",
			"tenant_id", tenantID, "user_id", userID, "channel", channel, "error", err)
		return domain.NewConversationSession(tenantID, userID, channel), nil
	}
	return &session, nil
}

func (s *sessions) Save(ctx context.Context, session *domain.ConversationSession) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	key := domain.SessionKey(session.TenantID, session.UserID, session.Channel)
	if err := s.store.Set(ctx, key, string(raw), s.ttl); err != nil {
		return fmt.Errorf("session write: %w", err)
	}
	return nil
}

func (s *sessions) Delete(ctx context.Context, tenantID, userID string, channel domain.Channel) error {
	return s.store.Del(ctx, domain.SessionKey(tenantID, userID, channel))
}
