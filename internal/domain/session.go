package domain

import (
	"fmt"
	"time"
)

// SessionState is the conversation-level state machine position.
type SessionState string

const (
	SessionIdle                 SessionState = "idle"
	SessionAwaitingConfirmation SessionState = "awaiting_confirmation"
	SessionCreatingReservation  SessionState = "creating_reservation"
	SessionEscalated            SessionState = "escalated"
	SessionClosed               SessionState = "closed"
)

// EntityObservation is one sighting of an entity value in the conversation.
// History is append-only; later observations of the same type supersede
// earlier ones for reads, but earlier ones stay for anaphora resolution.
type EntityObservation struct {
	Value      string    `json:"value"`
	Turn       int       `json:"turn"`
	Confidence float64   `json:"confidence"`
	Corrected  bool      `json:"corrected"`
	ObservedAt time.Time `json:"observed_at"`
}

// IntentTurn records one classified intent in order.
type IntentTurn struct {
	Intent     Intent    `json:"intent"`
	Confidence float64   `json:"confidence"`
	Turn       int       `json:"turn"`
	At         time.Time `json:"at"`
}

// ConversationSession is the per-(tenant,user,channel) conversation record.
// Lives in the shared store under session:{tenant}:{user}:{channel} with an
// inactivity TTL.
type ConversationSession struct {
	TenantID      string                         `json:"tenant_id"`
	UserID        string                         `json:"user_id"`
	Channel       Channel                        `json:"channel"`
	State         SessionState                   `json:"state"`
	Turn          int                            `json:"turn"`
	EntityHistory map[string][]EntityObservation `json:"entity_history,omitempty"`
	IntentHistory []IntentTurn                   `json:"intent_history,omitempty"`
	LastUpdated   time.Time                      `json:"last_updated"`
}

func NewConversationSession(tenantID, userID string, channel Channel) *ConversationSession {
	return &ConversationSession{
		TenantID:      tenantID,
		UserID:        userID,
		Channel:       channel,
		State:         SessionIdle,
		EntityHistory: map[string][]EntityObservation{},
	}
}

// SessionKey builds the shared-store key for a session.
func SessionKey(tenantID, userID string, channel Channel) string {
	return fmt.Sprintf("session:%s:%s:%s", tenantID, userID, channel)
}

// BeginTurn advances the turn counter; call once per handled message.
func (s *ConversationSession) BeginTurn(now time.Time) {
	s.Turn++
	s.LastUpdated = now
}

// ObserveEntity appends an observation for the current turn. A second
// observation of the same type within a later turn is flagged as a
// correction of the previous value.
func (s *ConversationSession) ObserveEntity(entityType string, e Entity, now time.Time) {
	if s.EntityHistory == nil {
		s.EntityHistory = map[string][]EntityObservation{}
	}
	prior := s.EntityHistory[entityType]
	obs := EntityObservation{
		Value:      e.Value,
		Turn:       s.Turn,
		Confidence: e.Confidence,
		ObservedAt: now,
	}
	if n := len(prior); n > 0 && prior[n-1].Value != e.Value {
		obs.Corrected = true
	}
	s.EntityHistory[entityType] = append(prior, obs)
}

// LatestEntity returns the most recent observed value for a type, or "".
func (s *ConversationSession) LatestEntity(entityType string) string {
	obs := s.EntityHistory[entityType]
	if len(obs) == 0 {
		return ""
	}
	return obs[len(obs)-1].Value
}

// RecordIntent appends to the ordered intent history.
func (s *ConversationSession) RecordIntent(intent Intent, confidence float64, now time.Time) {
	s.IntentHistory = append(s.IntentHistory, IntentTurn{
		Intent:     intent,
		Confidence: confidence,
		Turn:       s.Turn,
		At:         now,
	})
}

// RecentIntents returns up to n most recent intent names, oldest first.
// Passed to the classifier as conversational context.
func (s *ConversationSession) RecentIntents(n int) []string {
	h := s.IntentHistory
	if len(h) > n {
		h = h[len(h)-n:]
	}
	out := make([]string, 0, len(h))
	for _, t := range h {
		out = append(out, t.Intent.String())
	}
	return out
}
