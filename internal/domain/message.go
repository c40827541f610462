package domain

import (
	"time"
)

// MessageType distinguishes text payloads from media the guest attached.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeAudio MessageType = "audio"
	MessageTypeImage MessageType = "image"
)

// InboundMessage is a guest message after normalization. Treated as
// immutable from the moment the guard has verified and filtered it;
// replays from the retry queue carry the exact same value.
type InboundMessage struct {
	MessageID string            `json:"message_id"`
	TenantID  string            `json:"tenant_id"`
	UserID    string            `json:"user_id"`
	Channel   Channel           `json:"channel"`
	Type      MessageType       `json:"type"`
	Text      string            `json:"text,omitempty"`
	MediaURL  string            `json:"media_url,omitempty"`
	Language  string            `json:"language,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// FilterMetadata returns a copy of meta holding only whitelisted keys.
// Unknown keys are dropped outright so injected fields (admin, bypass flags)
// can never reach a handler.
func FilterMetadata(meta map[string]string, whitelist []string) map[string]string {
	if len(meta) == 0 {
		return map[string]string{}
	}
	allowed := make(map[string]bool, len(whitelist))
	for _, k := range whitelist {
		allowed[k] = true
	}
	out := make(map[string]string)
	for k, v := range meta {
		if allowed[k] {
			out[k] = v
		}
	}
	return out
}
