package services

import (
	"context"
	"fmt"

	"github.com/yungbote/concierge-backend/internal/clients/sendgrid"
	"github.com/yungbote/concierge-backend/internal/clients/twilio"
	"github.com/yungbote/concierge-backend/internal/domain"
	"github.com/yungbote/concierge-backend/internal/pkg/logger"
)

// OutboundReply is what the orchestrator produced for one inbound message.
type OutboundReply struct {
	Text     string
	Audio    []byte
	Degraded bool
	// Escalated marks replies that hand the guest to a human.
	Escalated bool
}

// ChannelSender delivers a reply on one channel. Fire-and-forget from the
// orchestrator's perspective; delivery failures are the sender's concern
// and never fail the message.
type ChannelSender interface {
	Send(ctx context.Context, userID string, reply OutboundReply) (string, error)
}

// SenderRegistry maps each channel to its sender. Channels without a
// configured sender fall back to returning the reply in the API response
// only (webchat behaves this way by design).
type SenderRegistry struct {
	log     *logger.Logger
	senders map[domain.Channel]ChannelSender
}

func NewSenderRegistry(log *logger.Logger) *SenderRegistry {
	return &SenderRegistry{
		log:     log.With("service", "SenderRegistry"),
		senders: map[domain.Channel]ChannelSender{},
	}
}

func (r *SenderRegistry) Register(channel domain.Channel, sender ChannelSender) {
	r.senders[channel] = sender
}

// Dispatch sends asynchronously-safe: errors are logged, never returned to
// the message path.
func (r *SenderRegistry) Dispatch(ctx context.Context, channel domain.Channel, userID string, reply OutboundReply) {
	sender, ok := r.senders[channel]
	if !ok {
		return
	}
	deliveryID, err := sender.Send(ctx, userID, reply)
	if err != nil {
		r.log.Warn("Outbound delivery failed",
			"channel", channel,
			"user_id", userID,
			"error", err,
		)
		return
	}
	r.log.Debug("Reply delivered", "channel", channel, "delivery_id", deliveryID)
}

// --- Twilio-backed chat sender (whatsapp / sms) ---

type twilioSender struct {
	client   twilio.Client
	whatsApp bool
}

func NewTwilioSender(client twilio.Client, whatsApp bool) ChannelSender {
	return &twilioSender{client: client, whatsApp: whatsApp}
}

func (s *twilioSender) Send(ctx context.Context, userID string, reply OutboundReply) (string, error) {
	msg, err := s.client.SendMessage(ctx, twilio.SendMessageRequest{
		To:       userID,
		Body:     reply.Text,
		WhatsApp: s.whatsApp,
	})
	if err != nil {
		return "", err
	}
	return msg.SID, nil
}

// --- SendGrid-backed email sender ---

type emailSender struct {
	client  sendgrid.Client
	subject string
}

func NewEmailSender(client sendgrid.Client, subject string) ChannelSender {
	if subject == "" {
		subject = "Your reservation inquiry"
	}
	return &emailSender{client: client, subject: subject}
}

func (s *emailSender) Send(ctx context.Context, userID string, reply OutboundReply) (string, error) {
	res, err := s.client.Send(ctx, sendgrid.SendEmailRequest{
		To:      []sendgrid.EmailAddress{{Email: userID}},
		Subject: s.subject,
		Text:    reply.Text,
	})
	if err != nil {
		return "", err
	}
	if res.MessageID != "" {
		return res.MessageID, nil
	}
	return fmt.Sprintf("sendgrid-%d", res.StatusCode), nil
}
