package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/concierge-backend/internal/domain"
	"github.com/yungbote/concierge-backend/internal/middleware"
	pkgerrors "github.com/yungbote/concierge-backend/internal/pkg/errors"
	"github.com/yungbote/concierge-backend/internal/pkg/logger"
	"github.com/yungbote/concierge-backend/internal/services"
)

type MessageHandler struct {
	log          *logger.Logger
	guard        services.TenantGuard
	orchestrator services.Orchestrator
}

func NewMessageHandler(log *logger.Logger, guard services.TenantGuard, orchestrator services.Orchestrator) *MessageHandler {
	return &MessageHandler{
		log:          log.With("Handler", "MessageHandler"),
		guard:        guard,
		orchestrator: orchestrator,
	}
}

type inboundMessageRequest struct {
	MessageID string            `json:"message_id"`
	Identity  string            `json:"identity" binding:"required"`
	Type      string            `json:"type"`
	Text      string            `json:"text"`
	MediaURL  string            `json:"media_url"`
	Language  string            `json:"language"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata"`
}

type messageReply struct {
	Text      string `json:"text"`
	Degraded  bool   `json:"degraded,omitempty"`
	Escalated bool   `json:"escalated,omitempty"`
}

// POST /api/webhooks/:channel/messages
func (h *MessageHandler) ReceiveMessage(c *gin.Context) {
	actualChannel, err := domain.ParseChannel(c.Param("channel"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_channel", err)
		return
	}

	var req inboundMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	claimedTenant := c.GetString(middleware.CtxClaimedTenant)
	claimedChannel, err := domain.ParseChannel(c.GetString(middleware.CtxClaimedChannel))
	if err != nil {
		RespondErrorMsg(c, http.StatusForbidden, "forbidden", "request rejected")
		return
	}

	ctx := c.Request.Context()
	tenantID, err := h.guard.ResolveAndVerify(ctx, req.Identity, claimedTenant, claimedChannel, actualChannel)
	if err != nil {
		// Security rejections are deliberately uniform: no hint about which
		// check failed leaves the process.
		if pkgerrors.IsSecurity(err) {
			RespondErrorMsg(c, http.StatusForbidden, "forbidden", "request rejected")
			return
		}
		RespondErrorMsg(c, http.StatusForbidden, "unknown_identity", "request rejected")
		return
	}

	msgType := domain.MessageTypeText
	if req.Type != "" {
		msgType = domain.MessageType(req.Type)
	}
	if req.MessageID == "" {
		req.MessageID = uuid.NewString()
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}

	msg := h.guard.Normalize(domain.InboundMessage{
		MessageID: req.MessageID,
		TenantID:  tenantID,
		UserID:    req.Identity,
		Channel:   actualChannel,
		Type:      msgType,
		Text:      req.Text,
		MediaURL:  req.MediaURL,
		Language:  req.Language,
		Timestamp: req.Timestamp,
		Metadata:  req.Metadata,
	})

	reply, err := h.orchestrator.HandleMessage(ctx, msg)
	if err != nil {
		h.log.Error("Message handling failed", "message_id", msg.MessageID, "error", err)
		RespondErrorMsg(c, http.StatusInternalServerError, "internal_error", "something went wrong, please try again")
		return
	}

	RespondOK(c, gin.H{"reply": messageReply{
		Text:      reply.Text,
		Degraded:  reply.Degraded,
		Escalated: reply.Escalated,
	}})
}
