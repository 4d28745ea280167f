package handler

import (
	"errors"

	"github.com/concierge/gateway/internal/application/gateway"
	"github.com/concierge/gateway/internal/domain/directory"
	"github.com/concierge/gateway/internal/domain/shared"
	"github.com/concierge/gateway/internal/infrastructure/logger"
	"github.com/concierge/gateway/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WebhookHandler terminates the provider-facing webhook endpoints. Each
// channel adapter normalizes its provider payload into an InboundTurn and
// shapes the dispatcher's result back into the provider's response format.
type WebhookHandler struct {
	BaseHandler
	dispatcher *gateway.Dispatcher
}

// NewWebhookHandler creates a webhook handler
func NewWebhookHandler(dispatcher *gateway.Dispatcher) *WebhookHandler {
	return &WebhookHandler{dispatcher: dispatcher}
}

// HandleVoice processes a telephony webhook turn
// POST /webhooks/voice
func (h *WebhookHandler) HandleVoice(c *gin.Context) {
	var req dto.VoiceWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid voice webhook payload: "+err.Error())
		return
	}

	result, err := h.dispatcher.HandleTurn(c.Request.Context(), gateway.InboundTurn{
		ProviderEventID: req.EventID,
		SessionKey:      req.CallID,
		Address:         req.Called,
		Kind:            directory.ChannelVoice,
		Message:         req.Transcript,
	})
	if err != nil {
		h.logTurnFailure(c, "voice", req.CallID, err)
		// The call is live; a downstream failure is spoken and the call
		// ended rather than leaving the caller to the provider default.
		if errors.Is(err, shared.ErrDownstreamUnavailable) && result.Reply != "" {
			h.Success(c, dto.VoiceDirective{Action: "hangup", Say: result.Reply})
			return
		}
		h.HandleError(c, err)
		return
	}

	h.Success(c, voiceDirective(result))
}

// HandleMessaging processes a messaging webhook turn
// POST /webhooks/messaging
func (h *WebhookHandler) HandleMessaging(c *gin.Context) {
	var req dto.MessagingWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid messaging webhook payload: "+err.Error())
		return
	}

	// The thread identity pairs the contact with the tenant number, so two
	// contacts writing to the same number never share a session.
	sessionKey := req.From + ">" + req.To

	result, err := h.dispatcher.HandleTurn(c.Request.Context(), gateway.InboundTurn{
		ProviderEventID: req.MessageID,
		SessionKey:      sessionKey,
		Address:         req.To,
		Kind:            directory.ChannelMessaging,
		Message:         req.Body,
	})
	if err != nil {
		h.logTurnFailure(c, "messaging", sessionKey, err)
		h.HandleError(c, err)
		return
	}

	h.Success(c, turnResponse(result))
}

// HandleWeb processes a web chat webhook turn
// POST /webhooks/web
func (h *WebhookHandler) HandleWeb(c *gin.Context) {
	var req dto.WebWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid web webhook payload: "+err.Error())
		return
	}

	sessionKey := req.SiteKey + ">" + req.VisitorID

	result, err := h.dispatcher.HandleTurn(c.Request.Context(), gateway.InboundTurn{
		ProviderEventID: req.MessageID,
		SessionKey:      sessionKey,
		Address:         req.SiteKey,
		Kind:            directory.ChannelWeb,
		Message:         req.Body,
	})
	if err != nil {
		h.logTurnFailure(c, "web", sessionKey, err)
		h.HandleError(c, err)
		return
	}

	h.Success(c, turnResponse(result))
}

// voiceDirective maps a turn result to the telephony call-control document
func voiceDirective(result gateway.TurnResult) dto.VoiceDirective {
	switch result.Action {
	case gateway.ActionTransfer:
		return dto.VoiceDirective{
			Action:   "transfer",
			Say:      result.Reply,
			Transfer: result.TransferNumber,
		}
	case gateway.ActionEnd, gateway.ActionDeny:
		return dto.VoiceDirective{Action: "hangup", Say: result.Reply}
	case gateway.ActionDuplicate:
		// Redelivered call event; nothing to say, leave the call alone
		return dto.VoiceDirective{Action: "say"}
	default:
		return dto.VoiceDirective{Action: "say", Say: result.Reply}
	}
}

// turnResponse maps a turn result to the messaging/web reply payload
func turnResponse(result gateway.TurnResult) dto.TurnResponse {
	resp := dto.TurnResponse{
		Action: string(result.Action),
		Reply:  result.Reply,
	}
	if result.SessionID != uuid.Nil {
		resp.Session = result.SessionID.String()
	}
	return resp
}

// logTurnFailure records a failed turn with the request-scoped logger
func (h *WebhookHandler) logTurnFailure(c *gin.Context, channel, sessionKey string, err error) {
	logger.GetGinLogger(c).Warn("webhook turn failed",
		zap.String("channel", channel),
		zap.String("session_key", sessionKey),
		zap.Error(err),
	)
}
