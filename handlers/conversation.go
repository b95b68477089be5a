package handlers

import (
	"context"
	"net/http"

	"schedulebot/models"
	"schedulebot/utils"

	"github.com/gin-gonic/gin"
	"github.com/twilio/twilio-go/twiml"
	"go.uber.org/zap"
)

// Conversation answers one inbound message.
type Conversation interface {
	Handle(ctx context.Context, msg models.InboundMessage) (models.Reply, error)
}

type ConversationHandler struct {
	conversation Conversation
}

func NewConversationHandler(conversation Conversation) *ConversationHandler {
	return &ConversationHandler{conversation: conversation}
}

// twimlReply renders the messages as a messaging TwiML document.
func twimlReply(messages []string) (string, error) {
	verbs := make([]twiml.Element, 0, len(messages))
	for _, m := range messages {
		verbs = append(verbs, &twiml.MessagingMessage{Body: m})
	}
	return twiml.Messages(verbs)
}

// WhatsAppWebhookHandler handles Twilio's inbound message webhook. The reply
// is always sent as TwiML, including when the session store failed, so the
// user gets the apology instead of silence.
func (h *ConversationHandler) WhatsAppWebhookHandler(c *gin.Context) {
	logger := getLogger(c)
	from := c.PostForm("From")
	if from == "" {
		utils.JSONError(c, http.StatusBadRequest, "Missing sender", "the From field is required")
		return
	}

	msg := models.InboundMessage{
		UserKey: models.UserKeyFromAddress(from),
		Text:    c.PostForm("Body"),
	}
	reply, err := h.conversation.Handle(c.Request.Context(), msg)
	if err != nil {
		logger.Error("Conversation turn failed", zap.String("user", msg.UserKey), zap.Error(err))
	}
	doc, err := twimlReply(reply.Messages)
	if err != nil {
		utils.JSONError(c, http.StatusInternalServerError, "Failed to render reply", err.Error())
		return
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(doc))
}

// ConsoleMessageHandler drives the same conversation from JSON, for local
// testing without a messaging provider.
func (h *ConversationHandler) ConsoleMessageHandler(c *gin.Context) {
	var msg models.InboundMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	reply, err := h.conversation.Handle(c.Request.Context(), msg)
	if err != nil {
		getLogger(c).Error("Conversation turn failed", zap.String("user", msg.UserKey), zap.Error(err))
		c.JSON(http.StatusInternalServerError, reply)
		return
	}
	c.JSON(http.StatusOK, reply)
}
