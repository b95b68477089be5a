package handlers

import (
	"context"
	"errors"
	"net/http"

	"schedulebot/models"
	"schedulebot/services/reservation"
	"schedulebot/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ToolDispatcher runs a voice-agent tool call.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, req models.ToolRequest) (any, error)
}

type ToolsHandler struct {
	tools ToolDispatcher
}

func NewToolsHandler(tools ToolDispatcher) *ToolsHandler {
	return &ToolsHandler{tools: tools}
}

// ToolsWebhookHandler runs one tool call and wraps its result in the results
// envelope. Tool failures travel inside the result with a 200.
func (h *ToolsHandler) ToolsWebhookHandler(c *gin.Context) {
	var req models.ToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid tool call", err.Error())
		return
	}

	res, err := h.tools.Dispatch(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, reservation.ErrUnknownTool) {
			utils.JSONError(c, http.StatusBadRequest, "Unknown tool", err.Error())
			return
		}
		getLogger(c).Error("Tool call failed", zap.String("tool", req.Tool), zap.Error(err))
		utils.JSONError(c, http.StatusInternalServerError, "Tool call failed", err.Error())
		return
	}

	c.JSON(http.StatusOK, models.ToolResponse{
		Results: []models.ToolResult{{ToolCallID: req.ToolCallID, Result: res}},
	})
}
