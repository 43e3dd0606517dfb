package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"evalrag/internal/settings"
	"evalrag/internal/transport/http/response"
)

type SettingsHandler struct {
	store *settings.Store
}

type UpdateSystemPromptRequest struct {
	SystemPrompt string `json:"system_prompt" binding:"required"`
}

func NewSettingsHandler(store *settings.Store) *SettingsHandler {
	return &SettingsHandler{store: store}
}

func (h *SettingsHandler) GetSystemPrompt(c *gin.Context) {
	prompt, err := h.store.SystemPrompt(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get system prompt failed")
		return
	}
	response.OK(c, gin.H{
		"system_prompt":  prompt,
		"default_prompt": settings.DefaultSystemPrompt,
	})
}

func (h *SettingsHandler) UpdateSystemPrompt(c *gin.Context) {
	var req UpdateSystemPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	if err := h.store.SetSystemPrompt(c.Request.Context(), req.SystemPrompt); err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "update system prompt failed")
		return
	}
	response.OK(c, gin.H{"message": "system prompt updated successfully"})
}

func (h *SettingsHandler) ResetSystemPrompt(c *gin.Context) {
	if err := h.store.SetSystemPrompt(c.Request.Context(), ""); err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "reset system prompt failed")
		return
	}
	response.OK(c, gin.H{
		"message":       "system prompt reset to default",
		"system_prompt": settings.DefaultSystemPrompt,
	})
}
