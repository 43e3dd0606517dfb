package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"evalrag/internal/app"
	"evalrag/internal/llm"
	"evalrag/internal/transport/http/response"
)

// LLMHandler exposes the chat backend directly: model information and
// plain prompt generation without retrieval.
type LLMHandler struct {
	chatService *app.ChatService
}

type GenerateRequest struct {
	Prompt       string `json:"prompt" binding:"required"`
	SystemPrompt string `json:"systemPrompt"`
}

func NewLLMHandler(chatService *app.ChatService) *LLMHandler {
	return &LLMHandler{chatService: chatService}
}

// Model reports the backend's currently loaded model.
func (h *LLMHandler) Model(c *gin.Context) {
	info, err := h.chatService.ModelInfo(c.Request.Context())
	if err != nil {
		if errors.Is(err, llm.ErrNoModel) {
			response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, "no model found")
			return
		}
		response.Error(c, http.StatusServiceUnavailable, response.CodeInternalServer, "llm server unavailable")
		return
	}
	c.JSON(http.StatusOK, info)
}

// Generate streams a completion for a bare prompt as server-sent events.
// Unlike the chat stream, completion is signaled by data: {"done": true}.
func (h *LLMHandler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	stream := h.chatService.StreamGenerate(c.Request.Context(), req.Prompt, req.SystemPrompt)
	defer stream.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "streaming unsupported")
		return
	}

	for ev := range stream.Events() {
		switch ev.Type {
		case llm.EventContent:
			writeSSE(c, flusher, map[string]string{"content": ev.Content})
		case llm.EventError:
			writeSSE(c, flusher, map[string]string{"error": ev.Content})
			return
		case llm.EventDone:
			writeSSEDone(c, flusher)
			return
		}
	}
}

func writeSSEDone(c *gin.Context, flusher http.Flusher) {
	fmt.Fprint(c.Writer, `data: {"done": true}`+"\n\n")
	flusher.Flush()
}

// GenerateSync waits for the complete response of a bare prompt.
func (h *LLMHandler) GenerateSync(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	content, err := h.chatService.Generate(c.Request.Context(), req.Prompt, req.SystemPrompt)
	if err != nil {
		response.Error(c, http.StatusServiceUnavailable, response.CodeInternalServer, "llm server unavailable")
		return
	}
	response.OK(c, gin.H{"content": content, "done": true})
}
