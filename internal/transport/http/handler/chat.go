package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"evalrag/internal/app"
	"evalrag/internal/llm"
	"evalrag/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Completions streams a chat completion as server-sent events. Each
// content delta is framed as data: {"content": "..."}, the stream ends
// with data: [DONE], and failures mid-stream are reported as
// data: {"error": "..."} with no done marker.
func (h *ChatHandler) Completions(c *gin.Context) {
	var req app.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	if !req.StreamEnabled() {
		content, err := h.chatService.Chat(c.Request.Context(), &req)
		if err != nil {
			h.writeChatError(c, err)
			return
		}
		response.OK(c, gin.H{"content": content, "done": true})
		return
	}

	stream, err := h.chatService.StreamChat(c.Request.Context(), &req)
	if err != nil {
		h.writeChatError(c, err)
		return
	}
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
			fmt.Fprint(c.Writer, "data: [DONE]\n\n")
			flusher.Flush()
			return
		}
	}
}

func (h *ChatHandler) writeChatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrNoUserMessage):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "chat request failed")
	}
}

func writeSSE(c *gin.Context, flusher http.Flusher, payload map[string]string) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", data)
	flusher.Flush()
}
