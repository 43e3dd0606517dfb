package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalrag/internal/app"
	"evalrag/internal/llm"
	"evalrag/internal/rag"
	"evalrag/internal/vectorstore/memory"
)

type noopEncoder struct{}

func (noopEncoder) EncodeQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type noopPrompts struct{}

func (noopPrompts) SystemPrompt(ctx context.Context) (string, error) { return "", nil }

func newChatRouter(t *testing.T, upstream string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	retriever := rag.NewRetriever(noopEncoder{}, memory.New())
	svc := app.NewChatService(
		llm.NewClient(),
		llm.Config{BaseURL: upstream, Model: "test"},
		retriever,
		noopPrompts{},
		3,
		0.5,
	)

	router := gin.New()
	router.POST("/api/chat/completions", NewChatHandler(svc).Completions)
	return router
}

func TestCompletionsStreamsSimplifiedSSE(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"こん\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"にちは\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer upstream.Close()

	router := newChatRouter(t, upstream.URL)

	body := `{"messages":[{"role":"user","content":"挨拶して"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	out := rec.Body.String()
	assert.Contains(t, out, `data: {"content":"こん"}`+"\n\n")
	assert.Contains(t, out, `data: {"content":"にちは"}`+"\n\n")
	assert.True(t, strings.HasSuffix(out, "data: [DONE]\n\n"))
	assert.Equal(t, 1, strings.Count(out, "[DONE]"))
}

func TestCompletionsHonorsNonStreamRequest(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"完了した回答"}}]}`)
	}))
	defer upstream.Close()

	router := newChatRouter(t, upstream.URL)

	body := `{"messages":[{"role":"user","content":"質問"}],"stream":false}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"content":"完了した回答"`)
	assert.Contains(t, rec.Body.String(), `"done":true`)
	assert.NotContains(t, rec.Body.String(), "[DONE]")
}

func TestCompletionsReportsUpstreamFailureAsErrorEvent(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusBadGateway)
	}))
	defer upstream.Close()

	router := newChatRouter(t, upstream.URL)

	body := `{"messages":[{"role":"user","content":"質問"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	out := rec.Body.String()
	assert.Contains(t, out, `"error"`)
	assert.NotContains(t, out, "[DONE]")
}

func TestCompletionsRejectsMissingUserMessage(t *testing.T) {
	router := newChatRouter(t, "http://127.0.0.1:1")

	body := `{"messages":[{"role":"assistant","content":"answer"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
