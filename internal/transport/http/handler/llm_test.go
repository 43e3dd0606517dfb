package handler

import (
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

func newLLMRouter(t *testing.T, upstream string) *gin.Engine {
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

	h := NewLLMHandler(svc)
	router := gin.New()
	router.GET("/api/llm/model", h.Model)
	router.POST("/api/llm/generate", h.Generate)
	router.POST("/api/llm/generate/sync", h.GenerateSync)
	return router
}

func TestModelReportsUpstreamModelInfo(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/models", r.URL.Path)
		fmt.Fprint(w, `{"data":[{"id":"/models/gemma-3-4b-it.gguf","meta":{"n_params":4300000000,"n_ctx_train":8192}}]}`)
	}))
	defer upstream.Close()

	router := newLLMRouter(t, upstream.URL)

	req := httptest.NewRequest(http.MethodGet, "/api/llm/model", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, `"modelName":"gemma-3-4b-it"`)
	assert.Contains(t, out, `"modelPath":"gemma-3-4b-it.gguf"`)
	assert.Contains(t, out, `"parametersFormatted":"4.3B"`)
	assert.Contains(t, out, `"contextSize":8192`)
}

func TestModelMapsUpstreamOutageTo503(t *testing.T) {
	router := newLLMRouter(t, "http://127.0.0.1:1")

	req := httptest.NewRequest(http.MethodGet, "/api/llm/model", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGenerateStreamsWithDoneMarker(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"generated\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer upstream.Close()

	router := newLLMRouter(t, upstream.URL)

	body := `{"prompt":"書いて","systemPrompt":"丁寧に"}`
	req := httptest.NewRequest(http.MethodPost, "/api/llm/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, `data: {"content":"generated"}`+"\n\n")
	assert.True(t, strings.HasSuffix(out, `data: {"done": true}`+"\n\n"))
}

func TestGenerateSyncReturnsFullCompletion(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"全文"}}]}`)
	}))
	defer upstream.Close()

	router := newLLMRouter(t, upstream.URL)

	body := `{"prompt":"書いて"}`
	req := httptest.NewRequest(http.MethodPost, "/api/llm/generate/sync", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"content":"全文"`)
	assert.Contains(t, rec.Body.String(), `"done":true`)
}

func TestGenerateRequiresPrompt(t *testing.T) {
	router := newLLMRouter(t, "http://127.0.0.1:1")

	req := httptest.NewRequest(http.MethodPost, "/api/llm/generate/sync", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
