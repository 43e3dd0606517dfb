package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"evalrag/internal/app"
	"evalrag/internal/config"
	"evalrag/internal/embedding"
	"evalrag/internal/model"
	"evalrag/internal/rag"
	"evalrag/internal/transport/http/response"
)

type RAGHandler struct {
	retriever  *rag.Retriever
	docService *app.DocumentService
	provider   *embedding.Provider
	ragConfig  config.RAGConfig
}

type RAGQueryRequest struct {
	Query     string  `json:"query" binding:"required"`
	TopK      int     `json:"top_k"`
	Threshold float64 `json:"threshold"`
	Category  string  `json:"category"`
}

type RAGQueryResponse struct {
	Context        []model.ContextItem `json:"context"`
	Query          string              `json:"query"`
	RetrievedCount int                 `json:"retrieved_count"`
}

func NewRAGHandler(retriever *rag.Retriever, docService *app.DocumentService, provider *embedding.Provider, ragConfig config.RAGConfig) *RAGHandler {
	return &RAGHandler{
		retriever:  retriever,
		docService: docService,
		provider:   provider,
		ragConfig:  ragConfig,
	}
}

func (h *RAGHandler) Query(c *gin.Context) {
	var req RAGQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	topK := req.TopK
	if topK <= 0 {
		topK = h.ragConfig.TopK
	}
	threshold := req.Threshold
	if threshold == 0 {
		threshold = h.ragConfig.SimilarityThreshold
	}

	items, err := h.retriever.Retrieve(c.Request.Context(), req.Query, topK, threshold, req.Category)
	if err != nil {
		if errors.Is(err, embedding.ErrLoadFailed) {
			response.Error(c, http.StatusServiceUnavailable, response.CodeModelNotReady, err.Error())
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "rag query failed")
		return
	}
	if items == nil {
		items = []model.ContextItem{}
	}

	response.OK(c, RAGQueryResponse{
		Context:        items,
		Query:          req.Query,
		RetrievedCount: len(items),
	})
}

func (h *RAGHandler) Stats(c *gin.Context) {
	stats, err := h.retriever.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get rag stats failed")
		return
	}

	documents, err := h.docService.List(c.Request.Context(), "")
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get rag stats failed")
		return
	}

	var dimension interface{}
	if dim := h.provider.Dimension(); dim > 0 {
		dimension = dim
	}

	response.OK(c, gin.H{
		"total_chunks":         stats.TotalChunks,
		"unique_documents":     len(documents),
		"embedding_model":      h.provider.Status().ModelName,
		"embedding_dimension":  dimension,
		"chunk_size":           h.ragConfig.ChunkSize,
		"chunk_overlap":        h.ragConfig.ChunkOverlap,
		"top_k":                h.ragConfig.TopK,
		"similarity_threshold": h.ragConfig.SimilarityThreshold,
	})
}
