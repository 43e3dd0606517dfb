package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"evalrag/internal/repository"
	"evalrag/internal/transport/http/response"
)

type IngestLogHandler struct {
	repo *repository.IngestLogRepository
}

func NewIngestLogHandler(repo *repository.IngestLogRepository) *IngestLogHandler {
	return &IngestLogHandler{repo: repo}
}

func (h *IngestLogHandler) ListRecent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	events, err := h.repo.ListRecent(limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list ingest logs failed")
		return
	}
	response.OK(c, gin.H{
		"events": events,
		"total":  len(events),
	})
}
