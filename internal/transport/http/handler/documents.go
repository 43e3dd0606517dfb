package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"evalrag/internal/app"
	"evalrag/internal/embedding"
	"evalrag/internal/transport/http/response"
)

const maxUploadSize = 10 << 20 // 10 MB

type DocumentHandler struct {
	docService *app.DocumentService
}

type UploadTextRequest struct {
	Text     string `json:"text" binding:"required"`
	Filename string `json:"filename" binding:"required"`
}

type CreateDocumentRequest struct {
	Content  string            `json:"content" binding:"required"`
	Metadata map[string]string `json:"metadata"`
}

func NewDocumentHandler(docService *app.DocumentService) *DocumentHandler {
	return &DocumentHandler{docService: docService}
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if fileHeader.Size > maxUploadSize {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file too large")
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "open uploaded file failed")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "read uploaded file failed")
		return
	}

	result, err := h.docService.UploadFile(
		c.Request.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		data,
	)
	if err != nil {
		h.writeServiceError(c, err, "upload document failed")
		return
	}
	response.OK(c, result)
}

func (h *DocumentHandler) UploadText(c *gin.Context) {
	var req UploadTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.docService.UploadText(c.Request.Context(), req.Text, req.Filename)
	if err != nil {
		h.writeServiceError(c, err, "upload text failed")
		return
	}
	response.OK(c, result)
}

func (h *DocumentHandler) Create(c *gin.Context) {
	var req CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.docService.Create(
		c.Request.Context(),
		req.Content,
		req.Metadata["title"],
		req.Metadata["category"],
	)
	if err != nil {
		h.writeServiceError(c, err, "create document failed")
		return
	}
	response.OK(c, result)
}

func (h *DocumentHandler) List(c *gin.Context) {
	documents, err := h.docService.List(c.Request.Context(), c.Query("category"))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list documents failed")
		return
	}
	response.OK(c, gin.H{
		"documents":   documents,
		"total_count": len(documents),
	})
}

func (h *DocumentHandler) ListChunks(c *gin.Context) {
	chunks, err := h.docService.ListChunks(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list chunks failed")
		return
	}
	response.OK(c, gin.H{
		"documents": chunks,
		"total":     len(chunks),
	})
}

func (h *DocumentHandler) Content(c *gin.Context) {
	content, err := h.docService.Content(c.Request.Context(), c.Param("filename"))
	if err != nil {
		h.writeServiceError(c, err, "get document content failed")
		return
	}
	response.OK(c, content)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	removed, err := h.docService.DeleteByFilename(c.Request.Context(), c.Param("filename"))
	if err != nil {
		h.writeServiceError(c, err, "delete document failed")
		return
	}
	response.OK(c, gin.H{"chunks_deleted": removed})
}

func (h *DocumentHandler) DeleteByID(c *gin.Context) {
	if err := h.docService.DeleteByID(c.Request.Context(), c.Param("id")); err != nil {
		h.writeServiceError(c, err, "delete chunk failed")
		return
	}
	response.OK(c, gin.H{"deleted": true})
}

func (h *DocumentHandler) Reset(c *gin.Context) {
	if err := h.docService.Reset(c.Request.Context()); err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "reset collection failed")
		return
	}
	response.OK(c, gin.H{"message": "collection reset successfully"})
}

func (h *DocumentHandler) Count(c *gin.Context) {
	count, err := h.docService.Count(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "count chunks failed")
		return
	}
	response.OK(c, gin.H{"total_chunks": count})
}

func (h *DocumentHandler) writeServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput), errors.Is(err, app.ErrEmptyDocument):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrDocumentNotFound):
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
	case errors.Is(err, embedding.ErrLoadFailed):
		response.Error(c, http.StatusServiceUnavailable, response.CodeModelNotReady, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
