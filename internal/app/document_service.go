package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"evalrag/internal/chunker"
	"evalrag/internal/model"
	"evalrag/internal/pkg/extract"
	"evalrag/internal/vectorstore"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrEmptyDocument    = errors.New("document text is empty")
	ErrDocumentNotFound = errors.New("document not found")
)

// DocumentEncoder produces embeddings for chunk texts.
type DocumentEncoder interface {
	EncodeDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// IngestEventPublisher receives knowledge base change notifications.
// Publishing is best effort and never fails an upload.
type IngestEventPublisher interface {
	Publish(ctx context.Context, event model.IngestEvent) error
}

type DocumentService struct {
	store        vectorstore.Store
	encoder      DocumentEncoder
	publisher    IngestEventPublisher
	chunkSize    int
	chunkOverlap int
}

func NewDocumentService(store vectorstore.Store, encoder DocumentEncoder, publisher IngestEventPublisher, chunkSize, chunkOverlap int) *DocumentService {
	if chunkSize <= 0 {
		chunkSize = chunker.DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = chunker.DefaultChunkOverlap
	}
	return &DocumentService{
		store:        store,
		encoder:      encoder,
		publisher:    publisher,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

type UploadResult struct {
	Message       string `json:"message"`
	DocumentCount int    `json:"document_count"`
	ChunkCount    int    `json:"chunk_count"`
}

type CreateResult struct {
	ID         string `json:"id"`
	Message    string `json:"message"`
	ChunkCount int    `json:"chunk_count"`
}

type DocumentSummary struct {
	Filename        string `json:"filename"`
	FileType        string `json:"file_type"`
	ChunkCount      int    `json:"chunk_count"`
	UploadTimestamp string `json:"upload_timestamp"`
	TotalChars      int    `json:"total_chars"`
}

type ChunkView struct {
	ChunkIndex int    `json:"chunk_index"`
	Content    string `json:"content"`
	CharCount  int    `json:"char_count"`
}

type DocumentContent struct {
	Filename        string      `json:"filename"`
	TotalChunks     int         `json:"total_chunks"`
	Chunks          []ChunkView `json:"chunks"`
	OriginalContent string      `json:"original_content,omitempty"`
}

type ChunkListItem struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Title     string `json:"title"`
	Category  string `json:"category"`
	Filename  string `json:"filename"`
	CreatedAt string `json:"created_at"`
}

// UploadFile extracts text from an uploaded file and indexes it.
func (s *DocumentService) UploadFile(ctx context.Context, filename, fileType string, data []byte) (*UploadResult, error) {
	if filename == "" || len(data) == 0 {
		return nil, ErrInvalidInput
	}

	text, err := extract.Text(data, fileType, filename)
	if err != nil {
		return nil, fmt.Errorf("extract text from %s failed: %w", filename, err)
	}

	count, err := s.index(ctx, text, filename, fileType, "", "")
	if err != nil {
		return nil, err
	}

	return &UploadResult{
		Message:       fmt.Sprintf("Successfully uploaded %s", filename),
		DocumentCount: 1,
		ChunkCount:    count,
	}, nil
}

// UploadText indexes raw text under the given filename. A .md suffix
// is added when the name carries no known extension.
func (s *DocumentService) UploadText(ctx context.Context, text, filename string) (*UploadResult, error) {
	if filename == "" {
		return nil, ErrInvalidInput
	}
	if !strings.HasSuffix(filename, ".md") && !strings.HasSuffix(filename, ".txt") {
		filename += ".md"
	}

	count, err := s.index(ctx, text, filename, "markdown", "", "")
	if err != nil {
		return nil, err
	}

	return &UploadResult{
		Message:       fmt.Sprintf("Text added to knowledge base: %s", filename),
		DocumentCount: 1,
		ChunkCount:    count,
	}, nil
}

// Create indexes plain content under a title and category.
func (s *DocumentService) Create(ctx context.Context, content, title, category string) (*CreateResult, error) {
	if title == "" {
		title = "Untitled"
	}
	if category == "" {
		category = "general"
	}
	filename := title + ".md"

	cleaned := chunker.Clean(content)
	if strings.TrimSpace(cleaned) == "" {
		return nil, ErrEmptyDocument
	}

	now := time.Now().UTC()
	ids, chunks, metas := chunker.Build(cleaned, filename, "markdown", s.chunkSize, s.chunkOverlap, now)
	for i := range metas {
		metas[i].Category = category
		metas[i].Title = title
	}

	if err := s.add(ctx, ids, chunks, metas, filename); err != nil {
		return nil, err
	}

	return &CreateResult{
		ID:         ids[0],
		Message:    fmt.Sprintf("Document '%s' created successfully", title),
		ChunkCount: len(chunks),
	}, nil
}

func (s *DocumentService) index(ctx context.Context, text, filename, fileType, category, title string) (int, error) {
	cleaned := chunker.Clean(text)
	if strings.TrimSpace(cleaned) == "" {
		return 0, ErrEmptyDocument
	}

	now := time.Now().UTC()
	ids, chunks, metas := chunker.Build(cleaned, filename, fileType, s.chunkSize, s.chunkOverlap, now)
	for i := range metas {
		metas[i].Category = category
		metas[i].Title = title
	}

	if err := s.add(ctx, ids, chunks, metas, filename); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

func (s *DocumentService) add(ctx context.Context, ids, chunks []string, metas []model.ChunkMetadata, filename string) error {
	log.Printf("Generating embeddings for %d chunks of %s", len(chunks), filename)
	embeddings, err := s.encoder.EncodeDocuments(ctx, chunks)
	if err != nil {
		return fmt.Errorf("encode chunks failed: %w", err)
	}

	if err := s.store.Add(ctx, ids, chunks, embeddings, metas); err != nil {
		return fmt.Errorf("store chunks failed: %w", err)
	}

	s.notify(ctx, model.IngestEvent{
		Action:     model.IngestActionUploaded,
		Filename:   filename,
		ChunkCount: len(chunks),
	})
	return nil
}

func (s *DocumentService) notify(ctx context.Context, event model.IngestEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Printf("Failed to publish ingest event for %s: %v", event.Filename, err)
	}
}

// List groups indexed chunks into per-file summaries.
func (s *DocumentService) List(ctx context.Context, category string) ([]DocumentSummary, error) {
	var where *vectorstore.Filter
	if category != "" {
		where = &vectorstore.Filter{Field: vectorstore.FilterCategory, Value: category}
	}

	res, err := s.store.GetAll(ctx, where)
	if err != nil {
		return nil, fmt.Errorf("list chunks failed: %w", err)
	}

	byFile := make(map[string]*DocumentSummary)
	var order []string
	for _, meta := range res.Metadatas {
		name := meta.Filename
		if name == "" {
			name = "unknown"
		}
		summary, ok := byFile[name]
		if !ok {
			summary = &DocumentSummary{
				Filename:        name,
				FileType:        meta.FileType,
				UploadTimestamp: meta.UploadTimestamp,
			}
			byFile[name] = summary
			order = append(order, name)
		}
		summary.ChunkCount++
		summary.TotalChars += meta.CharCount
	}

	summaries := make([]DocumentSummary, 0, len(order))
	for _, name := range order {
		summaries = append(summaries, *byFile[name])
	}
	return summaries, nil
}

// ListChunks returns every chunk with a content preview.
func (s *DocumentService) ListChunks(ctx context.Context) ([]ChunkListItem, error) {
	res, err := s.store.GetAll(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list chunks failed: %w", err)
	}

	items := make([]ChunkListItem, 0, len(res.IDs))
	for i, id := range res.IDs {
		meta := res.Metadatas[i]
		title := meta.Title
		if title == "" {
			title = meta.Filename
		}
		if title == "" {
			title = "Untitled"
		}
		items = append(items, ChunkListItem{
			ID:        id,
			Content:   preview(res.Documents[i]),
			Title:     title,
			Category:  meta.Category,
			Filename:  meta.Filename,
			CreatedAt: meta.UploadTimestamp,
		})
	}
	return items, nil
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= 200 {
		return text
	}
	return string(runes[:200]) + "..."
}

// Content returns all chunks of one document, ordered by chunk index.
func (s *DocumentService) Content(ctx context.Context, filename string) (*DocumentContent, error) {
	res, err := s.store.GetAll(ctx, &vectorstore.Filter{Field: vectorstore.FilterFilename, Value: filename})
	if err != nil {
		return nil, fmt.Errorf("get chunks failed: %w", err)
	}
	if len(res.IDs) == 0 {
		return nil, ErrDocumentNotFound
	}

	content := &DocumentContent{Filename: filename}
	for i := range res.IDs {
		meta := res.Metadatas[i]
		content.Chunks = append(content.Chunks, ChunkView{
			ChunkIndex: meta.ChunkIndex,
			Content:    res.Documents[i],
			CharCount:  meta.CharCount,
		})
		if meta.ChunkIndex == 0 && meta.OriginalContent != "" {
			content.OriginalContent = meta.OriginalContent
		}
	}
	sort.Slice(content.Chunks, func(i, j int) bool {
		return content.Chunks[i].ChunkIndex < content.Chunks[j].ChunkIndex
	})
	content.TotalChunks = len(content.Chunks)
	return content, nil
}

// DeleteByFilename removes every chunk of a document.
func (s *DocumentService) DeleteByFilename(ctx context.Context, filename string) (int, error) {
	if filename == "" {
		return 0, ErrInvalidInput
	}
	removed, err := s.store.DeleteWhere(ctx, vectorstore.Filter{Field: vectorstore.FilterFilename, Value: filename})
	if err != nil {
		return 0, fmt.Errorf("delete chunks failed: %w", err)
	}
	if removed == 0 {
		return 0, ErrDocumentNotFound
	}

	s.notify(ctx, model.IngestEvent{
		Action:     model.IngestActionDeleted,
		Filename:   filename,
		ChunkCount: removed,
	})
	return removed, nil
}

// DeleteByID removes a single chunk.
func (s *DocumentService) DeleteByID(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidInput
	}
	if _, err := s.store.Delete(ctx, []string{id}); err != nil {
		return fmt.Errorf("delete chunk failed: %w", err)
	}
	return nil
}

// Reset drops every indexed chunk.
func (s *DocumentService) Reset(ctx context.Context) error {
	if err := s.store.Reset(ctx); err != nil {
		return fmt.Errorf("reset store failed: %w", err)
	}
	s.notify(ctx, model.IngestEvent{Action: model.IngestActionReset})
	return nil
}

func (s *DocumentService) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}
