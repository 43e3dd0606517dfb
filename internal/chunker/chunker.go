// Package chunker splits document text into overlapping, sentence-aware
// chunks and builds the per-chunk metadata persisted alongside them.
package chunker

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"evalrag/internal/model"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Sentence terminators considered when searching for a cut point. Full-width
// variants matter for Japanese documents.
var sentenceEnders = []rune{'。', '．', '！', '？', '.', '!', '?', '\n'}

var (
	spaceRuns   = regexp.MustCompile(`[^\S\n]+`)
	newlineRuns = regexp.MustCompile(`\n{3,}`)
)

// Split cuts text into chunks of at most size runes with the given overlap.
// For non-terminal chunks it prefers to cut at the right-most sentence
// terminator found in the final 20% of the window, so sentences are not
// split mid-way. Pure: the same input always yields the same chunks.
func Split(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = size / 5
		}
	}

	runes := []rune(text)
	if len(runes) <= size {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end < len(runes) {
			// Search the last 20% of the window for a sentence boundary.
			searchStart := end - size/5
			if idx := lastSentenceEnd(runes, searchStart, end); idx > start {
				end = idx + 1
			}
		} else {
			end = len(runes)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// lastSentenceEnd returns the index of the right-most sentence terminator in
// runes[from:to), or -1 if none is found.
func lastSentenceEnd(runes []rune, from, to int) int {
	if from < 0 {
		from = 0
	}
	if to > len(runes) {
		to = len(runes)
	}
	for i := to - 1; i >= from; i-- {
		for _, e := range sentenceEnders {
			if runes[i] == e {
				return i
			}
		}
	}
	return -1
}

// Clean normalizes whitespace while preserving line structure: runs of
// spaces collapse to one, more than two consecutive newlines collapse to
// two, and every line is stripped of trailing/leading spaces.
func Clean(text string) string {
	text = spaceRuns.ReplaceAllString(text, " ")
	text = newlineRuns.ReplaceAllString(text, "\n\n")
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// DocumentID derives a unique chunk id from the source identity, the chunk
// index and the ingestion time.
func DocumentID(filename string, chunkIndex int, uploadedAt time.Time) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%d_%s", filename, chunkIndex, uploadedAt.Format(time.RFC3339Nano))))
	return hex.EncodeToString(sum[:])
}

// Build splits text and produces the parallel id/text/metadata slices the
// vector store expects. The first chunk's metadata carries the full original
// text so the document can be reconstructed later.
func Build(text, filename, fileType string, size, overlap int, uploadedAt time.Time) (ids []string, chunks []string, metas []model.ChunkMetadata) {
	chunks = Split(text, size, overlap)
	timestamp := uploadedAt.Format(time.RFC3339)

	ids = make([]string, len(chunks))
	metas = make([]model.ChunkMetadata, len(chunks))
	for i, chunk := range chunks {
		ids[i] = DocumentID(filename, i, uploadedAt)
		metas[i] = model.ChunkMetadata{
			Filename:        filename,
			FileType:        fileType,
			ChunkIndex:      i,
			TotalChunks:     len(chunks),
			UploadTimestamp: timestamp,
			CharCount:       len([]rune(chunk)),
		}
		if i == 0 {
			metas[i].OriginalContent = text
		}
	}
	return ids, chunks, metas
}
