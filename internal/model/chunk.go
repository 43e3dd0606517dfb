package model

// ChunkMetadata is the fixed metadata schema persisted with every chunk.
// The JSON keys are part of the wire contract with downstream consumers
// and must not change.
type ChunkMetadata struct {
	Filename        string `json:"filename"`
	FileType        string `json:"file_type"`
	ChunkIndex      int    `json:"chunk_index"`
	TotalChunks     int    `json:"total_chunks"`
	UploadTimestamp string `json:"upload_timestamp"`
	CharCount       int    `json:"char_count"`
	Category        string `json:"category,omitempty"`
	Title           string `json:"title,omitempty"`
	// OriginalContent carries the full source text, set on the first chunk
	// of a document only. It allows reconstructing the document for editing
	// without keeping the uploaded file around.
	OriginalContent string `json:"original_content,omitempty"`
}

// Chunk is the unit of storage and retrieval: a bounded substring of a
// source document plus its position within that document.
type Chunk struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

// ContextItem is a retrieved chunk with its similarity score, used to
// ground a generated answer. Ephemeral, never persisted.
type ContextItem struct {
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
	Score    float64       `json:"score"`
}
