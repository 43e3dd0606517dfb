package model

import "time"

// Ingest event actions.
const (
	IngestActionUploaded = "uploaded"
	IngestActionDeleted  = "deleted"
	IngestActionReset    = "reset"
)

// IngestEvent is an audit record for a change to the document collection.
// Events are published to the message bus and persisted asynchronously.
type IngestEvent struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Action     string    `gorm:"size:32;not null;index" json:"action"`
	Filename   string    `gorm:"size:256;index" json:"filename"`
	ChunkCount int       `json:"chunk_count"`
	Detail     string    `gorm:"size:512" json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
