// Package rag implements retrieval over the vector store: encode the
// query, fetch nearest chunks, and keep only those above the similarity
// threshold.
package rag

import (
	"context"
	"fmt"
	"log"

	"evalrag/internal/model"
	"evalrag/internal/vectorstore"
)

const (
	DefaultTopK      = 3
	DefaultThreshold = 0.5
)

// QueryEncoder turns a query string into an embedding vector.
type QueryEncoder interface {
	EncodeQuery(ctx context.Context, text string) ([]float32, error)
}

// Retriever answers similarity queries against the chunk store.
type Retriever struct {
	encoder QueryEncoder
	store   vectorstore.Store
}

func NewRetriever(encoder QueryEncoder, store vectorstore.Store) *Retriever {
	return &Retriever{encoder: encoder, store: store}
}

// Stats summarizes the retrieval corpus for the stats endpoint.
type Stats struct {
	TotalChunks int64 `json:"total_chunks"`
}

func (r *Retriever) Stats(ctx context.Context) (*Stats, error) {
	count, err := r.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	return &Stats{TotalChunks: count}, nil
}

// Retrieve returns up to topK chunks whose similarity to the query is
// at least threshold, nearest first. An empty store short-circuits
// before the query is encoded.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, threshold float64, category string) ([]model.ContextItem, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	count, err := r.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	vec, err := r.encoder.EncodeQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	var where *vectorstore.Filter
	if category != "" {
		where = &vectorstore.Filter{Field: vectorstore.FilterCategory, Value: category}
	}

	res, err := r.store.Query(ctx, vec, topK, where)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}

	var items []model.ContextItem
	for i := range res.IDs {
		// Normalized embeddings: squared L2 distance and cosine
		// similarity are related by sim = 1 - d*d/2.
		d := res.Distances[i]
		sim := 1 - d*d/2
		if sim < threshold {
			continue
		}
		items = append(items, model.ContextItem{
			Content:  res.Documents[i],
			Metadata: res.Metadatas[i],
			Score:    sim,
		})
	}

	log.Printf("Retrieved %d/%d chunks above threshold %.2f for query", len(items), len(res.IDs), threshold)
	return items, nil
}
