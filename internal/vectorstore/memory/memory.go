// Package memory provides a mutex-guarded, brute-force in-memory vector
// store. It backs tests and the "memory" driver for running without an
// external vector database.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"evalrag/internal/model"
	"evalrag/internal/vectorstore"
)

type record struct {
	id       string
	document string
	vector   []float32
	metadata model.ChunkMetadata
}

// Store keeps all chunks in process memory.
type Store struct {
	mu      sync.RWMutex
	records []record
}

func New() *Store { return &Store{} }

var _ vectorstore.Store = (*Store)(nil)

func (s *Store) Add(ctx context.Context, ids []string, documents []string, embeddings [][]float32, metadatas []model.ChunkMetadata) error {
	if len(ids) != len(documents) || len(ids) != len(embeddings) || len(ids) != len(metadatas) {
		return fmt.Errorf("parallel array length mismatch: %d ids, %d documents, %d embeddings, %d metadatas",
			len(ids), len(documents), len(embeddings), len(metadatas))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]struct{}, len(s.records))
	for _, r := range s.records {
		existing[r.id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := existing[id]; ok {
			return fmt.Errorf("%w: %s", vectorstore.ErrDuplicateID, id)
		}
		existing[id] = struct{}{}
	}

	for i := range ids {
		vec := make([]float32, len(embeddings[i]))
		copy(vec, embeddings[i])
		s.records = append(s.records, record{
			id:       ids[i],
			document: documents[i],
			vector:   vec,
			metadata: metadatas[i],
		})
	}
	return nil
}

func (s *Store) Query(ctx context.Context, embedding []float32, nResults int, where *vectorstore.Filter) (*vectorstore.QueryResult, error) {
	if nResults <= 0 {
		nResults = 3
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		rec      record
		distance float64
	}
	var candidates []scored
	for _, r := range s.records {
		if !matches(r.metadata, where) {
			continue
		}
		candidates = append(candidates, scored{rec: r, distance: l2Distance(embedding, r.vector)})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].distance < candidates[j].distance })
	if len(candidates) > nResults {
		candidates = candidates[:nResults]
	}

	result := &vectorstore.QueryResult{}
	for _, c := range candidates {
		result.IDs = append(result.IDs, c.rec.id)
		result.Documents = append(result.Documents, c.rec.document)
		result.Metadatas = append(result.Metadatas, c.rec.metadata)
		result.Distances = append(result.Distances, c.distance)
	}
	return result, nil
}

func (s *Store) GetAll(ctx context.Context, where *vectorstore.Filter) (*vectorstore.GetResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := &vectorstore.GetResult{}
	for _, r := range s.records {
		if !matches(r.metadata, where) {
			continue
		}
		result.IDs = append(result.IDs, r.id)
		result.Documents = append(result.Documents, r.document)
		result.Metadatas = append(result.Metadatas, r.metadata)
	}
	return result, nil
}

func (s *Store) Delete(ctx context.Context, ids []string) (int, error) {
	targets := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		targets[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	removed := 0
	for _, r := range s.records {
		if _, ok := targets[r.id]; ok {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return removed, nil
}

func (s *Store) DeleteWhere(ctx context.Context, where vectorstore.Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	removed := 0
	for _, r := range s.records {
		if matches(r.metadata, &where) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return removed, nil
}

func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	return nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}

func matches(meta model.ChunkMetadata, where *vectorstore.Filter) bool {
	if where == nil {
		return true
	}
	switch where.Field {
	case vectorstore.FilterCategory:
		return meta.Category == where.Value
	case vectorstore.FilterFilename:
		return meta.Filename == where.Value
	default:
		return false
	}
}

func l2Distance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
