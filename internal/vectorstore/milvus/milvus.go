// Package milvus implements the vector store on top of a Milvus collection.
package milvus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"evalrag/internal/model"
	"evalrag/internal/vectorstore"
)

// Collection field names.
const (
	FieldID       = "id"
	FieldDocument = "document"
	FieldMetadata = "metadata"
	FieldVector   = "vector"
)

const DefaultCollection = "knowledge_chunks"

// Store persists chunks in a Milvus collection with an HNSW index.
type Store struct {
	client     client.Client
	collection string
	dim        int
}

var _ vectorstore.Store = (*Store)(nil)

// New creates a Store and ensures the backing collection exists.
func New(ctx context.Context, c client.Client, collection string, dim int) (*Store, error) {
	if collection == "" {
		collection = DefaultCollection
	}
	s := &Store{client: c, collection: collection, dim: dim}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	exists, err := s.client.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", s.collection, err)
	}
	if exists {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: s.collection,
		Description:    "Knowledge base chunk vectors",
		Fields: []*entity.Field{
			{
				Name:       FieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       FieldDocument,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "65535"},
			},
			{
				Name:     FieldMetadata,
				DataType: entity.FieldTypeJSON,
			},
			{
				Name:     FieldVector,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", s.dim),
				},
			},
		},
	}

	if err := s.client.CreateCollection(ctx, schema, 1); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", s.collection, err)
	}

	idx, err := entity.NewIndexHNSW(entity.L2, 16, 200)
	if err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	if err := s.client.CreateIndex(ctx, s.collection, FieldVector, idx, false); err != nil {
		return fmt.Errorf("failed to create index on %s: %w", FieldVector, err)
	}

	if err := s.client.LoadCollection(ctx, s.collection, false); err != nil {
		return fmt.Errorf("failed to load collection %s: %w", s.collection, err)
	}

	log.Printf("Created and loaded collection: %s", s.collection)
	return nil
}

func (s *Store) Add(ctx context.Context, ids []string, documents []string, embeddings [][]float32, metadatas []model.ChunkMetadata) error {
	if len(ids) != len(documents) || len(ids) != len(embeddings) || len(ids) != len(metadatas) {
		return fmt.Errorf("parallel array length mismatch: %d ids, %d documents, %d embeddings, %d metadatas",
			len(ids), len(documents), len(embeddings), len(metadatas))
	}
	if len(ids) == 0 {
		return nil
	}

	existing, err := s.existingIDs(ctx, ids)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return fmt.Errorf("%w: %s", vectorstore.ErrDuplicateID, existing[0])
	}

	metaBytes := make([][]byte, len(metadatas))
	for i, m := range metadatas {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %s: %w", ids[i], err)
		}
		metaBytes[i] = b
	}

	columns := []entity.Column{
		entity.NewColumnVarChar(FieldID, ids),
		entity.NewColumnVarChar(FieldDocument, documents),
		entity.NewColumnJSONBytes(FieldMetadata, metaBytes),
		entity.NewColumnFloatVector(FieldVector, s.dim, embeddings),
	}

	if _, err := s.client.Insert(ctx, s.collection, "", columns...); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}
	if err := s.client.Flush(ctx, s.collection, false); err != nil {
		return fmt.Errorf("failed to flush collection: %w", err)
	}
	return nil
}

func (s *Store) existingIDs(ctx context.Context, ids []string) ([]string, error) {
	expr := fmt.Sprintf("%s in [%s]", FieldID, quoteList(ids))
	rs, err := s.client.Query(ctx, s.collection, []string{}, expr, []string{FieldID})
	if err != nil {
		return nil, fmt.Errorf("failed to query existing ids: %w", err)
	}
	col, ok := rs.GetColumn(FieldID).(*entity.ColumnVarChar)
	if !ok {
		return nil, nil
	}
	return col.Data(), nil
}

func (s *Store) Query(ctx context.Context, embedding []float32, nResults int, where *vectorstore.Filter) (*vectorstore.QueryResult, error) {
	if nResults <= 0 {
		nResults = 3
	}

	sp, err := entity.NewIndexHNSWSearchParam(100)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	results, err := s.client.Search(
		ctx,
		s.collection,
		[]string{},
		filterExpr(where),
		[]string{FieldID, FieldDocument, FieldMetadata},
		[]entity.Vector{entity.FloatVector(embedding)},
		FieldVector,
		entity.L2,
		nResults,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search collection: %w", err)
	}
	if len(results) == 0 || results[0].ResultCount == 0 {
		return &vectorstore.QueryResult{}, nil
	}

	res := results[0]
	idCol, ok := res.IDs.(*entity.ColumnVarChar)
	if !ok {
		return nil, fmt.Errorf("unexpected id column type %T", res.IDs)
	}
	docCol, _ := res.Fields.GetColumn(FieldDocument).(*entity.ColumnVarChar)
	metaCol, _ := res.Fields.GetColumn(FieldMetadata).(*entity.ColumnJSONBytes)

	out := &vectorstore.QueryResult{}
	for i := 0; i < res.ResultCount; i++ {
		out.IDs = append(out.IDs, idCol.Data()[i])

		doc := ""
		if docCol != nil && i < len(docCol.Data()) {
			doc = docCol.Data()[i]
		}
		out.Documents = append(out.Documents, doc)

		var meta model.ChunkMetadata
		if metaCol != nil && i < len(metaCol.Data()) {
			if err := json.Unmarshal(metaCol.Data()[i], &meta); err != nil {
				log.Printf("Failed to decode chunk metadata for %s: %v", idCol.Data()[i], err)
			}
		}
		out.Metadatas = append(out.Metadatas, meta)

		// Milvus reports squared L2 for float vectors.
		out.Distances = append(out.Distances, math.Sqrt(float64(res.Scores[i])))
	}
	return out, nil
}

func (s *Store) GetAll(ctx context.Context, where *vectorstore.Filter) (*vectorstore.GetResult, error) {
	expr := filterExpr(where)
	if expr == "" {
		expr = fmt.Sprintf(`%s != ""`, FieldID)
	}
	rs, err := s.client.Query(ctx, s.collection, []string{}, expr, []string{FieldID, FieldDocument, FieldMetadata})
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	out := &vectorstore.GetResult{}
	idCol, ok := rs.GetColumn(FieldID).(*entity.ColumnVarChar)
	if !ok {
		return out, nil
	}
	docCol, _ := rs.GetColumn(FieldDocument).(*entity.ColumnVarChar)
	metaCol, _ := rs.GetColumn(FieldMetadata).(*entity.ColumnJSONBytes)

	for i := range idCol.Data() {
		out.IDs = append(out.IDs, idCol.Data()[i])

		doc := ""
		if docCol != nil && i < len(docCol.Data()) {
			doc = docCol.Data()[i]
		}
		out.Documents = append(out.Documents, doc)

		var meta model.ChunkMetadata
		if metaCol != nil && i < len(metaCol.Data()) {
			if err := json.Unmarshal(metaCol.Data()[i], &meta); err != nil {
				log.Printf("Failed to decode chunk metadata for %s: %v", idCol.Data()[i], err)
			}
		}
		out.Metadatas = append(out.Metadatas, meta)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	existing, err := s.existingIDs(ctx, ids)
	if err != nil {
		return 0, err
	}
	if len(existing) == 0 {
		return 0, nil
	}
	pks := entity.NewColumnVarChar(FieldID, existing)
	if err := s.client.DeleteByPks(ctx, s.collection, "", pks); err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	return len(existing), nil
}

func (s *Store) DeleteWhere(ctx context.Context, where vectorstore.Filter) (int, error) {
	rs, err := s.client.Query(ctx, s.collection, []string{}, filterExpr(&where), []string{FieldID})
	if err != nil {
		return 0, fmt.Errorf("failed to query chunks for deletion: %w", err)
	}
	col, ok := rs.GetColumn(FieldID).(*entity.ColumnVarChar)
	if !ok || len(col.Data()) == 0 {
		return 0, nil
	}
	if err := s.client.DeleteByPks(ctx, s.collection, "", col); err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	return len(col.Data()), nil
}

func (s *Store) Reset(ctx context.Context) error {
	exists, err := s.client.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", s.collection, err)
	}
	if exists {
		if err := s.client.DropCollection(ctx, s.collection); err != nil {
			return fmt.Errorf("failed to drop collection %s: %w", s.collection, err)
		}
	}
	return s.ensureCollection(ctx)
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	stats, err := s.client.GetCollectionStatistics(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("failed to get collection statistics: %w", err)
	}
	n, err := strconv.ParseInt(stats["row_count"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse row_count %q: %w", stats["row_count"], err)
	}
	return n, nil
}

func filterExpr(where *vectorstore.Filter) string {
	if where == nil {
		return ""
	}
	value := strings.ReplaceAll(where.Value, `"`, `\"`)
	switch where.Field {
	case vectorstore.FilterCategory:
		return fmt.Sprintf(`%s["category"] == "%s"`, FieldMetadata, value)
	case vectorstore.FilterFilename:
		return fmt.Sprintf(`%s["filename"] == "%s"`, FieldMetadata, value)
	default:
		return ""
	}
}

func quoteList(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = strconv.Quote(id)
	}
	return strings.Join(quoted, ", ")
}
