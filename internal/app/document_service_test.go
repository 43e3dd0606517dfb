package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalrag/internal/model"
	"evalrag/internal/vectorstore/memory"
)

type fakeEncoder struct {
	calls int
}

func (f *fakeEncoder) EncodeDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (f *fakeEncoder) EncodeQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type recordingPublisher struct {
	events []model.IngestEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event model.IngestEvent) error {
	p.events = append(p.events, event)
	return nil
}

func newTestService() (*DocumentService, *memory.Store, *recordingPublisher) {
	store := memory.New()
	pub := &recordingPublisher{}
	svc := NewDocumentService(store, &fakeEncoder{}, pub, 1000, 200)
	return svc, store, pub
}

func TestUploadTextIndexesAndPublishes(t *testing.T) {
	svc, store, pub := newTestService()

	result, err := svc.UploadText(context.Background(), "評価基準についての説明です。", "guide")
	require.NoError(t, err)
	assert.Equal(t, 1, result.ChunkCount)
	assert.Contains(t, result.Message, "guide.md")

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	require.Len(t, pub.events, 1)
	assert.Equal(t, model.IngestActionUploaded, pub.events[0].Action)
	assert.Equal(t, "guide.md", pub.events[0].Filename)
}

func TestUploadTextKeepsKnownExtension(t *testing.T) {
	svc, _, _ := newTestService()

	result, err := svc.UploadText(context.Background(), "本文", "notes.txt")
	require.NoError(t, err)
	assert.Contains(t, result.Message, "notes.txt")
}

func TestUploadTextRejectsEmpty(t *testing.T) {
	svc, _, pub := newTestService()

	_, err := svc.UploadText(context.Background(), "   \n\n  ", "empty")
	require.ErrorIs(t, err, ErrEmptyDocument)
	assert.Empty(t, pub.events)
}

func TestCreateAppliesTitleAndCategory(t *testing.T) {
	svc, store, _ := newTestService()

	result, err := svc.Create(context.Background(), "カテゴリ付きの本文です。", "規程", "hr")
	require.NoError(t, err)
	assert.NotEmpty(t, result.ID)

	res, err := store.GetAll(context.Background(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.Metadatas)
	assert.Equal(t, "hr", res.Metadatas[0].Category)
	assert.Equal(t, "規程", res.Metadatas[0].Title)
	assert.Equal(t, "規程.md", res.Metadatas[0].Filename)
}

func TestListGroupsByFilename(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.UploadText(ctx, "first document", "a.md")
	require.NoError(t, err)
	_, err = svc.UploadText(ctx, "second document", "b.md")
	require.NoError(t, err)

	docs, err := svc.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a.md", docs[0].Filename)
	assert.Equal(t, 1, docs[0].ChunkCount)
}

func TestContentReturnsOrderedChunksWithOriginal(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	text := "元の本文です。"
	_, err := svc.UploadText(ctx, text, "doc.md")
	require.NoError(t, err)

	content, err := svc.Content(ctx, "doc.md")
	require.NoError(t, err)
	assert.Equal(t, "doc.md", content.Filename)
	assert.Equal(t, 1, content.TotalChunks)
	assert.Equal(t, text, content.OriginalContent)
	assert.Equal(t, 0, content.Chunks[0].ChunkIndex)

	_, err = svc.Content(ctx, "missing.md")
	require.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestDeleteByFilename(t *testing.T) {
	svc, store, pub := newTestService()
	ctx := context.Background()

	_, err := svc.UploadText(ctx, "to be deleted", "gone.md")
	require.NoError(t, err)

	removed, err := svc.DeleteByFilename(ctx, "gone.md")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	require.Len(t, pub.events, 2)
	assert.Equal(t, model.IngestActionDeleted, pub.events[1].Action)

	_, err = svc.DeleteByFilename(ctx, "gone.md")
	require.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestResetPublishesEvent(t *testing.T) {
	svc, store, pub := newTestService()
	ctx := context.Background()

	_, err := svc.UploadText(ctx, "some text", "x.md")
	require.NoError(t, err)

	require.NoError(t, svc.Reset(ctx))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
	assert.Equal(t, model.IngestActionReset, pub.events[len(pub.events)-1].Action)
}
