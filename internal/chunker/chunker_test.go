package chunker

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitShortTextSingleChunk(t *testing.T) {
	chunks := Split("  short text  ", 1000, 200)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0])
}

func TestSplitEmptyTextNoChunks(t *testing.T) {
	assert.Nil(t, Split("", 1000, 200))
	assert.Nil(t, Split("   \n\n  ", 1000, 200))
}

func TestSplitLongTextOverlappingWindows(t *testing.T) {
	// 2400 runes with no sentence terminators: windows advance by
	// size-overlap, giving chunks at 0, 800 and 1600.
	text := strings.Repeat("a", 2400)
	chunks := Split(text, 1000, 200)

	require.Len(t, chunks, 3)
	assert.Len(t, []rune(chunks[0]), 1000)
	assert.Len(t, []rune(chunks[1]), 1000)
	assert.Len(t, []rune(chunks[2]), 800)
}

func TestSplitPrefersSentenceBoundary(t *testing.T) {
	// A terminator inside the last 20% of the first window should end
	// the chunk there instead of at the hard size limit.
	text := strings.Repeat("a", 950) + "。" + strings.Repeat("b", 600)
	chunks := Split(text, 1000, 200)

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.True(t, strings.HasSuffix(chunks[0], "。"))
	assert.Len(t, []rune(chunks[0]), 951)
}

func TestSplitDeterministic(t *testing.T) {
	text := strings.Repeat("評価基準について説明します。", 300)
	first := Split(text, 1000, 200)
	second := Split(text, 1000, 200)
	assert.Equal(t, first, second)
}

func TestSplitNeverLosesTail(t *testing.T) {
	text := strings.Repeat("x", 3777)
	chunks := Split(text, 500, 100)

	var total int
	for _, c := range chunks {
		total += len([]rune(c))
	}
	// Overlap duplicates runes, so the sum must cover at least the input.
	assert.GreaterOrEqual(t, total, 3777)
	assert.True(t, strings.HasSuffix(chunks[len(chunks)-1], "x"))
}

func TestClean(t *testing.T) {
	in := "a   b\t c  \n\n\n\n  line two   \n\n three"
	assert.Equal(t, "a b c\n\nline two\n\nthree", Clean(in))
}

func TestDocumentIDStableAndDistinct(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, DocumentID("a.txt", 0, at), DocumentID("a.txt", 0, at))
	assert.NotEqual(t, DocumentID("a.txt", 0, at), DocumentID("a.txt", 1, at))
	assert.NotEqual(t, DocumentID("a.txt", 0, at), DocumentID("b.txt", 0, at))
	assert.NotEqual(t, DocumentID("a.txt", 0, at), DocumentID("a.txt", 0, at.Add(time.Second)))
}

func TestBuildMetadataInvariants(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	text := strings.Repeat("内容です。", 600)

	ids, chunks, metas := Build(text, "guide.md", "markdown", 1000, 200, at)

	require.NotEmpty(t, chunks)
	require.Len(t, ids, len(chunks))
	require.Len(t, metas, len(chunks))

	seen := make(map[string]struct{})
	for i, meta := range metas {
		assert.Equal(t, "guide.md", meta.Filename)
		assert.Equal(t, "markdown", meta.FileType)
		assert.Equal(t, i, meta.ChunkIndex)
		assert.Equal(t, len(chunks), meta.TotalChunks)
		assert.Equal(t, "2025-06-01T12:00:00Z", meta.UploadTimestamp)
		assert.Equal(t, len([]rune(chunks[i])), meta.CharCount)

		if i == 0 {
			assert.Equal(t, text, meta.OriginalContent)
		} else {
			assert.Empty(t, meta.OriginalContent)
		}

		_, dup := seen[ids[i]]
		assert.False(t, dup, "duplicate chunk id %s", ids[i])
		seen[ids[i]] = struct{}{}
	}
}
