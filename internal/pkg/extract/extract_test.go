package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextPlain(t *testing.T) {
	got, err := Text([]byte("hello world"), "text/plain", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
}

func TestTextFallsBackToFilenameExtension(t *testing.T) {
	got, err := Text([]byte("# heading"), "", "notes.md")
	require.NoError(t, err)
	assert.Equal(t, "# heading", got)
}

func TestTextJSONPrettyPrinted(t *testing.T) {
	got, err := Text([]byte(`{"b":1,"a":"x"}`), "application/json", "data.json")
	require.NoError(t, err)
	assert.Contains(t, got, "\n")
	assert.Contains(t, got, `"a": "x"`)
}

func TestTextInvalidJSONFails(t *testing.T) {
	_, err := Text([]byte(`{broken`), ".json", "data.json")
	require.Error(t, err)
}

func TestTextUnknownTypeTreatedAsPlain(t *testing.T) {
	got, err := Text([]byte("csv,like,content"), "text/csv", "data.csv")
	require.NoError(t, err)
	assert.Equal(t, "csv,like,content", got)
}

func TestTextDropsInvalidUTF8(t *testing.T) {
	got, err := Text([]byte{'o', 'k', 0xff, 0xfe}, ".txt", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}
