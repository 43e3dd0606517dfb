// Package extract turns uploaded file bytes into plain text based on
// the declared file type.
package extract

import (
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"evalrag/internal/pkg/pdfextract"
)

// Text extracts readable text from file content. fileType may be a
// MIME type or an extension; the filename extension is the fallback.
// Unknown types are treated as plain text.
func Text(data []byte, fileType, filename string) (string, error) {
	switch normalize(fileType, filename) {
	case "txt", "md", "markdown":
		return decodeUTF8(data), nil
	case "json":
		var parsed interface{}
		if err := json.Unmarshal(data, &parsed); err != nil {
			return "", fmt.Errorf("parse json failed: %w", err)
		}
		pretty, err := json.MarshalIndent(parsed, "", "  ")
		if err != nil {
			return "", fmt.Errorf("format json failed: %w", err)
		}
		return string(pretty), nil
	case "pdf":
		text, err := pdfextract.ExtractPages(data)
		if err != nil {
			log.Printf("Failed to extract PDF text from %s: %v", filename, err)
			return "", nil
		}
		return text, nil
	default:
		log.Printf("Unsupported file type %q, treating %s as plain text", fileType, filename)
		return decodeUTF8(data), nil
	}
}

func normalize(fileType, filename string) string {
	switch fileType {
	case "text/plain":
		return "txt"
	case "text/markdown":
		return "md"
	case "application/json":
		return "json"
	case "application/pdf":
		return "pdf"
	}
	t := strings.ToLower(strings.TrimPrefix(fileType, "."))
	if t != "" && !strings.Contains(t, "/") {
		return t
	}
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// decodeUTF8 drops invalid byte sequences instead of failing.
func decodeUTF8(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "")
}
