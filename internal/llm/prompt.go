package llm

import (
	"fmt"
	"strings"

	"evalrag/internal/model"
)

// BuildRAGPrompt appends retrieved reference material to the user's
// question. Items are rendered in the order given.
func BuildRAGPrompt(items []model.ContextItem, question string) string {
	if len(items) == 0 {
		return question
	}

	var b strings.Builder
	b.WriteString(question)
	b.WriteString("\n\n参考資料:\n")
	for i, item := range items {
		name := item.Metadata.Filename
		if name == "" {
			name = "unknown"
		}
		b.WriteString(fmt.Sprintf("[参考資料 %d: %s]\n%s\n\n", i+1, name, item.Content))
	}
	return strings.TrimRight(b.String(), "\n")
}

// WithSystemPrompt prepends a system message unless the conversation
// already starts with one.
func WithSystemPrompt(messages []ChatMessage, systemPrompt string) []ChatMessage {
	if systemPrompt == "" {
		return messages
	}
	if len(messages) > 0 && messages[0].Role == RoleSystem {
		return messages
	}
	out := make([]ChatMessage, 0, len(messages)+1)
	out = append(out, ChatMessage{Role: RoleSystem, Content: systemPrompt})
	out = append(out, messages...)
	return out
}
