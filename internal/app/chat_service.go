package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"evalrag/internal/llm"
	"evalrag/internal/model"
	"evalrag/internal/rag"
	"evalrag/internal/settings"
)

var ErrNoUserMessage = errors.New("no user message found")

// SystemPromptSource supplies the current chat system prompt.
type SystemPromptSource interface {
	SystemPrompt(ctx context.Context) (string, error)
}

type ChatService struct {
	llmClient *llm.Client
	llmConfig llm.Config
	retriever *rag.Retriever
	prompts   SystemPromptSource
	topK      int
	threshold float64
}

func NewChatService(client *llm.Client, cfg llm.Config, retriever *rag.Retriever, prompts SystemPromptSource, topK int, threshold float64) *ChatService {
	if topK <= 0 {
		topK = rag.DefaultTopK
	}
	return &ChatService{
		llmClient: client,
		llmConfig: cfg,
		retriever: retriever,
		prompts:   prompts,
		topK:      topK,
		threshold: threshold,
	}
}

// ChatRequest is the inbound chat completion payload.
type ChatRequest struct {
	Messages []llm.ChatMessage `json:"messages"`
	UseRAG   bool              `json:"use_rag"`
	TopK     int               `json:"top_k"`
	Category string            `json:"category"`
	// Stream selects SSE delivery. Absent means true.
	Stream *bool `json:"stream"`
}

// StreamEnabled reports whether the client asked for a streamed response.
func (r *ChatRequest) StreamEnabled() bool {
	return r.Stream == nil || *r.Stream
}

// Prepare augments the conversation with retrieved context and the
// system prompt. The returned messages are ready to send to the LLM.
func (s *ChatService) Prepare(ctx context.Context, req *ChatRequest) ([]llm.ChatMessage, error) {
	latest := -1
	for i, msg := range req.Messages {
		if msg.Role == llm.RoleUser {
			latest = i
		}
	}
	if latest < 0 {
		return nil, ErrNoUserMessage
	}

	messages := make([]llm.ChatMessage, len(req.Messages))
	copy(messages, req.Messages)

	if req.UseRAG {
		items, err := s.retrieveContext(ctx, messages[latest].Content, req)
		if err != nil {
			return nil, err
		}
		if len(items) > 0 {
			messages[latest] = llm.ChatMessage{
				Role:    llm.RoleUser,
				Content: llm.BuildRAGPrompt(items, messages[latest].Content),
			}
		}
	}

	prompt, err := s.prompts.SystemPrompt(ctx)
	if err != nil {
		log.Printf("Failed to load system prompt, using default: %v", err)
		prompt = settings.DefaultSystemPrompt
	}
	return llm.WithSystemPrompt(messages, prompt), nil
}

func (s *ChatService) retrieveContext(ctx context.Context, query string, req *ChatRequest) ([]model.ContextItem, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = s.topK
	}

	items, err := s.retriever.Retrieve(ctx, query, topK, s.threshold, req.Category)
	if err != nil {
		return nil, fmt.Errorf("retrieve context failed: %w", err)
	}
	return items, nil
}

// StreamChat prepares the conversation and opens a completion stream.
func (s *ChatService) StreamChat(ctx context.Context, req *ChatRequest) (*llm.Stream, error) {
	messages, err := s.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.llmClient.Stream(ctx, s.llmConfig, messages), nil
}

// Chat prepares the conversation and waits for the full completion.
func (s *ChatService) Chat(ctx context.Context, req *ChatRequest) (string, error) {
	messages, err := s.Prepare(ctx, req)
	if err != nil {
		return "", err
	}
	return s.llmClient.Complete(ctx, s.llmConfig, messages)
}

// promptMessages builds a one-shot conversation from a bare prompt,
// bypassing retrieval and the stored system prompt.
func promptMessages(prompt, systemPrompt string) []llm.ChatMessage {
	var messages []llm.ChatMessage
	if systemPrompt != "" {
		messages = append(messages, llm.ChatMessage{Role: llm.RoleSystem, Content: systemPrompt})
	}
	return append(messages, llm.ChatMessage{Role: llm.RoleUser, Content: prompt})
}

// StreamGenerate opens a completion stream for a raw prompt.
func (s *ChatService) StreamGenerate(ctx context.Context, prompt, systemPrompt string) *llm.Stream {
	return s.llmClient.Stream(ctx, s.llmConfig, promptMessages(prompt, systemPrompt))
}

// Generate waits for the full completion of a raw prompt.
func (s *ChatService) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	return s.llmClient.Complete(ctx, s.llmConfig, promptMessages(prompt, systemPrompt))
}

// ModelInfo reports what model the chat backend is serving.
func (s *ChatService) ModelInfo(ctx context.Context) (llm.ModelInfo, error) {
	return s.llmClient.ModelInfo(ctx, s.llmConfig)
}
