// Package llm talks to an OpenAI-compatible chat completion backend,
// both blocking and as a server-sent event stream.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

type Client struct {
	httpClient *http.Client
}

func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
}

// EventType classifies a stream event.
type EventType string

const (
	EventContent EventType = "content"
	EventDone    EventType = "done"
	EventError   EventType = "error"
)

// Event is one unit of a completion stream. Content carries a text
// delta for EventContent and a message for EventError.
type Event struct {
	Type    EventType
	Content string
}

// Stream delivers completion deltas as they arrive. The channel ends
// with exactly one EventDone or EventError.
type Stream struct {
	events chan Event
	cancel context.CancelFunc
}

func (s *Stream) Events() <-chan Event { return s.events }

// Close abandons the stream. Safe to call after the channel is drained.
func (s *Stream) Close() { s.cancel() }

func (c *Client) Complete(ctx context.Context, cfg Config, messages []ChatMessage) (string, error) {
	resp, err := c.post(ctx, cfg, messages, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read llm response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("llm response status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse llm json failed: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty llm choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// Stream starts a streaming completion. Connection and status errors
// are delivered through the stream as a terminal EventError so callers
// have a single event loop to handle.
func (c *Client) Stream(ctx context.Context, cfg Config, messages []ChatMessage) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		events: make(chan Event),
		cancel: cancel,
	}
	go c.run(ctx, cfg, messages, s)
	return s
}

func (c *Client) run(ctx context.Context, cfg Config, messages []ChatMessage, s *Stream) {
	defer close(s.events)
	defer s.cancel()

	resp, err := c.post(ctx, cfg, messages, true)
	if err != nil {
		s.emit(ctx, Event{Type: EventError, Content: fmt.Sprintf("llm stream request failed: %v", err)})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		s.emit(ctx, Event{Type: EventError, Content: fmt.Sprintf("llm stream status %d: %s", resp.StatusCode, string(raw))})
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			s.emit(ctx, Event{Type: EventDone})
			return
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			log.Printf("Skipping malformed stream line: %v", err)
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		text := chunk.Choices[0].Delta.Content
		if text == "" {
			continue
		}
		if !s.emit(ctx, Event{Type: EventContent, Content: text}) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		s.emit(ctx, Event{Type: EventError, Content: fmt.Sprintf("scan llm stream failed: %v", err)})
		return
	}
	// Upstream closed without a [DONE] marker. Treat as complete.
	s.emit(ctx, Event{Type: EventDone})
}

func (s *Stream) emit(ctx context.Context, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) post(ctx context.Context, cfg Config, messages []ChatMessage, stream bool) (*http.Response, error) {
	reqBody := map[string]interface{}{
		"model":    cfg.Model,
		"messages": messages,
		"stream":   stream,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal llm request failed: %w", err)
	}

	url := strings.TrimRight(cfg.BaseURL, "/") + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build llm request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm request failed: %w", err)
	}
	return resp, nil
}
