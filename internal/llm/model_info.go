package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrNoModel is returned when the backend reports an empty model list.
var ErrNoModel = errors.New("no model loaded")

// ModelInfo describes the model the chat backend currently serves.
// Field names follow what frontend clients consume.
type ModelInfo struct {
	ModelName           string `json:"modelName"`
	ModelPath           string `json:"modelPath"`
	Parameters          int64  `json:"parameters"`
	ParametersFormatted string `json:"parametersFormatted"`
	ContextSize         int    `json:"contextSize"`
}

// ModelInfo queries the backend's /v1/models listing and summarizes the
// first entry. llama.cpp style servers report the model file path as the
// id and training metadata under meta.
func (c *Client) ModelInfo(ctx context.Context, cfg Config) (ModelInfo, error) {
	url := strings.TrimRight(cfg.BaseURL, "/") + "/v1/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("build models request failed: %w", err)
	}
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("models request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("read models response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return ModelInfo{}, fmt.Errorf("models response status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		Data []struct {
			ID   string `json:"id"`
			Meta struct {
				NParams   int64 `json:"n_params"`
				NCtxTrain int   `json:"n_ctx_train"`
			} `json:"meta"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return ModelInfo{}, fmt.Errorf("parse models json failed: %w", err)
	}
	if len(parsed.Data) == 0 {
		return ModelInfo{}, ErrNoModel
	}

	entry := parsed.Data[0]
	filename := entry.ID
	if i := strings.LastIndex(filename, "/"); i >= 0 {
		filename = filename[i+1:]
	}
	name := strings.TrimSuffix(filename, ".gguf")
	if name == "" {
		name = "Unknown Model"
	}

	formatted := "Unknown"
	if entry.Meta.NParams > 0 {
		formatted = fmt.Sprintf("%.1fB", float64(entry.Meta.NParams)/1_000_000_000)
	}

	return ModelInfo{
		ModelName:           name,
		ModelPath:           filename,
		Parameters:          entry.Meta.NParams,
		ParametersFormatted: formatted,
		ContextSize:         entry.Meta.NCtxTrain,
	}, nil
}
