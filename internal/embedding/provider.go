// Package embedding turns text into fixed-dimension, L2-normalized vectors
// using an OpenAI-compatible embedding server, with a lazy one-time load.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"
)

// State describes where the provider is in its load lifecycle.
type State string

const (
	StateNotLoaded   State = "not_loaded"
	StateDownloading State = "downloading"
	StateLoading     State = "loading"
	StateReady       State = "ready"
	StateError       State = "error"
)

var (
	// ErrLoadFailed is returned once the provider has entered the error
	// state. The failure is sticky: no further load attempt is made for
	// the lifetime of the process.
	ErrLoadFailed = errors.New("embedding model load failed")

	// ErrEncodeFailed wraps failures of individual encode calls after a
	// successful load.
	ErrEncodeFailed = errors.New("encode texts failed")
)

// Config holds the embedding server settings.
type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	BatchSize int
	Timeout   time.Duration
}

// Status is a non-blocking snapshot of the provider state, safe to request
// from any state.
type Status struct {
	State          State  `json:"status"`
	IsReady        bool   `json:"is_ready"`
	ModelName      string `json:"model_name"`
	Error          string `json:"error,omitempty"`
	ElapsedSeconds *int   `json:"elapsed_seconds,omitempty"`
	Dimension      int    `json:"dimension,omitempty"`
}

// Provider encodes text via the configured embedding server. The first
// encode triggers a guarded warm-up request that discovers the vector
// dimension; concurrent first callers await the same outcome.
type Provider struct {
	cfg        Config
	httpClient *http.Client

	mu        sync.Mutex
	state     State
	dim       int
	loadErr   error
	loadStart time.Time
	loadDone  chan struct{}
}

func NewProvider(cfg Config) *Provider {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Provider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		state:      StateNotLoaded,
	}
}

// Status reports the current load state without blocking.
func (p *Provider) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Status{
		State:     p.state,
		IsReady:   p.state == StateReady,
		ModelName: p.cfg.Model,
		Dimension: p.dim,
	}
	if p.loadErr != nil {
		st.Error = p.loadErr.Error()
	}
	if p.state == StateDownloading || p.state == StateLoading {
		elapsed := int(time.Since(p.loadStart).Seconds())
		st.ElapsedSeconds = &elapsed
	}
	return st
}

// Dimension returns the discovered vector dimension, 0 before load.
func (p *Provider) Dimension() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dim
}

// ensureLoaded performs the at-most-once warm-up. Exactly one caller runs
// the load; everyone else waits for its outcome. A failed load is final.
func (p *Provider) ensureLoaded(ctx context.Context) error {
	for {
		p.mu.Lock()
		switch p.state {
		case StateReady:
			p.mu.Unlock()
			return nil
		case StateError:
			err := p.loadErr
			p.mu.Unlock()
			return fmt.Errorf("%w: %v", ErrLoadFailed, err)
		case StateNotLoaded:
			p.state = StateDownloading
			p.loadStart = time.Now()
			p.loadDone = make(chan struct{})
			done := p.loadDone
			p.mu.Unlock()
			go p.load(ctx, done)
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		default: // downloading or loading by another caller
			done := p.loadDone
			p.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// load issues the warm-up request and records the terminal state. The
// request runs detached from the caller's context so that one canceled
// request cannot poison the load for every later caller; only the
// provider's own timeout bounds it.
func (p *Provider) load(ctx context.Context, done chan struct{}) {
	defer close(done)

	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.Timeout)
	defer cancel()

	log.Printf("loading embedding model: %s", p.cfg.Model)
	vectors, err := p.request(loadCtx, []string{"warmup"})

	p.mu.Lock()
	defer p.mu.Unlock()

	if err == nil {
		p.state = StateLoading
		if len(vectors) == 0 || len(vectors[0]) == 0 {
			err = errors.New("warm-up returned no embedding")
		}
	}
	if err != nil {
		log.Printf("embedding model load failed: %v", err)
		p.state = StateError
		p.loadErr = err
		return
	}

	p.dim = len(vectors[0])
	p.state = StateReady
	log.Printf("embedding model ready (dimension: %d, took %.1fs)", p.dim, time.Since(p.loadStart).Seconds())
}

// Encode returns one L2-normalized vector per input text, loading the model
// on first use.
func (p *Provider) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if err := p.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += p.cfg.BatchSize {
		end := i + p.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := p.request(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
		}
		if len(vectors) != end-i {
			return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEncodeFailed, len(vectors), end-i)
		}
		out = append(out, vectors...)
	}
	for _, v := range out {
		normalize(v)
	}
	return out, nil
}

// EncodeQuery encodes a single retrieval query. E5-family models need the
// "query: " prefix; mismatched prefixing measurably degrades retrieval.
func (p *Provider) EncodeQuery(ctx context.Context, query string) ([]float32, error) {
	if p.isE5Model() {
		query = "query: " + query
	}
	vectors, err := p.Encode(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EncodeDocuments encodes passages for indexing, applying the E5
// "passage: " prefix when the active model calls for it.
func (p *Provider) EncodeDocuments(ctx context.Context, documents []string) ([][]float32, error) {
	if p.isE5Model() {
		prefixed := make([]string, len(documents))
		for i, d := range documents {
			prefixed[i] = "passage: " + d
		}
		documents = prefixed
	}
	return p.Encode(ctx, documents)
}

func (p *Provider) isE5Model() bool {
	return strings.Contains(strings.ToLower(p.cfg.Model), "e5")
}

// request calls the embedding endpoint once with the given batch.
func (p *Provider) request(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"model": p.cfg.Model,
		"input": texts,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request failed: %w", err)
	}

	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build embedding request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding response status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse embedding json failed: %w", err)
	}

	result := make([][]float32, len(parsed.Data))
	for i := range parsed.Data {
		if len(parsed.Data[i].Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		result[i] = parsed.Data[i].Embedding
	}
	return result, nil
}

// normalize scales v to unit length in place. Required for the downstream
// distance-to-similarity conversion to hold.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}
