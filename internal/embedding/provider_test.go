package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// fakeServer answers /v1/embeddings with constant 3-dim vectors and
// records every batch it sees.
func fakeServer(t *testing.T, requests *[][]string, mu *sync.Mutex) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		mu.Lock()
		*requests = append(*requests, req.Input)
		mu.Unlock()

		type item struct {
			Embedding []float32 `json:"embedding"`
		}
		resp := struct {
			Data []item `json:"data"`
		}{}
		for range req.Input {
			resp.Data = append(resp.Data, item{Embedding: []float32{3, 4, 0}})
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestEncodeNormalizesVectors(t *testing.T) {
	var mu sync.Mutex
	var requests [][]string
	srv := fakeServer(t, &requests, &mu)
	defer srv.Close()

	p := NewProvider(Config{BaseURL: srv.URL, Model: "test-model"})

	vectors, err := p.Encode(context.Background(), []string{"hello"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)

	var norm float64
	for _, v := range vectors[0] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
}

func TestFirstEncodeWarmsUpAndDiscoversDimension(t *testing.T) {
	var mu sync.Mutex
	var requests [][]string
	srv := fakeServer(t, &requests, &mu)
	defer srv.Close()

	p := NewProvider(Config{BaseURL: srv.URL, Model: "test-model"})
	assert.Equal(t, StateNotLoaded, p.Status().State)
	assert.Equal(t, 0, p.Dimension())

	_, err := p.Encode(context.Background(), []string{"first"})
	require.NoError(t, err)

	st := p.Status()
	assert.Equal(t, StateReady, st.State)
	assert.True(t, st.IsReady)
	assert.Equal(t, 3, p.Dimension())

	mu.Lock()
	defer mu.Unlock()
	// Warm-up batch plus the actual encode batch.
	require.Len(t, requests, 2)
	assert.Equal(t, []string{"warmup"}, requests[0])
}

func TestConcurrentCallersShareOneLoad(t *testing.T) {
	var loads int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if len(req.Input) == 1 && req.Input[0] == "warmup" {
			atomic.AddInt32(&loads, 1)
		}

		type item struct {
			Embedding []float32 `json:"embedding"`
		}
		resp := struct {
			Data []item `json:"data"`
		}{}
		for range req.Input {
			resp.Data = append(resp.Data, item{Embedding: []float32{1, 0}})
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	p := NewProvider(Config{BaseURL: srv.URL, Model: "test-model"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Encode(context.Background(), []string{"text"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&loads))
}

func TestLoadFailureIsSticky(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "model unavailable", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewProvider(Config{BaseURL: srv.URL, Model: "test-model"})

	_, err := p.Encode(context.Background(), []string{"a"})
	require.ErrorIs(t, err, ErrLoadFailed)

	st := p.Status()
	assert.Equal(t, StateError, st.State)
	assert.False(t, st.IsReady)
	assert.NotEmpty(t, st.Error)

	// Subsequent calls fail immediately without retrying the server.
	before := atomic.LoadInt32(&calls)
	_, err = p.Encode(context.Background(), []string{"b"})
	require.ErrorIs(t, err, ErrLoadFailed)
	assert.Equal(t, before, atomic.LoadInt32(&calls))
}

func TestCanceledFirstCallerDoesNotPoisonLoad(t *testing.T) {
	var mu sync.Mutex
	var requests [][]string
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		requests = append(requests, req.Input)
		mu.Unlock()

		type item struct {
			Embedding []float32 `json:"embedding"`
		}
		resp := struct {
			Data []item `json:"data"`
		}{}
		for range req.Input {
			resp.Data = append(resp.Data, item{Embedding: []float32{0, 1}})
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer slow.Close()

	p := NewProvider(Config{BaseURL: slow.URL, Model: "test-model"})

	// The first caller gives up before the healthy server answers.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := p.Encode(ctx, []string{"a"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotErrorIs(t, err, ErrLoadFailed)

	// The warm-up keeps running detached; a patient caller succeeds.
	vectors, err := p.Encode(context.Background(), []string{"b"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, StateReady, p.Status().State)
	assert.Equal(t, 2, p.Dimension())
}

func TestE5PrefixesAppliedPerRole(t *testing.T) {
	var mu sync.Mutex
	var requests [][]string
	srv := fakeServer(t, &requests, &mu)
	defer srv.Close()

	p := NewProvider(Config{BaseURL: srv.URL, Model: "intfloat/multilingual-e5-base"})

	_, err := p.EncodeQuery(context.Background(), "質問")
	require.NoError(t, err)
	_, err = p.EncodeDocuments(context.Background(), []string{"本文"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, requests, 3)
	assert.Equal(t, []string{"warmup"}, requests[0])
	assert.Equal(t, []string{"query: 質問"}, requests[1])
	assert.Equal(t, []string{"passage: 本文"}, requests[2])
}

func TestNonE5ModelHasNoPrefixes(t *testing.T) {
	var mu sync.Mutex
	var requests [][]string
	srv := fakeServer(t, &requests, &mu)
	defer srv.Close()

	p := NewProvider(Config{BaseURL: srv.URL, Model: "all-MiniLM-L6-v2"})

	_, err := p.EncodeQuery(context.Background(), "question")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, requests, 2)
	assert.Equal(t, []string{"question"}, requests[1])
}

func TestEncodeBatchesLargeInputs(t *testing.T) {
	var mu sync.Mutex
	var requests [][]string
	srv := fakeServer(t, &requests, &mu)
	defer srv.Close()

	p := NewProvider(Config{BaseURL: srv.URL, Model: "test-model", BatchSize: 10})

	texts := make([]string, 25)
	for i := range texts {
		texts[i] = "t"
	}
	vectors, err := p.Encode(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, vectors, 25)

	mu.Lock()
	defer mu.Unlock()
	// Warm-up plus batches of 10, 10 and 5.
	require.Len(t, requests, 4)
	assert.Len(t, requests[1], 10)
	assert.Len(t, requests[2], 10)
	assert.Len(t, requests[3], 5)
}
