// Package ollama provides an Ollama-backed text embedder with client-side
// rate limiting and a circuit breaker around the HTTP calls.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/homeseek/homeseek/engine/domain"
	"github.com/homeseek/homeseek/pkg/resilience"
)

// Options configures the embedder.
type Options struct {
	// RatePerSec caps outgoing embedding requests. Zero means 10/s.
	RatePerSec float64
	// Burst is the limiter burst size. Zero means 2x the rate.
	Burst int
	// Dims, when positive, is the expected embedding dimension.
	Dims int
	// Breaker configures the circuit breaker; zero values use defaults.
	Breaker resilience.BreakerOpts
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Embedder calls Ollama's /api/embeddings endpoint. It implements
// search.Embedder.
type Embedder struct {
	baseURL string
	model   string
	client  *http.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	dims    int
}

// New creates an Embedder for the given Ollama base URL and model.
func New(baseURL, model string, opts Options) *Embedder {
	perSec := opts.RatePerSec
	if perSec <= 0 {
		perSec = 10
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = int(2 * perSec)
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Embedder{
		baseURL: baseURL,
		model:   model,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(perSec), burst),
		breaker: resilience.NewBreaker(opts.Breaker),
		dims:    opts.Dims,
	}
}

type embedReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResp struct {
	Embedding []float64 `json:"embedding"`
}

// Embed maps text to a vector. Outages, HTTP failures, and an open breaker
// all surface as domain.ErrEmbeddingUnavailable; a wrong vector size is
// domain.ErrDimensionMismatch.
func (c *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var out []float32
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		v, err := c.embed(ctx, text)
		out = v
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: embed: %s: %w", err, domain.ErrEmbeddingUnavailable)
	}

	if c.dims > 0 && len(out) != c.dims {
		return nil, fmt.Errorf("ollama: embedding has %d dims, want %d: %w",
			len(out), c.dims, domain.ErrDimensionMismatch)
	}
	return out, nil
}

func (c *Embedder) embed(ctx context.Context, text string) ([]float32, error) {
	body, _ := json.Marshal(embedReq{Model: c.model, Prompt: text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result embedResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	out := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}
