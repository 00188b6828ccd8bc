package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/homeseek/homeseek/engine/domain"
	"github.com/homeseek/homeseek/pkg/resilience"
)

func embedServer(t *testing.T, vec []float64, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req embedReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model == "" || req.Prompt == "" {
			t.Errorf("request missing model or prompt: %+v", req)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		json.NewEncoder(w).Encode(embedResp{Embedding: vec})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEmbed(t *testing.T) {
	srv := embedServer(t, []float64{0.1, 0.2, 0.3}, http.StatusOK)
	e := New(srv.URL, "nomic-embed-text", Options{RatePerSec: 1000})

	vec, err := e.Embed(context.Background(), "two bed near a park")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 3 || vec[1] != float32(0.2) {
		t.Fatalf("vec = %v", vec)
	}
}

func TestEmbedServerErrorIsUnavailable(t *testing.T) {
	srv := embedServer(t, nil, http.StatusInternalServerError)
	e := New(srv.URL, "nomic-embed-text", Options{RatePerSec: 1000})

	_, err := e.Embed(context.Background(), "text")
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("err = %v, want ErrEmbeddingUnavailable", err)
	}
}

func TestEmbedDimensionMismatch(t *testing.T) {
	srv := embedServer(t, []float64{0.1, 0.2}, http.StatusOK)
	e := New(srv.URL, "nomic-embed-text", Options{RatePerSec: 1000, Dims: 768})

	_, err := e.Embed(context.Background(), "text")
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestEmbedBreakerOpens(t *testing.T) {
	srv := embedServer(t, nil, http.StatusBadGateway)
	e := New(srv.URL, "nomic-embed-text", Options{
		RatePerSec: 1000,
		Breaker:    resilience.BreakerOpts{FailThreshold: 2, Timeout: time.Minute},
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := e.Embed(ctx, "text"); err == nil {
			t.Fatalf("call %d should fail", i)
		}
	}
	// Breaker is now open; calls fail without reaching the server.
	_, err := e.Embed(ctx, "text")
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("err = %v, want ErrEmbeddingUnavailable", err)
	}
}
