// Package main implements the import consumer daemon: it subscribes to the
// import subject on NATS and runs incoming batches through the import
// pipeline.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/homeseek/homeseek/engine/importer"
	"github.com/homeseek/homeseek/engine/search"
	"github.com/homeseek/homeseek/engine/semantic"
	"github.com/homeseek/homeseek/engine/store"
	"github.com/homeseek/homeseek/pkg/metrics"
	"github.com/homeseek/homeseek/pkg/natsutil"
	"github.com/homeseek/homeseek/pkg/ollama"
)

// Config holds all environment-based configuration.
type Config struct {
	NATSURL     string
	OllamaURL   string
	OllamaModel string
	QdrantURL   string
	Collection  string
	PostgresDSN string
	VectorDim   int
	Workers     int
	MetricsPort string
}

func loadConfig() Config {
	_ = godotenv.Load()
	return Config{
		NATSURL:     envOr("NATS_URL", nats.DefaultURL),
		OllamaURL:   envOr("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel: envOr("OLLAMA_MODEL", "nomic-embed-text"),
		QdrantURL:   envOr("QDRANT_URL", "localhost:6334"),
		Collection:  envOr("QDRANT_COLLECTION", "listings"),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
		VectorDim:   envOrInt("VECTOR_DIM", 768),
		Workers:     envOrInt("IMPORT_WORKERS", 8),
		MetricsPort: envOr("METRICS_PORT", "9091"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("consumer exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	embedder := ollama.New(cfg.OllamaURL, cfg.OllamaModel, ollama.Options{Dims: cfg.VectorDim})

	index, err := semantic.New(cfg.QdrantURL, cfg.Collection, cfg.VectorDim)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer index.Close()
	if err := index.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	var listings search.ListingStore
	if cfg.PostgresDSN != "" {
		pg, err := store.NewPostgres(cfg.PostgresDSN, logger)
		if err != nil {
			return fmt.Errorf("postgres connect: %w", err)
		}
		defer pg.Close()
		listings = pg
	} else {
		logger.Warn("no POSTGRES_DSN set, using in-memory listing store")
		listings = store.NewMemory()
	}

	reg := metrics.New()

	imp, err := importer.New(importer.Deps{
		Embedder: embedder,
		Index:    index,
		Store:    listings,
		Logger:   logger,
		Metrics:  reg,
	}, importer.Options{Workers: cfg.Workers, VectorDim: cfg.VectorDim})
	if err != nil {
		return fmt.Errorf("importer: %w", err)
	}
	defer imp.Close()

	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("homeseek-consumer"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer nc.Drain()

	sub, err := importer.StartConsumer(nc, imp, logger)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", importer.ImportSubject, err)
	}
	defer sub.Unsubscribe()

	// Dead-lettered batches only show up in the DLQ; surface them in the
	// logs so they are not silently lost until someone replays the subject.
	dlqSub, err := natsutil.Subscribe(nc, importer.DLQSubject, func(_ context.Context, m importer.DLQMessage) {
		logger.Error("import batch dead-lettered",
			"error", m.Error,
			"retries", m.Retries,
			"bytes", len(m.Batch),
		)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", importer.DLQSubject, err)
	}
	defer dlqSub.Unsubscribe()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", reg.Handler())
		if err := http.ListenAndServe(":"+cfg.MetricsPort, mux); err != nil {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	logger.Info("import consumer running",
		"subject", importer.ImportSubject,
		"dlq", importer.DLQSubject,
		"workers", cfg.Workers,
	)
	<-ctx.Done()
	logger.Info("shutdown signal received")
	return nil
}
