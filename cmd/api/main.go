// Package main implements the homeseek API server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/homeseek/homeseek/engine/domain"
	"github.com/homeseek/homeseek/engine/importer"
	"github.com/homeseek/homeseek/engine/search"
	"github.com/homeseek/homeseek/engine/semantic"
	"github.com/homeseek/homeseek/engine/store"
	"github.com/homeseek/homeseek/pkg/metrics"
	"github.com/homeseek/homeseek/pkg/mid"
	"github.com/homeseek/homeseek/pkg/ollama"
	"github.com/homeseek/homeseek/pkg/resilience"
)

// Config holds all environment-based configuration.
type Config struct {
	Port          string
	OllamaURL     string
	OllamaModel   string
	QdrantURL     string
	Collection    string
	PostgresDSN   string
	VectorDim     int
	CORSOrigin    string
	SearchRate    float64
	ImportWorkers int
}

func loadConfig() Config {
	_ = godotenv.Load()
	return Config{
		Port:          envOr("PORT", "8080"),
		OllamaURL:     envOr("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:   envOr("OLLAMA_MODEL", "nomic-embed-text"),
		QdrantURL:     envOr("QDRANT_URL", "localhost:6334"),
		Collection:    envOr("QDRANT_COLLECTION", "listings"),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		VectorDim:     envOrInt("VECTOR_DIM", 768),
		CORSOrigin:    envOr("CORS_ORIGIN", "*"),
		SearchRate:    envOrFloat("SEARCH_RATE", 50),
		ImportWorkers: envOrInt("IMPORT_WORKERS", 8),
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
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
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

	opts := search.DefaultOptions()
	opts.VectorDim = cfg.VectorDim
	planner := search.NewPlanner(search.Deps{
		Embedder: embedder,
		Index:    index,
		Store:    listings,
		Logger:   logger,
		Metrics:  reg,
	}, opts)

	imp, err := importer.New(importer.Deps{
		Embedder: embedder,
		Index:    index,
		Store:    listings,
		Logger:   logger,
		Metrics:  reg,
	}, importer.Options{Workers: cfg.ImportWorkers, VectorDim: cfg.VectorDim})
	if err != nil {
		return fmt.Errorf("importer: %w", err)
	}
	defer imp.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/search", handleSearch(planner, logger))
	mux.HandleFunc("POST /api/import", handleImport(imp, logger))
	mux.HandleFunc("GET /api/listings/{id}", handleGetListing(listings))
	mux.HandleFunc("DELETE /api/listings/{id}", handleDeleteListing(listings, index, logger))
	mux.HandleFunc("GET /api/stats", handleStats(listings))
	mux.HandleFunc("DELETE /api/listings", handleClearListings(listings, index, logger))
	mux.Handle("GET /metrics", reg.Handler())

	limiter := resilience.NewLimiter(resilience.LimiterOpts{
		Rate:  cfg.SearchRate,
		Burst: int(2 * cfg.SearchRate),
	})
	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.OTel("homeseek-api"),
		mid.CORS(cfg.CORSOrigin),
		mid.RateLimit(limiter),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleSearch(planner *search.Planner, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q search.Query
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		res, err := planner.Search(r.Context(), q)
		if err != nil {
			status, msg := searchErrorStatus(err)
			if status == http.StatusInternalServerError {
				logger.Error("search failed", "err", err)
			}
			writeError(w, status, msg)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// searchErrorStatus maps engine errors onto HTTP statuses. Caller mistakes
// are 400s with the engine's message; infrastructure trouble is a 503/504
// without internals leaking into the body.
func searchErrorStatus(err error) (int, string) {
	var verr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrEmptyQuery),
		errors.Is(err, domain.ErrQueryTooBroad),
		errors.Is(err, domain.ErrInvalidCursor),
		errors.Is(err, domain.ErrInvalidGeoInput),
		errors.As(err, &verr):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrRetrievalTimeout):
		return http.StatusGatewayTimeout, "retrieval timed out"
	case errors.Is(err, domain.ErrEmbeddingUnavailable),
		errors.Is(err, domain.ErrIndexUnavailable):
		return http.StatusServiceUnavailable, "search backend unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func handleImport(imp *importer.Importer, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rows []domain.Listing
		if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		report, err := imp.Import(r.Context(), rows)
		if err != nil {
			logger.Error("import failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func handleGetListing(listings search.ListingStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid listing id")
			return
		}

		l, err := listings.Get(r.Context(), id)
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "listing not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

func handleDeleteListing(listings search.ListingStore, index search.VectorIndex, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid listing id")
			return
		}

		// Store first, then index: a dangling index point is skipped at
		// hydration, a dangling store row would resurface in results.
		if err := listings.Delete(r.Context(), id); err != nil {
			logger.Error("delete listing failed", "id", id, "err", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if err := index.Delete(r.Context(), id); err != nil {
			logger.Error("delete index point failed", "id", id, "err", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type statsResponse struct {
	TotalListings int `json:"total_listings"`
	Geocoded      int `json:"geocoded"`
	Districts     int `json:"districts"`
}

func handleStats(listings search.ListingStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var s statsResponse
		districts := map[string]struct{}{}
		err := listings.Scan(r.Context(), func(l domain.Listing) error {
			s.TotalListings++
			if l.HasCoordinates() {
				s.Geocoded++
			}
			if l.District != "" {
				districts[l.District] = struct{}{}
			}
			return nil
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		s.Districts = len(districts)
		writeJSON(w, http.StatusOK, s)
	}
}

func handleClearListings(listings search.ListingStore, index search.VectorIndex, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ids []int64
		if err := listings.Scan(r.Context(), func(l domain.Listing) error {
			ids = append(ids, l.ID)
			return nil
		}); err != nil {
			logger.Error("clear: scan failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		// Same order as single delete: store first, then index, so a partial
		// clear leaves at worst dangling index points that hydration skips.
		for _, id := range ids {
			if err := listings.Delete(r.Context(), id); err != nil {
				logger.Error("clear: delete listing failed", "id", id, "err", err)
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			if err := index.Delete(r.Context(), id); err != nil {
				logger.Error("clear: delete index point failed", "id", id, "err", err)
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}
		}
		logger.Info("all listings cleared", "count", len(ids))
		writeJSON(w, http.StatusOK, map[string]int{"cleared": len(ids)})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
