// Package main implements the bulk import CLI. It reads listings as NDJSON
// from a file or stdin and submits them in batches over NATS, printing the
// per-batch reports.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/homeseek/homeseek/engine/domain"
	"github.com/homeseek/homeseek/engine/importer"
	"github.com/homeseek/homeseek/pkg/fn"
	"github.com/homeseek/homeseek/pkg/natsutil"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	_ = godotenv.Load()

	var (
		file      = flag.String("file", "-", "NDJSON file of listings, - for stdin")
		natsURL   = flag.String("nats", envOr("NATS_URL", nats.DefaultURL), "NATS server URL")
		batchSize = flag.Int("batch", 200, "listings per batch")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(*file, *natsURL, *batchSize, logger); err != nil {
		logger.Error("import failed", "err", err)
		os.Exit(1)
	}
}

func run(file, natsURL string, batchSize int, logger *slog.Logger) error {
	rows, skipped, err := readListings(file)
	if err != nil {
		return err
	}
	if skipped > 0 {
		logger.Warn("skipped malformed lines", "count", skipped)
	}
	if len(rows) == 0 {
		return fmt.Errorf("no listings to import")
	}

	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer nc.Close()

	ctx := context.Background()
	var total importer.Report
	for i, batch := range fn.Chunk(rows, batchSize) {
		report, err := natsutil.Request[importer.BatchMessage, importer.Report](
			ctx, nc, importer.ImportSubject, importer.BatchMessage{Listings: batch})
		if err != nil {
			return fmt.Errorf("batch %d: %w", i, err)
		}

		total.Inserted += report.Inserted
		total.Updated += report.Updated
		total.Superseded += report.Superseded
		total.Rejected += report.Rejected
		logger.Info("batch done",
			"batch", i,
			"rows", len(batch),
			"inserted", report.Inserted,
			"updated", report.Updated,
			"superseded", report.Superseded,
			"rejected", report.Rejected,
		)
		for _, row := range report.Rows {
			if row.Outcome == importer.OutcomeRejected {
				logger.Warn("row rejected", "id", row.ID, "reason", row.Reason, "err", row.Error)
			}
		}
	}

	out, _ := json.Marshal(total)
	fmt.Println(string(out))
	return nil
}

func readListings(file string) ([]domain.Listing, int, error) {
	var r io.Reader = os.Stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return nil, 0, fmt.Errorf("open %s: %w", file, err)
		}
		defer f.Close()
		r = f
	}

	var rows []domain.Listing
	skipped := 0
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var l domain.Listing
		if err := json.Unmarshal(line, &l); err != nil {
			skipped++
			continue
		}
		rows = append(rows, l)
	}
	if err := sc.Err(); err != nil {
		return nil, skipped, fmt.Errorf("read %s: %w", file, err)
	}
	return rows, skipped, nil
}
