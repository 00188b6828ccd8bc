package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/homeseek/homeseek/engine/domain"
	"github.com/homeseek/homeseek/pkg/natsutil"
)

const (
	// ImportSubject is the NATS subject for incoming listing batches.
	ImportSubject = "engine.import"
	// DLQSubject is the dead letter queue subject for failed batches.
	DLQSubject = "engine.import.dlq"
	// MaxRetries before sending a batch to the DLQ.
	MaxRetries = 3
)

// BatchMessage is one import batch on the wire. A bare JSON array of
// listings is also accepted.
type BatchMessage struct {
	Listings []domain.Listing `json:"listings"`
}

func decodeBatch(data []byte) ([]domain.Listing, error) {
	var env BatchMessage
	if err := json.Unmarshal(data, &env); err == nil && env.Listings != nil {
		return env.Listings, nil
	}
	var rows []domain.Listing
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("importer: decode batch: %w", err)
	}
	return rows, nil
}

// DLQMessage is published to the DLQ on repeated failure. It carries the
// original batch payload so an operator can replay it after fixing the cause.
type DLQMessage struct {
	Batch   json.RawMessage `json:"batch"`
	Error   string          `json:"error"`
	Retries int             `json:"retries"`
}

// StartConsumer subscribes the importer to the import subject with retry
// and DLQ support. Row-level rejections are terminal and never retried;
// only batch-level failures (malformed rows aside) re-enter the queue.
func StartConsumer(nc *nats.Conn, im *Importer, log *slog.Logger) (*nats.Subscription, error) {
	if log == nil {
		log = slog.Default()
	}

	return nc.Subscribe(ImportSubject, func(msg *nats.Msg) {
		rows, err := decodeBatch(msg.Data)
		if err != nil {
			// Malformed payloads can never succeed on retry.
			log.Error("import: unmarshal failed", "err", err)
			publishDLQ(nc, log, msg.Data, err, 0)
			return
		}

		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get("X-Retry-Count"); v != "" {
				fmt.Sscanf(v, "%d", &retries)
			}
		}

		report, err := im.Import(context.Background(), rows)
		if err != nil {
			retries++
			log.Error("import: batch failed", "err", err, "retry", retries)
			if retries >= MaxRetries {
				publishDLQ(nc, log, msg.Data, err, retries)
			} else {
				retryMsg := nats.NewMsg(ImportSubject)
				retryMsg.Data = msg.Data
				retryMsg.Header = nats.Header{}
				retryMsg.Header.Set("X-Retry-Count", fmt.Sprintf("%d", retries))
				if err := nc.PublishMsg(retryMsg); err != nil {
					log.Error("import: retry publish failed", "err", err)
				}
			}
			return
		}

		log.Info("import: batch processed",
			"rows", len(rows),
			"inserted", report.Inserted,
			"updated", report.Updated,
			"rejected", report.Rejected,
		)
		if msg.Reply != "" {
			data, _ := json.Marshal(report)
			if err := msg.Respond(data); err != nil {
				log.Warn("import: report reply failed", "err", err)
			}
		}
	})
}

func publishDLQ(nc *nats.Conn, log *slog.Logger, batch []byte, cause error, retries int) {
	dlq := DLQMessage{Batch: batch, Error: cause.Error(), Retries: retries}
	if err := natsutil.Publish(context.Background(), nc, DLQSubject, dlq); err != nil {
		log.Error("import: DLQ publish failed", "err", err)
	}
}
