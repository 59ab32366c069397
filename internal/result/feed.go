package result

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/medilab/platform/internal/shared/config"
)

// Feed consumes instrument messages from Kafka and hands them to the
// ingestor. Delivery is at least once: offsets are committed only
// after Ingest returns, and redeliveries are absorbed by the guard.
type Feed struct {
	reader   *kafka.Reader
	ingestor *Ingestor
	logger   zerolog.Logger
}

// NewFeed creates a Kafka feed consumer
func NewFeed(cfg config.FeedConfig, ingestor *Ingestor, logger zerolog.Logger) *Feed {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	return &Feed{
		reader:   reader,
		ingestor: ingestor,
		logger:   logger.With().Str("component", "result_feed").Logger(),
	}
}

// Run consumes messages until the context is cancelled
func (f *Feed) Run(ctx context.Context) {
	f.logger.Info().Str("topic", f.reader.Config().Topic).Msg("instrument feed started")

	for {
		m, err := f.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				f.logger.Info().Msg("instrument feed stopped")
				return
			}
			f.logger.Error().Err(err).Msg("failed to fetch instrument message")
			continue
		}

		f.handle(ctx, m)

		if err := f.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			f.logger.Error().Err(err).Msg("failed to commit offset")
		}
	}
}

// handle decodes and ingests one Kafka message. Malformed payloads and
// ingestion failures are logged and the offset is committed anyway:
// retrying a poison message forever would stall the partition, and
// transient failures are recovered by instrument-side redelivery.
func (f *Feed) handle(ctx context.Context, m kafka.Message) {
	var msg InstrumentMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		f.logger.Error().Err(err).Int64("offset", m.Offset).
			Msg("malformed instrument message, skipping")
		return
	}

	count, err := f.ingestor.Ingest(ctx, msg)
	if err != nil {
		f.logger.Error().Err(err).Str("message_id", msg.MessageID).
			Str("order_code", msg.OrderCode).Msg("instrument message ingestion failed")
		return
	}

	f.logger.Info().Str("message_id", msg.MessageID).Int("results", count).
		Msg("instrument message processed")
}

// Close releases the Kafka reader
func (f *Feed) Close() error {
	return f.reader.Close()
}
