package consumer

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/reviewsight/reviewsight/internal/config"
	"github.com/reviewsight/reviewsight/internal/model"
)

// Submitter accepts a review into the pipeline.
type Submitter interface {
	Submit(ctx context.Context, in model.NewReview) (model.Job, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer feeds review submissions from Kafka into the pipeline
type KafkaConsumer struct {
	reader    messageReader
	submitter Submitter
	topic     string
}

// NewKafkaConsumer creates a new Kafka consumer
func NewKafkaConsumer(cfg config.KafkaConfig, submitter Submitter) (*KafkaConsumer, error) {
	topic := cfg.Topics["reviews"]
	if len(cfg.Brokers) == 0 || topic == "" {
		return nil, errors.New("kafka brokers and reviews topic are required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1,    // reviews are small
		MaxBytes:       10e6, // 10MB
		CommitInterval: 1000,
		StartOffset:    kafka.LastOffset,
	})

	return &KafkaConsumer{
		reader:    reader,
		submitter: submitter,
		topic:     topic,
	}, nil
}

// Start consumes until ctx is cancelled
func (c *KafkaConsumer) Start(ctx context.Context) {
	log.Info().Str("topic", c.topic).Msg("Starting Kafka consumer")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Kafka consumer stopped")
			return
		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error().Err(err).Msg("Failed to fetch message")
				continue
			}

			c.handle(ctx, msg)

			// Commit even on failure to avoid getting stuck
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				log.Error().Err(err).Msg("Failed to commit message")
			}
		}
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message) {
	var in model.NewReview
	if err := json.Unmarshal(msg.Value, &in); err != nil {
		log.Error().
			Err(err).
			Str("value", string(msg.Value)).
			Msg("Failed to parse message")
		return
	}

	job, err := c.submitter.Submit(ctx, in)
	if err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			log.Warn().Err(err).Int64("offset", msg.Offset).Msg("Rejected review from Kafka")
			return
		}
		log.Error().Err(err).Int64("offset", msg.Offset).Msg("Failed to submit review")
		return
	}

	log.Debug().
		Str("job_id", job.ID).
		Str("review_id", job.ReviewID).
		Msg("Review accepted from Kafka")
}

// Close closes the consumer
func (c *KafkaConsumer) Close() error {
	log.Info().Msg("Closing Kafka consumer")
	return c.reader.Close()
}
