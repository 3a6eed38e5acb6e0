package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/reviewsight/reviewsight/internal/config"
	"github.com/reviewsight/reviewsight/internal/model"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher emits one event per finished job to the insights topic.
type Publisher struct {
	writer messageWriter
}

// InsightEvent is the JSON payload written for each finished job.
type InsightEvent struct {
	ReviewID       string               `json:"review_id"`
	JobID          string               `json:"job_id"`
	Website        string               `json:"website"`
	Product        string               `json:"product"`
	Rating         int                  `json:"rating"`
	Classification model.Classification `json:"classification,omitempty"`
	Source         model.InsightSource  `json:"source,omitempty"`
	State          model.JobState       `json:"state"`
	Error          string               `json:"error,omitempty"`
	PublishedAt    int64                `json:"published_at"`
}

func NewPublisher(cfg config.KafkaConfig) (*Publisher, error) {
	topic := cfg.Topics["insights"]
	if len(cfg.Brokers) == 0 || topic == "" {
		return nil, errors.New("kafka brokers and insights topic are required")
	}

	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    100,
			BatchTimeout: time.Millisecond * 100,
			Async:        true,
		},
	}, nil
}

// PublishJob writes the outcome of job, keyed by website so one site's
// events stay ordered within a partition.
func (p *Publisher) PublishJob(ctx context.Context, job model.Job, review model.Review) error {
	event := InsightEvent{
		ReviewID:    review.ID,
		JobID:       job.ID,
		Website:     review.Website,
		Product:     review.Product,
		Rating:      review.Rating,
		State:       job.State,
		Error:       job.Error,
		PublishedAt: time.Now().UnixMilli(),
	}
	if job.Insight != nil {
		event.Classification = job.Insight.Classification
		event.Source = job.Insight.Source
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(review.Website),
		Value: data,
	})
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
