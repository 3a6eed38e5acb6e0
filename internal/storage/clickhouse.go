package storage

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/reviewsight/reviewsight/internal/config"
)

const insightsTableSQL = `
CREATE TABLE IF NOT EXISTS review_insights (
	review_id      String,
	job_id         String,
	website        LowCardinality(String),
	product        LowCardinality(String),
	rating         UInt8,
	classification LowCardinality(String),
	source         LowCardinality(String),
	device_type    LowCardinality(String),
	country        LowCardinality(String),
	feedback_len   UInt32,
	created_at     DateTime64(6),
	generated_at   DateTime64(6)
) ENGINE = MergeTree
ORDER BY (website, product, created_at)
`

type ClickHouse struct {
	conn driver.Conn
}

// InsightRow represents a row in the review_insights table
type InsightRow struct {
	ReviewID       string
	JobID          string
	Website        string
	Product        string
	Rating         uint8
	Classification string
	Source         string
	DeviceType     string
	Country        string
	FeedbackLen    uint32
	CreatedAt      time.Time
	GeneratedAt    time.Time
}

func NewClickHouse(cfg config.ClickHouseConfig) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, err
	}
	if err := conn.Exec(context.Background(), insightsTableSQL); err != nil {
		return nil, err
	}

	return &ClickHouse{conn: conn}, nil
}

func (c *ClickHouse) InsertInsights(ctx context.Context, rows []InsightRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO review_insights (
			review_id, job_id, website, product, rating,
			classification, source, device_type, country,
			feedback_len, created_at, generated_at
		)
	`)
	if err != nil {
		return err
	}

	for _, r := range rows {
		err := batch.Append(
			r.ReviewID, r.JobID, r.Website, r.Product, r.Rating,
			r.Classification, r.Source, r.DeviceType, r.Country,
			r.FeedbackLen, r.CreatedAt, r.GeneratedAt,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

func (c *ClickHouse) Close() error {
	return c.conn.Close()
}
