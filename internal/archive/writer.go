package archive

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/reviewsight/reviewsight/internal/config"
	"github.com/reviewsight/reviewsight/internal/model"
	"github.com/reviewsight/reviewsight/internal/storage"
)

// Sink persists a batch of archive rows.
type Sink interface {
	InsertInsights(ctx context.Context, rows []storage.InsightRow) error
}

// Writer buffers classified reviews and writes them to the archive in batches
type Writer struct {
	sink     Sink
	batchCfg config.BatchConfig

	buffer    []storage.InsightRow
	mu        sync.Mutex
	lastFlush time.Time
	ticker    *time.Ticker
	done      chan struct{}
	stopOnce  sync.Once
}

// NewWriter creates a new archive writer and starts its flush loop
func NewWriter(sink Sink, batchCfg config.BatchConfig) *Writer {
	w := &Writer{
		sink:      sink,
		batchCfg:  batchCfg,
		buffer:    make([]storage.InsightRow, 0, batchCfg.Size),
		lastFlush: time.Now(),
		done:      make(chan struct{}),
	}

	w.ticker = time.NewTicker(batchCfg.FlushInterval)
	go w.flushLoop()

	return w
}

// Record buffers one finished job
func (w *Writer) Record(jobID string, review model.Review, insight model.Insight) {
	row := storage.InsightRow{
		ReviewID:       review.ID,
		JobID:          jobID,
		Website:        review.Website,
		Product:        review.Product,
		Rating:         uint8(review.Rating),
		Classification: string(insight.Classification),
		Source:         string(insight.Source),
		DeviceType:     review.Client.DeviceType,
		Country:        review.Client.Country,
		FeedbackLen:    uint32(utf8.RuneCountInString(review.Feedback)),
		CreatedAt:      review.CreatedAt,
		GeneratedAt:    insight.GeneratedAt,
	}

	w.mu.Lock()
	w.buffer = append(w.buffer, row)
	shouldFlush := len(w.buffer) >= w.batchCfg.Size
	w.mu.Unlock()

	if shouldFlush {
		w.Flush()
	}
}

func (w *Writer) flushLoop() {
	for {
		select {
		case <-w.done:
			return
		case <-w.ticker.C:
			w.Flush()
		}
	}
}

// Flush writes all buffered rows
func (w *Writer) Flush() {
	w.mu.Lock()
	if len(w.buffer) == 0 {
		w.mu.Unlock()
		return
	}

	rows := w.buffer
	w.buffer = make([]storage.InsightRow, 0, w.batchCfg.Size)
	w.lastFlush = time.Now()
	w.mu.Unlock()

	start := time.Now()
	if err := w.sink.InsertInsights(context.Background(), rows); err != nil {
		log.Error().Err(err).Int("count", len(rows)).Msg("Failed to archive insights")
		return
	}
	log.Debug().
		Int("count", len(rows)).
		Dur("duration", time.Since(start)).
		Msg("Archived insights")
}

// Stop stops the flush loop and writes what is left
func (w *Writer) Stop() {
	w.stopOnce.Do(func() {
		w.ticker.Stop()
		close(w.done)
		w.Flush()
	})
}
