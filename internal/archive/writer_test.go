package archive

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewsight/reviewsight/internal/config"
	"github.com/reviewsight/reviewsight/internal/model"
	"github.com/reviewsight/reviewsight/internal/storage"
)

type recordingSink struct {
	mu      sync.Mutex
	batches [][]storage.InsightRow
}

func (s *recordingSink) InsertInsights(_ context.Context, rows []storage.InsightRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, rows)
	return nil
}

func (s *recordingSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func TestWriter_FlushesOnBatchSize(t *testing.T) {
	sink := &recordingSink{}
	w := NewWriter(sink, config.BatchConfig{Size: 2, FlushInterval: time.Hour})
	defer w.Stop()

	review := model.Review{ID: "r1", Website: "w", Product: "p", Rating: 4, Feedback: "héllo"}
	insight := model.Insight{Classification: model.ClassGenuine, Source: model.SourceHeuristic}

	w.Record("j1", review, insight)
	assert.Equal(t, 0, sink.total())

	w.Record("j2", review, insight)
	require.Equal(t, 2, sink.total())

	row := sink.batches[0][0]
	assert.Equal(t, "r1", row.ReviewID)
	assert.Equal(t, "j1", row.JobID)
	assert.Equal(t, uint8(4), row.Rating)
	assert.Equal(t, uint32(5), row.FeedbackLen)
	assert.Equal(t, "genuine", row.Classification)
}

func TestWriter_StopFlushesRemainder(t *testing.T) {
	sink := &recordingSink{}
	w := NewWriter(sink, config.BatchConfig{Size: 100, FlushInterval: time.Hour})

	w.Record("j1", model.Review{ID: "r1"}, model.Insight{})
	w.Stop()
	w.Stop()

	assert.Equal(t, 1, sink.total())
}
