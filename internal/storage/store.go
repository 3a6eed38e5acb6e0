package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/reviewsight/reviewsight/internal/model"
)

// ErrNotFound is returned when a review id does not exist.
var ErrNotFound = errors.New("review not found")

// ReviewStore is the durable store for raw reviews.
type ReviewStore interface {
	CreateReview(ctx context.Context, in model.NewReview) (model.Review, error)
	AttachInsight(ctx context.Context, reviewID string, insight model.Insight) error
	GetReview(ctx context.Context, reviewID string) (model.Review, error)
	// ListReviews returns reviews matching key, newest first. limit <= 0 returns all.
	ListReviews(ctx context.Context, key model.FilterKey, limit int) ([]model.Review, error)
	// LatestTimestamp returns the createdAt of the newest review matching key.
	LatestTimestamp(ctx context.Context, key model.FilterKey) (time.Time, bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// Summarizer is implemented by stores that compute a Summary in place from
// one consistent snapshot instead of returning every matching review.
type Summarizer interface {
	Summarize(ctx context.Context, key model.FilterKey, recentLimit int) (model.Summary, error)
}

// clock hands out strictly increasing timestamps at microsecond precision,
// which is what Postgres timestamptz keeps.
type clock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func (c *clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now
	if c.now != nil {
		now = c.now
	}
	t := now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}

func cloneInsight(in model.Insight) *model.Insight {
	out := in
	out.UserSuggestions = append([]string(nil), in.UserSuggestions...)
	out.VendorSuggestions = append([]string(nil), in.VendorSuggestions...)
	return &out
}
