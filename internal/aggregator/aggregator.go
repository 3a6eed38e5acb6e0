package aggregator

import (
	"context"
	"fmt"

	"github.com/reviewsight/reviewsight/internal/model"
	"github.com/reviewsight/reviewsight/internal/storage"
)

const DefaultRecentLimit = 20

type Aggregator struct {
	store       storage.ReviewStore
	recentLimit int
}

func New(store storage.ReviewStore, recentLimit int) *Aggregator {
	if recentLimit <= 0 {
		recentLimit = DefaultRecentLimit
	}
	return &Aggregator{store: store, recentLimit: recentLimit}
}

// Summarize computes the summary of every review matching key from a single
// store snapshot. Stores that aggregate in place do the work themselves.
func (a *Aggregator) Summarize(ctx context.Context, key model.FilterKey) (model.Summary, error) {
	if s, ok := a.store.(storage.Summarizer); ok {
		summary, err := s.Summarize(ctx, key, a.recentLimit)
		if err != nil {
			return model.Summary{}, fmt.Errorf("summarize: %w", err)
		}
		return summary, nil
	}

	reviews, err := a.store.ListReviews(ctx, key, 0)
	if err != nil {
		return model.Summary{}, fmt.Errorf("list reviews: %w", err)
	}
	return Summarize(reviews, a.recentLimit), nil
}

// Summarize aggregates reviews, which must be ordered newest first.
func Summarize(reviews []model.Review, recentLimit int) model.Summary {
	s := model.Summary{
		ClassificationCounts: make(map[model.Classification]int),
		WebsiteBreakdown:     []model.Breakdown{},
		ProductBreakdown:     []model.Breakdown{},
		LatestReviews:        []model.Review{},
	}
	if len(reviews) == 0 {
		return s
	}

	var ratingSum int
	websites := make(map[string]*tally)
	products := make(map[string]*tally)

	for _, r := range reviews {
		ratingSum += r.Rating
		if c := r.Classification(); c != "" {
			s.ClassificationCounts[c]++
		} else {
			s.Unclassified++
		}
		add(websites, r.Website, r.Rating)
		add(products, r.Product, r.Rating)
		if r.CreatedAt.After(s.SourceMaxTimestamp) {
			s.SourceMaxTimestamp = r.CreatedAt
		}
	}

	s.TotalReviews = len(reviews)
	s.AvgRating = model.RoundRating(float64(ratingSum) / float64(len(reviews)))
	s.WebsiteBreakdown = breakdown(websites)
	s.ProductBreakdown = breakdown(products)

	n := recentLimit
	if n > len(reviews) {
		n = len(reviews)
	}
	s.LatestReviews = append(s.LatestReviews, reviews[:n]...)

	return s
}

type tally struct {
	count int
	sum   int
}

func add(m map[string]*tally, name string, rating int) {
	t, ok := m[name]
	if !ok {
		t = &tally{}
		m[name] = t
	}
	t.count++
	t.sum += rating
}

func breakdown(m map[string]*tally) []model.Breakdown {
	out := make([]model.Breakdown, 0, len(m))
	for name, t := range m {
		out = append(out, model.Breakdown{
			Name:      name,
			Count:     t.count,
			AvgRating: model.RoundRating(float64(t.sum) / float64(t.count)),
		})
	}
	model.SortBreakdowns(out)
	return out
}
