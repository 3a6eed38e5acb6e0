// Package service is the read and write surface over the review pipeline,
// shared by the HTTP handlers and the Kafka consumer.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/reviewsight/reviewsight/internal/aggregator"
	"github.com/reviewsight/reviewsight/internal/cache"
	"github.com/reviewsight/reviewsight/internal/classifier"
	"github.com/reviewsight/reviewsight/internal/dispatcher"
	"github.com/reviewsight/reviewsight/internal/hub"
	"github.com/reviewsight/reviewsight/internal/metrics"
	"github.com/reviewsight/reviewsight/internal/model"
	"github.com/reviewsight/reviewsight/internal/storage"
	"github.com/reviewsight/reviewsight/internal/validation"
)

var (
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrLiveDisabled = errors.New("live updates are disabled")
)

type Service struct {
	store      storage.ReviewStore
	cache      *cache.Store
	dispatcher *dispatcher.Dispatcher
	hub        *hub.Hub
	limiter    *validation.RateLimiter
}

// New wires the service. h and limiter may be nil. When h is set every cache
// computation is broadcast to matching subscribers.
func New(store storage.ReviewStore, c *cache.Store, d *dispatcher.Dispatcher, h *hub.Hub, limiter *validation.RateLimiter) *Service {
	if h != nil {
		c.OnRefresh(func(entry model.CacheEntry) {
			h.BroadcastSnapshot(entry.Key, entry.Summary)
		})
	}
	return &Service{store: store, cache: c, dispatcher: d, hub: h, limiter: limiter}
}

// NewComputeFunc builds cache entries from a fresh summary plus its narrative.
func NewComputeFunc(agg *aggregator.Aggregator, narrator *classifier.Narrator) cache.ComputeFunc {
	return func(ctx context.Context, key model.FilterKey) (model.CacheEntry, error) {
		summary, err := agg.Summarize(ctx, key)
		if err != nil {
			return model.CacheEntry{}, err
		}
		narrative := narrator.Narrate(ctx, key, summary)
		return model.CacheEntry{Summary: summary, Narrative: &narrative}, nil
	}
}

// Submit validates and stores a review, then starts its job. It returns as
// soon as the job is queued.
func (s *Service) Submit(ctx context.Context, in model.NewReview) (model.Job, error) {
	if err := in.Validate(); err != nil {
		metrics.SubmissionsTotal.WithLabelValues("invalid").Inc()
		return model.Job{}, err
	}
	if !s.limiter.Allow(ctx, in.Website) {
		metrics.SubmissionsTotal.WithLabelValues("rate_limited").Inc()
		return model.Job{}, ErrRateLimited
	}

	review, err := s.store.CreateReview(ctx, in)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("error").Inc()
		return model.Job{}, fmt.Errorf("create review: %w", err)
	}
	metrics.SubmissionsTotal.WithLabelValues("accepted").Inc()

	return s.dispatcher.Dispatch(review), nil
}

func (s *Service) Retry(ctx context.Context, reviewID string) (model.Job, error) {
	return s.dispatcher.Retry(ctx, reviewID)
}

func (s *Service) Job(id string) (model.Job, bool) {
	return s.dispatcher.Job(id)
}

// WaitJob blocks until the job finishes or ctx ends.
func (s *Service) WaitJob(ctx context.Context, id string) (model.Job, error) {
	return s.dispatcher.Wait(ctx, id)
}

func (s *Service) GetReview(ctx context.Context, id string) (model.Review, error) {
	return s.store.GetReview(ctx, id)
}

func (s *Service) ListReviews(ctx context.Context, key model.FilterKey, limit int) ([]model.Review, error) {
	return s.store.ListReviews(ctx, key, limit)
}

type lookupResult int

const (
	lookupMiss lookupResult = iota
	lookupStale
	lookupHit
)

// Summary returns the entry for key, recomputing it first when a newer
// matching review exists. The result is never stale.
func (s *Service) Summary(ctx context.Context, key model.FilterKey) (model.CacheEntry, error) {
	entry, _, err := s.summary(ctx, key)
	return entry, err
}

// summary is Summary that also reports whether it ran a computation.
func (s *Service) summary(ctx context.Context, key model.FilterKey) (model.CacheEntry, bool, error) {
	entry, res, err := s.lookup(ctx, key)
	if err != nil {
		return model.CacheEntry{}, false, err
	}
	if res == lookupHit {
		return entry, false, nil
	}
	entry, err = s.cache.Refresh(ctx, key)
	if err != nil {
		return model.CacheEntry{}, false, err
	}
	return entry, true, nil
}

// Insights serves whatever is cached, even if stale, and refreshes stale
// entries in the background. Only a missing entry is computed inline.
func (s *Service) Insights(ctx context.Context, key model.FilterKey) (model.CacheEntry, error) {
	entry, res, err := s.lookup(ctx, key)
	if err != nil {
		return model.CacheEntry{}, err
	}
	switch res {
	case lookupHit:
		return entry, nil
	case lookupStale:
		s.cache.RefreshAsync(key)
		return entry, nil
	default:
		return s.cache.Refresh(ctx, key)
	}
}

func (s *Service) lookup(ctx context.Context, key model.FilterKey) (model.CacheEntry, lookupResult, error) {
	entry, ok := s.cache.Lookup(ctx, key)
	if !ok {
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return model.CacheEntry{}, lookupMiss, nil
	}

	latest, has, err := s.store.LatestTimestamp(ctx, key)
	if err != nil {
		return model.CacheEntry{}, lookupMiss, fmt.Errorf("latest timestamp: %w", err)
	}
	// The entry counts reviews this store does not hold, e.g. one mirrored
	// by an earlier process over a different store.
	if (!has && entry.Summary.TotalReviews > 0) || (has && latest.Before(entry.SourceMaxTimestamp)) {
		metrics.CacheLookupsTotal.WithLabelValues("orphaned").Inc()
		return model.CacheEntry{}, lookupMiss, nil
	}
	if (has && s.cache.InvalidateIfStale(key, latest)) || entry.Stale {
		metrics.CacheLookupsTotal.WithLabelValues("stale").Inc()
		entry.Stale = true
		return entry, lookupStale, nil
	}
	metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
	return entry, lookupHit, nil
}

// Subscribe registers a live subscriber, queues exactly one current snapshot
// for its filter and, if it waits on a job, the job's current state. A job that has
// already finished is delivered as its completion.
func (s *Service) Subscribe(ctx context.Context, key model.FilterKey, jobID string) (*hub.Subscriber, error) {
	if s.hub == nil {
		return nil, ErrLiveDisabled
	}

	sub := s.hub.Subscribe(key, jobID)

	// A computation broadcasts to sub on its own, so only a cache hit is
	// delivered here.
	entry, computed, err := s.summary(ctx, key)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("key", key.String()).Msg("Failed to build initial snapshot")
	case !computed:
		s.hub.Deliver(sub, hub.SnapshotMessage(key, entry.Summary))
	}

	if jobID != "" {
		if job, ok := s.dispatcher.Job(jobID); ok {
			if job.State.Terminal() {
				s.hub.NotifyJob(jobID, hub.CompleteMessage(job))
			} else {
				s.hub.Deliver(sub, hub.ProgressMessage(job))
			}
		}
	}
	return sub, nil
}

func (s *Service) Hub() *hub.Hub {
	return s.hub
}

func (s *Service) Health(ctx context.Context) error {
	return s.store.Ping(ctx)
}
