// Package dispatcher runs the insight pipeline for each submitted review:
// classify, attach, refresh every affected cache key, then notify.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/reviewsight/reviewsight/internal/hub"
	"github.com/reviewsight/reviewsight/internal/metrics"
	"github.com/reviewsight/reviewsight/internal/model"
	"github.com/reviewsight/reviewsight/internal/storage"
)

type Classifier interface {
	Classify(ctx context.Context, r model.Review) model.Insight
}

type Refresher interface {
	Refresh(ctx context.Context, key model.FilterKey) (model.CacheEntry, error)
}

type Notifier interface {
	NotifyJob(jobID string, msg hub.Message) int
	NotifyProgress(jobID string, msg hub.Message)
}

// CompletionFunc observes every job that reached a terminal state. It must not block.
type CompletionFunc func(job model.Job, review model.Review)

type Config struct {
	RefreshParallelism int
	JobDeadline        time.Duration
}

type Dispatcher struct {
	store      storage.ReviewStore
	classifier Classifier
	cache      Refresher
	notifier   Notifier
	registry   *Registry
	cfg        Config

	listeners []CompletionFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a dispatcher. notifier may be nil, in which case job state is
// only observable through the registry.
func New(store storage.ReviewStore, classifier Classifier, cache Refresher, notifier Notifier, registry *Registry, cfg Config) *Dispatcher {
	if cfg.RefreshParallelism <= 0 {
		cfg.RefreshParallelism = 4
	}
	if cfg.JobDeadline <= 0 {
		cfg.JobDeadline = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		store:      store,
		classifier: classifier,
		cache:      cache,
		notifier:   notifier,
		registry:   registry,
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// OnComplete registers fn for finished jobs. Call before the first Dispatch.
func (d *Dispatcher) OnComplete(fn CompletionFunc) {
	d.listeners = append(d.listeners, fn)
}

// Dispatch creates a queued job for review and starts it. It never waits for
// the pipeline.
func (d *Dispatcher) Dispatch(review model.Review) model.Job {
	job := d.registry.create(review.ID)

	d.wg.Add(1)
	go d.run(job, review)

	return job
}

// Retry re-runs the pipeline for a stored review. The new insight replaces
// any previous one.
func (d *Dispatcher) Retry(ctx context.Context, reviewID string) (model.Job, error) {
	review, err := d.store.GetReview(ctx, reviewID)
	if err != nil {
		return model.Job{}, err
	}
	return d.Dispatch(review), nil
}

func (d *Dispatcher) Job(id string) (model.Job, bool) {
	return d.registry.Get(id)
}

// Wait blocks until the job is terminal or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context, id string) (model.Job, error) {
	return d.registry.Wait(ctx, id)
}

// Shutdown waits for running jobs. When ctx ends first the remaining jobs
// are cancelled.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) run(job model.Job, review model.Review) {
	defer d.wg.Done()

	start := time.Now()
	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.JobDeadline)
	defer cancel()

	previous := review.Classification()

	d.advance(job.ID, func(j *model.Job) { j.State = model.JobClassifying })
	insight := d.classifier.Classify(ctx, review)

	if err := d.store.AttachInsight(ctx, review.ID, insight); err != nil {
		d.fail(job.ID, review, start, fmt.Errorf("attach insight: %w", err))
		return
	}
	review.Insight = &insight

	d.advance(job.ID, func(j *model.Job) {
		j.State = model.JobCaching
		j.Insight = &insight
	})

	keys := model.AffectedKeys(review)
	if previous != "" && previous != insight.Classification {
		before := review
		before.Insight = &model.Insight{Classification: previous}
		keys = union(keys, model.AffectedKeys(before))
	}
	if err := d.refresh(ctx, keys); err != nil {
		d.fail(job.ID, review, start, fmt.Errorf("refresh cache: %w", err))
		return
	}

	done, ok := d.registry.transition(job.ID, func(j *model.Job) { j.State = model.JobDone })
	if !ok {
		return
	}
	log.Info().
		Str("job_id", job.ID).
		Str("review_id", review.ID).
		Str("classification", string(insight.Classification)).
		Str("source", string(insight.Source)).
		Dur("duration", time.Since(start)).
		Msg("Job done")
	d.finish(done, review, start)
}

func (d *Dispatcher) refresh(ctx context.Context, keys []model.FilterKey) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.RefreshParallelism)

	for _, key := range keys {
		key := key
		g.Go(func() error {
			_, err := d.cache.Refresh(gctx, key)
			return err
		})
	}
	return g.Wait()
}

func (d *Dispatcher) advance(id string, fn func(*model.Job)) {
	job, ok := d.registry.transition(id, fn)
	if ok && d.notifier != nil {
		d.notifier.NotifyProgress(id, hub.ProgressMessage(job))
	}
}

func (d *Dispatcher) fail(id string, review model.Review, start time.Time, err error) {
	log.Error().Err(err).Str("job_id", id).Str("review_id", review.ID).Msg("Job failed")

	job, ok := d.registry.transition(id, func(j *model.Job) {
		j.State = model.JobFailed
		j.Error = err.Error()
	})
	if !ok {
		return
	}
	d.finish(job, review, start)
}

func (d *Dispatcher) finish(job model.Job, review model.Review, start time.Time) {
	metrics.JobsTotal.WithLabelValues(string(job.State)).Inc()
	metrics.JobDuration.Observe(time.Since(start).Seconds())

	if d.notifier != nil {
		d.notifier.NotifyJob(job.ID, hub.CompleteMessage(job))
	}
	for _, fn := range d.listeners {
		fn(job, review)
	}
}

func union(a, b []model.FilterKey) []model.FilterKey {
	seen := make(map[model.FilterKey]bool, len(a)+len(b))
	out := make([]model.FilterKey, 0, len(a)+len(b))
	for _, keys := range [][]model.FilterKey{a, b} {
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}
