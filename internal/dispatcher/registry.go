package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/reviewsight/reviewsight/internal/model"
)

// ErrJobNotFound is returned for unknown or expired job ids.
var ErrJobNotFound = errors.New("job not found")

type jobEntry struct {
	job  model.Job
	done chan struct{}
}

// Registry holds every live job and keeps finished ones for a retention window.
type Registry struct {
	mu        sync.RWMutex
	jobs      map[string]*jobEntry
	retention time.Duration
	now       func() time.Time
	cron      *cron.Cron
}

func NewRegistry(retention time.Duration) *Registry {
	return &Registry{
		jobs:      make(map[string]*jobEntry),
		retention: retention,
		now:       time.Now,
		cron:      cron.New(),
	}
}

func (r *Registry) create(reviewID string) model.Job {
	now := r.now().UTC()
	job := model.Job{
		ID:        uuid.NewString(),
		ReviewID:  reviewID,
		State:     model.JobQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	r.jobs[job.ID] = &jobEntry{job: job, done: make(chan struct{})}
	r.mu.Unlock()
	return job
}

// transition applies fn to the job and returns the result. Terminal jobs do
// not change.
func (r *Registry) transition(id string, fn func(*model.Job)) (model.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[id]
	if !ok || e.job.State.Terminal() {
		return model.Job{}, false
	}
	fn(&e.job)
	e.job.UpdatedAt = r.now().UTC()
	if e.job.State.Terminal() {
		close(e.done)
	}
	return e.job, true
}

func (r *Registry) Get(id string) (model.Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.jobs[id]
	if !ok {
		return model.Job{}, false
	}
	return e.job, true
}

// Wait blocks until the job is terminal or ctx ends, and returns the latest state.
func (r *Registry) Wait(ctx context.Context, id string) (model.Job, error) {
	r.mu.RLock()
	e, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return model.Job{}, ErrJobNotFound
	}

	select {
	case <-e.done:
	case <-ctx.Done():
	}
	job, _ := r.Get(id)
	if !job.State.Terminal() {
		return job, ctx.Err()
	}
	return job, nil
}

// Sweep removes finished jobs older than the retention window.
func (r *Registry) Sweep() int {
	cutoff := r.now().UTC().Add(-r.retention)

	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, e := range r.jobs {
		if e.job.State.Terminal() && e.job.UpdatedAt.Before(cutoff) {
			delete(r.jobs, id)
			n++
		}
	}
	return n
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// StartJanitor runs Sweep on schedule until StopJanitor.
func (r *Registry) StartJanitor(schedule string) error {
	_, err := r.cron.AddFunc(schedule, func() {
		if n := r.Sweep(); n > 0 {
			log.Debug().Int("count", n).Msg("Expired finished jobs")
		}
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	log.Info().Str("schedule", schedule).Dur("retention", r.retention).Msg("Job janitor started")
	return nil
}

func (r *Registry) StopJanitor() {
	<-r.cron.Stop().Done()
}
