package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewsight/reviewsight/internal/aggregator"
	"github.com/reviewsight/reviewsight/internal/cache"
	"github.com/reviewsight/reviewsight/internal/classifier"
	"github.com/reviewsight/reviewsight/internal/dispatcher"
	"github.com/reviewsight/reviewsight/internal/hub"
	"github.com/reviewsight/reviewsight/internal/model"
	"github.com/reviewsight/reviewsight/internal/storage"
	"github.com/reviewsight/reviewsight/internal/validation"
)

type fixture struct {
	store *storage.Memory
	cache *cache.Store
	svc   *Service
}

func newFixture(t *testing.T, live bool, limiter *validation.RateLimiter) *fixture {
	t.Helper()
	return newFixtureWithConfig(t, live, limiter, dispatcher.Config{})
}

func newFixtureWithConfig(t *testing.T, live bool, limiter *validation.RateLimiter, cfg dispatcher.Config) *fixture {
	t.Helper()
	store := storage.NewMemory()
	c := cache.NewStore(NewComputeFunc(aggregator.New(store, 0), classifier.NewNarrator(nil, 0)))

	var h *hub.Hub
	var notifier dispatcher.Notifier
	if live {
		h = hub.New(32)
		notifier = h
	}
	d := dispatcher.New(store, classifier.New(nil, 0), c, notifier, dispatcher.NewRegistry(time.Minute), cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Shutdown(ctx)
	})

	return &fixture{store: store, cache: c, svc: New(store, c, d, h, limiter)}
}

func (f *fixture) pollUntilDone(t *testing.T, jobID string) model.Job {
	t.Helper()
	var job model.Job
	require.Eventually(t, func() bool {
		var ok bool
		job, ok = f.svc.Job(jobID)
		return ok && job.State.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	return job
}

func TestService_PollingWithoutHub(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false, nil)

	inputs := []model.NewReview{
		{Website: "alpha-shop", Product: "alpha-phone", Rating: 5, Feedback: "excellent phone"},
		{Website: "alpha-shop", Product: "alpha-phone", Rating: 1, Feedback: "item broke in two days"},
		{Website: "beta-shop", Product: "beta-tab", Rating: 2, Feedback: "parcel arrived late"},
	}
	for _, in := range inputs {
		job, err := f.svc.Submit(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, model.JobQueued, job.State)
		assert.Equal(t, model.JobDone, f.pollUntilDone(t, job.ID).State)
	}

	for _, key := range []model.FilterKey{
		model.GlobalKey,
		{Website: "alpha-shop"},
		{Classification: model.ClassDeliveryIssue},
		{Website: "gamma-shop"},
	} {
		want, err := aggregator.New(f.store, 0).Summarize(ctx, key)
		require.NoError(t, err)

		got, err := f.svc.Summary(ctx, key)
		require.NoError(t, err)
		assert.False(t, got.Stale)
		assert.Equal(t, want.TotalReviews, got.Summary.TotalReviews, key.String())
		assert.Equal(t, want.AvgRating, got.Summary.AvgRating, key.String())
		assert.Equal(t, want.ClassificationCounts, got.Summary.ClassificationCounts, key.String())
	}

	list, err := f.svc.ListReviews(ctx, model.FilterKey{Website: "alpha-shop"}, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, model.ClassProductIssue, list[0].Classification())

	_, err = f.svc.Subscribe(ctx, model.GlobalKey, "")
	assert.ErrorIs(t, err, ErrLiveDisabled)
}

func TestService_SummaryRefreshesStaleEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false, nil)

	first, err := f.svc.Summary(ctx, model.GlobalKey)
	require.NoError(t, err)
	assert.Equal(t, 0, first.Summary.TotalReviews)

	// written without a job, so nothing refreshes the cache
	_, err = f.store.CreateReview(ctx, model.NewReview{Website: "w", Product: "p", Rating: 4, Feedback: "good"})
	require.NoError(t, err)

	got, err := f.svc.Summary(ctx, model.GlobalKey)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Summary.TotalReviews)
	assert.False(t, got.Stale)
}

func TestService_InsightsServesStaleThenRefreshes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false, nil)

	initial, err := f.svc.Insights(ctx, model.GlobalKey)
	require.NoError(t, err)
	require.NotNil(t, initial.Narrative)
	assert.Equal(t, model.SourceHeuristic, initial.Narrative.Source)

	_, err = f.store.CreateReview(ctx, model.NewReview{Website: "w", Product: "p", Rating: 4, Feedback: "good"})
	require.NoError(t, err)

	stale, err := f.svc.Insights(ctx, model.GlobalKey)
	require.NoError(t, err)
	assert.True(t, stale.Stale)
	assert.Equal(t, 0, stale.Summary.TotalReviews)

	require.Eventually(t, func() bool {
		entry, ok := f.cache.Get(model.GlobalKey)
		return ok && !entry.Stale && entry.Summary.TotalReviews == 1
	}, 2*time.Second, 5*time.Millisecond)

	fresh, err := f.svc.Insights(ctx, model.GlobalKey)
	require.NoError(t, err)
	assert.False(t, fresh.Stale)
	assert.Contains(t, fresh.Narrative.Text, "1 reviews")
}

func TestService_SubmitRejections(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	f := newFixture(t, false, validation.NewRateLimiter(rdb, 1))

	_, err := f.svc.Submit(ctx, model.NewReview{Website: "w", Product: "p", Rating: 7, Feedback: "hmm"})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "rating", verr.Field)

	in := model.NewReview{Website: "w", Product: "p", Rating: 3, Feedback: "fine"}
	_, err = f.svc.Submit(ctx, in)
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, in)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1, f.store.Len())
}

func TestService_LateSubscriberGetsCompletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true, nil)

	job, err := f.svc.Submit(ctx, model.NewReview{Website: "w", Product: "p", Rating: 5, Feedback: "love it"})
	require.NoError(t, err)
	f.pollUntilDone(t, job.ID)

	sub, err := f.svc.Subscribe(ctx, model.FilterKey{Website: "w"}, job.ID)
	require.NoError(t, err)
	defer f.svc.Hub().Unsubscribe(sub)

	var types []string
	var complete hub.Message
	timeout := time.After(2 * time.Second)
	for complete.Type == "" {
		select {
		case msg := <-sub.Messages():
			types = append(types, msg.Type)
			if msg.Type == hub.TypeJobComplete {
				complete = msg
			}
		case <-timeout:
			t.Fatalf("no completion, got %v", types)
		}
	}
	assert.Equal(t, hub.TypeSnapshot, types[0])
	assert.Equal(t, model.JobDone, complete.State)
	assert.Equal(t, job.ReviewID, complete.ReviewID)

	// completion is delivered once per subscriber
	assert.Equal(t, 0, f.svc.Hub().NotifyJob(job.ID, hub.CompleteMessage(job)))
}

// drainSnapshots returns the snapshot messages already queued for sub.
func drainSnapshots(sub *hub.Subscriber) []hub.Message {
	var out []hub.Message
	for {
		select {
		case msg := <-sub.Messages():
			if msg.Type == hub.TypeSnapshot {
				out = append(out, msg)
			}
		default:
			return out
		}
	}
}

func TestService_SubscribeQueuesOneSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true, nil)
	h := f.svc.Hub()

	// cold key: the computation itself reaches the new subscriber
	cold, err := f.svc.Subscribe(ctx, model.GlobalKey, "")
	require.NoError(t, err)
	defer h.Unsubscribe(cold)
	assert.Len(t, drainSnapshots(cold), 1)

	// fresh entry: delivered directly
	warm, err := f.svc.Subscribe(ctx, model.GlobalKey, "")
	require.NoError(t, err)
	defer h.Unsubscribe(warm)
	assert.Len(t, drainSnapshots(warm), 1)
	assert.Empty(t, drainSnapshots(cold))

	// stale entry: one computation, broadcast once to every global subscriber
	_, err = f.store.CreateReview(ctx, model.NewReview{Website: "w", Product: "p", Rating: 4, Feedback: "good"})
	require.NoError(t, err)
	stale, err := f.svc.Subscribe(ctx, model.GlobalKey, "")
	require.NoError(t, err)
	defer h.Unsubscribe(stale)

	got := drainSnapshots(stale)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Summary.TotalReviews)
	assert.Len(t, drainSnapshots(cold), 1)
	assert.Len(t, drainSnapshots(warm), 1)
}

func TestService_UnfilteredSubscriberSeesEachRefreshOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixtureWithConfig(t, true, nil, dispatcher.Config{RefreshParallelism: 1})

	var mu sync.Mutex
	var refreshed []model.FilterKey
	f.cache.OnRefresh(func(entry model.CacheEntry) {
		mu.Lock()
		refreshed = append(refreshed, entry.Key)
		mu.Unlock()
	})

	sub := f.svc.Hub().Subscribe(model.GlobalKey, "")
	defer f.svc.Hub().Unsubscribe(sub)

	job, err := f.svc.Submit(ctx, model.NewReview{Website: "alpha-shop", Product: "alpha-phone", Rating: 1, Feedback: "item broke in two days"})
	require.NoError(t, err)
	require.Equal(t, model.JobDone, f.pollUntilDone(t, job.ID).State)

	review, err := f.svc.GetReview(ctx, job.ReviewID)
	require.NoError(t, err)
	snapshots := drainSnapshots(sub)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, refreshed, 8)
	assert.ElementsMatch(t, model.AffectedKeys(review), refreshed)
	require.Len(t, snapshots, len(refreshed))
	for i, msg := range snapshots {
		require.NotNil(t, msg.Filters)
		assert.Equal(t, refreshed[i], *msg.Filters, "snapshot %d", i)
		assert.Equal(t, 1, msg.Summary.TotalReviews)
	}
}

func TestService_IgnoresMirroredEntryForMissingReviews(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mirror := cache.NewRedisMirror(rdb, time.Minute)

	future := time.Now().UTC().Add(time.Hour)
	phantom := func(key model.FilterKey) model.CacheEntry {
		return model.CacheEntry{
			Key:                key,
			Summary:            model.Summary{TotalReviews: 5, AvgRating: 4, SourceMaxTimestamp: future},
			SourceMaxTimestamp: future,
			ComputedAt:         future,
		}
	}
	require.NoError(t, mirror.Save(ctx, phantom(model.GlobalKey)))
	require.NoError(t, mirror.Save(ctx, phantom(model.FilterKey{Website: "w"})))

	f := newFixture(t, false, nil)
	f.cache.WithMirror(mirror)

	// store is empty
	got, err := f.svc.Summary(ctx, model.GlobalKey)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Summary.TotalReviews)
	assert.False(t, got.Stale)

	// store only holds reviews older than the mirrored source
	_, err = f.store.CreateReview(ctx, model.NewReview{Website: "w", Product: "p", Rating: 2, Feedback: "meh"})
	require.NoError(t, err)
	insights, err := f.svc.Insights(ctx, model.FilterKey{Website: "w"})
	require.NoError(t, err)
	assert.Equal(t, 1, insights.Summary.TotalReviews)
	assert.False(t, insights.Stale)

	mirrored, ok, err := mirror.Load(ctx, model.FilterKey{Website: "w"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, mirrored.Summary.TotalReviews)
}

func TestService_ServesMirroredEntryMatchingStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	f := newFixture(t, false, nil)
	f.cache.WithMirror(cache.NewRedisMirror(rdb, time.Minute))
	_, err := f.store.CreateReview(ctx, model.NewReview{Website: "w", Product: "p", Rating: 5, Feedback: "great"})
	require.NoError(t, err)

	first, err := f.svc.Summary(ctx, model.GlobalKey)
	require.NoError(t, err)

	// a second process over the same reviews warm-loads instead of recomputing
	other := cache.NewStore(NewComputeFunc(aggregator.New(f.store, 0), classifier.NewNarrator(nil, 0))).
		WithMirror(cache.NewRedisMirror(rdb, time.Minute))
	svc := New(f.store, other, nil, nil, nil)

	got, err := svc.Summary(ctx, model.GlobalKey)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Summary.TotalReviews)
	assert.True(t, got.ComputedAt.Equal(first.ComputedAt))
}
