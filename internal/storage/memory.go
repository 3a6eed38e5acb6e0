package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/reviewsight/reviewsight/internal/model"
)

// reviewSlot holds the current immutable version of one review. Attaching an
// insight swaps the pointer; readers never observe a half-written review.
type reviewSlot struct {
	review atomic.Pointer[model.Review]
}

// Memory is an in-process ReviewStore. Readers load an immutable snapshot of
// the slot list without locking; appends are serialized by appendMu and
// insight attachment is a per-review compare-and-swap.
type Memory struct {
	appendMu sync.Mutex
	clock    clock

	slots atomic.Pointer[[]*reviewSlot]
	byID  sync.Map // review id -> *reviewSlot
}

var _ ReviewStore = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	m := &Memory{}
	empty := make([]*reviewSlot, 0, 64)
	m.slots.Store(&empty)
	return m
}

func (m *Memory) CreateReview(_ context.Context, in model.NewReview) (model.Review, error) {
	m.appendMu.Lock()
	defer m.appendMu.Unlock()

	r := model.Review{
		ID:        uuid.New().String(),
		Website:   in.Website,
		Product:   in.Product,
		Rating:    in.Rating,
		Feedback:  in.Feedback,
		Client:    in.Client,
		CreatedAt: m.clock.Next(),
	}

	slot := &reviewSlot{}
	slot.review.Store(&r)

	// Published snapshots never include index len(cur), so appending into
	// spare capacity is invisible to readers until the new header is stored.
	cur := *m.slots.Load()
	next := append(cur, slot)
	m.slots.Store(&next)
	m.byID.Store(r.ID, slot)

	return r, nil
}

func (m *Memory) AttachInsight(_ context.Context, reviewID string, insight model.Insight) error {
	v, ok := m.byID.Load(reviewID)
	if !ok {
		return ErrNotFound
	}
	slot := v.(*reviewSlot)

	attached := cloneInsight(insight)
	for {
		old := slot.review.Load()
		updated := *old
		updated.Insight = attached
		if slot.review.CompareAndSwap(old, &updated) {
			return nil
		}
	}
}

func (m *Memory) GetReview(_ context.Context, reviewID string) (model.Review, error) {
	v, ok := m.byID.Load(reviewID)
	if !ok {
		return model.Review{}, ErrNotFound
	}
	return *v.(*reviewSlot).review.Load(), nil
}

func (m *Memory) ListReviews(_ context.Context, key model.FilterKey, limit int) ([]model.Review, error) {
	snapshot := *m.slots.Load()

	var out []model.Review
	// Slots are appended in createdAt order, so walking backwards is newest first.
	for i := len(snapshot) - 1; i >= 0; i-- {
		r := *snapshot[i].review.Load()
		if !key.Matches(r) {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) LatestTimestamp(ctx context.Context, key model.FilterKey) (time.Time, bool, error) {
	latest, err := m.ListReviews(ctx, key, 1)
	if err != nil || len(latest) == 0 {
		return time.Time{}, false, err
	}
	return latest[0].CreatedAt, true, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

// Len returns the number of stored reviews.
func (m *Memory) Len() int {
	return len(*m.slots.Load())
}
