// Package hub routes live messages to connected subscribers. Delivery is
// best-effort: a subscriber whose queue is full misses the message.
package hub

import (
	"sync"

	"github.com/google/uuid"

	"github.com/reviewsight/reviewsight/internal/metrics"
	"github.com/reviewsight/reviewsight/internal/model"
)

const DefaultBuffer = 64

const (
	TypeSnapshot    = "analytics_snapshot"
	TypeJobProgress = "job_progress"
	TypeJobComplete = "job_complete"
)

// Message is one live update as sent on the wire.
type Message struct {
	Type     string           `json:"type"`
	Filters  *model.FilterKey `json:"filters,omitempty"`
	Summary  *model.Summary   `json:"summary,omitempty"`
	JobID    string           `json:"job_id,omitempty"`
	ReviewID string           `json:"review_id,omitempty"`
	State    model.JobState   `json:"state,omitempty"`
	Insight  *model.Insight   `json:"insight,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func SnapshotMessage(key model.FilterKey, summary model.Summary) Message {
	return Message{Type: TypeSnapshot, Filters: &key, Summary: &summary}
}

func ProgressMessage(job model.Job) Message {
	return Message{Type: TypeJobProgress, JobID: job.ID, ReviewID: job.ReviewID, State: job.State}
}

func CompleteMessage(job model.Job) Message {
	return Message{
		Type:     TypeJobComplete,
		JobID:    job.ID,
		ReviewID: job.ReviewID,
		State:    job.State,
		Insight:  job.Insight,
		Error:    job.Error,
	}
}

// Subscriber is one live connection's routing state and outbound queue.
type Subscriber struct {
	ID     string
	Filter model.FilterKey

	// awaiting is the job whose completion has not been delivered yet; guarded by Hub.mu.
	awaiting string
	send     chan Message
	closed   bool
}

// Messages is closed when the subscriber is removed from the hub.
func (s *Subscriber) Messages() <-chan Message {
	return s.send
}

type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscriber
	buffer int
}

func New(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{subs: make(map[string]*Subscriber), buffer: buffer}
}

// Subscribe registers a subscriber for filter and, when jobID is set, for that
// job's progress and completion.
func (h *Hub) Subscribe(filter model.FilterKey, jobID string) *Subscriber {
	sub := &Subscriber{
		ID:       uuid.NewString(),
		Filter:   filter,
		awaiting: jobID,
		send:     make(chan Message, h.buffer),
	}

	h.mu.Lock()
	h.subs[sub.ID] = sub
	n := len(h.subs)
	h.mu.Unlock()

	metrics.HubSubscribers.Set(float64(n))
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[sub.ID]; ok {
		delete(h.subs, sub.ID)
		sub.closed = true
		close(sub.send)
	}
	n := len(h.subs)
	h.mu.Unlock()

	metrics.HubSubscribers.Set(float64(n))
}

// Deliver queues msg for one subscriber.
func (h *Hub) Deliver(sub *Subscriber, msg Message) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.deliver(sub, msg)
}

// NotifyJob delivers a job's completion to every subscriber still awaiting it
// and clears the wait, so each subscriber sees it at most once. Returns the
// number of subscribers reached.
func (h *Hub) NotifyJob(jobID string, msg Message) int {
	if jobID == "" {
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, sub := range h.subs {
		if sub.awaiting != jobID {
			continue
		}
		sub.awaiting = ""
		if h.deliver(sub, msg) {
			n++
		}
	}
	return n
}

// NotifyProgress delivers an intermediate job state to subscribers awaiting the job.
func (h *Hub) NotifyProgress(jobID string, msg Message) {
	if jobID == "" {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if sub.awaiting == jobID {
			h.deliver(sub, msg)
		}
	}
}

// BroadcastSnapshot sends a refreshed summary to subscribers filtering on
// exactly key and to unfiltered subscribers.
func (h *Hub) BroadcastSnapshot(key model.FilterKey, summary model.Summary) {
	msg := SnapshotMessage(key, summary)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if sub.Filter == key || sub.Filter.IsGlobal() {
			h.deliver(sub, msg)
		}
	}
}

// Len returns the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) deliver(sub *Subscriber, msg Message) bool {
	if sub.closed {
		return false
	}
	select {
	case sub.send <- msg:
		return true
	default:
		metrics.HubDroppedTotal.Inc()
		return false
	}
}
