package model

import (
	"time"
)

// JobState is a step of the insight pipeline for one review.
type JobState string

const (
	JobQueued      JobState = "queued"
	JobClassifying JobState = "classifying"
	JobCaching     JobState = "caching"
	JobDone        JobState = "done"
	JobFailed      JobState = "failed"
)

// Terminal reports whether no further transition can happen.
func (s JobState) Terminal() bool {
	return s == JobDone || s == JobFailed
}

// Job tracks one review submission through the pipeline.
type Job struct {
	ID        string    `json:"job_id"`
	ReviewID  string    `json:"review_id"`
	State     JobState  `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Insight   *Insight  `json:"insight,omitempty"`
	Error     string    `json:"error,omitempty"`
}
