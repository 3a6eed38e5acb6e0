package model

import (
	"math"
	"sort"
	"time"
)

// Breakdown is the per-website or per-product slice of a summary.
type Breakdown struct {
	Name      string  `json:"name"`
	Count     int     `json:"count"`
	AvgRating float64 `json:"avg_rating"`
}

// SortBreakdowns orders b by count descending, then by name.
func SortBreakdowns(b []Breakdown) {
	sort.Slice(b, func(i, j int) bool {
		if b[i].Count != b[j].Count {
			return b[i].Count > b[j].Count
		}
		return b[i].Name < b[j].Name
	})
}

// RoundRating rounds an average rating to two decimals.
func RoundRating(v float64) float64 {
	return math.Round(v*100) / 100
}

// Summary holds aggregate statistics over the reviews matching a FilterKey.
type Summary struct {
	TotalReviews         int                    `json:"total_reviews"`
	AvgRating            float64                `json:"avg_rating"`
	ClassificationCounts map[Classification]int `json:"classification_counts"`
	Unclassified         int                    `json:"unclassified"`
	WebsiteBreakdown     []Breakdown            `json:"website_breakdown"`
	ProductBreakdown     []Breakdown            `json:"product_breakdown"`
	LatestReviews        []Review               `json:"latest_reviews"`

	// SourceMaxTimestamp is the createdAt of the newest contributing review.
	SourceMaxTimestamp time.Time `json:"source_max_timestamp"`
}

// TopClassification returns the most frequent classification, ties broken by
// the order of Classifications. ok is false when no review is classified.
func (s Summary) TopClassification() (top Classification, ok bool) {
	best := 0
	for _, c := range Classifications {
		if n := s.ClassificationCounts[c]; n > best {
			top, best = c, n
		}
	}
	return top, best > 0
}

// Narrative is cross-review commentary attached to a cache entry.
type Narrative struct {
	Text            string        `json:"text"`
	Recommendations []string      `json:"recommendations"`
	Source          InsightSource `json:"source"`
}

// CacheEntry is the most recently computed aggregate for one FilterKey.
type CacheEntry struct {
	Key                FilterKey  `json:"filters"`
	Summary            Summary    `json:"summary"`
	Narrative          *Narrative `json:"narrative,omitempty"`
	SourceMaxTimestamp time.Time  `json:"source_max_timestamp"`
	ComputedAt         time.Time  `json:"computed_at"`
	Stale              bool       `json:"stale"`
}
