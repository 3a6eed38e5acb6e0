package model

import (
	"time"
)

// Classification is the closed set of categories an insight can carry.
type Classification string

const (
	ClassProductIssue  Classification = "product_issue"
	ClassDeliveryIssue Classification = "delivery_issue"
	ClassSarcasm       Classification = "sarcasm"
	ClassGenuine       Classification = "genuine"
	ClassOther         Classification = "other"
)

// Classifications lists every valid classification in display order.
var Classifications = []Classification{
	ClassProductIssue,
	ClassDeliveryIssue,
	ClassSarcasm,
	ClassGenuine,
	ClassOther,
}

// Valid reports whether c belongs to the closed set.
func (c Classification) Valid() bool {
	switch c {
	case ClassProductIssue, ClassDeliveryIssue, ClassSarcasm, ClassGenuine, ClassOther:
		return true
	}
	return false
}

// InsightSource records which path produced an insight.
type InsightSource string

const (
	SourceLLM       InsightSource = "llm"
	SourceHeuristic InsightSource = "heuristic"
)

// Insight is the per-review output of the classifier.
type Insight struct {
	UserSummary       string         `json:"user_summary"`
	UserSuggestions   []string       `json:"user_suggestions"`
	VendorSummary     string         `json:"vendor_summary"`
	VendorSuggestions []string       `json:"vendor_suggestions"`
	Classification    Classification `json:"classification"`
	Source            InsightSource  `json:"source"`
	GeneratedAt       time.Time      `json:"generated_at"`
}

// ClientInfo is request metadata stamped on a review at submission time.
type ClientInfo struct {
	DeviceType string `json:"device_type,omitempty"`
	Browser    string `json:"browser,omitempty"`
	OS         string `json:"os,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Review is a submitted rating plus feedback text.
type Review struct {
	ID        string     `json:"id"`
	Website   string     `json:"website"`
	Product   string     `json:"product"`
	Rating    int        `json:"rating"`
	Feedback  string     `json:"feedback"`
	CreatedAt time.Time  `json:"created_at"`
	Insight   *Insight   `json:"insight,omitempty"`
	Client    ClientInfo `json:"client,omitempty"`
}

// Classification returns the attached classification, or "" when the review
// has not been classified yet.
func (r Review) Classification() Classification {
	if r.Insight == nil {
		return ""
	}
	return r.Insight.Classification
}

// NewReview carries the fields accepted from a submitter.
type NewReview struct {
	Website  string     `json:"website"`
	Product  string     `json:"product"`
	Rating   int        `json:"rating"`
	Feedback string     `json:"feedback"`
	Client   ClientInfo `json:"-"`
}
