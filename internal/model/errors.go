package model

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MinRating         = 1
	MaxRating         = 5
	MinFeedbackLength = 3
	MaxFeedbackLength = 4000
)

// ValidationError is returned for malformed submissions. It never reaches the pipeline.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a submission and normalizes surrounding whitespace in place.
func (n *NewReview) Validate() error {
	n.Website = strings.TrimSpace(n.Website)
	n.Product = strings.TrimSpace(n.Product)
	n.Feedback = strings.TrimSpace(n.Feedback)

	if n.Website == "" {
		return &ValidationError{Field: "website", Message: "is required"}
	}
	if n.Product == "" {
		return &ValidationError{Field: "product", Message: "is required"}
	}
	if n.Rating < MinRating || n.Rating > MaxRating {
		return &ValidationError{Field: "rating", Message: fmt.Sprintf("must be between %d and %d", MinRating, MaxRating)}
	}
	length := utf8.RuneCountInString(n.Feedback)
	if length < MinFeedbackLength {
		return &ValidationError{Field: "feedback", Message: fmt.Sprintf("must be at least %d characters", MinFeedbackLength)}
	}
	if length > MaxFeedbackLength {
		return &ValidationError{Field: "feedback", Message: fmt.Sprintf("must be at most %d characters", MaxFeedbackLength)}
	}
	return nil
}
