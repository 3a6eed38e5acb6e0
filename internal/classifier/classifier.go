// Package classifier turns one review into an Insight, and a summary into a
// narrative, through a remote model with a deterministic fallback.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reviewsight/reviewsight/internal/metrics"
	"github.com/reviewsight/reviewsight/internal/model"
)

const (
	DefaultTimeout = 8 * time.Second
	maxSuggestions = 4
)

const classifySystem = "You analyse customer reviews for an online store. Return JSON only."

const classifyTemplate = `Given a star rating (1-5) and review text, return a JSON object with:
"user_summary": one concise sentence for the customer who wrote the review,
"user_suggestions": 3-4 short actionable items for the customer,
"vendor_summary": one concise sentence for the seller,
"vendor_suggestions": 3-4 short actionable items for the seller,
"classification": one of "product_issue", "delivery_issue", "sarcasm", "genuine", "other".

Website: %s
Product: %s
Rating: %d/5
Review: %s

Respond ONLY with the JSON object.`

type Classifier struct {
	gen     Generator
	timeout time.Duration
	now     func() time.Time
}

// New returns a classifier. A nil gen uses the heuristic path for every review.
func New(gen Generator, timeout time.Duration) *Classifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Classifier{gen: gen, timeout: timeout, now: time.Now}
}

type llmInsight struct {
	UserSummary       string   `json:"user_summary"`
	UserSuggestions   []string `json:"user_suggestions"`
	VendorSummary     string   `json:"vendor_summary"`
	VendorSuggestions []string `json:"vendor_suggestions"`
	Classification    string   `json:"classification"`
}

// Classify always returns an insight. Remote failures of any kind fall back
// to the heuristic.
func (c *Classifier) Classify(ctx context.Context, r model.Review) model.Insight {
	var insight model.Insight
	if c.gen != nil {
		var err error
		insight, err = c.generate(ctx, r)
		if err != nil {
			log.Warn().Err(err).Str("review_id", r.ID).Msg("Generation failed, using heuristic")
			insight = Heuristic(r)
		}
	} else {
		insight = Heuristic(r)
	}

	insight.GeneratedAt = c.now().UTC()
	metrics.ClassificationsTotal.WithLabelValues(string(insight.Source), string(insight.Classification)).Inc()
	return insight
}

func (c *Classifier) generate(ctx context.Context, r model.Review) (model.Insight, error) {
	text, err := call(ctx, c.gen, c.timeout, Prompt{
		System: classifySystem,
		User:   fmt.Sprintf(classifyTemplate, r.Website, r.Product, r.Rating, r.Feedback),
	})
	if err != nil {
		return model.Insight{}, err
	}

	var out llmInsight
	if err := decodeJSON(text, &out); err != nil {
		return model.Insight{}, fmt.Errorf("decode response: %w", err)
	}
	return out.toInsight()
}

func (o llmInsight) toInsight() (model.Insight, error) {
	insight := model.Insight{
		UserSummary:       strings.TrimSpace(o.UserSummary),
		UserSuggestions:   cleanList(o.UserSuggestions, maxSuggestions),
		VendorSummary:     strings.TrimSpace(o.VendorSummary),
		VendorSuggestions: cleanList(o.VendorSuggestions, maxSuggestions),
		Classification:    model.Classification(strings.ToLower(strings.TrimSpace(o.Classification))),
		Source:            model.SourceLLM,
	}

	switch {
	case insight.UserSummary == "" || insight.VendorSummary == "":
		return model.Insight{}, errors.New("response is missing a summary")
	case len(insight.UserSuggestions) == 0 || len(insight.VendorSuggestions) == 0:
		return model.Insight{}, errors.New("response is missing suggestions")
	case !insight.Classification.Valid():
		return model.Insight{}, fmt.Errorf("unknown classification %q", o.Classification)
	}
	return insight, nil
}

// call runs one generation bounded by timeout. A result that arrives after the
// deadline is discarded.
func call(ctx context.Context, gen Generator, timeout time.Duration, p Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ch <- result{err: fmt.Errorf("generator panic: %v", rec)}
			}
		}()
		text, err := gen.Generate(ctx, p)
		ch <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("generation: %w", ctx.Err())
	case res := <-ch:
		return res.text, res.err
	}
}
