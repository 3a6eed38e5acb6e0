package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reviewsight/reviewsight/internal/model"
)

const maxActions = 3

const narrateSystem = "Return concise analytics insight as JSON."

const narrateTemplate = `You are an analytics copilot. Given metrics, produce a short, non-redundant insight (1-2 sentences) and 3 concise action recommendations. Keep it business-focused and avoid repeating raw numbers.

Metrics:
Total reviews: %d
Average rating: %.2f
Classification counts: %s
Top websites: %s
Top products: %s
Filters: %s

Return JSON with keys "insight" (string) and "actions" (array of 3 short strings).`

// Narrator writes cross-review commentary for a summary.
type Narrator struct {
	gen     Generator
	timeout time.Duration
}

// NewNarrator returns a narrator. A nil gen always uses the template.
func NewNarrator(gen Generator, timeout time.Duration) *Narrator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Narrator{gen: gen, timeout: timeout}
}

type llmNarrative struct {
	Insight string   `json:"insight"`
	Actions []string `json:"actions"`
}

func (n *Narrator) Narrate(ctx context.Context, key model.FilterKey, s model.Summary) model.Narrative {
	if n.gen != nil {
		out, err := n.generate(ctx, key, s)
		if err == nil {
			return out
		}
		log.Warn().Err(err).Str("key", key.String()).Msg("Narrative generation failed, using template")
	}
	return TemplateNarrative(key, s)
}

func (n *Narrator) generate(ctx context.Context, key model.FilterKey, s model.Summary) (model.Narrative, error) {
	text, err := call(ctx, n.gen, n.timeout, Prompt{
		System: narrateSystem,
		User: fmt.Sprintf(narrateTemplate,
			s.TotalReviews, s.AvgRating, formatCounts(s), formatBreakdown(s.WebsiteBreakdown),
			formatBreakdown(s.ProductBreakdown), formatFilters(key)),
	})
	if err != nil {
		return model.Narrative{}, err
	}

	var out llmNarrative
	if err := decodeJSON(text, &out); err != nil {
		return model.Narrative{}, fmt.Errorf("decode response: %w", err)
	}
	insight := strings.TrimSpace(out.Insight)
	if insight == "" {
		return model.Narrative{}, errors.New("response is missing an insight")
	}
	return model.Narrative{
		Text:            insight,
		Recommendations: cleanList(out.Actions, maxActions),
		Source:          model.SourceLLM,
	}, nil
}

// TemplateNarrative is the deterministic narrative used without a model.
func TemplateNarrative(key model.FilterKey, s model.Summary) model.Narrative {
	theme := "none"
	if top, ok := s.TopClassification(); ok {
		theme = string(top)
	}
	return model.Narrative{
		Text: fmt.Sprintf("%d reviews with avg rating %.2f. Top theme: %s. Filters: %s.",
			s.TotalReviews, s.AvgRating, theme, formatFilters(key)),
		Recommendations: []string{
			"Dig into the top theme and address root causes",
			"Highlight wins from high-rated segments",
			"Track changes after fixes and monitor rating trend",
		},
		Source: model.SourceHeuristic,
	}
}

func formatFilters(key model.FilterKey) string {
	var parts []string
	if key.Website != "" {
		parts = append(parts, "website="+key.Website)
	}
	if key.Product != "" {
		parts = append(parts, "product="+key.Product)
	}
	if key.Classification != "" {
		parts = append(parts, "classification="+string(key.Classification))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

func formatCounts(s model.Summary) string {
	var parts []string
	for _, c := range model.Classifications {
		if n := s.ClassificationCounts[c]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", c, n))
		}
	}
	if s.Unclassified > 0 {
		parts = append(parts, fmt.Sprintf("unclassified=%d", s.Unclassified))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

func formatBreakdown(b []model.Breakdown) string {
	if len(b) > 3 {
		b = b[:3]
	}
	parts := make([]string, 0, len(b))
	for _, item := range b {
		parts = append(parts, fmt.Sprintf("%s (%d, avg %.2f)", item.Name, item.Count, item.AvgRating))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "; ")
}
