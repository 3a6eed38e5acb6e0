package classifier

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/reviewsight/reviewsight/internal/model"
)

var (
	positiveWords = words("great", "love", "loved", "excellent", "amazing", "perfect", "awesome",
		"fantastic", "happy", "best", "recommend", "good", "nice", "wonderful", "superb", "works")
	negativeWords = words("broke", "broken", "bad", "terrible", "awful", "worst", "poor", "defective",
		"disappointed", "disappointing", "useless", "waste", "crash", "crashes", "bug", "buggy", "error",
		"issue", "problem", "faulty", "horrible", "refund", "cheap", "flimsy", "stopped", "damaged")
	deliveryWords = words("delivery", "delivered", "shipping", "shipped", "shipment", "package",
		"parcel", "courier", "arrived", "late", "delayed", "tracking", "carrier", "dispatch")

	sarcasmMarkers = []string{"yeah right", "oh great", "just great", "thanks for nothing",
		"so much for", "what a joke", "totally worth", "just what i needed", "/s"}
)

func words(ws ...string) map[string]bool {
	m := make(map[string]bool, len(ws))
	for _, w := range ws {
		m[w] = true
	}
	return m
}

type signals struct {
	positive int
	negative int
	delivery bool
	sarcasm  bool
	text     string
}

func (s signals) score() int {
	return s.positive - s.negative
}

func readSignals(feedback string) signals {
	text := strings.ToLower(strings.Join(strings.Fields(feedback), " "))
	s := signals{text: text}

	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	for _, tok := range tokens {
		switch {
		case positiveWords[tok]:
			s.positive++
		case negativeWords[tok]:
			s.negative++
		}
		if deliveryWords[tok] {
			s.delivery = true
		}
	}
	for _, m := range sarcasmMarkers {
		if strings.Contains(text, m) {
			s.sarcasm = true
			break
		}
	}
	return s
}

// classify applies the rules in order: tone mismatch, delivery, negative
// low rating, unexplained low rating, everything else.
func classify(rating int, s signals) model.Classification {
	switch {
	case rating <= 2 && (s.score() >= 2 || s.sarcasm):
		return model.ClassSarcasm
	case rating >= 4 && s.score() <= -2:
		return model.ClassSarcasm
	case s.delivery:
		return model.ClassDeliveryIssue
	case rating <= 2 && s.negative > 0:
		return model.ClassProductIssue
	case rating <= 2:
		return model.ClassOther
	default:
		return model.ClassGenuine
	}
}

// Heuristic builds an insight from keyword and rating rules alone. It never fails.
func Heuristic(r model.Review) model.Insight {
	s := readSignals(r.Feedback)
	class := classify(r.Rating, s)
	short := shorten(strings.Join(strings.Fields(r.Feedback), " "), 220, 210)

	return model.Insight{
		UserSummary:       fmt.Sprintf("A %s %d/5 review: %s", tone(r.Rating), r.Rating, short),
		UserSuggestions:   userSuggestions(r.Rating, s.text),
		VendorSummary:     vendorSummary(r, class, short),
		VendorSuggestions: vendorSuggestions(class, s.text),
		Classification:    class,
		Source:            model.SourceHeuristic,
	}
}

func tone(rating int) string {
	switch {
	case rating >= 5:
		return "extremely positive"
	case rating == 4:
		return "positive"
	case rating == 3:
		return "mixed"
	case rating == 2:
		return "negative"
	default:
		return "very negative"
	}
}

// shorten cuts text longer than limit back to the last word boundary within cut runes.
func shorten(text string, limit, cut int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	head := string(runes[:cut])
	if i := strings.LastIndex(head, " "); i > 0 {
		head = head[:i]
	}
	return head + "…"
}

func userSuggestions(rating int, text string) []string {
	var out []string
	switch {
	case rating >= 5:
		out = []string{
			"Acknowledge the praise and keep consistency",
			"Identify what delighted the user and amplify it",
			"Invite a testimonial or referral",
		}
	case rating == 4:
		out = []string{
			"Thank the user and address minor issues",
			"Monitor recurring themes to reach 5/5",
			"Offer tips or resources to enhance value",
		}
	case rating == 3:
		out = []string{
			"Reach out to clarify pain points",
			"Prioritize quick wins to improve experience",
			"Provide guidance or better onboarding",
		}
	case rating == 2:
		out = []string{
			"Contact the user to resolve issues",
			"Fix top friction points causing dissatisfaction",
			"Offer a make-good (discount, support session)",
		}
	default:
		out = []string{
			"Escalate and remediate critical issues immediately",
			"Conduct root-cause analysis on failures",
			"Proactively follow up after fixes",
		}
	}
	if extra := keywordSuggestion(text); extra != "" {
		out = append(out, extra)
	}
	return out
}

func keywordSuggestion(text string) string {
	switch {
	case containsAny(text, "slow", "lag", "performance", "loading"):
		return "Improve performance and loading responsiveness"
	case containsAny(text, "bug", "crash", "error", "issue"):
		return "Fix stability issues and add regression tests"
	case containsAny(text, "price", "cost", "expensive", "pricing"):
		return "Review pricing and communicate value more clearly"
	case containsAny(text, "support", "help", "service", "response"):
		return "Improve support responsiveness and resolution quality"
	}
	return ""
}

func containsAny(text string, subs ...string) bool {
	for _, s := range subs {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

func vendorSummary(r model.Review, class model.Classification, short string) string {
	var label string
	switch class {
	case model.ClassProductIssue:
		label = "Product issue reported"
	case model.ClassDeliveryIssue:
		label = "Delivery complaint"
	case model.ClassSarcasm:
		label = "Rating and tone disagree"
	case model.ClassGenuine:
		label = "Genuine feedback"
	default:
		label = "Unclear complaint"
	}
	return fmt.Sprintf("%s for %s on %s (%d/5): %s", label, r.Product, r.Website, r.Rating, short)
}

func vendorSuggestions(class model.Classification, text string) []string {
	var out []string
	switch class {
	case model.ClassProductIssue:
		out = []string{
			"Log the defect with the product team",
			"Check quality control for the affected batch",
			"Offer the customer a replacement or refund",
		}
	case model.ClassDeliveryIssue:
		out = []string{
			"Review carrier performance for this order",
			"Send proactive shipping status updates",
			"Compensate the customer for the delay",
		}
	case model.ClassSarcasm:
		out = []string{
			"Read the full review before acting on the rating",
			"Follow up personally to find the real complaint",
			"Exclude this review from automated rating alerts",
		}
	case model.ClassGenuine:
		out = []string{
			"Share the feedback with the team",
			"Keep what works consistent across releases",
			"Ask the customer for a public testimonial",
		}
	default:
		out = []string{
			"Contact the customer to clarify the problem",
			"Tag the review for manual triage",
			"Watch for similar low ratings on this product",
		}
	}
	if extra := keywordSuggestion(text); extra != "" {
		out = append(out, extra)
	}
	return out
}
