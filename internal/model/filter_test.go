package model

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAffectedKeys(t *testing.T) {
	r := Review{Website: "alpha-shop", Product: "alpha-phone"}

	keys := AffectedKeys(r)
	assert.Len(t, keys, 4)
	assert.Contains(t, keys, GlobalKey)
	assert.Contains(t, keys, FilterKey{Website: "alpha-shop", Product: "alpha-phone"})

	r.Insight = &Insight{Classification: ClassProductIssue}
	keys = AffectedKeys(r)
	assert.Len(t, keys, 8)
	assert.Contains(t, keys, FilterKey{Website: "alpha-shop", Product: "alpha-phone", Classification: ClassProductIssue})
	assert.Contains(t, keys, FilterKey{Classification: ClassProductIssue})

	seen := make(map[FilterKey]bool)
	for _, k := range keys {
		assert.False(t, seen[k], "duplicate key %s", k)
		seen[k] = true
		assert.True(t, k.Matches(r), "key %s must match the review", k)
	}
}

func TestFilterKey_Matches(t *testing.T) {
	r := Review{Website: "w", Product: "p", Insight: &Insight{Classification: ClassGenuine}}

	tests := []struct {
		name string
		key  FilterKey
		want bool
	}{
		{"global", GlobalKey, true},
		{"website", FilterKey{Website: "w"}, true},
		{"other website", FilterKey{Website: "x"}, false},
		{"classification", FilterKey{Classification: ClassGenuine}, true},
		{"other classification", FilterKey{Classification: ClassSarcasm}, false},
		{"full", FilterKey{Website: "w", Product: "p", Classification: ClassGenuine}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.Matches(r))
		})
	}

	unclassified := Review{Website: "w", Product: "p"}
	assert.False(t, FilterKey{Classification: ClassGenuine}.Matches(unclassified))
}

func TestFilterKey_StringIsUnambiguous(t *testing.T) {
	a := FilterKey{Website: "a|b", Product: "c"}
	b := FilterKey{Website: "a", Product: "b|c"}
	assert.NotEqual(t, a.String(), b.String())
}

func TestFilterKeyFromQuery(t *testing.T) {
	key, err := FilterKeyFromQuery(url.Values{"website": {"w"}, "classification": {"sarcasm"}})
	require.NoError(t, err)
	assert.Equal(t, FilterKey{Website: "w", Classification: ClassSarcasm}, key)

	_, err = FilterKeyFromQuery(url.Values{"classification": {"angry"}})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "classification", verr.Field)
}

func TestNewReview_Validate(t *testing.T) {
	tests := []struct {
		name  string
		in    NewReview
		field string
	}{
		{"ok", NewReview{Website: "w", Product: "p", Rating: 3, Feedback: "fine"}, ""},
		{"missing website", NewReview{Product: "p", Rating: 3, Feedback: "fine"}, "website"},
		{"missing product", NewReview{Website: "w", Rating: 3, Feedback: "fine"}, "product"},
		{"rating low", NewReview{Website: "w", Product: "p", Rating: 0, Feedback: "fine"}, "rating"},
		{"rating high", NewReview{Website: "w", Product: "p", Rating: 6, Feedback: "fine"}, "rating"},
		{"short feedback", NewReview{Website: "w", Product: "p", Rating: 3, Feedback: "  ok "}, "feedback"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestSummary_TopClassification(t *testing.T) {
	_, ok := Summary{}.TopClassification()
	assert.False(t, ok)

	s := Summary{ClassificationCounts: map[Classification]int{ClassGenuine: 2, ClassSarcasm: 2, ClassOther: 1}}
	top, ok := s.TopClassification()
	assert.True(t, ok)
	// ties go to the earlier entry in Classifications
	assert.Equal(t, ClassSarcasm, top)
}
