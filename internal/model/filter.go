package model

import (
	"net/url"
	"strconv"
)

// FilterKey selects a subset of reviews. An empty component means "any";
// the zero value is the unfiltered global key.
type FilterKey struct {
	Website        string         `json:"website,omitempty"`
	Product        string         `json:"product,omitempty"`
	Classification Classification `json:"classification,omitempty"`
}

// GlobalKey is the unfiltered key.
var GlobalKey = FilterKey{}

// IsGlobal reports whether every component is "any".
func (k FilterKey) IsGlobal() bool {
	return k == GlobalKey
}

// Matches reports whether r satisfies every constrained component of k.
// An unclassified review only matches keys with an unconstrained classification.
func (k FilterKey) Matches(r Review) bool {
	if k.Website != "" && k.Website != r.Website {
		return false
	}
	if k.Product != "" && k.Product != r.Product {
		return false
	}
	if k.Classification != "" && k.Classification != r.Classification() {
		return false
	}
	return true
}

// String is an unambiguous canonical form, used for external keys.
func (k FilterKey) String() string {
	return strconv.Quote(k.Website) + "|" + strconv.Quote(k.Product) + "|" + strconv.Quote(string(k.Classification))
}

// FilterKeyFromQuery reads the optional website/product/classification parameters.
func FilterKeyFromQuery(q url.Values) (FilterKey, error) {
	key := FilterKey{
		Website: q.Get("website"),
		Product: q.Get("product"),
	}
	if c := q.Get("classification"); c != "" {
		key.Classification = Classification(c)
		if !key.Classification.Valid() {
			return FilterKey{}, &ValidationError{Field: "classification", Message: "unknown classification " + strconv.Quote(c)}
		}
	}
	return key, nil
}

// AffectedKeys returns every key whose constraints r satisfies: the cross product
// of {value, any} over website, product and, once known, classification.
func AffectedKeys(r Review) []FilterKey {
	websites := []string{r.Website, ""}
	products := []string{r.Product, ""}
	classes := []Classification{""}
	if c := r.Classification(); c != "" {
		classes = []Classification{c, ""}
	}

	keys := make([]FilterKey, 0, len(websites)*len(products)*len(classes))
	for _, w := range websites {
		for _, p := range products {
			for _, c := range classes {
				keys = append(keys, FilterKey{Website: w, Product: p, Classification: c})
			}
		}
	}
	return keys
}
