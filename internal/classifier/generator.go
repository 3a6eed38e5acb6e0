package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// Prompt is a single system + user exchange.
type Prompt struct {
	System string
	User   string
}

// Generator produces raw completion text for a prompt.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

var errNoJSON = errors.New("no JSON object in response")

// decodeJSON parses a JSON object out of model output, tolerating code
// fences and prose around the object.
func decodeJSON(text string, v interface{}) error {
	clean := strings.TrimSpace(text)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)

	if err := json.Unmarshal([]byte(clean), v); err == nil {
		return nil
	}

	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start < 0 || end <= start {
		return errNoJSON
	}
	return json.Unmarshal([]byte(clean[start:end+1]), v)
}

// cleanList trims entries, drops empty ones and keeps at most max.
func cleanList(in []string, max int) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == max {
			break
		}
	}
	return out
}
