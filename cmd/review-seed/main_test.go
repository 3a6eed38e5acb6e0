package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewsight/reviewsight/internal/model"
)

func TestBuildDataset(t *testing.T) {
	reviews := buildDataset()
	require.GreaterOrEqual(t, len(reviews), minSeedReviews)

	sites := map[string]int{}
	for i := range reviews {
		r := reviews[i]
		require.NoError(t, r.Validate(), "review %d", i)
		sites[r.Website]++
	}
	assert.Len(t, sites, 3)
}

func TestRunSeed(t *testing.T) {
	var posted atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in model.NewReview
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		if in.Rating == 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		posted.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"job_id": "j", "state": "queued"})
	}))
	defer srv.Close()

	reviews := []model.NewReview{
		{Website: "w", Product: "p", Rating: 5, Feedback: "great"},
		{Website: "w", Product: "p", Rating: 3, Feedback: "fine"},
	}
	var out bytes.Buffer
	err := runSeed(context.Background(), resty.New().SetBaseURL(srv.URL), reviews, &out)

	assert.EqualError(t, err, "1 reviews rejected")
	assert.Equal(t, int32(1), posted.Load())
	assert.Contains(t, out.String(), "job=j state=queued")
	assert.Contains(t, out.String(), "Submitted 1 reviews (1 rejected).")
}
