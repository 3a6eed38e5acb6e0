package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/reviewsight/reviewsight/internal/enricher"
	"github.com/reviewsight/reviewsight/internal/hub"
	"github.com/reviewsight/reviewsight/internal/model"
	"github.com/reviewsight/reviewsight/internal/service"
	"github.com/reviewsight/reviewsight/internal/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	maxBodyBytes     = 64 << 10
)

type HTTPHandler struct {
	svc      *service.Service
	enricher *enricher.Enricher
	maxWait  time.Duration
}

func NewHTTPHandler(svc *service.Service, e *enricher.Enricher, maxWait time.Duration) *HTTPHandler {
	return &HTTPHandler{
		svc:      svc,
		enricher: e,
		maxWait:  maxWait,
	}
}

type HealthResponse struct {
	Status string `json:"status"`
	DB     string `json:"db"`
}

type SubmitResponse struct {
	JobID     string         `json:"job_id"`
	ReviewID  string         `json:"review_id"`
	State     model.JobState `json:"state"`
	CreatedAt time.Time      `json:"created_at"`
	Insight   *model.Insight `json:"insight,omitempty"`
	Error     string         `json:"error,omitempty"`
}

type ReviewsResponse struct {
	Reviews []model.Review `json:"reviews"`
	Count   int            `json:"count"`
}

type SummaryResponse struct {
	Filters    model.FilterKey `json:"filters"`
	Summary    model.Summary   `json:"summary"`
	ComputedAt time.Time       `json:"computed_at"`
}

type InsightsResponse struct {
	Filters            model.FilterKey     `json:"filters"`
	Summary            string              `json:"summary"`
	Recommendations    []string            `json:"recommendations"`
	Source             model.InsightSource `json:"source"`
	GeneratedAt        time.Time           `json:"generated_at"`
	SourceLastReviewAt *time.Time          `json:"source_last_review_at"`
	Stale              bool                `json:"stale"`
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.svc.Health(ctx); err != nil {
		log.Warn().Err(err).Msg("Health check failed")
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", DB: "down"})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", DB: "up"})
}

func (h *HTTPHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	wait, err := h.waitParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var in model.NewReview
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	// Get client IP for enrichment; RealIP has already applied proxy headers
	in.Client = h.enricher.Enrich(r.Header.Get("User-Agent"), r.RemoteAddr)

	job, err := h.svc.Submit(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if wait > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), wait)
		defer cancel()
		if done, err := h.svc.WaitJob(ctx, job.ID); err == nil {
			writeJSON(w, http.StatusOK, submitResponse(done))
			return
		}
		if current, ok := h.svc.Job(job.ID); ok {
			job = current
		}
	}

	writeJSON(w, http.StatusAccepted, submitResponse(job))
}

func (h *HTTPHandler) waitParam(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("wait")
	if raw == "" {
		return 0, nil
	}
	wait, err := time.ParseDuration(raw)
	if err != nil || wait < 0 {
		return 0, errors.New("wait must be a non-negative duration such as 5s")
	}
	if wait > h.maxWait {
		wait = h.maxWait
	}
	return wait, nil
}

func submitResponse(job model.Job) SubmitResponse {
	return SubmitResponse{
		JobID:     job.ID,
		ReviewID:  job.ReviewID,
		State:     job.State,
		CreatedAt: job.CreatedAt,
		Insight:   job.Insight,
		Error:     job.Error,
	}
}

func (h *HTTPHandler) HandleListReviews(w http.ResponseWriter, r *http.Request) {
	key, err := model.FilterKeyFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxListLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
	}

	reviews, err := h.svc.ListReviews(r.Context(), key, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if reviews == nil {
		reviews = []model.Review{}
	}
	writeJSON(w, http.StatusOK, ReviewsResponse{Reviews: reviews, Count: len(reviews)})
}

func (h *HTTPHandler) HandleGetReview(w http.ResponseWriter, r *http.Request) {
	review, err := h.svc.GetReview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

func (h *HTTPHandler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.Retry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse(job))
}

func (h *HTTPHandler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.svc.Job(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *HTTPHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	key, err := model.FilterKeyFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := h.svc.Summary(r.Context(), key)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SummaryResponse{Filters: key, Summary: entry.Summary, ComputedAt: entry.ComputedAt})
}

func (h *HTTPHandler) HandleInsights(w http.ResponseWriter, r *http.Request) {
	key, err := model.FilterKeyFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := h.svc.Insights(r.Context(), key)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := InsightsResponse{
		Filters:         key,
		Recommendations: []string{},
		GeneratedAt:     entry.ComputedAt,
		Stale:           entry.Stale,
	}
	if entry.Narrative != nil {
		resp.Summary = entry.Narrative.Text
		resp.Recommendations = entry.Narrative.Recommendations
		resp.Source = entry.Narrative.Source
	}
	if !entry.SourceMaxTimestamp.IsZero() {
		ts := entry.SourceMaxTimestamp
		resp.SourceLastReviewAt = &ts
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) HandleWebsocket(w http.ResponseWriter, r *http.Request) {
	if h.svc.Hub() == nil {
		writeError(w, http.StatusServiceUnavailable, service.ErrLiveDisabled.Error())
		return
	}
	key, err := model.FilterKeyFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := hub.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}

	sub, err := h.svc.Subscribe(r.Context(), key, r.URL.Query().Get("job_id"))
	if err != nil {
		conn.Close()
		return
	}
	h.svc.Hub().Serve(conn, sub)
}

func (h *HTTPHandler) writeServiceError(w http.ResponseWriter, err error) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, service.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		log.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
