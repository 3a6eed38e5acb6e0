package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/reviewsight/reviewsight/internal/model"
)

var (
	apiFlag   string
	waitFlag  time.Duration
	delayFlag time.Duration
	rootCmd   = &cobra.Command{
		Use:   "review-seed",
		Short: "Submit a synthetic review dataset to a running review service",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := resty.New().
				SetBaseURL(apiFlag).
				SetTimeout(waitFlag + 10*time.Second)
			return runSeed(cmd.Context(), client, buildDataset(), cmd.OutOrStdout())
		},
	}
)

type seedResult struct {
	JobID string         `json:"job_id"`
	State model.JobState `json:"state"`
}

func runSeed(ctx context.Context, client *resty.Client, reviews []model.NewReview, out io.Writer) error {
	var accepted, failed int
	for i, review := range reviews {
		var result seedResult
		req := client.R().
			SetContext(ctx).
			SetBody(review).
			SetResult(&result)
		if waitFlag > 0 {
			req.SetQueryParam("wait", waitFlag.String())
		}

		resp, err := req.Post("/reviews")
		if err != nil {
			return fmt.Errorf("submit review %d: %w", i, err)
		}
		if resp.IsError() {
			failed++
			_, _ = fmt.Fprintf(out, "review %d rejected: %s %s\n", i, resp.Status(), resp.String())
		} else {
			accepted++
			_, _ = fmt.Fprintf(out, "%s %s/%s job=%s state=%s\n", review.Website, review.Product, ratingStars(review.Rating), result.JobID, result.State)
		}

		if delayFlag > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delayFlag):
			}
		}
	}

	_, _ = fmt.Fprintf(out, "Submitted %d reviews (%d rejected).\n", accepted, failed)
	if failed > 0 {
		return fmt.Errorf("%d reviews rejected", failed)
	}
	return nil
}

func ratingStars(rating int) string {
	return fmt.Sprintf("%d*", rating)
}

func main() {
	rootCmd.Flags().StringVarP(&apiFlag, "api", "a", "http://localhost:8000", "Review service base URL")
	rootCmd.Flags().DurationVarP(&waitFlag, "wait", "w", 0, "Wait for each job up to this long before moving on")
	rootCmd.Flags().DurationVarP(&delayFlag, "delay", "d", 60*time.Millisecond, "Pause between submissions")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
