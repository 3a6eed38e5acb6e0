package main

import "github.com/reviewsight/reviewsight/internal/model"

const minSeedReviews = 50

// buildDataset returns a fixed mix of reviews across three shops: a happy
// alpha-shop, product complaints at beta-store, delivery complaints at
// gamma-mart, plus some sarcasm and neutral feedback.
func buildDataset() []model.NewReview {
	var out []model.NewReview
	add := func(website, product string, rating int, feedback string) {
		out = append(out, model.NewReview{Website: website, Product: product, Rating: rating, Feedback: feedback})
	}

	alpha := []string{
		"Loved the alpha phone, smooth and reliable.",
		"Alpha case fits perfectly and feels premium.",
		"Alpha charge is fast and dependable.",
		"Great experience with alpha products.",
		"Alpha phone camera is excellent.",
	}
	for _, fb := range alpha {
		add("alpha-shop", "alpha-phone", 5, fb)
	}
	for _, fb := range alpha {
		add("alpha-shop", "alpha-case", 4, fb+" Nice design.")
	}
	for _, fb := range alpha {
		add("alpha-shop", "alpha-charge", 5, fb+" Battery lasts long.")
	}

	mouse := []string{
		"beta mouse is laggy and unresponsive.",
		"beta mouse clicks fail often.",
		"beta mouse feels cheap and drags.",
		"beta mouse stopped working quickly.",
	}
	for _, fb := range mouse {
		add("beta-store", "beta-mouse", 1, fb)
		add("beta-store", "beta-mouse", 2, fb+" Needs fixes.")
	}
	add("beta-store", "beta-band", 2, "beta band is expensive and honestly too expensive for the features.")
	add("beta-store", "beta-band", 2, "beta band feels expensive expensive with little value.")
	add("beta-store", "beta-laptop", 3, "beta laptop runs warm but usable.")
	add("beta-store", "beta-bag", 4, "beta bag is sturdy and spacious.")

	delivery := []string{
		"gamma watch arrived late, delivery issue.",
		"gamma band shipped late and box was damaged.",
		"gamma scale delivery delay annoyed me.",
		"gamma watch delayed delivery, packaging dented.",
		"gamma band delivery tracking was missing.",
	}
	for _, fb := range delivery {
		add("gamma-mart", "gamma-watch", 2, fb)
		add("gamma-mart", "gamma-band", 3, fb+" Please fix shipping.")
	}

	add("beta-store", "beta-mouse", 2, "Yeah right, totally the best mouse ever (sarcasm).")
	add("gamma-mart", "gamma-band", 2, "Sure, delivery was lightning fast... not really.")

	add("alpha-shop", "alpha-phone", 3, "Decent but nothing special.")
	add("beta-store", "beta-laptop", 3, "Average performance, okay value.")
	add("gamma-mart", "gamma-scale", 3, "Works fine so far.")

	for len(out) < minSeedReviews {
		add("alpha-shop", "alpha-charge", 5, "Consistently great alpha experience.")
	}
	return out
}
