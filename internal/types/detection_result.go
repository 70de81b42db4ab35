package types

import "time"

// DetectionResult is an append-only record of one detector submission,
// written whether it passed or failed (§3, §9 resolved open question).
type DetectionResult struct {
	ID        int64
	ArticleID int64

	Detector  string
	Score     float64
	Threshold float64
	Passed    bool

	DetectedAt time.Time

	// Diagnostic carries free-form operational detail: profile id, observed
	// egress IP, attempt count, page status ("success"/"partial_success"/...).
	Diagnostic map[string]any
}
