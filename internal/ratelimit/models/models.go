package models

import "time"

// Class groups endpoints that share a limit.
type Class string

const (
	// ClassAuth covers registration and login, keyed by client IP.
	ClassAuth Class = "auth"
	// ClassKYC covers the bearer-protected KYC routes, keyed by user.
	ClassKYC Class = "kyc"
)

// Policy is a sliding-window allowance.
type Policy struct {
	Limit  int
	Window time.Duration
}

// RateLimitResult is the outcome of one bucket check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the whole number of seconds until the bucket frees a slot,
// never less than one.
func (r *RateLimitResult) RetryAfter(now time.Time) int {
	d := r.ResetAt.Sub(now)
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// RateLimitExceededResponse is the 429 body.
type RateLimitExceededResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
	RetryAfter  int    `json:"retry_after"`
}
