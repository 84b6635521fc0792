package models

import "time"

// EndpointClass groups routes that share a request budget.
type EndpointClass string

const (
	// ClassAuth covers credential endpoints such as /auth/login.
	ClassAuth EndpointClass = "auth"
	// ClassInbound covers provider callbacks and public web forms.
	ClassInbound EndpointClass = "inbound"
)

// Limit is a sliding-window budget. A non-positive Requests means unlimited.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Unlimited reports whether the limit never rejects.
func (l Limit) Unlimited() bool {
	return l.Requests <= 0 || l.Window <= 0
}

// RateLimitResult is the outcome of a single Allow call.
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter int // seconds
}

// RateLimitExceededResponse is the body written with 429.
type RateLimitExceededResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
	RetryAfter  int    `json:"retry_after"`
}
