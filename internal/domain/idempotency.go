package domain

import "time"

// IdempotencyEntry is a cached response for a replayed mutating request.
// A zero StatusCode marks a reservation whose request is still running.
type IdempotencyEntry struct {
	Key          string
	Caller       Account
	RequestHash  string
	StatusCode   int
	ResponseBody []byte
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

func (e IdempotencyEntry) Pending() bool {
	return e.StatusCode == 0
}
