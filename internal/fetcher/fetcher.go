package fetcher

import (
	"context"
	"strings"

	"travel-inquiry-agent/internal/model"
)

// Fetcher retrieves new messages from a mailbox. Implementations track
// their own cursor: each call returns messages that arrived since the
// previous call, capped at max. Redelivery across calls is allowed; the
// pipeline's dedup cache absorbs it.
type Fetcher interface {
	FetchBatch(ctx context.Context, max int) ([]model.EmailMessage, error)
	Close() error
}

// matchesSubjectFilter reports whether the message looks like a travel
// inquiry. An empty filter admits everything.
func matchesSubjectFilter(subject, filter string) bool {
	if filter == "" {
		return true
	}
	subject = strings.ToLower(subject)
	for _, term := range strings.Split(strings.ToLower(filter), ",") {
		term = strings.TrimSpace(term)
		if term != "" && strings.Contains(subject, term) {
			return true
		}
	}
	return false
}
