package fetcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesSubjectFilter(t *testing.T) {
	tests := []struct {
		name     string
		subject  string
		filter   string
		expected bool
	}{
		{"empty filter admits everything", "random newsletter", "", true},
		{"single term match", "Trip to Bali", "trip", true},
		{"case insensitive", "TRIP to Bali", "trip", true},
		{"term in filter list", "Need a flight quote", "trip,flight,quote", true},
		{"no term matches", "Invoice overdue", "trip,flight,quote", false},
		{"whitespace in filter terms", "Holiday plans", " holiday , travel ", true},
		{"empty subject no match", "", "trip", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, matchesSubjectFilter(tt.subject, tt.filter))
		})
	}
}
