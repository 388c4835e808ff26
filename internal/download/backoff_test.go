package download

import (
	"net/http"
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	base := 30 * time.Second
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: 30 * time.Second},
		{attempt: 2, want: 60 * time.Second},
		{attempt: 3, want: 120 * time.Second},
		{attempt: 4, want: 240 * time.Second},
		{attempt: 0, want: 30 * time.Second},
		{attempt: -1, want: 30 * time.Second},
	}

	for _, tt := range tests {
		if got := Backoff(tt.attempt, base); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRateLimitDelay(t *testing.T) {
	min := 60 * time.Second
	tests := []struct {
		name       string
		retryAfter string
		want       time.Duration
	}{
		{name: "no header", retryAfter: "", want: min},
		{name: "hint below floor", retryAfter: "5", want: min},
		{name: "hint above floor", retryAfter: "120", want: 120 * time.Second},
		{name: "non-numeric hint", retryAfter: "Wed, 21 Oct 2026 07:28:00 GMT", want: min},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.retryAfter != "" {
				h.Set("Retry-After", tt.retryAfter)
			}
			if got := RateLimitDelay(h, min); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
