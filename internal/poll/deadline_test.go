package poll

import (
	"testing"
	"time"
)

func TestRemaining(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	timeout := 30 * time.Minute

	tests := []struct {
		name    string
		now     time.Time
		expired bool
		left    time.Duration
	}{
		{"at start", start, false, timeout},
		{"midway", start.Add(10 * time.Minute), false, 20 * time.Minute},
		{"one tick before", start.Add(timeout - time.Nanosecond), false, time.Nanosecond},
		{"exactly at timeout", start.Add(timeout), true, 0},
		{"past timeout", start.Add(2 * timeout), true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Remaining(start, tt.now, timeout)
			if got.Expired != tt.expired || got.Remaining != tt.left {
				t.Fatalf("Remaining = %+v, want expired=%t remaining=%s", got, tt.expired, tt.left)
			}
		})
	}
}
