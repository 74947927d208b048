package appointment

import (
	"testing"
	"time"
)

func TestCancellationAllowed(t *testing.T) {
	start := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		now    time.Time
		window time.Duration
		want   bool
	}{
		{"well outside window", start.Add(-48 * time.Hour), 2 * time.Hour, true},
		{"exactly at window boundary", start.Add(-2 * time.Hour), 2 * time.Hour, true},
		{"one hour before with two hour window", start.Add(-time.Hour), 2 * time.Hour, false},
		{"after start", start.Add(time.Minute), 2 * time.Hour, false},
		{"zero window allows up to start", start.Add(-time.Second), 0, true},
		{"zero window rejects past start", start.Add(time.Second), 0, false},
		{"day-long window", start.Add(-23 * time.Hour), 24 * time.Hour, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CancellationAllowed(start, tc.now, tc.window); got != tc.want {
				t.Fatalf("CancellationAllowed(%s, %s, %s) = %v, want %v",
					start, tc.now, tc.window, got, tc.want)
			}
		})
	}
}
