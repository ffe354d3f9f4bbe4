package logger

import (
	"errors"
	"testing"
	"time"
)

func TestStatus(t *testing.T) {
	if got := Status(nil); got != "ok" {
		t.Fatalf("Status(nil) = %q, want ok", got)
	}
	if got := Status(errors.New("boom")); got != "fail" {
		t.Fatalf("Status(err) = %q, want fail", got)
	}
}

func TestRoundMS(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want time.Duration
	}{
		{-5 * time.Millisecond, 0},
		{0, 0},
		{1499 * time.Microsecond, time.Millisecond},
		{2500 * time.Microsecond, 2 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := RoundMS(tc.in); got != tc.want {
			t.Fatalf("RoundMS(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestTook(t *testing.T) {
	start := time.Now().Add(-1500 * time.Millisecond)
	got := Took(start)
	if got < time.Second {
		t.Fatalf("Took = %v, want at least 1s", got)
	}
	if got%time.Millisecond != 0 {
		t.Fatalf("Took = %v, want millisecond precision", got)
	}
}

func TestSummarizeStrings(t *testing.T) {
	values := []string{"a", "b", "c"}

	if got, truncated := SummarizeStrings(values, 5); got != "a, b, c" || truncated {
		t.Fatalf("SummarizeStrings(limit 5) = %q, %v", got, truncated)
	}
	if got, truncated := SummarizeStrings(values, 2); got != "a, b" || !truncated {
		t.Fatalf("SummarizeStrings(limit 2) = %q, %v", got, truncated)
	}
	if got, truncated := SummarizeStrings(values, 0); got != "" || !truncated {
		t.Fatalf("SummarizeStrings(limit 0) = %q, %v", got, truncated)
	}
	if got, truncated := SummarizeStrings(nil, 0); got != "" || truncated {
		t.Fatalf("SummarizeStrings(nil) = %q, %v", got, truncated)
	}
}
