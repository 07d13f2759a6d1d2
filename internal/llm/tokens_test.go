package llm

import (
	"strings"
	"testing"
)

func TestEstimateCounter(t *testing.T) {
	c := EstimateCounter{}
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"ab", 1},
		{"abcd", 2},
		{"привіт", 2}, // runes, not bytes
	}
	for _, tc := range cases {
		if got := c.Count(tc.in); got != tc.want {
			t.Fatalf("Count(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
	if got := (EstimateCounter{RunesPerToken: 4}).Count("abcd"); got != 1 {
		t.Fatalf("custom ratio Count = %d", got)
	}
}

func TestEstimateCounter_Monotonic(t *testing.T) {
	c := EstimateCounter{}
	short := c.Count(strings.Repeat("word ", 10))
	long := c.Count(strings.Repeat("word ", 1000))
	if long <= short {
		t.Fatalf("long %d <= short %d", long, short)
	}
	// 5000 runes stay above a 1000 token ceiling.
	if long <= 1000 {
		t.Fatalf("long = %d", long)
	}
}

func TestNewTokenCounter_UnknownModelFallsBack(t *testing.T) {
	c, err := NewTokenCounter("definitely-not-a-model")
	if err == nil {
		t.Fatalf("expected an error for an unknown model")
	}
	if _, ok := c.(EstimateCounter); !ok {
		t.Fatalf("expected EstimateCounter fallback, got %T", c)
	}
	if got := c.Count("twelve runes"); got != 4 {
		t.Fatalf("Count = %d", got)
	}
}
