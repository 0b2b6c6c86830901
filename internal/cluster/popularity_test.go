package cluster

import (
	"math"
	"testing"
	"time"
)

func TestPopularityEngagement(t *testing.T) {
	now := time.Now()
	fresh := now.Add(-time.Hour)

	// 3 comments, 5 reactions, updated within a day.
	got := Popularity(3, 5, fresh, now)
	want := 2*math.Log(4) + math.Log(6) + 1.0
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("expected %v, got %v", want, got)
	}

	// Comments weigh double: same totals, swapped counts differ.
	a := Popularity(5, 3, fresh, now)
	b := Popularity(3, 5, fresh, now)
	if a <= b {
		t.Errorf("expected comments to outweigh reactions, got %v <= %v", a, b)
	}
}

func TestPopularityZeroEngagement(t *testing.T) {
	now := time.Now()
	got := Popularity(0, 0, now.Add(-time.Hour), now)
	if got != 1.0 {
		t.Errorf("expected bare recency 1.0, got %v", got)
	}
}

func TestRecencyDecay(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name string
		age  time.Duration
		want float64
	}{
		{"within a day", 12 * time.Hour, 1.0},
		{"at the floor", 24 * time.Hour, 1.0},
		{"a month old", 30 * 24 * time.Hour, 0.0},
		{"older than a month", 90 * 24 * time.Hour, 0.0},
	}
	for _, tc := range cases {
		got := recency(now.Add(-tc.age), now)
		if got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}

	// Midpoint of the decay window.
	mid := recencyFloor + (recencyCeil-recencyFloor)/2
	got := recency(now.Add(-mid), now)
	if math.Abs(got-0.5) > 1e-9 {
		t.Errorf("expected 0.5 at midpoint, got %v", got)
	}
}
