package notify

import (
	"testing"
	"time"
)

func TestRecordStates(t *testing.T) {
	now := time.UnixMilli(1_000_000)

	r := Record{ID: "a", ScheduledAt: now.UnixMilli()}
	if !r.Pending() || !r.Due(now) || !r.Valid() {
		t.Fatalf("due pending record misclassified: %+v", r)
	}

	r.ScheduledAt = now.Add(time.Second).UnixMilli()
	if r.Due(now) {
		t.Fatalf("future record reported due")
	}

	r.Processed = true
	if r.Pending() || r.Due(now.Add(time.Hour)) {
		t.Fatalf("processed record still pending/due")
	}

	r = Record{ID: "a", ScheduledAt: 1, Failed: true}
	if r.Pending() {
		t.Fatalf("failed record still pending")
	}
}

func TestRecordValid(t *testing.T) {
	cases := []struct {
		rec  Record
		want bool
	}{
		{Record{ID: "a", ScheduledAt: 1}, true},
		{Record{ID: "", ScheduledAt: 1}, false},
		{Record{ID: "a", ScheduledAt: 0}, false},
		{Record{ID: "a", ScheduledAt: -7}, false},
	}
	for _, c := range cases {
		if got := c.rec.Valid(); got != c.want {
			t.Fatalf("Valid(%+v) = %v, want %v", c.rec, got, c.want)
		}
	}
}

func TestRecordRemaining(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	r := Record{ID: "a", ScheduledAt: now.Add(90 * time.Second).UnixMilli()}
	if got := r.Remaining(now); got != 90*time.Second {
		t.Fatalf("remaining = %v", got)
	}
	if got := r.Remaining(now.Add(2 * time.Minute)); got != -30*time.Second {
		t.Fatalf("overdue remaining = %v", got)
	}
}
