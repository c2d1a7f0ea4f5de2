package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"parkpin/internal/notify"
	"parkpin/internal/notify/sink"
)

func TestScanDeliversDue(t *testing.T) {
	f := newFixture(Config{})
	ctx := context.Background()

	f.svc.schedule(ctx, f.rec("due", -time.Second))
	f.svc.schedule(ctx, f.rec("future", time.Hour))

	f.svc.scan(ctx)

	if got := f.sink.titles(); len(got) != 1 || got[0] != "t-due" {
		t.Fatalf("delivered = %v, want [t-due]", got)
	}
	if _, ok := f.svc.items["due"]; ok {
		t.Fatalf("delivered record still queued")
	}
	if _, ok := f.svc.items["future"]; !ok {
		t.Fatalf("future record was dropped")
	}

	stored, ok := f.store.get("due")
	if !ok || !stored.Processed || stored.ExecutedAt != f.now.UnixMilli() {
		t.Fatalf("store not marked processed: %+v", stored)
	}
}

func TestScanOrdersBySchedule(t *testing.T) {
	f := newFixture(Config{})
	ctx := context.Background()

	f.svc.schedule(ctx, f.rec("later", -time.Second))
	f.svc.schedule(ctx, f.rec("earlier", -time.Minute))

	f.svc.scan(ctx)

	got := f.sink.titles()
	if len(got) != 2 || got[0] != "t-earlier" || got[1] != "t-later" {
		t.Fatalf("delivery order = %v", got)
	}
}

func TestScanOrderTieBreaksByInsertion(t *testing.T) {
	f := newFixture(Config{})
	ctx := context.Background()

	f.svc.schedule(ctx, f.rec("first", -time.Minute))
	f.svc.schedule(ctx, f.rec("second", -time.Minute))

	f.svc.scan(ctx)

	got := f.sink.titles()
	if len(got) != 2 || got[0] != "t-first" || got[1] != "t-second" {
		t.Fatalf("delivery order = %v", got)
	}
}

func TestScanRetriesWithBackoff(t *testing.T) {
	f := newFixture(Config{RetryMax: 3, RetryBackoff: 30 * time.Second})
	ctx := context.Background()

	f.svc.schedule(ctx, f.rec("a", -time.Second))
	f.sink.setErr(errors.New("sink down"))

	f.svc.scan(ctx)

	e, ok := f.svc.items["a"]
	if !ok {
		t.Fatalf("record dropped on first failure")
	}
	if e.rec.RetryCount != 1 {
		t.Fatalf("retry count = %d, want 1", e.rec.RetryCount)
	}
	wantAt := f.now.Add(30 * time.Second).UnixMilli()
	if e.rec.ScheduledAt != wantAt {
		t.Fatalf("rescheduled at %d, want %d", e.rec.ScheduledAt, wantAt)
	}

	// Not due again until the backoff elapses.
	f.advance(10 * time.Second)
	f.svc.scan(ctx)
	if f.svc.items["a"].rec.RetryCount != 1 {
		t.Fatalf("retried before backoff elapsed")
	}

	// Sink recovers; the retry succeeds.
	f.sink.setErr(nil)
	f.advance(25 * time.Second)
	f.svc.scan(ctx)
	if _, ok := f.svc.items["a"]; ok {
		t.Fatalf("record not delivered after sink recovered")
	}
	stored, _ := f.store.get("a")
	if !stored.Processed || stored.RetryCount != 1 {
		t.Fatalf("stored outcome = %+v", stored)
	}
}

func TestScanFailsAfterMaxRetries(t *testing.T) {
	f := newFixture(Config{RetryMax: 3, RetryBackoff: 30 * time.Second})
	ctx := context.Background()

	f.svc.schedule(ctx, f.rec("a", -time.Second))
	f.sink.setErr(errors.New("sink down"))

	for i := 0; i < 3; i++ {
		f.svc.scan(ctx)
		f.advance(31 * time.Second)
	}

	if _, ok := f.svc.items["a"]; ok {
		t.Fatalf("exhausted record still queued")
	}
	stored, _ := f.store.get("a")
	if !stored.Failed || stored.Processed {
		t.Fatalf("stored outcome = %+v", stored)
	}
	if stored.RetryCount != 3 {
		t.Fatalf("retry count = %d, want 3", stored.RetryCount)
	}
}

func TestScanDeniedFailsImmediately(t *testing.T) {
	f := newFixture(Config{RetryMax: 3})
	ctx := context.Background()

	f.svc.schedule(ctx, f.rec("a", -time.Second))
	f.sink.setErr(sink.ErrDenied)

	f.svc.scan(ctx)

	if _, ok := f.svc.items["a"]; ok {
		t.Fatalf("denied record still queued")
	}
	stored, _ := f.store.get("a")
	if !stored.Failed || stored.RetryCount != 0 {
		t.Fatalf("denied should fail without retries: %+v", stored)
	}
}

func TestScanPurgesMalformed(t *testing.T) {
	f := newFixture(Config{})
	ctx := context.Background()

	// Bypass schedule's validation to simulate a corrupted in-memory entry.
	f.svc.seq++
	f.svc.items["bad"] = &entry{rec: notify.Record{ID: "bad", ScheduledAt: -1}, seq: f.svc.seq}

	f.svc.scan(ctx)

	if _, ok := f.svc.items["bad"]; ok {
		t.Fatalf("malformed record survived the scan")
	}
	if got := f.sink.titles(); len(got) != 0 {
		t.Fatalf("malformed record was delivered: %v", got)
	}
}

func TestScanGuardsReentrancy(t *testing.T) {
	f := newFixture(Config{})
	ctx := context.Background()

	f.svc.schedule(ctx, f.rec("a", -time.Second))
	f.svc.scanning = true
	f.svc.scan(ctx)
	if got := f.sink.titles(); len(got) != 0 {
		t.Fatalf("scan ran while another was in flight")
	}

	f.svc.scanning = false
	f.svc.scan(ctx)
	if got := f.sink.titles(); len(got) != 1 {
		t.Fatalf("scan did not recover after flag cleared")
	}
	if f.svc.scanning {
		t.Fatalf("scanning flag left set")
	}
}

func TestSchedulingSurvivesStoreOutage(t *testing.T) {
	f := newFixture(Config{})
	ctx := context.Background()

	f.store.setFail(errors.New("disk gone"))
	f.svc.schedule(ctx, f.rec("a", -time.Second))

	if _, ok := f.svc.items["a"]; !ok {
		t.Fatalf("store outage blocked in-memory scheduling")
	}

	// Delivery still works; the outcome mirror fails quietly.
	f.svc.scan(ctx)
	if got := f.sink.titles(); len(got) != 1 {
		t.Fatalf("store outage blocked delivery: %v", got)
	}
}

func TestKeepAliveReopensStore(t *testing.T) {
	f := newFixture(Config{})
	ctx := context.Background()

	f.store.setFail(errors.New("disk gone"))
	f.svc.schedule(ctx, f.rec("a", time.Hour))
	if f.svc.store.Ready() {
		t.Fatalf("store reported ready during outage")
	}

	f.store.setFail(nil)
	f.svc.keepAlive(ctx)
	if !f.svc.store.Ready() {
		t.Fatalf("keepAlive did not restore the store")
	}
}
