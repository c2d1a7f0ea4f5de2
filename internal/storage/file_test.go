package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"parkpin/internal/notify"
	logx "parkpin/pkg/logx"
)

func openTestFile(t *testing.T, path string) Store {
	t.Helper()
	st, err := Open(context.Background(), Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return st
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "notifications.json")
	st := openTestFile(t, path)

	rec := notify.Record{ID: "a", Title: "T", Body: "B", ScheduledAt: 123456, Data: map[string]string{"k": "v"}}
	if err := st.Put(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	// A fresh open must see the snapshot (crash survival).
	st2 := openTestFile(t, path)
	recs, err := st2.GetAll(ctx)
	if err != nil {
		t.Fatalf("getall: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	got := recs[0]
	if got.ID != "a" || got.Title != "T" || got.ScheduledAt != 123456 || got.Data["k"] != "v" {
		t.Fatalf("round trip mangled record: %+v", got)
	}
}

func TestFileStoreDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "notifications.json")
	st := openTestFile(t, path)

	for _, id := range []string{"a", "b", "c"} {
		if err := st.Put(ctx, notify.Record{ID: id, ScheduledAt: 1}); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}

	if err := st.Delete(ctx, "b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := st.Delete(ctx, "missing"); err != nil {
		t.Fatalf("deleting an unknown id should be a no-op: %v", err)
	}
	recs, _ := st.GetAll(ctx)
	if len(recs) != 2 {
		t.Fatalf("got %d records after delete, want 2", len(recs))
	}

	if err := st.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	recs, _ = st.GetAll(ctx)
	if len(recs) != 0 {
		t.Fatalf("got %d records after clear, want 0", len(recs))
	}

	// Clear must also be durable.
	st2 := openTestFile(t, path)
	recs, _ = st2.GetAll(ctx)
	if len(recs) != 0 {
		t.Fatalf("clear did not persist: %d records", len(recs))
	}
}

func TestFileStoreCorruptSnapshotStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifications.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}

	st := openTestFile(t, path)
	recs, err := st.GetAll(context.Background())
	if err != nil {
		t.Fatalf("getall: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("corrupt snapshot yielded %d records", len(recs))
	}
}

func TestFileStoreRejectsEmptyID(t *testing.T) {
	st := openTestFile(t, filepath.Join(t.TempDir(), "n.json"))
	if err := st.Put(context.Background(), notify.Record{ScheduledAt: 1}); err == nil {
		t.Fatalf("empty id accepted")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "bogus"}, logx.Nop())
	if err == nil {
		t.Fatalf("unknown driver accepted")
	}
}

func TestOpenDefaultsToFileDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "n.json")
	st, err := Open(context.Background(), Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open with empty driver: %v", err)
	}
	if err := st.Put(context.Background(), notify.Record{ID: "a", ScheduledAt: 1}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file driver did not write snapshot: %v", err)
	}
}
