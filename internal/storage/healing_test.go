package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"parkpin/internal/notify"
	logx "parkpin/pkg/logx"
)

// flakyStore fails operations while broken is set.
type flakyStore struct {
	mu     sync.Mutex
	recs   map[string]notify.Record
	broken bool
	closed int
}

func newFlakyStore() *flakyStore {
	return &flakyStore{recs: map[string]notify.Record{}}
}

func (f *flakyStore) setBroken(b bool) {
	f.mu.Lock()
	f.broken = b
	f.mu.Unlock()
}

func (f *flakyStore) err() error {
	if f.broken {
		return errors.New("connection lost")
	}
	return nil
}

func (f *flakyStore) Put(ctx context.Context, rec notify.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return err
	}
	f.recs[rec.ID] = rec
	return nil
}

func (f *flakyStore) GetAll(ctx context.Context) ([]notify.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return nil, err
	}
	out := make([]notify.Record, 0, len(f.recs))
	for _, r := range f.recs {
		out = append(out, r)
	}
	return out, nil
}

func (f *flakyStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return err
	}
	delete(f.recs, id)
	return nil
}

func (f *flakyStore) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return err
	}
	f.recs = map[string]notify.Record{}
	return nil
}

func (f *flakyStore) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}

func TestSelfHealingOpensLazily(t *testing.T) {
	opens := 0
	fs := newFlakyStore()
	sh := NewSelfHealing(func(ctx context.Context) (Store, error) {
		opens++
		return fs, nil
	}, logx.Nop())

	if sh.Ready() {
		t.Fatalf("ready before first use")
	}
	if opens != 0 {
		t.Fatalf("opened eagerly")
	}

	if err := sh.Put(context.Background(), notify.Record{ID: "a", ScheduledAt: 1}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if opens != 1 || !sh.Ready() {
		t.Fatalf("opens=%d ready=%v", opens, sh.Ready())
	}

	// Subsequent ops reuse the cached handle.
	if _, err := sh.GetAll(context.Background()); err != nil {
		t.Fatalf("getall: %v", err)
	}
	if opens != 1 {
		t.Fatalf("reopened a healthy store (%d opens)", opens)
	}
}

func TestSelfHealingOpenFailure(t *testing.T) {
	boom := errors.New("no backend")
	sh := NewSelfHealing(func(ctx context.Context) (Store, error) {
		return nil, boom
	}, logx.Nop())

	err := sh.Put(context.Background(), notify.Record{ID: "a", ScheduledAt: 1})
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
	if sh.Ready() {
		t.Fatalf("ready after failed open")
	}
}

func TestSelfHealingReopensAfterOperationError(t *testing.T) {
	opens := 0
	fs := newFlakyStore()
	sh := NewSelfHealing(func(ctx context.Context) (Store, error) {
		opens++
		return fs, nil
	}, logx.Nop())
	ctx := context.Background()

	if err := sh.Put(ctx, notify.Record{ID: "a", ScheduledAt: 1}); err != nil {
		t.Fatalf("put: %v", err)
	}

	fs.setBroken(true)
	if err := sh.Put(ctx, notify.Record{ID: "b", ScheduledAt: 1}); err == nil {
		t.Fatalf("broken store reported success")
	}
	if sh.Ready() {
		t.Fatalf("still ready after operation error")
	}

	// Next operation reopens and succeeds once the backend recovers.
	fs.setBroken(false)
	if err := sh.Put(ctx, notify.Record{ID: "b", ScheduledAt: 1}); err != nil {
		t.Fatalf("put after recovery: %v", err)
	}
	if opens != 2 || !sh.Ready() {
		t.Fatalf("opens=%d ready=%v, want reopen", opens, sh.Ready())
	}
}

func TestSelfHealingReinit(t *testing.T) {
	opens := 0
	fs := newFlakyStore()
	sh := NewSelfHealing(func(ctx context.Context) (Store, error) {
		opens++
		return fs, nil
	}, logx.Nop())
	ctx := context.Background()

	if err := sh.Put(ctx, notify.Record{ID: "a", ScheduledAt: 1}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := sh.Reinit(ctx); err != nil {
		t.Fatalf("reinit: %v", err)
	}
	if opens != 2 {
		t.Fatalf("reinit did not reopen (opens=%d)", opens)
	}
	fs.mu.Lock()
	closed := fs.closed
	fs.mu.Unlock()
	if closed != 1 {
		t.Fatalf("reinit did not close the old handle (closed=%d)", closed)
	}
}

func TestSelfHealingClose(t *testing.T) {
	fs := newFlakyStore()
	sh := NewSelfHealing(func(ctx context.Context) (Store, error) {
		return fs, nil
	}, logx.Nop())
	ctx := context.Background()

	if err := sh.Put(ctx, notify.Record{ID: "a", ScheduledAt: 1}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := sh.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if sh.Ready() {
		t.Fatalf("ready after close")
	}
}
