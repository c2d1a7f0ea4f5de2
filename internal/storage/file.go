package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"parkpin/internal/notify"
	logx "parkpin/pkg/logx"
)

// fileStore is a dependency-free persistence backend: one JSON snapshot
// holding the full id -> record map, rewritten atomically (tmp + rename)
// on every mutation. Volumes here are tiny (single-digit pending records
// per user), so snapshot-per-write is cheaper than a journal.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	path string
	recs map[string]notify.Record
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	recs := map[string]notify.Record{}
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if uerr := json.Unmarshal(b, &recs); uerr != nil {
			// A corrupt snapshot loses history but must not brick the queue.
			log.Warn("storage snapshot corrupt; starting empty", logx.String("path", path), logx.Err(uerr))
			recs = map[string]notify.Record{}
		}
	case errors.Is(err, fs.ErrNotExist):
		// first run
	default:
		return nil, err
	}

	return &fileStore{log: log, path: path, recs: recs}, nil
}

func (s *fileStore) Put(ctx context.Context, rec notify.Record) error {
	_ = ctx
	if rec.ID == "" {
		return errors.New("record id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.ID] = rec
	return s.flushLocked()
}

func (s *fileStore) GetAll(ctx context.Context) ([]notify.Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notify.Record, 0, len(s.recs))
	for _, r := range s.recs {
		out = append(out, r)
	}
	return out, nil
}

func (s *fileStore) Delete(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[id]; !ok {
		return nil
	}
	delete(s.recs, id)
	return s.flushLocked()
}

func (s *fileStore) Clear(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = map[string]notify.Record{}
	return s.flushLocked()
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) flushLocked() error {
	b, err := json.MarshalIndent(s.recs, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
