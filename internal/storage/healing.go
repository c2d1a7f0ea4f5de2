package storage

import (
	"context"
	"fmt"
	"sync"

	"parkpin/internal/notify"
	logx "parkpin/pkg/logx"
)

// OpenFunc opens the underlying driver. SelfHealing calls it lazily and
// again after any operation error.
type OpenFunc func(ctx context.Context) (Store, error)

// SelfHealing wraps a Store so the notification queue never treats a store
// outage as fatal. A prior successful open is cached; any operation error
// flips the readiness flag so the NEXT operation re-attempts the open
// instead of failing silently forever.
type SelfHealing struct {
	open OpenFunc
	log  logx.Logger

	mu    sync.Mutex
	cur   Store
	ready bool
}

func NewSelfHealing(open OpenFunc, log logx.Logger) *SelfHealing {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &SelfHealing{open: open, log: log}
}

// Ready reports cached readiness without touching the driver.
func (s *SelfHealing) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Reinit force-closes any cached handle and re-opens the driver.
func (s *SelfHealing) Reinit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return s.openLocked(ctx)
}

func (s *SelfHealing) ensureReady(ctx context.Context) (Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready && s.cur != nil {
		return s.cur, nil
	}
	if err := s.openLocked(ctx); err != nil {
		return nil, err
	}
	return s.cur, nil
}

func (s *SelfHealing) openLocked(ctx context.Context) error {
	st, err := s.open(ctx)
	if err != nil {
		s.cur = nil
		s.ready = false
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	s.cur = st
	s.ready = true
	s.log.Debug("store opened")
	return nil
}

func (s *SelfHealing) closeLocked() {
	if s.cur != nil {
		_ = s.cur.Close()
	}
	s.cur = nil
	s.ready = false
}

// markBroken drops the cached handle after an operation error.
func (s *SelfHealing) markBroken(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return
	}
	s.log.Warn("store operation failed; will reopen on next use", logx.Err(err))
	s.closeLocked()
}

func (s *SelfHealing) Put(ctx context.Context, rec notify.Record) error {
	st, err := s.ensureReady(ctx)
	if err != nil {
		return err
	}
	if err := st.Put(ctx, rec); err != nil {
		s.markBroken(err)
		return err
	}
	return nil
}

func (s *SelfHealing) GetAll(ctx context.Context) ([]notify.Record, error) {
	st, err := s.ensureReady(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := st.GetAll(ctx)
	if err != nil {
		s.markBroken(err)
		return nil, err
	}
	return recs, nil
}

func (s *SelfHealing) Delete(ctx context.Context, id string) error {
	st, err := s.ensureReady(ctx)
	if err != nil {
		return err
	}
	if err := st.Delete(ctx, id); err != nil {
		s.markBroken(err)
		return err
	}
	return nil
}

func (s *SelfHealing) Clear(ctx context.Context) error {
	st, err := s.ensureReady(ctx)
	if err != nil {
		return err
	}
	if err := st.Clear(ctx); err != nil {
		s.markBroken(err)
		return err
	}
	return nil
}

func (s *SelfHealing) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}
