package queue

import (
	"context"
	"time"

	"parkpin/internal/eventbus"
	"parkpin/internal/notify"
	"parkpin/internal/notify/command"
	"parkpin/internal/notify/sink"
	rtsup "parkpin/internal/runtime/supervisor"
	"parkpin/internal/storage"
	logx "parkpin/pkg/logx"
)

// Config controls the queue worker.
type Config struct {
	// ScanInterval is the due-record polling cadence.
	ScanInterval time.Duration
	// KeepAliveInterval is the slower tick that re-validates store
	// connectivity and defensively re-fires the scan.
	KeepAliveInterval time.Duration

	RetryMax     int
	RetryBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.ScanInterval <= 0 {
		c.ScanInterval = 5 * time.Second
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = 20 * time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = notify.DefaultMaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = notify.DefaultRetryBackoff
	}
	return c
}

// entry pairs a record with its insertion sequence, the tie-break when two
// due records share a scheduled time.
type entry struct {
	rec notify.Record
	seq uint64
}

// Service is the notification queue worker.
//
// All mutable state (items, seq, scanning) is owned exclusively by the run
// goroutine; no locking is needed beyond the in-flight scanning flag.
type Service struct {
	cfg   Config
	log   logx.Logger
	store *storage.SelfHealing
	sink  sink.Sink
	ch    *command.Channel
	bus   eventbus.Bus

	// now is swappable for tests.
	now func() time.Time

	items    map[string]*entry
	seq      uint64
	scanning bool

	sup *rtsup.Supervisor
}

func New(cfg Config, store *storage.SelfHealing, snk sink.Sink, ch *command.Channel, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:   cfg.withDefaults(),
		log:   log,
		store: store,
		sink:  snk,
		ch:    ch,
		bus:   bus,
		now:   time.Now,
		items: map[string]*entry{},
	}
}

// Start launches the worker loop under a supervisor. The host may evict and
// restart the worker at any time; recovery from the durable store happens on
// every (re)start.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		// A crashed queue loop should self-heal, not take down the app.
		rtsup.WithCancelOnError(false),
	)
	s.sup.GoRestart("queue.run", s.run)
}

// Stop shuts the worker down, waiting until ctx expires.
func (s *Service) Stop(ctx context.Context) error {
	if s.sup == nil {
		return nil
	}
	return s.sup.StopAndWait(ctx)
}

func (s *Service) run(ctx context.Context) error {
	s.recoverFromStore(ctx)

	scanTick := time.NewTicker(s.cfg.ScanInterval)
	defer scanTick.Stop()
	keepTick := time.NewTicker(s.cfg.KeepAliveInterval)
	defer keepTick.Stop()

	s.log.Info("notification queue started",
		logx.Int("recovered", len(s.items)),
		logx.Duration("scan_interval", s.cfg.ScanInterval),
		logx.Duration("keepalive_interval", s.cfg.KeepAliveInterval))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd, ok := <-s.ch.Receive():
			if !ok {
				return nil
			}
			s.handle(ctx, cmd)
		case <-scanTick.C:
			s.scan(ctx)
		case <-keepTick.C:
			s.keepAlive(ctx)
		}
	}
}

// recoverFromStore reloads pending records after a worker restart. Terminal
// records stay in the store for diagnostics but are not scanned again.
func (s *Service) recoverFromStore(ctx context.Context) {
	recs, err := s.store.GetAll(ctx)
	if err != nil {
		s.log.Warn("store recovery failed; starting with empty queue", logx.Err(err))
		return
	}
	for _, rec := range recs {
		if !rec.Pending() {
			continue
		}
		if !rec.Valid() {
			s.log.Warn("purging malformed record from store", logx.String("id", rec.ID), logx.Int64("scheduled_at", rec.ScheduledAt))
			// An id-less row can't be deleted by id; skipping it here avoids
			// a pointless no-op delete on every restart.
			if rec.ID != "" {
				_ = s.store.Delete(ctx, rec.ID)
			}
			continue
		}
		s.seq++
		s.items[rec.ID] = &entry{rec: rec, seq: s.seq}
	}
}

func (s *Service) handle(ctx context.Context, cmd command.Command) {
	switch c := cmd.(type) {
	case command.Schedule:
		s.schedule(ctx, c.Record)
	case command.Cancel:
		s.cancel(ctx, c.ID)
	case command.ClearAll:
		s.clearAll(ctx)
	case command.QueryStatus:
		s.reply(c.Reply, s.status())
	case command.ForceReinit:
		err := s.store.Reinit(ctx)
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.TypeStoreReinitialize, Data: err == nil})
		}
		s.replyErr(c.Reply, err)
	}
}

// schedule upserts by id: last write wins on payload and retry state. The
// timer manager mints one id per deadline instance, so a resurrected id
// genuinely means "schedule this again from scratch".
func (s *Service) schedule(ctx context.Context, rec notify.Record) {
	if !rec.Valid() {
		s.log.Warn("rejecting malformed schedule", logx.String("id", rec.ID), logx.Int64("scheduled_at", rec.ScheduledAt))
		if rec.ID != "" {
			s.dropEverywhere(ctx, rec.ID)
		}
		return
	}
	if rec.CreatedAt <= 0 {
		rec.CreatedAt = s.now().UnixMilli()
	}

	if prev, ok := s.items[rec.ID]; ok {
		// Keep insertion order stable across upserts.
		prev.rec = rec
	} else {
		s.seq++
		s.items[rec.ID] = &entry{rec: rec, seq: s.seq}
	}
	if err := s.store.Put(ctx, rec); err != nil {
		// Degraded: in-memory scheduling continues, crash survival doesn't.
		s.log.Warn("store mirror failed for schedule", logx.String("id", rec.ID), logx.Err(err))
	}
	s.log.Debug("notification scheduled",
		logx.String("id", rec.ID),
		logx.Duration("remaining", rec.Remaining(s.now())))
}

func (s *Service) cancel(ctx context.Context, id string) {
	if id == "" {
		return
	}
	s.dropEverywhere(ctx, id)
	s.log.Debug("notification cancelled", logx.String("id", id))
}

func (s *Service) dropEverywhere(ctx context.Context, id string) {
	delete(s.items, id)
	if err := s.store.Delete(ctx, id); err != nil {
		s.log.Warn("store delete failed", logx.String("id", id), logx.Err(err))
	}
}

func (s *Service) clearAll(ctx context.Context) {
	n := len(s.items)
	s.items = map[string]*entry{}
	if err := s.store.Clear(ctx); err != nil {
		s.log.Warn("store clear failed", logx.Err(err))
	}
	s.log.Info("notification queue cleared", logx.Int("dropped", n))
}

func (s *Service) status() command.Status {
	now := s.now()
	st := command.Status{
		QueueSize:  len(s.items),
		Scanning:   s.scanning,
		StoreReady: s.store.Ready(),
	}
	for _, e := range s.items {
		st.Items = append(st.Items, command.StatusItem{
			ID:          e.rec.ID,
			Remaining:   e.rec.Remaining(now),
			Processed:   e.rec.Processed,
			Failed:      e.rec.Failed,
			RetryCount:  e.rec.RetryCount,
			ScheduledAt: e.rec.ScheduledAt,
		})
	}
	return st
}

func (s *Service) reply(ch chan<- command.Status, st command.Status) {
	if ch == nil {
		return
	}
	select {
	case ch <- st:
	default:
	}
}

func (s *Service) replyErr(ch chan<- error, err error) {
	if ch == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}
