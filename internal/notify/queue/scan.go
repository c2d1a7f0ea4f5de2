package queue

import (
	"context"
	"errors"
	"sort"

	"parkpin/internal/eventbus"
	"parkpin/internal/notify"
	"parkpin/internal/notify/sink"
	logx "parkpin/pkg/logx"
)

// scan fires every due record, oldest scheduled time first. One bad record
// never blocks the others in the same tick: each delivery failure is caught,
// logged, and reflected in the record's retry state.
func (s *Service) scan(ctx context.Context) {
	// The keep-alive tick re-fires the scan defensively; the in-flight flag
	// keeps the critical section from ever running twice.
	if s.scanning {
		return
	}
	s.scanning = true
	defer func() { s.scanning = false }()

	now := s.now()

	var due []*entry
	for id, e := range s.items {
		if !e.rec.Valid() {
			// Malformed schedules are purged, never retried.
			s.log.Warn("purging malformed record", logx.String("id", id), logx.Int64("scheduled_at", e.rec.ScheduledAt))
			s.dropEverywhere(ctx, id)
			continue
		}
		if e.rec.Due(now) {
			due = append(due, e)
		}
	}
	if len(due) == 0 {
		return
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].rec.ScheduledAt != due[j].rec.ScheduledAt {
			return due[i].rec.ScheduledAt < due[j].rec.ScheduledAt
		}
		return due[i].seq < due[j].seq
	})

	// Sequential delivery keeps retry bookkeeping and ordering deterministic.
	for _, e := range due {
		s.deliver(ctx, e)
	}
}

func (s *Service) deliver(ctx context.Context, e *entry) {
	rec := e.rec
	err := s.sink.Show(ctx, toSinkNotification(rec))
	now := s.now()

	switch {
	case err == nil:
		rec.Processed = true
		rec.ExecutedAt = now.UnixMilli()
		s.persist(ctx, rec)
		delete(s.items, rec.ID)
		s.publishOutcome(eventbus.TypeNotifyDelivered, rec)
		s.log.Info("notification delivered", logx.String("id", rec.ID), logx.Int("retries", rec.RetryCount))

	case errors.Is(err, sink.ErrDenied):
		// Permission failures can't be fixed by retrying.
		rec.Failed = true
		s.persist(ctx, rec)
		delete(s.items, rec.ID)
		s.publishOutcome(eventbus.TypeNotifyFailed, rec)
		s.log.Warn("notification delivery denied", logx.String("id", rec.ID), logx.Err(err))

	default:
		rec.RetryCount++
		if rec.RetryCount >= s.cfg.RetryMax {
			rec.Failed = true
			s.persist(ctx, rec)
			delete(s.items, rec.ID)
			s.publishOutcome(eventbus.TypeNotifyFailed, rec)
			s.log.Error("notification failed after retries",
				logx.String("id", rec.ID), logx.Int("retries", rec.RetryCount), logx.Err(err))
			return
		}
		rec.ScheduledAt = now.Add(s.cfg.RetryBackoff).UnixMilli()
		e.rec = rec
		s.persist(ctx, rec)
		s.log.Warn("notification delivery failed; will retry",
			logx.String("id", rec.ID),
			logx.Int("retry", rec.RetryCount),
			logx.Duration("backoff", s.cfg.RetryBackoff),
			logx.Err(err))
	}
}

// keepAlive re-validates store connectivity on a slower cadence and re-fires
// the scan defensively in case a tick was missed while the host suspended us.
func (s *Service) keepAlive(ctx context.Context) {
	if !s.store.Ready() {
		if err := s.store.Reinit(ctx); err != nil {
			s.log.Warn("store still unavailable", logx.Err(err))
		} else {
			s.log.Info("store connection restored")
		}
	}
	s.scan(ctx)
}

func (s *Service) persist(ctx context.Context, rec notify.Record) {
	if err := s.store.Put(ctx, rec); err != nil {
		s.log.Warn("store mirror failed", logx.String("id", rec.ID), logx.Err(err))
	}
}

func (s *Service) publishOutcome(typ string, rec notify.Record) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: rec})
}

func toSinkNotification(rec notify.Record) sink.Notification {
	return sink.Notification{
		Title:              rec.Title,
		Body:               rec.Body,
		Icon:               rec.Icon,
		Badge:              rec.Badge,
		Tag:                rec.Tag,
		Vibrate:            rec.Vibrate,
		RequireInteraction: rec.RequireInteraction,
		Data:               rec.Data,
	}
}
