// Package timer keeps exactly one live timer per location that has an
// expiry deadline, invokes the UI-facing reminder/expiration callbacks, and
// forwards each deadline to the notification queue so it also survives the
// foreground process being backgrounded or killed.
package timer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"parkpin/internal/eventbus"
	"parkpin/internal/location"
	"parkpin/internal/notify"
	"parkpin/internal/notify/command"
	logx "parkpin/pkg/logx"
)

// Manager maps locations-with-deadlines to live wall-clock timers.
//
// Local timers give the foreground precise callbacks; the queue commands give
// the same deadlines crash survival. Command-channel failures degrade to
// UI-only operation and are reported through Schedule's return value, never
// by aborting the local timers.
type Manager struct {
	cfg Config
	log logx.Logger
	ch  *command.Channel
	bus eventbus.Bus
	src location.Source

	// now is swappable for tests.
	now func() time.Time

	mu      sync.Mutex
	handles map[string]*handle
	ver     map[string]uint64
	// spent remembers the ExpiresAt of the last fired deadline per location,
	// so the resync pass never re-arms an instance that already fired.
	spent map[string]int64

	cbMu         sync.Mutex
	onReminder   []ReminderFunc
	onExpiration []ExpirationFunc

	c *cron.Cron
}

func New(cfg Config, ch *command.Channel, src location.Source, bus eventbus.Bus, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{
		cfg:     cfg.withDefaults(),
		log:     log,
		ch:      ch,
		bus:     bus,
		src:     src,
		now:     time.Now,
		handles: map[string]*handle{},
		ver:     map[string]uint64{},
		spent:   map[string]int64{},
	}
}

// Deterministic queue ids derived from the location id, so cancellation
// matches the same idempotency key a schedule used.
func expiryID(locationID string) string   { return locationID + ":expiry" }
func reminderID(locationID string) string { return locationID + ":reminder" }

// OnTimerReminder registers a reminder callback. Multiple subscribers are
// allowed; callbacks run on the goroutine that detects the event.
func (m *Manager) OnTimerReminder(fn ReminderFunc) {
	if fn == nil {
		return
	}
	m.cbMu.Lock()
	m.onReminder = append(m.onReminder, fn)
	m.cbMu.Unlock()
}

// OnTimerExpiration registers an expiration callback.
func (m *Manager) OnTimerExpiration(fn ExpirationFunc) {
	if fn == nil {
		return
	}
	m.cbMu.Lock()
	m.onExpiration = append(m.onExpiration, fn)
	m.cbMu.Unlock()
}

// Start arms the periodic reconciliation pass against the locations source.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.c != nil {
		return
	}
	m.c = cron.New()
	spec := fmt.Sprintf("@every %s", m.cfg.Resync.String())
	if _, err := m.c.AddFunc(spec, func() { m.resync(ctx) }); err != nil {
		m.log.Error("resync schedule register failed", logx.String("spec", spec), logx.Err(err))
	}
	m.c.Start()
	m.log.Info("timer manager started", logx.Duration("resync", m.cfg.Resync))
}

// Stop halts the resync pass and disarms all local timers. Pending queue
// records are left alone so deadlines still fire in the background.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	c := m.c
	m.c = nil
	for id, h := range m.handles {
		h.stopTimers()
		m.ver[id]++
	}
	m.handles = map[string]*handle{}
	m.mu.Unlock()

	if c != nil {
		stopCtx := c.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}
	m.log.Info("timer manager stopped")
}

// Schedule arms (or re-arms) timers for a location with a deadline.
//
// A past deadline fires immediately: that is the catch-up path after the app
// was closed past the expiry. The reminder is skipped when no lead time
// applies or its instant has already passed.
//
// The return value reports whether the deadline also reached the
// notification queue; false means UI-only operation (non-fatal).
func (m *Manager) Schedule(loc location.Location) bool {
	if !loc.HasDeadline() {
		m.log.Warn("schedule ignored: location has no deadline", logx.String("location_id", loc.ID))
		return false
	}

	now := m.now()
	expiresAt := time.UnixMilli(loc.ExpiresAt)
	remindAt := m.reminderInstant(loc, expiresAt)

	m.mu.Lock()
	if prev, ok := m.handles[loc.ID]; ok {
		// Idempotent: same deadline instance, nothing to re-arm locally.
		// A forward that never reached the queue still needs retrying.
		if prev.expiresAt.Equal(expiresAt) && prev.remindAt.Equal(remindAt) {
			if prev.forwarded {
				m.mu.Unlock()
				return true
			}
			v := prev.ver
			m.mu.Unlock()
			return m.forwardAndMark(loc, expiresAt, remindAt, now, v)
		}
		prev.stopTimers()
	}
	m.ver[loc.ID]++
	v := m.ver[loc.ID]

	h := &handle{
		locationID: loc.ID,
		note:       loc.Note,
		expiresAt:  expiresAt,
		ver:        v,
	}

	expiryDelay := expiresAt.Sub(now)
	if expiryDelay < 0 {
		expiryDelay = 0
	}
	h.expiryTimer = time.AfterFunc(expiryDelay, func() { m.fireExpiration(loc.ID, v) })

	if !remindAt.IsZero() && remindAt.After(now) {
		h.remindAt = remindAt
		h.reminderTimer = time.AfterFunc(remindAt.Sub(now), func() { m.fireReminder(loc.ID, v) })
	}
	m.handles[loc.ID] = h
	m.mu.Unlock()

	m.log.Debug("timer armed",
		logx.String("location_id", loc.ID),
		logx.Time("expires_at", expiresAt),
		logx.Time("remind_at", remindAt))

	return m.forwardAndMark(loc, expiresAt, remindAt, now, v)
}

// forwardAndMark mirrors the deadline into the queue and records the outcome
// on the live handle, provided the handle has not been replaced meanwhile.
func (m *Manager) forwardAndMark(loc location.Location, expiresAt, remindAt, now time.Time, v uint64) bool {
	ok := m.forwardToQueue(loc, expiresAt, remindAt, now)
	m.mu.Lock()
	if h, live := m.handles[loc.ID]; live && h.ver == v {
		h.forwarded = ok
	}
	m.mu.Unlock()
	return ok
}

// forwardToQueue mirrors the deadline into the background queue so it
// survives the foreground being killed.
func (m *Manager) forwardToQueue(loc location.Location, expiresAt, remindAt, now time.Time) bool {
	ok := true

	exp := notify.Record{
		ID:          expiryID(loc.ID),
		Title:       "Parking expired",
		Body:        expiryBody(loc),
		ScheduledAt: expiresAt.UnixMilli(),
		CreatedAt:   now.UnixMilli(),
		Tag:         loc.ID,
		// Expiry matters enough to stay on screen until dismissed.
		RequireInteraction: true,
		Data: map[string]string{
			"location_id": loc.ID,
			"kind":        "expiry",
		},
	}
	if err := m.ch.Send(command.Schedule{Record: exp}); err != nil {
		m.log.Warn("queue unreachable; expiry is UI-only", logx.String("location_id", loc.ID), logx.Err(err))
		ok = false
	}

	if !remindAt.IsZero() && remindAt.After(now) {
		minutesLeft := int(expiresAt.Sub(remindAt).Round(time.Minute) / time.Minute)
		rem := notify.Record{
			ID:          reminderID(loc.ID),
			Title:       "Parking expires soon",
			Body:        reminderBody(loc, minutesLeft),
			ScheduledAt: remindAt.UnixMilli(),
			CreatedAt:   now.UnixMilli(),
			Tag:         loc.ID,
			Data: map[string]string{
				"location_id": loc.ID,
				"kind":        "reminder",
			},
		}
		if err := m.ch.Send(command.Schedule{Record: rem}); err != nil {
			m.log.Warn("queue unreachable; reminder is UI-only", logx.String("location_id", loc.ID), logx.Err(err))
			ok = false
		}
	} else {
		// A replaced deadline may have had a reminder; drop the stale one.
		_ = m.ch.Send(command.Cancel{ID: reminderID(loc.ID)})
	}
	return ok
}

// Cancel disarms local timers and removes both queue records for the
// location. Cancelling an unknown location is a no-op.
func (m *Manager) Cancel(locationID string) {
	m.mu.Lock()
	if h, ok := m.handles[locationID]; ok {
		h.stopTimers()
		delete(m.handles, locationID)
	}
	m.ver[locationID]++
	m.mu.Unlock()

	if err := m.ch.Send(command.Cancel{ID: expiryID(locationID)}); err != nil {
		m.log.Warn("queue unreachable for cancel", logx.String("location_id", locationID), logx.Err(err))
	}
	if err := m.ch.Send(command.Cancel{ID: reminderID(locationID)}); err != nil {
		m.log.Warn("queue unreachable for cancel", logx.String("location_id", locationID), logx.Err(err))
	}
	m.log.Debug("timer cancelled", logx.String("location_id", locationID))
}

// Extend pushes the deadline out by the given number of minutes and re-arms
// everything, re-deriving the reminder instant from the new expiry.
func (m *Manager) Extend(locationID string, minutes int, loc location.Location) bool {
	if minutes <= 0 {
		return false
	}
	if loc.ID == "" {
		loc.ID = locationID
	}
	if loc.ExpiresAt == 0 {
		m.mu.Lock()
		if h, ok := m.handles[locationID]; ok {
			loc.ExpiresAt = h.expiresAt.UnixMilli()
			loc.Note = h.note
		}
		m.mu.Unlock()
	}
	if loc.ExpiresAt == 0 {
		m.log.Warn("extend ignored: no known deadline", logx.String("location_id", locationID))
		return false
	}
	loc.ExpiresAt += int64(minutes) * 60_000
	loc.ExtensionCount++
	m.log.Info("timer extended",
		logx.String("location_id", locationID),
		logx.Int("minutes", minutes),
		logx.Int("extensions", loc.ExtensionCount))
	return m.Schedule(loc)
}

// Sync reconciles live timers against the given locations: arms timers for
// locations with a still-relevant deadline and cancels timers whose location
// disappeared or lost its deadline. One bad record never aborts the batch.
func (m *Manager) Sync(locations []location.Location) {
	seen := map[string]bool{}
	for _, loc := range locations {
		if loc.ID == "" {
			m.log.Warn("skipping location without id during sync")
			continue
		}
		if !loc.HasDeadline() {
			continue
		}
		seen[loc.ID] = true
		// A deadline instance that already fired must not fire again; the
		// catch-up fire for past deadlines belongs to the explicit Schedule
		// path and to the FIRST reconciliation that sees them.
		if m.spentInstance(loc) {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.log.Error("sync: scheduling panicked; skipping location",
						logx.String("location_id", loc.ID), logx.Any("panic", r))
				}
			}()
			m.Schedule(loc)
		}()
	}

	m.mu.Lock()
	var stale []string
	for id := range m.handles {
		if !seen[id] {
			stale = append(stale, id)
		}
	}
	for id := range m.spent {
		if !seen[id] {
			delete(m.spent, id)
		}
	}
	m.mu.Unlock()

	for _, id := range stale {
		m.Cancel(id)
	}
	m.log.Debug("sync complete", logx.Int("locations", len(locations)), logx.Int("cancelled", len(stale)))
}

// spentInstance reports whether this exact (location, deadline) pairing has
// already fired. A changed ExpiresAt is a new instance and fires normally.
func (m *Manager) spentInstance(loc location.Location) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spent[loc.ID] == loc.ExpiresAt
}

func (m *Manager) resync(ctx context.Context) {
	if m.src == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	locs, err := m.src.GetLocations(cctx)
	if err != nil {
		m.log.Warn("resync: locations source failed", logx.Err(err))
		return
	}
	m.Sync(locs)
}

// Snapshot lists live timers for status output.
func (m *Manager) Snapshot() []HandleInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]HandleInfo, 0, len(m.handles))
	for _, h := range m.handles {
		out = append(out, HandleInfo{
			LocationID: h.locationID,
			Note:       h.note,
			ExpiresAt:  h.expiresAt,
			RemindAt:   h.remindAt,
		})
	}
	return out
}

func (m *Manager) reminderInstant(loc location.Location, expiresAt time.Time) time.Time {
	lead := time.Duration(loc.ReminderMinutes) * time.Minute
	if lead <= 0 {
		lead = m.cfg.DefaultReminder
	}
	if lead <= 0 {
		return time.Time{}
	}
	return expiresAt.Add(-lead)
}

// fireReminder runs on the timer goroutine. The version check defeats
// callbacks from handles that were replaced after this timer was armed.
func (m *Manager) fireReminder(locationID string, v uint64) {
	m.mu.Lock()
	h, ok := m.handles[locationID]
	if !ok || h.ver != v || m.ver[locationID] != v {
		m.mu.Unlock()
		return
	}
	note := h.note
	minutesLeft := int(h.expiresAt.Sub(m.now()).Round(time.Minute) / time.Minute)
	m.mu.Unlock()

	if minutesLeft < 0 {
		minutesLeft = 0
	}

	m.cbMu.Lock()
	cbs := append([]ReminderFunc(nil), m.onReminder...)
	m.cbMu.Unlock()
	for _, fn := range cbs {
		fn(locationID, note, minutesLeft)
	}
	if m.bus != nil {
		m.bus.Publish(eventbus.Event{
			Type: eventbus.TypeReminderFired,
			Data: ReminderEvent{LocationID: locationID, Note: note, MinutesLeft: minutesLeft},
		})
	}
	m.log.Info("reminder fired", logx.String("location_id", locationID), logx.Int("minutes_left", minutesLeft))
}

func (m *Manager) fireExpiration(locationID string, v uint64) {
	m.mu.Lock()
	h, ok := m.handles[locationID]
	if !ok || h.ver != v || m.ver[locationID] != v {
		m.mu.Unlock()
		return
	}
	note := h.note
	// The deadline instance is spent: drop the handle and remember the
	// instance so the resync pass does not re-arm and re-fire it.
	m.spent[locationID] = h.expiresAt.UnixMilli()
	h.stopTimers()
	delete(m.handles, locationID)
	m.mu.Unlock()

	m.cbMu.Lock()
	cbs := append([]ExpirationFunc(nil), m.onExpiration...)
	m.cbMu.Unlock()
	for _, fn := range cbs {
		fn(locationID, note)
	}
	if m.bus != nil {
		m.bus.Publish(eventbus.Event{
			Type: eventbus.TypeExpirationFired,
			Data: ExpirationEvent{LocationID: locationID, Note: note},
		})
	}
	m.log.Info("expiration fired", logx.String("location_id", locationID))
}

func expiryBody(loc location.Location) string {
	if loc.Note != "" {
		return fmt.Sprintf("Your parking at %q has expired.", loc.Note)
	}
	return "Your parking has expired."
}

func reminderBody(loc location.Location, minutesLeft int) string {
	if loc.Note != "" {
		return fmt.Sprintf("Parking at %q expires in %d min.", loc.Note, minutesLeft)
	}
	return fmt.Sprintf("Parking expires in %d min.", minutesLeft)
}
