package timer

import (
	"time"
)

// Config controls the timer manager.
type Config struct {
	// DefaultReminder is used when a location has a deadline but no
	// per-location reminder lead time. Zero disables the default reminder.
	DefaultReminder time.Duration

	// Resync is the cadence of the reconciliation pass against the saved
	// locations source. Default 1m.
	Resync time.Duration
}

func (c Config) withDefaults() Config {
	if c.Resync <= 0 {
		c.Resync = time.Minute
	}
	return c
}

// handle is one live timer pair for a location with a deadline.
//
// Handles are replaced, never mutated in place: every (re)schedule bumps the
// location's version so callbacks from a superseded handle detect they are
// stale and do nothing.
type handle struct {
	locationID string
	note       string
	expiresAt  time.Time
	remindAt   time.Time // zero when no reminder armed
	ver        uint64

	// forwarded records whether this instance reached the notification
	// queue, so an idempotent re-Schedule can retry a lost forward.
	forwarded bool

	reminderTimer *time.Timer
	expiryTimer   *time.Timer
}

func (h *handle) stopTimers() {
	if h.reminderTimer != nil {
		_ = h.reminderTimer.Stop()
		h.reminderTimer = nil
	}
	if h.expiryTimer != nil {
		_ = h.expiryTimer.Stop()
		h.expiryTimer = nil
	}
}

// HandleInfo is a read-only snapshot of a live timer, for status output.
type HandleInfo struct {
	LocationID string    `json:"location_id"`
	Note       string    `json:"note,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
	RemindAt   time.Time `json:"remind_at,omitempty"`
}

// ReminderFunc is invoked when a reminder instant passes.
type ReminderFunc func(locationID, note string, minutesLeft int)

// ExpirationFunc is invoked when a deadline passes.
type ExpirationFunc func(locationID, note string)

// ReminderEvent and ExpirationEvent are the bus payloads mirroring the
// callback invocations, for subscribers outside the manager's process space.
type ReminderEvent struct {
	LocationID  string `json:"location_id"`
	Note        string `json:"note,omitempty"`
	MinutesLeft int    `json:"minutes_left"`
}

type ExpirationEvent struct {
	LocationID string `json:"location_id"`
	Note       string `json:"note,omitempty"`
}
