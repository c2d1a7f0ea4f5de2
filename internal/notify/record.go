package notify

import "time"

// Retry policy for failed delivery attempts.
//
// The backoff is deliberately fixed rather than exponential: delivery failures
// are almost always transient permission/registration glitches that clear
// quickly, so a short constant wait beats a growing one.
const (
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = 30 * time.Second
)

// Record is the unit of durable work: one scheduled notification.
//
// The id is caller-supplied and doubles as the idempotency key and the
// cancellation handle. Callers should mint a fresh id per logical deadline
// instance (e.g. "<locationID>:expiry") so a cancelled notification is never
// accidentally resurrected with stale retry state.
//
// A record is in exactly one of three states: pending, processed, or failed.
// Processed and Failed are terminal and mutually exclusive. ScheduledAt may
// be moved only while pending (retry reschedule).
type Record struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`

	// ScheduledAt is the instant (epoch ms) at which the record becomes due.
	ScheduledAt int64 `json:"scheduled_at"`
	CreatedAt   int64 `json:"created_at"`

	Processed  bool  `json:"processed,omitempty"`
	Failed     bool  `json:"failed,omitempty"`
	RetryCount int   `json:"retry_count,omitempty"`
	ExecutedAt int64 `json:"executed_at,omitempty"`

	// Presentation options passed through to the delivery sink.
	Icon               string `json:"icon,omitempty"`
	Badge              string `json:"badge,omitempty"`
	Tag                string `json:"tag,omitempty"`
	Vibrate            []int  `json:"vibrate,omitempty"`
	RequireInteraction bool   `json:"require_interaction,omitempty"`

	// Data round-trips opaque caller context (e.g. the location id).
	Data map[string]string `json:"data,omitempty"`
}

// Pending reports whether the record is still awaiting delivery.
func (r Record) Pending() bool { return !r.Processed && !r.Failed }

// Due reports whether the record should fire at the given instant.
func (r Record) Due(now time.Time) bool {
	return r.Pending() && r.ScheduledAt <= now.UnixMilli()
}

// Valid reports whether the record carries a usable schedule. Records with a
// zero/negative ScheduledAt are malformed and are purged rather than retried.
func (r Record) Valid() bool { return r.ID != "" && r.ScheduledAt > 0 }

// Remaining returns the time left until the record is due (negative if overdue).
func (r Record) Remaining(now time.Time) time.Duration {
	return time.UnixMilli(r.ScheduledAt).Sub(now)
}
