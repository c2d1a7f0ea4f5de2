package location

import "context"

// Location is a saved parking spot. It is owned by the UI-side location
// store; this daemon only reads the deadline fields. ExpiresAt is epoch ms,
// 0 when the location has no deadline.
type Location struct {
	ID              string `json:"id"`
	Note            string `json:"note,omitempty"`
	ExpiresAt       int64  `json:"expires_at,omitempty"`
	ReminderMinutes int    `json:"reminder_minutes,omitempty"`
	ExtensionCount  int    `json:"extension_count,omitempty"`
}

// HasDeadline reports whether the location carries an expiry deadline.
func (l Location) HasDeadline() bool { return l.ExpiresAt > 0 }

// Source is the read-only boundary to the location store.
type Source interface {
	GetLocations(ctx context.Context) ([]Location, error)
}
