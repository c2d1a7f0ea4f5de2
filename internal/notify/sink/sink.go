// Package sink abstracts how a due notification is surfaced to the user:
// a background-capable system channel (desktop notification daemon,
// Telegram) or the foreground-only UI callback. The queue stays decoupled
// from which sink is actually wired in.
package sink

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

// ErrDenied marks a permission failure (e.g. the user revoked notification
// access). Retrying cannot succeed without user action, so the queue fails
// such records immediately instead of burning retry attempts.
var ErrDenied = errors.New("notification delivery denied")

// Action is an interactive button attached to a notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// Notification is the display payload handed to a sink.
type Notification struct {
	Title string
	Body  string

	Icon               string
	Badge              string
	Tag                string
	Vibrate            []int
	RequireInteraction bool
	Actions            []Action
	Data               map[string]string
}

// Sink delivers one notification. Show blocks until the host API accepts
// or rejects the notification; the queue awaits each call sequentially.
type Sink interface {
	Show(ctx context.Context, n Notification) error
}

// Func adapts a plain function to a Sink.
type Func func(ctx context.Context, n Notification) error

func (f Func) Show(ctx context.Context, n Notification) error { return f(ctx, n) }

// Fallback tries the primary sink first and falls back on any non-permission
// error. Permission denials propagate: silently re-routing them would hide a
// problem the user has to fix.
func Fallback(primary, fallback Sink) Sink {
	return Func(func(ctx context.Context, n Notification) error {
		err := primary.Show(ctx, n)
		if err == nil || errors.Is(err, ErrDenied) {
			return err
		}
		return fallback.Show(ctx, n)
	})
}

// RateLimited caps delivery attempts per second with a token bucket.
// Burst equals the rate so short spikes don't block too hard.
func RateLimited(s Sink, perSec int) Sink {
	if perSec <= 0 {
		perSec = 3
	}
	lim := rate.NewLimiter(rate.Limit(perSec), perSec)
	return Func(func(ctx context.Context, n Notification) error {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		return s.Show(ctx, n)
	})
}
