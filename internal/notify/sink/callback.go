package sink

import (
	"context"
	"errors"
	"sync"
)

// Callback is the foreground-only sink: it hands the notification to an
// in-process UI handler (toast/banner). It does not survive the process,
// which is exactly why the queue prefers a background-capable sink first.
type Callback struct {
	mu      sync.RWMutex
	handler func(n Notification)
}

func NewCallback() *Callback { return &Callback{} }

// SetHandler installs (or replaces) the UI handler.
func (c *Callback) SetHandler(fn func(n Notification)) {
	c.mu.Lock()
	c.handler = fn
	c.mu.Unlock()
}

func (c *Callback) Show(ctx context.Context, n Notification) error {
	_ = ctx
	c.mu.RLock()
	fn := c.handler
	c.mu.RUnlock()
	if fn == nil {
		return errors.New("no UI handler registered")
	}
	fn(n)
	return nil
}
