// Package command defines the message protocol between the timer manager and
// the notification queue, plus the ordered async channel carrying it.
//
// The variants form a closed set; the queue's dispatcher switches over them
// exhaustively with no default fallthrough.
package command

import (
	"errors"
	"time"

	"parkpin/internal/notify"
)

var (
	// ErrChannelFull is returned when the queue worker is not draining
	// commands fast enough. Callers degrade to foreground-only behavior.
	ErrChannelFull = errors.New("command channel full")
	// ErrChannelClosed is returned once the queue worker has shut down.
	ErrChannelClosed = errors.New("command channel closed")
)

// Command is the closed set of requests the queue accepts.
type Command interface{ isCommand() }

// Schedule upserts a scheduled notification by id (last write wins).
type Schedule struct {
	Record notify.Record
}

// Cancel removes a pending notification. Cancelling an unknown id is a no-op.
type Cancel struct {
	ID string
}

// ClearAll empties the queue and its durable mirror.
type ClearAll struct{}

// QueryStatus requests a read-only snapshot of the queue.
type QueryStatus struct {
	Reply chan<- Status
}

// ForceReinit asks the queue to reconnect its durable store and report the
// outcome. Operator escape hatch.
type ForceReinit struct {
	Reply chan<- error
}

func (Schedule) isCommand()    {}
func (Cancel) isCommand()      {}
func (ClearAll) isCommand()    {}
func (QueryStatus) isCommand() {}
func (ForceReinit) isCommand() {}

// Status is the QueryStatus response.
type Status struct {
	QueueSize  int          `json:"queue_size"`
	Scanning   bool         `json:"scanning"`
	StoreReady bool         `json:"store_ready"`
	Items      []StatusItem `json:"items,omitempty"`
}

type StatusItem struct {
	ID          string        `json:"id"`
	Remaining   time.Duration `json:"remaining"`
	Processed   bool          `json:"processed"`
	Failed      bool          `json:"failed"`
	RetryCount  int           `json:"retry_count"`
	ScheduledAt int64         `json:"scheduled_at"`
}

// Channel is a bounded, ordered, asynchronous conduit for commands.
// The queue service is the sole consumer.
type Channel struct {
	ch chan Command
}

func NewChannel(buffer int) *Channel {
	if buffer <= 0 {
		buffer = 64
	}
	return &Channel{ch: make(chan Command, buffer)}
}

// Send enqueues cmd without blocking. A full buffer is reported as
// ErrChannelFull rather than waited out: the sender runs on the UI side and
// must never stall behind a slow worker.
func (c *Channel) Send(cmd Command) (err error) {
	defer func() {
		if recover() != nil {
			err = ErrChannelClosed
		}
	}()
	select {
	case c.ch <- cmd:
		return nil
	default:
		return ErrChannelFull
	}
}

// Receive exposes the consumer side for the queue's select loop.
func (c *Channel) Receive() <-chan Command { return c.ch }

// Close marks the channel unusable. Subsequent Sends return ErrChannelClosed.
func (c *Channel) Close() { close(c.ch) }
