package storage

import (
	"context"
	"errors"
	"time"

	"parkpin/internal/notify"
)

// ErrNotReady is returned while the underlying store cannot be opened.
// Callers treat it as a degraded mode, never as fatal.
var ErrNotReady = errors.New("store not ready")

// Config configures the durable store.
//
// Driver values:
//   - "file":   single-file JSON snapshot
//   - "sqlite": SQLite database file
//   - "redis":  Redis hash
//
// If Driver is empty, "file" is assumed.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	Redis RedisConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// Store is the persistence API used by the notification queue.
type Store interface {
	Put(ctx context.Context, rec notify.Record) error
	GetAll(ctx context.Context) ([]notify.Record, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	Close() error
}
