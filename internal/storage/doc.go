// Package storage provides the durable mirror for scheduled notifications.
//
// The in-memory map owned by the notification queue is the source of truth
// while the worker is alive; this package only needs to survive worker
// restarts. It currently supports:
//   - "file":   single-file JSON snapshot (dependency-free)
//   - "sqlite": SQLite database file
//   - "redis":  Redis hash (one field per notification id)
//
// The SelfHealing wrapper keeps the queue insulated from store outages:
// every operation lazily (re)opens the underlying driver, and any error
// flips the readiness flag so the next operation retries the open.
package storage
