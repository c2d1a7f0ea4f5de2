// Package queue implements the background notification worker.
//
// The worker owns an in-memory map of scheduled notifications, mirrors it to
// the durable store, periodically scans for due items, fires them through a
// delivery sink with bounded retries, and answers a small command protocol
// (schedule/cancel/query/clear/force-reinit).
//
// Everything runs on ONE goroutine: the select loop over the command channel,
// the scan tick, and the keep-alive tick. That single-threaded model is
// deliberate (notification volume is single-digit items per user) and keeps
// retry bookkeeping and ordering deterministic without locks.
package queue
