// Package engine drives reminder delivery: a single poll loop selects due
// items from storage, defers anything inside the owner's quiet hours,
// dispatches the rest and advances or removes each item afterwards.
//
// # Loop model
//
// One goroutine owns the whole pipeline. Every poll interval the engine asks
// the store for due items (one-offs bounded by the catch-up window, plus a
// batch limit) and processes them sequentially. There is no per-item timer
// and no worker pool: throughput needs are modest and a single loop keeps
// the advancement bookkeeping trivially race-free.
//
// # Outcome handling
//
// One-off reminders are deleted after a successful or permanently failed
// delivery and retried on later ticks after a transient failure (until they
// age out of the catch-up window). Recurring reminders always advance to the
// next occurrence once delivery has been attempted, whatever the outcome, so
// a flaky channel can never make the same occurrence fire twice.
//
// # Quiet hours
//
// Before dispatch the engine resolves the owner's preferences. If the local
// delivery instant falls inside the quiet window, the item's trigger is
// rewritten to the end of the window and nothing is sent this tick.
package engine
