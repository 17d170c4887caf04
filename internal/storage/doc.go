// Package storage persists reminders, chat subscriptions and per-user
// preferences in SQLite.
//
// Instants are stored as fixed-width UTC RFC3339 strings ("2006-01-02T15:04:05Z"),
// so lexicographic comparison in SQL matches chronological order. The due-item
// query relies on this.
package storage
