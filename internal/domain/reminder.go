// Package domain holds the core reminder entities shared by the storage
// layer, the delivery engine and the command layer.
package domain

import (
	"fmt"
	"time"
)

// Kind discriminates one-off reminders from cron-recurring ones.
type Kind string

const (
	KindOnce      Kind = "once"
	KindRecurring Kind = "repeat_cron"
)

// ParseKind is the single translation point from the store's raw kind column.
func ParseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case KindOnce, KindRecurring:
		return Kind(raw), nil
	}
	return "", fmt.Errorf("unknown reminder kind %q", raw)
}

// Category separates user-authored reminders from items provisioned by the
// tournament broadcaster. Broadcast items are reconciled (and bulk-deleted)
// by category, so the value is reserved.
type Category string

const (
	CategoryUser       Category = "user"
	CategoryTournament Category = "tournament"
)

// ParseCategory is the single translation point from the store's raw category column.
func ParseCategory(raw string) (Category, error) {
	switch Category(raw) {
	case CategoryUser, CategoryTournament:
		return Category(raw), nil
	}
	return "", fmt.Errorf("unknown reminder category %q", raw)
}

// Reminder is the central entity, used end-to-end from due selection through
// mutation. Exactly one of TriggerAt (once) / Rule+NextTriggerAt (recurring)
// is populated, matching Kind.
type Reminder struct {
	ID      string
	OwnerID int64
	ChatID  int64
	Body    string

	Kind     Kind
	Category Category

	// Once.
	TriggerAt time.Time // UTC

	// Recurring.
	Rule          string    // 5-field cron expression, evaluated in local time
	NextTriggerAt time.Time // UTC

	// Slot is the broadcast slot key ("1355", ...) for tournament items,
	// empty for user reminders. Job identity is (ChatID, Slot).
	Slot string

	// TZHint carries the owner's timezone at creation time so recurrence
	// advancement stays correct even if the preference changes later.
	TZHint string

	Paused bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DueAt returns the instant this reminder is scheduled to fire at.
func (r Reminder) DueAt() time.Time {
	if r.Kind == KindOnce {
		return r.TriggerAt
	}
	return r.NextTriggerAt
}

// Validate checks the kind/field pairing invariant.
func (r Reminder) Validate() error {
	switch r.Kind {
	case KindOnce:
		if r.TriggerAt.IsZero() {
			return fmt.Errorf("reminder %s: once without trigger instant", r.ID)
		}
		if r.Rule != "" {
			return fmt.Errorf("reminder %s: once with recurrence rule", r.ID)
		}
	case KindRecurring:
		if r.Rule == "" {
			return fmt.Errorf("reminder %s: recurring without rule", r.ID)
		}
		if r.NextTriggerAt.IsZero() {
			return fmt.Errorf("reminder %s: recurring without next trigger", r.ID)
		}
	default:
		return fmt.Errorf("reminder %s: unknown kind %q", r.ID, string(r.Kind))
	}
	switch r.Category {
	case CategoryUser, CategoryTournament, "":
		// Empty is allowed here; the store fills in CategoryUser on insert.
	default:
		return fmt.Errorf("reminder %s: unknown category %q", r.ID, string(r.Category))
	}
	return nil
}
