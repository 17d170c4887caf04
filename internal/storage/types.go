package storage

import (
	"context"
	"errors"
	"time"

	"github.com/DeKoSun/Remindly-Pro-Bot/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Config configures storage.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// TournamentChat is a destination subscribed to tournament broadcasts.
type TournamentChat struct {
	ChatID   int64
	Timezone string
}

// Store is the persistence API used by the engine, the broadcaster and the
// command layer.
type Store interface {
	// Reminders.
	CreateReminder(ctx context.Context, r domain.Reminder) error
	GetReminder(ctx context.Context, id string) (domain.Reminder, error)
	// ListDue returns non-paused reminders due at or before now, oldest
	// first, capped at limit. The catchUp lower bound applies to one-off
	// items only; overdue recurring items are always returned so their
	// schedule can be advanced past a downtime gap.
	ListDue(ctx context.Context, now time.Time, catchUp time.Duration, limit int) ([]domain.Reminder, error)
	ListByChat(ctx context.Context, chatID int64) ([]domain.Reminder, error)
	DeleteReminder(ctx context.Context, id string) error
	SetPaused(ctx context.Context, id string, paused bool) error
	SetNextTrigger(ctx context.Context, id string, at time.Time) error
	// SetTriggerAt rewrites the trigger instant of either kind (quiet-hours deferral).
	SetTriggerAt(ctx context.Context, id string, kind domain.Kind, at time.Time) error

	// Tournament broadcast items, identified by (chat, slot).
	UpsertBroadcastReminder(ctx context.Context, chatID int64, slot, rule, body, tz string, next time.Time) error
	DeleteBroadcastReminders(ctx context.Context, chatID int64) error
	// PruneBroadcastOrphans removes broadcast items of chats that are no
	// longer subscribed (covers a crash between unsubscribe and delete).
	PruneBroadcastOrphans(ctx context.Context) (int64, error)

	// Chats and subscriptions.
	UpsertChat(ctx context.Context, chatID int64, chatType, title string) error
	SetTournamentSubscription(ctx context.Context, chatID int64, subscribed bool) error
	ListTournamentChats(ctx context.Context) ([]TournamentChat, error)

	// Per-user preferences.
	SetUserTimezone(ctx context.Context, userID int64, tz string) error
	SetQuietHours(ctx context.Context, userID int64, from, to int) error
	ClearQuietHours(ctx context.Context, userID int64) error
	// GetPrefs returns the stored prefs and whether a record exists.
	GetPrefs(ctx context.Context, userID int64) (domain.Prefs, bool, error)

	Close() error
}
