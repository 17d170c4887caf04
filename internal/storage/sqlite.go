package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/DeKoSun/Remindly-Pro-Bot/internal/domain"
	logx "github.com/DeKoSun/Remindly-Pro-Bot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// timeLayout keeps stored instants fixed-width so string comparison in SQL
// is chronological. Do not change without migrating existing rows.
const timeLayout = "2006-01-02T15:04:05Z"

func fmtTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open initializes the SQLite store, creating the database file and schema
// as needed.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- reminders ----

const reminderCols = `id, user_id, chat_id, body, kind, category, cron_expr, remind_at, next_at, slot, tz_hint, paused, created_at, updated_at`

func (s *sqliteStore) CreateReminder(ctx context.Context, r domain.Reminder) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = newReminderID()
	}
	if r.Category == "" {
		r.Category = domain.CategoryUser
	}
	now := fmtTime(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(`+reminderCols+`)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.OwnerID, r.ChatID, r.Body, string(r.Kind), string(r.Category),
		nullStr(r.Rule), nullTime(r.TriggerAt), nullTime(r.NextTriggerAt),
		nullStr(r.Slot), nullStr(r.TZHint), boolInt(r.Paused), now, now,
	)
	return err
}

func (s *sqliteStore) GetReminder(ctx context.Context, id string) (domain.Reminder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reminderCols+` FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Reminder{}, ErrNotFound
	}
	return r, err
}

// ListDue applies the catch-up lower bound to one-off items only: a stale
// one-off ages out, but an active recurring item must always resurface so
// the engine can fast-forward its schedule past the gap, no matter how
// long the process was down.
func (s *sqliteStore) ListDue(ctx context.Context, now time.Time, catchUp time.Duration, limit int) ([]domain.Reminder, error) {
	upper := fmtTime(now)
	lower := fmtTime(now.Add(-catchUp))
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderCols+` FROM reminders
		 WHERE paused = 0 AND (
		       (kind = 'once'        AND remind_at <= ? AND remind_at >= ?)
		    OR (kind = 'repeat_cron' AND next_at   <= ?))
		 ORDER BY COALESCE(remind_at, next_at) ASC
		 LIMIT ?`,
		upper, lower, upper, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReminders(rows)
}

func (s *sqliteStore) ListByChat(ctx context.Context, chatID int64) ([]domain.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderCols+` FROM reminders
		 WHERE chat_id = ?
		 ORDER BY COALESCE(remind_at, next_at) ASC, created_at ASC`,
		chatID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReminders(rows)
}

func (s *sqliteStore) DeleteReminder(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) SetPaused(ctx context.Context, id string, paused bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET paused = ?, updated_at = ? WHERE id = ?`,
		boolInt(paused), fmtTime(time.Now()), id)
	return err
}

func (s *sqliteStore) SetNextTrigger(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET next_at = ?, updated_at = ? WHERE id = ?`,
		fmtTime(at), fmtTime(time.Now()), id)
	return err
}

func (s *sqliteStore) SetTriggerAt(ctx context.Context, id string, kind domain.Kind, at time.Time) error {
	col := "remind_at"
	if kind == domain.KindRecurring {
		col = "next_at"
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET `+col+` = ?, updated_at = ? WHERE id = ?`,
		fmtTime(at), fmtTime(time.Now()), id)
	return err
}

// ---- broadcast items ----

func (s *sqliteStore) UpsertBroadcastReminder(ctx context.Context, chatID int64, slot, rule, body, tz string, next time.Time) error {
	now := fmtTime(time.Now())
	// next_at is intentionally NOT overwritten on conflict: the engine owns
	// recurrence state once the item exists; reconciliation only refreshes
	// the rule, body and timezone hint.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(id, user_id, chat_id, body, kind, category, cron_expr, next_at, slot, tz_hint, paused, created_at, updated_at)
		 VALUES(?, 0, ?, ?, 'repeat_cron', 'tournament', ?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT(chat_id, slot) WHERE category = 'tournament'
		 DO UPDATE SET cron_expr  = excluded.cron_expr,
		               body       = excluded.body,
		               tz_hint    = excluded.tz_hint,
		               updated_at = excluded.updated_at`,
		newReminderID(), chatID, body, rule, fmtTime(next), slot, nullStr(tz), now, now,
	)
	return err
}

func (s *sqliteStore) DeleteBroadcastReminders(ctx context.Context, chatID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM reminders WHERE chat_id = ? AND category = 'tournament'`, chatID)
	return err
}

func (s *sqliteStore) PruneBroadcastOrphans(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM reminders
		 WHERE category = 'tournament'
		   AND chat_id NOT IN (SELECT chat_id FROM chats WHERE tournament_subscribed = 1)`)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ---- chats ----

func (s *sqliteStore) UpsertChat(ctx context.Context, chatID int64, chatType, title string) error {
	now := fmtTime(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats(chat_id, type, title, created_at, updated_at)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(chat_id) DO UPDATE SET
		     type = excluded.type,
		     title = excluded.title,
		     updated_at = excluded.updated_at`,
		chatID, chatType, nullStr(title), now, now,
	)
	return err
}

func (s *sqliteStore) SetTournamentSubscription(ctx context.Context, chatID int64, subscribed bool) error {
	now := fmtTime(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats(chat_id, type, tournament_subscribed, created_at, updated_at)
		 VALUES(?, 'group', ?, ?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET
		     tournament_subscribed = excluded.tournament_subscribed,
		     updated_at = excluded.updated_at`,
		chatID, boolInt(subscribed), now, now,
	)
	return err
}

func (s *sqliteStore) ListTournamentChats(ctx context.Context) ([]TournamentChat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, tz FROM chats WHERE tournament_subscribed = 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TournamentChat
	for rows.Next() {
		var c TournamentChat
		var tz sql.NullString
		if err := rows.Scan(&c.ChatID, &tz); err != nil {
			return nil, err
		}
		c.Timezone = tz.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// ---- user prefs ----

func (s *sqliteStore) SetUserTimezone(ctx context.Context, userID int64, tz string) error {
	now := fmtTime(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(user_id, tz, created_at, updated_at)
		 VALUES(?,?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET
		     tz = excluded.tz,
		     updated_at = excluded.updated_at`,
		userID, tz, now, now,
	)
	return err
}

func (s *sqliteStore) SetQuietHours(ctx context.Context, userID int64, from, to int) error {
	if from < 0 || from > 23 || to < 0 || to > 23 {
		return fmt.Errorf("quiet hours out of range: %d-%d", from, to)
	}
	now := fmtTime(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(user_id, quiet_from, quiet_to, created_at, updated_at)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET
		     quiet_from = excluded.quiet_from,
		     quiet_to = excluded.quiet_to,
		     updated_at = excluded.updated_at`,
		userID, from, to, now, now,
	)
	return err
}

func (s *sqliteStore) ClearQuietHours(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET quiet_from = NULL, quiet_to = NULL, updated_at = ? WHERE user_id = ?`,
		fmtTime(time.Now()), userID)
	return err
}

func (s *sqliteStore) GetPrefs(ctx context.Context, userID int64) (domain.Prefs, bool, error) {
	var tz sql.NullString
	var from, to sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT tz, quiet_from, quiet_to FROM users WHERE user_id = ?`, userID).
		Scan(&tz, &from, &to)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Prefs{}, false, nil
	}
	if err != nil {
		return domain.Prefs{}, false, err
	}
	p := domain.Prefs{Timezone: tz.String}
	if from.Valid && to.Valid {
		p.HasQuiet = true
		p.QuietFrom = int(from.Int64)
		p.QuietTo = int(to.Int64)
	}
	return p, true, nil
}

// ---- scanning helpers ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (domain.Reminder, error) {
	var (
		r                    domain.Reminder
		kind, category       string
		rule, slot, tzHint   sql.NullString
		remindAt, nextAt     sql.NullString
		paused               int
		createdAt, updatedAt string
	)
	err := row.Scan(&r.ID, &r.OwnerID, &r.ChatID, &r.Body, &kind, &category,
		&rule, &remindAt, &nextAt, &slot, &tzHint, &paused, &createdAt, &updatedAt)
	if err != nil {
		return domain.Reminder{}, err
	}

	// Single translation point from raw column values to the closed enums.
	if r.Kind, err = domain.ParseKind(kind); err != nil {
		return domain.Reminder{}, err
	}
	if r.Category, err = domain.ParseCategory(category); err != nil {
		return domain.Reminder{}, err
	}

	r.Rule = rule.String
	r.Slot = slot.String
	r.TZHint = tzHint.String
	r.Paused = paused != 0
	if r.TriggerAt, err = parseTime(remindAt.String); err != nil {
		return domain.Reminder{}, err
	}
	if r.NextTriggerAt, err = parseTime(nextAt.String); err != nil {
		return domain.Reminder{}, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Reminder{}, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.Reminder{}, err
	}
	return r, nil
}

func collectReminders(rows *sql.Rows) ([]domain.Reminder, error) {
	var out []domain.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return fmtTime(t)
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func newReminderID() string { return uuid.NewString() }
