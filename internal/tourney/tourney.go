// Package tourney provisions the fixed tournament broadcast schedule.
//
// Every subscribed chat owns one recurring broadcast item per slot. The
// items live in the same reminder table the delivery engine polls, so the
// broadcaster never sends anything itself: it only reconciles the desired
// set (subscribed chats x slots) against what the store holds. Reconciling
// is idempotent and keyed by (chat, slot), which makes crash recovery a
// matter of running one more pass.
package tourney

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/DeKoSun/Remindly-Pro-Bot/internal/recurrence"
	"github.com/DeKoSun/Remindly-Pro-Bot/internal/storage"
	logx "github.com/DeKoSun/Remindly-Pro-Bot/pkg/logx"
)

// Slot is one fixed broadcast time. The alert goes out a few minutes
// before the round starts, so the rule and the displayed start differ.
type Slot struct {
	// Key identifies the slot inside a chat, e.g. "1355".
	Key string
	// Rule is the 5-field cron expression of the alert, local time.
	Rule string
	// StartDisplay is the round start shown in the message, e.g. "14:00".
	StartDisplay string
}

// DefaultSlots returns the built-in schedule: six alerts at 55 minutes
// past every other hour from 13:55, each announcing the round that starts
// five minutes later.
func DefaultSlots() []Slot {
	return []Slot{
		{Key: "1355", Rule: "55 13 * * *", StartDisplay: "14:00"},
		{Key: "1555", Rule: "55 15 * * *", StartDisplay: "16:00"},
		{Key: "1755", Rule: "55 17 * * *", StartDisplay: "18:00"},
		{Key: "1955", Rule: "55 19 * * *", StartDisplay: "20:00"},
		{Key: "2155", Rule: "55 21 * * *", StartDisplay: "22:00"},
		{Key: "2355", Rule: "55 23 * * *", StartDisplay: "00:00"},
	}
}

// Store is the storage surface the broadcaster needs. The storage
// package's SQLite store satisfies it.
type Store interface {
	UpsertBroadcastReminder(ctx context.Context, chatID int64, slot, rule, body, tz string, next time.Time) error
	DeleteBroadcastReminders(ctx context.Context, chatID int64) error
	PruneBroadcastOrphans(ctx context.Context) (int64, error)
	SetTournamentSubscription(ctx context.Context, chatID int64, subscribed bool) error
	ListTournamentChats(ctx context.Context) ([]storage.TournamentChat, error)
}

type Config struct {
	Enabled bool
	// ReconcileInterval is how often the full desired-state pass runs.
	ReconcileInterval time.Duration
	// DefaultTimezone is used for chats without a stored timezone.
	DefaultTimezone string
}

func (c Config) withDefaults() Config {
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = 10 * time.Minute
	}
	if c.DefaultTimezone == "" {
		c.DefaultTimezone = "Europe/Moscow"
	}
	return c
}

// Service reconciles tournament broadcast items for subscribed chats.
type Service struct {
	store Store
	calc  *recurrence.Calculator
	slots []Slot
	log   logx.Logger

	nowFn func() time.Time

	mu       sync.Mutex
	cfg      Config
	stopCh   chan struct{}
	stopDone chan struct{}
}

func New(cfg Config, store Store, calc *recurrence.Calculator, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store: store,
		calc:  calc,
		slots: DefaultSlots(),
		log:   log,
		nowFn: time.Now,
		cfg:   cfg.withDefaults(),
	}
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

func (s *Service) snapshot() Config {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	return cfg
}

// Start launches the reconcile loop with an immediate first pass. A
// disabled service still accepts Subscribe/Unsubscribe calls; it only
// skips the periodic pass.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	s.stopDone = make(chan struct{})
	stopCh, stopDone := s.stopCh, s.stopDone
	s.mu.Unlock()

	go func() {
		defer close(stopDone)
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in reconcile loop", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		s.loop(ctx, stopCh)
	}()
	s.log.Info("tournament broadcaster started", logx.Bool("enabled", s.snapshot().Enabled))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	stopCh, stopDone := s.stopCh, s.stopDone
	s.stopCh, s.stopDone = nil, nil
	s.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	select {
	case <-stopDone:
	case <-ctx.Done():
		s.log.Warn("tournament broadcaster stop timed out")
	}
}

func (s *Service) loop(ctx context.Context, stopCh chan struct{}) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-timer.C:
			if cfg := s.snapshot(); cfg.Enabled {
				if err := s.Reconcile(ctx); err != nil {
					s.log.Error("broadcast reconcile failed", logx.Err(err))
				}
			}
			timer.Reset(s.snapshot().ReconcileInterval)
		}
	}
}

// Reconcile brings the store in line with the desired broadcast set: every
// subscribed chat gets one item per slot, and items of unsubscribed chats
// are pruned. Safe to run at any time, any number of times.
func (s *Service) Reconcile(ctx context.Context) error {
	chats, err := s.store.ListTournamentChats(ctx)
	if err != nil {
		return fmt.Errorf("list subscribed chats: %w", err)
	}
	for _, chat := range chats {
		if err := s.provision(ctx, chat.ChatID, chat.Timezone); err != nil {
			return err
		}
	}
	pruned, err := s.store.PruneBroadcastOrphans(ctx)
	if err != nil {
		return fmt.Errorf("prune orphans: %w", err)
	}
	if pruned > 0 {
		s.log.Info("pruned orphaned broadcast items", logx.Int64("count", pruned))
	}
	s.log.Debug("broadcast reconcile complete", logx.Int("chats", len(chats)))
	return nil
}

// provision upserts the six slot items for one chat. The upsert never
// touches next_at of an existing row, so a reconcile pass cannot rewind an
// item the engine already advanced.
func (s *Service) provision(ctx context.Context, chatID int64, tz string) error {
	loc := s.location(tz)
	nowLocal := s.nowFn().In(loc)
	for _, slot := range s.slots {
		next, err := s.calc.Next(slot.Rule, nowLocal)
		if err != nil {
			return fmt.Errorf("slot %s: %w", slot.Key, err)
		}
		if err := s.store.UpsertBroadcastReminder(ctx, chatID, slot.Key, slot.Rule, slot.StartDisplay, loc.String(), next.UTC()); err != nil {
			return fmt.Errorf("upsert chat %d slot %s: %w", chatID, slot.Key, err)
		}
	}
	return nil
}

func (s *Service) location(tz string) *time.Location {
	for _, name := range []string{tz, s.snapshot().DefaultTimezone} {
		if name == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.UTC
}

// Subscribe flags the chat and provisions its slot items immediately so
// the first alert does not wait for the next reconcile pass.
func (s *Service) Subscribe(ctx context.Context, chatID int64, tz string) error {
	if err := s.store.SetTournamentSubscription(ctx, chatID, true); err != nil {
		return fmt.Errorf("subscribe chat %d: %w", chatID, err)
	}
	if err := s.provision(ctx, chatID, tz); err != nil {
		return err
	}
	s.log.Info("chat subscribed to tournaments", logx.Int64("chat", chatID))
	return nil
}

// Unsubscribe clears the flag and removes the chat's broadcast items. User
// reminders in the same chat are untouched. If the process dies between
// the two writes, the next reconcile pass prunes the leftovers.
func (s *Service) Unsubscribe(ctx context.Context, chatID int64) error {
	if err := s.store.SetTournamentSubscription(ctx, chatID, false); err != nil {
		return fmt.Errorf("unsubscribe chat %d: %w", chatID, err)
	}
	if err := s.store.DeleteBroadcastReminders(ctx, chatID); err != nil {
		return fmt.Errorf("remove broadcast items for chat %d: %w", chatID, err)
	}
	s.log.Info("chat unsubscribed from tournaments", logx.Int64("chat", chatID))
	return nil
}
