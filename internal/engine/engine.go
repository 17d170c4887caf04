package engine

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/DeKoSun/Remindly-Pro-Bot/internal/dispatch"
	"github.com/DeKoSun/Remindly-Pro-Bot/internal/domain"
	"github.com/DeKoSun/Remindly-Pro-Bot/internal/recurrence"
	"github.com/DeKoSun/Remindly-Pro-Bot/internal/texts"
	kit "github.com/DeKoSun/Remindly-Pro-Bot/internal/transport"
	logx "github.com/DeKoSun/Remindly-Pro-Bot/pkg/logx"
)

// maxAdvanceSteps bounds the catch-up fast-forward for stale recurring
// items. "* * * * *" left paused for a week would otherwise spin ~10k
// iterations; anything beyond the cap is treated as an invalid rule.
const maxAdvanceSteps = 5000

// Store is the storage surface the engine consumes. The storage package's
// SQLite store satisfies it.
type Store interface {
	ListDue(ctx context.Context, now time.Time, catchUp time.Duration, limit int) ([]domain.Reminder, error)
	DeleteReminder(ctx context.Context, id string) error
	SetPaused(ctx context.Context, id string, paused bool) error
	SetNextTrigger(ctx context.Context, id string, at time.Time) error
	SetTriggerAt(ctx context.Context, id string, kind domain.Kind, at time.Time) error
	GetPrefs(ctx context.Context, userID int64) (domain.Prefs, bool, error)
}

// Deliverer is the dispatch surface. *dispatch.Dispatcher satisfies it.
type Deliverer interface {
	Deliver(ctx context.Context, to kit.ChatTarget, text string) dispatch.Outcome
}

type Config struct {
	// PollInterval is the tick period of the delivery loop.
	PollInterval time.Duration
	// BatchSize caps how many due items a single tick processes.
	BatchSize int
	// CatchUpWindow is how far into the past a missed one-off trigger is
	// still honored after downtime; older one-off items silently age out.
	// Recurring items are exempt: they always resurface and fast-forward.
	CatchUpWindow time.Duration
	// DefaultTimezone resolves owners with no stored preference and no
	// per-item hint.
	DefaultTimezone string
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.CatchUpWindow <= 0 {
		c.CatchUpWindow = 24 * time.Hour
	}
	if c.DefaultTimezone == "" {
		c.DefaultTimezone = "Europe/Moscow"
	}
	return c
}

// Service is the poll-loop delivery engine. Construct with New, then
// Start/Stop; Apply may be called concurrently for config hot-reload.
type Service struct {
	store   Store
	deliver Deliverer
	calc    *recurrence.Calculator
	phrases *texts.Rotator
	log     logx.Logger

	// nowFn is swapped in tests.
	nowFn func() time.Time

	mu       sync.Mutex // guards cfg and lifecycle fields
	cfg      Config
	stopCh   chan struct{}
	stopDone chan struct{}
}

func New(cfg Config, store Store, deliver Deliverer, calc *recurrence.Calculator, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		store:   store,
		deliver: deliver,
		calc:    calc,
		phrases: texts.NewRotator(),
		log:     log,
		nowFn:   time.Now,
		cfg:     cfg.withDefaults(),
	}
	return s
}

// Apply swaps the config; the new poll interval takes effect on the next
// timer reset.
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

// Start launches the delivery loop. The first tick runs immediately so
// items that came due during downtime are caught up without waiting a full
// interval. Calling Start on a running service is a no-op.
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
				s.log.Error("panic in delivery loop", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		s.loop(ctx, stopCh)
	}()
	s.log.Info("delivery engine started", logx.Duration("poll_interval", s.snapshot().PollInterval))
}

// Stop shuts the loop down and waits for the in-flight tick to finish or
// ctx to expire.
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
		s.log.Warn("delivery engine stop timed out")
	}
}

func (s *Service) loop(ctx context.Context, stopCh chan struct{}) {
	timer := time.NewTimer(0) // immediate first tick
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-timer.C:
			s.tick(ctx)
			timer.Reset(s.snapshot().PollInterval)
		}
	}
}

// tick runs one pass of the pipeline: select due, then process each item.
func (s *Service) tick(ctx context.Context) {
	cfg := s.snapshot()
	now := s.nowFn().UTC()

	items, err := s.store.ListDue(ctx, now, cfg.CatchUpWindow, cfg.BatchSize)
	if err != nil {
		s.log.Error("due selection failed, tick abandoned", logx.Err(err))
		return
	}
	if len(items) == 0 {
		return
	}
	s.log.Debug("processing due batch", logx.Int("count", len(items)))
	for i := range items {
		if ctx.Err() != nil {
			return
		}
		s.process(ctx, cfg, now, items[i])
	}
}

func (s *Service) process(ctx context.Context, cfg Config, now time.Time, it domain.Reminder) {
	log := s.log.With(logx.String("reminder", it.ID), logx.Int64("chat", it.ChatID), logx.String("kind", string(it.Kind)))

	prefs := s.prefsFor(ctx, cfg, it)
	loc := s.locationFor(cfg, prefs, it)

	if deferred, until := domain.ShouldDefer(prefs, now.In(loc)); deferred {
		if err := s.store.SetTriggerAt(ctx, it.ID, it.Kind, until.UTC()); err != nil {
			log.Error("quiet-hours deferral failed", logx.Err(err))
			return
		}
		log.Debug("delivery deferred past quiet hours", logx.Time("until", until))
		return
	}

	outcome := s.deliver.Deliver(ctx, kit.ChatTarget{ChatID: it.ChatID}, s.render(it))

	switch it.Kind {
	case domain.KindOnce:
		switch outcome {
		case dispatch.Success, dispatch.PermanentFailure:
			if err := s.store.DeleteReminder(ctx, it.ID); err != nil {
				log.Error("spent reminder not removed", logx.Err(err))
			}
		case dispatch.TransientFailure:
			// Left untouched; the next tick retries until the item ages
			// out of the catch-up window.
			log.Debug("one-off delivery deferred to next tick")
		}
	case domain.KindRecurring:
		// Advance regardless of outcome so this occurrence never fires twice.
		s.advance(ctx, log, it, now, loc)
	}
}

func (s *Service) render(it domain.Reminder) string {
	if it.Category == domain.CategoryTournament {
		return s.phrases.Tournament(it.ChatID, it.Body)
	}
	return s.phrases.Reminder(it.ChatID, it.Body)
}

// prefsFor resolves the owner's prefs, falling back to defaults on a
// missing record or a storage error.
func (s *Service) prefsFor(ctx context.Context, cfg Config, it domain.Reminder) domain.Prefs {
	if it.OwnerID == 0 {
		return domain.DefaultPrefs(cfg.DefaultTimezone)
	}
	prefs, ok, err := s.store.GetPrefs(ctx, it.OwnerID)
	if err != nil {
		s.log.Warn("prefs lookup failed, using defaults", logx.Int64("owner", it.OwnerID), logx.Err(err))
		return domain.DefaultPrefs(cfg.DefaultTimezone)
	}
	if !ok {
		return domain.DefaultPrefs(cfg.DefaultTimezone)
	}
	return prefs
}

// locationFor picks the delivery timezone: stored preference, then the
// item's creation-time hint, then the system default, then UTC.
func (s *Service) locationFor(cfg Config, prefs domain.Prefs, it domain.Reminder) *time.Location {
	for _, name := range []string{prefs.Timezone, it.TZHint, cfg.DefaultTimezone} {
		if name == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.UTC
}

// advance computes the next occurrence from the previous one (preserving
// cadence phase), fast-forwards past now if the item is stale, and persists
// the result. Items whose rule no longer parses are paused instead of
// looping on every tick.
func (s *Service) advance(ctx context.Context, log logx.Logger, it domain.Reminder, now time.Time, loc *time.Location) {
	base := it.NextTriggerAt
	if base.IsZero() {
		base = now
	}
	next, err := s.calc.Next(it.Rule, base.In(loc))
	if err != nil {
		s.pause(ctx, log, it, err)
		return
	}
	steps := 0
	for !next.After(now) {
		steps++
		if steps > maxAdvanceSteps {
			s.pause(ctx, log, it, recurrence.ErrInvalidRule)
			return
		}
		next, err = s.calc.Next(it.Rule, next)
		if err != nil {
			s.pause(ctx, log, it, err)
			return
		}
	}
	if err := s.store.SetNextTrigger(ctx, it.ID, next.UTC()); err != nil {
		log.Error("recurrence advancement failed", logx.Err(err))
		return
	}
	log.Debug("recurrence advanced", logx.Time("next", next))
}

func (s *Service) pause(ctx context.Context, log logx.Logger, it domain.Reminder, cause error) {
	if err := s.store.SetPaused(ctx, it.ID, true); err != nil {
		log.Error("failed to pause broken reminder", logx.Err(err))
		return
	}
	log.Error("recurring reminder paused", logx.String("rule", it.Rule), logx.Err(cause))
}
