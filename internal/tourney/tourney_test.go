package tourney

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/DeKoSun/Remindly-Pro-Bot/internal/domain"
	"github.com/DeKoSun/Remindly-Pro-Bot/internal/recurrence"
	"github.com/DeKoSun/Remindly-Pro-Bot/internal/storage"
	logx "github.com/DeKoSun/Remindly-Pro-Bot/pkg/logx"
)

func openTestStore(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "test.db"), BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestService(t *testing.T, st storage.Store) *Service {
	t.Helper()
	s := New(Config{Enabled: true, DefaultTimezone: "UTC"}, st, recurrence.NewCalculator(), logx.Nop())
	s.nowFn = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func broadcastItems(t *testing.T, st storage.Store, chatID int64) []domain.Reminder {
	t.Helper()
	all, err := st.ListByChat(context.Background(), chatID)
	if err != nil {
		t.Fatalf("list by chat: %v", err)
	}
	var out []domain.Reminder
	for _, r := range all {
		if r.Category == domain.CategoryTournament {
			out = append(out, r)
		}
	}
	return out
}

func TestDefaultSlotsSchedule(t *testing.T) {
	t.Parallel()
	slots := DefaultSlots()
	if len(slots) != 6 {
		t.Fatalf("slots = %d, want 6", len(slots))
	}
	wantRules := map[string]string{
		"1355": "55 13 * * *", "1555": "55 15 * * *", "1755": "55 17 * * *",
		"1955": "55 19 * * *", "2155": "55 21 * * *", "2355": "55 23 * * *",
	}
	wantStarts := map[string]string{
		"1355": "14:00", "1555": "16:00", "1755": "18:00",
		"1955": "20:00", "2155": "22:00", "2355": "00:00",
	}
	for _, s := range slots {
		if s.Rule != wantRules[s.Key] {
			t.Errorf("slot %s rule = %q, want %q", s.Key, s.Rule, wantRules[s.Key])
		}
		if s.StartDisplay != wantStarts[s.Key] {
			t.Errorf("slot %s start = %q, want %q", s.Key, s.StartDisplay, wantStarts[s.Key])
		}
	}
}

func TestSubscribeProvisionsAllSlots(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	svc := newTestService(t, st)
	ctx := context.Background()
	const chatID = int64(-100)
	if err := st.UpsertChat(ctx, chatID, "group", "quiz"); err != nil {
		t.Fatalf("upsert chat: %v", err)
	}

	if err := svc.Subscribe(ctx, chatID, "UTC"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	items := broadcastItems(t, st, chatID)
	if len(items) != 6 {
		t.Fatalf("broadcast items = %d, want 6", len(items))
	}
	now := svc.nowFn()
	seen := map[string]bool{}
	for _, r := range items {
		if r.Kind != domain.KindRecurring {
			t.Errorf("slot %s kind = %s, want recurring", r.Slot, r.Kind)
		}
		if !r.NextTriggerAt.After(now) {
			t.Errorf("slot %s next trigger %v not in the future", r.Slot, r.NextTriggerAt)
		}
		if r.NextTriggerAt.Minute() != 55 {
			t.Errorf("slot %s fires at minute %d, want 55", r.Slot, r.NextTriggerAt.Minute())
		}
		seen[r.Slot] = true
	}
	for _, slot := range DefaultSlots() {
		if !seen[slot.Key] {
			t.Errorf("slot %s missing", slot.Key)
		}
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	svc := newTestService(t, st)
	ctx := context.Background()
	const chatID = int64(-100)
	if err := st.UpsertChat(ctx, chatID, "group", "quiz"); err != nil {
		t.Fatalf("upsert chat: %v", err)
	}
	if err := svc.Subscribe(ctx, chatID, "UTC"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := svc.Reconcile(ctx); err != nil {
			t.Fatalf("reconcile pass %d: %v", i, err)
		}
	}
	if items := broadcastItems(t, st, chatID); len(items) != 6 {
		t.Fatalf("broadcast items after repeated reconcile = %d, want 6", len(items))
	}
}

func TestUnsubscribeRemovesOnlyBroadcastItems(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	svc := newTestService(t, st)
	ctx := context.Background()
	const chatID = int64(-100)
	if err := st.UpsertChat(ctx, chatID, "group", "quiz"); err != nil {
		t.Fatalf("upsert chat: %v", err)
	}
	if err := svc.Subscribe(ctx, chatID, "UTC"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	user := domain.Reminder{
		OwnerID: 7, ChatID: chatID, Body: "water plants",
		Kind: domain.KindOnce, Category: domain.CategoryUser,
		TriggerAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	if err := st.CreateReminder(ctx, user); err != nil {
		t.Fatalf("create user reminder: %v", err)
	}

	if err := svc.Unsubscribe(ctx, chatID); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}

	if items := broadcastItems(t, st, chatID); len(items) != 0 {
		t.Fatalf("broadcast items after unsubscribe = %d, want 0", len(items))
	}
	all, err := st.ListByChat(ctx, chatID)
	if err != nil {
		t.Fatalf("list by chat: %v", err)
	}
	if len(all) != 1 || all[0].Body != "water plants" {
		t.Fatalf("user reminder should survive unsubscribe, got %d items", len(all))
	}
}

func TestReconcilePrunesAfterCrashedUnsubscribe(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	svc := newTestService(t, st)
	ctx := context.Background()
	const chatID = int64(-100)
	if err := st.UpsertChat(ctx, chatID, "group", "quiz"); err != nil {
		t.Fatalf("upsert chat: %v", err)
	}
	if err := svc.Subscribe(ctx, chatID, "UTC"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Simulate dying between the flag flip and the item delete.
	if err := st.SetTournamentSubscription(ctx, chatID, false); err != nil {
		t.Fatalf("flip subscription: %v", err)
	}
	if err := svc.Reconcile(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if items := broadcastItems(t, st, chatID); len(items) != 0 {
		t.Fatalf("orphaned broadcast items = %d, want 0 after reconcile", len(items))
	}
}
