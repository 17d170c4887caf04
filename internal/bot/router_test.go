package bot

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DeKoSun/Remindly-Pro-Bot/internal/domain"
	"github.com/DeKoSun/Remindly-Pro-Bot/internal/recurrence"
	"github.com/DeKoSun/Remindly-Pro-Bot/internal/storage"
	"github.com/DeKoSun/Remindly-Pro-Bot/internal/tourney"
	kit "github.com/DeKoSun/Remindly-Pro-Bot/internal/transport"
	logx "github.com/DeKoSun/Remindly-Pro-Bot/pkg/logx"
)

type fakeAdapter struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, _ kit.ChatTarget, text string) error {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) lastReply(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no reply sent")
	}
	return f.sent[len(f.sent)-1]
}

type routerFixture struct {
	router  *Router
	adapter *fakeAdapter
	store   storage.Store
	now     time.Time
}

func newFixture(t *testing.T) *routerFixture {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "test.db"), BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	calc := recurrence.NewCalculator()
	tour := tourney.New(tourney.Config{Enabled: true, DefaultTimezone: "UTC"}, st, calc, logx.Nop())
	ad := &fakeAdapter{}
	r := New(Config{DefaultTimezone: "UTC"}, ad, st, tour, calc, logx.Nop())

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.nowFn = func() time.Time { return now }
	return &routerFixture{router: r, adapter: ad, store: st, now: now}
}

func privateMsg(text string) *kit.Message {
	return &kit.Message{ChatID: 100, FromID: 7, Text: text, ChatType: "private"}
}

func groupMsg(text string) *kit.Message {
	return &kit.Message{ChatID: -200, FromID: 7, Text: text, ChatType: "group", ChatTitle: "quiz"}
}

func (fx *routerFixture) send(t *testing.T, msg *kit.Message) {
	t.Helper()
	fx.router.handle(context.Background(), msg)
}

func TestSplitCommand(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in       string
		cmd, arg string
		ok       bool
	}{
		{"/add", "add", "", true},
		{"/delete 2", "delete", "2", true},
		{"/set_tz@remindly_bot Europe/Moscow", "set_tz", "Europe/Moscow", true},
		{"/PING", "ping", "", true},
		{"hello", "", "", false},
		{"/", "", "", false},
	}
	for _, tc := range cases {
		cmd, arg, ok := splitCommand(tc.in)
		if cmd != tc.cmd || arg != tc.arg || ok != tc.ok {
			t.Errorf("splitCommand(%q) = (%q, %q, %v), want (%q, %q, %v)", tc.in, cmd, arg, ok, tc.cmd, tc.arg, tc.ok)
		}
	}
}

func TestAddDialogCreatesOnceReminder(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	fx.send(t, privateMsg("/add"))
	fx.send(t, privateMsg("выпить воды"))
	fx.send(t, privateMsg("+15"))

	if got := fx.adapter.lastReply(t); !strings.Contains(got, "выпить воды") {
		t.Fatalf("confirmation %q should echo the body", got)
	}
	items, err := fx.store.ListByChat(context.Background(), 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("reminders = %d, want 1", len(items))
	}
	it := items[0]
	if it.Kind != domain.KindOnce || it.Body != "выпить воды" {
		t.Fatalf("unexpected reminder %+v", it)
	}
	if want := fx.now.Add(15 * time.Minute); !it.TriggerAt.Equal(want) {
		t.Fatalf("trigger = %v, want %v", it.TriggerAt, want)
	}
}

func TestAddRepeatDialogCreatesRecurring(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	fx.send(t, privateMsg("/add_repeat"))
	fx.send(t, privateMsg("зарядка"))
	fx.send(t, privateMsg("ежедневно 9:00"))

	items, err := fx.store.ListByChat(context.Background(), 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("reminders = %d, want 1", len(items))
	}
	it := items[0]
	if it.Kind != domain.KindRecurring {
		t.Fatalf("kind = %s, want recurring", it.Kind)
	}
	if it.Rule != "0 9 * * *" {
		t.Fatalf("rule = %q, want daily 9:00", it.Rule)
	}
	if !it.NextTriggerAt.After(fx.now) {
		t.Fatalf("next trigger %v not in the future", it.NextTriggerAt)
	}
}

func TestBadTimePhraseKeepsDialogOpen(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	fx.send(t, privateMsg("/add"))
	fx.send(t, privateMsg("позвонить маме"))
	fx.send(t, privateMsg("когда-нибудь потом"))

	items, _ := fx.store.ListByChat(context.Background(), 100)
	if len(items) != 0 {
		t.Fatalf("reminders = %d, want 0 after unparseable phrase", len(items))
	}
	// The dialog is still waiting, a valid phrase finishes it.
	fx.send(t, privateMsg("19:00"))
	items, _ = fx.store.ListByChat(context.Background(), 100)
	if len(items) != 1 {
		t.Fatalf("reminders = %d, want 1 after retry", len(items))
	}
}

func TestCancelAbortsDialog(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	fx.send(t, privateMsg("/add"))
	fx.send(t, privateMsg("/cancel"))
	fx.send(t, privateMsg("это просто сообщение"))

	items, _ := fx.store.ListByChat(context.Background(), 100)
	if len(items) != 0 {
		t.Fatalf("reminders = %d, want 0 after cancel", len(items))
	}
}

func TestDeleteByListOrdinal(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()
	mk := func(body string, at time.Time) {
		err := fx.store.CreateReminder(ctx, domain.Reminder{
			OwnerID: 7, ChatID: 100, Body: body,
			Kind: domain.KindOnce, Category: domain.CategoryUser, TriggerAt: at,
		})
		if err != nil {
			t.Fatalf("create %s: %v", body, err)
		}
	}
	mk("later", fx.now.Add(2*time.Hour))
	mk("sooner", fx.now.Add(time.Hour))

	fx.send(t, privateMsg("/delete 1"))
	if got := fx.adapter.lastReply(t); !strings.Contains(got, "sooner") {
		t.Fatalf("reply %q, want deletion of the earliest-due item", got)
	}
	items, _ := fx.store.ListByChat(ctx, 100)
	if len(items) != 1 || items[0].Body != "later" {
		t.Fatalf("remaining items %+v, want just \"later\"", items)
	}
}

func TestQuietHoursCommand(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()

	fx.send(t, privateMsg("/quiet 23-7"))
	prefs, ok, err := fx.store.GetPrefs(ctx, 7)
	if err != nil || !ok {
		t.Fatalf("prefs after /quiet: ok=%v err=%v", ok, err)
	}
	if !prefs.HasQuiet || prefs.QuietFrom != 23 || prefs.QuietTo != 7 {
		t.Fatalf("prefs = %+v, want quiet 23-7", prefs)
	}

	fx.send(t, privateMsg("/quiet off"))
	prefs, _, _ = fx.store.GetPrefs(ctx, 7)
	if prefs.HasQuiet {
		t.Fatal("quiet hours should be cleared")
	}

	fx.send(t, privateMsg("/quiet 25-7"))
	if got := fx.adapter.lastReply(t); !strings.Contains(got, "/quiet off") {
		t.Fatalf("reply %q, want usage hint for bad range", got)
	}
}

func TestSetTimezoneValidates(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	fx.send(t, privateMsg("/set_tz Atlantis/Lost"))
	prefs, ok, _ := fx.store.GetPrefs(context.Background(), 7)
	if ok && prefs.Timezone == "Atlantis/Lost" {
		t.Fatal("unknown zone must not be saved")
	}
	fx.send(t, privateMsg("/set_tz UTC"))
	prefs, ok, _ = fx.store.GetPrefs(context.Background(), 7)
	if !ok || prefs.Timezone != "UTC" {
		t.Fatalf("prefs = %+v, want UTC saved", prefs)
	}
}

func TestSubscribeTournamentsGroupOnly(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()

	fx.send(t, privateMsg("/subscribe_tournaments"))
	chats, err := fx.store.ListTournamentChats(ctx)
	if err != nil {
		t.Fatalf("list chats: %v", err)
	}
	if len(chats) != 0 {
		t.Fatal("private chat must not be subscribable")
	}

	fx.send(t, groupMsg("/subscribe_tournaments"))
	chats, _ = fx.store.ListTournamentChats(ctx)
	if len(chats) != 1 || chats[0].ChatID != -200 {
		t.Fatalf("subscribed chats = %+v, want the group", chats)
	}
	items, _ := fx.store.ListByChat(ctx, -200)
	if len(items) != 6 {
		t.Fatalf("broadcast items = %d, want 6 right after subscribe", len(items))
	}

	fx.send(t, groupMsg("/unsubscribe_tournaments"))
	items, _ = fx.store.ListByChat(ctx, -200)
	if len(items) != 0 {
		t.Fatalf("broadcast items after unsubscribe = %d, want 0", len(items))
	}
}

func TestUnknownCommandPointsToHelp(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	fx.send(t, privateMsg("/frobnicate"))
	if got := fx.adapter.lastReply(t); !strings.Contains(got, "/help") {
		t.Fatalf("reply %q, want a /help pointer", got)
	}
}
