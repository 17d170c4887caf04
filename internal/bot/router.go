// Package bot implements the chat command layer: it consumes platform
// updates, drives the two-step creation dialogs and translates commands
// into storage and broadcaster calls.
package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/DeKoSun/Remindly-Pro-Bot/internal/domain"
	"github.com/DeKoSun/Remindly-Pro-Bot/internal/recurrence"
	"github.com/DeKoSun/Remindly-Pro-Bot/internal/storage"
	"github.com/DeKoSun/Remindly-Pro-Bot/internal/timeparse"
	"github.com/DeKoSun/Remindly-Pro-Bot/internal/tourney"
	kit "github.com/DeKoSun/Remindly-Pro-Bot/internal/transport"
	logx "github.com/DeKoSun/Remindly-Pro-Bot/pkg/logx"
	"github.com/DeKoSun/Remindly-Pro-Bot/pkg/tgtext"
)

// dialogTTL drops abandoned creation dialogs so a forgotten /add does not
// swallow an unrelated message days later.
const dialogTTL = 10 * time.Minute

type Config struct {
	DefaultTimezone string
}

type Router struct {
	cfg     Config
	adapter kit.Adapter
	store   storage.Store
	tour    *tourney.Service
	calc    *recurrence.Calculator
	log     logx.Logger

	nowFn func() time.Time

	mu      sync.Mutex
	dialogs map[dialogKey]*dialog
}

type dialogKey struct {
	ChatID int64
	UserID int64
}

type dialogStep int

const (
	stepBody dialogStep = iota
	stepWhen
)

type dialog struct {
	kind      domain.Kind
	step      dialogStep
	body      string
	startedAt time.Time
}

func New(cfg Config, adapter kit.Adapter, store storage.Store, tour *tourney.Service, calc *recurrence.Calculator, log logx.Logger) *Router {
	if cfg.DefaultTimezone == "" {
		cfg.DefaultTimezone = "Europe/Moscow"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		cfg:     cfg,
		adapter: adapter,
		store:   store,
		tour:    tour,
		calc:    calc,
		log:     log,
		nowFn:   time.Now,
		dialogs: map[dialogKey]*dialog{},
	}
}

// Run consumes updates until ctx is canceled or the channel closes.
// Messages are handled sequentially so dialog steps cannot interleave.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) {
	r.log.Info("command router started")
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			if up.Message == nil || strings.TrimSpace(up.Message.Text) == "" {
				continue
			}
			r.safeHandle(ctx, up.Message)
		}
	}
}

func (r *Router) safeHandle(ctx context.Context, msg *kit.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in command handler", logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
		}
	}()
	r.handle(ctx, msg)
}

func (r *Router) handle(ctx context.Context, msg *kit.Message) {
	if err := r.store.UpsertChat(ctx, msg.ChatID, msg.ChatType, msg.ChatTitle); err != nil {
		r.log.Warn("chat upsert failed", logx.Int64("chat", msg.ChatID), logx.Err(err))
	}

	text := strings.TrimSpace(msg.Text)
	if cmd, args, ok := splitCommand(text); ok {
		r.command(ctx, msg, cmd, args)
		return
	}
	if d := r.takeDialogStep(msg); d != nil {
		r.dialogStep(ctx, msg, d, text)
	}
}

// splitCommand parses "/cmd@bot arg arg" into a command and its argument
// tail. Non-commands return ok=false.
func splitCommand(text string) (cmd, args string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, tail, _ := strings.Cut(text[1:], " ")
	if at := strings.IndexByte(head, '@'); at >= 0 {
		head = head[:at]
	}
	head = strings.ToLower(strings.TrimSpace(head))
	if head == "" {
		return "", "", false
	}
	return head, strings.TrimSpace(tail), true
}

func (r *Router) command(ctx context.Context, msg *kit.Message, cmd, args string) {
	r.clearDialog(msg) // any explicit command aborts an in-flight dialog

	switch cmd {
	case "start":
		r.reply(ctx, msg, "Привет! Я напомню о чём угодно.\nКоманды: /add, /add_repeat, /list, /schedule, /help")
	case "help":
		r.reply(ctx, msg, helpText)
	case "ping":
		r.reply(ctx, msg, "pong")
	case "add":
		r.startDialog(ctx, msg, domain.KindOnce)
	case "add_repeat":
		r.startDialog(ctx, msg, domain.KindRecurring)
	case "cancel":
		r.reply(ctx, msg, "Ок, отменил.")
	case "list":
		r.list(ctx, msg)
	case "delete":
		r.withItem(ctx, msg, args, func(it domain.Reminder) (string, error) {
			if err := r.store.DeleteReminder(ctx, it.ID); err != nil {
				return "", err
			}
			return fmt.Sprintf("Удалил: %s", it.Body), nil
		})
	case "pause":
		r.withItem(ctx, msg, args, func(it domain.Reminder) (string, error) {
			if err := r.store.SetPaused(ctx, it.ID, true); err != nil {
				return "", err
			}
			return fmt.Sprintf("Поставил на паузу: %s", it.Body), nil
		})
	case "resume":
		r.withItem(ctx, msg, args, func(it domain.Reminder) (string, error) {
			if err := r.store.SetPaused(ctx, it.ID, false); err != nil {
				return "", err
			}
			return fmt.Sprintf("Снова активно: %s", it.Body), nil
		})
	case "set_tz":
		r.setTimezone(ctx, msg, args)
	case "quiet":
		r.quiet(ctx, msg, args)
	case "schedule":
		r.schedule(ctx, msg)
	case "subscribe_tournaments":
		r.subscribe(ctx, msg, true)
	case "unsubscribe_tournaments":
		r.subscribe(ctx, msg, false)
	default:
		r.reply(ctx, msg, "Не знаю такую команду. Список: /help")
	}
}

const helpText = `Что я умею:
/add — разовое напоминание (два шага: что, потом когда)
/add_repeat — повторяющееся напоминание
/list — список напоминаний в этом чате
/delete N — удалить напоминание номер N из /list
/pause N, /resume N — пауза и возврат
/set_tz Europe/Moscow — часовой пояс
/quiet 23-7 — тихие часы, /quiet off — выключить
/schedule — расписание турниров
/subscribe_tournaments, /unsubscribe_tournaments — анонсы турниров (в группе)
/cancel — прервать диалог

Когда: «+15», «через 30 минут», «завтра 9:30», «19:00», «3 pm»
Повтор: «ежедневно 9:00», «каждую минуту» или cron:30 8 * * 1-5`

// ---- dialogs ----

func (r *Router) startDialog(ctx context.Context, msg *kit.Message, kind domain.Kind) {
	key := dialogKey{ChatID: msg.ChatID, UserID: msg.FromID}
	r.mu.Lock()
	r.dialogs[key] = &dialog{kind: kind, step: stepBody, startedAt: r.nowFn()}
	r.mu.Unlock()
	r.reply(ctx, msg, "Что напомнить? (или /cancel)")
}

// takeDialogStep returns the active dialog for this chat+user, dropping
// expired ones.
func (r *Router) takeDialogStep(msg *kit.Message) *dialog {
	key := dialogKey{ChatID: msg.ChatID, UserID: msg.FromID}
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.dialogs[key]
	if !ok {
		return nil
	}
	if r.nowFn().Sub(d.startedAt) > dialogTTL {
		delete(r.dialogs, key)
		return nil
	}
	return d
}

func (r *Router) clearDialog(msg *kit.Message) {
	key := dialogKey{ChatID: msg.ChatID, UserID: msg.FromID}
	r.mu.Lock()
	delete(r.dialogs, key)
	r.mu.Unlock()
}

func (r *Router) dialogStep(ctx context.Context, msg *kit.Message, d *dialog, text string) {
	switch d.step {
	case stepBody:
		d.body = text
		d.step = stepWhen
		if d.kind == domain.KindRecurring {
			r.reply(ctx, msg, "Как часто? Например «ежедневно 9:00» или cron:30 8 * * 1-5")
		} else {
			r.reply(ctx, msg, "Когда? Например «+15», «завтра 9:30» или «19:00»")
		}
	case stepWhen:
		r.finishDialog(ctx, msg, d, text)
	}
}

func (r *Router) finishDialog(ctx context.Context, msg *kit.Message, d *dialog, phrase string) {
	loc := r.userLocation(ctx, msg.FromID)
	nowLocal := r.nowFn().In(loc)

	rem := domain.Reminder{
		OwnerID:  msg.FromID,
		ChatID:   msg.ChatID,
		Body:     d.body,
		Kind:     d.kind,
		Category: domain.CategoryUser,
		TZHint:   loc.String(),
	}

	var human string
	switch d.kind {
	case domain.KindOnce:
		at, h, err := timeparse.Once(phrase, nowLocal)
		if err != nil {
			r.reply(ctx, msg, "Не понял время. Попробуй «+15», «завтра 9:30» или «19:00» (или /cancel)")
			return
		}
		rem.TriggerAt = at.UTC()
		human = h
	case domain.KindRecurring:
		rule, h, next, err := timeparse.Repeat(phrase, nowLocal, r.calc)
		if err != nil {
			r.reply(ctx, msg, "Не понял расписание. Попробуй «ежедневно 9:00» или cron:30 8 * * 1-5 (или /cancel)")
			return
		}
		rem.Rule = rule
		rem.NextTriggerAt = next.UTC()
		human = h
	}

	if err := r.store.CreateReminder(ctx, rem); err != nil {
		r.log.Error("reminder create failed", logx.Int64("chat", msg.ChatID), logx.Err(err))
		r.reply(ctx, msg, "Не получилось сохранить, попробуй ещё раз.")
		return
	}
	r.clearDialog(msg)
	r.reply(ctx, msg, fmt.Sprintf("Готово! Напомню «%s» %s.", tgtext.TruncRunes(d.body, 120), human))
}

// ---- item commands ----

// userItems returns the chat's user-authored reminders, oldest due first.
// The ordering defines the N in /delete N, so /list and the mutation
// commands must agree on it.
func (r *Router) userItems(ctx context.Context, chatID int64) ([]domain.Reminder, error) {
	all, err := r.store.ListByChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	var out []domain.Reminder
	for _, it := range all {
		if it.Category == domain.CategoryUser {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt().Before(out[j].DueAt()) })
	return out, nil
}

func (r *Router) list(ctx context.Context, msg *kit.Message) {
	items, err := r.userItems(ctx, msg.ChatID)
	if err != nil {
		r.log.Error("list failed", logx.Int64("chat", msg.ChatID), logx.Err(err))
		r.reply(ctx, msg, "Не получилось достать список.")
		return
	}
	if len(items) == 0 {
		r.reply(ctx, msg, "Пока пусто. Создай напоминание через /add")
		return
	}
	loc := r.userLocation(ctx, msg.FromID)
	var b strings.Builder
	b.WriteString("Напоминания в этом чате:\n")
	for i, it := range items {
		fmt.Fprintf(&b, "%d. %s — %s", i+1, it.Body, formatDue(it, loc))
		if it.Paused {
			b.WriteString(" ⏸")
		}
		b.WriteByte('\n')
	}
	r.reply(ctx, msg, strings.TrimRight(b.String(), "\n"))
}

func formatDue(it domain.Reminder, loc *time.Location) string {
	if it.Kind == domain.KindRecurring {
		return fmt.Sprintf("по расписанию %s, ближайшее %s", it.Rule, it.NextTriggerAt.In(loc).Format("02.01 15:04"))
	}
	return it.TriggerAt.In(loc).Format("02.01 15:04")
}

// withItem resolves the /list ordinal in args and applies fn to the item.
func (r *Router) withItem(ctx context.Context, msg *kit.Message, args string, fn func(domain.Reminder) (string, error)) {
	n, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || n < 1 {
		r.reply(ctx, msg, "Укажи номер из /list, например: /delete 2")
		return
	}
	items, err := r.userItems(ctx, msg.ChatID)
	if err != nil {
		r.log.Error("item lookup failed", logx.Int64("chat", msg.ChatID), logx.Err(err))
		r.reply(ctx, msg, "Не получилось достать список.")
		return
	}
	if n > len(items) {
		r.reply(ctx, msg, fmt.Sprintf("Такого номера нет, в списке %d.", len(items)))
		return
	}
	out, err := fn(items[n-1])
	if err != nil {
		r.log.Error("item mutation failed", logx.String("reminder", items[n-1].ID), logx.Err(err))
		r.reply(ctx, msg, "Что-то пошло не так, попробуй ещё раз.")
		return
	}
	r.reply(ctx, msg, out)
}

// ---- preferences ----

func (r *Router) setTimezone(ctx context.Context, msg *kit.Message, args string) {
	name := strings.TrimSpace(args)
	if name == "" {
		r.reply(ctx, msg, "Укажи зону, например: /set_tz Europe/Moscow")
		return
	}
	if _, err := time.LoadLocation(name); err != nil {
		r.reply(ctx, msg, fmt.Sprintf("Не знаю зону «%s». Нужно имя из базы IANA, например Europe/Moscow.", name))
		return
	}
	if err := r.store.SetUserTimezone(ctx, msg.FromID, name); err != nil {
		r.log.Error("timezone update failed", logx.Int64("user", msg.FromID), logx.Err(err))
		r.reply(ctx, msg, "Не получилось сохранить, попробуй ещё раз.")
		return
	}
	r.reply(ctx, msg, fmt.Sprintf("Часовой пояс: %s", name))
}

func (r *Router) quiet(ctx context.Context, msg *kit.Message, args string) {
	arg := strings.ToLower(strings.TrimSpace(args))
	if arg == "off" {
		if err := r.store.ClearQuietHours(ctx, msg.FromID); err != nil {
			r.log.Error("quiet hours clear failed", logx.Int64("user", msg.FromID), logx.Err(err))
			r.reply(ctx, msg, "Не получилось сохранить, попробуй ещё раз.")
			return
		}
		r.reply(ctx, msg, "Тихие часы выключены.")
		return
	}
	from, to, ok := parseQuietRange(arg)
	if !ok {
		r.reply(ctx, msg, "Формат: /quiet 23-7 (часы с 0 до 23) или /quiet off")
		return
	}
	if err := r.store.SetQuietHours(ctx, msg.FromID, from, to); err != nil {
		r.log.Error("quiet hours update failed", logx.Int64("user", msg.FromID), logx.Err(err))
		r.reply(ctx, msg, "Не получилось сохранить, попробуй ещё раз.")
		return
	}
	r.reply(ctx, msg, fmt.Sprintf("Тихие часы: с %d:00 до %d:00. Напоминания подождут утра.", from, to))
}

func parseQuietRange(s string) (from, to int, ok bool) {
	fs, ts, found := strings.Cut(s, "-")
	if !found {
		return 0, 0, false
	}
	f, err1 := strconv.Atoi(strings.TrimSpace(fs))
	t, err2 := strconv.Atoi(strings.TrimSpace(ts))
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	if f < 0 || f > 23 || t < 0 || t > 23 || f == t {
		return 0, 0, false
	}
	return f, t, true
}

// ---- tournaments ----

func (r *Router) schedule(ctx context.Context, msg *kit.Message) {
	var b strings.Builder
	b.WriteString("Турниры каждый день:\n")
	for _, s := range tourney.DefaultSlots() {
		fmt.Fprintf(&b, "• %s\n", s.StartDisplay)
	}
	b.WriteString("Анонс приходит за 5 минут до начала.")
	r.reply(ctx, msg, b.String())
}

func (r *Router) subscribe(ctx context.Context, msg *kit.Message, on bool) {
	if !msg.IsGroup() {
		r.reply(ctx, msg, "Эта команда работает в группах.")
		return
	}
	var err error
	if on {
		err = r.tour.Subscribe(ctx, msg.ChatID, r.cfg.DefaultTimezone)
	} else {
		err = r.tour.Unsubscribe(ctx, msg.ChatID)
	}
	if err != nil {
		r.log.Error("tournament subscription change failed", logx.Int64("chat", msg.ChatID), logx.Bool("on", on), logx.Err(err))
		r.reply(ctx, msg, "Не получилось, попробуй ещё раз.")
		return
	}
	if on {
		r.reply(ctx, msg, "Подписал этот чат на анонсы турниров! Расписание: /schedule")
	} else {
		r.reply(ctx, msg, "Анонсы турниров в этом чате выключены.")
	}
}

// ---- misc ----

func (r *Router) userLocation(ctx context.Context, userID int64) *time.Location {
	prefs, ok, err := r.store.GetPrefs(ctx, userID)
	if err == nil && ok && prefs.Timezone != "" {
		if loc, lerr := time.LoadLocation(prefs.Timezone); lerr == nil {
			return loc
		}
	}
	if loc, lerr := time.LoadLocation(r.cfg.DefaultTimezone); lerr == nil {
		return loc
	}
	return time.UTC
}

func (r *Router) reply(ctx context.Context, msg *kit.Message, text string) {
	if err := r.adapter.SendText(ctx, kit.ChatTarget{ChatID: msg.ChatID}, text); err != nil {
		r.log.Warn("reply failed", logx.Int64("chat", msg.ChatID), logx.Err(err))
	}
}
