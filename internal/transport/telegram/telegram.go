// Package telegram adapts gopkg.in/telebot.v4 to the transport.Adapter
// surface used by the rest of the bot.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "github.com/DeKoSun/Remindly-Pro-Bot/internal/transport"
	logx "github.com/DeKoSun/Remindly-Pro-Bot/pkg/logx"
	"github.com/DeKoSun/Remindly-Pro-Bot/pkg/tgtext"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot *tele.Bot
	out atomic.Value // stores (chan<- kit.Update)

	runMu   sync.Mutex
	running bool

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the poll loop. Logged on Stop() to avoid per-update spam.
	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	a := &Adapter{cfg: cfg, log: log, bot: b}
	// Ensure atomic.Value is initialized with a stable dynamic type.
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil || m.Chat == nil {
			return nil
		}
		a.sendUpdate(kit.Update{
			Message: &kit.Message{
				ID:           m.ID,
				ChatID:       m.Chat.ID,
				FromID:       m.Sender.ID,
				FromUsername: m.Sender.Username,
				Text:         m.Text,
				ChatType:     string(m.Chat.Type),
				ChatTitle:    m.Chat.Title,
			},
		})
		return nil
	})
}

func (a *Adapter) sendUpdate(up kit.Update) {
	v := a.out.Load()
	out, _ := v.(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	a.running = true
	a.out.Store(out)

	go a.bot.Start()
	go func() {
		<-ctx.Done()
		a.bot.Stop()
	}()

	a.log.Info("telegram adapter started", logx.String("bot", a.bot.Me.Username))
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false

	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.bot.Stop()

	if n := atomic.LoadUint64(&a.droppedUpdates); n > 0 {
		a.log.Warn("updates dropped during run", logx.Int64("count", int64(n)))
	}
	return nil
}

// SendText delivers text to a chat, splitting anything over Telegram's
// message size limit into multiple messages. Permanent destination
// failures are wrapped with transport.ErrPermanent; everything else
// (timeouts, flood control, network trouble) surfaces as-is and is
// treated as transient.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string) error {
	for _, chunk := range tgtext.Split(text, tgtext.MaxMessageLen) {
		if err := a.sendOne(ctx, to, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) sendOne(ctx context.Context, to kit.ChatTarget, text string) error {
	type result struct{ err error }
	done := make(chan result, 1)
	go func() {
		_, err := a.bot.Send(tele.ChatID(to.ChatID), text)
		done <- result{err}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-done:
		if r.err == nil {
			return nil
		}
		if isPermanent(r.err) {
			return fmt.Errorf("%w: %v", kit.ErrPermanent, r.err)
		}
		return r.err
	}
}

func isPermanent(err error) bool {
	for _, perm := range []error{
		tele.ErrBlockedByUser,
		tele.ErrUserIsDeactivated,
		tele.ErrChatNotFound,
		tele.ErrKickedFromGroup,
		tele.ErrKickedFromSuperGroup,
		tele.ErrKickedFromChannel,
	} {
		if errors.Is(err, perm) {
			return true
		}
	}
	return false
}
