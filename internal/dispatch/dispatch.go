// Package dispatch wraps the outbound notification channel with rate
// limiting, a bounded per-send timeout and a small outcome taxonomy the
// delivery engine acts on.
package dispatch

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	kit "github.com/DeKoSun/Remindly-Pro-Bot/internal/transport"
	logx "github.com/DeKoSun/Remindly-Pro-Bot/pkg/logx"
)

// Outcome classifies a delivery attempt.
type Outcome int

const (
	Success Outcome = iota
	// TransientFailure: channel temporarily unavailable; the caller may see
	// the item again on a later tick.
	TransientFailure
	// PermanentFailure: the destination will never accept this message;
	// bookkeep like success to avoid retry storms.
	PermanentFailure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case TransientFailure:
		return "transient_failure"
	case PermanentFailure:
		return "permanent_failure"
	}
	return "unknown"
}

// Sender is the minimal adapter surface the dispatcher needs.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string) error
}

type Config struct {
	SendTimeout time.Duration
	RatePerSec  int
}

type Dispatcher struct {
	cfg     Config
	sender  Sender
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, sender Sender, log logx.Logger) *Dispatcher {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 8 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 25
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		cfg:    cfg,
		sender: sender,
		// Token bucket: burst = rate per sec, so short spikes don't block too hard.
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
	}
}

// Deliver sends text to the destination and classifies the result.
// A timed-out send counts as transient.
func (d *Dispatcher) Deliver(ctx context.Context, to kit.ChatTarget, text string) Outcome {
	if err := d.limiter.Wait(ctx); err != nil {
		return TransientFailure
	}

	sctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	err := d.sender.SendText(sctx, to, text)
	switch {
	case err == nil:
		return Success
	case errors.Is(err, kit.ErrPermanent):
		d.log.Warn("destination rejected delivery",
			logx.Int64("chat_id", to.ChatID), logx.Err(err))
		return PermanentFailure
	default:
		d.log.Debug("transient delivery failure",
			logx.Int64("chat_id", to.ChatID), logx.Err(err))
		return TransientFailure
	}
}
