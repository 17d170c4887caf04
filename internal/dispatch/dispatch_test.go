package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	kit "github.com/DeKoSun/Remindly-Pro-Bot/internal/transport"
	logx "github.com/DeKoSun/Remindly-Pro-Bot/pkg/logx"
)

type fakeSender struct {
	err   error
	delay time.Duration
	sent  []string
}

func (f *fakeSender) SendText(ctx context.Context, to kit.ChatTarget, text string) error {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

func TestDeliverOutcomes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{"success", nil, Success},
		{"transient network error", errors.New("telegram: connection reset"), TransientFailure},
		{"permanent rejection", fmt.Errorf("%w: bot was blocked", kit.ErrPermanent), PermanentFailure},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			d := New(Config{}, &fakeSender{err: tt.err}, logx.Nop())
			got := d.Deliver(context.Background(), kit.ChatTarget{ChatID: 1}, "hi")
			if got != tt.want {
				t.Fatalf("Deliver = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeliverTimeoutIsTransient(t *testing.T) {
	t.Parallel()
	d := New(Config{SendTimeout: 20 * time.Millisecond}, &fakeSender{delay: time.Second}, logx.Nop())
	got := d.Deliver(context.Background(), kit.ChatTarget{ChatID: 1}, "hi")
	if got != TransientFailure {
		t.Fatalf("Deliver = %v, want TransientFailure", got)
	}
}

func TestDeliverSendsText(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{}
	d := New(Config{}, fs, logx.Nop())
	if got := d.Deliver(context.Background(), kit.ChatTarget{ChatID: 1}, "напоминание"); got != Success {
		t.Fatalf("Deliver = %v, want Success", got)
	}
	if len(fs.sent) != 1 || fs.sent[0] != "напоминание" {
		t.Fatalf("sent = %v", fs.sent)
	}
}
