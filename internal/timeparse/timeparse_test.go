package timeparse

import (
	"errors"
	"testing"
	"time"

	"github.com/DeKoSun/Remindly-Pro-Bot/internal/recurrence"
)

var base = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func TestOnceRelative(t *testing.T) {
	t.Parallel()
	tests := []struct {
		phrase string
		want   time.Time
	}{
		{"+15", base.Add(15 * time.Minute)},
		{"25", base.Add(25 * time.Minute)},
		{"через 30 минут", base.Add(30 * time.Minute)},
		{"через 1 минуту", base.Add(time.Minute)},
	}
	for _, tt := range tests {
		got, _, err := Once(tt.phrase, base)
		if err != nil {
			t.Fatalf("Once(%q) error: %v", tt.phrase, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("Once(%q) = %v, want %v", tt.phrase, got, tt.want)
		}
	}
}

func TestOnceClock(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		phrase string
		want   time.Time
	}{
		{"today later", "14:30", time.Date(2024, 5, 10, 14, 30, 0, 0, time.UTC)},
		{"already past rolls to tomorrow", "09:00", time.Date(2024, 5, 11, 9, 0, 0, 0, time.UTC)},
		{"tomorrow explicit", "завтра 10:00", time.Date(2024, 5, 11, 10, 0, 0, 0, time.UTC)},
		{"pm clock", "7:10 pm", time.Date(2024, 5, 10, 19, 10, 0, 0, time.UTC)},
		{"bare pm hour", "7 pm", time.Date(2024, 5, 10, 19, 0, 0, 0, time.UTC)},
		{"noon edge", "12 pm", time.Date(2024, 5, 11, 12, 0, 0, 0, time.UTC)}, // 12:00 == now, rolls over
		{"tomorrow am", "завтра 7:30 am", time.Date(2024, 5, 11, 7, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := Once(tt.phrase, base)
			if err != nil {
				t.Fatalf("Once(%q) error: %v", tt.phrase, err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("Once(%q) = %v, want %v", tt.phrase, got, tt.want)
			}
		})
	}
}

func TestOnceUnrecognized(t *testing.T) {
	t.Parallel()
	for _, phrase := range []string{"когда-нибудь", "25:70", "завтра"} {
		if _, _, err := Once(phrase, base); !errors.Is(err, ErrUnrecognized) {
			t.Errorf("Once(%q) error = %v, want ErrUnrecognized", phrase, err)
		}
	}
}

func TestRepeat(t *testing.T) {
	t.Parallel()
	calc := recurrence.NewCalculator()

	tests := []struct {
		name     string
		phrase   string
		wantRule string
	}{
		{"every minute", "каждую минуту", "*/1 * * * *"},
		{"every n minutes", "каждые 15 минут", "*/15 * * * *"},
		{"daily", "ежедневно 09:30", "30 9 * * *"},
		{"bare clock is daily", "10:00", "0 10 * * *"},
		{"daily pm", "ежедневно 7 pm", "0 19 * * *"},
		{"raw cron", "cron: */5 * * * *", "*/5 * * * *"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			rule, _, next, err := Repeat(tt.phrase, base, calc)
			if err != nil {
				t.Fatalf("Repeat(%q) error: %v", tt.phrase, err)
			}
			if rule != tt.wantRule {
				t.Fatalf("rule = %q, want %q", rule, tt.wantRule)
			}
			if !next.After(base) {
				t.Fatalf("next = %v, not after %v", next, base)
			}
		})
	}
}

func TestRepeatBadCron(t *testing.T) {
	t.Parallel()
	calc := recurrence.NewCalculator()
	if _, _, _, err := Repeat("cron: 99 * * * *", base, calc); !errors.Is(err, recurrence.ErrInvalidRule) {
		t.Fatalf("error = %v, want ErrInvalidRule", err)
	}
	if _, _, _, err := Repeat("по настроению", base, calc); !errors.Is(err, ErrUnrecognized) {
		t.Fatalf("error = %v, want ErrUnrecognized", err)
	}
}

func TestPluralMinutesAcc(t *testing.T) {
	t.Parallel()
	tests := []struct {
		n    int
		want string
	}{
		{1, "минуту"}, {2, "минуты"}, {5, "минут"}, {11, "минут"},
		{21, "минуту"}, {22, "минуты"}, {114, "минут"},
	}
	for _, tt := range tests {
		if got := pluralMinutesAcc(tt.n); got != tt.want {
			t.Errorf("pluralMinutesAcc(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
