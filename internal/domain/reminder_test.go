package domain

import (
	"testing"
	"time"
)

func TestParseKind(t *testing.T) {
	t.Parallel()
	if k, err := ParseKind("once"); err != nil || k != KindOnce {
		t.Fatalf("ParseKind(once) = %v, %v", k, err)
	}
	if k, err := ParseKind("repeat_cron"); err != nil || k != KindRecurring {
		t.Fatalf("ParseKind(repeat_cron) = %v, %v", k, err)
	}
	if _, err := ParseKind("weekly"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestParseCategory(t *testing.T) {
	t.Parallel()
	if c, err := ParseCategory("tournament"); err != nil || c != CategoryTournament {
		t.Fatalf("ParseCategory(tournament) = %v, %v", c, err)
	}
	if _, err := ParseCategory(""); err == nil {
		t.Fatal("expected error for empty category")
	}
}

func TestReminderValidate(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()

	tests := []struct {
		name    string
		r       Reminder
		wantErr bool
	}{
		{
			name: "valid once",
			r:    Reminder{ID: "a", Kind: KindOnce, TriggerAt: now},
		},
		{
			name: "valid recurring",
			r:    Reminder{ID: "b", Kind: KindRecurring, Rule: "*/15 * * * *", NextTriggerAt: now},
		},
		{
			name:    "once with rule",
			r:       Reminder{ID: "c", Kind: KindOnce, TriggerAt: now, Rule: "* * * * *"},
			wantErr: true,
		},
		{
			name:    "recurring without next trigger",
			r:       Reminder{ID: "d", Kind: KindRecurring, Rule: "* * * * *"},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			r:       Reminder{ID: "e", Kind: "sometimes"},
			wantErr: true,
		},
		{
			name:    "unknown category",
			r:       Reminder{ID: "f", Kind: KindOnce, TriggerAt: now, Category: "system"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDueAt(t *testing.T) {
	t.Parallel()
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	once := Reminder{Kind: KindOnce, TriggerAt: at}
	rec := Reminder{Kind: KindRecurring, NextTriggerAt: at.Add(time.Hour)}
	if !once.DueAt().Equal(at) {
		t.Fatal("once DueAt should be TriggerAt")
	}
	if !rec.DueAt().Equal(at.Add(time.Hour)) {
		t.Fatal("recurring DueAt should be NextTriggerAt")
	}
}
