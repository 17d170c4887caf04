package domain

import (
	"testing"
	"time"
)

func TestInQuietHoursWrapAround(t *testing.T) {
	t.Parallel()
	p := Prefs{Timezone: "UTC", HasQuiet: true, QuietFrom: 23, QuietTo: 7}

	tests := []struct {
		hour int
		want bool
	}{
		{23, true},
		{0, true},
		{6, true},
		{7, false},
		{12, false},
		{22, false},
	}
	for _, tt := range tests {
		if got := p.InQuietHours(tt.hour); got != tt.want {
			t.Errorf("InQuietHours(%d) = %v, want %v", tt.hour, got, tt.want)
		}
	}
}

func TestInQuietHoursPlainWindow(t *testing.T) {
	t.Parallel()
	p := Prefs{Timezone: "UTC", HasQuiet: true, QuietFrom: 13, QuietTo: 18}

	if !p.InQuietHours(13) {
		t.Error("hour 13 should be quiet")
	}
	if p.InQuietHours(18) {
		t.Error("hour 18 (exclusive end) should not be quiet")
	}
	if p.InQuietHours(12) {
		t.Error("hour 12 should not be quiet")
	}
}

func TestInQuietHoursDisabled(t *testing.T) {
	t.Parallel()
	if (Prefs{Timezone: "UTC"}).InQuietHours(3) {
		t.Error("no quiet window configured, nothing should match")
	}
	// Zero-length window never matches.
	p := Prefs{HasQuiet: true, QuietFrom: 5, QuietTo: 5}
	if p.InQuietHours(5) {
		t.Error("zero-length window should never match")
	}
}

func TestShouldDeferComputesWindowEnd(t *testing.T) {
	t.Parallel()
	p := Prefs{Timezone: "UTC", HasQuiet: true, QuietFrom: 23, QuietTo: 7}

	// Late evening: end of window is tomorrow 07:00.
	now := time.Date(2024, 5, 10, 23, 30, 0, 0, time.UTC)
	ok, until := ShouldDefer(p, now)
	if !ok {
		t.Fatal("expected deferral at 23:30")
	}
	want := time.Date(2024, 5, 11, 7, 0, 0, 0, time.UTC)
	if !until.Equal(want) {
		t.Fatalf("deferred to %v, want %v", until, want)
	}

	// Early morning: end of window is today 07:00.
	now = time.Date(2024, 5, 10, 2, 15, 0, 0, time.UTC)
	ok, until = ShouldDefer(p, now)
	if !ok {
		t.Fatal("expected deferral at 02:15")
	}
	want = time.Date(2024, 5, 10, 7, 0, 0, 0, time.UTC)
	if !until.Equal(want) {
		t.Fatalf("deferred to %v, want %v", until, want)
	}

	// Deferred instant is always in the future.
	if !until.After(now) {
		t.Fatal("deferred instant must be strictly after now")
	}
}

func TestShouldDeferOutsideWindow(t *testing.T) {
	t.Parallel()
	p := Prefs{Timezone: "UTC", HasQuiet: true, QuietFrom: 23, QuietTo: 7}
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	if ok, _ := ShouldDefer(p, now); ok {
		t.Fatal("hour 12 must not defer")
	}
}
