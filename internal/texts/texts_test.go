package texts

import (
	"strings"
	"testing"
)

func TestRotatorCycles(t *testing.T) {
	t.Parallel()
	r := NewRotator()

	seen := map[string]bool{}
	for i := 0; i < len(tournamentVariants); i++ {
		seen[r.Tournament(42, "14:00")] = true
	}
	if len(seen) != len(tournamentVariants) {
		t.Fatalf("got %d distinct phrases, want %d", len(seen), len(tournamentVariants))
	}

	// After a full cycle the pool repeats.
	first := r.Tournament(42, "14:00")
	if !seen[first] {
		t.Fatal("rotation did not wrap around to the pool start")
	}
}

func TestRotatorPerDestinationCounters(t *testing.T) {
	t.Parallel()
	r := NewRotator()
	a := r.Reminder(1, "полить цветы")
	b := r.Reminder(2, "полить цветы")
	if a != b {
		t.Fatal("fresh destinations should start at the same pool position")
	}
	c := r.Reminder(1, "полить цветы")
	if a == c {
		t.Fatal("same destination should rotate to the next phrase")
	}
}

func TestTournamentPhraseContainsStartTime(t *testing.T) {
	t.Parallel()
	r := NewRotator()
	got := r.Tournament(7, "22:00")
	if !strings.Contains(got, "22:00") || !strings.Contains(got, TournamentTitle) {
		t.Fatalf("phrase %q missing title or start time", got)
	}
}
