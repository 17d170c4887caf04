// Package texts holds user-facing message templates and the rotating phrase
// pools used when delivering notifications.
package texts

import (
	"fmt"
	"sync"
)

const TournamentTitle = "Быстрый турнир"

// Tournament phrase pool; {title} and {time} are filled per firing.
var tournamentVariants = []string{
	"⏰ Через 5 минут стартует %[1]s — начало в %[2]s!",
	"🔥 %[1]s начинается в %[2]s. Осталось 5 минут!",
	"⚡ %[1]s через 5 минут (%[2]s). Поехали!",
	"🚀 Через 5 минут стартует %[1]s! Начало в %[2]s, не пропусти!",
	"⏳ Осталось 5 минут — %[1]s на старте! (%[2]s)",
	"🕓 Напоминание: %[1]s начинается в %[2]s.",
}

var reminderVariants = []string{
	"⏰ Напоминание: %s",
	"✨ Пора: %s",
	"ℹ️ Не забудь: %s",
	"🎯 Самое время: %s",
}

// Rotator cycles through phrase pools per destination so repeated firings do
// not read identically. The counter is in-memory only; there is no
// correctness requirement beyond eventual cycling.
type Rotator struct {
	mu      sync.Mutex
	counter map[int64]int
}

func NewRotator() *Rotator {
	return &Rotator{counter: map[int64]int{}}
}

func (r *Rotator) next(chatID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.counter[chatID]
	r.counter[chatID] = n + 1
	return n
}

// Tournament renders a tournament alert for the given start time ("14:00").
func (r *Rotator) Tournament(chatID int64, startAt string) string {
	v := tournamentVariants[r.next(chatID)%len(tournamentVariants)]
	return fmt.Sprintf(v, TournamentTitle, startAt)
}

// Reminder renders a user reminder body with a rotating prefix phrase.
func (r *Rotator) Reminder(chatID int64, body string) string {
	v := reminderVariants[r.next(chatID)%len(reminderVariants)]
	return fmt.Sprintf(v, body)
}
