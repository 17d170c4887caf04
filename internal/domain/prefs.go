package domain

import "time"

// Prefs is a per-owner preference record: timezone and an optional
// quiet-hours window in the owner's local 24-hour clock.
//
// Absence of a record means "system default timezone, no quiet hours";
// callers get that via DefaultPrefs.
type Prefs struct {
	Timezone string

	HasQuiet  bool
	QuietFrom int // local hour, inclusive
	QuietTo   int // local hour, exclusive
}

// DefaultPrefs returns the prefs used for owners without a stored record.
func DefaultPrefs(tz string) Prefs {
	return Prefs{Timezone: tz}
}

// InQuietHours reports whether the local hour falls inside the quiet window.
// Wrap-around windows (23 -> 7) cover [from..24) and [0..to).
// A zero-length window (from == to) never matches.
func (p Prefs) InQuietHours(localHour int) bool {
	if !p.HasQuiet || p.QuietFrom == p.QuietTo {
		return false
	}
	if p.QuietFrom < p.QuietTo {
		return localHour >= p.QuietFrom && localHour < p.QuietTo
	}
	return localHour >= p.QuietFrom || localHour < p.QuietTo
}

// ShouldDefer decides whether a delivery at nowLocal must be deferred, and if
// so returns the deferred instant: the end of the quiet window in local time.
// The result is always strictly after nowLocal, so deferral can never move a
// trigger backwards or leave an item permanently stuck.
func ShouldDefer(p Prefs, nowLocal time.Time) (bool, time.Time) {
	if !p.InQuietHours(nowLocal.Hour()) {
		return false, time.Time{}
	}
	end := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(),
		p.QuietTo, 0, 0, 0, nowLocal.Location())
	if !end.After(nowLocal) {
		end = end.AddDate(0, 0, 1)
	}
	return true, end
}
