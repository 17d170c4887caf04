// Package recurrence evaluates cron-style recurrence rules.
//
// All recurrence math happens in a local timezone: cron fields (hour,
// day-of-week) are meaningless without a reference calendar, so callers pass
// a reference instant already converted to the owner's location and convert
// the result back to UTC at the boundary.
package recurrence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidRule marks rules that cannot be parsed or never produce a next
// instant (e.g. out-of-range fields, impossible dates).
var ErrInvalidRule = errors.New("invalid recurrence rule")

type Calculator struct {
	parser cron.Parser
}

func NewCalculator() *Calculator {
	return &Calculator{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Next returns the next instant strictly after ref that satisfies rule,
// in ref's location. It is pure and side-effect free.
func (c *Calculator) Next(rule string, ref time.Time) (time.Time, error) {
	sched, err := c.parser.Parse(Normalize(rule))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrInvalidRule, rule, err)
	}
	next := sched.Next(ref)
	if next.IsZero() {
		// cron gives up after scanning ~5 years (e.g. "0 0 30 2 *").
		return time.Time{}, fmt.Errorf("%w: %q never fires", ErrInvalidRule, rule)
	}
	return next, nil
}

// Validate reports whether rule parses.
func (c *Calculator) Validate(rule string) error {
	if _, err := c.parser.Parse(Normalize(rule)); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidRule, rule, err)
	}
	return nil
}

// Normalize maps a few human shorthands onto plain cron expressions:
// a bare "HH:MM" becomes a daily rule, "каждую минуту" fires every minute.
// Anything else is passed through untouched.
func Normalize(expr string) string {
	s := strings.TrimSpace(expr)
	low := strings.ToLower(s)
	if low == "каждую минуту" {
		return "* * * * *"
	}
	low = strings.TrimSpace(strings.TrimPrefix(low, "ежедневно"))
	if hh, mm, ok := splitHHMM(low); ok {
		return fmt.Sprintf("%d %d * * *", mm, hh)
	}
	return s
}

func splitHHMM(s string) (hour, minute int, ok bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || h < 0 || h > 23 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}
