// Package timeparse turns human time phrases into absolute instants or cron
// rules. Only the command layer consumes it; the delivery engine works with
// already-resolved instants and rules.
package timeparse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/DeKoSun/Remindly-Pro-Bot/internal/recurrence"
)

var ErrUnrecognized = errors.New("unrecognized time phrase")

var (
	rePlusMinutes  = regexp.MustCompile(`^\+?\s*(\d{1,3})\s*$`)
	reInMinutes    = regexp.MustCompile(`^через\s+(\d{1,3})\s*мин(уту|уты|ут|)\.?$`)
	reTomorrow24   = regexp.MustCompile(`^завтра\s+(\d{1,2}):(\d{2})$`)
	reTomorrow12   = regexp.MustCompile(`^завтра\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)$`)
	reClock12      = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(am|pm)$`)
	reClock24      = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	reEveryMinutes = regexp.MustCompile(`^кажд(ую|ые)\s+(\d{1,3})\s+мин(уту|уты|ут|)$`)
	reDaily24      = regexp.MustCompile(`^ежедневно\s+(\d{1,2}):(\d{2})$`)
	reDaily12      = regexp.MustCompile(`^ежедневно\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)$`)
)

// Once parses a one-off phrase relative to nowLocal and returns the resolved
// local instant plus a short human description.
//
// Supported forms: "+15", "через 30 минут", "завтра 09:00", "14:30",
// "7:10 pm" (today, or tomorrow if already past).
func Once(phrase string, nowLocal time.Time) (time.Time, string, error) {
	src := strings.ToLower(strings.TrimSpace(phrase))
	src = strings.Join(strings.Fields(src), " ")

	if m := rePlusMinutes.FindStringSubmatch(src); m != nil {
		n, _ := strconv.Atoi(m[1])
		when := nowLocal.Add(time.Duration(n) * time.Minute)
		return when, fmt.Sprintf("через %d %s", n, pluralMinutesAcc(n)), nil
	}
	if m := reInMinutes.FindStringSubmatch(src); m != nil {
		n, _ := strconv.Atoi(m[1])
		when := nowLocal.Add(time.Duration(n) * time.Minute)
		return when, fmt.Sprintf("через %d %s", n, pluralMinutesAcc(n)), nil
	}
	if m := reTomorrow24.FindStringSubmatch(src); m != nil {
		hh, mm, err := clockFields(m[1], m[2])
		if err != nil {
			return time.Time{}, "", err
		}
		when := atClock(nowLocal.AddDate(0, 0, 1), hh, mm)
		return when, when.Format("завтра в 15:04"), nil
	}
	if m := reTomorrow12.FindStringSubmatch(src); m != nil {
		hh, mm, err := clockFields12(m[1], m[2], m[3])
		if err != nil {
			return time.Time{}, "", err
		}
		when := atClock(nowLocal.AddDate(0, 0, 1), hh, mm)
		return when, when.Format("завтра в 15:04"), nil
	}
	if m := reClock12.FindStringSubmatch(src); m != nil {
		hh, mm, err := clockFields12(m[1], m[2], m[3])
		if err != nil {
			return time.Time{}, "", err
		}
		return todayOrTomorrow(nowLocal, hh, mm)
	}
	if m := reClock24.FindStringSubmatch(src); m != nil {
		hh, mm, err := clockFields(m[1], m[2])
		if err != nil {
			return time.Time{}, "", err
		}
		return todayOrTomorrow(nowLocal, hh, mm)
	}
	return time.Time{}, "", fmt.Errorf("%w: %q", ErrUnrecognized, phrase)
}

// Repeat parses a recurring phrase and returns the cron rule, a human
// description and the first trigger instant after nowLocal.
//
// Supported forms: "каждую минуту", "каждые N минут", "ежедневно HH:MM",
// bare "HH:MM" (daily), 12-hour variants, "cron: */15 * * * *".
func Repeat(phrase string, nowLocal time.Time, calc *recurrence.Calculator) (rule, human string, next time.Time, err error) {
	src := strings.ToLower(strings.TrimSpace(phrase))
	src = strings.Join(strings.Fields(src), " ")

	build := func(expr, human string) (string, string, time.Time, error) {
		n, err := calc.Next(expr, nowLocal)
		if err != nil {
			return "", "", time.Time{}, err
		}
		return expr, human, n, nil
	}

	if rest, ok := strings.CutPrefix(src, "cron:"); ok {
		return build(strings.TrimSpace(rest), "по cron")
	}
	if src == "каждую минуту" {
		return build("*/1 * * * *", "каждую минуту")
	}
	if m := reEveryMinutes.FindStringSubmatch(src); m != nil {
		n, _ := strconv.Atoi(m[2])
		if n == 0 {
			return "", "", time.Time{}, fmt.Errorf("%w: %q", ErrUnrecognized, phrase)
		}
		return build(fmt.Sprintf("*/%d * * * *", n), fmt.Sprintf("каждые %d %s", n, pluralMinutesAcc(n)))
	}
	if m := reDaily24.FindStringSubmatch(src); m != nil {
		hh, mm, err := clockFields(m[1], m[2])
		if err != nil {
			return "", "", time.Time{}, err
		}
		return build(fmt.Sprintf("%d %d * * *", mm, hh), "ежедневно")
	}
	if m := reDaily12.FindStringSubmatch(src); m != nil {
		hh, mm, err := clockFields12(m[1], m[2], m[3])
		if err != nil {
			return "", "", time.Time{}, err
		}
		return build(fmt.Sprintf("%d %d * * *", mm, hh), "ежедневно")
	}
	if m := reClock24.FindStringSubmatch(src); m != nil {
		hh, mm, err := clockFields(m[1], m[2])
		if err != nil {
			return "", "", time.Time{}, err
		}
		return build(fmt.Sprintf("%d %d * * *", mm, hh), "ежедневно")
	}
	if m := reClock12.FindStringSubmatch(src); m != nil {
		hh, mm, err := clockFields12(m[1], m[2], m[3])
		if err != nil {
			return "", "", time.Time{}, err
		}
		return build(fmt.Sprintf("%d %d * * *", mm, hh), "ежедневно")
	}
	return "", "", time.Time{}, fmt.Errorf("%w: %q", ErrUnrecognized, phrase)
}

func todayOrTomorrow(nowLocal time.Time, hh, mm int) (time.Time, string, error) {
	when := atClock(nowLocal, hh, mm)
	if !when.After(nowLocal) {
		when = when.AddDate(0, 0, 1)
		return when, when.Format("завтра в 15:04"), nil
	}
	return when, when.Format("сегодня в 15:04"), nil
}

func atClock(base time.Time, hh, mm int) time.Time {
	return time.Date(base.Year(), base.Month(), base.Day(), hh, mm, 0, 0, base.Location())
}

func clockFields(hs, ms string) (int, int, error) {
	hh, _ := strconv.Atoi(hs)
	mm, _ := strconv.Atoi(ms)
	if hh > 23 || mm > 59 {
		return 0, 0, fmt.Errorf("%w: %s:%s", ErrUnrecognized, hs, ms)
	}
	return hh, mm, nil
}

func clockFields12(hs, ms, ampm string) (int, int, error) {
	hh, _ := strconv.Atoi(hs)
	mm := 0
	if ms != "" {
		mm, _ = strconv.Atoi(ms)
	}
	if hh < 1 || hh > 12 || mm > 59 {
		return 0, 0, fmt.Errorf("%w: %s:%s %s", ErrUnrecognized, hs, ms, ampm)
	}
	if hh == 12 {
		hh = 0
	}
	if ampm == "pm" {
		hh += 12
	}
	return hh, mm, nil
}

// pluralMinutesAcc picks the Russian accusative form of "минута" after a
// number: 1 минуту, 2-4 минуты, 5-20 минут.
func pluralMinutesAcc(n int) string {
	if n < 0 {
		n = -n
	}
	n100 := n % 100
	if n100 >= 11 && n100 <= 14 {
		return "минут"
	}
	switch n % 10 {
	case 1:
		return "минуту"
	case 2, 3, 4:
		return "минуты"
	}
	return "минут"
}
