package recur

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRule reports a rule handed to the expander without going through
// Validate and Normalize first. It is a contract violation in the caller,
// not a user-facing validation failure.
var ErrInvalidRule = errors.New("rule was not validated and normalized")

// ErrExpansionBounded reports that a single expansion hit the occurrence cap
// in Options. Callers can narrow the window or reject the rule.
var ErrExpansionBounded = errors.New("expansion exceeded the occurrence cap")

// maxConsecutiveSkips bounds the scan for the next realizable candidate when
// the skip policy drops months or years. Leap-day gaps reach 8 years around
// non-leap centuries and a monthly anchor cycles through at most 12 distinct
// months, so a series that produces nothing within this many skipped steps
// never produces anything.
const maxConsecutiveSkips = 50

// Expand materializes the occurrences of event under rule that intersect the
// window, in chronological order. Sequence numbers count emitted occurrences
// from 0 at the base occurrence; months or years skipped by the overflow
// policy do not consume a sequence number.
//
// The rule must already be normalized; Expand only performs a cheap shape
// check and fails with ErrInvalidRule otherwise. An empty result is not an
// error.
func Expand(event Event, rule Rule, w Window, opts Options) ([]Occurrence, error) {
	opts = opts.withDefaults()
	if err := checkExpandable(event, rule); err != nil {
		return nil, err
	}
	if w.To.Before(w.From) {
		return nil, nil
	}

	duration := event.End.Sub(event.Start)

	if !rule.IsRecurring() {
		if w.Contains(event.Start, event.End) {
			return []Occurrence{{EventID: event.ID, Start: event.Start, End: event.End, Sequence: 0}}, nil
		}
		return nil, nil
	}

	next, seq := newGenerator(event, rule, w, duration)

	endDate, hasEnd := rule.Termination.EndDate()
	count, hasCount := rule.Termination.Count()

	var out []Occurrence
	for {
		cand, ok := next()
		if !ok {
			break
		}
		if hasEnd && cand.After(endDate) {
			break
		}
		if hasCount && seq >= count {
			break
		}
		if cand.After(w.To) {
			break
		}
		end := cand.Add(duration)
		if w.Contains(cand, end) {
			if len(out) >= opts.MaxOccurrences {
				return nil, fmt.Errorf("expanding event %s: %w", event.ID, ErrExpansionBounded)
			}
			out = append(out, Occurrence{EventID: event.ID, Start: cand, End: end, Sequence: seq})
		}
		seq++
	}
	return out, nil
}

// newGenerator returns a closure yielding candidate starts in chronological
// order, plus the sequence number of the first candidate it will yield.
// Daily series without a count termination are fast-forwarded close to the
// window so a far-future query doesn't walk every intermediate day.
func newGenerator(event Event, rule Rule, w Window, duration time.Duration) (func() (time.Time, bool), int) {
	switch rule.Frequency {
	case FreqDaily:
		return dailyGenerator(event, rule, w, duration)
	case FreqWeekly:
		return weeklyGenerator(event.Start, rule), 0
	case FreqMonthly:
		if _, ok := rule.Anchor.Day(); ok {
			return monthlyDayGenerator(event.Start, rule), 0
		}
		return monthlyNthGenerator(event.Start, rule), 0
	case FreqYearly:
		return yearlyGenerator(event.Start, rule), 0
	}
	// Unreachable after checkExpandable.
	return func() (time.Time, bool) { return time.Time{}, false }, 0
}

func dailyGenerator(event Event, rule Rule, w Window, duration time.Duration) (func() (time.Time, bool), int) {
	cur := event.Start
	seq := 0

	// Counted series must be walked from the base so the count is exact;
	// otherwise skip whole intervals that cannot reach the window.
	if _, hasCount := rule.Termination.Count(); !hasCount {
		minStart := w.From.Add(-duration)
		if cur.Before(minStart) {
			step := time.Duration(rule.Interval) * 24 * time.Hour
			if k := int(minStart.Sub(cur) / step); k > 0 {
				cur = cur.AddDate(0, 0, k*rule.Interval)
				seq = k
			}
		}
	}

	return func() (time.Time, bool) {
		c := cur
		cur = cur.AddDate(0, 0, rule.Interval)
		return c, true
	}, seq
}

// weeklyGenerator walks the selected weekdays Sunday-first within the week
// containing the base start, then jumps whole weeks in steps of the
// interval. Weekday candidates earlier in the base week than the start
// itself are not part of the series.
func weeklyGenerator(base time.Time, rule Rule) func() (time.Time, bool) {
	weekStart := base.AddDate(0, 0, -int(base.Weekday()))
	idx := 0
	for idx < len(rule.Days) && rule.Days[idx] < Weekday(base.Weekday()) {
		idx++
	}
	if idx == len(rule.Days) {
		weekStart = weekStart.AddDate(0, 0, 7*rule.Interval)
		idx = 0
	}

	return func() (time.Time, bool) {
		c := weekStart.AddDate(0, 0, int(rule.Days[idx]))
		idx++
		if idx == len(rule.Days) {
			weekStart = weekStart.AddDate(0, 0, 7*rule.Interval)
			idx = 0
		}
		return c, true
	}
}

// monthlyDayGenerator resolves a fixed day of month every interval months.
// Months without that day are skipped outright; clamping to the month end
// would silently change the semantic day.
func monthlyDayGenerator(base time.Time, rule Rule) func() (time.Time, bool) {
	day, _ := rule.Anchor.Day()
	year, month := base.Year(), base.Month()
	hour, minute, sec := base.Clock()

	return func() (time.Time, bool) {
		for misses := 0; misses <= maxConsecutiveSkips; {
			y, m := year, month
			year, month = addMonths(year, month, rule.Interval)
			if day > daysIn(y, m) {
				misses++
				continue
			}
			c := time.Date(y, m, day, hour, minute, sec, base.Nanosecond(), base.Location())
			if c.Before(base) {
				// The anchor day falls before the event start in its own
				// month; the series begins one interval later.
				continue
			}
			return c, true
		}
		return time.Time{}, false
	}
}

// monthlyNthGenerator resolves the n-th weekday of the month every interval
// months. Week 5 falls back to the last matching weekday when the month has
// only four.
func monthlyNthGenerator(base time.Time, rule Rule) func() (time.Time, bool) {
	week, weekday, _ := rule.Anchor.NthWeekday()
	year, month := base.Year(), base.Month()
	hour, minute, sec := base.Clock()

	return func() (time.Time, bool) {
		for {
			y, m := year, month
			year, month = addMonths(year, month, rule.Interval)

			first := time.Date(y, m, 1, hour, minute, sec, base.Nanosecond(), base.Location())
			day := 1 + (int(weekday)-int(first.Weekday())+7)%7 + (week-1)*7
			if day > daysIn(y, m) {
				day -= 7
			}
			c := time.Date(y, m, day, hour, minute, sec, base.Nanosecond(), base.Location())
			if c.Before(base) {
				continue
			}
			return c, true
		}
	}
}

// yearlyGenerator keeps month and day fixed; a Feb 29 base only realizes in
// leap target years, matching the monthly skip policy.
func yearlyGenerator(base time.Time, rule Rule) func() (time.Time, bool) {
	year := base.Year()
	hour, minute, sec := base.Clock()

	return func() (time.Time, bool) {
		for misses := 0; misses <= maxConsecutiveSkips; {
			y := year
			year += rule.Interval
			if base.Day() > daysIn(y, base.Month()) {
				misses++
				continue
			}
			c := time.Date(y, base.Month(), base.Day(), hour, minute, sec, base.Nanosecond(), base.Location())
			return c, true
		}
		return time.Time{}, false
	}
}

func addMonths(year int, month time.Month, n int) (int, time.Month) {
	m := int(month) - 1 + n
	return year + m/12, time.Month(m%12 + 1)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// checkExpandable rejects rules that never went through Validate+Normalize.
// It mirrors the canonical shape Normalize produces rather than re-running
// full validation.
func checkExpandable(event Event, rule Rule) error {
	fail := func(reason string) error {
		return fmt.Errorf("%w: %s", ErrInvalidRule, reason)
	}

	if event.End.Before(event.Start) {
		return fail("event end precedes start")
	}
	freq := rule.Frequency
	if !freq.valid() {
		return fail(fmt.Sprintf("unknown frequency %q", freq))
	}
	if freq == FreqNone {
		if rule.Interval != 0 || rule.Days != nil || !rule.Anchor.IsZero() || !rule.Termination.IsNever() {
			return fail("non-recurring rule carries recurrence parameters")
		}
		return nil
	}

	if rule.Interval < 1 {
		return fail("interval below 1")
	}
	if freq == FreqWeekly {
		if len(rule.Days) == 0 {
			return fail("weekly rule without weekdays")
		}
		for i, d := range rule.Days {
			if !d.valid() || (i > 0 && rule.Days[i-1] >= d) {
				return fail("weekly day set not canonical")
			}
		}
	} else if rule.Days != nil {
		return fail("weekday set on non-weekly rule")
	}
	if freq == FreqMonthly {
		if rule.Anchor.IsZero() {
			return fail("monthly rule without anchor")
		}
		if day, ok := rule.Anchor.Day(); ok && (day < 1 || day > 31) {
			return fail("day of month out of range")
		}
		if week, weekday, ok := rule.Anchor.NthWeekday(); ok && (week < 1 || week > 5 || !weekday.valid()) {
			return fail("relative weekday anchor out of range")
		}
	} else if !rule.Anchor.IsZero() {
		return fail("monthly anchor on non-monthly rule")
	}
	if n, ok := rule.Termination.Count(); ok && n < 1 {
		return fail("occurrence count below 1")
	}
	return nil
}
