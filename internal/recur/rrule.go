package recur

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// rrule-go numbers weekdays Monday-first; the calendar model is
// Sunday-first. Index by Weekday to convert.
var rruleWeekdays = [7]rrule.Weekday{
	rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA,
}

// RRuleString renders a normalized rule as an RFC 5545 RRULE value for ICS
// export and CalDAV clients. A non-recurring rule renders as the empty
// string. The week-5 "last" anchor maps to an ordinal BYDAY of -1.
func RRuleString(rule Rule, dtstart time.Time) (string, error) {
	if !rule.IsRecurring() {
		return "", nil
	}

	opt := rrule.ROption{
		Dtstart:  dtstart.UTC(),
		Interval: rule.Interval,
	}

	switch rule.Frequency {
	case FreqDaily:
		opt.Freq = rrule.DAILY
	case FreqWeekly:
		opt.Freq = rrule.WEEKLY
		for _, d := range rule.Days {
			opt.Byweekday = append(opt.Byweekday, rruleWeekdays[d])
		}
	case FreqMonthly:
		opt.Freq = rrule.MONTHLY
		if day, ok := rule.Anchor.Day(); ok {
			opt.Bymonthday = []int{day}
		}
		if week, weekday, ok := rule.Anchor.NthWeekday(); ok {
			nth := week
			if week == 5 {
				nth = -1
			}
			opt.Byweekday = []rrule.Weekday{rruleWeekdays[weekday].Nth(nth)}
		}
	case FreqYearly:
		opt.Freq = rrule.YEARLY
	default:
		return "", fmt.Errorf("frequency %q has no RRULE form", rule.Frequency)
	}

	if end, ok := rule.Termination.EndDate(); ok {
		opt.Until = end.UTC()
	}
	if n, ok := rule.Termination.Count(); ok {
		opt.Count = n
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return "", fmt.Errorf("building rrule: %w", err)
	}
	return r.String(), nil
}

// ParseRRuleString converts an RFC 5545 RRULE value back into a normalized
// rule. Only the subset RRuleString emits is supported; anything else (e.g.
// BYMONTH, multiple BYSETPOS) is rejected rather than silently narrowed.
func ParseRRuleString(s string) (Rule, error) {
	if s == "" {
		return None(), nil
	}

	opt, err := rrule.StrToROption(s)
	if err != nil {
		return Rule{}, fmt.Errorf("parsing rrule %q: %w", s, err)
	}
	if len(opt.Bymonth) > 0 || len(opt.Byyearday) > 0 || len(opt.Byweekno) > 0 || len(opt.Bysetpos) > 0 {
		return Rule{}, fmt.Errorf("rrule %q uses unsupported parts", s)
	}

	rule := Rule{Interval: opt.Interval}

	switch opt.Freq {
	case rrule.DAILY:
		rule.Frequency = FreqDaily
	case rrule.WEEKLY:
		rule.Frequency = FreqWeekly
		for _, wd := range opt.Byweekday {
			if wd.N() != 0 {
				return Rule{}, fmt.Errorf("rrule %q: ordinal BYDAY only supported for monthly rules", s)
			}
			rule.Days = append(rule.Days, Weekday((wd.Day()+1)%7))
		}
		if len(rule.Days) == 0 {
			return Rule{}, fmt.Errorf("rrule %q: weekly rule without BYDAY", s)
		}
	case rrule.MONTHLY:
		rule.Frequency = FreqMonthly
		switch {
		case len(opt.Bymonthday) == 1 && len(opt.Byweekday) == 0:
			rule.Anchor = OnDay(opt.Bymonthday[0])
		case len(opt.Byweekday) == 1 && len(opt.Bymonthday) == 0:
			wd := opt.Byweekday[0]
			week := wd.N()
			if week == -1 {
				week = 5
			}
			if week < 1 || week > 5 {
				return Rule{}, fmt.Errorf("rrule %q: unsupported BYDAY ordinal %d", s, wd.N())
			}
			rule.Anchor = OnNthWeekday(week, Weekday((wd.Day()+1)%7))
		default:
			return Rule{}, fmt.Errorf("rrule %q: monthly rule needs exactly one BYMONTHDAY or ordinal BYDAY", s)
		}
	case rrule.YEARLY:
		rule.Frequency = FreqYearly
	default:
		return Rule{}, fmt.Errorf("rrule %q: unsupported frequency", s)
	}

	switch {
	case opt.Count > 0:
		rule.Termination = Times(opt.Count)
	case !opt.Until.IsZero():
		rule.Termination = Until(opt.Until)
	}

	return Normalize(rule), nil
}
