package recur

import (
	"fmt"
	"strings"
)

// FieldError is a single validation failure keyed by the wire field name, so
// the form can attach the message to the offending input.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every violated invariant of a candidate rule.
// Validation is deliberately not fail-fast: the form needs all messages at
// once.
type ValidationErrors []FieldError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Error()
	}
	return "invalid recurrence: " + strings.Join(msgs, "; ")
}

// Fields returns the errors keyed by field name for JSON responses.
func (e ValidationErrors) Fields() map[string]string {
	m := make(map[string]string, len(e))
	for _, fe := range e {
		if _, dup := m[fe.Field]; !dup {
			m[fe.Field] = fe.Message
		}
	}
	return m
}

// Validate checks a candidate rule against the event it belongs to and
// returns every violation. A nil result means the rule may be normalized and
// persisted. Validate is pure; it never mutates its inputs.
func Validate(rule Rule, event Event) ValidationErrors {
	var errs ValidationErrors

	if event.End.Before(event.Start) {
		errs = append(errs, FieldError{"end_date", "end date must not precede start date"})
	}

	freq := rule.Frequency
	if freq == "" {
		freq = FreqNone
	}
	if !freq.valid() {
		errs = append(errs, FieldError{"recurrence_frequency", fmt.Sprintf("unknown frequency %q", rule.Frequency)})
		return errs
	}
	if freq == FreqNone {
		// Non-recurring: remaining parameters are ignored and cleared by
		// Normalize, so nothing else to check.
		return errs
	}

	if rule.Interval < 0 {
		errs = append(errs, FieldError{"recurrence_interval", "interval must be at least 1"})
	}

	if freq == FreqWeekly {
		if len(rule.Days) == 0 {
			errs = append(errs, FieldError{"recurrence_days", "select at least one day of the week"})
		}
		for _, d := range rule.Days {
			if !d.valid() {
				errs = append(errs, FieldError{"recurrence_days", fmt.Sprintf("invalid weekday %d", d)})
				break
			}
		}
	}

	if freq == FreqMonthly {
		switch {
		case rule.Anchor.IsZero():
			errs = append(errs, FieldError{"recurrence_monthly", "select either a specific day or relative day of month"})
		default:
			if day, ok := rule.Anchor.Day(); ok && (day < 1 || day > 31) {
				errs = append(errs, FieldError{"recurrence_day_of_month", "day of month must be between 1 and 31"})
			}
			if week, weekday, ok := rule.Anchor.NthWeekday(); ok {
				if week < 1 || week > 5 {
					errs = append(errs, FieldError{"recurrence_week_of_month", "week of month must be between 1 and 5"})
				}
				if !weekday.valid() {
					errs = append(errs, FieldError{"recurrence_day_of_week", fmt.Sprintf("invalid weekday %d", weekday)})
				}
			}
		}
	}

	if end, ok := rule.Termination.EndDate(); ok && end.Before(event.Start) {
		errs = append(errs, FieldError{"recurrence_end_date", "recurrence end date must not precede the event start date"})
	}
	if n, ok := rule.Termination.Count(); ok && n < 1 {
		errs = append(errs, FieldError{"recurrence_count", "occurrence count must be at least 1"})
	}

	return errs
}
