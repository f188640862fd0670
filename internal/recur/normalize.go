package recur

import "sort"

// Normalize rewrites a validated rule into its canonical form:
//
//   - FreqNone (or an empty frequency) collapses to the canonical empty rule
//     so non-recurring events never carry stale recurrence parameters;
//   - a missing interval defaults to 1;
//   - the weekly day set is deduplicated and sorted Sunday-first;
//   - fields that don't apply to the frequency are cleared.
//
// Normalize is idempotent and pure. The expander only accepts normalized
// rules.
func Normalize(rule Rule) Rule {
	if !rule.IsRecurring() {
		return None()
	}

	out := Rule{
		Frequency:   rule.Frequency,
		Interval:    rule.Interval,
		Termination: rule.Termination,
	}
	if out.Interval < 1 {
		out.Interval = 1
	}

	switch rule.Frequency {
	case FreqWeekly:
		out.Days = dedupeDays(rule.Days)
	case FreqMonthly:
		out.Anchor = rule.Anchor
	}

	return out
}

func dedupeDays(days []Weekday) []Weekday {
	if len(days) == 0 {
		return nil
	}
	var seen [7]bool
	out := make([]Weekday, 0, len(days))
	for _, d := range days {
		if d.valid() && !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
