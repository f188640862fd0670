// Package recur implements the recurrence engine: validation and
// normalization of recurrence rules, and bounded expansion of rules into
// concrete event occurrences for a query window.
package recur

import (
	"encoding/json"
	"time"
)

// Frequency is the repetition unit of a recurrence rule.
type Frequency string

const (
	FreqNone    Frequency = "none"
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
	FreqYearly  Frequency = "yearly"
)

func (f Frequency) valid() bool {
	switch f {
	case FreqNone, FreqDaily, FreqWeekly, FreqMonthly, FreqYearly:
		return true
	}
	return false
}

// Weekday numbering follows the calendar grid: Sunday is 0, Saturday is 6.
// This matches time.Weekday, so conversions are direct casts.
type Weekday int

const (
	Sunday Weekday = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

func (d Weekday) valid() bool { return d >= Sunday && d <= Saturday }

// anchorKind discriminates the MonthlyAnchor union.
type anchorKind int

const (
	anchorNone anchorKind = iota
	anchorDayOfMonth
	anchorNthWeekday
)

// MonthlyAnchor pins a monthly rule to either a fixed day of the month or the
// n-th weekday of the month. At most one variant is set; the zero value means
// "no anchor". Building it through the constructors keeps "both set"
// unrepresentable.
type MonthlyAnchor struct {
	kind    anchorKind
	day     int
	week    int
	weekday Weekday
}

// OnDay anchors occurrences to a fixed calendar day (1..31). Months without
// that day produce no occurrence.
func OnDay(day int) MonthlyAnchor {
	return MonthlyAnchor{kind: anchorDayOfMonth, day: day}
}

// OnNthWeekday anchors occurrences to the week-th weekday of the month.
// week 5 means the last such weekday, not literally the fifth.
func OnNthWeekday(week int, weekday Weekday) MonthlyAnchor {
	return MonthlyAnchor{kind: anchorNthWeekday, week: week, weekday: weekday}
}

func (a MonthlyAnchor) IsZero() bool { return a.kind == anchorNone }

// Day reports the fixed-day variant.
func (a MonthlyAnchor) Day() (int, bool) {
	return a.day, a.kind == anchorDayOfMonth
}

// NthWeekday reports the relative-weekday variant.
func (a MonthlyAnchor) NthWeekday() (week int, weekday Weekday, ok bool) {
	return a.week, a.weekday, a.kind == anchorNthWeekday
}

// terminationKind discriminates the Termination union.
type terminationKind int

const (
	terminateNever terminationKind = iota
	terminateEndDate
	terminateCount
)

// Termination describes when a recurrence series stops. The zero value is
// "never".
type Termination struct {
	kind terminationKind
	end  time.Time
	n    int
}

// Never runs the series indefinitely; expansion is bounded by the query
// window instead.
func Never() Termination { return Termination{} }

// Until stops the series once a candidate start passes t.
func Until(t time.Time) Termination {
	return Termination{kind: terminateEndDate, end: t}
}

// Times stops the series after n occurrences, counting the base occurrence.
func Times(n int) Termination {
	return Termination{kind: terminateCount, n: n}
}

func (t Termination) IsNever() bool { return t.kind == terminateNever }

// EndDate reports the end-date variant.
func (t Termination) EndDate() (time.Time, bool) {
	return t.end, t.kind == terminateEndDate
}

// Count reports the occurrence-count variant.
func (t Termination) Count() (int, bool) {
	return t.n, t.kind == terminateCount
}

// Rule is the canonical recurrence specification attached to an event.
// FreqNone means the event does not recur; Normalize guarantees that a
// FreqNone rule carries no stale parameters.
type Rule struct {
	Frequency   Frequency
	Interval    int
	Days        []Weekday // weekly only, Sunday-first order after Normalize
	Anchor      MonthlyAnchor
	Termination Termination
}

// None is the canonical empty rule for non-recurring events.
func None() Rule { return Rule{Frequency: FreqNone} }

// IsRecurring reports whether the rule produces more than the base
// occurrence.
func (r Rule) IsRecurring() bool {
	return r.Frequency != "" && r.Frequency != FreqNone
}

// Params is the flat wire representation of a Rule: the exact field set the
// browser form submits and the event table persists. Rules round-trip through
// Params losslessly. When a payload carries both monthly variants the
// day-of-month form wins; that default is a documented policy, not an
// accident of field ordering.
type Params struct {
	Frequency   Frequency  `json:"recurrence_frequency"`
	Interval    int        `json:"recurrence_interval,omitempty"`
	Days        []int      `json:"recurrence_days,omitempty"`
	DayOfMonth  *int       `json:"recurrence_day_of_month,omitempty"`
	WeekOfMonth *int       `json:"recurrence_week_of_month,omitempty"`
	DayOfWeek   *int       `json:"recurrence_day_of_week,omitempty"`
	EndDate     *time.Time `json:"recurrence_end_date,omitempty"`
	Count       *int       `json:"recurrence_count,omitempty"`
}

// Rule assembles the structured rule from the flat field set.
func (p Params) Rule() Rule {
	r := Rule{
		Frequency: p.Frequency,
		Interval:  p.Interval,
	}
	if r.Frequency == "" {
		r.Frequency = FreqNone
	}
	for _, d := range p.Days {
		r.Days = append(r.Days, Weekday(d))
	}
	switch {
	case p.DayOfMonth != nil:
		// Day-of-month wins over a relative anchor when both are present.
		r.Anchor = OnDay(*p.DayOfMonth)
	case p.WeekOfMonth != nil && p.DayOfWeek != nil:
		r.Anchor = OnNthWeekday(*p.WeekOfMonth, Weekday(*p.DayOfWeek))
	}
	switch {
	case p.EndDate != nil:
		r.Termination = Until(*p.EndDate)
	case p.Count != nil && *p.Count > 0:
		r.Termination = Times(*p.Count)
	}
	return r
}

// ParamsOf flattens a rule back into its wire representation.
func ParamsOf(r Rule) Params {
	p := Params{Frequency: r.Frequency}
	if p.Frequency == "" {
		p.Frequency = FreqNone
	}
	if !r.IsRecurring() {
		return p
	}
	p.Interval = r.Interval
	for _, d := range r.Days {
		p.Days = append(p.Days, int(d))
	}
	if day, ok := r.Anchor.Day(); ok {
		p.DayOfMonth = &day
	}
	if week, weekday, ok := r.Anchor.NthWeekday(); ok {
		wd := int(weekday)
		p.WeekOfMonth = &week
		p.DayOfWeek = &wd
	}
	if end, ok := r.Termination.EndDate(); ok {
		p.EndDate = &end
	}
	if n, ok := r.Termination.Count(); ok {
		p.Count = &n
	}
	return p
}

func (r Rule) MarshalJSON() ([]byte, error) {
	return json.Marshal(ParamsOf(r))
}

func (r *Rule) UnmarshalJSON(data []byte) error {
	var p Params
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = p.Rule()
	return nil
}

// Event is the engine's view of a calendar event: enough to expand
// occurrences, nothing more. Persistence concerns live with the caller.
type Event struct {
	ID     string
	Title  string
	Start  time.Time
	End    time.Time
	AllDay bool
	Rule   Rule
}

// Occurrence is one concrete instance of an event. Occurrences are computed
// per query and never persisted.
type Occurrence struct {
	EventID  string    `json:"event_id"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Sequence int       `json:"sequence"`
}

// Window is the bounded date range occurrences are requested for. Both ends
// are inclusive.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether the span [start, end] intersects the window.
func (w Window) Contains(start, end time.Time) bool {
	return !start.After(w.To) && !end.Before(w.From)
}
